package sim

// applyAdvanceFloor moves the party to the next floor. Refused while
// the boss stands; on success the old dungeon is discarded, players
// are restored to full, cooldowns reset, pending loot cleared, and
// tracking reset atomically, except the player movement-intent and
// death-timestamp maps, which persist across the transition.
func (e *Engine) applyAdvanceFloor(p *Player) []Event {
	if !e.state.Dungeon.BossDefeated {
		return []Event{rejected(p.ID, ReasonBossNotDefeated)}
	}

	e.state.Floor++
	e.state.Scaling = PartyScaling{
		PartySize:    len(e.state.Players),
		AvgItemPower: e.state.AvgItemPower(),
	}
	e.state.Dungeon = e.generator.Generate(
		e.state.RunID,
		e.state.Floor,
		e.state.Scaling.PartySize,
		e.state.Scaling.AvgItemPower,
	)

	e.state.PendingLoot = nil
	e.state.GroundEffects = nil
	e.state.InCombat = false
	e.state.Tracking.ResetForFloor()

	for _, player := range e.state.Players {
		player.Alive = true
		player.Health = player.MaxHealth
		player.Mana = player.MaxMana
		player.TargetID = ""
		e.removeRoomModifier(player)
	}
	for _, pet := range e.state.Pets {
		pet.Alive = true
		pet.Health = pet.MaxHealth
	}
	e.placePartyAtStart()

	return []Event{{
		Type: EventFloorAdvanced,
		Data: map[string]any{"floor": e.state.Floor},
	}}
}
