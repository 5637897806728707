package sim

import (
	"fmt"

	"deepspire/server/internal/content"
	"deepspire/server/internal/dungeon"
	"deepspire/server/internal/rng"
)

// tickBossPhases evaluates the boss's phase script. Threshold phases
// are recorded under a "bossId_phaseId" key so they fire at most once;
// interval phases reschedule themselves; enrage and regenerate raise
// continuous flags rather than firing events repeatedly.
func (e *Engine) tickBossPhases() []Event {
	var events []Event
	room := e.state.Dungeon.BossRoom()
	if room == nil {
		return events
	}

	for _, enemy := range room.Enemies {
		if !enemy.Boss || !enemy.Alive || enemy.TargetID == "" {
			continue
		}
		def := content.BossByID(enemy.DefID)
		if def == nil {
			continue
		}
		healthFrac := enemy.Health / enemy.MaxHealth

		for _, phase := range def.Phases {
			key := PhaseKey(enemy.ID, phase.ID)

			if phase.IntervalMS > 0 {
				next, ok := e.state.Tracking.BossPhaseTimers[key]
				intervalTicks := uint64(phase.IntervalMS / TickMS)
				if !ok {
					e.state.Tracking.BossPhaseTimers[key] = e.tick + intervalTicks
					continue
				}
				if e.tick < next {
					continue
				}
				e.state.Tracking.BossPhaseTimers[key] = e.tick + intervalTicks
				events = append(events, e.firePhase(enemy, room, phase)...)
				continue
			}

			if phase.Threshold <= 0 || healthFrac > phase.Threshold {
				continue
			}
			if e.state.Tracking.BossPhases[key] {
				continue
			}
			e.state.Tracking.BossPhases[key] = true
			events = append(events, e.firePhase(enemy, room, phase)...)
		}
	}
	return events
}

func (e *Engine) firePhase(boss *dungeon.Enemy, room *dungeon.Room, phase content.BossPhase) []Event {
	events := []Event{{
		Type: EventBossPhase,
		Data: map[string]any{"bossId": boss.ID, "phaseId": phase.ID},
	}}

	if phase.Enrage {
		boss.Enraged = true
	}
	if phase.Regenerate {
		boss.Regenerating = true
	}
	if phase.Summons != "" {
		e.summonAdds(boss, room, phase)
	}
	if phase.GroundID != "" {
		e.spawnGroundEffect(boss, room, phase.GroundID)
	}
	return events
}

// summonAdds spawns phase adds around the boss on the run's combat
// stream.
func (e *Engine) summonAdds(boss *dungeon.Enemy, room *dungeon.Room, phase content.BossPhase) {
	def := content.EnemyByID(phase.Summons)
	if def == nil {
		return
	}
	count := phase.SummonSize
	if count <= 0 {
		count = 2
	}
	for i := 0; i < count; i++ {
		x := boss.X + e.combatRNG.NextFloat(-80, 80)
		y := boss.Y + e.combatRNG.NextFloat(-80, 80)
		room.Enemies = append(room.Enemies, &dungeon.Enemy{
			ID:        fmt.Sprintf("summon-%s-%s-%d-%d", boss.ID, phase.ID, e.tick, i),
			DefID:     def.ID,
			Name:      def.Name,
			X:         x,
			Y:         y,
			Health:    def.Health,
			MaxHealth: def.Health,
			Damage:    def.Damage,
			Speed:     def.Speed,
			Range:     def.Range,
			Alive:     true,
			XP:        def.XP,
			Gold:      def.Gold,
			RoomID:    room.ID,
			SpawnX:    x,
			SpawnY:    y,
		})
	}
}

func (e *Engine) spawnGroundEffect(boss *dungeon.Enemy, room *dungeon.Room, kind string) {
	center := room.Center()
	x := center.X + e.combatRNG.NextFloat(-room.Width/4, room.Width/4)
	y := center.Y + e.combatRNG.NextFloat(-room.Height/4, room.Height/4)
	e.state.GroundEffects = append(e.state.GroundEffects, &GroundEffect{
		ID:         fmt.Sprintf("ground-%s-%d", kind, e.tick),
		Kind:       kind,
		X:          x,
		Y:          y,
		Radius:     e.combatRNG.NextFloat(70, 110),
		DurationMS: 6000,
		DamagePerS: 8 + 2*float64(e.state.Floor),
		RoomID:     room.ID,
	})
}

// tickGroundEffects damages players standing in active effects and
// expires them.
func (e *Engine) tickGroundEffects(dt float64) []Event {
	var events []Event
	kept := e.state.GroundEffects[:0]
	for _, effect := range e.state.GroundEffects {
		effect.DurationMS -= TickMS
		if effect.DurationMS <= 0 {
			continue
		}
		kept = append(kept, effect)
		if effect.DamagePerS <= 0 {
			continue
		}
		for _, p := range e.state.Players {
			if !p.Alive {
				continue
			}
			dx, dy := p.X-effect.X, p.Y-effect.Y
			if dx*dx+dy*dy <= effect.Radius*effect.Radius {
				e.damagePlayer(p, effect.DamagePerS*dt, &events)
			}
		}
	}
	e.state.GroundEffects = kept
	return events
}

// lootRNG returns the loot stream for a source, kept separate from the
// layout stream.
func (e *Engine) lootRNG(source string) *rng.RNG {
	return rng.ForLoot(e.state.RunID, e.state.Floor, source)
}
