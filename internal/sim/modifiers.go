package sim

import "deepspire/server/internal/dungeon"

const (
	buffRoomCurse    = "room_curse"
	buffRoomBlessing = "room_blessing"

	curseArmorPenalty  = -10.0
	curseResistPenalty = -10.0
	blessArmorBonus    = 10.0
	blessCritBonus     = 0.1

	burningBaseDamage = 2.0
)

// applyRoomModifier grants the room's flat buff/debuff. Modifier buffs
// never stack: a player already carrying the buff keeps exactly one
// entry.
func (e *Engine) applyRoomModifier(p *Player, room *dungeon.Room) {
	switch room.Modifier {
	case dungeon.ModifierCursed:
		if p.HasBuff(buffRoomCurse) {
			return
		}
		p.Buffs = append(p.Buffs, Buff{
			ID:          buffRoomCurse,
			RemainingMS: -1,
			Armor:       curseArmorPenalty,
			Resist:      curseResistPenalty,
		})
	case dungeon.ModifierBlessed:
		if p.HasBuff(buffRoomBlessing) {
			return
		}
		p.Buffs = append(p.Buffs, Buff{
			ID:          buffRoomBlessing,
			RemainingMS: -1,
			Armor:       blessArmorBonus,
			Crit:        blessCritBonus,
		})
	}
}

// removeRoomModifier strips any room-scoped buffs. Effective stats are
// derived from base values plus buffs, so removal restores the
// original stats exactly.
func (e *Engine) removeRoomModifier(p *Player) {
	kept := p.Buffs[:0]
	for _, b := range p.Buffs {
		if b.ID == buffRoomCurse || b.ID == buffRoomBlessing {
			continue
		}
		kept = append(kept, b)
	}
	p.Buffs = kept
}

// burningIntervalTicks shortens as floors deepen, bottoming out at
// eight ticks.
func burningIntervalTicks(floor int) uint64 {
	interval := 20 - floor
	if interval < 8 {
		interval = 8
	}
	return uint64(interval)
}

// tickRoomModifiers applies burning damage to players standing in
// burning rooms on the room's fixed interval.
func (e *Engine) tickRoomModifiers() []Event {
	var events []Event
	for _, room := range e.state.Dungeon.Rooms {
		if room.Modifier != dungeon.ModifierBurning {
			continue
		}
		next, ok := e.state.Tracking.ModifierTicks[room.ID]
		if !ok {
			e.state.Tracking.ModifierTicks[room.ID] = e.tick + burningIntervalTicks(e.state.Floor)
			continue
		}
		if e.tick < next {
			continue
		}
		e.state.Tracking.ModifierTicks[room.ID] = e.tick + burningIntervalTicks(e.state.Floor)

		damage := burningBaseDamage + float64(e.state.Floor)
		for _, p := range e.state.Players {
			if p.Alive && p.RoomID == room.ID {
				e.damagePlayer(p, damage, &events)
			}
		}
	}
	return events
}
