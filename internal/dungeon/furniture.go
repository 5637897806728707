package dungeon

import (
	"fmt"

	"deepspire/server/internal/rng"
)

const (
	chestChanceNormal = 0.25
	chestChanceRare   = 0.7
	chestChanceBoss   = 0.5
	chestLockedChance = 0.2
	mimicBaseChance   = 0.05

	spikesMinFloor     = 2
	spikesChance       = 0.2
	flamethrowerFloor  = 4
	flamethrowerChance = 0.15
)

// placeChests rolls chest spawns per room. Probability and tier scale
// with room type and theme; the treasure theme multiplies both chest
// and mimic rates.
func (g *Generator) placeChests(r *rng.RNG, d *Dungeon) {
	for _, room := range d.Rooms {
		var chance float64
		switch room.Type {
		case RoomStart:
			continue
		case RoomNormal:
			chance = chestChanceNormal
		case RoomRare:
			chance = chestChanceRare
		case RoomBoss:
			chance = chestChanceBoss
		}
		if !r.Chance(chance * d.ThemeMods.ChestMultiplier) {
			continue
		}

		tier := 1 + d.Floor/3
		if room.Type == RoomRare || room.Type == RoomBoss {
			tier++
		}
		chest := &Chest{
			ID:     fmt.Sprintf("chest-%d-%d", d.Floor, room.ID),
			X:      r.NextFloat(room.X+40, room.X+room.Width-40),
			Y:      r.NextFloat(room.Y+40, room.Y+room.Height-40),
			Tier:   tier,
			Locked: r.Chance(chestLockedChance),
			Mimic:  r.Chance(mimicBaseChance * d.ThemeMods.MimicMultiplier),
		}
		room.Chests = append(room.Chests, chest)
	}
}

// placeTraps rolls spikes (floor 2+) and flamethrowers (floor 4+ or
// boss rooms), theme-scaled. Traps sit against a room wall with their
// direction facing inward.
func (g *Generator) placeTraps(r *rng.RNG, d *Dungeon) {
	for _, room := range d.Rooms {
		if room.Type == RoomStart {
			continue
		}

		if d.Floor >= spikesMinFloor && r.Chance(spikesChance*d.ThemeMods.TrapMultiplier) {
			room.Traps = append(room.Traps, g.wallTrap(r, d, room, TrapSpikes, 6+2*float64(d.Floor)))
		}

		flamethrowerEligible := d.Floor >= flamethrowerFloor || room.Type == RoomBoss
		if flamethrowerEligible && r.Chance(flamethrowerChance*d.ThemeMods.TrapMultiplier) {
			room.Traps = append(room.Traps, g.wallTrap(r, d, room, TrapFlamethrower, 10+3*float64(d.Floor)))
		}
	}
}

func (g *Generator) wallTrap(r *rng.RNG, d *Dungeon, room *Room, kind TrapType, damage float64) Trap {
	sides := []string{"north", "south", "west", "east"}
	side := rng.Pick(r, sides)

	var x, y float64
	switch side {
	case "north":
		x, y = r.NextFloat(room.X+20, room.X+room.Width-20), room.Y
	case "south":
		x, y = r.NextFloat(room.X+20, room.X+room.Width-20), room.Y+room.Height
	case "west":
		x, y = room.X, r.NextFloat(room.Y+20, room.Y+room.Height-20)
	case "east":
		x, y = room.X+room.Width, r.NextFloat(room.Y+20, room.Y+room.Height-20)
	}

	visible := !d.ThemeMods.LowVisibility
	return Trap{
		ID:        fmt.Sprintf("trap-%d-%d-%d", d.Floor, room.ID, len(room.Traps)),
		Type:      kind,
		X:         x,
		Y:         y,
		Direction: side,
		Damage:    damage * maxFloat(1, d.ThemeMods.TrapMultiplier),
		Visible:   visible,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
