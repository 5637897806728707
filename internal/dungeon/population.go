package dungeon

import (
	"fmt"

	"deepspire/server/internal/content"
	"deepspire/server/internal/rng"
)

const (
	packSizeMin = 2
	packSizeMax = 4

	eliteMinFloor   = 3
	eliteChance     = 0.2
	eliteHealthMult = 1.8
	eliteDamageMult = 1.3

	rareHealthMult = 2.5
	rareDamageMult = 1.5

	patrolMinFloor  = 2
	patrolRouteMin  = 2
	patrolRouteMax  = 4
	maxPatrolsFloor = 3

	variantChance  = 0.22
	modifierChance = 0.2
)

// populate fills rooms with enemies. Start rooms stay empty and get
// vendors instead; boss rooms get one scaled boss; rare rooms get a
// pack plus a rare variant enemy.
func (g *Generator) populate(r *rng.RNG, d *Dungeon, partySize int, avgItemPower float64) {
	if partySize < 1 {
		partySize = 1
	}
	scaling := difficultyScaling(d.Floor, partySize, avgItemPower)
	pool := content.EnemiesForFloor(d.Floor)

	for _, room := range d.Rooms {
		switch room.Type {
		case RoomStart:
			room.Vendors = startVendors(r, room)
		case RoomBoss:
			room.Enemies = append(room.Enemies, g.spawnBoss(r, d, room, scaling))
		case RoomRare:
			g.spawnPack(r, room, pool, scaling, partySize)
			room.Enemies = append(room.Enemies, g.spawnRare(r, room, pool, scaling))
		case RoomNormal:
			g.spawnPack(r, room, pool, scaling, partySize)
			if d.Floor >= eliteMinFloor && r.Chance(eliteChance) {
				g.promoteElite(r, room)
			}
			if room.Variant == VariantAmbush {
				for _, enemy := range room.Enemies {
					enemy.Hidden = true
				}
			}
		}
	}

	if d.Floor >= patrolMinFloor {
		g.seedPatrols(r, d, pool, scaling)
	}
}

// difficultyScaling folds floor depth, party size, and gear power into
// health/damage multipliers applied to every spawn.
type scaleFactors struct {
	health float64
	damage float64
}

func difficultyScaling(floor, partySize int, avgItemPower float64) scaleFactors {
	floorMult := 1 + 0.15*float64(floor-1)
	partyMult := 1 + 0.35*float64(partySize-1)
	gearMult := 1 + avgItemPower/200
	return scaleFactors{
		health: floorMult * partyMult * gearMult,
		damage: floorMult * (1 + 0.15*float64(partySize-1)) * gearMult,
	}
}

func (g *Generator) newEnemy(r *rng.RNG, room *Room, def content.EnemyDefinition, scaling scaleFactors) *Enemy {
	x := r.NextFloat(room.X+30, room.X+room.Width-30)
	y := r.NextFloat(room.Y+30, room.Y+room.Height-30)
	return &Enemy{
		ID:        fmt.Sprintf("enemy-%d-%d", room.ID, len(room.Enemies)),
		DefID:     def.ID,
		Name:      def.Name,
		X:         x,
		Y:         y,
		Health:    def.Health * scaling.health,
		MaxHealth: def.Health * scaling.health,
		Damage:    def.Damage * scaling.damage,
		Speed:     def.Speed,
		Range:     def.Range,
		Alive:     true,
		XP:        def.XP,
		Gold:      def.Gold,
		RoomID:    room.ID,
		SpawnX:    x,
		SpawnY:    y,
	}
}

func (g *Generator) spawnPack(r *rng.RNG, room *Room, pool []content.EnemyDefinition, scaling scaleFactors, partySize int) {
	size := r.NextInt(packSizeMin, packSizeMax)
	if partySize > 2 {
		size++
	}
	if room.Variant == VariantSwarm {
		size *= 2
	}
	for i := 0; i < size; i++ {
		def := rng.Pick(r, pool)
		room.Enemies = append(room.Enemies, g.newEnemy(r, room, def, scaling))
	}
}

func (g *Generator) promoteElite(r *rng.RNG, room *Room) {
	if len(room.Enemies) == 0 {
		return
	}
	enemy := rng.Pick(r, room.Enemies)
	enemy.Elite = true
	enemy.Name = "Elite " + enemy.Name
	enemy.Health *= eliteHealthMult
	enemy.MaxHealth = enemy.Health
	enemy.Damage *= eliteDamageMult
}

func (g *Generator) spawnRare(r *rng.RNG, room *Room, pool []content.EnemyDefinition, scaling scaleFactors) *Enemy {
	def := rng.Pick(r, pool)
	enemy := g.newEnemy(r, room, def, scaling)
	enemy.ID = fmt.Sprintf("rare-%d", room.ID)
	enemy.Name = "Gilded " + def.Name
	enemy.Rare = true
	enemy.Health *= rareHealthMult
	enemy.MaxHealth = enemy.Health
	enemy.Damage *= rareDamageMult
	enemy.Gold *= 5
	enemy.XP *= 4
	return enemy
}

func (g *Generator) spawnBoss(r *rng.RNG, d *Dungeon, room *Room, scaling scaleFactors) *Enemy {
	defs := content.BossesForFloor(d.Floor)
	def := rng.Pick(r, defs)
	center := room.Center()
	return &Enemy{
		ID:        fmt.Sprintf("boss-%d", d.Floor),
		DefID:     def.ID,
		Name:      def.Name,
		X:         center.X,
		Y:         center.Y,
		Health:    def.Health * scaling.health,
		MaxHealth: def.Health * scaling.health,
		Damage:    def.Damage * scaling.damage,
		Speed:     def.Speed,
		Range:     def.Range,
		Alive:     true,
		Boss:      true,
		XP:        200 * d.Floor,
		Gold:      100 * d.Floor,
		RoomID:    room.ID,
		SpawnX:    center.X,
		SpawnY:    center.Y,
	}
}

// seedPatrols spawns 1-3 roaming enemies into connected normal-room
// pairs. Routes are 2-4 rooms; waypoints pass through room centers and
// corridor midpoints so patrols never cut through walls.
func (g *Generator) seedPatrols(r *rng.RNG, d *Dungeon, pool []content.EnemyDefinition, scaling scaleFactors) {
	count := 1 + (d.Floor-patrolMinFloor)/3
	if count > maxPatrolsFloor {
		count = maxPatrolsFloor
	}

	candidates := make([]*Room, 0, len(d.Rooms))
	for _, room := range d.Rooms {
		if room.Type != RoomNormal {
			continue
		}
		for _, id := range room.Connections {
			if next := d.Room(id); next != nil && next.Type == RoomNormal {
				candidates = append(candidates, room)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return
	}

	for i := 0; i < count; i++ {
		home := rng.Pick(r, candidates)
		route := buildPatrolRoute(r, d, home)
		if len(route) < 2 {
			continue
		}
		def := rng.Pick(r, pool)
		enemy := g.newEnemy(r, home, def, scaling)
		enemy.ID = fmt.Sprintf("patrol-%d-%d", d.Floor, i)
		enemy.Patrol = &PatrolState{
			Route:     route,
			Waypoints: patrolWaypoints(d, route),
			Direction: 1,
		}
		if len(enemy.Patrol.Waypoints) > 0 {
			enemy.X = enemy.Patrol.Waypoints[0].X
			enemy.Y = enemy.Patrol.Waypoints[0].Y
			enemy.SpawnX, enemy.SpawnY = enemy.X, enemy.Y
		}
		home.Enemies = append(home.Enemies, enemy)
	}
}

// buildPatrolRoute random-walks the adjacency graph through normal
// rooms, 2-4 rooms long, without revisiting.
func buildPatrolRoute(r *rng.RNG, d *Dungeon, home *Room) []int {
	length := r.NextInt(patrolRouteMin, patrolRouteMax)
	route := []int{home.ID}
	visited := map[int]bool{home.ID: true}
	current := home
	for len(route) < length {
		next := make([]*Room, 0, len(current.Connections))
		for _, id := range current.Connections {
			room := d.Room(id)
			if room != nil && room.Type == RoomNormal && !visited[room.ID] {
				next = append(next, room)
			}
		}
		if len(next) == 0 {
			break
		}
		current = rng.Pick(r, next)
		visited[current.ID] = true
		route = append(route, current.ID)
	}
	return route
}

// patrolWaypoints expands a room route into the walkable point list:
// the center of each room with the corridor midpoint between each
// consecutive pair.
func patrolWaypoints(d *Dungeon, route []int) []Vec2 {
	points := make([]Vec2, 0, len(route)*2-1)
	for i, id := range route {
		room := d.Room(id)
		if room == nil {
			continue
		}
		center := room.Center()
		if i > 0 {
			prev := d.Room(route[i-1])
			if prev != nil {
				pc := prev.Center()
				points = append(points, Vec2{X: (pc.X + center.X) / 2, Y: (pc.Y + center.Y) / 2})
			}
		}
		points = append(points, center)
	}
	return points
}

func startVendors(r *rng.RNG, room *Room) []Vendor {
	kinds := []string{"blacksmith", "alchemist", "curio"}
	count := r.NextInt(2, 3)
	vendors := make([]Vendor, 0, count)
	for i := 0; i < count && i < len(kinds); i++ {
		vendors = append(vendors, Vendor{
			ID:   fmt.Sprintf("vendor-%d-%d", room.ID, i),
			Kind: kinds[i],
			X:    r.NextFloat(room.X+60, room.X+room.Width-60),
			Y:    r.NextFloat(room.Y+60, room.Y+room.Height-60),
		})
	}
	return vendors
}

// assignRoomEffects tags normal rooms with at most one variant and one
// modifier each. Runs before population so formation variants can
// shape the spawn pass.
func (g *Generator) assignRoomEffects(r *rng.RNG, d *Dungeon) {
	variants := []Variant{VariantAmbush, VariantGuardian, VariantSwarm, VariantArena, VariantGauntlet}
	modifiers := []Modifier{ModifierDark, ModifierBurning, ModifierCursed, ModifierBlessed}

	for _, room := range d.Rooms {
		if room.Type != RoomNormal {
			continue
		}
		if r.Chance(variantChance) {
			room.Variant = rng.Pick(r, variants)
		}
		if r.Chance(modifierChance) {
			room.Modifier = rng.Pick(r, modifiers)
		}
	}
}
