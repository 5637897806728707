package dungeon

import (
	"context"
	"fmt"
	"math"

	"deepspire/server/internal/rng"
	"deepspire/server/logging"
)

const (
	minRooms = 8
	maxRooms = 12

	roomSizeMin = 260.0
	roomSizeMax = 380.0
	gridCell    = 700.0
	gridJitter  = 120.0

	// The start room holds multiple vendors, so it is enlarged.
	startRoomScale = 1.5

	extraEdgesMin = 1
	extraEdgesMax = 2

	rareRoomChance = 0.15

	// CorridorPadding expands room rectangles for transition and
	// targeting leniency throughout the simulation.
	CorridorPadding = 200.0

	bossShiftStep     = gridCell / 2
	bossShiftAttempts = 3
)

// Generator builds floors. It carries only a publisher for corrective-
// action logging; all randomness flows through the floor RNG.
type Generator struct {
	publisher logging.Publisher
}

// NewGenerator returns a generator publishing to pub. A nil pub is
// replaced with the nop publisher.
func NewGenerator(pub logging.Publisher) *Generator {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	return &Generator{publisher: pub}
}

// Generate builds one floor. Identical inputs yield identical dungeons.
// Generation never fails: connectivity and overlap problems are
// repaired in place.
func (g *Generator) Generate(runID string, floor, partySize int, avgItemPower float64) *Dungeon {
	r := rng.ForFloor(runID, floor)
	seed := fmt.Sprintf("%s_floor_%d", runID, floor)

	rooms := g.placeRooms(r)
	connectRooms(r, rooms)

	rooms[0].Type = RoomStart
	rooms[0].Cleared = true

	bossRoom := g.assignBossRoom(r, &rooms)
	g.tagRareRooms(r, rooms)

	d := &Dungeon{
		Floor:         floor,
		Seed:          seed,
		Rooms:         rooms,
		CurrentRoomID: rooms[0].ID,
		Theme:         ThemeForFloor(floor),
	}
	d.ThemeMods = ModifiersForTheme(d.Theme, floor)

	// Safety net: the repair steps above should already guarantee a
	// path; force a direct link if they somehow did not.
	if !pathExists(d.Rooms, rooms[0].ID, bossRoom.ID) {
		g.forceBossPath(d, rooms[0], bossRoom)
	}

	g.assignRoomEffects(r, d)
	g.populate(r, d, partySize, avgItemPower)
	g.placeChests(r, d)
	g.placeTraps(r, d)

	return d
}

// placeRooms draws the room count and scatters rooms on a jittered
// square grid. The first room is the enlarged start room.
func (g *Generator) placeRooms(r *rng.RNG) []*Room {
	count := r.NextInt(minRooms, maxRooms)
	side := int(math.Ceil(math.Sqrt(float64(count)))) + 1

	cells := make([][2]int, 0, side*side)
	for gy := 0; gy < side; gy++ {
		for gx := 0; gx < side; gx++ {
			cells = append(cells, [2]int{gx, gy})
		}
	}
	cells = rng.Shuffle(r, cells)

	rooms := make([]*Room, 0, count)
	for i := 0; i < count; i++ {
		cell := cells[i]
		w := r.NextFloat(roomSizeMin, roomSizeMax)
		h := r.NextFloat(roomSizeMin, roomSizeMax)
		if i == 0 {
			w *= startRoomScale
			h *= startRoomScale
		}
		x := float64(cell[0])*gridCell + r.NextFloat(-gridJitter, gridJitter)
		y := float64(cell[1])*gridCell + r.NextFloat(-gridJitter, gridJitter)
		rooms = append(rooms, &Room{
			ID:     i,
			X:      x,
			Y:      y,
			Width:  w,
			Height: h,
			Type:   RoomNormal,
		})
	}
	return rooms
}

// connectRooms builds a minimum spanning tree over room centers with
// Prim's algorithm, then adds a few random extra edges for loops.
// Every edge is stored on both endpoints.
func connectRooms(r *rng.RNG, rooms []*Room) {
	if len(rooms) < 2 {
		return
	}

	inTree := map[int]bool{rooms[0].ID: true}
	for len(inTree) < len(rooms) {
		var bestFrom, bestTo *Room
		bestDist := math.MaxFloat64
		for _, from := range rooms {
			if !inTree[from.ID] {
				continue
			}
			for _, to := range rooms {
				if inTree[to.ID] {
					continue
				}
				if d := centerDistance(from, to); d < bestDist {
					bestDist = d
					bestFrom, bestTo = from, to
				}
			}
		}
		addEdge(bestFrom, bestTo)
		inTree[bestTo.ID] = true
	}

	extra := r.NextInt(extraEdgesMin, extraEdgesMax)
	for i := 0; i < extra; i++ {
		a := rng.Pick(r, rooms)
		b := rng.Pick(r, rooms)
		if a.ID == b.ID || a.ConnectedTo(b.ID) {
			continue
		}
		addEdge(a, b)
	}
}

func addEdge(a, b *Room) {
	if a == nil || b == nil || a.ID == b.ID {
		return
	}
	if !a.ConnectedTo(b.ID) {
		a.Connections = append(a.Connections, b.ID)
	}
	if !b.ConnectedTo(a.ID) {
		b.Connections = append(b.Connections, a.ID)
	}
}

func removeEdge(a *Room, to int) {
	for i, id := range a.Connections {
		if id == to {
			a.Connections = append(a.Connections[:i], a.Connections[i+1:]...)
			return
		}
	}
}

// assignBossRoom picks the room farthest from the start, doubles it,
// and repairs any damage the enlargement causes.
func (g *Generator) assignBossRoom(r *rng.RNG, rooms *[]*Room) *Room {
	start := (*rooms)[0]
	var boss *Room
	bestDist := -1.0
	for _, room := range (*rooms)[1:] {
		if d := centerDistance(start, room); d > bestDist {
			bestDist = d
			boss = room
		}
	}
	boss.Type = RoomBoss

	origW, origH := boss.Width, boss.Height
	center := boss.Center()
	boss.Width *= 2
	boss.Height *= 2
	boss.X = center.X - boss.Width/2
	boss.Y = center.Y - boss.Height/2

	g.resolveBossOverlap(rooms, boss, origW, origH)
	return boss
}

// resolveBossOverlap removes rooms swallowed by the enlarged boss
// footprint, reconnects the graph, and falls back to shifting or
// shrinking the boss room when removal is not enough.
func (g *Generator) resolveBossOverlap(rooms *[]*Room, boss *Room, origW, origH float64) {
	start := (*rooms)[0]

	kept := make([]*Room, 0, len(*rooms))
	removed := make([]int, 0)
	for _, room := range *rooms {
		if room != boss && room != start && room.overlaps(boss) {
			removed = append(removed, room.ID)
			continue
		}
		kept = append(kept, room)
	}
	if len(removed) > 0 {
		*rooms = kept
		for _, room := range kept {
			for _, id := range removed {
				removeEdge(room, id)
			}
		}
		g.logRepair("generation.rooms_removed", map[string]any{"roomIds": removed})
	}

	// The boss room may have lost every edge with its neighbors.
	if len(boss.Connections) == 0 {
		nearest := nearestRoom(kept, boss, func(c *Room) bool { return c != boss })
		addEdge(boss, nearest)
		g.logRepair("generation.boss_reconnected", map[string]any{"to": nearest.ID})
	}

	g.reattachUnreachable(*rooms, start)

	// Removal cannot touch the start room; shift, then shrink, when
	// the boss footprint still collides.
	if boss.overlaps(start) {
		if !g.shiftBossRoom(*rooms, boss) {
			g.shrinkBossRoom(boss, origW, origH, start)
		}
		g.reattachUnreachable(*rooms, start)
	}
}

// reattachUnreachable BFSes from start and bridges every orphaned room
// to its nearest reachable neighbor.
func (g *Generator) reattachUnreachable(rooms []*Room, start *Room) {
	for {
		reachable := reachableFrom(rooms, start.ID)
		var orphan *Room
		for _, room := range rooms {
			if !reachable[room.ID] {
				orphan = room
				break
			}
		}
		if orphan == nil {
			return
		}
		nearest := nearestRoom(rooms, orphan, func(c *Room) bool { return reachable[c.ID] })
		addEdge(orphan, nearest)
		g.logRepair("generation.room_reattached", map[string]any{"roomId": orphan.ID, "to": nearest.ID})
	}
}

func (g *Generator) shiftBossRoom(rooms []*Room, boss *Room) bool {
	dirs := [][2]float64{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	origX, origY := boss.X, boss.Y
	for step := 1; step <= bossShiftAttempts; step++ {
		for _, dir := range dirs {
			boss.X = origX + dir[0]*bossShiftStep*float64(step)
			boss.Y = origY + dir[1]*bossShiftStep*float64(step)
			if !overlapsAny(rooms, boss) {
				g.logRepair("generation.boss_shifted", map[string]any{"x": boss.X, "y": boss.Y})
				return true
			}
		}
	}
	boss.X, boss.Y = origX, origY
	return false
}

// shrinkBossRoom walks the boss room back toward its original size
// until the overlap clears. Last resort; the original size is known to
// fit.
func (g *Generator) shrinkBossRoom(boss *Room, origW, origH float64, start *Room) {
	center := boss.Center()
	for i := 0; i < 4; i++ {
		boss.Width = boss.Width*0.75 + origW*0.25
		boss.Height = boss.Height*0.75 + origH*0.25
		boss.X = center.X - boss.Width/2
		boss.Y = center.Y - boss.Height/2
		if !boss.overlaps(start) {
			break
		}
	}
	if boss.overlaps(start) {
		boss.Width, boss.Height = origW, origH
		boss.X = center.X - boss.Width/2
		boss.Y = center.Y - boss.Height/2
	}
	g.logRepair("generation.boss_shrunk", map[string]any{"width": boss.Width, "height": boss.Height})
}

func (g *Generator) tagRareRooms(r *rng.RNG, rooms []*Room) {
	for _, room := range rooms {
		if room.Type != RoomNormal {
			continue
		}
		if r.Chance(rareRoomChance) {
			room.Type = RoomRare
		}
	}
}

// forceBossPath greedily walks from start toward the boss room through
// existing connections, bridging gaps directly. Best-effort defensive
// check; the repair steps above should make it unreachable.
func (g *Generator) forceBossPath(d *Dungeon, start, boss *Room) {
	current := start
	for current.ID != boss.ID {
		var next *Room
		bestDist := math.MaxFloat64
		for _, id := range current.Connections {
			room := d.Room(id)
			if room == nil {
				continue
			}
			if dist := centerDistance(room, boss); dist < bestDist {
				bestDist = dist
				next = room
			}
		}
		if next == nil || centerDistance(next, boss) >= centerDistance(current, boss) {
			addEdge(current, boss)
			g.logRepair("generation.forced_boss_link", map[string]any{"from": current.ID})
			return
		}
		current = next
	}
}

func nearestRoom(rooms []*Room, to *Room, ok func(*Room) bool) *Room {
	var best *Room
	bestDist := math.MaxFloat64
	for _, room := range rooms {
		if room == to || !ok(room) {
			continue
		}
		if d := centerDistance(room, to); d < bestDist {
			bestDist = d
			best = room
		}
	}
	return best
}

func overlapsAny(rooms []*Room, target *Room) bool {
	for _, room := range rooms {
		if room != target && room.overlaps(target) {
			return true
		}
	}
	return false
}

// reachableFrom BFSes the adjacency lists and returns the reachable id
// set.
func reachableFrom(rooms []*Room, startID int) map[int]bool {
	byID := make(map[int]*Room, len(rooms))
	for _, room := range rooms {
		byID[room.ID] = room
	}
	seen := map[int]bool{startID: true}
	queue := []int{startID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		room := byID[id]
		if room == nil {
			continue
		}
		for _, next := range room.Connections {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

func pathExists(rooms []*Room, fromID, toID int) bool {
	return reachableFrom(rooms, fromID)[toID]
}

func (g *Generator) logRepair(eventType logging.EventType, payload map[string]any) {
	g.publisher.Publish(context.Background(), logging.Event{
		Type:     eventType,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryGeneration,
		Payload:  payload,
	})
}
