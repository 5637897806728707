// Package dungeon generates one floor of the dungeon: room layout,
// connectivity, enemy population, traps, and chests. Generation is
// fully deterministic for a given (runID, floor) pair and never fails
// outward; structural problems are repaired in place.
package dungeon

import "math"

// RoomType tags the role a room plays on the floor.
type RoomType string

const (
	RoomStart  RoomType = "start"
	RoomNormal RoomType = "normal"
	RoomBoss   RoomType = "boss"
	RoomRare   RoomType = "rare"
)

// Variant selects an enemy-formation behavior for a room. A room
// carries at most one variant; behavior is dispatched by matching on
// the tag at spawn time and per tick.
type Variant string

const (
	VariantNone     Variant = ""
	VariantAmbush   Variant = "ambush"
	VariantGuardian Variant = "guardian"
	VariantSwarm    Variant = "swarm"
	VariantArena    Variant = "arena"
	VariantGauntlet Variant = "gauntlet"
)

// Modifier selects an environmental effect for a room.
type Modifier string

const (
	ModifierNone    Modifier = ""
	ModifierDark    Modifier = "dark"
	ModifierBurning Modifier = "burning"
	ModifierCursed  Modifier = "cursed"
	ModifierBlessed Modifier = "blessed"
)

// Vec2 is a world-space point.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PatrolState carries a roaming enemy's precomputed route. Waypoints
// pass through room centers and corridor midpoints so patrol movement
// never cuts through walls.
type PatrolState struct {
	Route     []int  `json:"route"`
	Waypoints []Vec2 `json:"waypoints"`
	Index     int    `json:"index"`
	Direction int    `json:"direction"`
}

// Enemy is one combat entity. Created at generation or by boss summons
// during play; the simulation mutates it in place.
type Enemy struct {
	ID        string  `json:"id"`
	DefID     string  `json:"defId"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
	Damage    float64 `json:"damage"`
	Speed     float64 `json:"speed"`
	Range     float64 `json:"range"`
	Alive     bool    `json:"alive"`
	TargetID  string  `json:"targetId,omitempty"`
	XP        int     `json:"xp"`
	Gold      int     `json:"gold"`

	Boss  bool `json:"boss,omitempty"`
	Rare  bool `json:"rare,omitempty"`
	Elite bool `json:"elite,omitempty"`

	// Hidden enemies (ambush rooms) are untargetable and AI-inert
	// until revealed.
	Hidden bool `json:"hidden,omitempty"`

	Patrol        *PatrolState `json:"patrol,omitempty"`
	WasPatrolling bool         `json:"-"`

	Enraged      bool `json:"enraged,omitempty"`
	Invulnerable bool `json:"invulnerable,omitempty"`
	Regenerating bool `json:"regenerating,omitempty"`

	RoomID int     `json:"roomId"`
	SpawnX float64 `json:"-"`
	SpawnY float64 `json:"-"`
}

// Chest is lootable furniture. Mimics reveal themselves on open.
type Chest struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Tier   int     `json:"tier"`
	Locked bool    `json:"locked"`
	Open   bool    `json:"open"`
	Mimic  bool    `json:"-"`
}

// TrapType distinguishes trap behaviors.
type TrapType string

const (
	TrapSpikes       TrapType = "spikes"
	TrapFlamethrower TrapType = "flamethrower"
)

// Trap sits against a room wall and damages players crossing it.
type Trap struct {
	ID        string   `json:"id"`
	Type      TrapType `json:"type"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	Direction string   `json:"direction"`
	Damage    float64  `json:"damage"`
	Visible   bool     `json:"visible"`
}

// Vendor offers purchases inside the start room.
type Vendor struct {
	ID   string  `json:"id"`
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Room is one rectangle on the floor. Connections hold ids of adjacent
// rooms; edges are stored on both endpoints, but the simulation
// tolerates one-way entries when checking transitions.
type Room struct {
	ID          int      `json:"id"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Width       float64  `json:"width"`
	Height      float64  `json:"height"`
	Type        RoomType `json:"type"`
	Enemies     []*Enemy `json:"enemies"`
	Connections []int    `json:"connections"`
	Cleared     bool     `json:"cleared"`
	Vendors     []Vendor `json:"vendors,omitempty"`
	Chests      []*Chest `json:"chests,omitempty"`
	Traps       []Trap   `json:"traps,omitempty"`
	Variant     Variant  `json:"variant,omitempty"`
	Modifier    Modifier `json:"modifier,omitempty"`
}

// Center returns the room's center point.
func (r *Room) Center() Vec2 {
	return Vec2{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// StrictlyInside reports whether the point lies within the raw room
// rectangle, bounds inclusive.
func (r *Room) StrictlyInside(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// WithinPadding reports whether the point lies within the rectangle
// expanded by pad units on every side. Corridor transitions and enemy
// targeting use this leniency.
func (r *Room) WithinPadding(x, y, pad float64) bool {
	return x >= r.X-pad && x <= r.X+r.Width+pad && y >= r.Y-pad && y <= r.Y+r.Height+pad
}

// ConnectedTo reports whether other appears in this room's adjacency
// list. Callers needing bidirectional tolerance check both directions.
func (r *Room) ConnectedTo(other int) bool {
	for _, id := range r.Connections {
		if id == other {
			return true
		}
	}
	return false
}

// AliveEnemies counts living enemies, hidden ones included.
func (r *Room) AliveEnemies() int {
	n := 0
	for _, e := range r.Enemies {
		if e.Alive {
			n++
		}
	}
	return n
}

func (r *Room) overlaps(other *Room) bool {
	return r.X < other.X+other.Width && r.X+r.Width > other.X &&
		r.Y < other.Y+other.Height && r.Y+r.Height > other.Y
}

// Dungeon is one generated floor. Mutated in place during play and
// discarded on floor advance.
type Dungeon struct {
	Floor         int            `json:"floor"`
	Seed          string         `json:"seed"`
	Rooms         []*Room        `json:"rooms"`
	CurrentRoomID int            `json:"currentRoomId"`
	BossDefeated  bool           `json:"bossDefeated"`
	Theme         Theme          `json:"theme"`
	ThemeMods     ThemeModifiers `json:"themeMods"`
}

// Room returns the room with the given id or nil.
func (d *Dungeon) Room(id int) *Room {
	for _, room := range d.Rooms {
		if room.ID == id {
			return room
		}
	}
	return nil
}

// StartRoom returns the floor's entry room.
func (d *Dungeon) StartRoom() *Room {
	for _, room := range d.Rooms {
		if room.Type == RoomStart {
			return room
		}
	}
	return nil
}

// BossRoom returns the floor's boss room.
func (d *Dungeon) BossRoom() *Room {
	for _, room := range d.Rooms {
		if room.Type == RoomBoss {
			return room
		}
	}
	return nil
}

// RoomAt returns the innermost room strictly containing the point, or
// nil when the point sits in a corridor.
func (d *Dungeon) RoomAt(x, y float64) *Room {
	for _, room := range d.Rooms {
		if room.StrictlyInside(x, y) {
			return room
		}
	}
	return nil
}

func centerDistance(a, b *Room) float64 {
	ca, cb := a.Center(), b.Center()
	return math.Hypot(ca.X-cb.X, ca.Y-cb.Y)
}
