package sim

import (
	"deepspire/server/internal/content"
	"deepspire/server/internal/dungeon"
)

// Tick cadence. Every duration in the simulation is expressed in ticks
// or milliseconds divisible by TickMS.
const (
	TickRate = 10
	TickMS   = 1000 / TickRate
)

const (
	playerMoveSpeed = 240.0

	// Interaction ranges, world units.
	AmbushRevealRadius = 60.0
	ChestOpenRange     = 80.0
	VendorRange        = 120.0
	LootCollectRange   = 100.0
	trapTriggerRadius  = 45.0

	// AI timing, ticks.
	aggroDelayTicks       = 8
	patrolAggroDelayTicks = 3
	leashTimeoutTicks     = 50
	chargeWindupTicks     = 12

	backpackCapacity = 20
	maxLevel         = 50

	// Respawn and pet behavior, ticks and world units.
	respawnDelayTicks  = 50
	petFollowDistance  = 60.0
	petAttackRange     = 45.0
	petMoveSpeed       = 220.0
	petAttackIntervalT = 10
)

// Buff is a temporary stat delta. Effective stats are always derived
// from base values plus buff deltas, so removing a buff restores the
// player's stats exactly. A negative RemainingMS marks an indefinite
// buff (room modifiers) removed only by leaving the room.
type Buff struct {
	ID          string  `json:"id"`
	RemainingMS int64   `json:"remainingMs"`
	Armor       float64 `json:"armor,omitempty"`
	Resist      float64 `json:"resist,omitempty"`
	Crit        float64 `json:"crit,omitempty"`
	Stealth     bool    `json:"stealth,omitempty"`
}

// Ability is one learned ability at a rank. Rank scales damage and
// healing by 25% per rank past the first.
type Ability struct {
	ID   string `json:"id"`
	Rank int    `json:"rank"`
}

// Item is an equippable or purchasable item.
type Item struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Slot  string  `json:"slot,omitempty"`
	Power float64 `json:"power"`
	Price int     `json:"price,omitempty"`
}

// Player is one party member's live state.
type Player struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ClassID string `json:"classId"`

	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	RoomID int     `json:"roomId"`

	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
	Mana      float64 `json:"mana"`
	MaxMana   float64 `json:"maxMana"`
	Alive     bool    `json:"alive"`
	Lives     int     `json:"lives"`

	Level int `json:"level"`
	XP    int `json:"xp"`
	Gold  int `json:"gold"`

	BaseArmor  float64 `json:"baseArmor"`
	BaseResist float64 `json:"baseResist"`
	BaseCrit   float64 `json:"baseCrit"`

	TargetID  string          `json:"targetId,omitempty"`
	Abilities []Ability       `json:"abilities"`
	Backpack  []Item          `json:"backpack"`
	Equipment map[string]Item `json:"equipment"`
	Buffs     []Buff          `json:"buffs"`
}

// NewPlayer builds a player from a class definition with full
// resources and rank-1 abilities.
func NewPlayer(id, name string, class *content.ClassDefinition) *Player {
	p := &Player{
		ID:         id,
		Name:       name,
		ClassID:    class.ID,
		Health:     class.MaxHealth,
		MaxHealth:  class.MaxHealth,
		Mana:       class.MaxMana,
		MaxMana:    class.MaxMana,
		Alive:      true,
		Lives:      3,
		Level:      1,
		BaseArmor:  class.Armor,
		BaseResist: class.Resist,
		BaseCrit:   class.Crit,
		Equipment:  make(map[string]Item),
	}
	for _, abilityID := range class.Abilities {
		p.Abilities = append(p.Abilities, Ability{ID: abilityID, Rank: 1})
	}
	return p
}

// Armor is the effective armor: base, armor-slot equipment, buffs.
func (p *Player) Armor() float64 {
	armor := p.BaseArmor
	if item, ok := p.Equipment["armor"]; ok {
		armor += item.Power
	}
	for _, b := range p.Buffs {
		armor += b.Armor
	}
	return armor
}

// Resist is the effective magic resistance.
func (p *Player) Resist() float64 {
	resist := p.BaseResist
	for _, b := range p.Buffs {
		resist += b.Resist
	}
	return resist
}

// Crit is the effective critical strike chance, clamped to [0,1].
func (p *Player) Crit() float64 {
	crit := p.BaseCrit
	if item, ok := p.Equipment["trinket"]; ok {
		crit += item.Power / 100
	}
	for _, b := range p.Buffs {
		crit += b.Crit
	}
	if crit < 0 {
		return 0
	}
	if crit > 1 {
		return 1
	}
	return crit
}

// Stealthed reports whether any active buff grants stealth.
func (p *Player) Stealthed() bool {
	for _, b := range p.Buffs {
		if b.Stealth {
			return true
		}
	}
	return false
}

// HasBuff reports whether the player carries the buff.
func (p *Player) HasBuff(id string) bool {
	for _, b := range p.Buffs {
		if b.ID == id {
			return true
		}
	}
	return false
}

// AbilityByID returns the player's learned ability or nil.
func (p *Player) AbilityByID(id string) *Ability {
	for i := range p.Abilities {
		if p.Abilities[i].ID == id {
			return &p.Abilities[i]
		}
	}
	return nil
}

// EquippedPower sums the power of everything the player wears.
func (p *Player) EquippedPower() float64 {
	total := 0.0
	for _, item := range p.Equipment {
		total += item.Power
	}
	return total
}

// Pet is a companion bound to a player.
type Pet struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"ownerId"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	RoomID    int     `json:"roomId"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
	Damage    float64 `json:"damage"`
	Alive     bool    `json:"alive"`
}

// GroundEffect is a transient area hazard spawned by boss phases.
type GroundEffect struct {
	ID         string  `json:"id"`
	Kind       string  `json:"kind"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Radius     float64 `json:"radius"`
	DurationMS int64   `json:"durationMs"`
	DamagePerS float64 `json:"damagePerS"`
	RoomID     int     `json:"roomId"`
}

// LootDrop is an uncollected drop on the floor.
type LootDrop struct {
	ID     string  `json:"id"`
	Gold   int     `json:"gold"`
	Item   Item    `json:"item,omitempty"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	RoomID int     `json:"roomId"`
}

// PartyScaling captures the inputs generation scales difficulty by.
// Recomputed at run start and on every floor advance, never mid-floor.
type PartyScaling struct {
	PartySize    int     `json:"partySize"`
	AvgItemPower float64 `json:"avgItemPower"`
}

// RunState is the authoritative state of one run. Owned by the run's
// simulation goroutine; nothing outside the engine mutates it.
type RunState struct {
	RunID string `json:"runId"`
	Seed  string `json:"seed"`
	Floor int    `json:"floor"`

	Players []*Player        `json:"players"`
	Pets    []*Pet           `json:"pets,omitempty"`
	Dungeon *dungeon.Dungeon `json:"dungeon"`

	PendingLoot   []*LootDrop     `json:"pendingLoot,omitempty"`
	GroundEffects []*GroundEffect `json:"groundEffects,omitempty"`
	InCombat      bool            `json:"inCombat"`

	Tracking *Tracking    `json:"-"`
	Scaling  PartyScaling `json:"scaling"`
}

// PlayerByID returns the player or nil.
func (s *RunState) PlayerByID(id string) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// EnemyByID scans every room for the enemy.
func (s *RunState) EnemyByID(id string) *dungeon.Enemy {
	for _, room := range s.Dungeon.Rooms {
		for _, enemy := range room.Enemies {
			if enemy.ID == id {
				return enemy
			}
		}
	}
	return nil
}

// AvgItemPower averages equipped power across the party.
func (s *RunState) AvgItemPower() float64 {
	if len(s.Players) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range s.Players {
		total += p.EquippedPower()
	}
	return total / float64(len(s.Players))
}
