package statesync

import (
	"sort"
	"strings"

	"deepspire/server/internal/dungeon"
	"deepspire/server/internal/sim"
)

// EnemyRecord is the full wire form of one enemy, sent the first time
// a client sees it and in every full snapshot.
type EnemyRecord struct {
	ID        string  `json:"id"`
	DefID     string  `json:"defId"`
	Name      string  `json:"name"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
	Alive     bool    `json:"alive"`
	Hidden    bool    `json:"hidden,omitempty"`
	Boss      bool    `json:"boss,omitempty"`
	Rare      bool    `json:"rare,omitempty"`
	Elite     bool    `json:"elite,omitempty"`
	TargetID  string  `json:"targetId,omitempty"`
	RoomID    int     `json:"roomId"`
}

// EnemyDelta is the compact per-tick update for an already-known
// enemy.
type EnemyDelta struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Health   float64 `json:"health"`
	Alive    bool    `json:"alive"`
	Hidden   bool    `json:"hidden,omitempty"`
	TargetID string  `json:"targetId,omitempty"`
}

// RoomRecord carries room geometry and contents. Full snapshots list
// every room so clients can draw the whole minimap.
type RoomRecord struct {
	ID          int              `json:"id"`
	X           float64          `json:"x"`
	Y           float64          `json:"y"`
	Width       float64          `json:"width"`
	Height      float64          `json:"height"`
	Type        dungeon.RoomType `json:"type"`
	Connections []int            `json:"connections"`
	Cleared     bool             `json:"cleared"`
	Variant     dungeon.Variant  `json:"variant,omitempty"`
	Modifier    dungeon.Modifier `json:"modifier,omitempty"`
	Vendors     []dungeon.Vendor `json:"vendors,omitempty"`
	Chests      []ChestRecord    `json:"chests,omitempty"`
	Traps       []dungeon.Trap   `json:"traps,omitempty"`
	Enemies     []EnemyRecord    `json:"enemies,omitempty"`
}

// ChestRecord is a chest's client-visible state. Mimics are
// indistinguishable from real chests until opened.
type ChestRecord struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Tier   int     `json:"tier"`
	Locked bool    `json:"locked"`
	Open   bool    `json:"open"`
}

// CooldownEntry is one running ability cooldown, with the remaining
// time in wall-clock milliseconds so clients can render timers without
// knowing the tick rate.
type CooldownEntry struct {
	AbilityID   string `json:"abilityId"`
	RemainingMS int64  `json:"remainingMs"`
}

// PlayerCooldowns groups one player's running cooldowns.
type PlayerCooldowns struct {
	PlayerID  string          `json:"playerId"`
	Abilities []CooldownEntry `json:"abilities"`
}

// RoomDelta carries only what changes about a room after generation.
type RoomDelta struct {
	ID      int  `json:"id"`
	Cleared bool `json:"cleared"`
}

// ChestDelta flags a chest whose open state changed.
type ChestDelta struct {
	ID   string `json:"id"`
	Open bool   `json:"open"`
}

// Payload is one prepared state message. Full payloads carry the
// whole floor; deltas carry players, room flags, enemy updates, and
// full records for enemies the client has never seen (boss summons,
// mimics).
type Payload struct {
	Kind          Kind                   `json:"kind"`
	RunID         string                 `json:"runId"`
	Floor         int                    `json:"floor"`
	Theme         dungeon.Theme          `json:"theme,omitempty"`
	ThemeMods     dungeon.ThemeModifiers `json:"themeMods,omitempty"`
	InCombat      bool                   `json:"inCombat"`
	BossDefeated  bool                   `json:"bossDefeated"`
	CurrentRoomID int                    `json:"currentRoomId"`

	Players       []sim.Player       `json:"players"`
	Cooldowns     []PlayerCooldowns  `json:"cooldowns,omitempty"`
	Pets          []sim.Pet          `json:"pets,omitempty"`
	PendingLoot   []sim.LootDrop     `json:"pendingLoot,omitempty"`
	GroundEffects []sim.GroundEffect `json:"groundEffects,omitempty"`

	Rooms      []RoomRecord  `json:"rooms,omitempty"`
	RoomDeltas []RoomDelta   `json:"roomDeltas,omitempty"`
	NewEnemies []EnemyRecord `json:"newEnemies,omitempty"`
	Enemies    []EnemyDelta  `json:"enemies,omitempty"`
	Chests     []ChestDelta  `json:"chests,omitempty"`
}

func buildFull(state *sim.RunState, tick uint64) *Payload {
	payload := basePayload(state, tick, KindFull)
	payload.Theme = state.Dungeon.Theme
	payload.ThemeMods = state.Dungeon.ThemeMods
	payload.Rooms = make([]RoomRecord, 0, len(state.Dungeon.Rooms))
	for _, room := range state.Dungeon.Rooms {
		payload.Rooms = append(payload.Rooms, roomRecord(room))
	}
	return payload
}

func buildDelta(state *sim.RunState, tick uint64, known map[string]bool) *Payload {
	payload := basePayload(state, tick, KindDelta)
	for _, room := range state.Dungeon.Rooms {
		payload.RoomDeltas = append(payload.RoomDeltas, RoomDelta{ID: room.ID, Cleared: room.Cleared})
		for _, enemy := range room.Enemies {
			if known[enemy.ID] {
				payload.Enemies = append(payload.Enemies, enemyDelta(enemy))
			} else {
				payload.NewEnemies = append(payload.NewEnemies, enemyRecord(enemy))
			}
		}
		for _, chest := range room.Chests {
			payload.Chests = append(payload.Chests, ChestDelta{ID: chest.ID, Open: chest.Open})
		}
	}
	return payload
}

func basePayload(state *sim.RunState, tick uint64, kind Kind) *Payload {
	payload := &Payload{
		Kind:          kind,
		RunID:         state.RunID,
		Floor:         state.Floor,
		InCombat:      state.InCombat,
		BossDefeated:  state.Dungeon.BossDefeated,
		CurrentRoomID: state.Dungeon.CurrentRoomID,
		Players:       make([]sim.Player, 0, len(state.Players)),
	}
	for _, p := range state.Players {
		payload.Players = append(payload.Players, *p)
		if cds := playerCooldowns(state, p.ID, tick); len(cds) > 0 {
			payload.Cooldowns = append(payload.Cooldowns, PlayerCooldowns{PlayerID: p.ID, Abilities: cds})
		}
	}
	for _, pet := range state.Pets {
		payload.Pets = append(payload.Pets, *pet)
	}
	for _, drop := range state.PendingLoot {
		payload.PendingLoot = append(payload.PendingLoot, *drop)
	}
	for _, effect := range state.GroundEffects {
		payload.GroundEffects = append(payload.GroundEffects, *effect)
	}
	return payload
}

// playerCooldowns converts the player's running cooldowns into wire
// entries, sorted by ability id. Expired entries are skipped rather
// than sent at zero.
func playerCooldowns(state *sim.RunState, playerID string, tick uint64) []CooldownEntry {
	prefix := playerID + "_"
	var entries []CooldownEntry
	for key, readyAt := range state.Tracking.Cooldowns {
		if readyAt > tick && strings.HasPrefix(key, prefix) {
			entries = append(entries, CooldownEntry{
				AbilityID:   key[len(prefix):],
				RemainingMS: int64(readyAt-tick) * sim.TickMS,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].AbilityID < entries[j].AbilityID })
	return entries
}

func roomRecord(room *dungeon.Room) RoomRecord {
	record := RoomRecord{
		ID:          room.ID,
		X:           room.X,
		Y:           room.Y,
		Width:       room.Width,
		Height:      room.Height,
		Type:        room.Type,
		Connections: room.Connections,
		Cleared:     room.Cleared,
		Variant:     room.Variant,
		Modifier:    room.Modifier,
		Vendors:     room.Vendors,
		Traps:       room.Traps,
	}
	for _, chest := range room.Chests {
		record.Chests = append(record.Chests, ChestRecord{
			ID: chest.ID, X: chest.X, Y: chest.Y,
			Tier: chest.Tier, Locked: chest.Locked, Open: chest.Open,
		})
	}
	for _, enemy := range room.Enemies {
		record.Enemies = append(record.Enemies, enemyRecord(enemy))
	}
	return record
}

func enemyRecord(enemy *dungeon.Enemy) EnemyRecord {
	return EnemyRecord{
		ID:        enemy.ID,
		DefID:     enemy.DefID,
		Name:      enemy.Name,
		X:         enemy.X,
		Y:         enemy.Y,
		Health:    enemy.Health,
		MaxHealth: enemy.MaxHealth,
		Alive:     enemy.Alive,
		Hidden:    enemy.Hidden,
		Boss:      enemy.Boss,
		Rare:      enemy.Rare,
		Elite:     enemy.Elite,
		TargetID:  enemy.TargetID,
		RoomID:    enemy.RoomID,
	}
}

func enemyDelta(enemy *dungeon.Enemy) EnemyDelta {
	return EnemyDelta{
		ID:       enemy.ID,
		X:        enemy.X,
		Y:        enemy.Y,
		Health:   enemy.Health,
		Alive:    enemy.Alive,
		Hidden:   enemy.Hidden,
		TargetID: enemy.TargetID,
	}
}
