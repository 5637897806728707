// Package statesync prepares per-client state payloads: a full
// snapshot on first contact or after invalidation, a structural delta
// when something meaningful changed, and nothing at all otherwise.
// Internal tracking never appears in a payload; only fields a client
// renders feed the change hash.
package statesync

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"

	"deepspire/server/internal/sim"
)

// Kind tags a prepared payload.
type Kind string

const (
	KindFull  Kind = "full"
	KindDelta Kind = "delta"
)

// clientView is everything the synchronizer remembers about one
// client: the hash of the last state it acknowledged-by-construction,
// the enemies it has full records for, and whether the next payload
// must be a full snapshot. The three are cleared together; a view with
// a hash but a stale enemy set would produce deltas referencing
// enemies the client never saw.
type clientView struct {
	lastHash     string
	knownEnemies map[string]bool
	forceFull    bool
}

// Synchronizer tracks per-client sync state for one run. Safe for use
// from multiple connection goroutines.
type Synchronizer struct {
	mu      sync.Mutex
	clients map[string]*clientView
}

// New returns an empty synchronizer.
func New() *Synchronizer {
	return &Synchronizer{clients: make(map[string]*clientView)}
}

// Prepare returns the payload to send to the client, or nil when the
// meaningful state is unchanged since the client's last payload. The
// first call for a client, and the first call after InvalidateClient,
// always yields a full snapshot. The tick anchors cooldown remaining
// times in the payload.
func (s *Synchronizer) Prepare(clientID string, state *sim.RunState, tick uint64, forceFull bool) *Payload {
	s.mu.Lock()
	defer s.mu.Unlock()

	view, ok := s.clients[clientID]
	if !ok {
		view = &clientView{knownEnemies: make(map[string]bool), forceFull: true}
		s.clients[clientID] = view
	}

	hash := Hash(state, tick)
	full := forceFull || view.forceFull || view.lastHash == ""
	if !full && hash == view.lastHash {
		return nil
	}

	var payload *Payload
	if full {
		payload = buildFull(state, tick)
		view.knownEnemies = make(map[string]bool)
	} else {
		payload = buildDelta(state, tick, view.knownEnemies)
	}
	for _, room := range state.Dungeon.Rooms {
		for _, enemy := range room.Enemies {
			view.knownEnemies[enemy.ID] = true
		}
	}
	view.lastHash = hash
	view.forceFull = false
	return payload
}

// InvalidateClient forces the client's next payload to be a full
// snapshot. Used after reconnects, when the delta baseline is gone.
func (s *Synchronizer) InvalidateClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if view, ok := s.clients[clientID]; ok {
		view.lastHash = ""
		view.knownEnemies = make(map[string]bool)
		view.forceFull = true
	}
}

// RemoveClient forgets the client entirely.
func (s *Synchronizer) RemoveClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientID)
}

// Hash digests the meaningful state: everything a client renders, in a
// fixed field order. Positions are rounded to whole units so sub-unit
// jitter never forces a send; every other field hashes at full
// precision. Cooldowns hash as ready-at ticks, which stay constant
// while a cooldown runs down, so a mid-countdown tick is not a change.
func Hash(state *sim.RunState, tick uint64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%t|%d|%t|%d",
		state.RunID, state.Floor, state.InCombat,
		state.Dungeon.CurrentRoomID, state.Dungeon.BossDefeated,
		len(state.GroundEffects))

	for _, p := range state.Players {
		fmt.Fprintf(&b, "|P%s:%.0f,%.0f,%v,%v,%t,%s,%d,%d,%d,%s,%d,%d,%s",
			p.ID, round(p.X), round(p.Y), p.Health, p.Mana, p.Alive,
			p.TargetID, p.Gold, len(p.Buffs), len(p.Backpack),
			abilitySignature(p), p.Level, p.XP,
			cooldownSignature(state, p.ID, tick))
	}
	for _, room := range state.Dungeon.Rooms {
		fmt.Fprintf(&b, "|R%d:%t", room.ID, room.Cleared)
		for _, enemy := range room.Enemies {
			fmt.Fprintf(&b, ";E%s:%.0f,%.0f,%v,%t,%t,%s",
				enemy.ID, round(enemy.X), round(enemy.Y),
				enemy.Health, enemy.Alive, enemy.Hidden, enemy.TargetID)
		}
		for _, chest := range room.Chests {
			fmt.Fprintf(&b, ";C%s:%t", chest.ID, chest.Open)
		}
	}
	for _, pet := range state.Pets {
		fmt.Fprintf(&b, "|T%s:%.0f,%.0f,%v,%t", pet.ID, round(pet.X), round(pet.Y), pet.Health, pet.Alive)
	}
	for _, effect := range state.GroundEffects {
		fmt.Fprintf(&b, "|G%s:%.0f,%.0f,%v,%d", effect.ID, round(effect.X), round(effect.Y), effect.Radius, effect.DurationMS)
	}
	for _, drop := range state.PendingLoot {
		fmt.Fprintf(&b, "|L%s", drop.ID)
	}

	h := fnv.New64a()
	h.Write([]byte(b.String()))
	return fmt.Sprintf("%016x", h.Sum64())
}

func round(v float64) float64 {
	return math.Round(v)
}

func abilitySignature(p *sim.Player) string {
	parts := make([]string, 0, len(p.Abilities))
	for _, a := range p.Abilities {
		parts = append(parts, fmt.Sprintf("%s.%d", a.ID, a.Rank))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// cooldownSignature lists the player's running cooldowns as sorted
// "ability:readyAt" pairs. Keying on the ready-at tick rather than the
// remaining time keeps the signature constant between cooldown start
// and expiry.
func cooldownSignature(state *sim.RunState, playerID string, tick uint64) string {
	prefix := playerID + "_"
	var parts []string
	for key, readyAt := range state.Tracking.Cooldowns {
		if readyAt > tick && strings.HasPrefix(key, prefix) {
			parts = append(parts, fmt.Sprintf("%s:%d", key[len(prefix):], readyAt))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
