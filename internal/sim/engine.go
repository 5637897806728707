package sim

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"deepspire/server/internal/dungeon"
	"deepspire/server/internal/rng"
	"deepspire/server/logging"
)

// Engine owns one run's authoritative state. Commands are buffered
// from any goroutine and applied at the start of the next Step; Step
// itself must only ever run on the run's single simulation goroutine,
// which is what makes invariants like "ambush fires exactly once" and
// "floor advance clears tracking atomically" hold without locks.
type Engine struct {
	state     *RunState
	generator *dungeon.Generator
	publisher logging.Publisher
	combatRNG *rng.RNG

	pendingMu     sync.Mutex
	pending       []Command
	pendingJoins  []*Player
	pendingLeaves []string

	tick   uint64
	now    time.Time
	lootID uint64
	ended  bool

	stats atomic.Pointer[RunStats]
}

// RunStats is a read-only snapshot of run progress, republished after
// every step. Anything outside the run goroutine (diagnostics, reward
// claims) reads this instead of the live state.
type RunStats struct {
	Tick    uint64
	Floor   int
	Players int
	Ended   bool
}

// NewEngine creates a run on floor 1 with the given party.
func NewEngine(runID string, players []*Player, gen *dungeon.Generator, pub logging.Publisher) *Engine {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	e := &Engine{
		generator: gen,
		publisher: pub,
		combatRNG: rng.NewFromString(runID + "_combat"),
	}
	state := &RunState{
		RunID:    runID,
		Seed:     runID,
		Floor:    1,
		Players:  players,
		Tracking: NewTracking(),
		Scaling:  PartyScaling{PartySize: len(players)},
	}
	e.state = state
	state.Dungeon = gen.Generate(runID, state.Floor, len(players), state.AvgItemPower())
	e.placePartyAtStart()
	e.publishStats()
	return e
}

// Stats returns the last published snapshot. Safe from any goroutine.
func (e *Engine) Stats() RunStats {
	return *e.stats.Load()
}

func (e *Engine) publishStats() {
	e.stats.Store(&RunStats{
		Tick:    e.tick,
		Floor:   e.state.Floor,
		Players: len(e.state.Players),
		Ended:   e.ended,
	})
}

// State exposes the authoritative state for snapshotting. Callers must
// only read it between steps on the run goroutine.
func (e *Engine) State() *RunState {
	return e.state
}

// Tick returns the current tick counter.
func (e *Engine) Tick() uint64 {
	return e.tick
}

// Enqueue buffers a command for the next tick. Safe from any
// goroutine.
func (e *Engine) Enqueue(cmd Command) {
	e.pendingMu.Lock()
	e.pending = append(e.pending, cmd)
	e.pendingMu.Unlock()
}

// EnqueueJoin buffers a mid-run join; the player enters the world at
// the start of the next tick. Safe from any goroutine.
func (e *Engine) EnqueueJoin(p *Player) {
	e.pendingMu.Lock()
	e.pendingJoins = append(e.pendingJoins, p)
	e.pendingMu.Unlock()
}

// EnqueueLeave buffers a departure for the next tick. Safe from any
// goroutine.
func (e *Engine) EnqueueLeave(playerID string) {
	e.pendingMu.Lock()
	e.pendingLeaves = append(e.pendingLeaves, playerID)
	e.pendingMu.Unlock()
}

// AddPlayer joins a player mid-run and rescales the party.
func (e *Engine) AddPlayer(p *Player) {
	e.state.Players = append(e.state.Players, p)
	e.state.Scaling.PartySize = len(e.state.Players)
	e.placePlayerAtStart(p)
}

// RemovePlayer drops a player and their tracking entries.
func (e *Engine) RemovePlayer(playerID string) {
	players := e.state.Players[:0]
	for _, p := range e.state.Players {
		if p.ID != playerID {
			players = append(players, p)
		}
	}
	e.state.Players = players
	e.state.Scaling.PartySize = len(players)
	pets := e.state.Pets[:0]
	for _, pet := range e.state.Pets {
		if pet.OwnerID != playerID {
			pets = append(pets, pet)
		}
	}
	e.state.Pets = pets
	delete(e.state.Tracking.PlayerMovement, playerID)
	delete(e.state.Tracking.RespawnTicks, playerID)
	for key := range e.state.Tracking.Cooldowns {
		if len(key) > len(playerID) && key[:len(playerID)] == playerID && key[len(playerID)] == '_' {
			delete(e.state.Tracking.Cooldowns, key)
		}
	}
}

// Step advances the run by one tick: queued input first, then world
// simulation. Returns the gameplay events produced. Once the run has
// ended, further steps are no-ops until the registry stops the loop.
func (e *Engine) Step(now time.Time) []Event {
	if e.ended {
		return nil
	}
	e.tick++
	e.now = now
	dt := float64(TickMS) / 1000.0

	events := make([]Event, 0, 4)

	e.pendingMu.Lock()
	commands := e.pending
	joins := e.pendingJoins
	leaves := e.pendingLeaves
	e.pending = nil
	e.pendingJoins = nil
	e.pendingLeaves = nil
	e.pendingMu.Unlock()

	for _, p := range joins {
		e.AddPlayer(p)
	}
	for _, id := range leaves {
		e.RemovePlayer(id)
	}

	for _, cmd := range commands {
		events = append(events, e.applyCommand(cmd)...)
	}

	e.advanceBuffs()
	events = append(events, e.movePlayers(dt)...)
	e.updateCurrentRoom()
	events = append(events, e.checkAmbushes()...)
	e.advancePatrols(dt)
	events = append(events, e.runEnemyAI(dt)...)
	events = append(events, e.tickPets(dt)...)
	events = append(events, e.tickRoomModifiers()...)
	events = append(events, e.tickBossPhases()...)
	events = append(events, e.tickGroundEffects(dt)...)
	events = append(events, e.refreshRoomsAndCombat()...)
	events = append(events, e.processRespawns()...)
	events = append(events, e.checkPartyDefeat()...)

	for _, ev := range events {
		e.publishEvent(ev)
	}
	e.publishStats()
	return events
}

// processRespawns revives dead players whose delay elapsed. The life
// was already spent at death time; a death with no lives left never
// schedules a respawn and is permanent.
func (e *Engine) processRespawns() []Event {
	var events []Event
	for _, p := range e.state.Players {
		readyAt, ok := e.state.Tracking.RespawnTicks[p.ID]
		if !ok || p.Alive || e.tick < readyAt {
			continue
		}
		delete(e.state.Tracking.RespawnTicks, p.ID)
		p.Alive = true
		p.Health = p.MaxHealth
		p.Mana = p.MaxMana
		p.TargetID = ""
		p.Buffs = nil
		e.placePlayerAtStart(p)
		events = append(events, Event{Type: EventPlayerRespawn, Data: map[string]any{"playerId": p.ID}})
	}
	return events
}

// checkPartyDefeat ends the run when every player is dead with no
// respawn pending. The event goes out once; the transport layer reacts
// by tearing the run down.
func (e *Engine) checkPartyDefeat() []Event {
	if len(e.state.Players) == 0 {
		return nil
	}
	for _, p := range e.state.Players {
		if p.Alive {
			return nil
		}
		if _, pending := e.state.Tracking.RespawnTicks[p.ID]; pending {
			return nil
		}
	}
	e.ended = true
	return []Event{{Type: EventRunEnded, Data: map[string]any{"reason": "party_defeated"}}}
}

// tickPets keeps each pet at its owner's heel and lets it bite the
// owner's current target. Pets deal support damage; enemies never
// target them.
func (e *Engine) tickPets(dt float64) []Event {
	var events []Event
	for _, pet := range e.state.Pets {
		if !pet.Alive {
			continue
		}
		owner := e.state.PlayerByID(pet.OwnerID)
		if owner == nil {
			pet.Alive = false
			continue
		}
		pet.RoomID = owner.RoomID

		var quarry *dungeon.Enemy
		if owner.Alive && owner.TargetID != "" {
			if enemy := e.state.EnemyByID(owner.TargetID); enemy != nil && enemy.Alive && !enemy.Hidden {
				quarry = enemy
			}
		}
		if quarry != nil {
			dist := math.Hypot(quarry.X-pet.X, quarry.Y-pet.Y)
			if dist > petAttackRange {
				pet.X += (quarry.X - pet.X) / dist * petMoveSpeed * dt
				pet.Y += (quarry.Y - pet.Y) / dist * petMoveSpeed * dt
				continue
			}
			key := pet.ID + "_attack"
			if readyAt, ok := e.state.Tracking.Cooldowns[key]; ok && e.tick < readyAt {
				continue
			}
			e.state.Tracking.Cooldowns[key] = e.tick + petAttackIntervalT
			e.damageEnemy(quarry, pet.Damage, owner, &events)
			continue
		}

		dist := math.Hypot(owner.X-pet.X, owner.Y-pet.Y)
		if dist > petFollowDistance {
			pet.X += (owner.X - pet.X) / dist * petMoveSpeed * dt
			pet.Y += (owner.Y - pet.Y) / dist * petMoveSpeed * dt
		}
	}
	return events
}

// advanceBuffs counts down timed buffs. Buffs with a negative
// remaining time are indefinite (room modifiers) and only removed
// explicitly.
func (e *Engine) advanceBuffs() {
	for _, p := range e.state.Players {
		kept := p.Buffs[:0]
		for _, b := range p.Buffs {
			if b.RemainingMS < 0 {
				kept = append(kept, b)
				continue
			}
			b.RemainingMS -= TickMS
			if b.RemainingMS > 0 {
				kept = append(kept, b)
			}
		}
		p.Buffs = kept
	}
}

// movePlayers applies buffered movement intent, enforces the room
// transition policy, and applies trap contact damage.
func (e *Engine) movePlayers(dt float64) []Event {
	var events []Event
	speed := playerMoveSpeed
	if e.state.Dungeon.ThemeMods.SlowMovement {
		speed *= 0.75
	}

	for _, p := range e.state.Players {
		if !p.Alive {
			continue
		}
		intent, ok := e.state.Tracking.PlayerMovement[p.ID]
		if !ok || (intent.X == 0 && intent.Y == 0) {
			continue
		}
		length := math.Hypot(intent.X, intent.Y)
		dx, dy := intent.X/length, intent.Y/length

		oldX, oldY := p.X, p.Y
		p.X += dx * speed * dt
		p.Y += dy * speed * dt

		if target := e.state.Dungeon.RoomAt(p.X, p.Y); target != nil {
			if target.ID != p.RoomID && e.transitionAllowed(p, target) {
				e.changeRoom(p, target)
			}
		} else if !e.corridorPositionAllowed(p) {
			p.X, p.Y = oldX, oldY
		}

		events = append(events, e.applyTrapContact(p, dt)...)
	}
	return events
}

// transitionAllowed implements the permissive OR-policy: strictly
// inside the target, connected in either direction, or the current
// room already cleared. The bidirectional tolerance is deliberate so
// one-way adjacency bookkeeping never blocks progress.
func (e *Engine) transitionAllowed(p *Player, target *dungeon.Room) bool {
	if target.StrictlyInside(p.X, p.Y) {
		return true
	}
	current := e.state.Dungeon.Room(p.RoomID)
	if current == nil {
		return true
	}
	if current.ConnectedTo(target.ID) || target.ConnectedTo(current.ID) {
		return true
	}
	return current.Cleared
}

// corridorPositionAllowed gates corridor travel: a player leaving their
// current room's padded zone may only enter the padded zone of a room
// the transition policy permits. Points in nobody's padding are always
// fine, so a sparse layout never strands anyone.
func (e *Engine) corridorPositionAllowed(p *Player) bool {
	current := e.state.Dungeon.Room(p.RoomID)
	if current == nil || current.Cleared {
		return true
	}
	if current.WithinPadding(p.X, p.Y, dungeon.CorridorPadding) {
		return true
	}
	entering := false
	for _, room := range e.state.Dungeon.Rooms {
		if room.ID == current.ID || !room.WithinPadding(p.X, p.Y, dungeon.CorridorPadding) {
			continue
		}
		entering = true
		if e.transitionAllowed(p, room) {
			return true
		}
	}
	return !entering
}

func (e *Engine) changeRoom(p *Player, target *dungeon.Room) {
	e.removeRoomModifier(p)
	p.RoomID = target.ID
	e.applyRoomModifier(p, target)
}

func (e *Engine) applyTrapContact(p *Player, dt float64) []Event {
	room := e.state.Dungeon.Room(p.RoomID)
	if room == nil {
		return nil
	}
	var events []Event
	for _, trap := range room.Traps {
		if math.Hypot(p.X-trap.X, p.Y-trap.Y) > trapTriggerRadius {
			continue
		}
		e.damagePlayer(p, trap.Damage*dt, &events)
	}
	return events
}

// updateCurrentRoom tracks the room the party is considered in: the
// room strictly containing the first living player, falling back to
// the previous value while everyone is in corridors.
func (e *Engine) updateCurrentRoom() {
	for _, p := range e.state.Players {
		if !p.Alive {
			continue
		}
		if room := e.state.Dungeon.RoomAt(p.X, p.Y); room != nil {
			e.state.Dungeon.CurrentRoomID = room.ID
			return
		}
	}
}

// checkAmbushes reveals hidden enemies when a player nears an ambush
// room's center. The trigger fires at most once per room per run and
// reveals every currently-alive hidden enemy atomically.
func (e *Engine) checkAmbushes() []Event {
	var events []Event
	for _, room := range e.state.Dungeon.Rooms {
		if room.Variant != dungeon.VariantAmbush || e.state.Tracking.AmbushTriggered[room.ID] {
			continue
		}
		center := room.Center()
		triggered := false
		for _, p := range e.state.Players {
			if !p.Alive {
				continue
			}
			if math.Hypot(p.X-center.X, p.Y-center.Y) <= AmbushRevealRadius {
				triggered = true
				break
			}
		}
		if !triggered {
			continue
		}
		e.state.Tracking.AmbushTriggered[room.ID] = true
		revealed := make([]string, 0, len(room.Enemies))
		for _, enemy := range room.Enemies {
			if enemy.Alive && enemy.Hidden {
				enemy.Hidden = false
				revealed = append(revealed, enemy.ID)
			}
		}
		events = append(events, Event{
			Type: EventAmbushRevealed,
			Data: map[string]any{"roomId": room.ID, "enemyIds": revealed},
		})
	}
	return events
}

// refreshRoomsAndCombat marks rooms cleared when their last enemy dies
// and recomputes the in-combat flag.
func (e *Engine) refreshRoomsAndCombat() []Event {
	var events []Event
	inCombat := false
	for _, room := range e.state.Dungeon.Rooms {
		if !room.Cleared && len(room.Enemies) > 0 && room.AliveEnemies() == 0 {
			room.Cleared = true
			events = append(events, Event{Type: EventRoomCleared, Data: map[string]any{"roomId": room.ID}})
		}
		if room.Cleared {
			continue
		}
		for _, enemy := range room.Enemies {
			if enemy.Alive && enemy.TargetID != "" {
				inCombat = true
				break
			}
		}
	}
	e.state.InCombat = inCombat
	return events
}

// damagePlayer applies armor-mitigated damage and handles death.
func (e *Engine) damagePlayer(p *Player, raw float64, events *[]Event) {
	if !p.Alive || raw <= 0 {
		return
	}
	mitigated := raw * 100 / (100 + math.Max(0, p.Armor()))
	p.Health -= mitigated
	if p.Health <= 0 {
		p.Health = 0
		p.Alive = false
		if p.Lives > 0 {
			p.Lives--
			e.state.Tracking.RespawnTicks[p.ID] = e.tick + respawnDelayTicks
		}
		deathAt := e.now
		if deathAt.IsZero() {
			deathAt = time.Now()
		}
		e.state.Tracking.PlayerDeathTimes[p.ID] = deathAt.UnixMilli()
		*events = append(*events, Event{Type: EventPlayerDied, Data: map[string]any{"playerId": p.ID}})
	}
}

// damageEnemy applies damage, honoring invulnerability, and handles
// death, loot, and boss defeat.
func (e *Engine) damageEnemy(enemy *dungeon.Enemy, raw float64, killer *Player, events *[]Event) {
	if !enemy.Alive || enemy.Invulnerable || raw <= 0 {
		return
	}
	enemy.Health -= raw
	if enemy.Health > 0 {
		return
	}
	enemy.Health = 0
	enemy.Alive = false
	enemy.TargetID = ""
	delete(e.state.Tracking.AggroTimers, enemy.ID)
	delete(e.state.Tracking.LeashTimers, enemy.ID)
	delete(e.state.Tracking.ChargeStates, enemy.ID)

	if killer != nil {
		killer.XP += enemy.XP
		for killer.XP >= killer.Level*100 && killer.Level < maxLevel {
			killer.XP -= killer.Level * 100
			killer.Level++
		}
	}
	*events = append(*events, Event{Type: EventEnemyKilled, Data: map[string]any{"enemyId": enemy.ID}})
	e.dropLoot(enemy, events)

	if enemy.Boss {
		e.state.Dungeon.BossDefeated = true
		*events = append(*events, Event{Type: EventBossDefeated, Data: map[string]any{"bossId": enemy.ID}})
	}
}

// dropLoot rolls the enemy's drop on the floor's loot stream, keyed by
// the enemy id so layout rolls stay untouched.
func (e *Engine) dropLoot(enemy *dungeon.Enemy, events *[]Event) {
	r := rng.ForLoot(e.state.RunID, e.state.Floor, enemy.ID)
	if !enemy.Rare && !enemy.Boss && !r.Chance(0.35) {
		return
	}
	gold := int(float64(enemy.Gold) * e.state.Dungeon.ThemeMods.GoldMultiplier)
	e.lootID++
	drop := &LootDrop{
		ID:     fmt.Sprintf("loot-%d", e.lootID),
		Gold:   gold,
		X:      enemy.X,
		Y:      enemy.Y,
		RoomID: enemy.RoomID,
	}
	if enemy.Rare || enemy.Boss || r.Chance(0.2) {
		tier := 1 + e.state.Floor/2
		drop.Item = Item{
			ID:    fmt.Sprintf("item-%d", e.lootID),
			Name:  fmt.Sprintf("Tier %d Relic", tier),
			Slot:  rng.Pick(r, []string{"weapon", "armor", "trinket"}),
			Power: float64(tier) * r.NextFloat(8, 14),
		}
	}
	e.state.PendingLoot = append(e.state.PendingLoot, drop)
	*events = append(*events, Event{Type: EventLootDropped, Data: map[string]any{"lootId": drop.ID, "roomId": drop.RoomID}})
}

func (e *Engine) placePartyAtStart() {
	for _, p := range e.state.Players {
		e.placePlayerAtStart(p)
	}
	for _, pet := range e.state.Pets {
		if owner := e.state.PlayerByID(pet.OwnerID); owner != nil {
			pet.X, pet.Y = owner.X+20, owner.Y+20
			pet.RoomID = owner.RoomID
		}
	}
	if start := e.state.Dungeon.StartRoom(); start != nil {
		e.state.Dungeon.CurrentRoomID = start.ID
	}
}

func (e *Engine) placePlayerAtStart(p *Player) {
	start := e.state.Dungeon.StartRoom()
	if start == nil {
		return
	}
	center := start.Center()
	offset := float64(len(e.state.Players)) * 24
	p.X = center.X + offset
	p.Y = center.Y
	p.RoomID = start.ID
	e.applyRoomModifier(p, start)
}

func (e *Engine) publishEvent(ev Event) {
	severity := logging.SeverityInfo
	if ev.Type == EventActionRejected {
		severity = logging.SeverityDebug
	}
	e.publisher.Publish(context.Background(), logging.Event{
		Type:     logging.EventType("sim." + string(ev.Type)),
		Tick:     e.tick,
		Severity: severity,
		Category: logging.CategoryCombat,
		Payload:  ev.Data,
		RunID:    e.state.RunID,
		Actor:    logging.EntityRef{ID: ev.PlayerID, Kind: logging.EntityKindPlayer},
	})
}
