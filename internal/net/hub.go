// Package net is the transport layer: it owns WebSocket subscribers,
// translates client messages into simulation commands, and fans tick
// output back out as full or delta state updates. It never mutates
// run state directly; everything goes through the engine's queues.
package net

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"deepspire/server/internal/attest"
	"deepspire/server/internal/content"
	"deepspire/server/internal/save"
	"deepspire/server/internal/sim"
	"deepspire/server/internal/statesync"
	"deepspire/server/logging"
)

const (
	writeWait         = 10 * time.Second
	heartbeatInterval = 2 * time.Second
	disconnectAfter   = 3 * heartbeatInterval

	// heartbeatSweepTicks spaces out stale-connection sweeps; at 10 Hz
	// this is once a second.
	heartbeatSweepTicks = 10

	// rewardPerFloor is the attested reward amount per floor reached.
	rewardPerFloor = 100
)

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex

	playerID string
	runID    string
	state    *ConnState

	lastHeartbeat time.Time
	lastRTT       time.Duration
}

// writeJSON sends one message under the subscriber's write lock with a
// deadline, so a stalled client can never block a tick.
func (s *subscriber) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// runChannel groups one run's subscribers with its sync state and the
// latest save checkpoint per player, refreshed every tick on the run
// goroutine so the save endpoint never reads live engine state.
type runChannel struct {
	sync        *statesync.Synchronizer
	subscribers map[string]*subscriber
	saves       map[string]*save.SaveData
}

// Hub connects WebSocket clients to live runs.
type Hub struct {
	mu      sync.Mutex
	runs    map[string]*runChannel
	players map[string]string // playerID -> runID
	wallets map[string]string // playerID -> reward wallet

	registry  *sim.Registry
	rewards   *attest.SafeService
	publisher logging.Publisher
	nextID    atomic.Uint64
}

// NewHub creates a hub over the run registry. A nil rewards service
// behaves as a permanently empty pool.
func NewHub(registry *sim.Registry, rewards *attest.SafeService, pub logging.Publisher) *Hub {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if rewards == nil {
		rewards = attest.NewSafeService(nil)
	}
	h := &Hub{
		runs:      make(map[string]*runChannel),
		players:   make(map[string]string),
		wallets:   make(map[string]string),
		registry:  registry,
		rewards:   rewards,
		publisher: pub,
	}
	registry.SetOnEnd(h.removeRun)
	return h
}

// removeRun releases the hub's per-run state after registry teardown.
func (h *Hub) removeRun(runID string) {
	h.mu.Lock()
	channel := h.runs[runID]
	delete(h.runs, runID)
	for playerID := range h.players {
		if h.players[playerID] == runID {
			delete(h.players, playerID)
			delete(h.wallets, playerID)
		}
	}
	h.mu.Unlock()

	if channel != nil {
		for _, sub := range channel.subscribers {
			sub.state.Close()
			sub.conn.Close()
		}
	}
}

// Join creates a run (empty RunID) or joins an existing one. The
// player enters the simulation immediately; state starts flowing once
// the WebSocket attaches.
func (h *Hub) Join(req joinRequest) (joinResponse, error) {
	var player *sim.Player
	playerID := fmt.Sprintf("player-%d", h.nextID.Add(1))

	switch {
	case req.Save != nil:
		if err := req.Save.Validate(); err != nil {
			return joinResponse{}, fmt.Errorf("invalid save: %w", err)
		}
		player = req.Save.ToPlayer(playerID)
	default:
		class := content.ClassByID(req.ClassID)
		if class == nil {
			return joinResponse{}, fmt.Errorf("unknown class %q", req.ClassID)
		}
		name := req.Name
		if name == "" {
			name = playerID
		}
		player = sim.NewPlayer(playerID, name, class)
	}

	wallet := req.Wallet
	if wallet == "" && req.Save != nil {
		wallet = req.Save.Wallet
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
		h.mu.Lock()
		h.runs[runID] = &runChannel{
			sync:        statesync.New(),
			subscribers: make(map[string]*subscriber),
			saves:       make(map[string]*save.SaveData),
		}
		h.players[playerID] = runID
		if wallet != "" {
			h.wallets[playerID] = wallet
		}
		h.mu.Unlock()
		h.registry.Create(runID, []*sim.Player{player}, h.tickBroadcast(runID))
	} else {
		managed := h.registry.Get(runID)
		if managed == nil {
			return joinResponse{}, fmt.Errorf("unknown run %q", runID)
		}
		h.mu.Lock()
		channel := h.runs[runID]
		if channel == nil {
			h.mu.Unlock()
			return joinResponse{}, fmt.Errorf("unknown run %q", runID)
		}
		h.players[playerID] = runID
		if wallet != "" {
			h.wallets[playerID] = wallet
		}
		h.mu.Unlock()
		managed.Engine.EnqueueJoin(player)
	}

	h.publisher.Publish(context.Background(), logging.Event{
		Type:     "net.join",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		RunID:    runID,
		Actor:    logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
	})
	return joinResponse{RunID: runID, PlayerID: playerID, TickRate: sim.TickRate}, nil
}

// Subscribe attaches a WebSocket to a joined player. A reconnect
// replaces the previous connection and forces the next payload to be
// a full snapshot, since the client's delta baseline is gone.
func (h *Hub) Subscribe(playerID string, conn *websocket.Conn) (*subscriber, bool) {
	h.mu.Lock()
	runID, ok := h.players[playerID]
	if !ok {
		h.mu.Unlock()
		return nil, false
	}
	channel := h.runs[runID]
	if channel == nil {
		h.mu.Unlock()
		return nil, false
	}

	if existing, ok := channel.subscribers[playerID]; ok {
		// A replaced connection is dropped through the normal path
		// later; its registry count is balanced when Drop fires.
		existing.conn.Close()
	}

	sub := &subscriber{
		conn:          conn,
		playerID:      playerID,
		runID:         runID,
		state:         NewConnState(),
		lastHeartbeat: time.Now(),
	}
	sub.state.Connecting()
	sub.state.Settled()
	channel.subscribers[playerID] = sub
	channel.sync.InvalidateClient(playerID)
	h.mu.Unlock()

	// Every socket attach counts, so a reconnect after a transport
	// drop cancels any pending grace teardown.
	h.registry.PlayerConnected(runID)
	return sub, true
}

// Drop detaches a subscriber after a transport failure. The player
// stays in the simulation so the run survives a reconnect window.
func (h *Hub) Drop(sub *subscriber) {
	if !sub.state.Dropped() {
		return
	}
	h.detach(sub)
	h.registry.PlayerDisconnected(sub.runID)
}

// Leave is an intentional departure: the player is removed from the
// simulation and their sync state discarded.
func (h *Hub) Leave(sub *subscriber) {
	sub.state.Close()
	h.detach(sub)

	if managed := h.registry.Get(sub.runID); managed != nil {
		managed.Engine.EnqueueLeave(sub.playerID)
	}
	h.mu.Lock()
	delete(h.players, sub.playerID)
	if channel := h.runs[sub.runID]; channel != nil {
		channel.sync.RemoveClient(sub.playerID)
	}
	h.mu.Unlock()
	h.registry.PlayerDisconnected(sub.runID)
}

func (h *Hub) detach(sub *subscriber) {
	h.mu.Lock()
	if channel := h.runs[sub.runID]; channel != nil {
		if current, ok := channel.subscribers[sub.playerID]; ok && current == sub {
			delete(channel.subscribers, sub.playerID)
		}
	}
	h.mu.Unlock()
	sub.conn.Close()
}

// HandleMessage processes one client message on the connection's read
// goroutine. Unknown types are dropped.
func (h *Hub) HandleMessage(sub *subscriber, payload []byte) {
	var msg clientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.publisher.Publish(context.Background(), logging.Event{
			Type:     "net.malformed_message",
			Severity: logging.SeverityDebug,
			Category: logging.CategorySystem,
			Actor:    logging.EntityRef{ID: sub.playerID, Kind: logging.EntityKindPlayer},
		})
		return
	}

	if msg.Type == msgPing {
		now := time.Now()
		h.mu.Lock()
		sub.lastHeartbeat = now
		if msg.SentAt > 0 {
			if rtt := now.Sub(time.UnixMilli(msg.SentAt)); rtt >= 0 && rtt < 5*time.Second {
				sub.lastRTT = rtt
			}
		}
		rtt := sub.lastRTT
		h.mu.Unlock()

		sub.writeJSON(pongMessage{
			Type:       msgPong,
			ServerTime: now.UnixMilli(),
			ClientTime: msg.SentAt,
			RTTMillis:  rtt.Milliseconds(),
		})
		return
	}

	cmd := msg.command(sub.playerID)
	if cmd == nil {
		return
	}
	if managed := h.registry.Get(sub.runID); managed != nil {
		managed.Engine.Enqueue(*cmd)
	}
}

// tickBroadcast builds the per-run tick callback: prepare a payload
// per subscriber, refresh save checkpoints, route events, and sweep
// stale heartbeats. Runs on the run's simulation goroutine, between
// steps, which is what makes reading engine state here safe.
func (h *Hub) tickBroadcast(runID string) sim.TickFunc {
	return func(e *sim.Engine, events []sim.Event) {
		state := e.State()

		h.mu.Lock()
		channel := h.runs[runID]
		if channel == nil {
			h.mu.Unlock()
			return
		}
		subs := make([]*subscriber, 0, len(channel.subscribers))
		for _, sub := range channel.subscribers {
			subs = append(subs, sub)
		}
		sync := channel.sync
		for _, p := range state.Players {
			channel.saves[p.ID] = save.FromPlayer(p, state.Floor, h.wallets[p.ID])
		}
		h.mu.Unlock()

		now := time.Now()
		serverTime := now.UnixMilli()

		for _, sub := range subs {
			payload := sync.Prepare(sub.playerID, state, e.Tick(), false)
			if payload != nil {
				msgType := msgDeltaUpdate
				if payload.Kind == statesync.KindFull {
					msgType = msgStateUpdate
				}
				envelope := stateEnvelope{Type: msgType, Tick: e.Tick(), ServerTime: serverTime, State: payload}
				if err := sub.writeJSON(envelope); err != nil {
					h.Drop(sub)
					continue
				}
			}

			routed := routeEvents(events, sub.playerID)
			if len(routed) > 0 {
				envelope := eventEnvelope{Type: msgEvent, Tick: e.Tick(), ServerTime: serverTime, Events: routed}
				if err := sub.writeJSON(envelope); err != nil {
					h.Drop(sub)
				}
			}
		}

		if e.Tick()%heartbeatSweepTicks == 0 {
			h.sweepStale(subs, now)
		}

		for _, ev := range events {
			if ev.Type == sim.EventRunEnded {
				h.registry.End(runID)
				return
			}
		}
	}
}

// routeEvents keeps broadcast events plus the ones addressed to this
// player; rejections never leak to other clients.
func routeEvents(events []sim.Event, playerID string) []sim.Event {
	routed := make([]sim.Event, 0, len(events))
	for _, ev := range events {
		if ev.PlayerID == "" || ev.PlayerID == playerID {
			routed = append(routed, ev)
		}
	}
	return routed
}

func (h *Hub) sweepStale(subs []*subscriber, now time.Time) {
	for _, sub := range subs {
		h.mu.Lock()
		stale := now.Sub(sub.lastHeartbeat) > disconnectAfter
		h.mu.Unlock()
		if stale {
			h.publisher.Publish(context.Background(), logging.Event{
				Type:     "net.heartbeat_timeout",
				Severity: logging.SeverityWarn,
				Category: logging.CategorySystem,
				RunID:    sub.runID,
				Actor:    logging.EntityRef{ID: sub.playerID, Kind: logging.EntityKindPlayer},
			})
			h.Drop(sub)
		}
	}
}

// DiagnosticsSnapshot reports live runs and subscriber health.
func (h *Hub) DiagnosticsSnapshot() ([]diagnosticsRun, []diagnosticsSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	runs := make([]diagnosticsRun, 0, len(h.runs))
	subs := make([]diagnosticsSubscriber, 0)
	for runID, channel := range h.runs {
		entry := diagnosticsRun{RunID: runID, Subscribers: len(channel.subscribers)}
		if managed := h.registry.Get(runID); managed != nil {
			stats := managed.Engine.Stats()
			entry.Floor = stats.Floor
			entry.Players = stats.Players
			entry.Tick = stats.Tick
		}
		runs = append(runs, entry)

		for _, sub := range channel.subscribers {
			subs = append(subs, diagnosticsSubscriber{
				PlayerID:      sub.playerID,
				RunID:         runID,
				State:         string(sub.state.Phase()),
				LastHeartbeat: sub.lastHeartbeat.UnixMilli(),
				RTTMillis:     sub.lastRTT.Milliseconds(),
			})
		}
	}
	return runs, subs
}

// SaveSnapshot returns the player's latest save checkpoint, refreshed
// each tick while their run is alive. Nil before the first tick or
// after the run is torn down.
func (h *Hub) SaveSnapshot(playerID string) *save.SaveData {
	h.mu.Lock()
	defer h.mu.Unlock()
	runID, ok := h.players[playerID]
	if !ok {
		return nil
	}
	channel := h.runs[runID]
	if channel == nil {
		return nil
	}
	return channel.saves[playerID]
}

// ClaimReward issues a signed attestation for the run's progress to
// the given wallet, one claim per wallet per run. The amount scales
// with the floor reached at claim time; claims are accepted while the
// run is live, including the reconnect grace window.
func (h *Hub) ClaimReward(ctx context.Context, runID, wallet string) (*attest.Attestation, error) {
	if !attest.ValidWallet(wallet) {
		return nil, fmt.Errorf("invalid wallet %q", wallet)
	}
	managed := h.registry.Get(runID)
	if managed == nil {
		return nil, fmt.Errorf("unknown run %q", runID)
	}

	stats := managed.Engine.Stats()
	amount := int64(stats.Floor) * rewardPerFloor
	att := h.rewards.GenerateAttestation(ctx, runID, wallet, amount)
	if att == nil {
		return nil, fmt.Errorf("wallet %q not eligible for run %q", wallet, runID)
	}

	h.publisher.Publish(ctx, logging.Event{
		Type:     "net.reward_claimed",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		RunID:    runID,
	})
	return att, nil
}

// RewardPool reports the remaining reward pool balance.
func (h *Hub) RewardPool(ctx context.Context) int64 {
	return h.rewards.PoolBalance(ctx)
}
