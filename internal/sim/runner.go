package sim

import (
	"context"
	"sync"
	"time"

	"deepspire/server/internal/dungeon"
	"deepspire/server/logging"
)

// DefaultGracePeriod is how long an empty run survives before teardown,
// giving disconnected players a window to reconnect.
const DefaultGracePeriod = 60 * time.Second

// TickFunc observes the engine after each completed step. It runs on
// the run's simulation goroutine, so it may read state freely but must
// not block.
type TickFunc func(e *Engine, events []Event)

// Run drives the fixed-rate tick loop until the stop channel closes.
// All state mutation happens here, on this single goroutine.
func (e *Engine) Run(stop <-chan struct{}, onTick TickFunc) {
	ticker := time.NewTicker(time.Second / TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			events := e.Step(now)
			if onTick != nil {
				onTick(e, events)
			}
		}
	}
}

// ManagedRun pairs an engine with its goroutine lifecycle.
type ManagedRun struct {
	Engine *Engine

	stop      chan struct{}
	stopOnce  sync.Once
	connected int
	grace     *time.Timer
}

// Registry owns every live run. Runs never share mutable state; the
// registry lock only guards the map itself and per-run connection
// counts.
type Registry struct {
	mu        sync.Mutex
	runs      map[string]*ManagedRun
	generator *dungeon.Generator
	publisher logging.Publisher
	grace     time.Duration
	onEnd     func(runID string)
}

// SetOnEnd registers a callback invoked after a run is torn down, so
// layers above can release their per-run state.
func (r *Registry) SetOnEnd(fn func(runID string)) {
	r.mu.Lock()
	r.onEnd = fn
	r.mu.Unlock()
}

// NewRegistry builds a registry creating runs with the given generator
// and publisher.
func NewRegistry(gen *dungeon.Generator, pub logging.Publisher, grace time.Duration) *Registry {
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Registry{
		runs:      make(map[string]*ManagedRun),
		generator: gen,
		publisher: pub,
		grace:     grace,
	}
}

// Create starts a new run with the given party and begins ticking it.
// The connection count tracks attached sockets, not party membership:
// it starts at zero with the grace timer armed, so a run nobody ever
// attaches to is torn down like any other abandoned run. The first
// PlayerConnected cancels the timer.
func (r *Registry) Create(runID string, players []*Player, onTick TickFunc) *ManagedRun {
	engine := NewEngine(runID, players, r.generator, r.publisher)
	managed := &ManagedRun{
		Engine: engine,
		stop:   make(chan struct{}),
	}

	r.mu.Lock()
	r.runs[runID] = managed
	managed.grace = time.AfterFunc(r.grace, func() {
		r.End(runID)
	})
	r.mu.Unlock()

	go engine.Run(managed.stop, onTick)

	r.publisher.Publish(context.Background(), logging.Event{
		Type:     "run.created",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		RunID:    runID,
		Actor:    logging.EntityRef{ID: runID, Kind: logging.EntityKindRun},
	})
	return managed
}

// Get returns the live run or nil.
func (r *Registry) Get(runID string) *ManagedRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[runID]
}

// PlayerConnected records a socket attach (first connect or reconnect)
// and cancels any pending teardown. Callers invoke this once per
// attached connection so the count mirrors live sockets exactly.
func (r *Registry) PlayerConnected(runID string) *ManagedRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	managed := r.runs[runID]
	if managed == nil {
		return nil
	}
	managed.connected++
	if managed.grace != nil {
		managed.grace.Stop()
		managed.grace = nil
	}
	return managed
}

// PlayerDisconnected records a drop. When the last player leaves, the
// run survives for the grace period before teardown so the party can
// reconnect; the authoritative state lives only here.
func (r *Registry) PlayerDisconnected(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	managed := r.runs[runID]
	if managed == nil {
		return
	}
	if managed.connected > 0 {
		managed.connected--
	}
	if managed.connected > 0 || managed.grace != nil {
		return
	}
	managed.grace = time.AfterFunc(r.grace, func() {
		r.End(runID)
	})
}

// End tears a run down immediately: the tick goroutine is stopped and
// the run (with all its tracking) is dropped from the registry. An
// in-flight tick completes before the goroutine observes the close.
func (r *Registry) End(runID string) {
	r.mu.Lock()
	managed := r.runs[runID]
	delete(r.runs, runID)
	onEnd := r.onEnd
	r.mu.Unlock()

	if managed == nil {
		return
	}
	managed.stopOnce.Do(func() { close(managed.stop) })
	if onEnd != nil {
		onEnd(runID)
	}

	r.publisher.Publish(context.Background(), logging.Event{
		Type:     "run.ended",
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		RunID:    runID,
		Actor:    logging.EntityRef{ID: runID, Kind: logging.EntityKindRun},
	})
}

// Count returns the number of live runs.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}
