package logging_test

import (
	"context"
	"testing"
	"time"

	"deepspire/server/logging"
	"deepspire/server/logging/sinks"
)

func drainRouter(t *testing.T, r *logging.Router, mem *sinks.Memory, want int) []logging.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if events := mem.Events(); len(events) >= want {
			return events
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("router delivered %d events, want %d", len(mem.Events()), want)
	return nil
}

func TestRouterDeliversInOrder(t *testing.T) {
	mem := sinks.NewMemory()
	router := logging.NewRouter(logging.DefaultConfig(), nil, []logging.NamedSink{{Name: "mem", Sink: mem}})
	defer router.Close(context.Background())

	router.Publish(context.Background(), logging.Event{Type: "first", Severity: logging.SeverityInfo})
	router.Publish(context.Background(), logging.Event{Type: "second", Severity: logging.SeverityInfo})

	events := drainRouter(t, router, mem, 2)
	if events[0].Type != "first" || events[1].Type != "second" {
		t.Fatalf("events out of order: %q, %q", events[0].Type, events[1].Type)
	}
	if events[0].Time.IsZero() {
		t.Fatal("router left event time unset")
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	mem := sinks.NewMemory()
	cfg := logging.Config{BufferSize: 16, MinimumSeverity: logging.SeverityWarn}
	router := logging.NewRouter(cfg, nil, []logging.NamedSink{{Name: "mem", Sink: mem}})
	defer router.Close(context.Background())

	router.Publish(context.Background(), logging.Event{Type: "chatter", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "trouble", Severity: logging.SeverityWarn})

	events := drainRouter(t, router, mem, 1)
	for _, ev := range events {
		if ev.Severity < logging.SeverityWarn {
			t.Fatalf("low-severity event %q leaked through", ev.Type)
		}
	}
}

func TestRouterAttachesAmbientFields(t *testing.T) {
	mem := sinks.NewMemory()
	cfg := logging.DefaultConfig()
	cfg.Fields = map[string]any{"node": "test-1"}
	router := logging.NewRouter(cfg, nil, []logging.NamedSink{{Name: "mem", Sink: mem}})
	defer router.Close(context.Background())

	router.Publish(context.Background(), logging.Event{Type: "tagged", Severity: logging.SeverityInfo})

	events := drainRouter(t, router, mem, 1)
	if events[0].Extra["node"] != "test-1" {
		t.Fatalf("ambient field missing: %+v", events[0].Extra)
	}
}

func TestRouterCloseFlushesAndStops(t *testing.T) {
	mem := sinks.NewMemory()
	router := logging.NewRouter(logging.DefaultConfig(), nil, []logging.NamedSink{{Name: "mem", Sink: mem}})

	router.Publish(context.Background(), logging.Event{Type: "last-words", Severity: logging.SeverityInfo})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	found := false
	for _, ev := range mem.Events() {
		if ev.Type == "last-words" {
			found = true
		}
	}
	if !found {
		t.Fatal("buffered event lost on close")
	}

	before := router.Stats().EventsTotal
	router.Publish(context.Background(), logging.Event{Type: "too-late", Severity: logging.SeverityInfo})
	if router.Stats().EventsTotal != before {
		t.Fatal("publish accepted after close")
	}
}
