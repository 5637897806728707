package sinks

import (
	"context"
	"sync"

	"deepspire/server/logging"
)

// Memory buffers events in order; tests assert on its contents.
type Memory struct {
	mu     sync.Mutex
	events []logging.Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Write(event logging.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) Close(context.Context) error { return nil }

// Events returns a copy of everything written so far.
func (m *Memory) Events() []logging.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]logging.Event(nil), m.events...)
}
