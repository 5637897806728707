// Package sinks holds the bundled logging sinks: console for local
// runs, JSON lines for ingestion, memory for tests.
package sinks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"deepspire/server/logging"
)

// Console writes one human-readable line per event.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Write(event logging.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	severity := severityLabel(event.Severity)
	_, err := fmt.Fprintf(c.out, "%s %-5s t=%d %s actor=%s/%s run=%s %v\n",
		event.Time.Format("15:04:05.000"), severity, event.Tick, event.Type,
		event.Actor.Kind, event.Actor.ID, event.RunID, event.Payload)
	return err
}

func (c *Console) Close(context.Context) error { return nil }

func severityLabel(s logging.Severity) string {
	switch s {
	case logging.SeverityDebug:
		return "DEBUG"
	case logging.SeverityInfo:
		return "INFO"
	case logging.SeverityWarn:
		return "WARN"
	case logging.SeverityError:
		return "ERROR"
	default:
		return "INFO"
	}
}
