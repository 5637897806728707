package sinks

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"deepspire/server/logging"
)

// JSONLines writes one JSON document per line, suitable for file
// tailing or shipping to a collector.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
	out io.Closer
}

// NewJSONLines wraps a writer. If the writer is also an io.Closer it is
// closed with the sink.
func NewJSONLines(out io.Writer) *JSONLines {
	sink := &JSONLines{enc: json.NewEncoder(out)}
	if closer, ok := out.(io.Closer); ok {
		sink.out = closer
	}
	return sink
}

func (j *JSONLines) Write(event logging.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(event)
}

func (j *JSONLines) Close(context.Context) error {
	if j.out == nil {
		return nil
	}
	return j.out.Close()
}
