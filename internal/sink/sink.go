// Package sink provides trace record destinations for the execution wrapper.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/DeusData/fntrace/internal/wrapper"
)

// Slog logs each record as a "trace.call" event.
type Slog struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlog creates a Slog sink. A nil logger uses slog.Default().
func NewSlog(logger *slog.Logger, level slog.Level) *Slog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Slog{logger: logger, level: level}
}

// Log implements wrapper.Sink.
func (s *Slog) Log(rec wrapper.Record) {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		args = append(args, k, rec[k])
	}
	s.logger.Log(context.Background(), s.level, "trace.call", args...)
}

// JSONLines writes each record as one JSON object per line.
type JSONLines struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLines creates a JSONLines sink writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

// Log implements wrapper.Sink. Write errors are logged and dropped.
func (j *JSONLines) Log(rec wrapper.Record) {
	b, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("sink.jsonl.encode", "err", err)
		return
	}
	b = append(b, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(b); err != nil {
		slog.Warn("sink.jsonl.write", "err", err)
	}
}

// Multi fans records out to several sinks. A panicking sink does not stop the
// others.
type Multi []wrapper.Sink

// Log implements wrapper.Sink.
func (m Multi) Log(rec wrapper.Record) {
	for _, s := range m {
		logOne(s, rec)
	}
}

func logOne(s wrapper.Sink, rec wrapper.Record) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("sink.multi.panic", "err", fmt.Sprint(r))
		}
	}()
	s.Log(rec)
}
