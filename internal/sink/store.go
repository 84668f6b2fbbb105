package sink

import (
	"log/slog"

	"github.com/DeusData/fntrace/internal/descriptor"
	"github.com/DeusData/fntrace/internal/store"
	"github.com/DeusData/fntrace/internal/wrapper"
)

// Store persists records as events of one run.
type Store struct {
	st    *store.Store
	runID string
}

// NewStore creates a sink writing to st under runID.
func NewStore(st *store.Store, runID string) *Store {
	return &Store{st: st, runID: runID}
}

// Log implements wrapper.Sink. Insert errors are logged and dropped.
func (s *Store) Log(rec wrapper.Record) {
	if err := s.st.InsertEvent(EventFromRecord(s.runID, rec)); err != nil {
		slog.Warn("sink.store", "err", err)
	}
}

// EventFromRecord converts a record to a store event. Fields other than the
// descriptor and measured ones are kept in Extra.
func EventFromRecord(runID string, rec wrapper.Record) *store.Event {
	d := descriptor.FromFields(rec)
	e := &store.Event{
		RunID:       runID,
		FnID:        d.ID,
		Name:        d.Name,
		File:        d.File,
		StartLine:   d.StartLine,
		StartColumn: d.StartColumn,
		IsAsync:     d.IsAsync,
		Exception:   rec.Exception(),
		SpanMs:      rec.Span(),
	}
	for k, v := range rec {
		if isKnownField(k) {
			continue
		}
		if e.Extra == nil {
			e.Extra = map[string]any{}
		}
		e.Extra[k] = v
	}
	return e
}

func isKnownField(k string) bool {
	switch k {
	case descriptor.FieldID, descriptor.FieldName, descriptor.FieldFile,
		descriptor.FieldStartLine, descriptor.FieldStartColumn,
		descriptor.FieldIsAsync, descriptor.FieldIsGenerator,
		wrapper.KeyException, wrapper.KeySpan:
		return true
	}
	return false
}
