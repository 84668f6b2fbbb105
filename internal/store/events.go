package store

import (
	"fmt"
	"strings"
)

// Event is one stored trace record.
type Event struct {
	ID          int64
	RunID       string
	FnID        string
	Name        string
	File        string
	StartLine   int
	StartColumn int
	IsAsync     bool
	Exception   bool
	SpanMs      float64
	RecordedAt  string
	Extra       map[string]any
}

// InsertEvent stores one event. RecordedAt defaults to now.
func (s *Store) InsertEvent(e *Event) error {
	if e.RecordedAt == "" {
		e.RecordedAt = Now()
	}
	res, err := s.q.Exec(`
		INSERT INTO events (run_id, fn_id, name, file, start_line, start_column, is_async, exception, span_ms, recorded_at, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.FnID, e.Name, e.File, e.StartLine, e.StartColumn,
		boolInt(e.IsAsync), boolInt(e.Exception), e.SpanMs, e.RecordedAt, marshalProps(e.Extra))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// InsertEvents stores a batch of events in one transaction.
func (s *Store) InsertEvents(events []*Event) error {
	return s.WithTransaction(func(tx *Store) error {
		for _, e := range events {
			if err := tx.InsertEvent(e); err != nil {
				return err
			}
		}
		return nil
	})
}

// EventFilter narrows an event query. Zero fields match everything.
type EventFilter struct {
	FnID           string
	File           string
	ExceptionsOnly bool
	Limit          int
}

// Events returns the events of a run in insertion order.
func (s *Store) Events(runID string, f EventFilter) ([]*Event, error) {
	where := []string{"run_id=?"}
	args := []any{runID}
	if f.FnID != "" {
		where = append(where, "fn_id=?")
		args = append(args, f.FnID)
	}
	if f.File != "" {
		where = append(where, "file=?")
		args = append(args, f.File)
	}
	if f.ExceptionsOnly {
		where = append(where, "exception=1")
	}
	query := `SELECT id, run_id, fn_id, name, file, start_line, start_column, is_async, exception, span_ms, recorded_at, extra
		FROM events WHERE ` + strings.Join(where, " AND ") + " ORDER BY id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []*Event
	for rows.Next() {
		var (
			e                  Event
			isAsync, exception int
			extra              string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.FnID, &e.Name, &e.File, &e.StartLine, &e.StartColumn,
			&isAsync, &exception, &e.SpanMs, &e.RecordedAt, &extra); err != nil {
			return nil, err
		}
		e.IsAsync = isAsync != 0
		e.Exception = exception != 0
		e.Extra = unmarshalProps(extra)
		result = append(result, &e)
	}
	return result, rows.Err()
}

// FunctionStat aggregates the events of one function.
type FunctionStat struct {
	FnID       string
	Name       string
	File       string
	Calls      int
	Exceptions int
	TotalMs    float64
	AvgMs      float64
	MaxMs      float64
}

// FunctionStats aggregates events per function, ordered by total time spent.
// An empty runID aggregates across all runs. limit <= 0 means no limit.
func (s *Store) FunctionStats(runID string, limit int) ([]*FunctionStat, error) {
	query := `SELECT fn_id, name, file, COUNT(*), SUM(exception), SUM(span_ms), AVG(span_ms), MAX(span_ms)
		FROM events`
	var args []any
	if runID != "" {
		query += " WHERE run_id=?"
		args = append(args, runID)
	}
	query += " GROUP BY fn_id, name, file ORDER BY SUM(span_ms) DESC, fn_id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("function stats: %w", err)
	}
	defer rows.Close()

	var result []*FunctionStat
	for rows.Next() {
		var st FunctionStat
		if err := rows.Scan(&st.FnID, &st.Name, &st.File, &st.Calls, &st.Exceptions, &st.TotalMs, &st.AvgMs, &st.MaxMs); err != nil {
			return nil, err
		}
		result = append(result, &st)
	}
	return result, rows.Err()
}
