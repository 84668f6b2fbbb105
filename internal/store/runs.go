package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Run groups the events of one program execution.
type Run struct {
	ID        string
	StartedAt string
	Entry     string
}

// CreateRun records a new run for the given entry file and returns it.
func (s *Store) CreateRun(entry string) (*Run, error) {
	r := &Run{ID: uuid.NewString(), StartedAt: Now(), Entry: entry}
	_, err := s.q.Exec("INSERT INTO runs (id, started_at, entry) VALUES (?, ?, ?)", r.ID, r.StartedAt, r.Entry)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return r, nil
}

// GetRun returns a run by id, or nil if it does not exist.
func (s *Store) GetRun(id string) (*Run, error) {
	var r Run
	err := s.q.QueryRow("SELECT id, started_at, entry FROM runs WHERE id=?", id).Scan(&r.ID, &r.StartedAt, &r.Entry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

// LatestRun returns the most recently started run, or nil if there is none.
func (s *Store) LatestRun() (*Run, error) {
	var r Run
	err := s.q.QueryRow("SELECT id, started_at, entry FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1").
		Scan(&r.ID, &r.StartedAt, &r.Entry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return &r, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns() ([]*Run, error) {
	rows, err := s.q.Query("SELECT id, started_at, entry FROM runs ORDER BY started_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var result []*Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Entry); err != nil {
			return nil, err
		}
		result = append(result, &r)
	}
	return result, rows.Err()
}

// DeleteRun deletes a run and its events (CASCADE).
func (s *Store) DeleteRun(id string) error {
	_, err := s.q.Exec("DELETE FROM runs WHERE id=?", id)
	return err
}
