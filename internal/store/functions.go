package store

import "fmt"

// Function is an instrumented function site as recorded at build time.
type Function struct {
	FnID           string
	Name           string
	File           string
	StartLine      int
	StartColumn    int
	IsAsync        bool
	InstrumentedAt string
}

// UpsertFunctions records instrumented sites, replacing earlier entries with
// the same id.
func (s *Store) UpsertFunctions(fns []*Function) error {
	now := Now()
	for _, f := range fns {
		_, err := s.q.Exec(`
			INSERT INTO functions (fn_id, name, file, start_line, start_column, is_async, instrumented_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(fn_id) DO UPDATE SET
				name=excluded.name, file=excluded.file, start_line=excluded.start_line,
				start_column=excluded.start_column, is_async=excluded.is_async,
				instrumented_at=excluded.instrumented_at`,
			f.FnID, f.Name, f.File, f.StartLine, f.StartColumn, boolInt(f.IsAsync), now)
		if err != nil {
			return fmt.Errorf("upsert function %s: %w", f.FnID, err)
		}
	}
	return nil
}

// DeleteFunctionsByFile removes the recorded sites of one file, before it is
// re-instrumented.
func (s *Store) DeleteFunctionsByFile(file string) error {
	_, err := s.q.Exec("DELETE FROM functions WHERE file=?", file)
	return err
}

// ListFunctions returns recorded sites, optionally limited to one file,
// ordered by file and position.
func (s *Store) ListFunctions(file string) ([]*Function, error) {
	query := "SELECT fn_id, name, file, start_line, start_column, is_async, instrumented_at FROM functions"
	var args []any
	if file != "" {
		query += " WHERE file=?"
		args = append(args, file)
	}
	query += " ORDER BY file, start_line, start_column"

	rows, err := s.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	defer rows.Close()

	var result []*Function
	for rows.Next() {
		var (
			f       Function
			isAsync int
		)
		if err := rows.Scan(&f.FnID, &f.Name, &f.File, &f.StartLine, &f.StartColumn, &isAsync, &f.InstrumentedAt); err != nil {
			return nil, err
		}
		f.IsAsync = isAsync != 0
		result = append(result, &f)
	}
	return result, rows.Err()
}
