package eval

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kestrelab/troika/internal/orchestrator"
)

// Store keeps a history of evaluation records across batches in a local
// SQLite database, so regressions can be spotted between runs.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id         TEXT NOT NULL,
	question        TEXT NOT NULL,
	answer          TEXT NOT NULL,
	expected        TEXT NOT NULL,
	state           TEXT NOT NULL,
	quality_warning INTEGER NOT NULL,
	duration_ms     INTEGER NOT NULL,
	error           TEXT NOT NULL,
	recorded_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_task_id ON records(task_id);
`

// OpenStore opens (or creates) the history database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise history store: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveRecord appends one record to the history.
func (s *Store) SaveRecord(ctx context.Context, record Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records
			(task_id, question, answer, expected, state, quality_warning, duration_ms, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.TaskID,
		record.Question,
		record.Answer,
		record.Expected,
		string(record.State),
		boolToInt(record.QualityWarning),
		record.DurationMS,
		record.Error,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// History returns every stored record for a task, oldest first.
func (s *Store) History(ctx context.Context, taskID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, question, answer, expected, state, quality_warning, duration_ms, error
		 FROM records WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var record Record
		var state string
		var warning int
		if err := rows.Scan(
			&record.TaskID,
			&record.Question,
			&record.Answer,
			&record.Expected,
			&state,
			&warning,
			&record.DurationMS,
			&record.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		record.State = orchestrator.State(state)
		record.QualityWarning = warning != 0
		records = append(records, record)
	}
	return records, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
