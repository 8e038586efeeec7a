// Package history persists generation records in a SQLite database under the
// repo state dir. Each record captures one generation attempt: model, effort,
// resulting message (or the failure kind), and duration. Read back by the
// history subcommand; never consulted by the pipeline itself.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const dbFilename = "history.db"

// Record is one generation attempt.
type Record struct {
	Timestamp  time.Time
	Model      string
	Effort     string
	Message    string
	Outcome    string // "ok" or a failure kind
	DurationMS int64
}

// Store wraps the per-repo history database.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Open creates or opens stateDir/history.db.
func Open(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("history: create state dir: %w", err)
	}
	path := filepath.Join(stateDir, dbFilename)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	s := &Store{db: db, path: path}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS generations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		model TEXT NOT NULL,
		effort TEXT NOT NULL,
		message TEXT NOT NULL,
		outcome TEXT NOT NULL,
		duration_ms INTEGER NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("history: init schema: %w", err)
	}
	return nil
}

// Save inserts one record.
func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO generations
		(timestamp, model, effort, message, outcome, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts.Format(time.RFC3339),
		rec.Model,
		rec.Effort,
		rec.Message,
		rec.Outcome,
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("history: save: %w", err)
	}
	return nil
}

// Records returns entries newest first. limit <= 0 means all; search, when
// non-empty, filters by substring match on the message.
func (s *Store) Records(limit int, search string) ([]Record, error) {
	var b strings.Builder
	b.WriteString("SELECT timestamp, model, effort, message, outcome, duration_ms FROM generations")
	var args []interface{}
	if search != "" {
		b.WriteString(" WHERE message LIKE ?")
		args = append(args, "%"+search+"%")
	}
	b.WriteString(" ORDER BY datetime(timestamp) DESC, id DESC")
	if limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	rows, err := s.db.Query(b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		var ts string
		if err := rows.Scan(&ts, &rec.Model, &rec.Effort, &rec.Message, &rec.Outcome, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.Timestamp = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
