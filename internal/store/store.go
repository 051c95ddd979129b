package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/examtaker/internal/model"

	_ "modernc.org/sqlite"
)

// Store is the local journal of submitted results.
type Store struct {
	db *sql.DB
}

// JournalEntry is one submitted attempt and the outcome of its remote write.
// StudentName, TestID, Score and AutoSubmit are indexed copies of Record;
// SaveResult fills them from Record and ignores whatever the caller set.
type JournalEntry struct {
	AttemptID   string
	Filename    string
	StudentName string
	TestID      string
	Score       float64
	AutoSubmit  bool
	RemoteSaved bool
	RemoteError string
	SubmittedAt time.Time
	Record      model.ResultRecord
}

// summarize copies the indexed columns out of the record.
func (e *JournalEntry) summarize() {
	e.StudentName = e.Record.StudentName
	e.TestID = e.Record.TestID
	e.Score = e.Record.Score.ScorePercentage
	e.AutoSubmit = e.Record.AutoSubmitted
}

// New opens (and migrates) the journal at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	// One connection keeps ":memory:" journals on a single database.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		attempt_id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		student_name TEXT NOT NULL,
		test_id TEXT NOT NULL,
		score_percentage REAL NOT NULL,
		auto_submitted INTEGER NOT NULL DEFAULT 0,
		remote_saved INTEGER NOT NULL DEFAULT 0,
		remote_error TEXT NOT NULL DEFAULT '',
		submitted_at DATETIME NOT NULL,
		record TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_results_test ON results(test_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveResult journals a submission. Each attempt id is accepted once.
func (s *Store) SaveResult(e JournalEntry) error {
	rec, err := json.Marshal(e.Record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if e.SubmittedAt.IsZero() {
		e.SubmittedAt = time.Now()
	}
	e.summarize()
	_, err = s.db.Exec(
		`INSERT INTO results (attempt_id, filename, student_name, test_id, score_percentage,
		   auto_submitted, remote_saved, remote_error, submitted_at, record)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AttemptID, e.Filename, e.StudentName, e.TestID, e.Score,
		e.AutoSubmit, e.RemoteSaved, e.RemoteError, e.SubmittedAt, string(rec),
	)
	return err
}

const resultColumns = `attempt_id, filename, student_name, test_id, score_percentage,
	auto_submitted, remote_saved, remote_error, submitted_at, record`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (JournalEntry, error) {
	var e JournalEntry
	var rec string
	if err := row.Scan(&e.AttemptID, &e.Filename, &e.StudentName, &e.TestID, &e.Score,
		&e.AutoSubmit, &e.RemoteSaved, &e.RemoteError, &e.SubmittedAt, &rec); err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(rec), &e.Record); err != nil {
		return e, fmt.Errorf("decode record %s: %w", e.AttemptID, err)
	}
	return e, nil
}

// GetResult returns the journal entry for an attempt.
func (s *Store) GetResult(attemptID string) (JournalEntry, error) {
	row := s.db.QueryRow(`SELECT `+resultColumns+` FROM results WHERE attempt_id = ?`, attemptID)
	return scanEntry(row)
}

// ListResults returns journal entries, oldest first. An empty testID lists all.
func (s *Store) ListResults(testID string) ([]JournalEntry, error) {
	query := `SELECT ` + resultColumns + ` FROM results`
	var args []any
	if testID != "" {
		query += ` WHERE test_id = ?`
		args = append(args, testID)
	}
	query += ` ORDER BY submitted_at, attempt_id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ResultCount returns the number of journaled results.
func (s *Store) ResultCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM results`).Scan(&count)
	return count, err
}
