// Package journal records the outcome of every update run in a small
// SQLite database so the launcher can show a history.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"calibrator/internal/config"
)

// DefaultFileName is the database file under the user state directory.
const DefaultFileName = "updates.db"

// ErrClosed is returned when the journal has been closed.
var ErrClosed = errors.New("journal closed")

const schema = `
CREATE TABLE IF NOT EXISTS update_runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	started_at      TEXT NOT NULL,
	finished_at     TEXT NOT NULL,
	outcome         TEXT NOT NULL,
	current_version TEXT NOT NULL DEFAULT '',
	latest_version  TEXT NOT NULL DEFAULT '',
	detail          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_update_runs_started ON update_runs(started_at);
`

// Entry is one recorded update run.
type Entry struct {
	ID             int64
	RunID          string
	StartedAt      time.Time
	FinishedAt     time.Time
	Outcome        string
	CurrentVersion string
	LatestVersion  string
	Detail         string
}

// Journal is a handle on the history database.
type Journal struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the configured journal path or ~/.calibrator/updates.db.
func DefaultPath() (string, error) {
	if p := strings.TrimSpace(config.GetString(config.KeyJournalPath)); p != "" {
		return p, nil
	}
	dir, err := config.DefaultUserDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultFileName), nil
}

func buildDSN(path string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(path),
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(3000)")
	q.Add("_pragma", "journal_mode(WAL)")
	u.RawQuery = q.Encode()
	return u.String()
}

// Open opens (creating if needed) the journal at path.
func Open(ctx context.Context, path string) (*Journal, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	//nolint:gosec // G301: user state directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", buildDSN(trimmed))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db, path: trimmed}, nil
}

// Path returns the database file location.
func (j *Journal) Path() string { return j.path }

// Record stores e and returns its row id.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	if j == nil || j.db == nil {
		return 0, ErrClosed
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO update_runs (run_id, started_at, finished_at, outcome, current_version, latest_version, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		e.RunID,
		formatTime(e.StartedAt),
		formatTime(e.FinishedAt),
		e.Outcome,
		e.CurrentVersion,
		e.LatestVersion,
		e.Detail,
	)
	if err != nil {
		return 0, fmt.Errorf("insert update run: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first. limit <= 0 means 20.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, run_id, started_at, finished_at, outcome, current_version, latest_version, detail
		FROM update_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query update runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &started, &finished, &e.Outcome, &e.CurrentVersion, &e.LatestVersion, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan update run: %w", err)
		}
		e.StartedAt = parseTime(started)
		e.FinishedAt = parseTime(finished)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the database handle. Safe to call more than once.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// timeLayout is fixed width so that timestamps stored as text sort in
// time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err == nil {
		return t
	}
	t, err = time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
