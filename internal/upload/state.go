package upload

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/claude/hevysync/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Delivery statuses stored in the ledger.
const (
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// Delivery is one ledger row: the outcome of forwarding a single session.
type Delivery struct {
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	Start     time.Time `json:"start"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	RunID     string    `json:"run_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PassRecord summarizes one completed sync pass.
type PassRecord struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Fetched         int       `json:"fetched"`
	Accepted        int       `json:"accepted"`
	Uploaded        int       `json:"uploaded"`
	Failed          int       `json:"failed"`
	Abandoned       int       `json:"abandoned"`
	WatermarkBefore time.Time `json:"watermark_before"`
	WatermarkAfter  time.Time `json:"watermark_after"`
	Error           string    `json:"error,omitempty"`
}

// StateDB is the delivery ledger. It remembers which sessions reached the
// destination, how often the others failed, and the history of passes.
type StateDB struct {
	db  *sql.DB
	now func() time.Time
}

// OpenStateDB opens (or creates) the SQLite ledger at dir/state.db and
// applies pending schema migrations.
func OpenStateDB(dir string) (*StateDB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir %s: %w", dir, err)
	}

	dbPath := filepath.Join(dir, "state.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &StateDB{db: db, now: time.Now}, nil
}

// runMigrations applies the embedded migrations. The migrator is not closed
// because closing it would close db as well.
func runMigrations(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	drv, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close closes the ledger.
func (s *StateDB) Close() error {
	return s.db.Close()
}

// SessionKey identifies a session in the ledger. The upstream ID is used when
// present, otherwise a hash of start instant and title.
func SessionKey(sess models.Session) string {
	if sess.ID != "" {
		return "hevy:" + sess.ID
	}
	h := sha256.New()
	h.Write([]byte(sess.Start.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte{0})
	h.Write([]byte(sess.Title))
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// Lookup returns the ledger row for key, or nil when the session has never
// been seen.
func (s *StateDB) Lookup(ctx context.Context, key string) (*Delivery, error) {
	var (
		d         Delivery
		start     string
		updated   string
		lastError sql.NullString
		runID     sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT session_key, title, start_time, status, attempts, last_error, run_id, updated_at
		 FROM deliveries WHERE session_key = ?`, key,
	).Scan(&d.Key, &d.Title, &start, &d.Status, &d.Attempts, &lastError, &runID, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", key, err)
	}
	d.LastError = lastError.String
	d.RunID = runID.String
	d.Start, _ = time.Parse(time.RFC3339Nano, start)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &d, nil
}

// IsDelivered reports whether key reached the destination in an earlier pass.
func (s *StateDB) IsDelivered(ctx context.Context, key string) (bool, error) {
	d, err := s.Lookup(ctx, key)
	if err != nil {
		return false, err
	}
	return d != nil && d.Status == StatusDelivered, nil
}

// MarkDelivered records a successful upload. The attempt counter is kept.
func (s *StateDB) MarkDelivered(ctx context.Context, key string, sess models.Session, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (session_key, title, start_time, status, attempts, last_error, run_id, updated_at)
		 VALUES (?, ?, ?, ?, 0, NULL, ?, ?)
		 ON CONFLICT(session_key) DO UPDATE SET
		   status = excluded.status, last_error = NULL,
		   run_id = excluded.run_id, updated_at = excluded.updated_at`,
		key, sess.Title, formatTime(sess.Start), StatusDelivered, runID, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("marking %s delivered: %w", key, err)
	}
	return nil
}

// RecordFailure increments the attempt counter for key and returns the new
// count.
func (s *StateDB) RecordFailure(ctx context.Context, key string, sess models.Session, runID string, cause error) (int, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (session_key, title, start_time, status, attempts, last_error, run_id, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?)
		 ON CONFLICT(session_key) DO UPDATE SET
		   status = excluded.status, attempts = deliveries.attempts + 1,
		   last_error = excluded.last_error, run_id = excluded.run_id,
		   updated_at = excluded.updated_at`,
		key, sess.Title, formatTime(sess.Start), StatusFailed, msg, runID, formatTime(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("recording failure for %s: %w", key, err)
	}

	var attempts int
	if err := s.db.QueryRowContext(ctx,
		`SELECT attempts FROM deliveries WHERE session_key = ?`, key,
	).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("reading attempts for %s: %w", key, err)
	}
	return attempts, nil
}

// MarkAbandoned stops retrying key.
func (s *StateDB) MarkAbandoned(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE deliveries SET status = ?, updated_at = ? WHERE session_key = ?`,
		StatusAbandoned, formatTime(s.now()), key,
	)
	if err != nil {
		return fmt.Errorf("abandoning %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("abandoning %s: no ledger entry", key)
	}
	return nil
}

// Pending returns sessions that failed and are still being retried, oldest
// first.
func (s *StateDB) Pending(ctx context.Context) ([]Delivery, error) {
	return s.byStatus(ctx, StatusFailed)
}

// Abandoned returns sessions that exhausted their attempts, oldest first.
func (s *StateDB) Abandoned(ctx context.Context) ([]Delivery, error) {
	return s.byStatus(ctx, StatusAbandoned)
}

func (s *StateDB) byStatus(ctx context.Context, status string) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_key, title, start_time, status, attempts, last_error, run_id, updated_at
		 FROM deliveries WHERE status = ? ORDER BY start_time`, status)
	if err != nil {
		return nil, fmt.Errorf("querying %s deliveries: %w", status, err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var (
			d         Delivery
			start     string
			updated   string
			lastError sql.NullString
			runID     sql.NullString
		)
		if err := rows.Scan(&d.Key, &d.Title, &start, &d.Status, &d.Attempts, &lastError, &runID, &updated); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		d.LastError = lastError.String
		d.RunID = runID.String
		d.Start, _ = time.Parse(time.RFC3339Nano, start)
		d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecordPass stores the outcome of a pass.
func (s *StateDB) RecordPass(ctx context.Context, p PassRecord) error {
	var errMsg sql.NullString
	if p.Error != "" {
		errMsg = sql.NullString{String: p.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO passes (run_id, started_at, finished_at, fetched, accepted, uploaded, failed, abandoned,
		 watermark_before, watermark_after, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.RunID, formatTime(p.StartedAt), formatTime(p.FinishedAt),
		p.Fetched, p.Accepted, p.Uploaded, p.Failed, p.Abandoned,
		formatTime(p.WatermarkBefore), formatTime(p.WatermarkAfter), errMsg,
	)
	if err != nil {
		return fmt.Errorf("recording pass %s: %w", p.RunID, err)
	}
	return nil
}

// LastPass returns the most recently finished pass, or nil if none ran yet.
func (s *StateDB) LastPass(ctx context.Context) (*PassRecord, error) {
	var (
		p                         PassRecord
		started, finished, wb, wa string
		errMsg                    sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, started_at, finished_at, fetched, accepted, uploaded, failed, abandoned,
		 watermark_before, watermark_after, error
		 FROM passes ORDER BY finished_at DESC LIMIT 1`,
	).Scan(&p.RunID, &started, &finished, &p.Fetched, &p.Accepted, &p.Uploaded, &p.Failed, &p.Abandoned,
		&wb, &wa, &errMsg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last pass: %w", err)
	}
	p.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	p.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	p.WatermarkBefore, _ = time.Parse(time.RFC3339Nano, wb)
	p.WatermarkAfter, _ = time.Parse(time.RFC3339Nano, wa)
	p.Error = errMsg.String
	return &p, nil
}

// formatTime stores instants as fixed-width UTC text so ORDER BY sorts them
// chronologically.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
