// Package store implements zjj's durable state (spec §3, §4.1): sessions,
// queue entries, the processing lock, conflict resolutions, the recovery
// log, and the optional domain-event audit stream. It is backed by a single
// SQLite file opened through the pure-Go ncruces/go-sqlite3 driver, the same
// driver and connection-pool discipline (SetMaxOpenConns(1), WAL journal
// mode, a busy timeout) the teacher's internal/storage/ephemeral package
// uses for its own single-writer SQLite store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// Store wraps a *sql.DB and the cross-process contract spec §4.1 describes.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex // taken only by Close; other methods do not hold it
}

// timeLayout is the canonical on-disk timestamp format: UTC, second
// precision, matching the teacher's ephemeral.formatTime/parseTime pair.
const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	layouts := []string{timeLayout, time.RFC3339, "2006-01-02T15:04:05Z"}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, lastErr)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTimeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// Open opens (creating if necessary) the SQLite store at path and ensures
// its schema. A corrupt or unparseable file surfaces as zjjerr.ErrStoreCorrupt
// without mutating anything; callers that want the recovery policy applied
// (silent/warn recreate) should use internal/recovery.OpenWithPolicy instead
// of calling Open directly against a possibly-corrupt path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal=WAL&_busy_timeout=5000&_foreign_keys=1", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", err.Error(), zjjerr.ErrStoreCorrupt)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// DB returns the underlying *sql.DB for components that need to compose
// multi-statement transactions beyond what Store's own methods expose. No
// package in this repository calls it; the queue claim is a single
// statement in ClaimNextQueueEntry.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) ensureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", err.Error(), zjjerr.ErrStoreCorrupt)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range strings.Split(schemaDDL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %s: %w", err.Error(), zjjerr.ErrStoreCorrupt)
		}
	}

	var raw sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(schemaVersion)); err != nil {
			return fmt.Errorf("seed schema_version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema_version: %s: %w", err.Error(), zjjerr.ErrStoreCorrupt)
	default:
		if raw.String != fmt.Sprint(schemaVersion) {
			var existing int
			if _, scanErr := fmt.Sscanf(raw.String, "%d", &existing); scanErr != nil || existing > schemaVersion {
				return fmt.Errorf("schema_version %q newer than this binary's %d: %w", raw.String, schemaVersion, zjjerr.ErrSchemaVersionUnknown)
			}
		}
	}

	return tx.Commit()
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. This is the one place spec §9's "do the whole
// operation in one transaction" guidance is mechanically enforced: callers
// never see a half-committed multi-statement sequence.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapBusy(err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return wrapBusy(err)
	}
	return nil
}

// wrapBusy maps a SQLite "database is locked"/busy condition onto
// zjjerr.ErrStoreBusy so callers can retry with backoff (spec §4.1).
func wrapBusy(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "locked") || strings.Contains(msg, "busy") {
		return fmt.Errorf("%s: %w", msg, zjjerr.ErrStoreBusy)
	}
	return err
}
