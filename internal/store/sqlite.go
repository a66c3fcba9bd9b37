package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Store wraps a *sql.DB configured for mailfang's single-file SQLite
// database, applying the integrity PRAGMAs spec.md §6 requires on every
// acquired connection.
type Store struct {
	db *sql.DB
}

// Open parses a `database.url` value of the form `sqlite:///path/to/file` or
// `sqlite://:memory:` (also accepting a bare path for convenience) and
// returns a ready-to-use Store with PRAGMAs applied.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	dsn := parseDSN(databaseURL)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// SQLite allows only one writer at a time; a single shared connection
	// avoids SQLITE_BUSY from the driver's own pool multiplexing writes
	// across connections that don't share a WAL-mode transaction view.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.applyPragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// parseDSN strips a "sqlite://" scheme prefix if present.
func parseDSN(databaseURL string) string {
	dsn := databaseURL
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	dsn = strings.TrimPrefix(dsn, "sqlite:")
	if dsn == "" {
		dsn = ":memory:"
	}
	return dsn
}

func (s *Store) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 2000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA wal_autocheckpoint = 1000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("applying %q: %w", p, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpointing wal at open: %w", err)
	}
	return nil
}

// DB returns the underlying *sql.DB, for the migration runner.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
