package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/psantana5/stopwatch/pkg/stopwatch"
)

// Supported database/sql driver names
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS timings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tag TEXT NOT NULL,
	message TEXT,
	started_at DATETIME NOT NULL,
	elapsed_ns INTEGER NOT NULL,
	recorded_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_timings_tag ON timings(tag);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS timings (
	id BIGSERIAL PRIMARY KEY,
	tag TEXT NOT NULL,
	message TEXT,
	started_at TIMESTAMPTZ NOT NULL,
	elapsed_ns BIGINT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_timings_tag ON timings(tag);
`

// SQL stores one row per measurement in a "timings" table
type SQL struct {
	Base

	name    string
	db      *sql.DB
	insert  string
	timeout time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewSQL opens dsn with driver and creates the schema
func NewSQL(name, driver, dsn string, timeout time.Duration) (*SQL, error) {
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// Single writer avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}

	s, err := NewSQLWithDB(name, db, driver, timeout)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// sqliteDSN appends the WAL and busy timeout parameters to dsn
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_journal_mode=WAL&_busy_timeout=10000"
}

// NewSQLWithDB uses an already opened database. Shutdown closes it.
func NewSQLWithDB(name string, db *sql.DB, driver string, timeout time.Duration) (*SQL, error) {
	var schema, insert string
	switch driver {
	case DriverSQLite:
		schema = sqliteSchema
		insert = `INSERT INTO timings (tag, message, started_at, elapsed_ns, recorded_at) VALUES (?, ?, ?, ?, ?)`
	case DriverPostgres:
		schema = postgresSchema
		insert = `INSERT INTO timings (tag, message, started_at, elapsed_ns, recorded_at) VALUES ($1, $2, $3, $4, $5)`
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQL{
		name:    name,
		db:      db,
		insert:  insert,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// Name implements Named
func (s *SQL) Name() string {
	return s.name
}

// DB returns the underlying database
func (s *SQL) DB() *sql.DB {
	return s.db
}

// Record inserts sw as a row
func (s *SQL) Record(sw *stopwatch.StopWatch) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	var message sql.NullString
	if sw.Message() != "" {
		message = sql.NullString{String: sw.Message(), Valid: true}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, s.insert, sw.Tag(), message, sw.StartedAt().UTC(), sw.ElapsedNanos(), s.now().UTC()); err != nil {
		return fmt.Errorf("failed to insert timing: %w", err)
	}
	return nil
}

// Shutdown closes the database
func (s *SQL) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
