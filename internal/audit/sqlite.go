package audit

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/usage.report/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteSink persists events to a SQLite database. The schema is managed
// by embedded migrations applied on open.
type SQLiteSink struct {
	db     *sql.DB
	insert *sql.Stmt
}

// NewSQLiteSink opens (or creates) the database at path and migrates its
// schema to the latest version.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	// modernc sqlite serialises writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent readers.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	insert, err := db.Prepare(`
		INSERT INTO events (
			event_id, timestamp, camera, event, session_id,
			x1, y1, x2, y2, duration_seconds, alert_triggered
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: prepare insert: %w", err)
	}

	return &SQLiteSink{db: db, insert: insert}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("audit: load migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("audit: create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("audit: create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Note: m is not closed here because that would close the underlying
	// DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("audit: migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Write implements Sink.
func (s *SQLiteSink) Write(e Event) error {
	_, err := s.insert.Exec(
		e.ID,
		e.Timestamp.Format(time.RFC3339Nano),
		e.Camera,
		string(e.Kind),
		e.SessionID,
		e.Box[0], e.Box[1], e.Box[2], e.Box[3],
		e.DurationSeconds,
		e.AlertTriggered,
	)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *SQLiteSink) Close() error {
	s.insert.Close()
	return s.db.Close()
}
