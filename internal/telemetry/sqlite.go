package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"

	"github.com/etaoin/tofcam/internal/monitoring"
)

// eventQueueSize bounds the in-memory backlog between the control loop
// and the database writer goroutine. A full queue drops new events rather
// than applying backpressure to the worker.
const eventQueueSize = 256

// SQLiteRecorder persists events to a SQLite database, migrating its
// schema on open with golang-migrate.
type SQLiteRecorder struct {
	db     *sql.DB
	events chan Event
	done   chan struct{}
}

// OpenSQLite opens (creating if needed) a SQLite database at dbPath,
// applies any pending migrations found under migrationsDir, and starts
// the background writer goroutine.
func OpenSQLite(dbPath, migrationsDir string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", dbPath, err)
	}

	if err := migrateUp(db, migrationsDir); err != nil {
		db.Close()
		return nil, err
	}

	r := &SQLiteRecorder{
		db:     db,
		events: make(chan Event, eventQueueSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r, nil
}

func migrateUp(db *sql.DB, migrationsDir string) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("telemetry: migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsDir, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("telemetry: migrate instance: %w", err)
	}
	m.Log = migrateLogger{}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("telemetry: migrate up: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) run() {
	defer close(r.done)
	for ev := range r.events {
		if err := r.insert(ev); err != nil {
			monitoring.ForSession(ev.SessionID).Frame(ev.FrameCounter, "telemetry insert failed: %v", err)
		}
	}
}

func (r *SQLiteRecorder) insert(ev Event) error {
	_, err := r.db.Exec(
		`INSERT INTO events (session_id, frame_counter, kind, step, pending_step, miss_percent, detail, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.FrameCounter, string(ev.Kind), ev.Step, ev.PendingStep, ev.MissPercent, ev.Detail, time.Now().UTC(),
	)
	return err
}

// Record enqueues ev for persistence. If the queue is full the event is
// silently dropped rather than blocking the caller.
func (r *SQLiteRecorder) Record(ev Event) {
	select {
	case r.events <- ev:
	default:
		monitoring.ForSession(ev.SessionID).Frame(ev.FrameCounter, "telemetry event queue full, dropping %s event", ev.Kind)
	}
}

// Close drains the writer goroutine and closes the database.
func (r *SQLiteRecorder) Close() error {
	close(r.events)
	<-r.done
	return r.db.Close()
}

// migrateLogger adapts this codebase's package logger to migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("telemetry: migrate: "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }
