package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "github.com/ztroop/zephyr/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is the durable backend for State.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (or creates) the state database and runs migrations.
// A database that cannot be opened or migrated is a fatal startup error for
// the caller; there is no degraded mode.
func Open(path string, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("state path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("state migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads the full persisted state, including rows for commands that no
// longer exist in the config (orphans keep their history).
func (s *Store) Load(ctx context.Context) (*State, error) {
	st := NewState()

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, last_run_at, last_outcome, last_exit_status, last_duration_ms, next_due_override
		 FROM commands`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name     string
			lastRun  sql.NullString
			outcome  string
			exit     sql.NullInt64
			durMS    sql.NullInt64
			override sql.NullString
		)
		if err := rows.Scan(&name, &lastRun, &outcome, &exit, &durMS, &override); err != nil {
			return nil, err
		}
		cs := Command{LastOutcome: Outcome(outcome)}
		if cs.LastRunAt, err = parseNullTime(lastRun); err != nil {
			return nil, fmt.Errorf("state: command %q: %w", name, err)
		}
		if exit.Valid {
			cs.LastExitStatus = int(exit.Int64)
		}
		if durMS.Valid {
			cs.LastDuration = time.Duration(durMS.Int64) * time.Millisecond
		}
		if cs.NextDueOverride, err = parseNullTime(override); err != nil {
			return nil, fmt.Errorf("state: command %q: %w", name, err)
		}
		st.Commands[name] = cs
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var tick sql.NullString
	err = s.db.QueryRowContext(ctx, `SELECT last_tick_at FROM scheduler WHERE id = 1`).Scan(&tick)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if st.LastTickAt, err = parseNullTime(tick); err != nil {
		return nil, fmt.Errorf("state: last_tick_at: %w", err)
	}
	return st, nil
}

// Flush writes the whole state in one transaction (all-or-nothing). Rows not
// present in st are left untouched, never deleted.
func (s *Store) Flush(ctx context.Context, st *State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for name, cs := range st.Commands {
		var exit any
		if cs.LastOutcome == OutcomeExit {
			exit = cs.LastExitStatus
		}
		var durMS any
		if cs.LastDuration > 0 {
			durMS = cs.LastDuration.Milliseconds()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO commands(name, last_run_at, last_outcome, last_exit_status, last_duration_ms, next_due_override)
			 VALUES(?,?,?,?,?,?)
			 ON CONFLICT(name) DO UPDATE SET
			   last_run_at=excluded.last_run_at,
			   last_outcome=excluded.last_outcome,
			   last_exit_status=excluded.last_exit_status,
			   last_duration_ms=excluded.last_duration_ms,
			   next_due_override=excluded.next_due_override`,
			name, nullTime(cs.LastRunAt), string(cs.LastOutcome), exit, durMS, nullTime(cs.NextDueOverride),
		)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scheduler(id, last_tick_at) VALUES(1,?)
		 ON CONFLICT(id) DO UPDATE SET last_tick_at=excluded.last_tick_at`,
		nullTime(st.LastTickAt),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Reset drops all persisted state and recreates the schema.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS commands`); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS scheduler`); err != nil {
		return err
	}
	return s.migrate(ctx)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullTime(v sql.NullString) (time.Time, error) {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", v.String, err)
	}
	return t, nil
}
