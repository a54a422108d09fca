package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_logs (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT NOT NULL UNIQUE,
	call_type        TEXT NOT NULL,
	participants     TEXT NOT NULL,
	status           TEXT NOT NULL,
	started_at       INTEGER,
	connected_at     INTEGER,
	ended_at         INTEGER,
	duration_seconds INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS call_logs_status ON call_logs(status);
`

const selectColumns = `id, call_type, participants, status, started_at, connected_at, ended_at, duration_seconds`

// SQLite is a CallLogStore backed by a single database file.
type SQLite struct {
	pool *sqlitex.Pool
	path string
}

func OpenSQLite(path string, poolSize int) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("store: sqlite path is required")
	}
	if poolSize <= 0 {
		poolSize = 4
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	log.Info().Str("module", "store").Str("path", path).Int("pool_size", poolSize).Msg("sqlite opened")
	return &SQLite{pool: pool, path: path}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	return sqlitex.ExecuteScript(conn, schema, nil)
}

func (s *SQLite) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("store: closing %s: %w", s.path, err)
	}
	log.Info().Str("module", "store").Str("path", s.path).Msg("sqlite closed")
	return nil
}

func (s *SQLite) CreateLog(ctx context.Context, ct domain.CallType, participants []domain.UserID) (core.CallLogID, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", fmt.Errorf("store: create log: %w", err)
	}
	defer s.pool.Put(conn)

	parts, err := json.Marshal(participants)
	if err != nil {
		return "", fmt.Errorf("store: marshal participants: %w", err)
	}
	id := core.CallLogID(uuid.NewString())
	err = sqlitex.Execute(conn,
		`INSERT INTO call_logs (id, call_type, participants, status) VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{string(id), string(ct), string(parts), string(domain.CallStatusInitiated)}})
	if err != nil {
		return "", fmt.Errorf("store: insert call log: %w", err)
	}
	return id, nil
}

// UpdateLog merges upd into the stored row inside one IMMEDIATE transaction.
func (s *SQLite) UpdateLog(ctx context.Context, id core.CallLogID, upd core.CallLogUpdate) (err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: update log: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	l, err := getLog(conn, id)
	if err != nil {
		return err
	}
	apply(&l, upd)
	return sqlitex.Execute(conn,
		`UPDATE call_logs SET status = ?, started_at = ?, connected_at = ?, ended_at = ?, duration_seconds = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{
			string(l.Status), unixOrNil(l.StartedAt), unixOrNil(l.ConnectedAt), unixOrNil(l.EndedAt),
			l.DurationSeconds, string(id),
		}})
}

func (s *SQLite) Get(ctx context.Context, id core.CallLogID) (core.CallLog, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return core.CallLog{}, fmt.Errorf("store: get log: %w", err)
	}
	defer s.pool.Put(conn)
	return getLog(conn, id)
}

// Recent returns up to limit logs, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]core.CallLog, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: recent logs: %w", err)
	}
	defer s.pool.Put(conn)

	var out []core.CallLog
	err = sqlitex.Execute(conn,
		`SELECT `+selectColumns+` FROM call_logs ORDER BY seq DESC LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				l, err := scanLog(stmt)
				if err != nil {
					return err
				}
				out = append(out, l)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: recent logs: %w", err)
	}
	return out, nil
}

func getLog(conn *sqlite.Conn, id core.CallLogID) (core.CallLog, error) {
	var (
		l     core.CallLog
		found bool
	)
	err := sqlitex.Execute(conn,
		`SELECT `+selectColumns+` FROM call_logs WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(id)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var err error
				l, err = scanLog(stmt)
				found = true
				return err
			},
		})
	if err != nil {
		return core.CallLog{}, fmt.Errorf("store: select call log: %w", err)
	}
	if !found {
		return core.CallLog{}, ErrNotFound
	}
	return l, nil
}

func scanLog(stmt *sqlite.Stmt) (core.CallLog, error) {
	l := core.CallLog{
		ID:              core.CallLogID(stmt.ColumnText(0)),
		CallType:        domain.CallType(stmt.ColumnText(1)),
		Status:          domain.CallStatus(stmt.ColumnText(3)),
		StartedAt:       timeOrZero(stmt, 4),
		ConnectedAt:     timeOrZero(stmt, 5),
		EndedAt:         timeOrZero(stmt, 6),
		DurationSeconds: stmt.ColumnInt(7),
	}
	if err := json.Unmarshal([]byte(stmt.ColumnText(2)), &l.Participants); err != nil {
		return core.CallLog{}, fmt.Errorf("store: participants of %s: %w", l.ID, err)
	}
	return l, nil
}

func unixOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixNano()
}

func timeOrZero(stmt *sqlite.Stmt, col int) time.Time {
	if stmt.ColumnIsNull(col) {
		return time.Time{}
	}
	return time.Unix(0, stmt.ColumnInt64(col)).UTC()
}
