// Package sqlite provides a SQLite-backed session store, so a restarted
// server can resume sessions that were live when it went down. Each
// session is one row holding the JSON document; change notification is
// in-process, matching the single-server deployment model.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"scatterbox/game"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	code TEXT PRIMARY KEY,
	doc TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_updated_at ON sessions (updated_at);
`

// Store persists session documents in SQLite.
type Store struct {
	sqlDB   *sql.DB
	watches *game.WatchList
	now     func() time.Time
}

// Open opens (or creates) a SQLite session store at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{
		sqlDB:   sqlDB,
		watches: game.NewWatchList(),
		now:     time.Now,
	}, nil
}

// Close drops all subscribers and closes the SQLite handle.
func (s *Store) Close() error {
	s.watches.Close()
	return s.sqlDB.Close()
}

func (s *Store) Read(ctx context.Context, code string) (*game.Session, error) {
	var doc string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT doc FROM sessions WHERE code = ?`, code).Scan(&doc)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, game.ErrNoSession
	case err != nil:
		return nil, fmt.Errorf("read session: %w", err)
	}
	return decode(doc)
}

func (s *Store) WriteNew(ctx context.Context, session *game.Session) error {
	doc, err := encode(session)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (code, doc, updated_at) VALUES (?, ?, ?)`,
		session.Code, doc, s.now().UTC().UnixMilli())
	if isUniqueViolation(err) {
		return game.ErrSessionExists
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	s.watches.Notify(session.Code, session.Clone())
	return nil
}

func (s *Store) Patch(ctx context.Context, code string, patch game.Patch) error {
	return s.mutate(ctx, code, func(session *game.Session) {
		patch.Apply(session)
	})
}

func (s *Store) WritePlayer(ctx context.Context, code string, name game.PlayerName, player game.Player) error {
	return s.mutate(ctx, code, func(session *game.Session) {
		if session.Players == nil {
			session.Players = make(map[game.PlayerName]game.Player)
		}
		session.Players[name] = player
	})
}

func (s *Store) DeletePlayer(ctx context.Context, code string, name game.PlayerName) error {
	return s.mutate(ctx, code, func(session *game.Session) {
		delete(session.Players, name)
	})
}

func (s *Store) WriteAnswers(ctx context.Context, code string, name game.PlayerName, sheet game.AnswerSheet) error {
	return s.mutate(ctx, code, func(session *game.Session) {
		if session.Answers == nil {
			session.Answers = make(map[game.PlayerName]game.AnswerSheet)
		}
		session.Answers[name] = sheet
	})
}

func (s *Store) DeleteAnswers(ctx context.Context, code string, name game.PlayerName) error {
	return s.mutate(ctx, code, func(session *game.Session) {
		delete(session.Answers, name)
	})
}

func (s *Store) Delete(ctx context.Context, code string) error {
	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM sessions WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if deleted, err := result.RowsAffected(); err == nil && deleted > 0 {
		s.watches.Notify(code, nil)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, code string, onChange func(*game.Session)) (func(), error) {
	current, err := s.Read(ctx, code)
	if err != nil && !errors.Is(err, game.ErrNoSession) {
		return nil, err
	}
	return s.watches.Subscribe(code, current, onChange), nil
}

func (s *Store) Sweep(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT code FROM sessions WHERE updated_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan stale session: %w", err)
		}
		stale = append(stale, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}

	var swept []string
	for _, code := range stale {
		if err := s.Delete(ctx, code); err != nil {
			return swept, err
		}
		swept = append(swept, code)
	}
	return swept, nil
}

// mutate applies fn to the document inside one immediate transaction,
// so each patch is atomic and committed changes notify in commit order.
func (s *Store) mutate(ctx context.Context, code string, fn func(*game.Session)) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin patch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var doc string
	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM sessions WHERE code = ?`, code).Scan(&doc)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return game.ErrNoSession
	case err != nil:
		return fmt.Errorf("read session: %w", err)
	}

	session, err := decode(doc)
	if err != nil {
		return err
	}
	fn(session)

	updated, err := encode(session)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET doc = ?, updated_at = ? WHERE code = ?`,
		updated, s.now().UTC().UnixMilli(), code); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit patch: %w", err)
	}

	s.watches.Notify(code, session)
	return nil
}

func encode(session *game.Session) (string, error) {
	doc, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	return string(doc), nil
}

func decode(doc string) (*game.Session, error) {
	var session game.Session
	if err := json.Unmarshal([]byte(doc), &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

var _ game.Store = (*Store)(nil)
