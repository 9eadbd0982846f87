package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/repository/notify"
)

type sqliteSessions struct {
	// orders commit and publish of patches made through this process
	mu sync.Mutex

	conn *sql.DB
	hub  *notify.Hub
}

// NewSQLiteSessionRepository - expects the sessions table created by storage.Init.
func NewSQLiteSessionRepository(conn *sql.DB) SessionRepository {
	return &sqliteSessions{
		conn: conn,
		hub:  notify.NewHub(),
	}
}

func (that *sqliteSessions) FindByRoomCode(ctx context.Context, roomCode string) (*entity.Session, error) {
	query := `SELECT state FROM sessions WHERE room_code = ?`

	return that.findOne(ctx, that.conn, query, roomCode)
}

func (that *sqliteSessions) FindByID(ctx context.Context, id string) (*entity.Session, error) {
	query := `SELECT state FROM sessions WHERE id = ?`

	return that.findOne(ctx, that.conn, query, id)
}

func (that *sqliteSessions) Insert(ctx context.Context, session *entity.Session) (string, error) {
	query := `INSERT INTO sessions (id, room_code, state, updated_at) VALUES (?, ?, ?, ?)`

	state, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("could not marshal session: %w", err)
	}

	_, err = that.conn.ExecContext(ctx, query, session.ID, session.RoomCode, string(state), session.UpdatedAt)
	if isUniqueViolation(err) {
		return "", fmt.Errorf("%w: %s", ErrRoomCodeTaken, session.RoomCode)
	}

	if err != nil {
		return "", fmt.Errorf("can't save session: %w", err)
	}

	that.hub.Publish(session)

	return session.ID, nil
}

func (that *sqliteSessions) Patch(ctx context.Context, id string, patch PatchFunc) (*entity.Session, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	tx, err := that.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("can't begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	current, err := that.findOne(ctx, tx, `SELECT state FROM sessions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}

	updated, changed, err := applyPatch(current, patch)
	if err != nil {
		return nil, err
	}

	if !changed {
		return updated, nil
	}

	state, err := json.Marshal(updated)
	if err != nil {
		return nil, fmt.Errorf("could not marshal session: %w", err)
	}

	query := `UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?`
	if _, err = tx.ExecContext(ctx, query, string(state), updated.UpdatedAt, id); err != nil {
		return nil, fmt.Errorf("can't update session: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("can't commit session update: %w", err)
	}

	that.hub.Publish(updated)

	return updated, nil
}

func (that *sqliteSessions) Subscribe(ctx context.Context, roomCode string) (<-chan *entity.Session, error) {
	return that.hub.Subscribe(ctx, roomCode), nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (that *sqliteSessions) findOne(ctx context.Context, db queryRower, query string, arg string) (*entity.Session, error) {
	var state string

	err := db.QueryRowContext(ctx, query, arg).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("can't find session: %w", err)
	}

	return decodeSession([]byte(state))
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
