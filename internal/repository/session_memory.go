package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/repository/notify"
)

type memorySessions struct {
	mu       sync.RWMutex
	byID     map[string]*entity.Session
	idByRoom map[string]string
	locks    map[string]*sync.Mutex

	hub *notify.Hub
}

// NewMemorySessionRepository - sessions live in process memory and are lost on restart.
func NewMemorySessionRepository() SessionRepository {
	return &memorySessions{
		byID:     make(map[string]*entity.Session),
		idByRoom: make(map[string]string),
		locks:    make(map[string]*sync.Mutex),
		hub:      notify.NewHub(),
	}
}

func (that *memorySessions) FindByRoomCode(_ context.Context, roomCode string) (*entity.Session, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	id, ok := that.idByRoom[roomCode]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return that.byID[id].Clone(), nil
}

func (that *memorySessions) FindByID(_ context.Context, id string) (*entity.Session, error) {
	that.mu.RLock()
	defer that.mu.RUnlock()

	session, ok := that.byID[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return session.Clone(), nil
}

func (that *memorySessions) Insert(_ context.Context, session *entity.Session) (string, error) {
	that.mu.Lock()

	if _, taken := that.idByRoom[session.RoomCode]; taken {
		that.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrRoomCodeTaken, session.RoomCode)
	}

	stored := session.Clone()
	that.byID[stored.ID] = stored
	that.idByRoom[stored.RoomCode] = stored.ID
	that.locks[stored.ID] = &sync.Mutex{}

	that.mu.Unlock()

	that.hub.Publish(stored)

	return stored.ID, nil
}

func (that *memorySessions) Patch(_ context.Context, id string, patch PatchFunc) (*entity.Session, error) {
	that.mu.RLock()
	lock, ok := that.locks[id]
	that.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}

	// one writer per session; other rooms are not blocked
	lock.Lock()
	defer lock.Unlock()

	that.mu.RLock()
	current := that.byID[id]
	that.mu.RUnlock()

	updated, changed, err := applyPatch(current, patch)
	if err != nil {
		return nil, err
	}

	if !changed {
		return current.Clone(), nil
	}

	that.mu.Lock()
	that.byID[id] = updated
	that.mu.Unlock()

	that.hub.Publish(updated)

	return updated.Clone(), nil
}

func (that *memorySessions) Subscribe(ctx context.Context, roomCode string) (<-chan *entity.Session, error) {
	return that.hub.Subscribe(ctx, roomCode), nil
}
