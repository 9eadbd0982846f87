package repository

import (
	"context"
	"errors"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRoomCodeTaken   = errors.New("room code already taken")
	ErrPatchConflict   = errors.New("too many concurrent updates")

	// ErrNoChange aborts a patch without writing and without an error for the caller.
	ErrNoChange = errors.New("no change")
)

// PatchFunc mutates a session in place. Returning an error discards the mutation.
type PatchFunc func(session *entity.Session) error

// SessionRepository stores sessions keyed by id and by room code.
//
// Patch is an atomic read-modify-write: concurrent patches of one session are serialized,
// so PatchFunc always observes the latest committed state. Every committed Insert or Patch
// is published to the subscribers of the session's room code.
type SessionRepository interface {
	FindByRoomCode(ctx context.Context, roomCode string) (*entity.Session, error)
	FindByID(ctx context.Context, id string) (*entity.Session, error)

	Insert(ctx context.Context, session *entity.Session) (string, error)
	Patch(ctx context.Context, id string, patch PatchFunc) (*entity.Session, error)

	// Subscribe - the returned channel is closed once ctx is done.
	Subscribe(ctx context.Context, roomCode string) (<-chan *entity.Session, error)
}

// applyPatch runs patch on a copy and reports whether the copy should be written.
func applyPatch(current *entity.Session, patch PatchFunc) (*entity.Session, bool, error) {
	updated := current.Clone()

	if err := patch(updated); err != nil {
		if errors.Is(err, ErrNoChange) {
			return current, false, nil
		}
		return nil, false, err
	}

	return updated, true, nil
}
