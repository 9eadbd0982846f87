package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/pkg"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/repository"
)

const maxRoomCodeAttempts = 5

type sessionRepo interface {
	FindByRoomCode(ctx context.Context, roomCode string) (*entity.Session, error)
	FindByID(ctx context.Context, id string) (*entity.Session, error)
	Insert(ctx context.Context, session *entity.Session) (string, error)
	Patch(ctx context.Context, id string, patch repository.PatchFunc) (*entity.Session, error)
	Subscribe(ctx context.Context, roomCode string) (<-chan *entity.Session, error)
}

// GameSessionService - creates and joins rooms, reads their state and applies moves.
// It keeps no state of its own; every mutation is a single repository patch.
type GameSessionService struct {
	logger   *slog.Logger
	sessions sessionRepo
	picker   MarkPicker
	now      func() time.Time
}

func NewGameSessionService(logger *slog.Logger, sessions sessionRepo, picker MarkPicker) *GameSessionService {
	return &GameSessionService{
		logger:   logger.With("component", "game-session-service"),
		sessions: sessions,
		picker:   picker,
		now:      time.Now,
	}
}

// Create - opens a room with playerName as X and returns the session handle.
func (that *GameSessionService) Create(ctx context.Context, playerName, roomCode string) (string, error) {
	log := that.logger.With("method", "Create", "roomCode", roomCode)

	playerName, roomCode, err := normalize(playerName, roomCode)
	if err != nil {
		return "", err
	}

	session := entity.NewSession(pkg.NewSessionHandle(), roomCode, playerName, that.now().UTC())

	id, err := that.sessions.Insert(ctx, session)
	if errors.Is(err, repository.ErrRoomCodeTaken) {
		return "", fmt.Errorf("%w: %s", apperror.ErrRoomAlreadyExists, roomCode)
	}

	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	log.Info("room created", "sessionID", id)

	return id, nil
}

// CreateWithGeneratedCode - like Create, with a generated room code.
func (that *GameSessionService) CreateWithGeneratedCode(ctx context.Context, playerName string) (string, string, error) {
	for range maxRoomCodeAttempts {
		roomCode, err := pkg.GenerateRoomCode()
		if err != nil {
			return "", "", err
		}

		id, err := that.Create(ctx, playerName, roomCode)
		if errors.Is(err, apperror.ErrRoomAlreadyExists) {
			continue
		}

		if err != nil {
			return "", "", err
		}

		return id, roomCode, nil
	}

	return "", "", fmt.Errorf("failed to generate a free room code: %w", apperror.ErrRoomAlreadyExists)
}

// Join - seats playerName as O and decides who moves first.
func (that *GameSessionService) Join(ctx context.Context, playerName, roomCode string) (string, error) {
	log := that.logger.With("method", "Join", "roomCode", roomCode)

	playerName, roomCode, err := normalize(playerName, roomCode)
	if err != nil {
		return "", err
	}

	existing, err := that.findByRoomCode(ctx, roomCode)
	if err != nil {
		return "", err
	}

	starting := that.picker.Pick()

	session, err := that.sessions.Patch(ctx, existing.ID, func(session *entity.Session) error {
		return session.Join(playerName, starting, that.now().UTC())
	})
	if errors.Is(err, apperror.ErrRoomFull) {
		return "", fmt.Errorf("%w: %s", apperror.ErrRoomFull, roomCode)
	}

	if errors.Is(err, repository.ErrSessionNotFound) {
		return "", fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, roomCode)
	}

	if err != nil {
		return "", fmt.Errorf("failed to join session: %w", err)
	}

	log.Info("player joined", "sessionID", session.ID, "starting", session.Turn)

	return session.ID, nil
}

// GetState - returns a snapshot of the room. The snapshot is never modified by the service.
func (that *GameSessionService) GetState(ctx context.Context, roomCode string) (*entity.Session, error) {
	return that.findByRoomCode(ctx, strings.TrimSpace(roomCode))
}

// GetSession - returns a snapshot of the session behind a handle.
func (that *GameSessionService) GetSession(ctx context.Context, handle string) (*entity.Session, error) {
	session, err := that.sessions.FindByID(ctx, handle)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, apperror.ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

// Move - places asPlayer on cell. Rule violations come back as a rejected result, the error is
// reserved for storage failures.
func (that *GameSessionService) Move(ctx context.Context, handle string, cell int, asPlayer entity.Mark) (entity.MoveResult, error) {
	_, result, err := that.Play(ctx, handle, cell, asPlayer)

	return result, err
}

// Play - Move that also returns the session as it is after the attempt.
func (that *GameSessionService) Play(
	ctx context.Context,
	handle string,
	cell int,
	asPlayer entity.Mark,
) (*entity.Session, entity.MoveResult, error) {
	log := that.logger.With("method", "Play", "sessionID", handle)

	var result entity.MoveResult

	session, err := that.sessions.Patch(ctx, handle, func(session *entity.Session) error {
		result = session.MakeTurn(asPlayer, cell, that.now().UTC())
		if !result.Accepted {
			return repository.ErrNoChange
		}

		return nil
	})
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, entity.Rejected(entity.RejectSessionNotFound), nil
	}

	if err != nil {
		return nil, entity.MoveResult{}, fmt.Errorf("failed to make turn: %w", err)
	}

	if !result.Accepted {
		log.Debug("move rejected", "mark", asPlayer, "cell", cell, "reason", result.Reason)
		return session, result, nil
	}

	if session.IsFinished {
		log.Info("game finished", "roomCode", session.RoomCode, "winner", session.Winner)
	}

	return session, result, nil
}

// Watch - streams snapshots of the room after every committed change until ctx is done.
func (that *GameSessionService) Watch(ctx context.Context, roomCode string) (<-chan *entity.Session, error) {
	updates, err := that.sessions.Subscribe(ctx, roomCode)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to room: %w", err)
	}

	return updates, nil
}

func (that *GameSessionService) findByRoomCode(ctx context.Context, roomCode string) (*entity.Session, error) {
	session, err := that.sessions.FindByRoomCode(ctx, roomCode)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomNotFound, roomCode)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

func normalize(playerName, roomCode string) (string, string, error) {
	playerName = strings.TrimSpace(playerName)
	roomCode = strings.TrimSpace(roomCode)

	if playerName == "" {
		return "", "", fmt.Errorf("%w: player name is empty", apperror.ErrInvalidInput)
	}

	if roomCode == "" {
		return "", "", fmt.Errorf("%w: room code is empty", apperror.ErrInvalidInput)
	}

	return playerName, roomCode, nil
}
