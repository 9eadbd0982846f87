package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

const (
	sessionKeyPrefix = "session:"
	roomKeyPrefix    = "room:"
	updatesPrefix    = "session-updates:"

	maxPatchAttempts = 16
)

// claims the room code and stores the session in one step
var insertScript = redis.NewScript(`
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2])
return 1
`)

type redisSessions struct {
	logger *slog.Logger
	client *redis.Client
}

func NewRedisSessionRepository(logger *slog.Logger, client *redis.Client) SessionRepository {
	return &redisSessions{
		logger: logger.With("component", "redis-sessions"),
		client: client,
	}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func roomKey(roomCode string) string {
	return roomKeyPrefix + roomCode
}

func updatesChannel(roomCode string) string {
	return updatesPrefix + roomCode
}

func (that *redisSessions) FindByRoomCode(ctx context.Context, roomCode string) (*entity.Session, error) {
	id, err := that.client.Get(ctx, roomKey(roomCode)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", roomCode, err)
	}

	return that.FindByID(ctx, id)
}

func (that *redisSessions) FindByID(ctx context.Context, id string) (*entity.Session, error) {
	response, err := that.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}

	return decodeSession(response)
}

func (that *redisSessions) Insert(ctx context.Context, session *entity.Session) (string, error) {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("could not marshal session: %w", err)
	}

	keys := []string{roomKey(session.RoomCode), sessionKey(session.ID)}

	inserted, err := insertScript.Run(ctx, that.client, keys, session.ID, sessionJSON).Int()
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	if inserted == 0 {
		return "", fmt.Errorf("%w: %s", ErrRoomCodeTaken, session.RoomCode)
	}

	that.publish(ctx, session.RoomCode, sessionJSON)

	return session.ID, nil
}

// Patch - optimistic WATCH/MULTI transaction, retried when another writer got there first.
func (that *redisSessions) Patch(ctx context.Context, id string, patch PatchFunc) (*entity.Session, error) {
	key := sessionKey(id)

	for range maxPatchAttempts {
		var (
			result      *entity.Session
			updatedJSON []byte
		)

		err := that.client.Watch(ctx, func(tx *redis.Tx) error {
			response, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return ErrSessionNotFound
			}

			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}

			current, err := decodeSession(response)
			if err != nil {
				return err
			}

			updated, changed, err := applyPatch(current, patch)
			if err != nil {
				return err
			}

			result = updated
			if !changed {
				return nil
			}

			if updatedJSON, err = json.Marshal(updated); err != nil {
				return fmt.Errorf("could not marshal session: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updatedJSON, 0)
				return nil
			})

			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if err != nil {
			return nil, err
		}

		if updatedJSON != nil {
			that.publish(ctx, result.RoomCode, updatedJSON)
		}

		return result, nil
	}

	return nil, fmt.Errorf("%w: session %s", ErrPatchConflict, id)
}

func (that *redisSessions) Subscribe(ctx context.Context, roomCode string) (<-chan *entity.Session, error) {
	log := that.logger.With("method", "Subscribe", "roomCode", roomCode)

	pubsub := that.client.Subscribe(ctx, updatesChannel(roomCode))

	// wait for the confirmation so no publish after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room updates: %w", err)
	}

	out := make(chan *entity.Session)

	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				session, err := decodeSession([]byte(msg.Payload))
				if err != nil {
					log.Error("failed to decode session update", "error", err)
					continue
				}

				select {
				case out <- session:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (that *redisSessions) publish(ctx context.Context, roomCode string, sessionJSON []byte) {
	if err := that.client.Publish(ctx, updatesChannel(roomCode), sessionJSON).Err(); err != nil {
		that.logger.Error("failed to publish session update", "roomCode", roomCode, "error", err)
	}
}

func decodeSession(raw []byte) (*entity.Session, error) {
	var session entity.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}
