package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/testing/suite"
)

var createdAt = time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)

func TestMemorySessionRepository(t *testing.T) {
	testSessionRepository(t, func(t *testing.T) (context.Context, SessionRepository) {
		return context.Background(), NewMemorySessionRepository()
	})
}

func TestSQLiteSessionRepository(t *testing.T) {
	testSessionRepository(t, func(t *testing.T) (context.Context, SessionRepository) {
		ctx, conn := suite.NewSQLite(t)
		return ctx, NewSQLiteSessionRepository(conn)
	})
}

func TestRedisSessionRepository(t *testing.T) {
	testSessionRepository(t, func(t *testing.T) (context.Context, SessionRepository) {
		ctx, st := suite.New(t)
		return ctx, NewRedisSessionRepository(st.Logger, st.Storage)
	})
}

// testSessionRepository - behaviour every SessionRepository backend shares.
func testSessionRepository(t *testing.T, setup func(t *testing.T) (context.Context, SessionRepository)) {
	t.Run("Insert_FindByRoomCodeAndID", func(t *testing.T) {
		ctx, repo := setup(t)

		// Given: a new session in room R1
		session := entity.NewSession("s-1", "R1", "Ali", createdAt)

		// When: it is inserted
		id, err := repo.Insert(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, "s-1", id)

		// Then: it is found by both keys
		byRoom, err := repo.FindByRoomCode(ctx, "R1")
		require.NoError(t, err)
		assert.Equal(t, "Ali", byRoom.PlayerX)
		assert.Equal(t, entity.MarkX, byRoom.Turn)

		byID, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "R1", byID.RoomCode)
		assert.True(t, createdAt.Equal(byID.CreatedAt))
	})

	t.Run("Insert_RoomCodeTaken", func(t *testing.T) {
		ctx, repo := setup(t)

		_, err := repo.Insert(ctx, entity.NewSession("s-1", "R1", "Ali", createdAt))
		require.NoError(t, err)

		// When: a second session claims the same room code
		_, err = repo.Insert(ctx, entity.NewSession("s-2", "R1", "Bo", createdAt))

		// Then: it is refused and the first session is untouched
		require.ErrorIs(t, err, ErrRoomCodeTaken)

		session, err := repo.FindByRoomCode(ctx, "R1")
		require.NoError(t, err)
		assert.Equal(t, "Ali", session.PlayerX)

		_, err = repo.FindByID(ctx, "s-2")
		require.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("Find_NotFound", func(t *testing.T) {
		ctx, repo := setup(t)

		_, err := repo.FindByRoomCode(ctx, "missing")
		require.ErrorIs(t, err, ErrSessionNotFound)

		_, err = repo.FindByID(ctx, "missing")
		require.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("Patch_Applies", func(t *testing.T) {
		ctx, repo := setup(t)

		id, err := repo.Insert(ctx, entity.NewSession("s-1", "R1", "Ali", createdAt))
		require.NoError(t, err)

		// When: the session is patched
		updated, err := repo.Patch(ctx, id, func(session *entity.Session) error {
			return session.Join("Bo", entity.MarkO, createdAt.Add(time.Second))
		})

		// Then: the patched state is returned and stored
		require.NoError(t, err)
		assert.Equal(t, "Bo", updated.PlayerO)
		assert.Equal(t, entity.MarkO, updated.Turn)

		stored, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, updated, stored)
	})

	t.Run("Patch_ErrorDiscardsChanges", func(t *testing.T) {
		ctx, repo := setup(t)

		id, err := repo.Insert(ctx, entity.NewSession("s-1", "R1", "Ali", createdAt))
		require.NoError(t, err)

		errBoom := errors.New("boom")

		// When: the patch fails after mutating its copy
		_, err = repo.Patch(ctx, id, func(session *entity.Session) error {
			session.PlayerO = "Bo"
			return errBoom
		})

		// Then: the error is returned and nothing was written
		require.ErrorIs(t, err, errBoom)

		stored, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, stored.PlayerO)
	})

	t.Run("Patch_NoChange", func(t *testing.T) {
		ctx, repo := setup(t)

		id, err := repo.Insert(ctx, entity.NewSession("s-1", "R1", "Ali", createdAt))
		require.NoError(t, err)

		// When: the patch aborts with ErrNoChange
		current, err := repo.Patch(ctx, id, func(session *entity.Session) error {
			session.PlayerO = "Bo"
			return ErrNoChange
		})

		// Then: no error and the current state is returned unchanged
		require.NoError(t, err)
		assert.Empty(t, current.PlayerO)
		assert.Equal(t, "Ali", current.PlayerX)
	})

	t.Run("Patch_NotFound", func(t *testing.T) {
		ctx, repo := setup(t)

		_, err := repo.Patch(ctx, "missing", func(*entity.Session) error { return nil })
		require.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("Patch_ConcurrentWritersAreSerialized", func(t *testing.T) {
		ctx, repo := setup(t)

		id, err := repo.Insert(ctx, entity.NewSession("s-1", "R1", "Ali", createdAt))
		require.NoError(t, err)

		// Given: one writer per cell, each taking the first empty cell it sees
		var wg sync.WaitGroup
		errs := make(chan error, entity.BoardSize)

		for range entity.BoardSize {
			wg.Add(1)
			go func() {
				defer wg.Done()

				_, patchErr := repo.Patch(ctx, id, func(session *entity.Session) error {
					for i, cell := range session.Board {
						if cell == entity.EmptyCell {
							session.Board[i] = entity.MarkX
							return nil
						}
					}
					return ErrNoChange
				})
				errs <- patchErr
			}()
		}

		wg.Wait()
		close(errs)

		for patchErr := range errs {
			require.NoError(t, patchErr)
		}

		// Then: no update was lost
		stored, err := repo.FindByID(ctx, id)
		require.NoError(t, err)
		for i, cell := range stored.Board {
			assert.Equal(t, entity.MarkX, cell, "cell %d", i)
		}
	})

	t.Run("Subscribe_ReceivesPatches", func(t *testing.T) {
		ctx, repo := setup(t)

		id, err := repo.Insert(ctx, entity.NewSession("s-1", "R1", "Ali", createdAt))
		require.NoError(t, err)

		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		updates, err := repo.Subscribe(subCtx, "R1")
		require.NoError(t, err)

		// When: the session is patched
		_, err = repo.Patch(ctx, id, func(session *entity.Session) error {
			return session.Join("Bo", entity.MarkX, createdAt)
		})
		require.NoError(t, err)

		// Then: the subscriber sees the new snapshot
		select {
		case session := <-updates:
			require.NotNil(t, session)
			assert.Equal(t, "Bo", session.PlayerO)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for session update")
		}

		// And: the channel is closed once the subscription is canceled
		cancel()
		assert.Eventually(t, func() bool {
			select {
			case _, ok := <-updates:
				return !ok
			default:
				return false
			}
		}, 5*time.Second, 10*time.Millisecond)
	})
}
