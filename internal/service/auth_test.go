package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

func TestSeatTokenService_RoundTrip(t *testing.T) {
	tokens := NewSeatTokenService("secret", time.Hour)

	// Given: a token issued for the O seat
	seat := Seat{SessionID: "s-1", Mark: entity.MarkO, PlayerName: "Bo"}
	token, err := tokens.Generate(seat)
	require.NoError(t, err)

	// When: it is parsed back
	parsed, err := tokens.Parse(token)

	// Then: the same seat comes out
	require.NoError(t, err)
	assert.Equal(t, seat, parsed)
}

func TestSeatTokenService_Rejects(t *testing.T) {
	tokens := NewSeatTokenService("secret", time.Hour)
	token, err := tokens.Generate(Seat{SessionID: "s-1", Mark: entity.MarkX, PlayerName: "Ali"})
	require.NoError(t, err)

	t.Run("WrongSecret", func(t *testing.T) {
		_, err := NewSeatTokenService("other", time.Hour).Parse(token)
		require.ErrorIs(t, err, apperror.ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		expired := NewSeatTokenService("secret", time.Hour)
		expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		_, err := expired.Parse(token)
		require.ErrorIs(t, err, apperror.ErrInvalidToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := tokens.Parse("not-a-token")
		require.ErrorIs(t, err, apperror.ErrInvalidToken)
	})
}

func TestSeatTokenService_GenerateInvalidMark(t *testing.T) {
	_, err := NewSeatTokenService("secret", time.Hour).Generate(Seat{SessionID: "s-1"})
	require.ErrorIs(t, err, apperror.ErrInvalidInput)
}
