package pkg

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const roomCodeUpperBound = 99999999

// NewSessionHandle - generates an opaque session identifier.
func NewSessionHandle() string {
	return uuid.NewString()
}

// GenerateRoomCode - generates a numeric room code for callers that did not choose one.
func GenerateRoomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(roomCodeUpperBound))
	if err != nil {
		return "", fmt.Errorf("failed to generate room code: %w", err)
	}

	return n.String(), nil
}
