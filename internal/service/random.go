package service

import (
	"math/rand/v2"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

// MarkPicker decides which mark moves first once the second player joins.
type MarkPicker interface {
	Pick() entity.Mark
}

type randomPicker struct{}

// NewRandomPicker - picks X or O with equal probability.
func NewRandomPicker() MarkPicker {
	return randomPicker{}
}

func (randomPicker) Pick() entity.Mark {
	if rand.IntN(2) == 0 { //nolint: gosec // who moves first is not a secret
		return entity.MarkX
	}

	return entity.MarkO
}

// FixedPicker always returns the same mark.
type FixedPicker entity.Mark

func (that FixedPicker) Pick() entity.Mark {
	return entity.Mark(that)
}
