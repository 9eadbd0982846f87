package entity

import (
	"time"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
)

const (
	StatusOpen     = "open"
	StatusActive   = "active"
	StatusFinished = "finished"

	BoardSize = 9
)

// WinCombos holds the 3 rows, 3 columns and 2 diagonals of the board.
var WinCombos = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Session is the persisted state of one room.
type Session struct {
	ID         string          `json:"id"`
	RoomCode   string          `json:"room_code"`
	PlayerX    string          `json:"player_x"`
	PlayerO    string          `json:"player_o,omitempty"`
	Board      [BoardSize]Mark `json:"board"`
	Turn       Mark            `json:"turn"`
	Winner     Outcome         `json:"winner,omitempty"`
	IsFinished bool            `json:"is_finished"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewSession - creates an open session with an empty board and X to move.
func NewSession(id, roomCode, playerX string, now time.Time) *Session {
	return &Session{
		ID:        id,
		RoomCode:  roomCode,
		PlayerX:   playerX,
		Turn:      MarkX,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (that *Session) Status() string {
	switch {
	case that.IsFinished:
		return StatusFinished
	case that.PlayerO == "":
		return StatusOpen
	default:
		return StatusActive
	}
}

func (that *Session) IsOpen() bool {
	return that.Status() == StatusOpen
}

func (that *Session) IsActive() bool {
	return that.Status() == StatusActive
}

// Clone returns a copy that shares nothing with the receiver.
func (that *Session) Clone() *Session {
	clone := *that
	return &clone
}

// Join - seats the second player and sets who moves first.
func (that *Session) Join(playerName string, starting Mark, now time.Time) error {
	if that.PlayerO != "" {
		return apperror.ErrRoomFull
	}

	that.PlayerO = playerName
	that.Turn = starting
	that.UpdatedAt = now

	return nil
}

// DetermineResult - returns the mark owning a full line, OutcomeDraw for a full board
// without a line and OutcomeNone while the game continues.
func (that *Session) DetermineResult() Outcome {
	for _, combo := range WinCombos {
		a, b, c := that.Board[combo[0]], that.Board[combo[1]], that.Board[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return Outcome(a)
		}
	}

	// the game will continue until all the squares are full
	for _, cell := range that.Board {
		if cell == EmptyCell {
			return OutcomeNone
		}
	}

	return OutcomeDraw
}

// MakeTurn - validates and applies one move. A rejected move leaves the session untouched.
func (that *Session) MakeTurn(mark Mark, cell int, now time.Time) MoveResult {
	if reason := that.validateTurn(mark, cell); reason != RejectNone {
		return Rejected(reason)
	}

	that.Board[cell] = mark
	that.Turn = mark.Opponent()
	that.UpdatedAt = now

	if outcome := that.DetermineResult(); outcome != OutcomeNone {
		that.Winner = outcome
		that.IsFinished = true
	}

	return Accepted()
}

func (that *Session) validateTurn(mark Mark, cell int) RejectReason {
	switch {
	case that.IsFinished:
		return RejectGameFinished
	case that.PlayerO == "":
		return RejectGameNotStarted
	case cell < 0 || cell >= BoardSize:
		return RejectInvalidIndex
	case that.Board[cell] != EmptyCell:
		return RejectCellOccupied
	case that.Turn != mark:
		return RejectNotYourTurn
	default:
		return RejectNone
	}
}
