package entity

import "github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"

// Mark is a player symbol. The zero value is an empty cell.
type Mark string

const (
	MarkX     Mark = "X"
	MarkO     Mark = "O"
	EmptyCell Mark = ""
)

func (that Mark) IsValid() bool {
	return that == MarkX || that == MarkO
}

func (that Mark) Opponent() Mark {
	if that == MarkX {
		return MarkO
	}
	return MarkX
}

// Outcome is the final result of a session.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeX    Outcome = Outcome(MarkX)
	OutcomeO    Outcome = Outcome(MarkO)
	OutcomeDraw Outcome = "Draw"
)

// RejectReason explains why a move was not applied.
type RejectReason string

const (
	RejectNone            RejectReason = ""
	RejectSessionNotFound RejectReason = "session_not_found"
	RejectGameNotStarted  RejectReason = "game_not_started"
	RejectGameFinished    RejectReason = "game_finished"
	RejectInvalidIndex    RejectReason = "invalid_index"
	RejectCellOccupied    RejectReason = "cell_occupied"
	RejectNotYourTurn     RejectReason = "not_your_turn"
)

// Err maps the reason to its sentinel error, nil for RejectNone.
func (that RejectReason) Err() error {
	switch that {
	case RejectSessionNotFound:
		return apperror.ErrSessionNotFound
	case RejectGameNotStarted:
		return apperror.ErrGameIsNotStarted
	case RejectGameFinished:
		return apperror.ErrGameFinished
	case RejectInvalidIndex:
		return apperror.ErrInvalidCell
	case RejectCellOccupied:
		return apperror.ErrCellOccupied
	case RejectNotYourTurn:
		return apperror.ErrNotYourTurn
	default:
		return nil
	}
}

// MoveResult is either accepted or rejected with a reason.
type MoveResult struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
}

func Accepted() MoveResult {
	return MoveResult{Accepted: true}
}

func Rejected(reason RejectReason) MoveResult {
	return MoveResult{Reason: reason}
}
