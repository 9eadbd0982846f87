package websocket

import (
	"context"
	"encoding/json"
	"fmt"
)

func (that *Server) handleGameState(ctx context.Context, c *client, _ *Message) error {
	session, err := that.games.GetState(ctx, c.roomCode)
	if err != nil {
		_ = c.sendError(ctx, actionGameState, "failed to get the game")
		return fmt.Errorf("failed to get state: %w", err)
	}

	return c.sendState(ctx, session)
}

// handleGameTurn - replies with the move result only; the new state reaches every client by push.
func (that *Server) handleGameTurn(ctx context.Context, c *client, msg *Message) error {
	log := that.logger.With("method", "handleGameTurn", "roomCode", c.roomCode)

	var payload TurnPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Cell == nil {
		return c.sendError(ctx, msg.Action, "cell is required")
	}

	seat, err := that.tokens.Parse(payload.Token)
	if err != nil {
		return c.sendError(ctx, msg.Action, "invalid token")
	}

	if seat.SessionID != c.sessionID {
		return c.sendError(ctx, msg.Action, "token does not belong to this room")
	}

	_, result, err := that.games.Play(ctx, seat.SessionID, *payload.Cell, seat.Mark)
	if err != nil {
		_ = c.sendError(ctx, msg.Action, "failed to make turn")
		return fmt.Errorf("failed to make turn: %w", err)
	}

	log.Debug("turn handled", "mark", seat.Mark, "cell", *payload.Cell, "accepted", result.Accepted)

	return c.sendMessage(ctx, actionGameTurn, result)
}
