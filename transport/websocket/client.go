package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

const (
	actionGameState = "game:state"
	actionGameTurn  = "game:turn"
	actionError     = "error"
)

type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TurnPayload struct {
	Token string `json:"token"`
	Cell  *int   `json:"cell"`
}

type StatePayload struct {
	Status  string          `json:"status"`
	Session *entity.Session `json:"session"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// client - one connection. Only writePump writes to conn.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	roomCode  string
	sessionID string
}

func newClient(conn *websocket.Conn, roomCode, sessionID string) *client {
	return &client{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		roomCode:  roomCode,
		sessionID: sessionID,
	}
}

func (that *client) writePump(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cancel()
		_ = that.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = that.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-that.send:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = that.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := that.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (that *client) sendMessage(ctx context.Context, action string, payload any) error {
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(Message{Action: action, Payload: rawPayload})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case that.send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (that *client) sendState(ctx context.Context, session *entity.Session) error {
	return that.sendMessage(ctx, actionGameState, StatePayload{Status: session.Status(), Session: session})
}

func (that *client) sendError(ctx context.Context, action, reason string) error {
	return that.sendMessage(ctx, actionError, ErrorPayload{Error: fmt.Sprintf("%s: %s", action, reason)})
}
