package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/service"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024
	sendBuffer     = 32
)

type gameService interface {
	GetState(ctx context.Context, roomCode string) (*entity.Session, error)
	Watch(ctx context.Context, roomCode string) (<-chan *entity.Session, error)
	Play(ctx context.Context, handle string, cell int, asPlayer entity.Mark) (*entity.Session, entity.MoveResult, error)
}

type seatTokens interface {
	Parse(token string) (service.Seat, error)
}

type handlerFunc func(ctx context.Context, client *client, message *Message) error

// Server streams room snapshots to websocket clients and accepts their moves.
type Server struct {
	logger   *slog.Logger
	games    gameService
	tokens   seatTokens
	upgrader websocket.Upgrader

	handlers map[string]handlerFunc

	baseCtx context.Context //nolint: containedctx // canceled by Close to drop every connection
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(logger *slog.Logger, games gameService, tokens seatTokens) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	server := &Server{
		logger: logger.With("component", "websocket-server"),
		games:  games,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},

		handlers: make(map[string]handlerFunc),

		baseCtx: ctx,
		cancel:  cancel,
	}

	server.handlers[actionGameState] = server.handleGameState
	server.handlers[actionGameTurn] = server.handleGameTurn

	return server
}

// ServeHTTP - upgrades a request for /ws/rooms/{code}. Unknown rooms are refused before the upgrade.
func (that *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomCode := chi.URLParam(r, "code")
	log := that.logger.With("method", "ServeHTTP", "roomCode", roomCode)

	ctx, cancel := context.WithCancel(that.baseCtx)
	defer cancel()

	// subscribe before the first read so no change between the two is lost
	updates, err := that.games.Watch(ctx, roomCode)
	if err != nil {
		log.Error("failed to watch room", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	session, err := that.games.GetState(ctx, roomCode)
	if errors.Is(err, apperror.ErrRoomNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	if err != nil {
		log.Error("failed to get room", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	that.wg.Add(1)
	defer that.wg.Done()

	c := newClient(conn, roomCode, session.ID)

	log.Info("WebSocket connection established")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx, cancel)
	}()
	defer func() {
		cancel()
		<-writerDone
	}()

	if err = c.sendState(ctx, session); err != nil {
		log.Error("failed to send state", "error", err)
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					cancel()
					return
				}

				if err := c.sendState(ctx, update); err != nil {
					return
				}
			}
		}
	}()

	that.readPump(ctx, c)

	log.Info("WebSocket connection closed")
}

// Close - drops all open connections and waits for their handlers to return.
func (that *Server) Close() {
	that.cancel()
	that.wg.Wait()
}

// readPump - dispatches inbound messages until the peer goes away or ctx is done.
func (that *Server) readPump(ctx context.Context, c *client) {
	log := that.logger.With("method", "readPump", "roomCode", c.roomCode)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// unblock ReadMessage once the connection is being dropped
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				log.Error("error reading message", "error", err)
			}
			return
		}

		var message Message
		if err = json.Unmarshal(raw, &message); err != nil {
			_ = c.sendError(ctx, actionError, "malformed message")
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			_ = c.sendError(ctx, message.Action, "unknown action")
			continue
		}

		if err = handler(ctx, c, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}
