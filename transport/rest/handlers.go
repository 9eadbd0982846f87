package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/service"
)

const maxBodyBytes = 1 << 12

type gameService interface {
	Create(ctx context.Context, playerName, roomCode string) (string, error)
	CreateWithGeneratedCode(ctx context.Context, playerName string) (string, string, error)
	Join(ctx context.Context, playerName, roomCode string) (string, error)
	GetState(ctx context.Context, roomCode string) (*entity.Session, error)
	Play(ctx context.Context, handle string, cell int, asPlayer entity.Mark) (*entity.Session, entity.MoveResult, error)
}

type seatTokens interface {
	Generate(seat service.Seat) (string, error)
	Parse(token string) (service.Seat, error)
}

type Handlers struct {
	logger *slog.Logger
	games  gameService
	tokens seatTokens
}

func NewHandlers(logger *slog.Logger, games gameService, tokens seatTokens) *Handlers {
	return &Handlers{
		logger: logger.With("component", "rest-handlers"),
		games:  games,
		tokens: tokens,
	}
}

type createRoomRequest struct {
	PlayerName string `json:"player_name"`
	RoomCode   string `json:"room_code"`
}

type joinRoomRequest struct {
	PlayerName string `json:"player_name"`
}

type moveRequest struct {
	Cell *int `json:"cell"`
}

type seatResponse struct {
	SessionID string      `json:"session_id"`
	RoomCode  string      `json:"room_code"`
	Mark      entity.Mark `json:"mark"`
	Token     string      `json:"token"`
}

type stateResponse struct {
	Status  string          `json:"status"`
	Session *entity.Session `json:"session"`
}

type moveResponse struct {
	entity.MoveResult
	Session *entity.Session `json:"session,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (that *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := that.logger.With("method", "CreateRoom")

	var req createRoomRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	playerName := strings.TrimSpace(req.PlayerName)
	roomCode := strings.TrimSpace(req.RoomCode)

	var (
		id  string
		err error
	)

	if roomCode == "" {
		id, roomCode, err = that.games.CreateWithGeneratedCode(ctx, playerName)
	} else {
		id, err = that.games.Create(ctx, playerName, roomCode)
	}

	if err != nil {
		that.writeError(w, log, err)
		return
	}

	that.writeSeat(w, log, http.StatusCreated, service.Seat{SessionID: id, Mark: entity.MarkX, PlayerName: playerName}, roomCode)
}

func (that *Handlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := that.logger.With("method", "JoinRoom")

	var req joinRoomRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	playerName := strings.TrimSpace(req.PlayerName)
	roomCode := strings.TrimSpace(chi.URLParam(r, "code"))

	id, err := that.games.Join(ctx, playerName, roomCode)
	if err != nil {
		that.writeError(w, log, err)
		return
	}

	that.writeSeat(w, log, http.StatusOK, service.Seat{SessionID: id, Mark: entity.MarkO, PlayerName: playerName}, roomCode)
}

func (that *Handlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "GetRoom")

	session, err := that.games.GetState(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		that.writeError(w, log, err)
		return
	}

	writeJSON(w, http.StatusOK, stateResponse{Status: session.Status(), Session: session})
}

// MakeMove - the mark is taken from the seat token, never from the body.
func (that *Handlers) MakeMove(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "MakeMove")

	sessionID := chi.URLParam(r, "id")

	seat, err := that.tokens.Parse(bearerToken(r))
	if err != nil {
		that.writeError(w, log, err)
		return
	}

	if seat.SessionID != sessionID {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "token does not belong to this session"})
		return
	}

	var req moveRequest
	if err = decodeBody(w, r, &req); err != nil || req.Cell == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cell is required"})
		return
	}

	session, result, err := that.games.Play(r.Context(), sessionID, *req.Cell, seat.Mark)
	if err != nil {
		that.writeError(w, log, err)
		return
	}

	status := http.StatusOK
	if result.Reason == entity.RejectSessionNotFound {
		status = http.StatusNotFound
	}

	writeJSON(w, status, moveResponse{MoveResult: result, Session: session})
}

func (that *Handlers) writeSeat(w http.ResponseWriter, log *slog.Logger, status int, seat service.Seat, roomCode string) {
	token, err := that.tokens.Generate(seat)
	if err != nil {
		that.writeError(w, log, err)
		return
	}

	writeJSON(w, status, seatResponse{
		SessionID: seat.SessionID,
		RoomCode:  roomCode,
		Mark:      seat.Mark,
		Token:     token,
	})
}

func (that *Handlers) writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
		return
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, apperror.ErrRoomAlreadyExists), errors.Is(err, apperror.ErrRoomFull):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrRoomNotFound), errors.Is(err, apperror.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperror.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}

	return ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
