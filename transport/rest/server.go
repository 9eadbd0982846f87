package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

const (
	requestTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	logger *slog.Logger
	router *chi.Mux
}

// New - builds the router. ws serves the room stream and is mounted outside the request timeout.
func New(logger *slog.Logger, handlers *Handlers, ws http.Handler) *Server {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)

	router.Get("/ping", pingHandler)

	router.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(requestTimeout))
		r.Use(jsonContentType)

		r.Post("/api/rooms", handlers.CreateRoom)
		r.Post("/api/rooms/{code}/join", handlers.JoinRoom)
		r.Get("/api/rooms/{code}", handlers.GetRoom)
		r.Post("/api/sessions/{id}/moves", handlers.MakeMove)
	})

	if ws != nil {
		router.Handle("/ws/rooms/{code}", ws)
	}

	return &Server{
		logger: logger.With("component", "http-server"),
		router: router,
	}
}

func (that *Server) Router() http.Handler {
	return that.router
}

// Start - serves on port until ctx is canceled, then shuts down gracefully.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	that.logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}
