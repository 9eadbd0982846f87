package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/config"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/repository"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/service"
	"github.com/rocketscienceinc/tictactoe-rooms/transport/rest"
	"github.com/rocketscienceinc/tictactoe-rooms/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	sessions, closeStorage, err := newSessionRepository(ctx, logger, conf)
	if err != nil {
		return err
	}

	defer closeStorage()

	games := service.NewGameSessionService(logger, sessions, service.NewRandomPicker())
	tokens := service.NewSeatTokenService(conf.JWTSecretKey, conf.SeatTokenTTL)

	wsServer := websocket.New(logger, games, tokens)
	defer wsServer.Close()

	httpServer := rest.New(logger, rest.NewHandlers(logger, games, tokens), wsServer)

	log.Info("Starting HTTP server", "port", conf.HTTPPort, "storage", conf.Storage.Driver)

	if err = httpServer.Start(ctx, conf.HTTPPort); err != nil {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	log.Info("Application context canceled, shutting down")

	return nil
}

// newSessionRepository - picks the storage backend named in the config.
func newSessionRepository(ctx context.Context, logger *slog.Logger, conf *config.Config) (repository.SessionRepository, func(), error) {
	log := logger.With("component", "app")

	switch conf.Storage.Driver {
	case config.DriverRedis:
		redisAddrString := conf.Redis.GetRedisAddr()
		if redisAddrString == "" {
			return nil, nil, ErrAddrNotFound
		}

		redisStorage, err := storage.NewRedis(ctx, redisAddrString, conf.Redis.Password, conf.Redis.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		closeFn := func() {
			if err := redisStorage.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}

		return repository.NewRedisSessionRepository(logger, redisStorage), closeFn, nil

	case config.DriverSQLite:
		sqliteStorage, err := storage.NewSQLite(ctx, conf.SQLiteStoragePath)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open sqlite storage: %w", err)
		}

		closeFn := func() {
			if err := sqliteStorage.Close(); err != nil {
				log.Error("could not close sqlite storage", "error", err)
			}
		}

		return repository.NewSQLiteSessionRepository(sqliteStorage), closeFn, nil

	default:
		return repository.NewMemorySessionRepository(), func() {}, nil
	}
}
