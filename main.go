package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	app "github.com/rocketscienceinc/tictactoe-rooms/internal"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/config"
)

// main - is the entry point of the application. It parses flags, initializes the configuration and logger, and runs the application.
func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	cmd := &cli.Command{
		Name:  "tictactoe-rooms",
		Usage: "two-player tic-tac-toe rooms over HTTP and WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "./config.yml",
				Usage:   "path to the YAML config file",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
		},
		Action: serve,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(fmt.Errorf("app run failed: %w", err))
	}
}

func serve(_ context.Context, cmd *cli.Command) error {
	conf := config.MustLoad(cmd.String("config"))
	logger := initLogger(conf)

	return app.RunApp(logger, conf)
}

// initialize logger.
func initLogger(conf *config.Config) *slog.Logger {
	var level slog.Level

	switch conf.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
