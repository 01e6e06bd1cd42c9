package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/drewfead/cinecal/internal/root"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd, err := root.Root(ctx)
	if err != nil {
		slog.Error("failed to create root command", "error", err)
		os.Exit(137)
	}

	if err := rootCmd.Run(ctx, os.Args); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
