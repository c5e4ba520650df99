package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mikabele/canoe-go/adapters/signalplatform"
	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/events"
)

func newLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link",
		Short: "Link this bot as a Signal device by scanning a QR code",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.FindConfig(configPath)
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := newLogger(cfg.LogLevel)
			bus := events.New()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return signalplatform.LinkDevice(ctx, cfg.Signal, logger, bus)
		},
	}
}

func newLogger(level string) *slog.Logger {
	parsed, err := config.ParseLogLevel(level)
	if err != nil {
		parsed = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       parsed,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}
