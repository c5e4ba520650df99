package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mikabele/canoe-go/adapters/contactbook"
	"github.com/mikabele/canoe-go/adapters/emailplatform"
	"github.com/mikabele/canoe-go/adapters/mqttplatform"
	"github.com/mikabele/canoe-go/adapters/signalplatform"
	"github.com/mikabele/canoe-go/internal/buildinfo"
	"github.com/mikabele/canoe-go/internal/config"
	"github.com/mikabele/canoe-go/internal/demux"
	"github.com/mikabele/canoe-go/internal/events"
	"github.com/mikabele/canoe-go/internal/incident"
	"github.com/mikabele/canoe-go/internal/metrics"
	"github.com/mikabele/canoe-go/internal/opsdash"
	"github.com/mikabele/canoe-go/internal/sessionlog"
	"github.com/mikabele/canoe-go/scenario"
)

// platformEngine bundles the per-platform pieces serve wires together:
// an adapter's event source and reply sink, plus the Demux driving one
// matching session per conversation on top of it.
type platformEngine struct {
	name string
	run  func(ctx context.Context) error
	pipe func(ctx context.Context, reporter *incident.Reporter, resolver contactbook.ContactResolver) <-chan scenario.Result[string]
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat adapters, demultiplexer, and ops dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("starting canoe-go",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"config", path,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	bus := events.New()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsCollector := metrics.NewCollector(bus, logger)
	go metricsCollector.Run(ctx)

	var ledger *sessionlog.Ledger
	if cfg.SessionLog.Enabled {
		ledger, err = sessionlog.Open(cfg.SessionLog.Path, logger)
		if err != nil {
			return fmt.Errorf("open session log: %w", err)
		}
		defer ledger.Close()

		logCollector := sessionlog.NewCollector(bus, ledger, logger)
		go logCollector.Run(ctx)
		logger.Info("session logging enabled", "path", cfg.SessionLog.Path)
	}

	var reporter *incident.Reporter
	if cfg.Incident.Configured() {
		reporter = incident.New(cfg.Incident, logger, bus)
		logger.Info("incident reporting enabled", "owner", cfg.Incident.Owner, "repo", cfg.Incident.Repo)
	}

	var resolver contactbook.ContactResolver
	if cfg.ContactBook.Configured() {
		r, err := contactbook.New(cfg.ContactBook, logger)
		if err != nil {
			return fmt.Errorf("create contact book resolver: %w", err)
		}
		go r.Run(ctx, 15*time.Minute)
		resolver = r
		logger.Info("contact book resolution enabled", "url", cfg.ContactBook.CardDAVURL)
	}

	engines, err := buildEngines(cfg, logger, bus)
	if err != nil {
		return err
	}
	if len(engines) == 0 {
		logger.Warn("no platform adapters enabled; serve will only run the ops dashboard")
	}

	for _, eng := range engines {
		eng := eng
		go func() {
			if err := eng.run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("platform adapter stopped", "platform", eng.name, "error", err)
			}
		}()

		results := eng.pipe(ctx, reporter, resolver)
		go drainResults(ctx, eng.name, results, logger)
	}

	dashboard := opsdash.New(cfg.Listen, bus, ledger, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- dashboard.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("ops dashboard stopped", "error", err)
			cancel()
			return err
		}
	}

	<-errCh
	logger.Info("canoe-go stopped")
	return nil
}

// buildEngines constructs one platformEngine per enabled adapter. Each
// adapter gets its own Demux so that rate limiting, idle eviction, and
// platform-tagged bus events stay independent per transport.
func buildEngines(cfg *config.Config, logger *slog.Logger, bus *events.Bus) ([]platformEngine, error) {
	var engines []platformEngine

	demuxConfig := func(platform string) demux.Config {
		return demux.Config{
			Logger:      logger,
			Bus:         bus,
			RateLimit:   cfg.Demux.RateLimitPerMinute,
			IdleTimeout: time.Duration(cfg.Demux.IdleTimeoutSec) * time.Second,
			Platform:    platform,
		}
	}

	if cfg.Signal.Configured() {
		adapter := signalplatform.New(cfg.Signal, logger, bus)
		d := demux.New(demuxConfig("signal"))
		engines = append(engines, platformEngine{
			name: "signal",
			run:  adapter.Run,
			pipe: func(ctx context.Context, reporter *incident.Reporter, resolver contactbook.ContactResolver) <-chan scenario.Result[string] {
				return demux.Pipe(ctx, d, adapter.Events(), newEchoFactory(adapter.Send, resolver, reporter))
			},
		})
		logger.Info("signal adapter enabled", "account", cfg.Signal.AccountNumber)
	}

	if cfg.MQTT.Configured() {
		adapter := mqttplatform.New(cfg.MQTT, logger, bus)
		d := demux.New(demuxConfig("mqtt"))
		engines = append(engines, platformEngine{
			name: "mqtt",
			run:  adapter.Run,
			pipe: func(ctx context.Context, reporter *incident.Reporter, resolver contactbook.ContactResolver) <-chan scenario.Result[string] {
				return demux.Pipe(ctx, d, adapter.Events(), newEchoFactory(adapter.Send, resolver, reporter))
			},
		})
		logger.Info("mqtt adapter enabled", "broker", cfg.MQTT.BrokerURL)
	}

	if cfg.Email.Configured() {
		adapter := emailplatform.New(cfg.Email, logger, bus)
		d := demux.New(demuxConfig("email"))
		engines = append(engines, platformEngine{
			name: "email",
			run:  adapter.Run,
			pipe: func(ctx context.Context, reporter *incident.Reporter, resolver contactbook.ContactResolver) <-chan scenario.Result[string] {
				return demux.Pipe(ctx, d, adapter.Events(), newEchoFactory(adapter.Send, resolver, reporter))
			},
		})
		logger.Info("email adapter enabled", "imap_host", cfg.Email.IMAPHost)
	}

	return engines, nil
}

// drainResults logs every terminal session outcome for a platform. The
// durable record lives in the session ledger via the bus-subscribing
// collector; this loop exists so a serve operator watching stdout sees
// activity without tailing the dashboard.
func drainResults(ctx context.Context, platform string, results <-chan scenario.Result[string], logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			if res.Err != nil {
				logger.Warn("session ended", "platform", platform, "error", res.Err)
				continue
			}
			logger.Debug("session matched", "platform", platform, "value", res.Value)
		}
	}
}
