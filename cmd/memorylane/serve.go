package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"memorylane/internal/agent"
	"memorylane/internal/channel"
	"memorylane/internal/config"
	"memorylane/internal/dedup"
	"memorylane/internal/generation"
	"memorylane/internal/memory"
	"memorylane/internal/metrics"
	"memorylane/internal/notify"
	"memorylane/internal/provider"
	"memorylane/internal/server"
	"memorylane/internal/telemetry"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
	drainTimeout    = 2 * time.Minute
	jobRetention    = time.Hour
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack webhook server",
		Long:  "Serves /slack/events, /health, /generate and /metrics. Press Ctrl+C to stop; in-flight jobs are drained.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	for _, w := range config.Warnings(cfg) {
		logger.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdownTracer, err := telemetry.InitTracer(telemetry.Config{
			ServiceName: server.ServiceName,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(flushCtx); err != nil {
				logger.Warn("tracer shutdown", "err", err)
			}
		}()
	}

	slackClient := channel.NewSlack(channel.SlackConfig{
		BotToken: cfg.Slack.BotToken,
		APIURL:   cfg.Slack.APIURL,
		Logger:   logger,
	})
	if cfg.Slack.BotToken != "" {
		authCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if _, err := slackClient.AuthTest(authCtx); err != nil {
			logger.Warn("slack auth.test failed, bot mentions will be resolved lazily", "err", err)
		}
		cancel()
	}

	orch := newOrchestrator(cfg)
	dispatcher := agent.NewDispatcher(logger)
	pcfg := agent.PipelineConfig{
		Dispatcher: dispatcher,
		Messenger:  slackClient,
		Generator:  orch,
		Fetcher:    provider.NewDownloader(nil),
		Logger:     logger,
	}

	var retention *memory.Retention
	if cfg.History.Enabled {
		store, err := memory.NewSQLiteStore(cfg.History.DBPath, logger)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		pcfg.Recorder = store

		retention = memory.NewRetention(memory.RetentionConfig{
			Pruner: store,
			MaxAge: time.Duration(cfg.History.RetentionDays) * 24 * time.Hour,
			Logger: logger,
		})
		if err := retention.Start(); err != nil {
			return err
		}
		logger.Info("generation history enabled", "path", cfg.History.DBPath)
	}

	if cfg.AMQP.URL != "" {
		pub, err := notify.New(notify.Config{URL: cfg.AMQP.URL, Exchange: cfg.AMQP.Exchange, Logger: logger})
		if err != nil {
			logger.Warn("outcome notifier unavailable, continuing without it", "err", err)
		} else {
			defer pub.Close()
			pcfg.Publisher = pub
		}
	}

	pipeline := agent.NewPipeline(pcfg)

	janitor := cron.New()
	if _, err := janitor.AddFunc("@every 10m", func() {
		if n := dispatcher.Clean(jobRetention); n > 0 {
			logger.Debug("finished jobs cleaned", "count", n)
		}
	}); err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	events := channel.NewEvents(channel.EventsConfig{
		SigningSecret: cfg.Slack.SigningSecret,
		Seen:          dedup.New(dedup.DefaultCapacity),
		Handler:       pipeline,
		Bot:           slackClient,
		Logger:        logger,
	})

	scfg := server.Config{
		Addr:      cfg.Server.Addr(),
		Events:    events,
		Generator: orch,
		Jobs:      dispatcher,
		Health: server.HealthInfo{
			SlackConfigured:     cfg.Slack.BotToken != "",
			ReplicateConfigured: cfg.Replicate.APIToken != "",
			TriggerWord:         cfg.Generation.TriggerWord,
		},
		Logger: logger,
	}
	if cfg.Metrics.Enabled {
		scfg.Metrics = metrics.Collector.Handler()
		scfg.MetricsPath = cfg.Metrics.Endpoint
	}
	srv := server.New(scfg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), drainTimeout)
	defer cancelDrain()
	if err := dispatcher.Wait(drainCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("jobs still running at exit", "active", len(dispatcher.ListActive()))
		}
	}
	if retention != nil {
		retention.Stop(drainCtx)
	}
	logger.Info("stopped")
	return nil
}

func newOrchestrator(cfg *config.Config) *generation.Orchestrator {
	replicate := provider.NewReplicate(provider.ReplicateConfig{
		Token:   cfg.Replicate.APIToken,
		APIBase: cfg.Replicate.APIBase,
		Logger:  logger,
	})
	return generation.New(generation.Config{
		Predictor:   replicate,
		Model:       cfg.Replicate.Model,
		LoraWeights: cfg.Replicate.LoraWeights,
		TriggerWord: cfg.Generation.TriggerWord,
		DefaultAge:  cfg.Generation.DefaultAge,
		Logger:      logger,
	})
}
