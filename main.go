package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"

	"journalrag/internal/app"
	"journalrag/internal/config"
	"journalrag/internal/logger"
	"journalrag/internal/telemetry"
	"journalrag/internal/usage"
)

const (
	serviceName = "journalrag"
	version     = "1.0.0"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 2. Tracing
	shutdownTracer, err := telemetry.Init(serviceName, version, cfg.JaegerEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	// 3. Infrastructure
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	var pub usage.Publisher
	if deps.NSQProducer != nil {
		pub = deps.NSQProducer
	}

	// 4. Services & Routes
	application, err := app.New(cfg, deps.DB, deps.Weaviate, deps.Gemini, pub, log)
	if err != nil {
		return err
	}
	defer application.Close()

	// 5. Usage Worker
	consumer, err := startUsageConsumer(cfg, application.UsageConsumer)
	if err != nil {
		slog.Error("failed to start usage consumer", "error", err)
	} else {
		defer consumer.Stop()
	}

	// 6. Start Server
	return application.Run(ctx)
}

func startUsageConsumer(cfg *config.Config, handler nsq.Handler) (*nsq.Consumer, error) {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = 1

	consumer, err := nsq.NewConsumer(config.TopicUsageIncrement, config.ChannelUsageWorker, nsqCfg)
	if err != nil {
		return nil, err
	}
	consumer.AddHandler(handler)

	if cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(cfg.NSQDHost)
	}
	if err != nil {
		consumer.Stop()
		return nil, err
	}
	slog.Info("NSQ usage consumer connected", "topic", config.TopicUsageIncrement)
	return consumer, nil
}
