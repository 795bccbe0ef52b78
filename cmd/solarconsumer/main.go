package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/raterudder/solarconsumer/pkg/log"
	"github.com/raterudder/solarconsumer/pkg/metrics"
	"github.com/raterudder/solarconsumer/pkg/pvsim"
	"github.com/raterudder/solarconsumer/pkg/runner"
	"github.com/raterudder/solarconsumer/pkg/server"
	"github.com/raterudder/solarconsumer/pkg/storage"
)

func main() {
	// init packages
	sims := pvsim.Configured()
	s := storage.Configured()
	m := metrics.New(prometheus.DefaultRegisterer)

	// init server
	srv := server.Configured(runner.New(sims, s, m))

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sims.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid pv simulator configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// If storage initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
