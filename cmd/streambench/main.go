package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/streambench/internal/config"
	"github.com/ent0n29/streambench/internal/httpapi"
	"github.com/ent0n29/streambench/internal/logging"
	"github.com/ent0n29/streambench/internal/observability"
	"github.com/ent0n29/streambench/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// run serves until ctx ends, then drains streams within the shutdown
// timeout. A non-nil ln is used instead of binding cfg.BindAddr.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger, ln net.Listener) error {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	sessions := session.NewManager(cfg.MaxActiveStreams, cfg.StreamIdleTimeout)
	sessions.SetExpireHook(func(s session.Session) {
		metrics.StreamEvents.WithLabelValues("expired").Inc()
		logger.Warn("stream idle, cancelled",
			zap.String("session_id", s.ID),
			zap.Int("cursor", s.Cursor),
		)
	})

	api := httpapi.New(cfg, sessions, metrics, logger)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout stays zero: streams may legitimately run for minutes.
	}

	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.BindAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.BindAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	sessions.StartJanitor(gctx, 5*time.Second)

	g.Go(func() error {
		logger.Info("server listening",
			zap.String("addr", ln.Addr().String()),
			zap.Int("default_words", cfg.DefaultWords),
			zap.Int("default_delay_ms", cfg.DefaultDelayMS),
			zap.Int("max_active_streams", cfg.MaxActiveStreams),
		)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received", zap.Int("active_streams", sessions.ActiveCount()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		// Streams never go idle on their own; cancel them so Shutdown can
		// finish instead of waiting out every budget.
		if n := sessions.CancelAll(); n > 0 {
			logger.Info("cancelled live streams", zap.Int("count", n))
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
			_ = httpServer.Close()
		}
		return nil
	})

	return g.Wait()
}
