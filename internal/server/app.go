// Package server builds the redirector's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/click-redirector/internal/api"
	"github.com/JakeFAU/click-redirector/internal/broadcast"
	"github.com/JakeFAU/click-redirector/internal/config"
	"github.com/JakeFAU/click-redirector/internal/ledger"
	"github.com/JakeFAU/click-redirector/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	apiServer      *api.Server
	ledgerHub      *ledger.Hub
	liveHub        *broadcast.Hub
	relay          *broadcast.RedisRelay
	tracerShutdown telemetry.ShutdownFunc
	// closers run in reverse registration order after the ledger drains.
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the application and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if a.relay != nil {
		go func() {
			if err := a.relay.Run(ctx); err != nil {
				a.logger.Error("live relay stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: time.Duration(a.cfg.Server.ReadHeaderTimeoutSeconds) * time.Second,
	}
	a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
	grace := time.Duration(a.cfg.Server.ShutdownGraceSeconds) * time.Second
	serveErr := api.Serve(ctx, srv, grace)
	if serveErr != nil {
		a.logger.Error("http server error", zap.Error(serveErr))
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return errors.Join(serveErr, a.Close(shutdownCtx))
}

// Close drains the click ledger and releases infrastructure. The ledger goes
// first so buffered clicks reach the stores before they close.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.ledgerHub != nil {
		if err := a.ledgerHub.Close(ctx); err != nil {
			errs = append(errs, err)
			a.logger.Warn("ledger hub close failed", zap.Error(err))
		}
	}
	if a.liveHub != nil {
		a.liveHub.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
}
