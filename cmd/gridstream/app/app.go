// Package app wires the storage engine and the modules into one process
// and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/grafana/dskit/services"

	"github.com/gridstream/gridstream/griddb"
	"github.com/gridstream/gridstream/modules/distributor"
	"github.com/gridstream/gridstream/modules/ingester"
	"github.com/gridstream/gridstream/modules/maintenance"
	"github.com/gridstream/gridstream/modules/querier"
)

// App is the assembled process.
type App struct {
	cfg    Config
	logger log.Logger

	store       *griddb.Store
	ingester    *ingester.Ingester
	distributor *distributor.Distributor
	querier     *querier.Querier
	maintainer  *maintenance.Maintainer

	manager *services.Manager
	server  *http.Server
}

// New builds the app: database pool (pinged with retries), schema setup if
// requested, then the modules in dependency order.
func New(cfg Config, logger log.Logger) (*App, error) {
	store, err := griddb.New(cfg.DB, logger)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	ctx := context.Background()
	boff := backoff.New(ctx, backoff.Config{
		MinBackoff: 100 * time.Millisecond,
		MaxBackoff: 5 * time.Second,
		MaxRetries: 10,
	})
	for boff.Ongoing() {
		if err := store.Ping(ctx); err == nil {
			break
		} else {
			level.Warn(logger).Log("msg", "database not reachable yet, retrying", "err", err)
		}
		boff.Wait()
	}
	if err := boff.ErrCause(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if cfg.DB.CreateSchema {
		if err := store.SetupSchema(ctx); err != nil {
			return nil, fmt.Errorf("setting up schema: %w", err)
		}
	}

	ing, err := ingester.New(cfg.Ingester, store, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ingester: %w", err)
	}
	maint, err := maintenance.New(cfg.Maintenance, store, logger)
	if err != nil {
		return nil, fmt.Errorf("creating maintainer: %w", err)
	}

	a := &App{
		cfg:         cfg,
		logger:      logger,
		store:       store,
		ingester:    ing,
		distributor: distributor.New(cfg.Distributor, ing, logger),
		querier:     querier.New(store, logger),
		maintainer:  maint,
	}

	a.manager, err = services.NewManager(ing, maint)
	if err != nil {
		return nil, fmt.Errorf("creating service manager: %w", err)
	}

	a.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.HTTPListenAddr, cfg.Server.HTTPListenPort),
		Handler: a.router(),
	}

	return a, nil
}

// Run starts the services and serves HTTP until SIGINT/SIGTERM. Shutdown
// order matters: stop accepting requests first, then stop the ingester so
// its final drain flush sees everything that was accepted.
func (a *App) Run() error {
	ctx := context.Background()
	if err := services.StartManagerAndAwaitHealthy(ctx, a.manager); err != nil {
		return fmt.Errorf("starting services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		level.Info(a.logger).Log("msg", "http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		level.Info(a.logger).Log("msg", "shutting down", "signal", sig)
	case err := <-errCh:
		level.Error(a.logger).Log("msg", "http server failed", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.GracefulShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		level.Error(a.logger).Log("msg", "http shutdown failed", "err", err)
	}

	a.manager.StopAsync()
	if err := a.manager.AwaitStopped(shutdownCtx); err != nil {
		level.Error(a.logger).Log("msg", "services did not stop cleanly", "err", err)
	}

	a.store.Close()
	level.Info(a.logger).Log("msg", "stopped")
	return nil
}

// readyHandler reports readiness once all services are running.
func (a *App) readyHandler(w http.ResponseWriter, _ *http.Request) {
	for state, svcs := range a.manager.ServicesByState() {
		if state != services.Running {
			http.Error(w, fmt.Sprintf("%d service(s) in state %v", len(svcs), state), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
