// Package app wires the components together and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"msgcore/pkg/api"
	"msgcore/pkg/auth"
	"msgcore/pkg/clock"
	"msgcore/pkg/config"
	"msgcore/pkg/conversation"
	"msgcore/pkg/directory"
	"msgcore/pkg/events"
	"msgcore/pkg/logger"
	"msgcore/pkg/message"
	"msgcore/pkg/notify"
	"msgcore/pkg/policy"
	"msgcore/pkg/ratelimit"
	"msgcore/pkg/retention"
	"msgcore/pkg/store"
	"msgcore/pkg/thread"
	"msgcore/pkg/unread"
)

// App encapsulates the assembled components and their lifecycle.
type App struct {
	cfg *config.Config

	st      *store.Store
	queue   *events.Queue
	engine  *notify.Engine
	sweeper *retention.Sweeper
	srv     *http.Server
}

// New opens storage and assembles the component graph. Call Run to start
// serving and block until shutdown.
func New(cfg *config.Config) (*App, error) {
	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.Server.DBPath, err)
	}

	clk := clock.Real()
	queue := events.NewQueue(cfg.Notify.QueueCapacity)

	dir := directory.New(st)
	convs := conversation.New(st, dir, clk)
	msgs := message.New(st, dir, convs, queue, clk, message.Limits{
		MaxBodyRunes:   cfg.Limits.MaxBodyRunes,
		MaxThreadDepth: cfg.Limits.MaxThreadDepth,
	})
	tracker := unread.New(st, msgs, clk)
	engine := notify.New(st, dir, convs, queue, clk, notify.Options{
		Workers:     cfg.Notify.Workers,
		MaxRetries:  cfg.Notify.MaxRetries,
		BaseBackoff: cfg.Notify.RetryBackoff.Duration(),
	})
	threads := thread.New(msgs, cfg.Limits.MaxThreadDepth)
	limiter := ratelimit.New(cfg.RateLimit.Window.Duration(), cfg.RateLimit.Threshold, clk)
	pol := policy.Evaluator{AdminBypass: cfg.Policy.AdminBypass}

	handler := api.New(st, dir, convs, msgs, tracker, engine, threads, limiter, pol).Router()
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           auth.Middleware(cfg.Security)(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:     cfg,
		st:      st,
		queue:   queue,
		engine:  engine,
		sweeper: retention.New(st, limiter, cfg.Retention),
		srv:     srv,
	}, nil
}

// Run starts the workers, the retention scheduler, and the HTTP server,
// then blocks until ctx is cancelled or the server fails. Shutdown drains
// the event queue before closing storage so committed mutations still fan
// out.
func (a *App) Run(ctx context.Context) error {
	a.engine.Start()

	cancelRetention, err := a.sweeper.Start(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("http_server_failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_error", "error", err)
	}

	cancelRetention()
	a.queue.Close()
	a.engine.Stop()

	if err := a.st.Close(); err != nil {
		logger.Error("store_close_error", "error", err)
		if runErr == nil {
			runErr = err
		}
	}
	logger.Info("shutdown_complete")
	logger.Sync()
	return runErr
}
