package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/goliatone/go-automate"
	"github.com/goliatone/go-automate/config"
	"github.com/goliatone/go-automate/dispatcher"
	"github.com/goliatone/go-automate/engine"
	"github.com/goliatone/go-automate/engine/remote"
	"github.com/goliatone/go-automate/metrics"
	"github.com/goliatone/go-automate/objects"
	"github.com/goliatone/go-automate/queue"
	"github.com/goliatone/go-automate/task"
	"github.com/goliatone/go-logger/glog"
	"github.com/redis/go-redis/v9"
)

// app holds the collaborators built from one config.
type app struct {
	cfg     config.Config
	logger  automate.Logger
	queue   queue.Queue
	closers []func() error
}

func newApp(cfg config.Config) (*app, error) {
	a := &app{cfg: cfg, logger: newLogger(cfg.Log)}
	q, err := a.openQueue()
	if err != nil {
		return nil, err
	}
	a.queue = q
	return a, nil
}

func newLogger(cfg config.Log) automate.Logger {
	if cfg.Format == "json" {
		return automate.NewGlogLogger(glog.NewLogger(
			glog.WithWriter(os.Stderr),
			glog.WithLevel(cfg.Level),
			glog.WithLoggerTypeJSON(),
		))
	}
	return automate.NewGlogLogger(glog.NewLogger(
		glog.WithWriter(os.Stderr),
		glog.WithLevel(cfg.Level),
	))
}

func (a *app) openQueue() (queue.Queue, error) {
	switch a.cfg.Queue.Backend {
	case config.BackendSQLite:
		db, err := queue.OpenSQLite(a.cfg.Queue.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		return queue.NewSQLite(db, a.cfg.Queue.Table), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr: a.cfg.Queue.RedisAddr,
			DB:   a.cfg.Queue.RedisDB,
		})
		a.closers = append(a.closers, client.Close)
		return queue.NewRedis(client, a.cfg.Queue.RedisPrefix), nil
	default:
		a.logger.Warn("Using in-memory queue; submissions do not outlive this process")
		return queue.NewMemory(), nil
	}
}

func (a *app) resolver() (*engine.Resolver, error) {
	if a.cfg.Engine.URL == "" {
		return nil, automate.Errorf(automate.ErrEngineFailure, "engine.url is not configured")
	}
	opts := []remote.Option{remote.WithHTTPClient(&http.Client{Timeout: a.cfg.Engine.Timeout})}
	for k, v := range a.cfg.Engine.Headers {
		opts = append(opts, remote.WithHeader(k, v))
	}
	return engine.NewResolver(remote.New(a.cfg.Engine.URL, opts...), engine.WithLogger(a.logger)), nil
}

func (a *app) dispatcher(recorder metrics.Recorder) (*dispatcher.Dispatcher, error) {
	resolver, err := a.resolver()
	if err != nil {
		return nil, err
	}
	return dispatcher.New(resolver, a.queue,
		dispatcher.WithUsers(a.cfg.Users()),
		dispatcher.WithObjects(objects.NewRegistry().SetFallback(objects.RefFinder)),
		dispatcher.WithTasks(task.NewMemoryStore()),
		dispatcher.WithServer(a.cfg.Server()),
		dispatcher.WithLogger(a.logger),
		dispatcher.WithMetrics(recorder),
		dispatcher.WithQueueDefaults(a.cfg.QueueDefaults()),
	), nil
}

// serveMetrics starts the Prometheus endpoint when enabled and stops it
// with ctx.
func (a *app) serveMetrics(ctx context.Context) (metrics.Recorder, error) {
	if !a.cfg.Metrics.Enabled {
		return metrics.Nop{}, nil
	}
	prom, err := metrics.NewPrometheus(metrics.Config{Namespace: a.cfg.Metrics.Namespace})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	a.logger.Info("Serving metrics on %s/metrics", a.cfg.Metrics.Addr)
	return prom, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
