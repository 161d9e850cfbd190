package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"territorycore/internal/blob"
	"territorycore/internal/config"
	"territorycore/internal/core"
	"territorycore/internal/engine"
	"territorycore/internal/logging"
	"territorycore/internal/metrics"

	"go.uber.org/zap"
)

// firstPassTimeout bounds how long one-shot commands wait for the engine.
const firstPassTimeout = 30 * time.Second

// app holds the resources shared by every command.
type app struct {
	configPath string
	logLevel   string

	cfg     *config.Config
	logger  *zap.Logger
	store   core.PersistentStore
	blobs   blob.Store
	metrics *metrics.Recorder
	svc     *core.Service
}

func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, "territoryctl")
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	store, err := core.OpenPersistentStore(cfg.Storage, core.NewDefaultRulesEngine())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		closeStore(store)
		return fmt.Errorf("open blob store: %w", err)
	}
	a.cfg, a.logger, a.store, a.blobs = cfg, logger, store, blobs
	a.metrics = metrics.NewRecorder(cfg.Metrics.Namespace)
	a.svc = core.NewService(store,
		core.WithLogger(core.NewZapLogger(logger)),
		core.WithMetricsRecorder(a.metrics),
		core.WithSession(cfg.Session),
		core.WithBlobStore(blobs),
		core.WithImageURLExpiry(cfg.ImageURLExpiry()),
	)
	logger.Debug("store opened", zap.String("driver", string(cfg.Storage.Driver)), zap.String("blob", string(blobs.Driver())))
	return nil
}

func (a *app) close() {
	if a.store != nil {
		closeStore(a.store)
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func closeStore(store core.PersistentStore) {
	if c, ok := store.(io.Closer); ok {
		_ = c.Close()
	}
}

// startEngine runs an engine over the store and waits for its first pass.
// The returned stop function must be called once the caller is done.
func (a *app) startEngine(ctx context.Context) (*engine.Engine, func(), error) {
	e := engine.New(a.store, engine.Config{
		Session:         a.cfg.Session,
		RecentWindow:    a.cfg.RecentWindow(),
		RefreshInterval: a.cfg.RefreshInterval(),
		ImageURL:        a.svc.ImageURLFunc(ctx),
		Logger:          a.logger,
		Recorder:        a.metrics,
	})
	passes := e.Passes().Subscribe()
	defer passes.Close()
	e.Start()
	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Stop(stopCtx); err != nil {
			a.logger.Warn("engine stop", zap.Error(err))
		}
	}

	wait, cancel := context.WithTimeout(ctx, firstPassTimeout)
	defer cancel()
	select {
	case _, ok := <-passes.C():
		if !ok {
			stop()
			return nil, nil, errors.New("engine stopped before its first pass")
		}
		return e, stop, nil
	case <-wait.Done():
		stop()
		if errors.Is(wait.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("engine produced no views within %s", firstPassTimeout)
		}
		return nil, nil, wait.Err()
	}
}
