package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"territorycore/internal/adapters/cache"
	"territorycore/internal/engine"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(a *app) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the engine, mirroring views to redis and serving metrics",
		Long: `Keeps the engine running until interrupted. Each pass is logged. When
redis.addr is configured every global view is written to redis; when
metrics.addr is set Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			return a.watch(ctx, cmd)
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func (a *app) watch(ctx context.Context, cmd *cobra.Command) error {
	e, stop, err := a.startEngine(ctx)
	if err != nil {
		return err
	}
	defer stop()

	if a.cfg.Redis.Addr != "" {
		closeCache, err := a.startCache(ctx, e)
		if err != nil {
			return err
		}
		defer closeCache()
	}
	if a.cfg.Metrics.Addr != "" {
		shutdown := a.serveMetrics()
		defer shutdown()
	}

	passes := e.Passes().Subscribe()
	defer passes.Close()
	fmt.Fprintln(cmd.OutOrStdout(), "watching for changes")
	for {
		select {
		case <-ctx.Done():
			return nil
		case seq, ok := <-passes.C():
			if !ok {
				return nil
			}
			a.logger.Info("views refreshed", zap.Uint64("seq", seq))
		}
	}
}

func (a *app) startCache(ctx context.Context, e *engine.Engine) (func(), error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	kv, err := cache.DialRedis(dialCtx, cache.RedisOptions{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	p := cache.NewPublisher(kv, cache.Options{Prefix: a.cfg.Redis.Prefix, TTL: a.cfg.CacheTTL()}, a.logger)
	p.Start(e)
	a.logger.Info("snapshot cache enabled", zap.String("addr", a.cfg.Redis.Addr))
	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Stop(stopCtx); err != nil {
			a.logger.Warn("cache stop", zap.Error(err))
		}
		_ = kv.Close()
	}, nil
}

func (a *app) serveMetrics() func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server", zap.Error(err))
		}
	}()
	a.logger.Info("serving metrics", zap.String("addr", a.cfg.Metrics.Addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
