// Command distcache-demo serves a small web application whose state lives in
// the configured distributed cache store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/distcache"
	"github.com/unkn0wn-root/distcache/bootstrap"
	"github.com/unkn0wn-root/distcache/codec"
	asynchook "github.com/unkn0wn-root/distcache/hooks/async"
	"github.com/unkn0wn-root/distcache/internal/config"
	"github.com/unkn0wn-root/distcache/internal/demo"
	zaplog "github.com/unkn0wn-root/distcache/log/zap"
	"github.com/unkn0wn-root/distcache/outputcache"
	"github.com/unkn0wn-root/distcache/sloghooks"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := newZap(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zaplog.ZapLogger{L: zl}

	st, err := bootstrap.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			zl.Warn("store close", zap.Error(err))
		}
	}()

	hookLevel := slog.LevelInfo
	hookOpts := sloghooks.Options{StoreFailureEvery: 1}
	if cfg.Log.Development {
		hookLevel = slog.LevelDebug
		hookOpts.Redact = func(k string) string { return k }
	}
	hooks := asynchook.New(
		sloghooks.New(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: hookLevel})), hookOpts),
		2, 1024,
	)
	defer hooks.Close()

	kv, err := distcache.New(distcache.Options{
		Store:             st,
		DefaultLifetime:   cfg.Cache.DefaultLifetime,
		ThrowOnStoreError: cfg.Cache.ThrowOnStoreError,
		Logger:            logger,
		Hooks:             hooks,
	})
	if err != nil {
		return err
	}

	pages, err := outputcache.New(outputcache.Options[outputcache.Response]{
		Store:             st,
		Codec:             codec.Msgpack[outputcache.Response]{},
		Prefix:            outputcache.Prefix(cfg.Cache.SiteName, cfg.Cache.AppPath),
		ThrowOnStoreError: cfg.Cache.ThrowOnStoreError,
		Logger:            logger,
		Hooks:             hooks,
	})
	if err != nil {
		return err
	}

	srv, err := demo.NewServer(demo.Options{
		KV:      kv,
		Pages:   pages,
		PageTTL: cfg.Cache.PageTTL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	if err := srv.RecordStart(ctx); err != nil {
		zl.Warn("record start time", zap.Error(err))
	}

	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("driver", cfg.Store.Driver))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		zl.Info("shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newZap(lc config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if lc.Level != "" {
		lvl, err := zap.ParseAtomicLevel(lc.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	return zc.Build()
}
