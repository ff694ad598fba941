package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"coldchain/internal/platform/config"
	"coldchain/internal/platform/httpserver"
	"coldchain/internal/platform/logger"
)

// main loads configuration and hands off to run; business logic lives in the
// internal packages.
func main() {
	configPath := flag.String("config", os.Getenv("COLDCHAIN_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "coldchain: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	warnInsecureDefaults(log, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	srv := httpserver.New(cfg.Server.Addr, app.router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting coldchain ledger",
			"addr", cfg.Server.Addr,
			"storage", cfg.Storage.Backend,
			"manufacturer", cfg.Ledger.Manufacturer,
			"oracle", cfg.Ledger.Oracle,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if app.dispatcher != nil {
		g.Go(func() error { return app.dispatcher.Run(gctx) })
	}
	if app.feed != nil {
		g.Go(func() error { return app.feed.Run(gctx) })
	}

	return g.Wait()
}

// warnInsecureDefaults flags settings that are only safe on a developer
// machine. Validate already refuses them for the postgres backend.
func warnInsecureDefaults(log *slog.Logger, cfg config.Config) {
	if cfg.UsesDevSigningKey() {
		log.Warn("using the public development JWT signing key; anyone can mint manufacturer or oracle tokens",
			"env", "COLDCHAIN_JWT_SIGNING_KEY",
		)
	}
}
