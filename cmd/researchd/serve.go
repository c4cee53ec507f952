package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/researchd/orchestrator/internal/api"
	"github.com/researchd/orchestrator/internal/config"
	"github.com/researchd/orchestrator/internal/logging"
	"github.com/researchd/orchestrator/internal/research"
	"github.com/researchd/orchestrator/internal/runner"
)

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	log.Infof("HTTP port: %d", cfg.HTTPPort)
	log.Infof("Store: %s", cfg.Store.Driver)

	c, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	svc := research.NewService(research.Options{
		Store:     c.store,
		Runner:    runner.New(c.deps),
		Chat:      c.chat,
		Bus:       c.bus,
		Workers:   cfg.Pool.Workers,
		QueueSize: cfg.Pool.QueueSize,
		Log:       log,
	})

	n, err := svc.RecoverInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Warnf("Recovered %d interrupted jobs", n)
	}

	// Runs outlive the signal context so shutdown can wait for them.
	svc.Start(context.WithoutCancel(ctx))

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     api.NewRouter(svc, c.reports, log),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Server listening on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server shutdown error")
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Jobs still running at shutdown")
	}

	log.Info("Server stopped")
	return nil
}
