package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/researchd/orchestrator/internal/agent"
	"github.com/researchd/orchestrator/internal/config"
	"github.com/researchd/orchestrator/internal/db"
	"github.com/researchd/orchestrator/internal/events"
	"github.com/researchd/orchestrator/internal/job"
	"github.com/researchd/orchestrator/internal/llm"
	"github.com/researchd/orchestrator/internal/runner"
	"github.com/researchd/orchestrator/internal/search"
	"github.com/researchd/orchestrator/internal/storage"
)

// components is everything a research process needs, built from config.
type components struct {
	store   job.Store
	chat    *agent.ReportChat
	bus     *events.Bus
	reports *storage.Store
	deps    runner.Deps
	closers []func() error
}

func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*components, error) {
	c := &components{bus: events.NewBus()}

	store, err := openStore(ctx, cfg, c)
	if err != nil {
		return nil, err
	}
	c.store = store

	publishers := events.Multi{c.bus}
	if cfg.NATSURL != "" {
		nats, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, nats.Close)
		publishers = append(publishers, nats)
		log.WithField("subject", cfg.NATSSubject).Info("Publishing job events to NATS")
	}
	if cfg.ReportsDir != "" {
		files, err := storage.NewStore(cfg.ReportsDir)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.reports = files
		publishers = append(publishers, storage.NewArchiver(files, store, log))
		log.WithField("dir", cfg.ReportsDir).Info("Archiving reports")
	}

	client := llm.NewOpenAIClient(llm.Options{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	searcher := search.NewDuckDuckGo(cfg.Search.Endpoint, cfg.Search.Timeout)

	c.chat = agent.NewReportChat(client)
	c.deps = runner.Deps{
		Store:            store,
		Planner:          agent.NewPlanner(client, log),
		Researcher:       agent.NewResearcher(client, searcher, cfg.Search.MaxResults, log),
		Reporter:         agent.NewReporter(client),
		Searcher:         searcher,
		Publisher:        publishers,
		Log:              log,
		SearchMaxResults: cfg.Search.MaxResults,
	}
	log.WithFields(logrus.Fields{"model": cfg.LLM.Model, "base_url": cfg.LLM.BaseURL}).Info("LLM configured")
	return c, nil
}

func openStore(ctx context.Context, cfg *config.Config, c *components) (job.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return job.NewMemoryStore(), nil
	case "badger":
		dbStore, err := db.NewStore(cfg.Store.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open badger: %w", err)
		}
		c.closers = append(c.closers, dbStore.Close)
		return job.NewPersistentStore(dbStore), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		s, err := job.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, s.Close)
		return s, nil
	case "postgres":
		s, err := job.OpenPostgres(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, s.Close)
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver: %q", cfg.Store.Driver)
}
