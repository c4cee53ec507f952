package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/researchd/orchestrator/internal/config"
	"github.com/researchd/orchestrator/internal/events"
	"github.com/researchd/orchestrator/internal/job"
	"github.com/researchd/orchestrator/internal/logging"
	"github.com/researchd/orchestrator/internal/runner"
	"github.com/researchd/orchestrator/internal/storage"
)

func runAction(ctx context.Context, cmd *cli.Command) error {
	topic := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if topic == "" {
		return fmt.Errorf("usage: researchd run [--mode quick|deep] <topic>")
	}
	mode, err := job.ParseMode(cmd.String("mode"))
	if err != nil {
		return err
	}

	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return err
	}
	// One-shot runs keep nothing once the report is printed.
	cfg.Store.Driver = "memory"
	cfg.NATSURL = ""
	cfg.ReportsDir = ""
	log := logging.NewWithOutput(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	c, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	j := job.New(topic, mode)
	if err := c.store.Create(ctx, j); err != nil {
		return err
	}

	deps := c.deps
	deps.Publisher = &progressPrinter{store: c.store, log: log}

	token := runner.NewToken()
	go func() {
		<-ctx.Done()
		token.Stop(nil)
	}()
	runner.New(deps).Run(context.WithoutCancel(ctx), j.ID, token)

	final, err := c.store.Get(context.Background(), j.ID)
	if err != nil {
		return err
	}
	if final.Status != job.StatusCompleted {
		return fmt.Errorf("research %s", final.Status)
	}

	fmt.Println(final.Report)
	if len(final.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range final.Sources {
			fmt.Printf("[%d] %s\n", i+1, src)
		}
	}

	path := cmd.String("out")
	if path == "" && cmd.Bool("save") {
		path = storage.ReportFilename(topic)
	}
	if path != "" {
		if err := os.WriteFile(path, []byte(final.Report), 0o644); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		log.Infof("Report saved to: %s", path)
	}
	return nil
}

// progressPrinter echoes new job log lines as the run persists them.
type progressPrinter struct {
	store job.Store
	log   logrus.FieldLogger
	seen  int
}

func (p *progressPrinter) Publish(ctx context.Context, e events.Event) error {
	j, err := p.store.Get(ctx, e.JobID)
	if err != nil {
		return err
	}
	for ; p.seen < len(j.Logs); p.seen++ {
		p.log.WithField("status", j.Status).Info(j.Logs[p.seen])
	}
	return nil
}
