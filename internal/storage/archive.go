package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/researchd/orchestrator/internal/events"
	"github.com/researchd/orchestrator/internal/job"
)

// ReportFilename is the markdown file name for a topic's report.
func ReportFilename(topic string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ' ':
			return '_'
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return -1
		}
		return r
	}, strings.TrimSpace(topic))
	name = strings.ReplaceAll(name, "..", "")
	if name == "" {
		name = "Untitled"
	}
	return name + "_Report.md"
}

// Archiver writes every completed report to the store. It is an
// events.Publisher so it hangs off the runner's status events.
type Archiver struct {
	files *Store
	jobs  job.Store
	log   logrus.FieldLogger
}

func NewArchiver(files *Store, jobs job.Store, log logrus.FieldLogger) *Archiver {
	return &Archiver{files: files, jobs: jobs, log: log}
}

func (a *Archiver) Publish(ctx context.Context, e events.Event) error {
	if e.Status != job.StatusCompleted {
		return nil
	}
	j, err := a.jobs.Get(ctx, e.JobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	name := ReportFilename(j.Topic)
	if err := a.files.Put(name, []byte(j.Report)); err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	a.log.WithFields(logrus.Fields{"job_id": j.ID, "file": name}).Info("Report archived")
	return nil
}
