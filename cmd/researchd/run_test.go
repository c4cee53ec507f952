package main

import (
	"context"
	"testing"

	"github.com/researchd/orchestrator/internal/events"
	"github.com/researchd/orchestrator/internal/job"
	"github.com/researchd/orchestrator/internal/logging"
)

func TestProgressPrinter_PrintsEachLineOnce(t *testing.T) {
	ctx := context.Background()
	store := job.NewMemoryStore()
	j := job.New("topic", job.ModeQuick)
	store.Create(ctx, j)

	p := &progressPrinter{store: store, log: logging.Discard()}
	store.UpdateStatus(ctx, j.ID, job.Update{Status: job.StatusRunning, Logs: []string{"a"}})
	p.Publish(ctx, events.Event{JobID: j.ID})
	store.UpdateStatus(ctx, j.ID, job.Update{Status: job.StatusResearching, Logs: []string{"a", "b", "c"}})
	p.Publish(ctx, events.Event{JobID: j.ID})

	if p.seen != 3 {
		t.Errorf("expected 3 lines seen, got %d", p.seen)
	}
	if err := p.Publish(ctx, events.Event{JobID: "missing"}); err == nil {
		t.Error("expected error for unknown job")
	}
}
