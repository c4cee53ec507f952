package runner

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/researchd/orchestrator/internal/agent"
	"github.com/researchd/orchestrator/internal/events"
	"github.com/researchd/orchestrator/internal/job"
	"github.com/researchd/orchestrator/internal/search"
)

// ErrCancelled is returned by a pipeline when a checkpoint observes a stop.
var ErrCancelled = errors.New("research cancelled")

// Deps are the collaborators a run needs. Publisher may be nil.
type Deps struct {
	Store            job.Store
	Planner          agent.Planner
	Researcher       agent.Researcher
	Reporter         agent.Reporter
	Searcher         search.Searcher
	Publisher        events.Publisher
	Log              logrus.FieldLogger
	SearchMaxResults int
}

// StepContext is the runner's side of a pipeline: every state change a
// pipeline makes goes through it.
type StepContext interface {
	Log(format string, args ...any)
	// Transition validates the move against the state graph and persists it.
	Transition(ctx context.Context, to job.Status) error
	Persist(ctx context.Context) error
	// Cancelled is the checkpoint. It reports whether a stop is pending.
	Cancelled(ctx context.Context) bool
	AddSources(urls ...string)
}

// Pipeline gathers research results for a topic. The shared report stage
// runs after it.
type Pipeline interface {
	Run(ctx context.Context, topic string, sc StepContext) ([]agent.Result, error)
}

// PipelineFor returns the pipeline for mode. Unknown modes get Deep.
func PipelineFor(mode job.Mode, deps Deps) Pipeline {
	if mode == job.ModeQuick {
		n := deps.SearchMaxResults
		if n <= 0 {
			n = 5
		}
		return &Quick{searcher: deps.Searcher, maxResults: n, log: deps.Log}
	}
	return &Deep{planner: deps.Planner, researcher: deps.Researcher}
}
