package runner

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/researchd/orchestrator/internal/agent"
	"github.com/researchd/orchestrator/internal/job"
	"github.com/researchd/orchestrator/internal/search"
)

// Quick skips planning and runs one broad search on the topic.
type Quick struct {
	searcher   search.Searcher
	maxResults int
	log        logrus.FieldLogger
}

func (q *Quick) Run(ctx context.Context, topic string, sc StepContext) ([]agent.Result, error) {
	if err := sc.Transition(ctx, job.StatusResearching); err != nil {
		return nil, err
	}
	sc.Log("Researching: %s", topic)
	if err := sc.Persist(ctx); err != nil {
		return nil, err
	}

	results := search.OrEmpty(ctx, q.searcher, q.log, topic, q.maxResults)

	if sc.Cancelled(ctx) {
		return nil, ErrCancelled
	}

	content := agent.NoResultsContent
	if len(results) > 0 {
		content = agent.FormatSources(results)
	}
	urls := search.URLs(results)
	sc.AddSources(urls...)

	return []agent.Result{{Question: topic, Content: content, Citations: urls}}, nil
}
