package runner

import (
	"context"
	"strings"

	"github.com/researchd/orchestrator/internal/agent"
	"github.com/researchd/orchestrator/internal/job"
)

// Deep plans sub-questions and researches each one in order.
type Deep struct {
	planner    agent.Planner
	researcher agent.Researcher
}

func (d *Deep) Run(ctx context.Context, topic string, sc StepContext) ([]agent.Result, error) {
	sc.Log("Generating research plan...")
	if err := sc.Transition(ctx, job.StatusPlanning); err != nil {
		return nil, err
	}

	questions, err := d.planner.Plan(ctx, topic)
	if err != nil {
		return nil, err
	}
	if len(questions) > agent.MaxQuestions {
		questions = questions[:agent.MaxQuestions]
	}
	sc.Log("Plan created: %s", strings.Join(questions, "; "))
	if err := sc.Persist(ctx); err != nil {
		return nil, err
	}

	if err := sc.Transition(ctx, job.StatusResearching); err != nil {
		return nil, err
	}

	results := make([]agent.Result, 0, len(questions))
	for i, q := range questions {
		if sc.Cancelled(ctx) {
			return nil, ErrCancelled
		}

		sc.Log("Researching: %s", q)
		if err := sc.Persist(ctx); err != nil {
			return nil, err
		}

		res, err := d.researcher.Answer(ctx, q)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		sc.AddSources(res.Citations...)

		sc.Log("Finished Q%d/%d", i+1, len(questions))
		if err := sc.Persist(ctx); err != nil {
			return nil, err
		}
	}
	return results, nil
}
