// Package agent holds the LLM-backed collaborators a research run is built
// from: the planner, the per-question researcher, the report writer and the
// report chat.
package agent

import "context"

// Result is the outcome of researching one question.
type Result struct {
	Question  string   `json:"question"`
	Content   string   `json:"content"`
	Citations []string `json:"citations"`
}

type Planner interface {
	Plan(ctx context.Context, topic string) ([]string, error)
}

type Researcher interface {
	Answer(ctx context.Context, question string) (Result, error)
}

type Reporter interface {
	Synthesize(ctx context.Context, topic string, results []Result) (string, error)
}
