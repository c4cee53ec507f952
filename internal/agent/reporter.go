package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/researchd/orchestrator/internal/llm"
)

var ErrEmptyReport = errors.New("reporter returned an empty report")

const reporterPrompt = "You are an expert technical writer. " +
	"Write a structured markdown report based *strictly* on the provided research notes. " +
	"Do not hallucinate new info. " +
	"Include a header, an executive summary, main body sections, and a conclusion. " +
	"Preserve citation markers [1], [2] etc from the text."

type LLMReporter struct {
	llm llm.Client
}

func NewReporter(client llm.Client) *LLMReporter {
	return &LLMReporter{llm: client}
}

func (r *LLMReporter) Synthesize(ctx context.Context, topic string, results []Result) (string, error) {
	report, err := r.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: reporterPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Topic: %s\n\nResearch Notes:\n%s", topic, FormatNotes(results))},
	}, false)
	if err != nil {
		return "", fmt.Errorf("synthesize report: %w", err)
	}
	if strings.TrimSpace(report) == "" {
		return "", ErrEmptyReport
	}
	return report, nil
}

func FormatNotes(results []Result) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "\n## Q: %s\n%s\n", r.Question, r.Content)
	}
	return b.String()
}
