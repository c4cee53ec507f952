package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/researchd/orchestrator/internal/llm"
	"github.com/researchd/orchestrator/internal/search"
)

const NoResultsContent = "No relevant search results found."

const researcherPrompt = "You are a helpful researcher. " +
	"Read the provided search results and answer the user's question. " +
	"Cite sources using [1], [2] notation based on the provided Source numbers. " +
	"Be concise and factual."

type LLMResearcher struct {
	llm        llm.Client
	searcher   search.Searcher
	maxResults int
	log        logrus.FieldLogger
}

func NewResearcher(client llm.Client, searcher search.Searcher, maxResults int, log logrus.FieldLogger) *LLMResearcher {
	return &LLMResearcher{llm: client, searcher: searcher, maxResults: maxResults, log: log}
}

func (r *LLMResearcher) Answer(ctx context.Context, question string) (Result, error) {
	results := search.OrEmpty(ctx, r.searcher, r.log, question, r.maxResults)
	if len(results) == 0 {
		return Result{Question: question, Content: NoResultsContent, Citations: []string{}}, nil
	}

	answer, err := r.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: researcherPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Question: %s\n\nSearch Results:\n%s", question, FormatSources(results))},
	}, false)
	if err != nil {
		return Result{}, fmt.Errorf("research %q: %w", question, err)
	}

	return Result{Question: question, Content: answer, Citations: search.URLs(results)}, nil
}

// FormatSources renders results as numbered sources the model can cite.
func FormatSources(results []search.Result) string {
	var b strings.Builder
	for i, res := range results {
		fmt.Fprintf(&b, "Source [%d]: %s\n%s\nURL: %s\n\n", i+1, res.Title, res.Snippet, res.URL)
	}
	return b.String()
}
