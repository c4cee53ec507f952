package search

import (
	"context"

	"github.com/sirupsen/logrus"
)

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher runs a web search and returns results in rank order.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// OrEmpty runs the search and turns any failure into an empty result set.
// Search outages never fail a job.
func OrEmpty(ctx context.Context, s Searcher, log logrus.FieldLogger, query string, maxResults int) []Result {
	results, err := s.Search(ctx, query, maxResults)
	if err != nil {
		log.WithError(err).WithField("query", query).Warn("Search failed, continuing with no results")
		return []Result{}
	}
	return results
}

// URLs returns the result links in order.
func URLs(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.URL)
	}
	return out
}
