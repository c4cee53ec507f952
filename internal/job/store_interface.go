package job

import (
	"context"
	"errors"
)

var (
	ErrNotFound    = errors.New("job not found")
	ErrDuplicateID = errors.New("duplicate job id")
)

// Store defines job persistence. Every backend gives the same guarantees:
// snapshots are independent copies and UpdateStatus replaces the run fields
// atomically.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	UpdateStatus(ctx context.Context, id string, u Update) error
	// ListSummaries returns every job, most recent first.
	ListSummaries(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	RenameTopic(ctx context.Context, id, topic string) error
}
