package events

import (
	"context"
	"sync"
	"time"

	"github.com/researchd/orchestrator/internal/job"
)

// Event announces that a job's stored state changed.
type Event struct {
	JobID     string     `json:"job_id"`
	Status    job.Status `json:"status"`
	LogCount  int        `json:"log_count"`
	Timestamp time.Time  `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus fans events out to in-process subscribers keyed by job id.
// Slow subscribers drop events rather than block the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan Event]struct{})}
}

func (b *Bus) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[e.JobID] {
		select {
		case ch <- e:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of events for jobID and a function that
// releases it.
func (b *Bus) Subscribe(jobID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan Event]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[jobID], ch)
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
			b.mu.Unlock()
		})
	}
}

// Multi publishes to every publisher and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
