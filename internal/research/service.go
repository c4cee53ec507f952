// Package research is the job-facing service: it admits jobs into the
// worker pool and carries out stop, delete, rename and chat requests.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/researchd/orchestrator/internal/events"
	"github.com/researchd/orchestrator/internal/job"
	"github.com/researchd/orchestrator/internal/llm"
	"github.com/researchd/orchestrator/internal/runner"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrSaturated    = errors.New("too many research jobs in flight, try again later")
	ErrTerminal     = errors.New("job already finished")
	ErrNoReport     = errors.New("job has no report yet")
)

const interruptedLog = "Error: interrupted by service restart"

// Chatter answers questions about a finished report.
type Chatter interface {
	Ask(ctx context.Context, report, message string, history []llm.Message) (string, error)
}

type Options struct {
	Store     job.Store
	Runner    *runner.Runner
	Chat      Chatter
	Bus       *events.Bus
	Workers   int
	QueueSize int
	Log       logrus.FieldLogger
}

type Service struct {
	store  job.Store
	runner *runner.Runner
	chat   Chatter
	bus    *events.Bus
	pool   *runner.Pool
	tokens *tokens
	log    logrus.FieldLogger
}

func NewService(opts Options) *Service {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	s := &Service{
		store:  opts.Store,
		runner: opts.Runner,
		chat:   opts.Chat,
		bus:    opts.Bus,
		tokens: newTokens(),
		log:    opts.Log,
	}
	s.pool = runner.NewPool(opts.Workers, opts.QueueSize, s.runTask, opts.Log)
	return s
}

func (s *Service) runTask(ctx context.Context, t runner.Task) {
	defer s.tokens.release(t.JobID)
	s.runner.Run(ctx, t.JobID, t.Token)
}

// Start launches the workers. Runs inherit ctx.
func (s *Service) Start(ctx context.Context) {
	s.pool.Start(ctx)
}

// Shutdown stops admitting jobs and waits for running ones until ctx expires.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.pool.Shutdown(ctx)
}

// Submit creates a queued job and admits it to the pool. It never blocks on
// the run. mode may be empty, meaning deep.
func (s *Service) Submit(ctx context.Context, topic, mode string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	m, err := job.ParseMode(mode)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	j := job.New(topic, m)
	if err := s.store.Create(ctx, j); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	token := s.tokens.add(j.ID)
	if err := s.pool.TrySubmit(runner.Task{JobID: j.ID, Token: token}); err != nil {
		s.tokens.release(j.ID)
		if delErr := s.store.Delete(ctx, j.ID); delErr != nil {
			s.log.WithError(delErr).WithField("job_id", j.ID).Warn("Failed to remove rejected job")
		}
		if errors.Is(err, runner.ErrSaturated) {
			return "", ErrSaturated
		}
		return "", err
	}

	s.log.WithFields(logrus.Fields{"job_id": j.ID, "mode": m}).Info("Research job queued")
	return j.ID, nil
}

func (s *Service) Get(ctx context.Context, id string) (*job.Job, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]job.Summary, error) {
	return s.store.ListSummaries(ctx)
}

// Stop requests cancellation. It signals the job's token and writes the
// stopping marker; the runner acknowledges at its next checkpoint.
func (s *Service) Stop(ctx context.Context, id string) error {
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if j.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, j.Status)
	}

	mark := func() error {
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status.Terminal() {
			return fmt.Errorf("%w: %s", ErrTerminal, cur.Status)
		}
		return s.store.UpdateStatus(ctx, id, job.Update{
			Status:  job.StatusStopping,
			Logs:    cur.Logs,
			Sources: cur.Sources,
		})
	}

	if tok, ok := s.tokens.get(id); ok {
		err = tok.Stop(mark)
	} else {
		err = mark()
	}
	if errors.Is(err, runner.ErrFinished) {
		return fmt.Errorf("%w: %s", ErrTerminal, id)
	}
	if err != nil {
		return err
	}
	s.log.WithField("job_id", id).Info("Stop requested")
	return nil
}

// Delete removes the job. A running job stops at its next checkpoint.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if tok, ok := s.tokens.get(id); ok {
		tok.Stop(nil)
	}
	s.log.WithField("job_id", id).Info("Research job deleted")
	return nil
}

func (s *Service) Rename(ctx context.Context, id, topic string) error {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	return s.store.RenameTopic(ctx, id, topic)
}

// Chat answers a question about the job's finished report.
func (s *Service) Chat(ctx context.Context, id, message string, history []llm.Message) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	j, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if j.Report == "" {
		return "", ErrNoReport
	}
	return s.chat.Ask(ctx, j.Report, message, history)
}

// Watch streams status events for id until the returned func is called.
func (s *Service) Watch(id string) (<-chan events.Event, func()) {
	return s.bus.Subscribe(id)
}

type Stats struct {
	Jobs map[job.Status]int `json:"jobs"`
	Pool runner.PoolStats   `json:"pool"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	sums, err := s.store.ListSummaries(ctx)
	if err != nil {
		return Stats{}, err
	}
	counts := make(map[job.Status]int)
	for _, sum := range sums {
		counts[sum.Status]++
	}
	return Stats{Jobs: counts, Pool: s.pool.Stats()}, nil
}

// RecoverInterrupted finishes jobs a previous process left mid-run. Pending
// stops become cancelled, everything else fails. It returns how many jobs it
// touched and must run before Start.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	sums, err := s.store.ListSummaries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}

	n := 0
	for _, sum := range sums {
		if sum.Status.Terminal() {
			continue
		}
		j, err := s.store.Get(ctx, sum.ID)
		if errors.Is(err, job.ErrNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}

		status, line := job.StatusFailed, interruptedLog
		if j.Status == job.StatusStopping {
			status, line = job.StatusCancelled, "Research stopped by user."
		}
		err = s.store.UpdateStatus(ctx, j.ID, job.Update{
			Status:  status,
			Logs:    append(j.Logs, line),
			Sources: j.Sources,
		})
		if err != nil && !errors.Is(err, job.ErrNotFound) {
			return n, fmt.Errorf("recover job %s: %w", j.ID, err)
		}
		s.log.WithFields(logrus.Fields{"job_id": j.ID, "status": status}).Warn("Recovered interrupted job")
		n++
	}
	return n, nil
}
