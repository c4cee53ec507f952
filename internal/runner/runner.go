// Package runner drives a research job through its state machine and runs
// the admission-controlled worker pool that executes jobs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/researchd/orchestrator/internal/agent"
	"github.com/researchd/orchestrator/internal/events"
	"github.com/researchd/orchestrator/internal/job"
)

type Runner struct {
	deps Deps
}

func New(deps Deps) *Runner {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	return &Runner{deps: deps}
}

// Run executes the job to a terminal state. token is signalled when a stop is
// requested; it is only looked at on checkpoints, so in-flight collaborator
// calls finish first.
func (r *Runner) Run(ctx context.Context, jobID string, token *Token) {
	if token == nil {
		token = NewToken()
	}
	log := r.deps.Log.WithField("job_id", jobID)

	j, err := r.deps.Store.Get(ctx, jobID)
	if err != nil {
		log.WithError(err).Warn("Job vanished before launch")
		return
	}
	if j.Status != job.StatusQueued && j.Status != job.StatusStopping {
		log.WithField("status", j.Status).Warn("Job is not queued, skipping")
		return
	}

	st := &step{
		deps:    r.deps,
		id:      jobID,
		status:  job.StatusQueued,
		logs:    append([]string{}, j.Logs...),
		sources: job.Dedupe(j.Sources),
		token:   token,
		log:     log,
	}

	if st.Cancelled(ctx) {
		st.abort(ctx, ErrCancelled)
		return
	}

	st.Log("Starting %s research on: %s", j.Mode, j.Topic)
	if err := st.Transition(ctx, job.StatusRunning); err != nil {
		st.abort(ctx, err)
		return
	}
	log.WithField("mode", j.Mode).Info("Research started")

	err = r.execute(ctx, PipelineFor(j.Mode, r.deps), j.Topic, st)
	if err != nil {
		st.abort(ctx, err)
		return
	}
	log.Info("Research completed")
}

func (r *Runner) execute(ctx context.Context, p Pipeline, topic string, st *step) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()

	results, err := p.Run(ctx, topic, st)
	if err != nil {
		return err
	}
	return r.report(ctx, topic, results, st)
}

func (r *Runner) report(ctx context.Context, topic string, results []agent.Result, st *step) error {
	st.Log("Synthesizing final report...")
	if err := st.Transition(ctx, job.StatusReporting); err != nil {
		return err
	}

	report, err := r.deps.Reporter.Synthesize(ctx, topic, results)
	if err != nil {
		return err
	}
	if strings.TrimSpace(report) == "" {
		return agent.ErrEmptyReport
	}

	if err := job.ValidateTransition(st.status, job.StatusCompleted); err != nil {
		return err
	}
	st.Log("Research completed successfully.")
	if err := st.write(ctx, job.StatusCompleted, &report); err != nil {
		// Not persisted, so the failure line follows the last stored one.
		st.logs = st.logs[:len(st.logs)-1]
		return err
	}
	st.status = job.StatusCompleted
	return nil
}

// step is the StepContext for a single run. It holds the runner's view of
// the job: the runner is the only writer of logs and sources. status is the
// last status written successfully.
type step struct {
	deps    Deps
	id      string
	status  job.Status
	logs    []string
	sources []string
	token   *Token
	log     logrus.FieldLogger
	deleted bool
}

func (s *step) Log(format string, args ...any) {
	s.logs = append(s.logs, fmt.Sprintf(format, args...))
}

func (s *step) Transition(ctx context.Context, to job.Status) error {
	if err := job.ValidateTransition(s.status, to); err != nil {
		return err
	}
	if err := s.write(ctx, to, nil); err != nil {
		return err
	}
	s.status = to
	return nil
}

func (s *step) Persist(ctx context.Context) error {
	return s.write(ctx, s.status, nil)
}

// Cancelled reports whether the run should stop: a stop was requested or
// the job record is gone.
func (s *step) Cancelled(ctx context.Context) bool {
	j, err := s.deps.Store.Get(ctx, s.id)
	if errors.Is(err, job.ErrNotFound) {
		s.deleted = true
		return true
	}
	if s.token.Stopped() {
		return true
	}
	return err == nil && j.Status == job.StatusStopping
}

func (s *step) AddSources(urls ...string) {
	s.sources = job.Dedupe(append(s.sources, urls...))
}

// write persists the runner's view with the given status. While a stop is
// pending and the job is not yet terminal, the stored status stays
// "stopping".
func (s *step) write(ctx context.Context, status job.Status, report *string) error {
	err := s.token.guard(func() (bool, error) {
		if !status.Terminal() && s.Cancelled(ctx) {
			status = job.StatusStopping
		}
		err := s.deps.Store.UpdateStatus(ctx, s.id, job.Update{
			Status:  status,
			Logs:    s.logs,
			Sources: s.sources,
			Report:  report,
		})
		return status.Terminal(), err
	})
	if err != nil {
		return fmt.Errorf("persist job: %w", err)
	}

	if s.deps.Publisher != nil {
		e := events.Event{JobID: s.id, Status: status, LogCount: len(s.logs), Timestamp: time.Now().UTC()}
		if err := s.deps.Publisher.Publish(ctx, e); err != nil {
			s.log.WithError(err).Debug("Publish status event failed")
		}
	}
	return nil
}

// abort ends the run after err. A removed job stops quietly.
func (s *step) abort(ctx context.Context, err error) {
	switch {
	case s.deleted || errors.Is(err, job.ErrNotFound):
		s.log.Info("Job deleted while running, stopping")
	case errors.Is(err, ErrCancelled):
		s.log.Info("Research stopped by user")
		s.finish(ctx, job.StatusCancelled, "Research stopped by user.")
	default:
		s.log.WithError(err).Error("Research failed")
		s.finish(ctx, job.StatusFailed, "Error: "+err.Error())
	}
}

func (s *step) finish(ctx context.Context, status job.Status, line string) {
	if err := job.ValidateTransition(s.status, status); err != nil {
		s.log.WithError(err).Error("Cannot finish job")
		return
	}
	s.logs = append(s.logs, line)
	if err := s.write(ctx, status, nil); err != nil {
		if !errors.Is(err, job.ErrNotFound) {
			s.log.WithError(err).Error("Persist final status failed")
		}
		return
	}
	s.status = status
}
