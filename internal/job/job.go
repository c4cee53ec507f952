package job

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusQueued      Status = "queued"
	StatusRunning     Status = "running"
	StatusPlanning    Status = "planning"
	StatusResearching Status = "researching"
	StatusReporting   Status = "reporting"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"

	// StatusStopping is the pending-stop marker. It is written by whoever
	// requests a stop and observed by the runner; it is never a state the
	// runner moves into.
	StatusStopping Status = "stopping"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type Mode string

const (
	ModeQuick Mode = "quick"
	ModeDeep  Mode = "deep"
)

// ParseMode accepts "quick" or "deep" in any case. An empty string means deep.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDeep:
		return ModeDeep, nil
	case ModeQuick:
		return ModeQuick, nil
	}
	return "", fmt.Errorf("invalid mode: %q", s)
}

type Job struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Mode      Mode      `json:"mode"`
	Status    Status    `json:"status"`
	Logs      []string  `json:"logs"`
	Sources   []string  `json:"sources"`
	Report    string    `json:"report,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func New(topic string, mode Mode) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Topic:     topic,
		Mode:      mode,
		Status:    StatusQueued,
		Logs:      []string{},
		Sources:   []string{},
		// Microsecond precision survives every backend, postgres included.
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// Clone returns a deep copy so callers never share slices with the store.
func (j *Job) Clone() *Job {
	c := *j
	c.Logs = append(make([]string, 0, len(j.Logs)), j.Logs...)
	c.Sources = append(make([]string, 0, len(j.Sources)), j.Sources...)
	return &c
}

func (j *Job) Summary() Summary {
	return Summary{ID: j.ID, Topic: j.Topic, Status: j.Status, CreatedAt: j.CreatedAt}
}

// Apply overwrites the mutable run fields from u.
func (j *Job) Apply(u Update) {
	j.Status = u.Status
	j.Logs = append(make([]string, 0, len(u.Logs)), u.Logs...)
	j.Sources = append(make([]string, 0, len(u.Sources)), u.Sources...)
	if u.Report != nil {
		j.Report = *u.Report
	}
}

type Summary struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Update is the set of fields a runner writes after each step. A nil Report
// leaves the stored report untouched.
type Update struct {
	Status  Status
	Logs    []string
	Sources []string
	Report  *string
}

// Dedupe returns urls without duplicates or blanks, keeping first-seen order.
func Dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
