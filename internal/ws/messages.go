package ws

import (
	"time"

	"github.com/researchd/orchestrator/internal/job"
)

type BaseMessage struct {
	Type string `json:"type"`
}

// Client → Orchestrator: "stop", "heartbeat" or "quit".

// Orchestrator → Client

type SnapshotMessage struct {
	Type string   `json:"type"`
	Job  *job.Job `json:"job"`
}

type HeartbeatMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
	Error string `json:"error"`
}
