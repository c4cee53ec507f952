// Package ws streams job progress to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/researchd/orchestrator/internal/events"
	"github.com/researchd/orchestrator/internal/job"
)

// JobSource is what the stream needs from the research service.
type JobSource interface {
	Get(ctx context.Context, id string) (*job.Job, error)
	Watch(id string) (<-chan events.Event, func())
	Stop(ctx context.Context, id string) error
}

type Server struct {
	jobs JobSource
	log  logrus.FieldLogger
	// Poll re-reads the job when no event arrives, covering dropped events.
	Poll time.Duration
}

func NewServer(jobs JobSource, log logrus.FieldLogger) *Server {
	return &Server{jobs: jobs, log: log, Poll: 2 * time.Second}
}

// HandleJob pushes a snapshot of job id on every change until it reaches a
// terminal state or the client leaves.
func (s *Server) HandleJob(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.jobs.Get(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, job.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.WithError(err).Warn("WebSocket accept error")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "goodbye")

	updates, unsubscribe := s.jobs.Watch(id)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	incoming := make(chan string, 4)
	go s.readMessages(ctx, conn, incoming)

	log := s.log.WithField("job_id", id)
	ticker := time.NewTicker(s.Poll)
	defer ticker.Stop()

	if done := s.pushSnapshot(ctx, conn, id); done {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
		case <-ticker.C:
		case typ, ok := <-incoming:
			if !ok || typ == "quit" {
				return
			}
			switch typ {
			case "stop":
				if err := s.jobs.Stop(ctx, id); err != nil {
					wsjson.Write(ctx, conn, ErrorMessage{Type: "error", JobID: id, Error: err.Error()})
				}
			case "heartbeat":
				wsjson.Write(ctx, conn, HeartbeatMessage{Type: "heartbeat", Timestamp: time.Now().UTC()})
				continue
			default:
				log.WithField("type", typ).Debug("Unknown message type")
				continue
			}
		}
		if done := s.pushSnapshot(ctx, conn, id); done {
			return
		}
	}
}

// pushSnapshot writes the current job and reports whether the stream is over.
func (s *Server) pushSnapshot(ctx context.Context, conn *websocket.Conn, id string) bool {
	j, err := s.jobs.Get(ctx, id)
	if err != nil {
		wsjson.Write(ctx, conn, ErrorMessage{Type: "error", JobID: id, Error: err.Error()})
		return true
	}
	if err := wsjson.Write(ctx, conn, SnapshotMessage{Type: "job", Job: j}); err != nil {
		s.log.WithError(err).WithField("job_id", id).Debug("WebSocket write failed")
		return true
	}
	return j.Status.Terminal()
}

func (s *Server) readMessages(ctx context.Context, conn *websocket.Conn, out chan<- string) {
	defer close(out)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && ctx.Err() == nil {
				s.log.WithError(err).Debug("WebSocket read error")
			}
			return
		}
		var msg BaseMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.WithError(err).Debug("Invalid message format")
			continue
		}
		select {
		case out <- msg.Type:
		case <-ctx.Done():
			return
		}
	}
}
