package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/researchd/orchestrator/internal/job"
	"github.com/researchd/orchestrator/internal/llm"
	"github.com/researchd/orchestrator/internal/research"
	"github.com/researchd/orchestrator/internal/storage"
)

var startTime = time.Now()

type Handlers struct {
	svc *research.Service
	log logrus.FieldLogger
}

func NewHandlers(svc *research.Service, log logrus.FieldLogger) *Handlers {
	return &Handlers{svc: svc, log: log}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": int(time.Since(startTime).Seconds()),
		"jobs":           stats.Jobs,
		"pool":           stats.Pool,
	})
}

type ResearchRequest struct {
	Topic string `json:"topic"`
	Mode  string `json:"mode"`
}

type ResearchResponse struct {
	JobID string `json:"job_id"`
}

func (h *Handlers) StartResearch(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	id, err := h.svc.Submit(r.Context(), req.Topic, req.Mode)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ResearchResponse{JobID: id})
}

func (h *Handlers) GetResearch(w http.ResponseWriter, r *http.Request) {
	j, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handlers) ListResearch(w http.ResponseWriter, r *http.Request) {
	sums, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

func (h *Handlers) StopResearch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Stop(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(job.StatusStopping)})
}

func (h *Handlers) DeleteResearch(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DownloadReport serves the finished report as a markdown attachment.
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	j, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if j.Report == "" {
		h.writeError(w, research.ErrNoReport)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.ReportFilename(j.Topic)))
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, j.Report)
}

type RenameRequest struct {
	Topic string `json:"topic"`
}

func (h *Handlers) RenameResearch(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.svc.Rename(r.Context(), chi.URLParam(r, "id"), req.Topic); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type ChatRequest struct {
	JobID   string        `json:"job_id,omitempty"`
	Message string        `json:"message"`
	History []llm.Message `json:"history"`
}

func (h *Handlers) ChatWithReport(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	req.JobID = chi.URLParam(r, "id")
	h.chat(w, r, req)
}

// Chat takes the job id from the body.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	h.chat(w, r, req)
}

func (h *Handlers) chat(w http.ResponseWriter, r *http.Request, req ChatRequest) {
	answer, err := h.svc.Chat(r.Context(), req.JobID, req.Message, req.History)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": answer})
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, research.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, job.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	case errors.Is(err, research.ErrNoReport):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not found"})
		return
	case errors.Is(err, research.ErrTerminal):
		status = http.StatusConflict
	case errors.Is(err, research.ErrSaturated):
		status = http.StatusServiceUnavailable
	default:
		h.log.WithError(err).Error("Request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
