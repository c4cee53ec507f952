package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/researchd/orchestrator/internal/storage"
)

const reportSuffix = "_Report.md"

// ReportHandlers serves the markdown files written by the report archiver.
type ReportHandlers struct {
	files *storage.Store
	log   logrus.FieldLogger
}

func NewReportHandlers(files *storage.Store, log logrus.FieldLogger) *ReportHandlers {
	return &ReportHandlers{files: files, log: log}
}

func (h *ReportHandlers) ListReports(w http.ResponseWriter, r *http.Request) {
	names, err := h.files.List(reportSuffix)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"reports": names})
}

func (h *ReportHandlers) GetReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	content, err := h.files.Get(name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

func (h *ReportHandlers) DeleteReport(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Delete(chi.URLParam(r, "name")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *ReportHandlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not found"})
	case errors.Is(err, storage.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.log.WithError(err).Error("Report request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
