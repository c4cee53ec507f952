package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/researchd/orchestrator/internal/research"
	"github.com/researchd/orchestrator/internal/storage"
	"github.com/researchd/orchestrator/internal/ws"
)

// NewRouter builds the HTTP API. reports may be nil when no report archive
// is configured.
func NewRouter(svc *research.Service, reports *storage.Store, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	h := NewHandlers(svc, log)
	wsServer := ws.NewServer(svc, log)

	// Health & Info
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Research API, also under /api for the web client
	routes := func(r chi.Router) {
		r.Post("/", h.StartResearch)
		r.Get("/", h.ListResearch)
		r.Get("/{id}", h.GetResearch)
		r.Put("/{id}", h.RenameResearch)
		r.Delete("/{id}", h.DeleteResearch)
		r.Post("/{id}/stop", h.StopResearch)
		r.Post("/{id}/chat", h.ChatWithReport)
		r.Get("/{id}/report", h.DownloadReport)
		r.Get("/{id}/ws", func(w http.ResponseWriter, r *http.Request) {
			wsServer.HandleJob(w, r, chi.URLParam(r, "id"))
		})
	}
	r.Route("/research", routes)
	r.Route("/api/research", routes)

	r.Post("/chat", h.Chat)
	r.Post("/api/chat", h.Chat)

	// Archived report files
	if reports != nil {
		rh := NewReportHandlers(reports, log)
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", rh.ListReports)
			r.Get("/{name}", rh.GetReport)
			r.Delete("/{name}", rh.DeleteReport)
		})
	}

	return r
}
