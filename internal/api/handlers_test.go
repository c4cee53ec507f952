package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/researchd/orchestrator/internal/agent"
	"github.com/researchd/orchestrator/internal/events"
	"github.com/researchd/orchestrator/internal/job"
	"github.com/researchd/orchestrator/internal/llm"
	"github.com/researchd/orchestrator/internal/logging"
	"github.com/researchd/orchestrator/internal/research"
	"github.com/researchd/orchestrator/internal/runner"
	"github.com/researchd/orchestrator/internal/search"
	"github.com/researchd/orchestrator/internal/storage"
)

type stubPlanner struct{}

func (stubPlanner) Plan(ctx context.Context, topic string) ([]string, error) {
	return []string{"What is " + topic + "?"}, nil
}

type gatedResearcher struct{ gate chan struct{} }

func (r gatedResearcher) Answer(ctx context.Context, q string) (agent.Result, error) {
	<-r.gate
	return agent.Result{Question: q, Content: "ok"}, nil
}

type stubReporter struct{}

func (stubReporter) Synthesize(ctx context.Context, topic string, results []agent.Result) (string, error) {
	return "# " + topic, nil
}

type stubSearcher struct{}

func (stubSearcher) Search(ctx context.Context, q string, max int) ([]search.Result, error) {
	return []search.Result{{Title: "T", URL: "https://s.example"}}, nil
}

type stubChat struct{}

func (stubChat) Ask(ctx context.Context, report, message string, history []llm.Message) (string, error) {
	return "about " + report, nil
}

type testEnv struct {
	router http.Handler
	gate   chan struct{}
}

func newTestEnv(t *testing.T, workers, queue int) *testEnv {
	t.Helper()
	return newTestEnvWithReports(t, workers, queue, nil)
}

// newTestEnvWithReports archives completed reports into reports when it is
// not nil.
func newTestEnvWithReports(t *testing.T, workers, queue int, reports *storage.Store) *testEnv {
	t.Helper()
	store := job.NewMemoryStore()
	gate := make(chan struct{})
	log := logging.Discard()
	var publisher events.Publisher
	if reports != nil {
		publisher = storage.NewArchiver(reports, store, log)
	}
	svc := research.NewService(research.Options{
		Store: store,
		Runner: runner.New(runner.Deps{
			Store:      store,
			Planner:    stubPlanner{},
			Researcher: gatedResearcher{gate: gate},
			Reporter:   stubReporter{},
			Searcher:   stubSearcher{},
			Publisher:  publisher,
			Log:        log,
		}),
		Chat:      stubChat{},
		Workers:   workers,
		QueueSize: queue,
		Log:       log,
	})
	svc.Start(context.Background())
	t.Cleanup(func() {
		close(gate)
		svc.Shutdown(context.Background())
	})
	return &testEnv{router: NewRouter(svc, reports, log), gate: gate}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) submit(t *testing.T, topic, mode string) string {
	t.Helper()
	rec := e.do("POST", "/research", `{"topic":"`+topic+`","mode":"`+mode+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ResearchResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.JobID == "" {
		t.Fatal("expected job_id in response")
	}
	return resp.JobID
}

func (e *testEnv) waitStatus(t *testing.T, id string, want job.Status) job.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := e.do("GET", "/research/"+id, "")
		var j job.Job
		json.Unmarshal(rec.Body.Bytes(), &j)
		if j.Status == want {
			return j
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never reached %s, last %s", id, want, j.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 1, 1)

	rec := env.do("GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "healthy" {
		t.Errorf("expected healthy, got %s", resp["status"])
	}
}

func TestStartResearch_QuickCompletes(t *testing.T) {
	env := newTestEnv(t, 1, 4)

	id := env.submit(t, "Rust vs Go", "quick")
	j := env.waitStatus(t, id, job.StatusCompleted)

	if j.Report != "# Rust vs Go" {
		t.Errorf("unexpected report %q", j.Report)
	}
	if len(j.Sources) != 1 || j.Sources[0] != "https://s.example" {
		t.Errorf("unexpected sources %v", j.Sources)
	}
	if j.Mode != job.ModeQuick {
		t.Errorf("expected quick, got %s", j.Mode)
	}
}

func TestStartResearch_APIPrefix(t *testing.T) {
	env := newTestEnv(t, 1, 4)

	rec := env.do("POST", "/api/research", `{"topic":"Rust vs Go","mode":"quick"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var resp ResearchResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	if rec := env.do("GET", "/api/research/"+resp.JobID, ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestStartResearch_InvalidInput(t *testing.T) {
	env := newTestEnv(t, 1, 1)

	for _, body := range []string{"invalid", `{"topic":""}`, `{"topic":"x","mode":"medium"}`} {
		if rec := env.do("POST", "/research", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestStartResearch_Saturated(t *testing.T) {
	env := newTestEnv(t, 1, 1)

	running := env.submit(t, "first", "deep")
	env.waitStatus(t, running, job.StatusResearching)
	env.submit(t, "second", "deep")

	rec := env.do("POST", "/research", `{"topic":"third"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}

	var sums []job.Summary
	json.Unmarshal(env.do("GET", "/research", "").Body.Bytes(), &sums)
	if len(sums) != 2 {
		t.Errorf("rejected job should not be stored, got %d jobs", len(sums))
	}
}

func TestGetResearch_NotFound(t *testing.T) {
	env := newTestEnv(t, 1, 1)

	rec := env.do("GET", "/research/nonexistent", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestStopResearch(t *testing.T) {
	env := newTestEnv(t, 1, 1)
	id := env.submit(t, "Quantum Computing", "deep")
	env.waitStatus(t, id, job.StatusResearching)

	rec := env.do("POST", "/research/"+id+"/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "stopping" {
		t.Errorf("expected stopping, got %s", resp["status"])
	}

	env.gate <- struct{}{}
	j := env.waitStatus(t, id, job.StatusCancelled)
	if j.Report != "" {
		t.Errorf("cancelled job has a report: %q", j.Report)
	}

	if rec := env.do("POST", "/research/"+id+"/stop", ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for finished job, got %d", rec.Code)
	}
	if rec := env.do("POST", "/research/nonexistent/stop", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestListResearch_NewestFirst(t *testing.T) {
	env := newTestEnv(t, 2, 4)
	first := env.submit(t, "first", "quick")
	env.waitStatus(t, first, job.StatusCompleted)
	time.Sleep(2 * time.Millisecond)
	second := env.submit(t, "second", "quick")
	env.waitStatus(t, second, job.StatusCompleted)

	rec := env.do("GET", "/research", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sums []job.Summary
	json.Unmarshal(rec.Body.Bytes(), &sums)
	if len(sums) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(sums))
	}
	if sums[0].ID != second || sums[1].ID != first {
		t.Errorf("expected newest first, got %s then %s", sums[0].Topic, sums[1].Topic)
	}
}

func TestRenameAndDeleteResearch(t *testing.T) {
	env := newTestEnv(t, 1, 1)
	id := env.submit(t, "old", "quick")
	env.waitStatus(t, id, job.StatusCompleted)

	if rec := env.do("PUT", "/research/"+id, `{"topic":"new"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if j := env.waitStatus(t, id, job.StatusCompleted); j.Topic != "new" {
		t.Errorf("expected renamed topic, got %s", j.Topic)
	}
	if rec := env.do("PUT", "/research/"+id, `{"topic":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := env.do("PUT", "/research/nonexistent", `{"topic":"x"}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec := env.do("DELETE", "/research/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "deleted" {
		t.Errorf("expected deleted, got %s", resp["status"])
	}
	if rec := env.do("GET", "/research/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
	if rec := env.do("DELETE", "/research/"+id, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestChatWithReport(t *testing.T) {
	env := newTestEnv(t, 1, 1)
	id := env.submit(t, "Rust vs Go", "quick")
	env.waitStatus(t, id, job.StatusCompleted)

	rec := env.do("POST", "/research/"+id+"/chat", `{"message":"which is faster?","history":[]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["response"] != "about # Rust vs Go" {
		t.Errorf("unexpected response %q", resp["response"])
	}

	rec = env.do("POST", "/api/chat", `{"job_id":"`+id+`","message":"and safer?"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /api/chat, got %d", rec.Code)
	}
}

func TestDownloadReport(t *testing.T) {
	env := newTestEnv(t, 1, 1)
	id := env.submit(t, "Rust vs Go", "quick")
	env.waitStatus(t, id, job.StatusCompleted)

	rec := env.do("GET", "/research/"+id+"/report", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "# Rust vs Go" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="Rust_vs_Go_Report.md"` {
		t.Errorf("unexpected disposition %q", got)
	}
}

func TestChatWithReport_NoReport(t *testing.T) {
	env := newTestEnv(t, 1, 1)
	id := env.submit(t, "Quantum Computing", "deep")

	rec := env.do("POST", "/research/"+id+"/chat", `{"message":"summary?"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, 3, 5)
	id := env.submit(t, "Rust vs Go", "quick")
	env.waitStatus(t, id, job.StatusCompleted)

	rec := env.do("GET", "/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Jobs map[string]int    `json:"jobs"`
		Pool runner.PoolStats `json:"pool"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Jobs["completed"] != 1 {
		t.Errorf("expected 1 completed job, got %v", resp.Jobs)
	}
	if resp.Pool.Workers != 3 || resp.Pool.Capacity != 5 {
		t.Errorf("unexpected pool stats %+v", resp.Pool)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, 1, 1)

	req := httptest.NewRequest("OPTIONS", "/api/research", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected wildcard origin")
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected wildcard origin on simple request")
	}
}
