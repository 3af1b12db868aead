package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sheetscan/omr-engine/internal/batch"
	"github.com/sheetscan/omr-engine/internal/report"
	"github.com/sheetscan/omr-engine/internal/results"
)

// Server exposes stored batch runs over HTTP.
type Server struct {
	store *results.Store
}

// New creates a dashboard server over the given store.
func New(store *results.Store) *Server {
	return &Server{store: store}
}

// RunDetail is the full JSON payload for one run: the stored record
// plus every file result in input order.
type RunDetail struct {
	Run     *results.RunRecord  `json:"run"`
	Results []*batch.FileResult `json:"results"`
}

// Routes returns the server's route table.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.HandleRuns)
	mux.HandleFunc("/api/runs/", s.HandleRunDetail)
	mux.HandleFunc("/healthcheck", s.HandleHealth)
	mux.HandleFunc("/", s.HandleIndex)
	return mux
}

// Run serves the dashboard until the listener fails.
func (s *Server) Run(addr string) error {
	slog.Info("review dashboard available", "addr", addr)
	return http.ListenAndServe(addr, s.Routes())
}

// HandleRuns lists every stored run, newest first.
func (s *Server) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runs, err := s.store.Runs()
	if err != nil {
		slog.Error("Unable to list runs", "err", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*results.RunRecord{}
	}
	writeJSON(w, runs)
}

// HandleRunDetail serves one run as JSON, or its rendered report when
// the path ends in /report.
func (s *Server) HandleRunDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	if trimmed := strings.TrimSuffix(runID, "/report"); trimmed != runID {
		s.serveReport(w, trimmed)
		return
	}

	rec, files, ok := s.loadRun(w, runID)
	if !ok {
		return
	}
	writeJSON(w, &RunDetail{Run: rec, Results: files})
}

func (s *Server) serveReport(w http.ResponseWriter, runID string) {
	rec, files, ok := s.loadRun(w, runID)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.Write(w, rec, files); err != nil {
		// Headers are out by now; all we can do is log.
		slog.Error("Unable to render report", "run", runID, "err", err)
	}
}

// loadRun fetches a run and its results, writing the HTTP error itself
// when the lookup fails.
func (s *Server) loadRun(w http.ResponseWriter, runID string) (*results.RunRecord, []*batch.FileResult, bool) {
	rec, err := s.store.Run(runID)
	if errors.Is(err, results.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, nil, false
	}
	if err != nil {
		slog.Error("Unable to load run", "run", runID, "err", err)
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return nil, nil, false
	}

	files, err := s.store.Results(runID)
	if err != nil {
		slog.Error("Unable to load results", "run", runID, "err", err)
		http.Error(w, "Failed to load results", http.StatusInternalServerError)
		return nil, nil, false
	}
	return rec, files, true
}

// HandleIndex redirects to the newest run's report.
func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	runs, err := s.store.Runs()
	if err != nil {
		slog.Error("Unable to list runs", "err", err)
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if len(runs) == 0 {
		http.Error(w, "No runs recorded", http.StatusNotFound)
		return
	}
	http.Redirect(w, r, "/api/runs/"+runs[0].RunID+"/report", http.StatusFound)
}

// HandleHealth answers liveness probes.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Unable to write healthcheck", "err", err)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Unable to encode response", "err", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
