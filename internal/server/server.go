package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/beamforge/phasor/internal/array"
	"github.com/beamforge/phasor/internal/config"
	"github.com/beamforge/phasor/internal/logging"
	"github.com/beamforge/phasor/internal/oracle"
	"github.com/beamforge/phasor/internal/pattern"
	"github.com/beamforge/phasor/internal/solver"
	"github.com/beamforge/phasor/internal/tuner"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// SessionFactory opens a live solver session for one run and returns a
// teardown alongside it. Tests inject stub sessions through this.
type SessionFactory func(ctx context.Context) (solver.Session, func(), error)

// TuningJob tracks one tuning run from submission to completion. Runs are not
// cancellable: they end through their iteration cap or convergence, so the
// job has no terminal state other than completed or failed.
type TuningJob struct {
	ID          string
	Status      string // "pending", "running", "completed", "failed"
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Result      *tuner.RunResult
	Err         string
}

// Server exposes tuning runs over HTTP and JSON-RPC. Each job gets its own
// solver session; jobs are independent, the shared state is only this map.
type Server struct {
	cfg      *config.Config
	logger   Logger
	sessions SessionFactory

	jobs   map[string]*TuningJob
	jobsMu sync.RWMutex // Protects the jobs map
}

// NewServer creates a new server instance with the given config and logger.
// sessions supplies one solver session per submitted job.
func NewServer(cfg *config.Config, logger Logger, sessions SessionFactory) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		jobs:     make(map[string]*TuningJob),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tune", s.handleTune)
		r.Get("/status/{id}", s.handleStatus)
		r.Get("/result/{id}", s.handleResult)
		r.Get("/result/{id}/charts", s.handleCharts)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// tuneRequest is the submission payload shared by the HTTP and RPC surfaces.
type tuneRequest struct {
	// Target is the desired gain shape over the configured sweep; any
	// non-negative-convertible sequence, normalized server-side.
	Target []float64 `json:"target"`
	// Initial optionally overrides the default starting excitation,
	// [phase0..phaseN-1, amp0..ampN-1].
	Initial       []float64 `json:"initial,omitempty"`
	MaxIterations int       `json:"max_iterations,omitempty"`
	Tolerance     float64   `json:"tolerance,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      interface{}     `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", nil)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "tuning.start":
		var req tuneRequest
		if err := json.Unmarshal(request.Params, &req); err != nil {
			s.respondWithError(w, -32602, "Invalid params", request.ID)
			return
		}
		result, err = s.startJob(req)
	case "tuning.status":
		var req struct {
			JobID string `json:"job_id"`
		}
		if err := json.Unmarshal(request.Params, &req); err != nil {
			s.respondWithError(w, -32602, "Invalid params", request.ID)
			return
		}
		result, err = s.jobStatus(req.JobID)
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, -32000, err.Error(), request.ID)
		return
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// startJob validates a submission and launches the run in its own goroutine.
func (s *Server) startJob(req tuneRequest) (interface{}, error) {
	sweep := s.sweep()
	if len(req.Target) == 0 {
		return nil, fmt.Errorf("target pattern is required")
	}
	if len(req.Target) != sweep.Samples() {
		return nil, fmt.Errorf("target has %d samples, configured sweep produces %d", len(req.Target), sweep.Samples())
	}

	var initial array.Excitation
	if req.Initial != nil {
		initial = array.Excitation(req.Initial).Clone()
		if err := initial.Validate(s.cfg.Array.Elements); err != nil {
			return nil, err
		}
	}

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = s.cfg.Tuner.MaxIterations
	}
	tolerance := req.Tolerance
	if tolerance <= 0 {
		tolerance = s.cfg.Tuner.Tolerance
	}

	id := fmt.Sprintf("tune_%d", time.Now().UnixNano())

	job := &TuningJob{
		ID:          id,
		Status:      "pending",
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}

	s.jobsMu.Lock()
	s.jobs[id] = job
	s.jobsMu.Unlock()

	runCfg := tuner.RunConfig{
		Oracle: oracle.Config{
			Elements:       s.cfg.Array.Elements,
			AmplitudeFloor: s.cfg.Array.AmplitudeFloor,
			Precision:      s.cfg.Array.Precision,
			Sweep:          sweep,
		},
		Target:        pattern.Target(req.Target),
		Initial:       initial,
		MaxIterations: maxIterations,
		Tolerance:     tolerance,
	}

	go s.runJob(id, runCfg)

	return map[string]interface{}{
		"job_id": id,
		"status": "pending",
	}, nil
}

// runJob executes one tuning run in a goroutine, owning the session for its
// whole duration.
func (s *Server) runJob(id string, runCfg tuner.RunConfig) {
	s.setStatus(id, "running")

	ctx := context.Background()
	session, release, err := s.sessions(ctx)
	if err != nil {
		s.logger.Error("Could not establish solver session", map[string]interface{}{
			"job_id": id,
			"error":  err.Error(),
		})
		s.finishJob(id, nil, err)
		return
	}
	defer release()

	var serviceLogger *logging.Logger
	if l, ok := s.logger.(*logging.Logger); ok {
		serviceLogger = l
	}

	result, err := tuner.Run(ctx, session, runCfg, serviceLogger)
	if err != nil {
		s.logger.Error("Tuning run failed", map[string]interface{}{
			"job_id": id,
			"error":  err.Error(),
		})
	}
	s.finishJob(id, result, err)
}

func (s *Server) setStatus(id, status string) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.Status = status
		job.LastUpdated = time.Now()
	}
}

func (s *Server) finishJob(id string, result *tuner.RunResult, err error) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return
	}

	now := time.Now()
	job.EndTime = &now
	job.LastUpdated = now
	if err != nil {
		job.Status = "failed"
		job.Err = err.Error()
		return
	}
	job.Status = "completed"
	job.Result = result
}

// jobStatus builds the status payload shared by the HTTP and RPC surfaces.
func (s *Server) jobStatus(id string) (interface{}, error) {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job not found")
	}

	response := map[string]interface{}{
		"job_id":      job.ID,
		"status":      job.Status,
		"start_time":  job.StartTime.Format(time.RFC3339),
		"last_update": job.LastUpdated.Format(time.RFC3339),
	}
	if job.EndTime != nil {
		response["end_time"] = job.EndTime.Format(time.RFC3339)
	}
	if job.Err != "" {
		response["error"] = job.Err
	}
	if job.Result != nil {
		response["best_error"] = job.Result.BestError
		response["iterations"] = job.Result.Iterations
		response["converged"] = job.Result.Converged
		response["evaluations"] = len(job.Result.Trace)
	}
	return response, nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Error("Request error", map[string]interface{}{
		"status":  code,
		"message": message,
	})

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// sweep builds the sampling geometry from config.
func (s *Server) sweep() pattern.Sweep {
	return pattern.Sweep{
		PhiStartDeg: s.cfg.Sweep.PhiStartDeg,
		PhiStopDeg:  s.cfg.Sweep.PhiStopDeg,
		PhiStepDeg:  s.cfg.Sweep.PhiStepDeg,
		ThetaDeg:    s.cfg.Sweep.ThetaDeg,
		Frequency:   s.cfg.Sweep.Frequency,
	}
}

// handleTune handles the HTTP POST /tune endpoint for submitting a run
func (s *Server) handleTune(w http.ResponseWriter, r *http.Request) {
	var req tuneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := s.startJob(req)

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(result)
}

// handleStatus handles the HTTP GET /status/:id endpoint
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, "Missing job ID", http.StatusBadRequest)
		return
	}

	result, err := s.jobStatus(id)

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// handleResult handles the HTTP GET /result/:id endpoint, returning the full
// run result once a job completes.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.jobsMu.RLock()
	job, ok := s.jobs[id]
	s.jobsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "job not found"})
		return
	}
	if job.Result == nil {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":  "result not available",
			"status": job.Status,
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(job.Result)
}

// Close cleans up resources
func (s *Server) Close() error {
	// Jobs run to completion on their own; nothing to tear down beyond
	// forgetting them.
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	s.jobs = make(map[string]*TuningJob)
	return nil
}
