package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamforge/phasor/internal/config"
	"github.com/beamforge/phasor/internal/logging"
	"github.com/beamforge/phasor/internal/oracle"
	"github.com/beamforge/phasor/internal/pattern"
	"github.com/beamforge/phasor/internal/solver"
	"github.com/beamforge/phasor/internal/tuner"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Array.Elements = 5
	cfg.Array.AmplitudeFloor = 0.001
	cfg.Array.Precision = 3
	cfg.Sweep.PhiStartDeg = -90
	cfg.Sweep.PhiStopDeg = 90
	cfg.Sweep.PhiStepDeg = 5
	cfg.Sweep.ThetaDeg = 90
	cfg.Sweep.Frequency = "2.4GHz"
	cfg.Tuner.MaxIterations = 5
	cfg.Tuner.Tolerance = 0.01
	return cfg
}

func testLogger() *logging.Logger {
	return logging.New(logging.ErrorLevel, io.Discard)
}

// echoSession reports the same pattern regardless of excitation, which makes
// any run against its own pattern converge on the first evaluation.
type echoSession struct {
	gain []float64
}

func (s *echoSession) SetVariable(context.Context, string, string) error { return nil }
func (s *echoSession) Analyze(context.Context) error                     { return nil }
func (s *echoSession) FarField(context.Context, solver.FarFieldQuery) ([]float64, error) {
	return append([]float64(nil), s.gain...), nil
}

func echoFactory(gain []float64) SessionFactory {
	return func(ctx context.Context) (solver.Session, func(), error) {
		return &echoSession{gain: gain}, func() {}, nil
	}
}

func testTarget() pattern.Target {
	sweep := pattern.Sweep{PhiStartDeg: -90, PhiStopDeg: 90, PhiStepDeg: 5, ThetaDeg: 90}
	return pattern.Rectangular(sweep, 2.0, -45, 45).Normalize()
}

func newTestServer(t *testing.T, sessions SessionFactory) (*Server, *chi.Mux) {
	t.Helper()
	srv := NewServer(testConfig(), testLogger(), sessions)
	router := chi.NewRouter()
	srv.RegisterRoutes(router)
	return srv, router
}

func postJSON(t *testing.T, router http.Handler, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, router http.Handler, path string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

// waitForJob polls the status endpoint until the job leaves its running states.
func waitForJob(t *testing.T, router http.Handler, id string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var status map[string]interface{}
		rec := getJSON(t, router, "/api/v1/status/"+id, &status)
		require.Equal(t, http.StatusOK, rec.Code)
		switch status["status"] {
		case "completed", "failed":
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return nil
}

func TestTuneRequiresTarget(t *testing.T) {
	_, router := newTestServer(t, echoFactory(testTarget()))

	rec := postJSON(t, router, "/api/v1/tune", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "target pattern is required")
}

func TestTuneRejectsWrongSampleCount(t *testing.T) {
	_, router := newTestServer(t, echoFactory(testTarget()))

	rec := postJSON(t, router, "/api/v1/tune", map[string]interface{}{
		"target": []float64{1, 2, 3},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "3 samples")
	assert.Contains(t, rec.Body.String(), "37")
}

func TestTuneRejectsBadInitialGuess(t *testing.T) {
	_, router := newTestServer(t, echoFactory(testTarget()))

	rec := postJSON(t, router, "/api/v1/tune", map[string]interface{}{
		"target":  []float64(testTarget()),
		"initial": []float64{1, 2, 3},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusUnknownJob(t *testing.T) {
	_, router := newTestServer(t, echoFactory(testTarget()))

	rec := getJSON(t, router, "/api/v1/status/tune_0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResultUnknownJob(t *testing.T) {
	_, router := newTestServer(t, echoFactory(testTarget()))

	rec := getJSON(t, router, "/api/v1/result/tune_0", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobLifecycle(t *testing.T) {
	target := testTarget()
	_, router := newTestServer(t, echoFactory(target))

	rec := postJSON(t, router, "/api/v1/tune", map[string]interface{}{
		"target":         []float64(target),
		"max_iterations": 5,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	id, ok := accepted["job_id"].(string)
	require.True(t, ok, "tune response must carry a job id")
	assert.True(t, strings.HasPrefix(id, "tune_"))
	assert.Equal(t, "pending", accepted["status"])

	status := waitForJob(t, router, id)
	require.Equal(t, "completed", status["status"])
	assert.InDelta(t, 0.0, status["best_error"].(float64), 1e-9)
	assert.NotZero(t, status["evaluations"])

	var result struct {
		Phases     []float64 `json:"phases"`
		Amplitudes []float64 `json:"amplitudes"`
		BestError  float64   `json:"best_error"`
		Trace      []float64 `json:"trace"`
		PhiDeg     []float64 `json:"phi_deg"`
		Optimized  []float64 `json:"optimized"`
		Target     []float64 `json:"target"`
	}
	resultRec := getJSON(t, router, "/api/v1/result/"+id, &result)
	require.Equal(t, http.StatusOK, resultRec.Code)

	assert.Len(t, result.Phases, 5)
	assert.Len(t, result.Amplitudes, 5)
	assert.Len(t, result.PhiDeg, 37)
	assert.Len(t, result.Optimized, 37)
	assert.NotEmpty(t, result.Trace)
	assert.InDelta(t, 0.0, result.BestError, 1e-9)
}

func TestJobFailsWhenSessionUnavailable(t *testing.T) {
	factory := func(ctx context.Context) (solver.Session, func(), error) {
		return nil, nil, fmt.Errorf("bridge is not listening")
	}
	_, router := newTestServer(t, factory)

	rec := postJSON(t, router, "/api/v1/tune", map[string]interface{}{
		"target": []float64(testTarget()),
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	id := accepted["job_id"].(string)

	status := waitForJob(t, router, id)
	assert.Equal(t, "failed", status["status"])
	assert.Contains(t, status["error"], "bridge is not listening")
}

func TestJobFailsOnMismatchedRunConfig(t *testing.T) {
	srv, router := newTestServer(t, echoFactory(testTarget()))

	// a run whose target disagrees with the sweep's sample count must end as a
	// failed job; the fatal configuration error may not escape the job
	srv.jobsMu.Lock()
	srv.jobs["tune_bad"] = &TuningJob{
		ID:          "tune_bad",
		Status:      "pending",
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}
	srv.jobsMu.Unlock()

	runCfg := tuner.RunConfig{
		Oracle: oracle.Config{
			Elements:       5,
			AmplitudeFloor: 0.001,
			Precision:      3,
			Sweep:          pattern.Sweep{PhiStartDeg: -90, PhiStopDeg: 90, PhiStepDeg: 5, ThetaDeg: 90},
		},
		Target:        make(pattern.Target, 10),
		MaxIterations: 2,
	}
	srv.runJob("tune_bad", runCfg)

	var status map[string]interface{}
	rec := getJSON(t, router, "/api/v1/status/tune_bad", &status)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", status["status"])
	assert.Contains(t, status["error"], "10 samples")
}

func TestChartsEndpoint(t *testing.T) {
	target := testTarget()
	_, router := newTestServer(t, echoFactory(target))

	rec := postJSON(t, router, "/api/v1/tune", map[string]interface{}{
		"target": []float64(target),
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	id := accepted["job_id"].(string)
	waitForJob(t, router, id)

	chartRec := getJSON(t, router, "/api/v1/result/"+id+"/charts", nil)
	assert.Equal(t, http.StatusOK, chartRec.Code)
	assert.Contains(t, chartRec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, chartRec.Body.String(), "Optimized vs target pattern")

	chartRec = getJSON(t, router, "/api/v1/result/tune_0/charts", nil)
	assert.Equal(t, http.StatusNotFound, chartRec.Code)
}

func TestJSONRPCStartAndStatus(t *testing.T) {
	target := testTarget()
	_, router := newTestServer(t, echoFactory(target))

	rec := postJSON(t, router, "/rpc", map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tuning.start",
		"params":  map[string]interface{}{"target": []float64(target)},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var started struct {
		Result map[string]interface{} `json:"result"`
		Error  map[string]interface{} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.Nil(t, started.Error)
	id, ok := started.Result["job_id"].(string)
	require.True(t, ok)

	waitForJob(t, router, id)

	rec = postJSON(t, router, "/rpc", map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tuning.status",
		"params":  map[string]interface{}{"job_id": id},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var statusResp struct {
		Result map[string]interface{} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statusResp))
	assert.Equal(t, "completed", statusResp.Result["status"])
}

func TestJSONRPCInvalidVersion(t *testing.T) {
	_, router := newTestServer(t, echoFactory(testTarget()))

	rec := postJSON(t, router, "/rpc", map[string]interface{}{
		"jsonrpc": "1.0",
		"id":      1,
		"method":  "tuning.start",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Error map[string]interface{} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.EqualValues(t, -32600, resp.Error["code"])
}

func TestJSONRPCMethodNotFound(t *testing.T) {
	_, router := newTestServer(t, echoFactory(testTarget()))

	rec := postJSON(t, router, "/rpc", map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tuning.cancel",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Error map[string]interface{} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.EqualValues(t, -32601, resp.Error["code"])
}

func TestClose(t *testing.T) {
	srv, router := newTestServer(t, echoFactory(testTarget()))

	rec := postJSON(t, router, "/api/v1/tune", map[string]interface{}{
		"target": []float64(testTarget()),
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var accepted map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	id := accepted["job_id"].(string)
	waitForJob(t, router, id)

	require.NoError(t, srv.Close())
	statusRec := getJSON(t, router, "/api/v1/status/"+id, nil)
	assert.Equal(t, http.StatusNotFound, statusRec.Code)
}
