package solver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bridgeStub is a canned JSON-RPC 2.0 endpoint. Handlers are keyed by method.
type bridgeStub struct {
	t        *testing.T
	handlers map[string]func(params json.RawMessage) (interface{}, *rpcError)
	calls    []string
}

func newBridgeStub(t *testing.T) *bridgeStub {
	return &bridgeStub{
		t:        t,
		handlers: make(map[string]func(params json.RawMessage) (interface{}, *rpcError)),
	}
}

func (b *bridgeStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      int64           `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
	}
	require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
	require.Equal(b.t, "2.0", req.JSONRPC)

	b.calls = append(b.calls, req.Method)

	handler, ok := b.handlers[req.Method]
	if !ok {
		b.t.Fatalf("unexpected method %q", req.Method)
	}

	result, rpcErr := handler(req.Params)
	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func testBridge(t *testing.T, stub *bridgeStub) (*Bridge, func()) {
	srv := httptest.NewServer(stub)
	bridge := NewBridge(BridgeConfig{
		URL:          srv.URL,
		Design:       "arrayY5",
		Setup:        "Setup1",
		CallTimeout:  5 * time.Second,
		SolveTimeout: 5 * time.Second,
	}, nil)
	return bridge, srv.Close
}

func TestSetVariable(t *testing.T) {
	stub := newBridgeStub(t)
	stub.handlers["design.setVariable"] = func(params json.RawMessage) (interface{}, *rpcError) {
		var p map[string]string
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Equal(t, "arrayY5", p["design"])
		assert.Equal(t, "Phase0", p["name"])
		assert.Equal(t, "0.509rad", p["value"])
		return map[string]bool{"ok": true}, nil
	}

	bridge, done := testBridge(t, stub)
	defer done()

	err := bridge.SetVariable(context.Background(), "Phase0", "0.509rad")
	assert.NoError(t, err)
}

func TestAnalyze(t *testing.T) {
	stub := newBridgeStub(t)
	stub.handlers["setup.analyze"] = func(params json.RawMessage) (interface{}, *rpcError) {
		var p map[string]string
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Equal(t, "Setup1", p["setup"])
		return map[string]bool{"ok": true}, nil
	}

	bridge, done := testBridge(t, stub)
	defer done()

	assert.NoError(t, bridge.Analyze(context.Background()))
}

func TestAnalyzeSolverError(t *testing.T) {
	stub := newBridgeStub(t)
	stub.handlers["setup.analyze"] = func(json.RawMessage) (interface{}, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "adaptive pass diverged"}
	}

	bridge, done := testBridge(t, stub)
	defer done()

	err := bridge.Analyze(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adaptive pass diverged")
}

func TestFarField(t *testing.T) {
	stub := newBridgeStub(t)
	stub.handlers["farfield.query"] = func(params json.RawMessage) (interface{}, *rpcError) {
		var p map[string]interface{}
		require.NoError(t, json.Unmarshal(params, &p))
		assert.Equal(t, "GainTotal", p["expression"])
		assert.Equal(t, "90deg", p["theta"])
		assert.Equal(t, "All", p["phi"])
		assert.Equal(t, "Far Fields", p["category"])
		return map[string]interface{}{"gain": []float64{0.1, 0.2, 0.3}}, nil
	}

	bridge, done := testBridge(t, stub)
	defer done()

	gain, err := bridge.FarField(context.Background(), FarFieldQuery{
		Expression: "GainTotal",
		ThetaDeg:   90,
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, gain)
}

func TestFarFieldEmptyGainIsError(t *testing.T) {
	stub := newBridgeStub(t)
	stub.handlers["farfield.query"] = func(json.RawMessage) (interface{}, *rpcError) {
		return map[string]interface{}{"gain": []float64{}}, nil
	}

	bridge, done := testBridge(t, stub)
	defer done()

	_, err := bridge.FarField(context.Background(), FarFieldQuery{Expression: "GainTotal", ThetaDeg: 90})
	assert.Error(t, err, "missing far-field data must be distinguishable from a result")
}

func TestFarFieldTransportFailure(t *testing.T) {
	bridge := NewBridge(BridgeConfig{
		URL:         "http://127.0.0.1:1/rpc", // nothing listens here
		Design:      "arrayY5",
		CallTimeout: time.Second,
	}, nil)

	_, err := bridge.FarField(context.Background(), FarFieldQuery{Expression: "GainTotal", ThetaDeg: 90})
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	stub := newBridgeStub(t)
	stub.handlers["project.open"] = func(params json.RawMessage) (interface{}, *rpcError) {
		return map[string]string{"design": "arrayY5"}, nil
	}

	bridge, done := testBridge(t, stub)
	defer done()

	assert.NoError(t, bridge.Open(context.Background()))
}

func TestOpenDesignMismatch(t *testing.T) {
	stub := newBridgeStub(t)
	stub.handlers["project.open"] = func(json.RawMessage) (interface{}, *rpcError) {
		return map[string]string{"design": "someOtherDesign"}, nil
	}

	bridge, done := testBridge(t, stub)
	defer done()

	err := bridge.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arrayY5")
}

func TestRemoveStaleLock(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "array.prj")

	// no lock present
	removed, err := RemoveStaleLock(project)
	require.NoError(t, err)
	assert.False(t, removed)

	// stale lock gets cleaned up
	lock := project + ".lock"
	require.NoError(t, os.WriteFile(lock, []byte("stale"), 0o644))

	removed, err = RemoveStaleLock(project)
	require.NoError(t, err)
	assert.True(t, removed)

	_, statErr := os.Stat(lock)
	assert.True(t, os.IsNotExist(statErr))
}
