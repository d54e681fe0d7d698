package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/beamforge/phasor/internal/logging"
)

// BridgeConfig configures a Bridge session.
type BridgeConfig struct {
	// URL is the JSON-RPC 2.0 endpoint of the solver bridge process.
	URL string
	// Design and Setup name the design context the session operates on.
	Design string
	Setup  string
	// ProjectPath is the solver project file, used for lock cleanup and open.
	ProjectPath string
	// CallTimeout bounds variable assignments and far-field queries.
	CallTimeout time.Duration
	// SolveTimeout bounds a full solve.
	SolveTimeout time.Duration
}

// Bridge is a Session implemented over a JSON-RPC 2.0 HTTP bridge in front of
// the solver desktop process.
type Bridge struct {
	cfg    BridgeConfig
	client *http.Client
	logger *logging.Logger
	nextID atomic.Int64
}

// NewBridge creates a session client. The bridge process itself must already
// be listening; starting and stopping it is its own concern.
func NewBridge(cfg BridgeConfig, logger *logging.Logger) *Bridge {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.SolveTimeout <= 0 {
		cfg.SolveTimeout = 10 * time.Minute
	}

	return &Bridge{
		cfg:    cfg,
		client: &http.Client{},
		logger: logger,
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("solver bridge error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// call performs one JSON-RPC round trip and decodes the result into out.
func (b *Bridge) call(ctx context.Context, timeout time.Duration, method string, params, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      b.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("calling %s: unexpected status %d", method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if out != nil {
		if rpcResp.Result == nil {
			return fmt.Errorf("%s: empty result", method)
		}
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
	}
	return nil
}

// Open activates the project and design this session operates on. Stale lock
// files from a crashed solver instance are removed first. The bridge answers
// with the design it actually activated; a mismatch means the project does
// not contain the configured design and is fatal.
func (b *Bridge) Open(ctx context.Context) error {
	if b.cfg.ProjectPath != "" {
		removed, err := RemoveStaleLock(b.cfg.ProjectPath)
		if err != nil {
			return err
		}
		if removed && b.logger != nil {
			b.logger.Warn("Removed stale solver lock file, waiting for solver shutdown", map[string]interface{}{
				"project": b.cfg.ProjectPath,
			})
			// Give a half-closed solver instance time to let go of the project.
			time.Sleep(2 * time.Second)
		}
	}

	var result struct {
		Design string `json:"design"`
	}
	params := map[string]string{
		"project": b.cfg.ProjectPath,
		"design":  b.cfg.Design,
		"setup":   b.cfg.Setup,
	}
	if err := b.call(ctx, b.cfg.CallTimeout, "project.open", params, &result); err != nil {
		return err
	}
	if result.Design != b.cfg.Design {
		return fmt.Errorf("design %q not found in project, bridge activated %q", b.cfg.Design, result.Design)
	}

	if b.logger != nil {
		b.logger.Info("Activated solver design", map[string]interface{}{
			"design": result.Design,
			"setup":  b.cfg.Setup,
		})
	}
	return nil
}

// Release detaches from the solver, letting it save and unload the design.
func (b *Bridge) Release(ctx context.Context) error {
	return b.call(ctx, b.cfg.CallTimeout, "desktop.release", nil, nil)
}

// SetVariable implements Session.
func (b *Bridge) SetVariable(ctx context.Context, name, value string) error {
	params := map[string]string{
		"design": b.cfg.Design,
		"name":   name,
		"value":  value,
	}
	return b.call(ctx, b.cfg.CallTimeout, "design.setVariable", params, nil)
}

// Analyze implements Session.
func (b *Bridge) Analyze(ctx context.Context) error {
	params := map[string]string{
		"design": b.cfg.Design,
		"setup":  b.cfg.Setup,
	}
	return b.call(ctx, b.cfg.SolveTimeout, "setup.analyze", params, nil)
}

// FarField implements Session. The bridge sweeps azimuth across the project's
// configured range ("All") at the fixed elevation angle and returns one
// linear-magnitude gain value per sweep sample.
func (b *Bridge) FarField(ctx context.Context, q FarFieldQuery) ([]float64, error) {
	params := map[string]interface{}{
		"design":     b.cfg.Design,
		"expression": q.Expression,
		"theta":      fmt.Sprintf("%gdeg", q.ThetaDeg),
		"phi":        "All",
		"category":   "Far Fields",
		"context":    "3D",
	}
	if q.Frequency != "" {
		params["frequency"] = q.Frequency
	}

	var result struct {
		Gain []float64 `json:"gain"`
	}
	if err := b.call(ctx, b.cfg.CallTimeout, "farfield.query", params, &result); err != nil {
		return nil, err
	}
	if len(result.Gain) == 0 {
		return nil, fmt.Errorf("farfield.query: no gain data for %s", q.Expression)
	}
	return result.Gain, nil
}
