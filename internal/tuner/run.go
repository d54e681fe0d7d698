package tuner

import (
	"context"

	"github.com/beamforge/phasor/internal/array"
	"github.com/beamforge/phasor/internal/errors"
	"github.com/beamforge/phasor/internal/logging"
	"github.com/beamforge/phasor/internal/oracle"
	"github.com/beamforge/phasor/internal/pattern"
	"github.com/beamforge/phasor/internal/solver"
)

// RunConfig is everything one tuning run needs besides a live session.
type RunConfig struct {
	Oracle oracle.Config
	// Target is the desired gain shape; it is normalized before use. Its
	// length must equal the sweep's sample count.
	Target pattern.Target
	// Initial is the starting excitation; nil selects the known-good default.
	Initial       array.Excitation
	MaxIterations int
	Tolerance     float64
	// Observer, if set, receives per-iteration candidates.
	Observer IterationObserver
}

// RunResult is the final output of a run, shaped for diagnostics: separate
// optimized phase and amplitude slices, the full error trace, and the
// optimized pattern re-evaluated at the incumbent alongside the normalized
// target and the azimuth axis.
type RunResult struct {
	Phases     []float64        `json:"phases"`
	Amplitudes []float64        `json:"amplitudes"`
	BestError  float64          `json:"best_error"`
	Iterations int              `json:"iterations"`
	Converged  bool             `json:"converged"`
	Trace      []float64        `json:"trace"`
	PhiDeg     []float64        `json:"phi_deg"`
	Target     pattern.Target   `json:"target"`
	Optimized  pattern.Observed `json:"optimized"`
	Degraded   bool             `json:"degraded"`
}

// Run wires an oracle adapter over the session, drives the search, and
// re-evaluates the incumbent once for the final pattern. The session must be
// live for the whole run; establishing and releasing it is the caller's job.
func Run(ctx context.Context, session solver.Session, cfg RunConfig, logger *logging.Logger) (*RunResult, error) {
	if want := cfg.Oracle.Sweep.Samples(); len(cfg.Target) != want {
		return nil, errors.Errorf("target has %d samples, sweep produces %d", len(cfg.Target), want).
			WithComponent("tuner").
			WithOperation("run")
	}

	initial := cfg.Initial
	if initial == nil {
		initial = array.DefaultInitialGuess()
	}
	if err := initial.Validate(cfg.Oracle.Elements); err != nil {
		return nil, errors.Wrap(err, "initial guess").WithComponent("tuner").WithOperation("run")
	}

	adapter := oracle.NewAdapter(session, cfg.Oracle, logger)
	driver := NewDriver(adapter, logger)

	observer := cfg.Observer
	if observer == nil && logger != nil {
		observer = func(iteration int, phases, amplitudes []float64, errval float64) {
			logger.Info("Iteration", map[string]interface{}{
				"iteration":  iteration,
				"phases":     phases,
				"amplitudes": amplitudes,
				"error":      errval,
			})
		}
	}

	result, err := driver.Optimize(ctx, cfg.Target, initial, Options{
		MaxIterations: cfg.MaxIterations,
		Tolerance:     cfg.Tolerance,
		Observer:      observer,
	})
	if err != nil {
		return nil, err
	}

	// One more solve at the incumbent for the final pattern. This evaluation
	// is diagnostic only; it does not extend the trace.
	final, err := adapter.Evaluate(ctx, result.Best, len(cfg.Target))
	if err != nil {
		return nil, err
	}

	return &RunResult{
		Phases:     result.Best.Phases(),
		Amplitudes: result.Best.Amplitudes(),
		BestError:  result.BestError,
		Iterations: result.Iterations,
		Converged:  result.Converged,
		Trace:      result.Trace.Values(),
		PhiDeg:     cfg.Oracle.Sweep.Angles(),
		Target:     cfg.Target.Normalize(),
		Optimized:  final.Gain,
		Degraded:   final.Degraded,
	}, nil
}
