// Package oracle adapts the solver session into a far-field evaluation
// oracle: excitation in, sampled gain curve out.
package oracle

import (
	"context"
	"time"

	"github.com/beamforge/phasor/internal/array"
	"github.com/beamforge/phasor/internal/errors"
	"github.com/beamforge/phasor/internal/logging"
	"github.com/beamforge/phasor/internal/pattern"
	"github.com/beamforge/phasor/internal/solver"
)

// Config fixes the evaluation geometry for one adapter.
type Config struct {
	// Elements is the array element count N; excitations must have length 2N.
	Elements int
	// AmplitudeFloor is the minimum amplitude magnitude presented to the
	// solver (volts).
	AmplitudeFloor float64
	// Precision is the decimal digit count for variable encoding.
	Precision int
	// Sweep is the far-field sampling geometry.
	Sweep pattern.Sweep
	// Expression is the gain quantity queried, defaults to "GainTotal".
	Expression string
}

// Observation is the explicit result of one oracle evaluation. Degraded
// observations carry the all-zero gain curve and the failure that caused the
// fallback; they are a documented contract, not a suppressed exception. The
// gain always has exactly the requested sample count, success or not.
type Observation struct {
	Gain     pattern.Observed
	Degraded bool
	Cause    error
	Elapsed  time.Duration
}

// Evaluator is the capability the objective function needs: a black-box
// function from excitation to observed pattern.
type Evaluator interface {
	Evaluate(ctx context.Context, e array.Excitation, sampleCount int) (Observation, error)
}

// Adapter implements Evaluator against a live solver session.
type Adapter struct {
	session solver.Session
	cfg     Config
	logger  *logging.Logger
}

// NewAdapter wires an adapter to a live session.
func NewAdapter(session solver.Session, cfg Config, logger *logging.Logger) *Adapter {
	if cfg.Expression == "" {
		cfg.Expression = "GainTotal"
	}
	return &Adapter{
		session: session,
		cfg:     cfg,
		logger:  logger,
	}
}

// Evaluate configures the solver with the excitation, runs a full solve and
// extracts the far-field gain curve.
//
// Solve and extraction failures never surface as errors: one bad iteration
// should push the search away with a large objective value, not abort a
// campaign that has hours of evaluations behind it. The only error returned
// is a malformed excitation, which is a caller bug.
func (a *Adapter) Evaluate(ctx context.Context, e array.Excitation, sampleCount int) (Observation, error) {
	if err := e.Validate(a.cfg.Elements); err != nil {
		return Observation{}, errors.Wrap(err, "invalid excitation").
			WithComponent("oracle").
			WithOperation("evaluate")
	}

	evaluationsTotal.Inc()
	start := time.Now()

	gain, err := a.solve(ctx, e, sampleCount)
	elapsed := time.Since(start)
	solveDuration.Observe(elapsed.Seconds())

	if err != nil {
		degradedTotal.Inc()
		if a.logger != nil {
			a.logger.Warn("Solve failed, substituting zero pattern", map[string]interface{}{
				"error":     err.Error(),
				"elapsed_s": elapsed.Seconds(),
				"samples":   sampleCount,
			})
		}
		return Observation{
			Gain:     pattern.Zero(sampleCount),
			Degraded: true,
			Cause:    err,
			Elapsed:  elapsed,
		}, nil
	}

	if a.logger != nil {
		a.logger.Debug("Solve completed", map[string]interface{}{
			"elapsed_s": elapsed.Seconds(),
			"samples":   sampleCount,
		})
	}
	return Observation{
		Gain:    gain,
		Elapsed: elapsed,
	}, nil
}

// solve pushes the excitation into the design, analyzes, and queries the
// far-field sweep. Clamping operates on a local copy; the caller's vector is
// never touched.
func (a *Adapter) solve(ctx context.Context, e array.Excitation, sampleCount int) (pattern.Observed, error) {
	clamped := e.WithAmplitudeFloor(a.cfg.AmplitudeFloor)
	phases := clamped.Phases()
	amps := clamped.Amplitudes()

	for i := 0; i < a.cfg.Elements; i++ {
		if err := a.session.SetVariable(ctx, array.PhaseVariable(i), array.FormatRadians(phases[i], a.cfg.Precision)); err != nil {
			return nil, err
		}
		if err := a.session.SetVariable(ctx, array.AmplitudeVariable(i), array.FormatVolts(amps[i], a.cfg.Precision)); err != nil {
			return nil, err
		}
	}

	if err := a.session.Analyze(ctx); err != nil {
		return nil, err
	}

	gain, err := a.session.FarField(ctx, solver.FarFieldQuery{
		Expression: a.cfg.Expression,
		ThetaDeg:   a.cfg.Sweep.ThetaDeg,
		Frequency:  a.cfg.Sweep.Frequency,
	})
	if err != nil {
		return nil, err
	}

	// A curve of the wrong length cannot be compared against the target; it
	// means the bridge's sweep disagrees with ours, and the safe move is the
	// degraded path rather than handing back misaligned data.
	if len(gain) != sampleCount {
		return nil, errors.Errorf("far-field returned %d samples, want %d", len(gain), sampleCount).
			WithComponent("oracle").
			WithOperation("farfield")
	}

	return pattern.Observed(gain), nil
}
