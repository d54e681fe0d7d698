// Package objective turns the far-field oracle into a scalar discrepancy
// function the optimizer can minimize.
package objective

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"github.com/beamforge/phasor/internal/array"
	"github.com/beamforge/phasor/internal/errors"
	"github.com/beamforge/phasor/internal/logging"
	"github.com/beamforge/phasor/internal/oracle"
	"github.com/beamforge/phasor/internal/pattern"
)

// Trace is the append-only error history of a run, one entry per completed
// objective evaluation (degraded ones included). Single writer, single reader
// within one run.
type Trace struct {
	values []float64
}

// Append records one error value.
func (t *Trace) Append(v float64) {
	t.values = append(t.values, v)
}

// Len returns the number of recorded evaluations.
func (t *Trace) Len() int {
	return len(t.values)
}

// Values returns a copy of the recorded errors in evaluation order.
func (t *Trace) Values() []float64 {
	return append([]float64(nil), t.values...)
}

// Last returns the most recent error value, if any.
func (t *Trace) Last() (float64, bool) {
	if len(t.values) == 0 {
		return 0, false
	}
	return t.values[len(t.values)-1], true
}

// Objective computes the L2 distance between the oracle's observed pattern
// and a fixed target, for a given excitation.
type Objective struct {
	target    pattern.Target
	evaluator oracle.Evaluator
	trace     *Trace
	logger    *logging.Logger
}

// New builds an objective over a target pattern. The target is normalized
// once here (max absolute value 1); the observed pattern is never normalized,
// so the oracle's gain scale is compared as-is. trace may be nil.
func New(target pattern.Target, evaluator oracle.Evaluator, trace *Trace, logger *logging.Logger) *Objective {
	return &Objective{
		target:    target.Normalize(),
		evaluator: evaluator,
		trace:     trace,
		logger:    logger,
	}
}

// Target returns the normalized target the objective compares against.
func (o *Objective) Target() pattern.Target {
	return append(pattern.Target(nil), o.target...)
}

// Value evaluates one excitation: one oracle solve, one scalar error.
//
// A degraded (zero-pattern) observation simply yields a large error. A length
// disagreement between target and observed is a configuration bug — the
// sampling geometry on the two sides has diverged — and panics with a
// contextual error rather than poisoning the search with a bogus comparison.
func (o *Objective) Value(ctx context.Context, e array.Excitation) float64 {
	obs, err := o.evaluator.Evaluate(ctx, e, len(o.target))
	if err != nil {
		panic(errors.Wrap(err, "objective evaluation").WithComponent("objective"))
	}

	if len(obs.Gain) != len(o.target) {
		panic(errors.Errorf("observed pattern has %d samples, target has %d", len(obs.Gain), len(o.target)).
			WithComponent("objective").
			WithOperation("compare"))
	}

	diff := make([]float64, len(obs.Gain))
	copy(diff, obs.Gain)
	floats.Sub(diff, o.target)
	errval := floats.Norm(diff, 2)

	if o.trace != nil {
		o.trace.Append(errval)
	}

	if o.logger != nil {
		o.logger.Debug("Objective evaluated", map[string]interface{}{
			"error":     errval,
			"degraded":  obs.Degraded,
			"elapsed_s": obs.Elapsed.Seconds(),
		})
	}

	return errval
}
