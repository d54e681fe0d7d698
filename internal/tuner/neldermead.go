// Package tuner drives the derivative-free search over excitation space.
package tuner

import (
	"context"
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/beamforge/phasor/internal/array"
	"github.com/beamforge/phasor/internal/errors"
	"github.com/beamforge/phasor/internal/logging"
	"github.com/beamforge/phasor/internal/objective"
	"github.com/beamforge/phasor/internal/oracle"
	"github.com/beamforge/phasor/internal/pattern"
)

// IterationObserver is called once per outer iteration with the current
// candidate, read-only. It must not block for long: the search waits on it.
type IterationObserver func(iteration int, phases, amplitudes []float64, errval float64)

// Options controls one optimization run.
type Options struct {
	// MaxIterations caps the outer iteration count.
	MaxIterations int
	// Tolerance is the function-convergence tolerance; the run stops once the
	// best objective value improves by less than this.
	Tolerance float64
	// Observer, if set, is invoked after each outer iteration.
	Observer IterationObserver
}

// Result is the outcome of a run. Best is the incumbent: the lowest-error
// excitation actually evaluated, which for a noisy non-convex objective is a
// local optimum at best, never a guarantee.
type Result struct {
	Best        array.Excitation
	BestError   float64
	Iterations  int
	Evaluations int
	Converged   bool
	Trace       *objective.Trace
}

// Driver minimizes the pattern discrepancy with Nelder-Mead simplex search.
// The search is deliberately unbounded: no constraint keeps phase or
// amplitude in a physically meaningful range, the amplitude floor is applied
// downstream in the oracle adapter, and excursions are penalized only through
// the objective value.
type Driver struct {
	evaluator oracle.Evaluator
	logger    *logging.Logger
}

// NewDriver creates a driver over the given oracle.
func NewDriver(evaluator oracle.Evaluator, logger *logging.Logger) *Driver {
	return &Driver{
		evaluator: evaluator,
		logger:    logger,
	}
}

// Optimize searches from the initial excitation until the iteration cap or
// the convergence tolerance is hit, minimizing the L2 distance between the
// oracle's pattern and the target. The returned error is non-nil only for
// configuration bugs (dimension mismatch between target and observed
// patterns); a degraded oracle evaluation is an ordinary, expensive data
// point, not a failure.
//
// No cancellation happens between iterations: ctx flows into each oracle
// evaluation to bound a single solve, and a run ends only through its own
// stopping conditions.
func (d *Driver) Optimize(ctx context.Context, target pattern.Target, initial array.Excitation, opts Options) (*Result, error) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-2
	}

	trace := &objective.Trace{}
	obj := objective.New(target, d.evaluator, trace, d.logger)

	// Incumbent bookkeeping is ours, not the method's: whatever status the
	// minimizer ends with, the best evaluated point is what gets returned.
	var (
		best        = initial.Clone()
		bestErr     = 0.0
		haveBest    = false
		evaluations = 0
		fatal       *errors.Error
	)

	// The fatal path out of the objective is a panic carrying a contextual
	// error. Minimize evaluates Func on a goroutine of its own, so the panic
	// must be converted here, inside the closure; a recover at the Optimize
	// level would never see it. The first fatal error is kept, +Inf lets the
	// minimizer wind down on its own.
	problem := optimize.Problem{
		Func: func(x []float64) (val float64) {
			defer func() {
				if r := recover(); r != nil {
					e, ok := r.(*errors.Error)
					if !ok {
						panic(r)
					}
					if fatal == nil {
						fatal = e
					}
					val = math.Inf(1)
				}
			}()

			candidate := array.Excitation(x).Clone()
			val = obj.Value(ctx, candidate)
			evaluations++
			if !haveBest || val < bestErr {
				best = candidate
				bestErr = val
				haveBest = true
			}
			return val
		},
	}

	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   opts.Tolerance,
			Iterations: 20,
		},
	}
	if opts.Observer != nil {
		settings.Recorder = &observerRecorder{observer: opts.Observer}
	}

	method := &optimize.NelderMead{
		Reflection:  1.0, // Standard reflection coefficient
		Expansion:   2.0, // Standard expansion coefficient
		Contraction: 0.5, // Standard contraction coefficient
		Shrink:      0.5, // Standard shrink coefficient
		SimplexSize: 0.2, // Size of auto-constructed initial simplex
	}

	res, optErr := optimize.Minimize(problem, initial.Clone(), settings, method)
	if fatal != nil {
		return nil, fatal
	}

	iterations := opts.MaxIterations
	converged := false
	if res != nil {
		iterations = res.Stats.MajorIterations
		converged = res.Status == optimize.FunctionConvergence
	}
	if optErr != nil && d.logger != nil {
		// Not fatal: the incumbent still stands. Iteration caps and odd
		// method statuses both land here depending on the minimizer.
		d.logger.Warn("Minimizer stopped without convergence", map[string]interface{}{
			"error":      optErr.Error(),
			"iterations": iterations,
		})
	}

	if d.logger != nil {
		d.logger.Info("Search finished", map[string]interface{}{
			"iterations":  iterations,
			"evaluations": evaluations,
			"converged":   converged,
			"best_error":  bestErr,
		})
	}

	return &Result{
		Best:        best,
		BestError:   bestErr,
		Iterations:  iterations,
		Evaluations: evaluations,
		Converged:   converged,
		Trace:       trace,
	}, nil
}

// observerRecorder forwards major-iteration snapshots to the observer. It
// only reads the location; search state is never touched.
type observerRecorder struct {
	observer IterationObserver
}

func (r *observerRecorder) Init() error {
	return nil
}

func (r *observerRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if op != optimize.MajorIteration || loc == nil {
		return nil
	}
	candidate := array.Excitation(loc.X).Clone()
	r.observer(stats.MajorIterations, candidate.Phases(), candidate.Amplitudes(), loc.F)
	return nil
}
