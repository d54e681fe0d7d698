// Package solver defines the narrow session boundary to the external
// full-wave EM solver and a JSON-RPC client implementation of it.
//
// The solver is a stateful desktop engine with one active design context;
// everything session-specific lives behind the Session interface so the
// optimization loop only ever sees a black-box evaluation capability.
package solver

import "context"

// FarFieldQuery describes one far-field extraction: a named gain expression
// sampled with azimuth swept across the project's configured range at a fixed
// elevation angle and frequency.
type FarFieldQuery struct {
	// Expression is the report quantity, e.g. "GainTotal".
	Expression string
	// ThetaDeg is the fixed elevation angle in degrees.
	ThetaDeg float64
	// Frequency is the solve frequency, e.g. "2.4GHz". Empty means the
	// setup's nominal frequency.
	Frequency string
}

// Session is one live design context in the solver. Implementations own all
// solver-specific state; callers treat the session as a pure (if slow and
// non-deterministic) function from variable assignments to gain curves.
//
// All methods block until the solver answers. FarField must return a non-nil
// error whenever the query did not produce legitimate gain data, so callers
// can apply their degraded-result fallback.
type Session interface {
	// SetVariable assigns a design variable, value already encoded with its
	// physical unit suffix (e.g. "0.509rad", "0.138V").
	SetVariable(ctx context.Context, name, value string) error

	// Analyze runs a full solve of the current design point.
	Analyze(ctx context.Context) error

	// FarField returns linear-magnitude gain samples ordered by increasing
	// azimuth, one per sweep sample.
	FarField(ctx context.Context, q FarFieldQuery) ([]float64, error)
}
