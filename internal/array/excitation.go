// Package array models the excitation of a fixed-geometry antenna array:
// one phase and one amplitude per radiating element.
package array

import (
	"fmt"
	"strconv"
)

// Excitation is one candidate drive for the array, flattened for the search
// space: N phases (radians, unbounded) followed by N amplitudes (volts).
// Length is always exactly 2N.
type Excitation []float64

// New builds an Excitation from separate phase and amplitude slices.
// Both slices must have the same, non-zero length.
func New(phases, amplitudes []float64) (Excitation, error) {
	if len(phases) == 0 || len(phases) != len(amplitudes) {
		return nil, fmt.Errorf("array: phase count %d and amplitude count %d must match and be non-zero",
			len(phases), len(amplitudes))
	}

	e := make(Excitation, 0, len(phases)+len(amplitudes))
	e = append(e, phases...)
	e = append(e, amplitudes...)
	return e, nil
}

// Validate checks that the excitation drives an array of n elements.
func (e Excitation) Validate(n int) error {
	if len(e) != 2*n {
		return fmt.Errorf("array: excitation length %d, want %d for %d elements", len(e), 2*n, n)
	}
	return nil
}

// Elements returns the number of array elements the excitation drives.
func (e Excitation) Elements() int {
	return len(e) / 2
}

// Phases returns a copy of the per-element phase values in radians.
func (e Excitation) Phases() []float64 {
	n := e.Elements()
	return append([]float64(nil), e[:n]...)
}

// Amplitudes returns a copy of the per-element amplitude values in volts.
func (e Excitation) Amplitudes() []float64 {
	n := e.Elements()
	return append([]float64(nil), e[n:]...)
}

// Clone returns an independent copy of the excitation.
func (e Excitation) Clone() Excitation {
	return append(Excitation(nil), e...)
}

// WithAmplitudeFloor returns a copy in which every amplitude whose magnitude
// is below floor is replaced by floor. A near-zero excitation breaks the
// solver's pattern normalization, so the floor is applied before any value
// reaches it. The receiver is never modified.
func (e Excitation) WithAmplitudeFloor(floor float64) Excitation {
	out := e.Clone()
	n := out.Elements()
	for i := n; i < len(out); i++ {
		if abs(out[i]) < floor {
			out[i] = floor
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// PhaseVariable returns the solver variable name for element i's phase.
func PhaseVariable(i int) string {
	return "Phase" + strconv.Itoa(i)
}

// AmplitudeVariable returns the solver variable name for element i's amplitude.
func AmplitudeVariable(i int) string {
	return "Amp" + strconv.Itoa(i)
}

// FormatRadians encodes a phase value for the solver with a fixed number of
// decimal digits. The encoding is deterministic: identical inputs always
// produce identical strings, so repeated evaluations configure the solver
// identically.
func FormatRadians(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64) + "rad"
}

// FormatVolts encodes an amplitude value for the solver, same rules as
// FormatRadians.
func FormatVolts(v float64, precision int) string {
	return strconv.FormatFloat(v, 'f', precision, 64) + "V"
}

// DefaultInitialGuess returns the known-good five-element excitation used to
// seed the search. Every objective evaluation costs a full solve, so starting
// from a previously converged drive spends the evaluation budget refining
// rather than escaping a poor region.
func DefaultInitialGuess() Excitation {
	phases := []float64{0.50859738, 0.33066983, 0.17692615, 0.48328732, -0.22207866}
	amplitudes := []float64{0.13804396, -0.24838753, 0.29000823, -0.25574068, 0.14721397}

	e, _ := New(phases, amplitudes)
	return e
}
