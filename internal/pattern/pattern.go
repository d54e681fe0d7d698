// Package pattern holds far-field gain patterns and the angular sweep they
// are sampled on.
package pattern

import "math"

// Target is the desired far-field gain shape, sampled over the azimuth sweep.
// Values are linear magnitude, not dB.
type Target []float64

// Normalize returns a copy scaled so its maximum absolute value is exactly 1.
// Normalizing an already-normalized target is a no-op. An all-zero target is
// returned unchanged rather than dividing by zero.
func (t Target) Normalize() Target {
	out := make(Target, len(t))

	max := 0.0
	for _, v := range t {
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	if max == 0 {
		copy(out, t)
		return out
	}

	for i, v := range t {
		out[i] = math.Abs(v) / max
	}
	return out
}

// Observed is the gain curve returned by one oracle evaluation, aligned
// sample-for-sample with the Target it is compared against.
type Observed []float64

// Zero returns the degraded-result convention: an all-zero observed pattern
// of the given length, substituted when a solve or far-field extraction
// fails so the search continues with a large error instead of aborting.
func Zero(n int) Observed {
	return make(Observed, n)
}

// Sweep describes the far-field sampling geometry: azimuth swept at a fixed
// elevation and frequency. It must match the solver project's infinite-sphere
// setup; the sample count derived here is the alignment contract between
// target and observed patterns.
type Sweep struct {
	PhiStartDeg float64
	PhiStopDeg  float64
	PhiStepDeg  float64
	ThetaDeg    float64
	Frequency   string
}

// DefaultSweep returns the sweep the array project is set up with:
// Phi from -90 to 90 in 5 degree steps at Theta 90.
func DefaultSweep() Sweep {
	return Sweep{
		PhiStartDeg: -90,
		PhiStopDeg:  90,
		PhiStepDeg:  5,
		ThetaDeg:    90,
		Frequency:   "2.4GHz",
	}
}

// Samples returns the number of azimuth samples the sweep produces.
func (s Sweep) Samples() int {
	if s.PhiStepDeg <= 0 || s.PhiStopDeg < s.PhiStartDeg {
		return 0
	}
	return int(math.Round((s.PhiStopDeg-s.PhiStartDeg)/s.PhiStepDeg)) + 1
}

// Angles returns the azimuth sample angles in degrees, increasing.
func (s Sweep) Angles() []float64 {
	n := s.Samples()
	angles := make([]float64, n)
	for i := range angles {
		angles[i] = s.PhiStartDeg + float64(i)*s.PhiStepDeg
	}
	return angles
}

// Rectangular builds a target with constant gain inside [loDeg, hiDeg] and
// zero outside, sampled on the sweep.
func Rectangular(s Sweep, gain, loDeg, hiDeg float64) Target {
	angles := s.Angles()
	t := make(Target, len(angles))
	for i, phi := range angles {
		if phi >= loDeg && phi <= hiDeg {
			t[i] = gain
		}
	}
	return t
}
