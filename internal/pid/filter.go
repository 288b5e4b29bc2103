package pid

import "math"

// PT1 is a first-order low-pass filter. State is a single float so the
// controllers can hold dozens of these without allocation.
type PT1 struct {
	state float64
	rc    float64
}

// NewPT1 builds a filter with the given cutoff frequency in Hz.
// A zero or negative cutoff produces a pass-through filter.
func NewPT1(cutoffHz float64) PT1 {
	f := PT1{}
	f.SetCutoff(cutoffHz)
	return f
}

// SetCutoff retunes the filter without disturbing its state.
func (f *PT1) SetCutoff(cutoffHz float64) {
	if cutoffHz > 0 {
		f.rc = 1.0 / (2.0 * math.Pi * cutoffHz)
	} else {
		f.rc = 0
	}
}

// Apply advances the filter by dT seconds and returns the new state.
func (f *PT1) Apply(input, dT float64) float64 {
	if f.rc <= 0 {
		f.state = input
		return f.state
	}
	f.state += dT / (f.rc + dT) * (input - f.state)
	return f.state
}

// Reset clears the filter state.
func (f *PT1) Reset() {
	f.state = 0
}

// SetState seeds the filter, used for bumpless transfer on controller
// resets.
func (f *PT1) SetState(v float64) {
	f.state = v
}

// State returns the current filter output without advancing it.
func (f *PT1) State() float64 {
	return f.state
}

// firTaps is the history depth of the rate differentiator.
const firTaps = 5

// firCoeffs is the 5-point Holoborodko smooth noise-robust
// differentiator kernel, newest sample first. The caller divides by
// 8*dT to obtain the derivative.
var firCoeffs = [firTaps]float64{5, 2, -8, -2, 3}

// FIR5 keeps the last five samples of a signal and evaluates the
// differentiator kernel over them.
type FIR5 struct {
	buf [firTaps]float64
}

// Update shifts in a new sample, newest first.
func (f *FIR5) Update(sample float64) {
	copy(f.buf[1:], f.buf[:firTaps-1])
	f.buf[0] = sample
}

// Apply evaluates the kernel over the stored history.
func (f *FIR5) Apply() float64 {
	var sum float64
	for i := 0; i < firTaps; i++ {
		sum += firCoeffs[i] * f.buf[i]
	}
	return sum
}

// Reset fills the history with a constant so the next derivative is
// zero instead of a spike.
func (f *FIR5) Reset(v float64) {
	for i := range f.buf {
		f.buf[i] = v
	}
}
