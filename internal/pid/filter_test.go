package pid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPT1ConvergesToInput(t *testing.T) {
	f := NewPT1(5)
	var out float64
	for i := 0; i < 1000; i++ {
		out = f.Apply(10, 0.001)
	}
	assert.InDelta(t, 10.0, out, 0.01)
}

func TestPT1ZeroCutoffPassesThrough(t *testing.T) {
	f := NewPT1(0)
	assert.Equal(t, 42.0, f.Apply(42, 0.001))
}

func TestPT1SetStateBumpless(t *testing.T) {
	f := NewPT1(5)
	f.SetState(7)
	// With input equal to state the output must not move.
	assert.Equal(t, 7.0, f.Apply(7, 0.001))
}

func TestFIR5DerivativeOfRamp(t *testing.T) {
	var f FIR5
	// Feed a unit-slope-per-sample ramp.
	for i := 0; i < 10; i++ {
		f.Update(float64(i))
	}
	// The kernel over a linear ramp evaluates to 8 per unit slope, so
	// sum/8 recovers the per-sample slope.
	assert.InDelta(t, 8.0, f.Apply(), 1e-9)
}

func TestFIR5ConstantInputIsZero(t *testing.T) {
	var f FIR5
	for i := 0; i < 10; i++ {
		f.Update(3.5)
	}
	assert.InDelta(t, 0.0, f.Apply(), 1e-9)
}

func TestFIR5ResetSuppressesSpike(t *testing.T) {
	var f FIR5
	f.Reset(100)
	assert.InDelta(t, 0.0, f.Apply(), 1e-9)
}
