package rc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDeadband(t *testing.T) {
	assert.Equal(t, 0.0, ApplyDeadband(10, 20))
	assert.Equal(t, 0.0, ApplyDeadband(-10, 20))
	assert.Equal(t, 5.0, ApplyDeadband(25, 20))
	assert.Equal(t, -5.0, ApplyDeadband(-25, 20))
}

func TestAngleConversionRoundTrip(t *testing.T) {
	for _, stick := range []float64{-500, -123, 0, 77, 500} {
		angle := CommandToAngle(stick)
		assert.InDelta(t, stick, AngleToCommand(angle), 1e-9)
	}
	// Integer decidegree targets survive the reverse trip too.
	for _, angle := range []float64{-300, -55, 0, 155, 300} {
		assert.InDelta(t, angle, CommandToAngle(AngleToCommand(angle)), 1e-9)
	}
}

func TestRateConversionRoundTrip(t *testing.T) {
	for _, rate := range []uint8{1, 40, 70, 255} {
		for _, stick := range []float64{-500, -10, 0, 10, 500} {
			dps := CommandToRate(stick, rate)
			assert.InDelta(t, stick, RateToCommand(dps, rate), 1e-9, "rate=%d stick=%v", rate, stick)
		}
	}
}

func TestCommandToRateScaling(t *testing.T) {
	// Full deflection at rate 80 commands 1000 dps.
	assert.InDelta(t, 1000.0, CommandToRate(500, 80), 1e-9)
}

func TestThrottleStickPosition(t *testing.T) {
	assert.Equal(t, 200.0, ThrottleStickPosition(1700, 1500, 1000, 2000))
	// Saturates to the channel travel first.
	assert.Equal(t, 500.0, ThrottleStickPosition(2300, 1500, 1000, 2000))
}
