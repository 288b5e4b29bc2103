package attitude

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgard/freya/internal/axis"
	"github.com/asgard/freya/internal/config"
	"github.com/asgard/freya/internal/estimator"
	"github.com/asgard/freya/internal/modes"
)

func newTestMagHold() (*MagHold, *estimator.State) {
	m := NewMagHold(config.NewDefault())
	m.SetMagAvailable(true)
	return m, estimator.NewState()
}

func TestMagHoldDisabledWithoutSensor(t *testing.T) {
	m, _ := newTestMagHold()
	m.SetMagAvailable(false)
	state := m.State(modes.SmallAngle|modes.MagHold, modes.HeadingControlNone, 0)
	assert.Equal(t, MagHoldDisabled, state)
}

func TestMagHoldDisabledAtLargeTilt(t *testing.T) {
	m, _ := newTestMagHold()
	state := m.State(modes.MagHold, modes.HeadingControlNone, 0)
	assert.Equal(t, MagHoldDisabled, state)
}

func TestMagHoldEnabledByNavigationAuto(t *testing.T) {
	m, _ := newTestMagHold()
	state := m.State(modes.SmallAngle, modes.HeadingControlAuto, 0)
	assert.Equal(t, MagHoldEnabled, state)
}

func TestMagHoldDisabledByOtherHeadingControl(t *testing.T) {
	m, _ := newTestMagHold()
	state := m.State(modes.SmallAngle|modes.MagHold, modes.HeadingControlManual, 0)
	assert.Equal(t, MagHoldDisabled, state)
}

func TestMagHoldUpdatesHeadingOnYawStick(t *testing.T) {
	m, est := newTestMagHold()
	est.Attitude[axis.Yaw] = 900 // 90 deg

	state := m.Update(modes.SmallAngle|modes.MagHold, modes.HeadingControlNone, est, 200, 0.01)

	require.Equal(t, MagHoldUpdateHeading, state)
	assert.InDelta(t, 90.0, m.TargetHeading(), 1e-9)
}

func TestMagHoldWrapAroundError(t *testing.T) {
	// Heading 1 deg, target 359 deg: the wrapped error is +2 deg, so
	// the commanded yaw rate must be small and positive, not a large
	// negative sweep.
	m, est := newTestMagHold()
	est.Attitude[axis.Yaw] = 10 // 1 deg
	m.SetTargetHeading(359)

	state := m.Update(modes.SmallAngle|modes.MagHold, modes.HeadingControlNone, est, 0, 0.01)

	require.Equal(t, MagHoldEnabled, state)
	assert.Greater(t, m.RateTarget(), 0.0)
	// P gain 60/30 = 2 on a 2 deg error bounds the rate at 4 dps even
	// before filtering.
	assert.LessOrEqual(t, m.RateTarget(), 4.0)
}

func TestMagHoldErrorWrapsForAnyTurnCount(t *testing.T) {
	for n := -2; n <= 2; n++ {
		raw := float64(n)*360 + 5
		assert.InDelta(t, 5.0, axis.WrapDeg180(raw), 1e-9)
	}
}

func TestMagHoldRateLimited(t *testing.T) {
	m, est := newTestMagHold()
	est.Attitude[axis.Yaw] = 1700 // 170 deg
	m.SetTargetHeading(0)

	// Converge the 2 Hz filter onto the steady command.
	var state MagHoldState
	for i := 0; i < 2000; i++ {
		state = m.Update(modes.SmallAngle|modes.MagHold, modes.HeadingControlNone, est, 0, 0.01)
	}

	require.Equal(t, MagHoldEnabled, state)
	// 170 * 2 = 340 dps raw, clamped to the configured 40 dps limit.
	assert.InDelta(t, 40.0, m.RateTarget(), 0.5)
}
