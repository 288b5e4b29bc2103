package nav

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgard/freya/internal/axis"
	"github.com/asgard/freya/internal/config"
	"github.com/asgard/freya/internal/estimator"
	"github.com/asgard/freya/internal/modes"
	"github.com/asgard/freya/internal/rc"
)

// tickPos feeds one fresh horizontal sample at nowUs through the
// position controller.
func tickPos(c *Controller, est *estimator.State, flags modes.NavFlags, nowUs int64) {
	est.HorizontalPositionDataNew = true
	c.ApplyControllers(flags, nowUs)
}

func newPosTestNav(mutate func(*config.Config)) (*Controller, *estimator.State, *rc.Commands, *fakeNavigator) {
	c, est, cmds, nav := newTestNav(mutate)
	est.HasValidPositionSensor = true
	return c, est, cmds, nav
}

func TestStoppingPointIdempotentAtZeroVelocity(t *testing.T) {
	c, est, _, _ := newPosTestNav(nil)
	est.Pos[axis.X] = 1234.5
	est.Pos[axis.Y] = -678.9

	x, y := c.CalculateInitialHoldPosition()

	assert.Equal(t, est.Pos[axis.X], x)
	assert.Equal(t, est.Pos[axis.Y], y)
}

func TestStoppingPointPredictsFromInertia(t *testing.T) {
	c, est, _, _ := newPosTestNav(nil)
	est.Vel[axis.X] = 200 // cm/s, deceleration time 1.2 s

	x, y := c.CalculateInitialHoldPosition()

	assert.InDelta(t, 240.0, x, 1e-9)
	assert.Equal(t, 0.0, y)
}

func TestWindDisturbanceTiltsAgainstDrift(t *testing.T) {
	c, est, cmds, _ := newPosTestNav(nil)
	c.ResetPositionHold() // hold right here

	// Constant drift along +X that the hold must null.
	est.Vel[axis.X] = 50
	est.VelXY = 50

	nowUs := int64(100000)
	tickPos(c, est, modes.NavCtlPos, nowUs)
	for i := 0; i < 20; i++ {
		nowUs += 100000 // 10 Hz position data
		tickPos(c, est, modes.NavCtlPos, nowUs)
	}

	// Pitch tilts backward (negative) to decelerate the +X drift.
	assert.Less(t, c.RCAdjustment(1), 0.0)
	assert.Less(t, cmds.Command[rc.CmdPitch], 0.0)
	// Roll has no reason to move.
	assert.InDelta(t, 0.0, c.RCAdjustment(0), 1.0)
}

func TestTiltAlwaysWithinBankLimit(t *testing.T) {
	c, est, _, _ := newPosTestNav(nil)
	c.SetDesiredPosition(axis.X, 1e6)
	c.SetDesiredPosition(axis.Y, -1e6)

	maxBank := 300.0 // 30 deg in decidegrees
	nowUs := int64(100000)
	tickPos(c, est, modes.NavCtlPos, nowUs)
	for i := 0; i < 100; i++ {
		nowUs += 100000
		tickPos(c, est, modes.NavCtlPos, nowUs)
		require.LessOrEqual(t, math.Abs(c.RCAdjustment(0)), maxBank)
		require.LessOrEqual(t, math.Abs(c.RCAdjustment(1)), maxBank)
	}
}

func TestFirstCorrectionIsJerkLimited(t *testing.T) {
	c, est, _, _ := newPosTestNav(nil)
	c.SetDesiredPosition(axis.X, 1e6) // massive error

	nowUs := int64(100000)
	tickPos(c, est, modes.NavCtlPos, nowUs) // reset
	nowUs += 100000
	tickPos(c, est, modes.NavCtlPos, nowUs) // first real correction

	// Acceleration may only move 1700 cm/s^3 * 0.1 s = 170 cm/s^2 from
	// rest, which bounds the commanded tilt well under the bank limit.
	maxTilt := axis.RadToDeg(math.Atan2(170, GravityCmss)) * 10
	assert.LessOrEqual(t, math.Abs(c.RCAdjustment(1)), maxTilt+1)
}

func TestPositionSensorLossBypassesController(t *testing.T) {
	c, est, cmds, _ := newPosTestNav(nil)
	c.ResetPositionHold()
	est.HasValidPositionSensor = false

	cmds.Command[rc.CmdRoll] = 120 // pilot stick
	tickPos(c, est, modes.NavCtlPos, 100000)

	assert.True(t, c.PositionBypassed())
	assert.Zero(t, c.RCAdjustment(0))
	assert.Zero(t, c.RCAdjustment(1))
	// The pilot's stick is left for the angle loop.
	assert.Equal(t, 120.0, cmds.Command[rc.CmdRoll])
}

func TestAttiModeStickAdjustBypasses(t *testing.T) {
	c, est, cmds, _ := newPosTestNav(nil)
	c.ResetPositionHold()

	cmds.Command[rc.CmdPitch] = 200 // beyond the 20 deadband
	tickPos(c, est, modes.NavCtlPos, 100000)
	assert.True(t, c.PositionBypassed())

	// Release: hold resumes at the predicted stopping point.
	est.Vel[axis.X] = 100
	cmds.Command[rc.CmdPitch] = 0
	tickPos(c, est, modes.NavCtlPos, 200000)
	assert.False(t, c.PositionBypassed())
	assert.InDelta(t, est.Pos[axis.X]+100*1.2, c.DesiredPosition(axis.X), 1e-9)
}

func TestCruiseModeStickCommandsVelocity(t *testing.T) {
	c, est, cmds, _ := newPosTestNav(func(cfg *config.Config) {
		cfg.Nav.UserControlMode = config.UserControlCruise
	})
	c.ResetPositionHold()

	cmds.Command[rc.CmdPitch] = 300 // forward
	tickPos(c, est, modes.NavCtlPos, 100000)

	// stick 300 - 20 deadband = 280 over span 480 commands
	// 280/480 * 500 cm/s forward; the target leads by v / kP.
	wantVel := 280.0 / 480.0 * 500.0
	assert.InDelta(t, wantVel/0.65, c.DesiredPosition(axis.X), 1e-6)
	assert.InDelta(t, 0.0, c.DesiredPosition(axis.Y), 1e-6)
}

func TestWaypointHeadingAttenuationSlowsCrossTrack(t *testing.T) {
	c, est, _, _ := newPosTestNav(nil)
	c.SetDesiredPosition(axis.X, 10000)

	// Nose 90 degrees off the leg bearing: velocity collapses to the
	// attenuation floor.
	c.SetDesiredYaw(9000)
	est.SetYaw(0)

	nowUs := int64(100000)
	tickPos(c, est, modes.NavCtlPos|modes.NavAutoWP, nowUs)
	nowUs += 100000
	tickPos(c, est, modes.NavCtlPos|modes.NavAutoWP, nowUs)
	attenuated := c.DesiredVelocity(axis.X)

	// Aligned heading restores full speed.
	c.SetDesiredYaw(0)
	nowUs += 100000
	tickPos(c, est, modes.NavCtlPos|modes.NavAutoWP, nowUs)
	aligned := c.DesiredVelocity(axis.X)

	require.Greater(t, aligned, 0.0)
	assert.Less(t, attenuated, aligned*0.1)
}
