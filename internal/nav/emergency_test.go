package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgard/freya/internal/axis"
	"github.com/asgard/freya/internal/modes"
	"github.com/asgard/freya/internal/rc"
)

func TestEmergencyDescentCentersSticksAndDescends(t *testing.T) {
	c, est, cmds, _ := newTestNav(nil)
	cmds.Command[rc.CmdRoll] = 200
	cmds.Command[rc.CmdPitch] = -150
	cmds.Command[rc.CmdYaw] = 80
	est.Pos[axis.Z] = 1000

	est.VerticalPositionDataNew = true
	c.ApplyControllers(modes.NavCtlEmerg, 10000)

	assert.Zero(t, cmds.Command[rc.CmdRoll])
	assert.Zero(t, cmds.Command[rc.CmdPitch])
	assert.Zero(t, cmds.Command[rc.CmdYaw])

	// Descent rate 500 cm/s through the position stage at kP 1.
	assert.InDelta(t, 500.0, est.Pos[axis.Z]-c.DesiredPosition(axis.Z), 1e-6)
}

func TestEmergencyDescentDrivesThrottleDown(t *testing.T) {
	c, est, cmds, _ := newTestNav(nil)
	est.Pos[axis.Z] = 1000

	nowUs := int64(10000)
	for i := 0; i < 30; i++ {
		est.VerticalPositionDataNew = true
		c.ApplyControllers(modes.NavCtlEmerg, nowUs)
		nowUs += 10000
	}

	require.Less(t, cmds.Command[rc.CmdThrottle], 1500.0)
	require.GreaterOrEqual(t, cmds.Command[rc.CmdThrottle], 1150.0)
}

func TestEmergencyWithoutAltitudeSensorUsesFailsafeThrottle(t *testing.T) {
	c, est, cmds, navigator := newTestNav(nil)
	est.HasValidAltitudeSensor = false
	navigator.failsafeThrottle = 1300

	c.ApplyControllers(modes.NavCtlEmerg, 10000)

	assert.Equal(t, 1300.0, cmds.Command[rc.CmdThrottle])
}

func TestEmergencyWithoutFailsafeFallsToMinThrottle(t *testing.T) {
	c, est, cmds, _ := newTestNav(nil)
	est.HasValidAltitudeSensor = false

	c.ApplyControllers(modes.NavCtlEmerg, 10000)

	assert.Equal(t, 1150.0, cmds.Command[rc.CmdThrottle])
}

func TestEmergencyDisablesSurfaceTracking(t *testing.T) {
	c, est, _, _ := newTestNav(nil)
	est.HasValidSurfaceSensor = true
	est.Surface = 100
	c.SetDesiredSurface(150)

	est.VerticalPositionDataNew = true
	c.ApplyControllers(modes.NavCtlEmerg, 10000)

	assert.Less(t, c.desiredSurface, 0.0)
}
