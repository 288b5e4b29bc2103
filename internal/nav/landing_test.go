package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asgard/freya/internal/axis"
)

func TestLandingDetectorSequence(t *testing.T) {
	c, est, cmds, _ := newTestNav(nil)

	// Committed descent.
	est.Vel[axis.Z] = -30
	nowUs := int64(0)
	for i := 0; i < 10; i++ {
		nowUs += 10000
		require.False(t, c.UpdateLandingDetector(nowUs))
	}

	// Touchdown conditions.
	est.Vel[axis.Z] = 0
	est.VelXY = 0
	cmds.AdjustedThrottle = 1100 // below mc_min_fly_throttle 1200

	start := nowUs
	for nowUs-start < LandDetectorTriggerTimeMs*1000 {
		nowUs += 10000
		require.False(t, c.LandingDetected())
		c.UpdateLandingDetector(nowUs)
	}

	nowUs += 10000
	assert.True(t, c.UpdateLandingDetector(nowUs))
	assert.True(t, c.LandingDetected())
}

func TestLandingRequiresPriorDescent(t *testing.T) {
	c, est, cmds, _ := newTestNav(nil)

	// Quiet hover without ever descending must never latch.
	est.Vel[axis.Z] = 0
	est.VelXY = 0
	cmds.AdjustedThrottle = 1100

	nowUs := int64(0)
	for i := 0; i < 500; i++ {
		nowUs += 10000
		assert.False(t, c.UpdateLandingDetector(nowUs))
	}
}

func TestLandingTimerResetsOnMotion(t *testing.T) {
	c, est, cmds, _ := newTestNav(nil)

	est.Vel[axis.Z] = -30
	c.UpdateLandingDetector(10000)

	est.Vel[axis.Z] = 0
	est.VelXY = 0
	cmds.AdjustedThrottle = 1100

	// Halfway through the trigger window the craft drifts.
	nowUs := int64(20000)
	for i := 0; i < 100; i++ {
		nowUs += 10000
		c.UpdateLandingDetector(nowUs)
	}
	est.VelXY = 200
	nowUs += 10000
	require.False(t, c.UpdateLandingDetector(nowUs))
	est.VelXY = 0

	// The full window must elapse again from here.
	start := nowUs
	for nowUs-start < LandDetectorTriggerTimeMs*1000 {
		nowUs += 10000
		require.False(t, c.LandingDetected())
		c.UpdateLandingDetector(nowUs)
	}
	nowUs += 10000
	assert.True(t, c.UpdateLandingDetector(nowUs))
}

func TestLandingChecksSurfaceWhenValid(t *testing.T) {
	c, est, cmds, _ := newTestNav(nil)

	est.Vel[axis.Z] = -30
	c.UpdateLandingDetector(10000)

	est.Vel[axis.Z] = 0
	est.VelXY = 0
	cmds.AdjustedThrottle = 1100
	est.HasValidSurfaceSensor = true
	est.SurfaceMin = 4
	est.Surface = 50 // still 50 cm up

	nowUs := int64(20000)
	for i := 0; i < 500; i++ {
		nowUs += 10000
		assert.False(t, c.UpdateLandingDetector(nowUs))
	}

	// On the deck the latch can arm.
	est.Surface = 6
	start := nowUs
	for nowUs-start <= LandDetectorTriggerTimeMs*1000 {
		nowUs += 10000
		c.UpdateLandingDetector(nowUs)
	}
	assert.True(t, c.LandingDetected())
}

func TestResetLandingDetectorClearsLatch(t *testing.T) {
	c, est, cmds, _ := newTestNav(nil)

	est.Vel[axis.Z] = -30
	c.UpdateLandingDetector(10000)
	est.Vel[axis.Z] = 0
	est.VelXY = 0
	cmds.AdjustedThrottle = 1100

	nowUs := int64(20000)
	for i := 0; i < 300; i++ {
		nowUs += 10000
		c.UpdateLandingDetector(nowUs)
	}
	require.True(t, c.LandingDetected())

	c.ResetLandingDetector()
	assert.False(t, c.LandingDetected())
}
