package nav

import (
	"github.com/asgard/freya/internal/axis"
)

const (
	// LandDetectorTriggerTimeMs is how long the touchdown conditions
	// must hold continuously before landing latches.
	LandDetectorTriggerTimeMs = 2000

	// landMaxVerticalSpeed is the vertical speed considered "not
	// moving", cm/s.
	landMaxVerticalSpeed = 25

	// landMaxHorizontalSpeed is the horizontal speed considered "not
	// moving", cm/s.
	landMaxHorizontalSpeed = 100

	// landSurfaceMargin is how close to the lowest observed surface
	// reading the craft must sit when the range sensor is usable, cm.
	landSurfaceMargin = 5
)

// UpdateLandingDetector polls the touchdown conditions and latches
// once they hold for the trigger time. The descent commitment is
// sticky: the craft must first have actually descended before a quiet
// hover can count as a landing.
func (c *Controller) UpdateLandingDetector(nowUs int64) bool {
	if c.landDetected {
		return true
	}

	if c.est.Vel[axis.Z] < -landMaxVerticalSpeed {
		c.hasHadSomeVelocity = true
	}
	hadVelocity := c.hasHadSomeVelocity

	possiblyLanded := hadVelocity &&
		absf(c.est.Vel[axis.Z]) <= landMaxVerticalSpeed &&
		c.est.VelXY <= landMaxHorizontalSpeed &&
		c.cmds.AdjustedThrottle < c.cfg.Nav.McMinFlyThrottle

	if possiblyLanded && c.est.HasValidSurfaceSensor && c.est.Surface >= 0 {
		possiblyLanded = c.est.Surface <= c.est.SurfaceMin+landSurfaceMargin
	}

	if !possiblyLanded {
		c.landTimerValid = false
		return false
	}

	if !c.landTimerValid {
		c.landTimerStartUs = nowUs
		c.landTimerValid = true
		return false
	}

	if nowUs-c.landTimerStartUs >= LandDetectorTriggerTimeMs*1000 {
		c.landDetected = true
		c.met.LandDetected.Set(1)
		c.log.Info("touchdown detected")
	}
	return c.landDetected
}

// ResetLandingDetector clears the latch and the descent commitment,
// called when the craft is disarmed or takes off again.
func (c *Controller) ResetLandingDetector() {
	c.landDetected = false
	c.landTimerValid = false
	c.hasHadSomeVelocity = false
	c.met.LandDetected.Set(0)
}

// LandingDetected reports the current latch state.
func (c *Controller) LandingDetected() bool {
	return c.landDetected
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
