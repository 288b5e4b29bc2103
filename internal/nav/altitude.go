package nav

import (
	"math"

	"github.com/asgard/freya/internal/axis"
	"github.com/asgard/freya/internal/rc"
)

// ClimbRateMode selects what a climb-rate target does to the surface
// tracking setpoint.
type ClimbRateMode int

const (
	// ClimbRateKeepSurfaceTarget leaves the surface setpoint alone, for
	// temporary climb-rate overrides like the slow descent while the
	// range sensor is lost.
	ClimbRateKeepSurfaceTarget ClimbRateMode = iota
	// ClimbRateResetSurfaceTarget re-references the surface setpoint to
	// the current reading.
	ClimbRateResetSurfaceTarget
)

// surfaceErrorMin/Max bound the surface tracking correction, cm. The
// asymmetry prefers overshooting upward over descending into terrain.
const (
	surfaceErrorMin = -5
	surfaceErrorMax = 35
)

// surfaceLostDescentRate is the synthesized climb rate while the range
// sensor is invalid in terrain-follow, cm/s.
const surfaceLostDescentRate = -20

// updateAltitudeController runs the vertical cascade. It is invoked
// every tick; the cascade math only runs on fresh vertical data, and a
// stale gap resets the controller instead of integrating across it.
func (c *Controller) updateAltitudeController(nowUs int64) {
	if c.est.VerticalPositionDataNew {
		deltaMicros := nowUs - c.lastAltUpdateUs
		if c.lastAltUpdateUs == 0 || deltaMicros > maxUpdateIntervalUs {
			c.resetAltitudeController()
			c.met.StaleResets.WithLabelValues("altitude").Inc()
			c.met.DegradedEvents.WithLabelValues("stale_tick_reset").Inc()
		} else {
			dT := axis.US2S(deltaMicros)
			c.updateSurfaceTrackingAltitudeSetpoint(dT)
			c.updateAltitudeVelocityTarget(dT)
			c.updateAltitudeThrottleAdjustment(dT)
		}
		c.lastAltUpdateUs = nowUs
		c.est.ConsumeVertical()
	}

	throttle := axis.Constrain(c.cfg.Nav.McHoverThrottle+c.throttleAdjustment,
		c.cfg.Esc.MinThrottle, c.cfg.Esc.MaxThrottle)
	c.cmds.Command[rc.CmdThrottle] = throttle
	c.cmds.AdjustedThrottle = throttle
	c.met.ThrottleCommand.Set(throttle)
}

// updateSurfaceTrackingAltitudeSetpoint converts a surface hold into
// an absolute altitude setpoint. While the range sensor is invalid the
// craft descends slowly until the surface is reacquired.
func (c *Controller) updateSurfaceTrackingAltitudeSetpoint(dT float64) {
	if c.desiredSurface < 0 {
		return
	}

	if c.est.HasValidSurfaceSensor && c.est.Surface >= 0 {
		surfaceError := c.surface.Apply(c.desiredSurface, c.est.Surface, dT,
			surfaceErrorMin, surfaceErrorMax)
		c.desiredPos[axis.Z] = c.est.Pos[axis.Z] + surfaceError
	} else {
		c.met.DegradedEvents.WithLabelValues("surface_sensor_lost").Inc()
		c.UpdateAltitudeTargetFromClimbRate(surfaceLostDescentRate, ClimbRateKeepSurfaceTarget)
	}
}

// updateAltitudeVelocityTarget is the P-only position stage with the
// vertical acceleration cap applied as a slew limit on the climb-rate
// target.
func (c *Controller) updateAltitudeVelocityTarget(dT float64) {
	targetVel := c.posZ.Gains().P * (c.desiredPos[axis.Z] - c.est.Pos[axis.Z])
	targetVel = axis.ConstrainAbs(targetVel, maxAltitudeRate)

	maxDelta := maxVerticalAcceleration * dT
	c.desiredVel[axis.Z] = axis.Constrain(targetVel,
		c.desiredVel[axis.Z]-maxDelta, c.desiredVel[axis.Z]+maxDelta)
}

// updateAltitudeThrottleAdjustment closes the climb-rate loop. The
// output bounds are symmetric about hover throttle so anti-windup
// cannot bias the hover point.
func (c *Controller) updateAltitudeThrottleAdjustment(dT float64) {
	minAdj := c.cfg.Esc.MinThrottle - c.cfg.Nav.McHoverThrottle
	maxAdj := c.cfg.Esc.MaxThrottle - c.cfg.Nav.McHoverThrottle

	adj := c.velZ.Apply(c.desiredVel[axis.Z], c.est.Vel[axis.Z], dT, minAdj, maxAdj)
	adj = c.throttleFilter.Apply(adj, dT)
	c.throttleAdjustment = axis.Constrain(adj, minAdj, maxAdj)
}

// UpdateAltitudeTargetFromClimbRate converts a climb-rate command into
// the altitude setpoint that makes the position stage yield that rate.
func (c *Controller) UpdateAltitudeTargetFromClimbRate(climbRate float64, mode ClimbRateMode) {
	kP := c.posZ.Gains().P
	if kP > 0 {
		c.desiredPos[axis.Z] = c.est.Pos[axis.Z] + climbRate/kP
	} else {
		c.desiredPos[axis.Z] = c.est.Pos[axis.Z]
	}

	if mode == ClimbRateResetSurfaceTarget && c.desiredSurface >= 0 && c.est.HasValidSurfaceSensor {
		c.desiredSurface = c.est.Surface
	}
}

// adjustAltitudeFromRCInput maps throttle stick deflection beyond the
// deadband onto a climb-rate command. Scaling is asymmetric so full
// stick reaches the configured manual climb rate in both directions
// regardless of where the stick zero sits. Returns whether the pilot
// is adjusting.
func (c *Controller) adjustAltitudeFromRCInput() bool {
	deadband := c.cfg.RcControls.AltHoldDeadband
	stick := rc.ApplyDeadband(c.cmds.Data[rc.CmdThrottle]-c.altHoldRCZero, deadband)
	if stick == 0 {
		if c.altAdjusting {
			// Stick released: lock the current altitude.
			c.UpdateAltitudeTargetFromClimbRate(0, ClimbRateResetSurfaceTarget)
		}
		return false
	}

	var climbRate float64
	if stick > 0 {
		span := c.cfg.Esc.MaxThrottle - c.altHoldRCZero - deadband
		climbRate = stick * c.cfg.Nav.MaxManualClimbRate / span
	} else {
		span := c.altHoldRCZero - c.cfg.Esc.MinThrottle - deadband
		climbRate = stick * c.cfg.Nav.MaxManualClimbRate / span
	}
	climbRate = axis.ConstrainAbs(climbRate, c.cfg.Nav.MaxManualClimbRate)

	c.UpdateAltitudeTargetFromClimbRate(climbRate, ClimbRateKeepSurfaceTarget)
	return true
}

// setupAltitudeRCZero captures the stick position that maps to zero
// climb rate, clamped so the pilot keeps authority both ways.
func (c *Controller) setupAltitudeRCZero() {
	zero := c.cfg.Rx.Midrc
	if !c.cfg.Nav.UseThrMidForAltHold {
		if thr := c.cmds.Data[rc.CmdThrottle]; thr > 0 {
			zero = thr
		}
	}
	c.altHoldRCZero = c.cfg.ClampedAltHoldRCZero(zero)
}

// ResetAltitudeHold re-captures the stick zero and holds the current
// altitude, used when altitude control engages.
func (c *Controller) ResetAltitudeHold() {
	c.setupAltitudeRCZero()
	c.desiredPos[axis.Z] = c.est.Pos[axis.Z]
	c.resetAltitudeController()
}

// resetAltitudeController clears all vertical PID state. The climb
// rate setpoint is seeded from the estimator so the transfer back in
// is bumpless, and a pending low-throttle takeoff pre-loads the
// integrator downward to prevent a throttle jump.
func (c *Controller) resetAltitudeController() {
	c.posZ.Reset()
	c.velZ.Reset()
	c.surface.Reset()
	c.throttleFilter.Reset()
	c.throttleAdjustment = 0
	c.desiredVel[axis.Z] = c.est.Vel[axis.Z]

	if c.prepareForTakeoff {
		c.velZ.SeedIntegrator(takeoffIntegratorSeed)
		c.prepareForTakeoff = false
		c.log.Debug("altitude controller reset for takeoff")
	}
}

// NavTargetAltitude exposes the altitude setpoint in cm, clamped to
// the int16 range for blackbox publication.
func (c *Controller) NavTargetAltitude() int16 {
	return int16(axis.Constrain(c.desiredPos[axis.Z], math.MinInt16, math.MaxInt16))
}
