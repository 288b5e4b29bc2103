package nav

import (
	"math"

	"github.com/asgard/freya/internal/axis"
	"github.com/asgard/freya/internal/config"
	"github.com/asgard/freya/internal/modes"
	"github.com/asgard/freya/internal/rc"
)

// headingAttenuationFloor keeps a sliver of forward authority while
// the craft is still turning toward the leg bearing.
const headingAttenuationFloor = 0.05

// updatePositionController runs the horizontal cascade: position to
// velocity to acceleration to tilt. Cascade math runs on fresh
// horizontal data; the tilt output is republished every tick.
func (c *Controller) updatePositionController(flags modes.NavFlags, nowUs int64) {
	if !c.est.HasValidPositionSensor {
		// No fix: release the sticks to the angle loop.
		if !c.bypassPosition {
			c.met.DegradedEvents.WithLabelValues("position_sensor_lost").Inc()
			c.log.Warn("position sensor lost, bypassing position controller")
		}
		c.rcAdjustment[0] = 0
		c.rcAdjustment[1] = 0
		c.bypassPosition = true
		return
	}

	if c.est.HorizontalPositionDataNew {
		deltaMicros := nowUs - c.lastPosUpdateUs
		if c.lastPosUpdateUs == 0 || deltaMicros > maxUpdateIntervalUs {
			c.resetPositionController()
			c.met.StaleResets.WithLabelValues("position").Inc()
			c.met.DegradedEvents.WithLabelValues("stale_tick_reset").Inc()
		} else {
			dT := axis.US2S(deltaMicros)
			c.updateDesiredHorizontalVelocity(flags)
			c.updateTiltSetpoint(dT)
		}
		c.lastPosUpdateUs = nowUs
		c.est.ConsumeHorizontal()
	}

	if c.bypassPosition {
		return
	}
	c.cmds.Command[rc.CmdRoll] = rc.AngleToCommand(c.rcAdjustment[0])
	c.cmds.Command[rc.CmdPitch] = rc.AngleToCommand(c.rcAdjustment[1])
}

// updateDesiredHorizontalVelocity is the P-only position stage with
// the waypoint speed limit, heading attenuation and the expo approach
// profile.
func (c *Controller) updateDesiredHorizontalVelocity(flags modes.NavFlags) {
	errX := c.desiredPos[axis.X] - c.est.Pos[axis.X]
	errY := c.desiredPos[axis.Y] - c.est.Pos[axis.Y]

	velX := errX * c.posXYGain
	velY := errY * c.posXYGain

	maxSpeed := c.nav.ActiveWaypointSpeed()
	if maxSpeed <= 0 {
		maxSpeed = c.cfg.Nav.MaxManualSpeed
	}

	velMag := math.Hypot(velX, velY)
	if velMag > maxSpeed {
		scale := maxSpeed / velMag
		velX *= scale
		velY *= scale
		velMag = maxSpeed
	}

	if flags.Has(modes.NavAutoWP) {
		// Hold back while the nose is still swinging onto the bearing.
		headingError := axis.DecidegToRad(axis.WrapCentideg180(c.desiredYaw-c.est.Yaw) / 10.0)
		cosErr := math.Cos(headingError)
		scale := math.Max(cosErr*cosErr, headingAttenuationFloor)
		velX *= scale
		velY *= scale
		velMag *= scale
	}

	if maxSpeed > 0 && c.cfg.Nav.PosExpo > 0 {
		ratio := velMag / maxSpeed
		shape := 1 - c.cfg.Nav.PosExpo*(1-ratio*ratio)
		velX *= shape
		velY *= shape
	}

	c.desiredVel[axis.X] = velX
	c.desiredVel[axis.Y] = velY
}

// updateTiltSetpoint closes the velocity loop into an acceleration
// command, jerk-limits and filters it, rotates it into the body frame
// and converts it to tilt angles.
func (c *Controller) updateTiltSetpoint(dT float64) {
	velErr := [2]float64{
		c.desiredVel[axis.X] - c.est.Vel[axis.X],
		c.desiredVel[axis.Y] - c.est.Vel[axis.Y],
	}

	// Point the acceleration envelope along the velocity error vector
	// so the craft accelerates where the error is, not diagonally.
	errMag := math.Hypot(velErr[0], velErr[1])
	var accelLimit [2]float64
	if errMag > 0.1 {
		accelLimit[0] = math.Abs(velErr[0]) / errMag * NavAccelerationXYMax
		accelLimit[1] = math.Abs(velErr[1]) / errMag * NavAccelerationXYMax
	} else {
		accelLimit[0] = NavAccelerationXYMax / math.Sqrt2
		accelLimit[1] = NavAccelerationXYMax / math.Sqrt2
	}

	maxJerkDelta := maxHorizontalJerk * dT
	earthAxes := [2]int{axis.X, axis.Y}
	var accel [2]float64
	for i, ea := range earthAxes {
		lo := math.Max(-accelLimit[i], c.lastAccel[i]-maxJerkDelta)
		hi := math.Min(accelLimit[i], c.lastAccel[i]+maxJerkDelta)
		accel[i] = c.velXY[i].Apply(c.desiredVel[ea], c.est.Vel[ea], dT, lo, hi)
		c.lastAccel[i] = accel[i]
		accel[i] = c.accelFilter[i].Apply(accel[i], dT)
	}

	// Earth (north, east) into body (forward, right).
	accelForward := accel[0]*c.est.CosYaw + accel[1]*c.est.SinYaw
	accelRight := -accel[0]*c.est.SinYaw + accel[1]*c.est.CosYaw

	desiredPitch := math.Atan2(accelForward, GravityCmss)
	desiredRoll := math.Atan2(accelRight*math.Cos(desiredPitch), GravityCmss)

	maxBankDecideg := c.cfg.Nav.McMaxBankAngle * 10
	c.rcAdjustment[0] = axis.ConstrainAbs(axis.RadToDeg(desiredRoll)*10, maxBankDecideg)
	c.rcAdjustment[1] = axis.ConstrainAbs(axis.RadToDeg(desiredPitch)*10, maxBankDecideg)
}

// adjustPositionFromRCInput interprets roll/pitch deflection beyond
// the deadband. In atti mode the position controller steps aside and
// the sticks fly the angle loop directly; in cruise mode the sticks
// become a body-frame velocity command routed through the position
// target. Releasing the sticks commits a predicted stopping point as
// the new hold position.
func (c *Controller) adjustPositionFromRCInput() {
	deadband := c.cfg.RcControls.PosHoldDeadband
	rollAdj := rc.ApplyDeadband(c.cmds.Command[rc.CmdRoll], deadband)
	pitchAdj := rc.ApplyDeadband(c.cmds.Command[rc.CmdPitch], deadband)
	adjusting := rollAdj != 0 || pitchAdj != 0

	switch c.cfg.Nav.UserControlMode {
	case config.UserControlAtti:
		if adjusting {
			c.bypassPosition = true
		} else if c.posAdjusting {
			// Sticks released: hold the predicted stopping point.
			x, y := c.CalculateInitialHoldPosition()
			c.desiredPos[axis.X] = x
			c.desiredPos[axis.Y] = y
			c.bypassPosition = false
		} else if c.est.HasValidPositionSensor {
			c.bypassPosition = false
		}

	case config.UserControlCruise:
		if adjusting {
			span := 500.0 - deadband
			velForward := pitchAdj * c.cfg.Nav.MaxManualSpeed / span
			velRight := rollAdj * c.cfg.Nav.MaxManualSpeed / span

			// Body into earth frame.
			velN := velForward*c.est.CosYaw - velRight*c.est.SinYaw
			velE := velForward*c.est.SinYaw + velRight*c.est.CosYaw

			// Place the target so the position stage yields the
			// commanded velocity.
			if c.posXYGain > 0 {
				c.desiredPos[axis.X] = c.est.Pos[axis.X] + velN/c.posXYGain
				c.desiredPos[axis.Y] = c.est.Pos[axis.Y] + velE/c.posXYGain
			}
		} else if c.posAdjusting {
			x, y := c.CalculateInitialHoldPosition()
			c.desiredPos[axis.X] = x
			c.desiredPos[axis.Y] = y
		}
	}

	c.posAdjusting = adjusting
}

// ResetPositionHold captures the current position as the hold target
// and clears the cascade, used when position control engages.
func (c *Controller) ResetPositionHold() {
	c.desiredPos[axis.X] = c.est.Pos[axis.X]
	c.desiredPos[axis.Y] = c.est.Pos[axis.Y]
	c.resetPositionController()
	c.bypassPosition = false
}

// resetPositionController clears the horizontal cascade state.
func (c *Controller) resetPositionController() {
	for i := 0; i < 2; i++ {
		c.velXY[i].Reset()
		c.accelFilter[i].Reset()
		c.lastAccel[i] = 0
		c.rcAdjustment[i] = 0
	}
	c.desiredVel[axis.X] = 0
	c.desiredVel[axis.Y] = 0
}

// PositionBypassed reports whether the sticks currently pass straight
// through to the angle loop.
func (c *Controller) PositionBypassed() bool {
	return c.bypassPosition
}
