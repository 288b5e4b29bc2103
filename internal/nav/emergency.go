package nav

import (
	"github.com/asgard/freya/internal/axis"
	"github.com/asgard/freya/internal/rc"
)

// applyEmergencyLanding brings the craft straight down. Sticks are
// centered so the angle loop levels the craft; with a usable altitude
// sensor the configured descent rate runs through the normal altitude
// cascade, otherwise the throttle falls back to the failsafe value
// open-loop.
func (c *Controller) applyEmergencyLanding(nowUs int64) {
	c.cmds.Command[rc.CmdRoll] = 0
	c.cmds.Command[rc.CmdPitch] = 0
	c.cmds.Command[rc.CmdYaw] = 0

	if c.est.HasValidAltitudeSensor {
		c.desiredSurface = -1
		c.UpdateAltitudeTargetFromClimbRate(-c.cfg.Nav.EmergDescentRate, ClimbRateResetSurfaceTarget)
		c.updateAltitudeController(nowUs)
		return
	}

	c.met.DegradedEvents.WithLabelValues("altitude_sensor_lost_in_emergency").Inc()
	throttle := c.nav.FailsafeThrottle()
	if throttle <= 0 {
		throttle = c.cfg.Esc.MinThrottle
	}
	throttle = axis.Constrain(throttle, c.cfg.Esc.MinThrottle, c.cfg.Esc.MaxThrottle)
	c.cmds.Command[rc.CmdThrottle] = throttle
	c.cmds.AdjustedThrottle = throttle
	c.met.ThrottleCommand.Set(throttle)
}
