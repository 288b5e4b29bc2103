// Package nav implements the outer navigation controller for
// multirotor airframes: the altitude cascade, the horizontal position
// cascade, surface tracking, the land detector and the emergency
// descent controller. Its outputs are setpoints for the inner
// attitude/rate loop.
package nav

import (
	"github.com/sirupsen/logrus"

	"github.com/asgard/freya/internal/axis"
	"github.com/asgard/freya/internal/config"
	"github.com/asgard/freya/internal/estimator"
	"github.com/asgard/freya/internal/metrics"
	"github.com/asgard/freya/internal/modes"
	"github.com/asgard/freya/internal/pid"
	"github.com/asgard/freya/internal/rc"
	"github.com/asgard/freya/pkg/utils"
)

const (
	// MinPositionUpdateRateHz is the slowest acceptable cadence of
	// position data; staler updates reset the consuming stage.
	MinPositionUpdateRateHz = 5

	maxUpdateIntervalUs = int64(1e6 / MinPositionUpdateRateHz)

	// NavThrottleCutoffFrequencyHz smooths the climb-rate controller
	// output.
	NavThrottleCutoffFrequencyHz = 4

	// NavAccelCutoffFrequencyHz smooths the commanded horizontal
	// acceleration.
	NavAccelCutoffFrequencyHz = 2

	// navDtermCutHz is the D-term low-pass of the outer PID loops.
	navDtermCutHz = 10

	// NavAccelerationXYMax caps commanded horizontal acceleration,
	// cm/s^2.
	NavAccelerationXYMax = 980

	// maxAltitudeRate caps the climb rate from the position stage, cm/s.
	maxAltitudeRate = 2000

	// maxVerticalAcceleration slew-limits the climb-rate target, cm/s^2.
	maxVerticalAcceleration = 250

	// maxHorizontalJerk bounds acceleration change, cm/s^3.
	maxHorizontalJerk = 1700

	// GravityCmss is standard gravity in cm/s^2.
	GravityCmss = 980.665

	// takeoffIntegratorSeed pre-loads the climb-rate integrator after a
	// low-throttle arming so the first throttle command cannot jump.
	takeoffIntegratorSeed = -500
)

// Navigator is the navigation state machine surface the controller
// queries. The state machine itself lives outside this module.
type Navigator interface {
	// ActiveWaypointSpeed is the speed limit for the current leg, cm/s.
	ActiveWaypointSpeed() float64
	// HeadingControlState is what the navigation layer wants done with
	// the heading.
	HeadingControlState() modes.HeadingControlState
	// FailsafeThrottle is the failsafe profile throttle; zero or less
	// means fall back to minimum throttle.
	FailsafeThrottle() float64
}

// Controller is the outer navigation controller. All state is owned by
// the scheduler's tick; nothing here is safe for concurrent use.
type Controller struct {
	cfg  *config.Config
	est  *estimator.State
	cmds *rc.Commands
	nav  Navigator

	// Desired state, earth frame.
	desiredPos     [axis.EarthAxisCount]float64
	desiredVel     [axis.EarthAxisCount]float64
	desiredSurface float64 // cm, -1 disables surface tracking
	desiredYaw     float64 // centidegrees

	// Altitude cascade.
	posZ               *pid.Controller
	velZ               *pid.Controller
	surface            *pid.Controller
	throttleFilter     pid.PT1
	throttleAdjustment float64
	lastAltUpdateUs    int64
	altHoldRCZero      float64
	prepareForTakeoff  bool
	altAdjusting       bool

	// Horizontal cascade.
	posXYGain       float64
	velXY           [2]*pid.Controller
	accelFilter     [2]pid.PT1
	lastAccel       [2]float64
	rcAdjustment    [2]float64 // roll/pitch tilt, decidegrees
	lastPosUpdateUs int64
	bypassPosition  bool
	posAdjusting    bool

	// Land detector.
	landTimerStartUs   int64
	landTimerValid     bool
	hasHadSomeVelocity bool
	landDetected       bool

	emergencyActive bool

	met *metrics.Metrics
	log *logrus.Entry
}

// NewController wires the navigation controller to its collaborators.
func NewController(cfg *config.Config, est *estimator.State, cmds *rc.Commands, navigator Navigator) *Controller {
	c := &Controller{
		cfg:            cfg,
		est:            est,
		cmds:           cmds,
		nav:            navigator,
		desiredSurface: -1,
		met:            metrics.Default(),
		log:            utils.Component("nav"),
	}

	c.posZ = pid.NewController(pid.Gains{P: float64(cfg.PID.P8[config.PIDAlt]) / 100.0}, 0)
	c.velZ = pid.NewController(pid.Gains{
		P: float64(cfg.PID.P8[config.PIDVel]) / 66.7,
		I: float64(cfg.PID.I8[config.PIDVel]) / 20.0,
		D: float64(cfg.PID.D8[config.PIDVel]) / 100.0,
	}, navDtermCutHz)
	c.surface = pid.NewController(pid.Gains{P: 2.0, I: 0, D: 0}, 0)
	c.throttleFilter = pid.NewPT1(NavThrottleCutoffFrequencyHz)

	c.posXYGain = float64(cfg.PID.P8[config.PIDPos]) / 100.0
	for i := range c.velXY {
		c.velXY[i] = pid.NewController(pid.Gains{
			P: float64(cfg.PID.P8[config.PIDPosR]) / 100.0,
			I: float64(cfg.PID.I8[config.PIDPosR]) / 100.0,
			D: float64(cfg.PID.D8[config.PIDPosR]) / 100.0,
		}, navDtermCutHz)
		c.accelFilter[i] = pid.NewPT1(NavAccelCutoffFrequencyHz)
	}

	c.setupAltitudeRCZero()

	return c
}

// ApplyControllers runs the navigation stages whose flags are set. In
// an emergency, only the emergency descent controller runs.
func (c *Controller) ApplyControllers(flags modes.NavFlags, nowUs int64) {
	if flags.Has(modes.NavCtlEmerg) {
		if !c.emergencyActive {
			c.emergencyActive = true
			c.met.EmergencyActive.Set(1)
			c.log.Warn("emergency descent engaged")
		}
		c.applyEmergencyLanding(nowUs)
		return
	}
	if c.emergencyActive {
		c.emergencyActive = false
		c.met.EmergencyActive.Set(0)
		c.log.Info("emergency descent released")
	}

	if flags.Has(modes.NavCtlAlt) {
		c.altAdjusting = c.adjustAltitudeFromRCInput()
		c.updateAltitudeController(nowUs)
	}
	if flags.Has(modes.NavCtlPos) {
		c.adjustPositionFromRCInput()
		c.updatePositionController(flags, nowUs)
	}
}

// SetDesiredPosition sets the hold target for the given earth axis, cm.
func (c *Controller) SetDesiredPosition(ax int, cm float64) {
	c.desiredPos[ax] = cm
}

// DesiredPosition returns the hold target for the given earth axis, cm.
func (c *Controller) DesiredPosition(ax int) float64 {
	return c.desiredPos[ax]
}

// DesiredVelocity returns the velocity setpoint for the given earth
// axis, cm/s.
func (c *Controller) DesiredVelocity(ax int) float64 {
	return c.desiredVel[ax]
}

// SetDesiredYaw sets the navigation heading target in centidegrees,
// wrapped into (-18000, +18000].
func (c *Controller) SetDesiredYaw(centideg float64) {
	c.desiredYaw = axis.WrapCentideg180(centideg)
}

// DesiredYaw returns the heading target in centidegrees.
func (c *Controller) DesiredYaw() float64 {
	return c.desiredYaw
}

// SetDesiredSurface arms surface tracking at the given height above
// ground in cm; negative disables it.
func (c *Controller) SetDesiredSurface(cm float64) {
	c.desiredSurface = cm
}

// RCAdjustment returns the tilt setpoint for roll (0) or pitch (1) in
// decidegrees.
func (c *Controller) RCAdjustment(i int) float64 {
	return c.rcAdjustment[i]
}

// PrepareForTakeoff marks that arming happened at low throttle; the
// next altitude reset seeds the climb-rate integrator to hold the
// craft down.
func (c *Controller) PrepareForTakeoff() {
	c.prepareForTakeoff = true
}

// CalculateInitialHoldPosition predicts the stopping point from the
// current inertia: the position reached after decelerating over the
// configured deceleration time. With zero velocity it is the current
// position exactly.
func (c *Controller) CalculateInitialHoldPosition() (x, y float64) {
	x = c.est.Pos[axis.X] + c.est.Vel[axis.X]*c.cfg.Nav.PosDecelerationTime
	y = c.est.Pos[axis.Y] + c.est.Vel[axis.Y]*c.cfg.Nav.PosDecelerationTime
	return x, y
}
