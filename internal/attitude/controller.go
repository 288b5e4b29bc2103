// Package attitude implements the inner rate/attitude controller: the
// gyro-driven three-axis cascaded PID producing the per-axis motor
// corrections, with self-leveling, horizon blending, heading lock,
// magnetometer heading hold, throttle-dependent gain attenuation and
// back-calculation anti-windup.
package attitude

import (
	"github.com/sirupsen/logrus"

	"github.com/asgard/freya/internal/axis"
	"github.com/asgard/freya/internal/config"
	"github.com/asgard/freya/internal/estimator"
	"github.com/asgard/freya/internal/modes"
	"github.com/asgard/freya/internal/pid"
	"github.com/asgard/freya/internal/rc"
	"github.com/asgard/freya/pkg/utils"
)

const (
	// GyroSaturationLimit caps any rate target, dps.
	GyroSaturationLimit = 1800

	// PIDMaxOutput bounds each axis correction fed to the mixer.
	PIDMaxOutput = 1000

	// pidAttenuationFactor scales P+D while the mixer reports
	// saturation.
	pidAttenuationFactor = 0.33

	// headingLockLimit clamps the heading-lock accumulator, degrees.
	headingLockLimit = 45

	// headingLockRateThreshold is the commanded rate above which the
	// pilot owns the yaw axis and the lock resets, dps.
	headingLockRateThreshold = 2
)

// axisState is the per-axis PID state of the rate loop.
type axisState struct {
	kP float64
	kI float64
	kD float64
	kT float64

	rateTarget      float64
	errorGyroI      float64
	errorGyroILimit float64

	gyroHistory  pid.FIR5
	targetFilter pid.PT1 // rate-target LPF, leveling loops only
	ptermFilter  pid.PT1 // yaw P-term LPF
	dtermFilter  pid.PT1
}

// axisSpec is the static per-axis configuration record; the yaw
// special cases live here instead of axis-index branches in the loop.
type axisSpec struct {
	usesTPA     bool
	pLimit      float64 // 0 disables the P clamp
	filterPTerm bool
	leveling    bool // participates in ANGLE/HORIZON blending
	headingLock bool
	inclination float64 // tilt limit, decidegrees
}

// Outputs is the per-tick inner loop result.
type Outputs struct {
	// AxisPID is the mixer input per flight axis, within
	// [-PIDMaxOutput, +PIDMaxOutput].
	AxisPID [axis.FlightAxisCount]float64

	// Diagnostic snapshots for the blackbox sink.
	P        [axis.FlightAxisCount]float64
	I        [axis.FlightAxisCount]float64
	D        [axis.FlightAxisCount]float64
	Setpoint [axis.FlightAxisCount]float64
}

// Controller is the inner attitude/rate controller.
type Controller struct {
	cfg  *config.Config
	est  *estimator.State
	cmds *rc.Commands

	axes  [axis.FlightAxisCount]axisState
	specs [axis.FlightAxisCount]axisSpec

	axisLockAccum float64 // heading lock integrator, degrees

	magHold *MagHold

	// motorCount gates the yaw P clamp; quads and larger have enough
	// yaw authority for it to matter.
	motorCount int

	out Outputs
	log *logrus.Entry
}

// NewController wires the inner loop to its collaborators.
func NewController(cfg *config.Config, est *estimator.State, cmds *rc.Commands, motorCount int) *Controller {
	c := &Controller{
		cfg:        cfg,
		est:        est,
		cmds:       cmds,
		motorCount: motorCount,
		magHold:    NewMagHold(cfg),
		log:        utils.Component("attitude"),
	}

	for a := 0; a < axis.FlightAxisCount; a++ {
		c.axes[a].targetFilter = pid.NewPT1(float64(cfg.PID.I8[config.PIDLevel]))
		c.axes[a].dtermFilter = pid.NewPT1(cfg.PID.DtermLpfHz)
	}
	c.axes[axis.Yaw].ptermFilter = pid.NewPT1(cfg.PID.YawLpfHz)

	c.specs[axis.Roll] = axisSpec{usesTPA: true, leveling: true, inclination: cfg.PID.MaxAngleInclination[0]}
	c.specs[axis.Pitch] = axisSpec{usesTPA: true, leveling: true, inclination: cfg.PID.MaxAngleInclination[1]}
	yawSpec := axisSpec{headingLock: true, filterPTerm: cfg.PID.YawLpfHz > 0}
	if motorCount >= 4 && cfg.PID.YawPLimit > 0 {
		yawSpec.pLimit = cfg.PID.YawPLimit
	}
	c.specs[axis.Yaw] = yawSpec

	return c
}

// MagHoldController exposes the heading-hold sub-controller.
func (c *Controller) MagHoldController() *MagHold {
	return c.magHold
}

// Outputs returns the last tick's corrections and diagnostics.
func (c *Controller) Outputs() *Outputs {
	return &c.out
}

// Reset clears all integrators and filter state, seeding the gyro
// history so the next derivative is transient-free.
func (c *Controller) Reset() {
	for a := range c.axes {
		s := &c.axes[a]
		s.errorGyroI = 0
		s.errorGyroILimit = 0
		s.gyroHistory.Reset(c.est.GyroRate[a])
		s.targetFilter.Reset()
		s.ptermFilter.Reset()
		s.dtermFilter.Reset()
	}
	c.axisLockAccum = 0
}

// Run executes one inner-loop iteration with the fixed gyro time step
// dT. headingCtl is what the navigation layer wants done with heading;
// motorLimitReached is the mixer saturation report from the previous
// output.
func (c *Controller) Run(flags modes.FlightMode, headingCtl modes.HeadingControlState, motorLimitReached bool, dT float64) {
	c.refreshGains()
	c.updateRateTargets(flags, headingCtl, dT)

	for a := 0; a < axis.FlightAxisCount; a++ {
		c.runRatePID(a, flags, motorLimitReached, dT)
	}
}

// refreshGains recomputes the per-axis gains from the 8-bit profile,
// applying TPA and the low-throttle D attenuation to the tilt axes.
func (c *Controller) refreshGains() {
	tpa := c.tpaFactor(c.cmds.Command[rc.CmdThrottle])
	kdAtt := c.throttleKdAttenuation(c.cmds.Data[rc.CmdThrottle])

	for a := 0; a < axis.FlightAxisCount; a++ {
		s := &c.axes[a]
		s.kP = float64(c.cfg.PID.P8[a]) / 40.0
		s.kI = float64(c.cfg.PID.I8[a]) / 10.0
		s.kD = float64(c.cfg.PID.D8[a]) / 4000.0

		if c.specs[a].usesTPA {
			s.kP *= tpa
			s.kD *= tpa * kdAtt
		}

		if s.kP != 0 && s.kI != 0 {
			s.kT = 2.0 / (s.kP/s.kI + s.kD/s.kP)
		} else {
			s.kT = 0
		}
	}
}

// tpaFactor is the thrust PID attenuation: unity below the breakpoint,
// fading linearly to 1-rate/100 at full throttle.
func (c *Controller) tpaFactor(throttle float64) float64 {
	dyn := float64(c.cfg.Rates.DynThrPID)
	bp := c.cfg.Rates.TPABreakpoint
	if dyn == 0 || throttle < bp {
		return 1
	}
	if throttle >= 2000 {
		return 1 - dyn/100
	}
	return 1 - (dyn/100)*(throttle-bp)/(2000-bp)
}

// throttleKdAttenuation softens the D term near idle where prop wash
// noise dominates the gyro.
func (c *Controller) throttleKdAttenuation(throttle float64) float64 {
	rel := (throttle - c.cfg.Rx.Mincheck) / (c.cfg.Rx.Maxcheck - c.cfg.Rx.Mincheck)
	if rel >= 0.25 {
		return 1
	}
	return axis.Constrain(rel/0.25+0.5, 0, 1)
}

// updateRateTargets converts sticks, leveling error and heading
// controllers into a rate target per axis.
func (c *Controller) updateRateTargets(flags modes.FlightMode, headingCtl modes.HeadingControlState, dT float64) {
	leveling := flags.Has(modes.Angle) || flags.Has(modes.Horizon)
	horizonStrength := c.horizonStrength()

	for a := 0; a < axis.FlightAxisCount; a++ {
		s := &c.axes[a]
		spec := &c.specs[a]
		stick := c.cmds.Command[a]

		var target float64
		switch {
		case spec.leveling && leveling:
			angleTarget := axis.ConstrainAbs(rc.CommandToAngle(stick), spec.inclination)
			angleError := (angleTarget - c.est.Attitude[a]) / 10.0
			levelRate := angleError * float64(c.cfg.PID.P8[config.PIDLevel]) / 40.0
			if flags.Has(modes.Horizon) {
				target = rc.CommandToRate(stick, c.cfg.Rates.Rates[a]) + levelRate*horizonStrength
			} else {
				target = levelRate
			}
			if c.cfg.PID.I8[config.PIDLevel] > 0 {
				target = s.targetFilter.Apply(target, dT)
			}

		case spec.headingLock:
			magState := c.magHold.Update(flags, headingCtl, c.est, c.cmds.Command[rc.CmdYaw], dT)
			if magState == MagHoldEnabled {
				target = c.magHold.RateTarget()
			} else {
				target = rc.CommandToRate(stick, c.cfg.Rates.Rates[a])
				if flags.Has(modes.HeadingLock) {
					target = c.applyHeadingLock(target, c.est.GyroRate[a], flags, dT)
				}
			}

		default:
			target = rc.CommandToRate(stick, c.cfg.Rates.Rates[a])
		}

		s.rateTarget = axis.ConstrainAbs(target, GyroSaturationLimit)
	}
}

// horizonStrength decays the leveling contribution from 1 at centered
// sticks to 0 at full deflection, shaped by the horizon D gain.
func (c *Controller) horizonStrength() float64 {
	d := float64(c.cfg.PID.D8[config.PIDLevel])
	if d == 0 {
		return 0
	}
	mostDeflected := c.cmds.Command[rc.CmdRoll]
	if v := c.cmds.Command[rc.CmdPitch]; absf(v) > absf(mostDeflected) {
		mostDeflected = v
	}
	h := (500.0 - absf(mostDeflected)) / 500.0
	return axis.Constrain((h-1)*100.0/d+1, 0, 1)
}

// applyHeadingLock integrates the uncommanded yaw error and replaces
// the rate target with the correction. The accumulator resets when
// the pilot commands yaw or the craft is disarmed.
func (c *Controller) applyHeadingLock(rateTarget, gyroRate float64, flags modes.FlightMode, dT float64) float64 {
	if absf(rateTarget) > headingLockRateThreshold || !flags.Has(modes.Armed) {
		c.axisLockAccum = 0
		return rateTarget
	}
	c.axisLockAccum += (rateTarget - gyroRate) * dT
	c.axisLockAccum = axis.ConstrainAbs(c.axisLockAccum, headingLockLimit)
	return c.axisLockAccum * float64(c.cfg.PID.P8[config.PIDMag]) / 80.0
}

// runRatePID closes the rate loop on one axis.
func (c *Controller) runRatePID(a int, flags modes.FlightMode, motorLimitReached bool, dT float64) {
	s := &c.axes[a]
	spec := &c.specs[a]

	rateError := s.rateTarget - c.est.GyroRate[a]

	pTerm := rateError * s.kP
	if spec.pLimit > 0 {
		pTerm = axis.ConstrainAbs(pTerm, spec.pLimit)
	}
	if spec.filterPTerm {
		pTerm = s.ptermFilter.Apply(pTerm, dT)
	}

	var dTerm float64
	if c.cfg.PID.D8[a] != 0 {
		s.gyroHistory.Update(c.est.GyroRate[a])
		dTerm = s.gyroHistory.Apply() * -s.kD / (8 * dT)
		if c.cfg.PID.DtermLpfHz > 0 {
			dTerm = s.dtermFilter.Apply(dTerm, dT)
		}
	}

	attenuation := 1.0
	if flags.Has(modes.PIDAttenuate) {
		attenuation = pidAttenuationFactor
	}

	raw := (pTerm+dTerm)*attenuation + s.errorGyroI
	limited := axis.ConstrainAbs(raw, PIDMaxOutput)

	s.errorGyroI += rateError*s.kI*dT + (limited-raw)*s.kT*dT

	// The envelope tracks the last unsaturated magnitude; while the
	// mixer is saturated the integrator may not grow past it.
	if flags.Has(modes.AntiWindup) || motorLimitReached {
		s.errorGyroI = axis.ConstrainAbs(s.errorGyroI, s.errorGyroILimit)
	} else {
		s.errorGyroILimit = absf(s.errorGyroI)
	}

	c.out.AxisPID[a] = limited
	c.out.P[a] = pTerm
	c.out.I[a] = s.errorGyroI
	c.out.D[a] = dTerm
	c.out.Setpoint[a] = s.rateTarget
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
