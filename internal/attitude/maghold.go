package attitude

import (
	"github.com/asgard/freya/internal/axis"
	"github.com/asgard/freya/internal/config"
	"github.com/asgard/freya/internal/estimator"
	"github.com/asgard/freya/internal/modes"
	"github.com/asgard/freya/internal/pid"
)

// MagHoldState is the heading-hold controller state for one tick.
type MagHoldState int

const (
	// MagHoldDisabled: no usable magnetometer heading, or another
	// controller owns yaw.
	MagHoldDisabled MagHoldState = iota
	// MagHoldUpdateHeading: latch the current heading as the target.
	MagHoldUpdateHeading
	// MagHoldEnabled: close the heading loop.
	MagHoldEnabled
)

const (
	// magHoldYawStickThreshold: beyond this yaw deflection the pilot
	// is steering and the target follows the craft.
	magHoldYawStickThreshold = 15

	// magHoldFilterCutoffHz smooths the commanded yaw rate.
	magHoldFilterCutoffHz = 2
)

// MagHold is the magnetometer heading-hold P controller.
type MagHold struct {
	cfg *config.Config

	magAvailable bool
	target       float64 // degrees
	rateTarget   float64 // dps
	filter       pid.PT1
}

// NewMagHold builds the heading-hold controller; the magnetometer is
// assumed absent until reported.
func NewMagHold(cfg *config.Config) *MagHold {
	return &MagHold{
		cfg:    cfg,
		filter: pid.NewPT1(magHoldFilterCutoffHz),
	}
}

// SetMagAvailable reports magnetometer presence from the sensor layer.
func (m *MagHold) SetMagAvailable(ok bool) {
	m.magAvailable = ok
}

// TargetHeading returns the held heading in degrees.
func (m *MagHold) TargetHeading() float64 {
	return m.target
}

// SetTargetHeading overrides the held heading, degrees.
func (m *MagHold) SetTargetHeading(deg float64) {
	m.target = deg
}

// RateTarget returns the filtered yaw rate command of the last
// enabled tick, dps.
func (m *MagHold) RateTarget() float64 {
	return m.rateTarget
}

// State classifies the controller for this tick.
func (m *MagHold) State(flags modes.FlightMode, headingCtl modes.HeadingControlState, yawStick float64) MagHoldState {
	if !m.magAvailable || !flags.Has(modes.SmallAngle) {
		return MagHoldDisabled
	}

	switch headingCtl {
	case modes.HeadingControlAuto:
		return MagHoldEnabled
	case modes.HeadingControlManual:
		return MagHoldDisabled
	}

	if absf(yawStick) < magHoldYawStickThreshold && flags.Has(modes.MagHold) {
		return MagHoldEnabled
	}
	return MagHoldUpdateHeading
}

// Update advances the controller one tick and returns its state. When
// enabled, the wrapped heading error drives a P controller whose
// output is rate-limited and low-pass filtered.
func (m *MagHold) Update(flags modes.FlightMode, headingCtl modes.HeadingControlState, est *estimator.State, yawStick float64, dT float64) MagHoldState {
	state := m.State(flags, headingCtl, yawStick)
	currentHeading := est.Attitude[axis.Yaw] / 10.0

	switch state {
	case MagHoldUpdateHeading:
		m.target = currentHeading

	case MagHoldEnabled:
		err := axis.WrapDeg180(currentHeading - m.target)
		rate := err * float64(m.cfg.PID.P8[config.PIDMag]) / 30.0
		rate = axis.ConstrainAbs(rate, m.cfg.PID.MagHoldRateLimit)
		m.rateTarget = m.filter.Apply(rate, dT)
	}

	return state
}
