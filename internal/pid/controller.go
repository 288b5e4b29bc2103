// Package pid implements the shared controller primitives of the
// flight core: first-order and FIR filters plus the output-limited PID
// used by the navigation cascades.
//
// Anti-windup follows the actuator tracking scheme: the integrator is
// corrected by the difference between the saturated and raw outputs
// scaled by a tracking gain derived from the loop gains. A naive
// clamping integrator changes the stability margins and must not be
// substituted here.
package pid

import "github.com/asgard/freya/internal/axis"

// Gains holds the tunable gains of one controller.
type Gains struct {
	P float64
	I float64
	D float64
}

// Controller is an output-limited PID with back-calculation
// anti-windup and a low-pass filtered derivative term.
type Controller struct {
	gains Gains
	kT    float64

	integrator float64
	lastError  float64
	dFilter    PT1
}

// NewController builds a controller with a D-term low-pass at
// dtermCutoffHz (zero disables the filter).
func NewController(gains Gains, dtermCutoffHz float64) *Controller {
	c := &Controller{dFilter: NewPT1(dtermCutoffHz)}
	c.SetGains(gains)
	return c
}

// SetGains installs new gains and recomputes the tracking gain.
// Back-calculation is disabled when either P or I is zero.
func (c *Controller) SetGains(gains Gains) {
	c.gains = gains
	if gains.P != 0 && gains.I != 0 {
		c.kT = 2.0 / (gains.P/gains.I + gains.D/gains.P)
	} else {
		c.kT = 0
	}
}

// Gains returns the installed gains.
func (c *Controller) Gains() Gains {
	return c.gains
}

// TrackingGain returns the derived back-calculation gain.
func (c *Controller) TrackingGain() float64 {
	return c.kT
}

// Apply advances the controller by dT seconds and returns the output
// saturated into [outMin, outMax]. While the output is clipped,
// back-calculation bleeds the integrator by the clipped amount times
// the tracking gain, so it settles instead of winding up; the
// integrator itself is not clamped to the output bounds.
func (c *Controller) Apply(setpoint, measurement, dT, outMin, outMax float64) float64 {
	err := setpoint - measurement

	p := err * c.gains.P

	var d float64
	if c.gains.D != 0 && dT > 0 {
		d = c.dFilter.Apply(c.gains.D*(err-c.lastError)/dT, dT)
	}
	c.lastError = err

	raw := p + c.integrator + d
	out := axis.Constrain(raw, outMin, outMax)

	c.integrator += (err*c.gains.I + (out-raw)*c.kT) * dT

	return out
}

// Integrator returns the accumulated integral term.
func (c *Controller) Integrator() float64 {
	return c.integrator
}

// SeedIntegrator presets the integral term for bumpless transfer.
func (c *Controller) SeedIntegrator(v float64) {
	c.integrator = v
}

// Reset clears all controller state.
func (c *Controller) Reset() {
	c.integrator = 0
	c.lastError = 0
	c.dFilter.Reset()
}
