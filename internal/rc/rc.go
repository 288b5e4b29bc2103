// Package rc carries the stick-side plumbing of the flight core: the
// command array shared between the outer and inner loops and the
// conversions between stick units, tilt angles and body rates. Stick
// decoding itself is an external collaborator; this package consumes
// its output.
package rc

import "github.com/asgard/freya/internal/axis"

// Command channel indices.
const (
	CmdRoll = iota
	CmdPitch
	CmdYaw
	CmdThrottle
	CmdChannelCount
)

// Commands is the per-tick command state. Roll/pitch/yaw are stick
// deflections around center (about +/-500); throttle is the absolute
// channel value. The outer navigation controller may rewrite roll,
// pitch and throttle before the inner loop reads them.
type Commands struct {
	Command [CmdChannelCount]float64

	// Data is the raw receiver channel value, used where the absolute
	// stick position matters (throttle reference capture).
	Data [CmdChannelCount]float64

	// AdjustedThrottle is the last throttle the altitude controller
	// actually commanded, consumed by the land detector.
	AdjustedThrottle float64
}

// ApplyDeadband removes a centered deadband and re-references the
// remaining deflection to its edge.
func ApplyDeadband(value, deadband float64) float64 {
	if value > deadband {
		return value - deadband
	}
	if value < -deadband {
		return value + deadband
	}
	return 0
}

// CommandToAngle converts a stick deflection to a tilt target in
// decidegrees.
func CommandToAngle(stick float64) float64 {
	return stick * 2
}

// AngleToCommand converts a tilt target in decidegrees back to a stick
// deflection. Inverse of CommandToAngle.
func AngleToCommand(angleDecideg float64) float64 {
	return angleDecideg / 2
}

// CommandToRate converts a stick deflection to a body rate target in
// dps using the axis rate setting.
func CommandToRate(stick float64, rate uint8) float64 {
	return stick * (float64(rate) + 20) / 50
}

// RateToCommand converts a body rate target in dps back to a stick
// deflection. Inverse of CommandToRate for any positive rate setting.
func RateToCommand(rateDps float64, rate uint8) float64 {
	return rateDps * 50 / (float64(rate) + 20)
}

// ThrottleStickPosition returns throttle deflection relative to a
// reference, saturated to the usable channel travel.
func ThrottleStickPosition(throttle, reference, min, max float64) float64 {
	return axis.Constrain(throttle, min, max) - reference
}
