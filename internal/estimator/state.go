// Package estimator exposes the fused vehicle state the flight core
// reads each tick. Sensor drivers and fusion live outside this module;
// they publish into a State and raise the freshness flags, the
// controllers consume and acknowledge them. Within one scheduler tick
// the fields are treated as atomically consistent.
package estimator

import (
	"math"

	"github.com/asgard/freya/internal/axis"
)

// State is the estimator output snapshot.
type State struct {
	// Pos is the position in cm, earth frame (X north, Y east, Z up).
	Pos [axis.EarthAxisCount]float64
	// Vel is the velocity in cm/s; VelXY its horizontal magnitude.
	Vel   [axis.EarthAxisCount]float64
	VelXY float64

	// Yaw is the heading in centidegrees with precomputed trig.
	Yaw    float64
	SinYaw float64
	CosYaw float64

	// Surface and SurfaceMin are height above ground in cm when the
	// range sensor is valid, -1 otherwise.
	Surface    float64
	SurfaceMin float64

	// Attitude holds roll/pitch tilt and the heading in decidegrees.
	Attitude [axis.FlightAxisCount]float64

	// GyroRate is the body rotation rate in dps per flight axis.
	GyroRate [axis.FlightAxisCount]float64

	// Sensor validity.
	HasValidPositionSensor bool
	HasValidAltitudeSensor bool
	HasValidSurfaceSensor  bool

	// Freshness handshake: fusion sets these, the consuming controller
	// stage clears them after reading.
	HorizontalPositionDataNew bool
	VerticalPositionDataNew   bool
}

// NewState returns a snapshot with invalid surface readings and the
// yaw trig seeded for heading zero.
func NewState() *State {
	s := &State{
		Surface:    -1,
		SurfaceMin: -1,
	}
	s.SetYaw(0)
	return s
}

// SetYaw stores the heading in centidegrees and refreshes the cached
// trig used by the frame rotations.
func (s *State) SetYaw(yawCentideg float64) {
	s.Yaw = axis.WrapCentideg360(yawCentideg)
	rad := axis.DegToRad(axis.CentidegToDeg(s.Yaw))
	s.SinYaw = math.Sin(rad)
	s.CosYaw = math.Cos(rad)
}

// ConsumeHorizontal acknowledges the horizontal freshness flag.
func (s *State) ConsumeHorizontal() {
	s.HorizontalPositionDataNew = false
}

// ConsumeVertical acknowledges the vertical freshness flag.
func (s *State) ConsumeVertical() {
	s.VerticalPositionDataNew = false
}
