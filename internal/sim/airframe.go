// Package sim provides a point-mass multirotor model that closes the
// loop on the flight core without hardware: the controller's tilt and
// throttle commands drive a simple rigid translation model whose state
// feeds back into the estimator snapshot.
package sim

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/asgard/freya/internal/axis"
	"github.com/asgard/freya/internal/config"
	"github.com/asgard/freya/internal/estimator"
	"github.com/asgard/freya/internal/nav"
	"github.com/asgard/freya/internal/rc"
	"github.com/asgard/freya/pkg/utils"
)

// Config shapes the simulated airframe and its sensor cadence.
type Config struct {
	// TiltTimeConstant is the first-order lag between commanded and
	// actual tilt, seconds.
	TiltTimeConstant float64

	// HorizontalDrag is a linear drag coefficient, 1/s.
	HorizontalDrag float64

	// Wind is a constant earth-frame wind velocity, cm/s.
	Wind [2]float64

	// BaroRateHz and GPSRateHz gate the freshness flags.
	BaroRateHz float64
	GPSRateHz  float64
}

// NewDefaultConfig returns a small-quad-ish model.
func NewDefaultConfig() Config {
	return Config{
		TiltTimeConstant: 0.15,
		HorizontalDrag:   0.2,
		BaroRateHz:       25,
		GPSRateHz:        10,
	}
}

// Airframe is the simulated vehicle.
type Airframe struct {
	cfg  Config
	tune *config.Config

	pos *mat.VecDense // cm, earth frame
	vel *mat.VecDense // cm/s

	attitude [axis.FlightAxisCount]float64 // decidegrees
	gyro     [axis.FlightAxisCount]float64 // dps

	lastBaroUs int64
	lastGPSUs  int64

	log *logrus.Entry
}

// NewAirframe builds a grounded airframe at the origin.
func NewAirframe(cfg Config, tune *config.Config) *Airframe {
	return &Airframe{
		cfg:  cfg,
		tune: tune,
		pos:  mat.NewVecDense(3, nil),
		vel:  mat.NewVecDense(3, nil),
		log:  utils.Component("sim"),
	}
}

// SetPosition teleports the airframe, cm.
func (a *Airframe) SetPosition(x, y, z float64) {
	a.pos.SetVec(0, x)
	a.pos.SetVec(1, y)
	a.pos.SetVec(2, z)
}

// Step advances the model by dT seconds using the commands in cmds and
// publishes the resulting state into est at the configured sensor
// cadences.
func (a *Airframe) Step(nowUs int64, dT float64, cmds *rc.Commands, est *estimator.State) {
	// Tilt follows the commanded angle with a first-order lag.
	for _, ax := range [...]int{axis.Roll, axis.Pitch} {
		target := rc.CommandToAngle(cmds.Command[ax])
		prev := a.attitude[ax]
		a.attitude[ax] += dT / (a.cfg.TiltTimeConstant + dT) * (target - a.attitude[ax])
		a.gyro[ax] = (a.attitude[ax] - prev) / 10.0 / dT
	}

	// Thrust maps linearly so that hover throttle cancels gravity.
	throttle := cmds.Command[rc.CmdThrottle]
	hover := a.tune.Nav.McHoverThrottle
	span := hover - a.tune.Esc.MinThrottle
	thrust := nav.GravityCmss
	if span > 0 {
		thrust = nav.GravityCmss * (throttle - a.tune.Esc.MinThrottle) / span
	}

	pitchRad := axis.DecidegToRad(a.attitude[axis.Pitch])
	rollRad := axis.DecidegToRad(a.attitude[axis.Roll])
	yawRad := axis.DecidegToRad(a.attitude[axis.Yaw])

	// Small-angle horizontal force from tilt, rotated by heading.
	accFwd := thrust * math.Tan(pitchRad)
	accRight := thrust * math.Tan(rollRad)
	accN := accFwd*math.Cos(yawRad) - accRight*math.Sin(yawRad)
	accE := accFwd*math.Sin(yawRad) + accRight*math.Cos(yawRad)

	accel := mat.NewVecDense(3, []float64{
		accN - a.cfg.HorizontalDrag*(a.vel.AtVec(0)-a.cfg.Wind[0]),
		accE - a.cfg.HorizontalDrag*(a.vel.AtVec(1)-a.cfg.Wind[1]),
		thrust - nav.GravityCmss,
	})

	a.vel.AddScaledVec(a.vel, dT, accel)
	a.pos.AddScaledVec(a.pos, dT, a.vel)

	// Ground contact.
	if a.pos.AtVec(2) < 0 {
		a.pos.SetVec(2, 0)
		if a.vel.AtVec(2) < 0 {
			a.vel.SetVec(2, 0)
		}
	}

	a.publish(nowUs, est)
}

// publish copies the model state into the estimator snapshot and
// raises the freshness flags at sensor cadence.
func (a *Airframe) publish(nowUs int64, est *estimator.State) {
	for i := 0; i < 3; i++ {
		est.Pos[i] = a.pos.AtVec(i)
		est.Vel[i] = a.vel.AtVec(i)
	}
	est.VelXY = math.Hypot(a.vel.AtVec(0), a.vel.AtVec(1))
	est.Attitude = a.attitude
	est.GyroRate = a.gyro
	est.SetYaw(a.attitude[axis.Yaw] * 10)

	est.HasValidAltitudeSensor = true
	est.HasValidPositionSensor = true

	if a.lastBaroUs == 0 || nowUs-a.lastBaroUs >= axis.HzToUS(a.cfg.BaroRateHz) {
		est.VerticalPositionDataNew = true
		a.lastBaroUs = nowUs
	}
	if a.lastGPSUs == 0 || nowUs-a.lastGPSUs >= axis.HzToUS(a.cfg.GPSRateHz) {
		est.HorizontalPositionDataNew = true
		a.lastGPSUs = nowUs
	}
}
