// Package flight composes the control pipeline: one Core value owns
// the estimator snapshot, the command state and both controllers, and
// executes the fixed stage order each scheduler tick. Nothing in the
// pipeline is process-global; the scheduler passes the Core wherever
// state is needed.
package flight

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asgard/freya/internal/attitude"
	"github.com/asgard/freya/internal/blackbox"
	"github.com/asgard/freya/internal/config"
	"github.com/asgard/freya/internal/estimator"
	"github.com/asgard/freya/internal/metrics"
	"github.com/asgard/freya/internal/modes"
	"github.com/asgard/freya/internal/nav"
	"github.com/asgard/freya/internal/rc"
	"github.com/asgard/freya/pkg/utils"
)

// blackboxIntervalUs throttles frame publication to 50 Hz regardless
// of the gyro rate.
const blackboxIntervalUs = 20000

// Core is the controller context owned by the scheduler.
type Core struct {
	Cfg  *config.Config
	Est  *estimator.State
	Cmds *rc.Commands

	Inner *attitude.Controller
	Outer *nav.Controller

	navigator nav.Navigator
	sink      blackbox.Sink
	sessionID string

	flightModes       modes.FlightMode
	navFlags          modes.NavFlags
	motorLimitReached bool

	lastFrameUs int64

	met *metrics.Metrics
	log *logrus.Entry
}

// NewCore builds the full pipeline against one navigator and one
// blackbox sink.
func NewCore(cfg *config.Config, navigator nav.Navigator, sink blackbox.Sink, motorCount int) *Core {
	if sink == nil {
		sink = blackbox.NopSink{}
	}

	est := estimator.NewState()
	cmds := &rc.Commands{}
	cmds.Data[rc.CmdThrottle] = cfg.Esc.MinThrottle
	cmds.Command[rc.CmdThrottle] = cfg.Esc.MinThrottle

	c := &Core{
		Cfg:       cfg,
		Est:       est,
		Cmds:      cmds,
		navigator: navigator,
		sink:      sink,
		sessionID: uuid.NewString(),
		met:       metrics.Default(),
		log:       utils.Component("flight"),
	}
	c.Inner = attitude.NewController(cfg, est, cmds, motorCount)
	c.Outer = nav.NewController(cfg, est, cmds, navigator)
	return c
}

// SessionID identifies this controller run in the blackbox stream.
func (c *Core) SessionID() string {
	return c.sessionID
}

// SetFlightModes installs the pilot/system mode flags for subsequent
// ticks.
func (c *Core) SetFlightModes(m modes.FlightMode) {
	if m.Has(modes.Armed) && !c.flightModes.Has(modes.Armed) &&
		c.Cmds.Data[rc.CmdThrottle] < c.Cfg.Rx.Mincheck {
		// Armed at low throttle: guard the first altitude engage.
		c.Outer.PrepareForTakeoff()
	}
	c.flightModes = m
}

// FlightModes returns the active mode flags.
func (c *Core) FlightModes() modes.FlightMode {
	return c.flightModes
}

// SetNavFlags installs the navigation controller flags published by
// the navigation state machine.
func (c *Core) SetNavFlags(f modes.NavFlags) {
	c.navFlags = f
	for _, m := range [...]struct {
		name string
		flag modes.NavFlags
	}{{"alt", modes.NavCtlAlt}, {"pos", modes.NavCtlPos}, {"yaw", modes.NavCtlYaw}, {"emerg", modes.NavCtlEmerg}, {"auto_wp", modes.NavAutoWP}} {
		active := 0.0
		if f.Has(m.flag) {
			active = 1
		}
		c.met.ActiveNavModes.WithLabelValues(m.name).Set(active)
	}
}

// NavFlags returns the active navigation flags.
func (c *Core) NavFlags() modes.NavFlags {
	return c.navFlags
}

// SetMotorLimitReached feeds back the mixer saturation report.
func (c *Core) SetMotorLimitReached(limited bool) {
	c.motorLimitReached = limited
	if limited {
		c.met.MotorSaturation.Inc()
	}
}

// Tick runs one scheduler iteration: outer navigation, land detector,
// inner PID, then publication. dT is the fixed gyro period in seconds.
func (c *Core) Tick(nowUs int64, dT float64) {
	c.met.LoopTicks.Inc()

	start := time.Now()
	c.Outer.ApplyControllers(c.navFlags, nowUs)
	c.Outer.UpdateLandingDetector(nowUs)
	c.met.OuterLoopDuration.Observe(time.Since(start).Seconds())

	headingCtl := c.navigator.HeadingControlState()
	if !c.navFlags.Has(modes.NavCtlYaw) {
		headingCtl = modes.HeadingControlNone
	}
	start = time.Now()
	c.Inner.Run(c.flightModes, headingCtl, c.motorLimitReached, dT)
	c.met.InnerLoopDuration.Observe(time.Since(start).Seconds())

	c.publish(nowUs)
}

// publish records a blackbox frame at the frame rate and refreshes the
// output gauges.
func (c *Core) publish(nowUs int64) {
	out := c.Inner.Outputs()

	for a, name := range [...]string{"roll", "pitch", "yaw"} {
		c.met.AxisCorrection.WithLabelValues(name).Set(out.AxisPID[a])
	}

	if nowUs-c.lastFrameUs < blackboxIntervalUs {
		return
	}
	c.lastFrameUs = nowUs

	frame := &blackbox.Frame{
		SessionID:       c.sessionID,
		TimeUs:          nowUs,
		FlightModeFlags: uint16(c.flightModes),
		NavFlags:        uint8(c.navFlags),
		LandDetected:    c.Outer.LandingDetected(),

		ThrottleCommand:      blackbox.ClampInt16(c.Cmds.Command[rc.CmdThrottle]),
		NavTargetAltitude:    c.Outer.NavTargetAltitude(),
		MagHoldTargetHeading: blackbox.ClampInt16(c.Inner.MagHoldController().TargetHeading()),
	}
	for a := 0; a < 3; a++ {
		frame.AxisP[a] = blackbox.ClampInt16(out.P[a])
		frame.AxisI[a] = blackbox.ClampInt16(out.I[a])
		frame.AxisD[a] = blackbox.ClampInt16(out.D[a])
		frame.AxisSetpoint[a] = blackbox.ClampInt16(out.Setpoint[a])
		frame.AxisOutput[a] = blackbox.ClampInt16(out.AxisPID[a])
		frame.NavDesiredVelocity[a] = blackbox.ClampInt16(c.Outer.DesiredVelocity(a))
	}

	c.sink.Record(frame)
}
