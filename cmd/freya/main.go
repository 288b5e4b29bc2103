// FREYA - Multirotor Flight Control Core
//
// Runs the cascaded attitude/navigation control pipeline against a
// simulated airframe, exposing the blackbox feed, a status API and
// Prometheus metrics. On real hardware the same Core is driven by the
// firmware scheduler instead of the wall-clock ticker used here.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/asgard/freya/internal/axis"
	"github.com/asgard/freya/internal/blackbox"
	"github.com/asgard/freya/internal/config"
	"github.com/asgard/freya/internal/flight"
	"github.com/asgard/freya/internal/modes"
	"github.com/asgard/freya/internal/rc"
	"github.com/asgard/freya/internal/sim"
)

var (
	// Version info
	version   = "1.0.0"
	buildTime = "unknown"

	// Configuration flags
	httpPort    = flag.Int("http-port", 8094, "HTTP API port")
	metricsPort = flag.Int("metrics-port", 9094, "Metrics port")
	configFile  = flag.String("config", "", "Tuning profile path (YAML)")

	// Loop rates
	loopRateHz = flag.Float64("loop-rate", 1000, "Inner loop rate in Hz")

	// Blackbox
	natsURL = flag.String("nats", "", "NATS URL for the blackbox feed (empty disables)")

	// Scenario
	holdAltitude = flag.Float64("hold-altitude", 500, "Altitude hold target in cm")
)

// Freya is the main application struct
type Freya struct {
	cfg      *config.Config
	core     *flight.Core
	airframe *sim.Airframe
	streamer *blackbox.Streamer
	natsSink *blackbox.NATSPublisher

	httpServer    *http.Server
	metricsServer *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// staticNavigator is the stand-in for the navigation state machine
// when FREYA flies the built-in simulation scenario.
type staticNavigator struct {
	waypointSpeed float64
}

func (n *staticNavigator) ActiveWaypointSpeed() float64 { return n.waypointSpeed }
func (n *staticNavigator) HeadingControlState() modes.HeadingControlState {
	return modes.HeadingControlNone
}
func (n *staticNavigator) FailsafeThrottle() float64 { return 0 }

func main() {
	flag.Parse()

	log.Printf("FREYA flight control core %s (built %s)", version, buildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	freya := &Freya{ctx: ctx, cancel: cancel}

	if err := freya.Initialize(); err != nil {
		log.Fatalf("Failed to initialize FREYA: %v", err)
	}

	freya.Start()

	log.Println("FREYA is operational, press Ctrl+C to shutdown")

	<-sigChan
	log.Println("Shutdown signal received, stopping")

	freya.Shutdown()
}

// Initialize sets up all subsystems
func (f *Freya) Initialize() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	f.cfg = cfg

	f.streamer = blackbox.NewStreamer()
	sinks := blackbox.FanoutSink{f.streamer}

	if *natsURL != "" {
		natsSink, err := blackbox.NewNATSPublisher(*natsURL)
		if err != nil {
			return fmt.Errorf("blackbox NATS sink: %w", err)
		}
		f.natsSink = natsSink
		sinks = append(sinks, natsSink)
	}

	navigator := &staticNavigator{waypointSpeed: cfg.Nav.MaxManualSpeed}
	f.core = flight.NewCore(cfg, navigator, sinks, 4)
	f.airframe = sim.NewAirframe(sim.NewDefaultConfig(), cfg)

	// Hover scenario: armed, self-leveling, altitude + position hold.
	f.core.Cmds.Data[rc.CmdThrottle] = cfg.Rx.Midrc
	f.core.SetFlightModes(modes.Armed | modes.Angle | modes.SmallAngle)
	f.core.SetNavFlags(modes.NavCtlAlt | modes.NavCtlPos)
	f.core.Outer.ResetAltitudeHold()
	f.core.Outer.ResetPositionHold()
	f.core.Outer.SetDesiredPosition(axis.Z, *holdAltitude)

	return nil
}

// Start begins the HTTP servers and the control loop
func (f *Freya) Start() {
	go func() {
		if err := f.streamer.Run(f.ctx); err != nil && err != context.Canceled {
			log.Printf("Blackbox streamer error: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/status", f.handleStatus)
	mux.HandleFunc("/ws/blackbox", f.streamer.HandleWebSocket)
	f.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", *httpPort),
		Handler: mux,
	}
	go func() {
		if err := f.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	f.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", *metricsPort),
		Handler: metricsMux,
	}
	go func() {
		if err := f.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Metrics server error: %v", err)
		}
	}()

	go f.runControlLoop()
}

// runControlLoop drives the scheduler tick from a wall-clock ticker.
func (f *Freya) runControlLoop() {
	period := time.Duration(float64(time.Second) / *loopRateHz)
	dT := period.Seconds()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var nowUs int64

	for {
		select {
		case <-f.ctx.Done():
			return
		case <-ticker.C:
			nowUs += period.Microseconds()
			f.airframe.Step(nowUs, dT, f.core.Cmds, f.core.Est)
			f.core.Tick(nowUs, dT)
		}
	}
}

// handleStatus reports the live controller state as JSON.
func (f *Freya) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := f.core.Inner.Outputs()
	clients, framesSent, _ := f.streamer.Stats()

	status := map[string]interface{}{
		"version":        version,
		"armed":          f.core.FlightModes().Has(modes.Armed),
		"nav_flags":      uint8(f.core.NavFlags()),
		"land_detected":  f.core.Outer.LandingDetected(),
		"altitude_cm":    f.core.Est.Pos[axis.Z],
		"climb_rate_cms": f.core.Est.Vel[axis.Z],
		"throttle":       f.core.Cmds.Command[rc.CmdThrottle],
		"axis_pid":       out.AxisPID,
		"blackbox": map[string]interface{}{
			"clients":     clients,
			"frames_sent": framesSent,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Shutdown stops all subsystems
func (f *Freya) Shutdown() {
	f.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if f.httpServer != nil {
		f.httpServer.Shutdown(shutdownCtx)
	}
	if f.metricsServer != nil {
		f.metricsServer.Shutdown(shutdownCtx)
	}
	if f.natsSink != nil {
		f.natsSink.Close()
	}

	log.Println("FREYA shutdown complete")
}
