// Package config holds the tuning surface of the flight core: the PID
// profile, stick rate shaping, receiver calibration, throttle range
// and navigation limits. Profiles load from YAML with deploy-time
// overrides taken from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/asgard/freya/pkg/utils"
)

// PID profile slots. The first three are the rate axes, the rest are
// the navigation and leveling loops.
const (
	PIDRoll = iota
	PIDPitch
	PIDYaw
	PIDAlt   // altitude position -> climb rate
	PIDPos   // horizontal position -> velocity
	PIDPosR  // horizontal velocity -> acceleration
	PIDNavR  // reserved (fixed-wing nav rate)
	PIDLevel // self-leveling strength / horizon shaping / target LPF
	PIDMag   // heading hold
	PIDVel   // climb rate -> throttle
	PIDItemCount
)

// UserControlMode selects how pilot sticks interact with an active
// position hold.
type UserControlMode string

const (
	// UserControlAtti bypasses the position controller while the pilot
	// deflects the sticks; the angle loop flies raw stick input.
	UserControlAtti UserControlMode = "atti"
	// UserControlCruise converts stick deflection into a velocity
	// command fed through the position controller.
	UserControlCruise UserControlMode = "cruise"
)

// PIDProfile mirrors the firmware 8-bit gain table plus the filter and
// limit knobs of the inner loop.
type PIDProfile struct {
	P8 [PIDItemCount]uint8 `yaml:"p"`
	I8 [PIDItemCount]uint8 `yaml:"i"`
	D8 [PIDItemCount]uint8 `yaml:"d"`

	DtermLpfHz float64 `yaml:"dterm_lpf_hz"`
	YawLpfHz   float64 `yaml:"yaw_lpf_hz"`
	YawPLimit  float64 `yaml:"yaw_p_limit"`

	// MaxAngleInclination is the roll/pitch tilt limit in decidegrees.
	MaxAngleInclination [2]float64 `yaml:"max_angle_inclination"`

	// MagHoldRateLimit caps the yaw rate commanded by heading hold, dps.
	MagHoldRateLimit float64 `yaml:"mag_hold_rate_limit"`
}

// ControlRateConfig shapes stick response.
type ControlRateConfig struct {
	Rates         [3]uint8 `yaml:"rates"`
	DynThrPID     uint8    `yaml:"tpa_rate"`
	TPABreakpoint float64  `yaml:"tpa_breakpoint"`
}

// RxConfig is the receiver calibration consumed by the core.
type RxConfig struct {
	Mincheck float64 `yaml:"mincheck"`
	Maxcheck float64 `yaml:"maxcheck"`
	Midrc    float64 `yaml:"midrc"`
}

// EscAndServoConfig is the usable throttle range.
type EscAndServoConfig struct {
	MinThrottle float64 `yaml:"minthrottle"`
	MaxThrottle float64 `yaml:"maxthrottle"`
}

// RcControlsConfig holds the stick deadbands.
type RcControlsConfig struct {
	AltHoldDeadband    float64 `yaml:"alt_hold_deadband"`
	PosHoldDeadband    float64 `yaml:"pos_hold_deadband"`
	Deadband3dThrottle float64 `yaml:"deadband3d_throttle"`
}

// NavConfig bounds the outer navigation controller.
type NavConfig struct {
	McHoverThrottle  float64 `yaml:"mc_hover_throttle"`
	McMinFlyThrottle float64 `yaml:"mc_min_fly_throttle"`

	// McMaxBankAngle is the tilt limit in degrees.
	McMaxBankAngle float64 `yaml:"mc_max_bank_angle"`

	MaxManualClimbRate float64 `yaml:"max_manual_climb_rate"`
	MaxManualSpeed     float64 `yaml:"max_manual_speed"`
	EmergDescentRate   float64 `yaml:"emerg_descent_rate"`

	UseThrMidForAltHold bool            `yaml:"use_thr_mid_for_althold"`
	UserControlMode     UserControlMode `yaml:"user_control_mode"`

	// PosDecelerationTime scales the predicted stopping point when the
	// pilot releases the sticks in cruise, seconds.
	PosDecelerationTime float64 `yaml:"pos_deceleration_time"`

	// PosExpo shapes the approach velocity profile near a hold target.
	PosExpo float64 `yaml:"pos_expo"`
}

// Config is the full tuning surface of one airframe.
type Config struct {
	PID        PIDProfile        `yaml:"pid_profile"`
	Rates      ControlRateConfig `yaml:"rate_profile"`
	Rx         RxConfig          `yaml:"rx"`
	Esc        EscAndServoConfig `yaml:"esc"`
	RcControls RcControlsConfig  `yaml:"rc_controls"`
	Nav        NavConfig         `yaml:"nav"`
}

// NewDefault returns the stock multirotor tune.
func NewDefault() *Config {
	cfg := &Config{
		PID: PIDProfile{
			P8: [PIDItemCount]uint8{PIDRoll: 40, PIDPitch: 40, PIDYaw: 85, PIDAlt: 100, PIDPos: 65, PIDPosR: 180, PIDNavR: 0, PIDLevel: 120, PIDMag: 60, PIDVel: 100},
			I8: [PIDItemCount]uint8{PIDRoll: 30, PIDPitch: 30, PIDYaw: 45, PIDAlt: 0, PIDPos: 0, PIDPosR: 15, PIDNavR: 0, PIDLevel: 7, PIDMag: 0, PIDVel: 50},
			D8: [PIDItemCount]uint8{PIDRoll: 23, PIDPitch: 23, PIDYaw: 0, PIDAlt: 0, PIDPos: 0, PIDPosR: 100, PIDNavR: 0, PIDLevel: 75, PIDMag: 0, PIDVel: 10},

			DtermLpfHz:          40,
			YawLpfHz:            30,
			YawPLimit:           300,
			MaxAngleInclination: [2]float64{300, 300},
			MagHoldRateLimit:    40,
		},
		Rates: ControlRateConfig{
			Rates:         [3]uint8{70, 70, 70},
			DynThrPID:     0,
			TPABreakpoint: 1500,
		},
		Rx: RxConfig{
			Mincheck: 1100,
			Maxcheck: 1900,
			Midrc:    1500,
		},
		Esc: EscAndServoConfig{
			MinThrottle: 1150,
			MaxThrottle: 1850,
		},
		RcControls: RcControlsConfig{
			AltHoldDeadband:    50,
			PosHoldDeadband:    20,
			Deadband3dThrottle: 50,
		},
		Nav: NavConfig{
			McHoverThrottle:     1500,
			McMinFlyThrottle:    1200,
			McMaxBankAngle:      30,
			MaxManualClimbRate:  200,
			MaxManualSpeed:      500,
			EmergDescentRate:    500,
			UseThrMidForAltHold: false,
			UserControlMode:     UserControlAtti,
			PosDecelerationTime: 1.2,
			PosExpo:             0.1,
		},
	}
	return cfg
}

// Load reads a YAML profile, falling back to defaults when path is
// empty, then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := NewDefault()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployments nudge the hover throttle, the
// bank-angle limit and the emergency descent rate without editing the
// profile. A .env file is honored when present.
func applyEnvOverrides(cfg *Config) {
	if err := godotenv.Load(); err == nil {
		utils.Component("config").Debug("loaded overrides from .env")
	}

	if v, ok := envFloat("FREYA_HOVER_THROTTLE"); ok {
		cfg.Nav.McHoverThrottle = v
	}
	if v, ok := envFloat("FREYA_MAX_BANK_ANGLE"); ok {
		cfg.Nav.McMaxBankAngle = v
	}
	if v, ok := envFloat("FREYA_EMERG_DESCENT_RATE"); ok {
		cfg.Nav.EmergDescentRate = v
	}
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		utils.Component("config").Warnf("ignoring %s=%q: %v", key, raw, err)
		return 0, false
	}
	return v, true
}

// Validate rejects profiles that would violate the controller
// invariants before they reach the control path.
func (c *Config) Validate() error {
	if c.Esc.MinThrottle >= c.Esc.MaxThrottle {
		return fmt.Errorf("esc: minthrottle %v must be below maxthrottle %v", c.Esc.MinThrottle, c.Esc.MaxThrottle)
	}
	if c.Nav.McHoverThrottle <= c.Esc.MinThrottle || c.Nav.McHoverThrottle >= c.Esc.MaxThrottle {
		return fmt.Errorf("nav: mc_hover_throttle %v outside throttle range [%v, %v]",
			c.Nav.McHoverThrottle, c.Esc.MinThrottle, c.Esc.MaxThrottle)
	}
	if c.Rx.Mincheck >= c.Rx.Maxcheck {
		return fmt.Errorf("rx: mincheck %v must be below maxcheck %v", c.Rx.Mincheck, c.Rx.Maxcheck)
	}
	// The alt-hold stick zero must keep symmetric pilot authority.
	lo := c.Esc.MinThrottle + c.RcControls.AltHoldDeadband + 10
	hi := c.Esc.MaxThrottle - c.RcControls.AltHoldDeadband - 10
	if lo >= hi {
		return fmt.Errorf("rc_controls: alt_hold_deadband %v leaves no throttle authority", c.RcControls.AltHoldDeadband)
	}
	if c.Nav.McMaxBankAngle <= 0 || c.Nav.McMaxBankAngle > 45 {
		return fmt.Errorf("nav: mc_max_bank_angle %v outside (0, 45]", c.Nav.McMaxBankAngle)
	}
	switch c.Nav.UserControlMode {
	case UserControlAtti, UserControlCruise:
	default:
		return fmt.Errorf("nav: unknown user_control_mode %q", c.Nav.UserControlMode)
	}
	return nil
}

// ClampedAltHoldRCZero bounds a candidate alt-hold stick zero into the
// window that preserves symmetric authority.
func (c *Config) ClampedAltHoldRCZero(candidate float64) float64 {
	lo := c.Esc.MinThrottle + c.RcControls.AltHoldDeadband + 10
	hi := c.Esc.MaxThrottle - c.RcControls.AltHoldDeadband - 10
	if candidate < lo {
		return lo
	}
	if candidate > hi {
		return hi
	}
	return candidate
}
