package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, NewDefault().Validate())
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, NewDefault().Nav.McHoverThrottle, cfg.Nav.McHoverThrottle)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	profile := `
nav:
  mc_hover_throttle: 1400
  mc_max_bank_angle: 25
rate_profile:
  tpa_rate: 50
  tpa_breakpoint: 1600
`
	require.NoError(t, os.WriteFile(path, []byte(profile), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1400.0, cfg.Nav.McHoverThrottle)
	assert.Equal(t, 25.0, cfg.Nav.McMaxBankAngle)
	assert.Equal(t, uint8(50), cfg.Rates.DynThrPID)
	assert.Equal(t, 1600.0, cfg.Rates.TPABreakpoint)
	// Untouched groups keep their defaults.
	assert.Equal(t, NewDefault().Esc.MinThrottle, cfg.Esc.MinThrottle)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/profile.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsInvertedThrottleRange(t *testing.T) {
	cfg := NewDefault()
	cfg.Esc.MinThrottle = 1900
	cfg.Esc.MaxThrottle = 1100
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsHoverOutsideRange(t *testing.T) {
	cfg := NewDefault()
	cfg.Nav.McHoverThrottle = 2000
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsExcessiveBankAngle(t *testing.T) {
	cfg := NewDefault()
	cfg.Nav.McMaxBankAngle = 80
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownControlMode(t *testing.T) {
	cfg := NewDefault()
	cfg.Nav.UserControlMode = "acrobatic"
	assert.Error(t, cfg.Validate())
}

func TestClampedAltHoldRCZeroWindow(t *testing.T) {
	cfg := NewDefault()
	lo := cfg.Esc.MinThrottle + cfg.RcControls.AltHoldDeadband + 10
	hi := cfg.Esc.MaxThrottle - cfg.RcControls.AltHoldDeadband - 10

	assert.Equal(t, lo, cfg.ClampedAltHoldRCZero(0))
	assert.Equal(t, hi, cfg.ClampedAltHoldRCZero(3000))
	assert.Equal(t, 1500.0, cfg.ClampedAltHoldRCZero(1500))
}

func TestEnvOverrideHoverThrottle(t *testing.T) {
	t.Setenv("FREYA_HOVER_THROTTLE", "1450")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1450.0, cfg.Nav.McHoverThrottle)
}
