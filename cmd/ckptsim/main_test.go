package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsDefaults(t *testing.T) {
	o := parseFlags(nil)
	assert.Equal(t, 1e12, o.bandwidth)
	assert.Equal(t, 86400.0, o.mtbfSeconds)
	assert.Equal(t, uint(1), o.replications)
	assert.Equal(t, -1.0, o.fixedCkpt)
	assert.False(t, o.disableCoop)
	assert.Equal(t, "", o.configPath)
}

func TestParseFlagsOverridesAndDisables(t *testing.T) {
	o := parseFlags([]string{"-s", "42", "-b", "2e9", "-n", "3", "-C", "-H", "-config", "machine.toml"})
	assert.Equal(t, uint64(42), o.seed)
	assert.Equal(t, 2e9, o.bandwidth)
	assert.Equal(t, uint(3), o.replications)
	assert.True(t, o.disableCoop)
	assert.True(t, o.suppressHeader)
	assert.Equal(t, "machine.toml", o.configPath)
}

func TestBuildConfigDemoUsesCieloAppClasses(t *testing.T) {
	o := parseFlags(nil)
	cfg, minRun, err := buildConfig(o)
	require.NoError(t, err)
	assert.Len(t, cfg.AppClasses, 4)
	assert.Equal(t, "cielo", cfg.System.Name)
	assert.Equal(t, 1e12, cfg.System.Bandwidth)
	assert.Greater(t, minRun, 0.0)
}

func TestBuildConfigFlagsOverrideDemoBandwidthAndMTBF(t *testing.T) {
	o := parseFlags([]string{"-b", "5e11", "-m", "12345"})
	cfg, _, err := buildConfig(o)
	require.NoError(t, err)
	assert.Equal(t, 5e11, cfg.System.Bandwidth)
	assert.Equal(t, 12345.0, cfg.System.MTBFSeconds)
}

func TestModelRunsHonoursDisableFlags(t *testing.T) {
	o := parseFlags([]string{"-C", "-S"})
	runs := modelRuns(o)
	byName := map[string]modelRun{}
	for _, r := range runs {
		byName[r.name] = r
	}
	assert.True(t, byName["Coop Interference"].disabled)
	assert.True(t, byName["Simple Interference"].disabled)
	assert.False(t, byName["FCFS Interference"].disabled)
	assert.False(t, byName["baseline nofaultnoint"].faults)
	assert.True(t, byName["FCFS Interference"].faults)
}

func TestBoolToInt(t *testing.T) {
	assert.Equal(t, 1, boolToInt(true))
	assert.Equal(t, 0, boolToInt(false))
}
