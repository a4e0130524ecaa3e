package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint32(10), cfg.ExecutionIntervalMs)
	assert.Equal(t, 5, cfg.MaxRequestsPerCycle)
	assert.Equal(t, 256, cfg.Register.Holding)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	os.Setenv("STCORE_EXECUTION_INTERVAL_MS", "25")
	defer os.Unsetenv("STCORE_EXECUTION_INTERVAL_MS")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint32(25), cfg.ExecutionIntervalMs)
}

func TestInvalidIntervalFailsValidation(t *testing.T) {
	os.Setenv("STCORE_EXECUTION_INTERVAL_MS", "0")
	defer os.Unsetenv("STCORE_EXECUTION_INTERVAL_MS")

	_, err := Load("")
	assert.Error(t, err)
}
