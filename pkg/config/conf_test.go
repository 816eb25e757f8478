package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/gridpulse/pkg/attribution"
	"github.com/mchmarny/gridpulse/pkg/stress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	dir := t.TempDir()

	c1, err := ReadOrCreate(dir)
	require.NoError(t, err)
	require.NotNil(t, c1)
	assert.Equal(t, 1.5, c1.Stress.HighStressThreshold)
	assert.Equal(t, []int{6, 7, 8, 9}, c1.Stress.SeasonMonths)

	c1.Stress.HighStressThreshold = 2
	c1.Stress.BaselineScenario = "High"
	c1.Attribution.MinObservations = 40
	c1.Workers = 3

	require.NoError(t, Save(dir, c1))

	c2, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, c1.Stress, c2.Stress)
	assert.Equal(t, c1.Attribution, c2.Attribution)
	assert.Equal(t, c1.Workers, c2.Workers)
}

func TestDefault_MatchesPolicyDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, stress.DefaultHighStressThreshold, c.Stress.HighStressThreshold)
	assert.Equal(t, stress.DefaultBaselineScenario, c.Stress.BaselineScenario)
	assert.Equal(t, stress.DefaultSeasonMonths, c.Stress.SeasonMonths)
	assert.Equal(t, attribution.DefaultMinObservations, c.Attribution.MinObservations)

	// the shared season default is not aliased
	c.Stress.SeasonMonths[0] = 1
	assert.Equal(t, 6, stress.DefaultSeasonMonths[0])
}

func TestReadOrCreate_PartialFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("stress:\n  high_stress_threshold: 2.5\n"), fileMode))

	c, err := ReadOrCreate(dir)
	require.NoError(t, err)
	assert.Equal(t, 2.5, c.Stress.HighStressThreshold)
	assert.Equal(t, stress.DefaultBaselineScenario, c.Stress.BaselineScenario)
	assert.Equal(t, attribution.DefaultMinObservations, c.Attribution.MinObservations)
}

func TestReadOrCreate_Errors(t *testing.T) {
	_, err := ReadOrCreate("")
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("stress: [not, a, map"), fileMode))
	_, err = ReadOrCreate(dir)
	assert.Error(t, err)
}

func TestSave_Errors(t *testing.T) {
	assert.Error(t, Save("", Default()))
	assert.Error(t, Save(t.TempDir(), nil))
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GRIDPULSE_STRESS_THRESHOLD", "1.25")
	t.Setenv("GRIDPULSE_STRESS_MONTHS", "7,8")
	t.Setenv("GRIDPULSE_ATTRIBUTION_MIN_OBS", "12")
	t.Setenv("GRIDPULSE_WORKERS", "2")

	c, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1.25, c.Stress.HighStressThreshold)
	assert.Equal(t, []int{7, 8}, c.Stress.SeasonMonths)
	assert.Equal(t, 12, c.Attribution.MinObservations)
	assert.Equal(t, 2, c.Workers)
	assert.Equal(t, filepath.Join(dir, defaultDataFile), c.Store.DSN)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("GRIDPULSE_WORKERS", "many")
	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(_ *Config) {}, false},
		{"no season filter", func(c *Config) { c.Stress.SeasonMonths = nil }, false},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"month out of range", func(c *Config) { c.Stress.SeasonMonths = []int{6, 13} }, true},
		{"month zero", func(c *Config) { c.Stress.SeasonMonths = []int{0} }, true},
		{"tiny sample", func(c *Config) { c.Attribution.MinObservations = 2 }, true},
		{"nan threshold", func(c *Config) { c.Stress.HighStressThreshold = math.NaN() }, true},
		{"inf threshold", func(c *Config) { c.Stress.HighStressThreshold = math.Inf(1) }, true},
		{"empty baseline", func(c *Config) { c.Stress.BaselineScenario = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}

func TestGetOrCreateHomeDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	dir, created, err := GetOrCreateHomeDir("gridpulse")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ".gridpulse", filepath.Base(dir))

	_, created, err = GetOrCreateHomeDir(".gridpulse")
	require.NoError(t, err)
	assert.False(t, created)

	_, _, err = GetOrCreateHomeDir("")
	assert.Error(t, err)
}
