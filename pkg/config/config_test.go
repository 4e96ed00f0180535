package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-cd/pkg/logging"
	"github.com/dd0wney/cluso-cd/pkg/network"
	"github.com/dd0wney/cluso-cd/pkg/temperature"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Enabled(ProcessDiffusion))
	assert.False(t, cfg.Enabled(ProcessAttenuation))
	assert.Equal(t, logging.InfoLevel, cfg.Level())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
network:
  max_he: 6
  max_mixed: 8
  dissociation: false
  grouping_min: 3
  grouping_width_he: 2
  grouping_width_v: 2
grid:
  nx: 40
  regular: false
processes: [diff, modifiedTM, attenuation, reaction]
initial_v_conc: 0.01
void_portion: 20
checkpoint:
  driver: file
  dir: /tmp/ck
partitions: 4
log_level: debug
`))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Network.MaxHe)
	assert.Equal(t, 4, cfg.Network.MaxV, "unset fields keep their default")
	assert.False(t, cfg.Network.Dissociation)
	assert.Equal(t, 40, cfg.Grid.Nx)
	assert.Equal(t, 0.25, cfg.Grid.Hx)
	assert.False(t, cfg.Grid.Regular)
	assert.Equal(t, []string{"diff", "modifiedTM", "attenuation", "reaction"}, cfg.Processes)
	assert.False(t, cfg.Enabled(ProcessAdvection))
	assert.Equal(t, 4, cfg.Partitions)
	assert.Equal(t, logging.DebugLevel, cfg.Level())

	limits, err := network.ParseLimits(cfg.Properties())
	require.NoError(t, err)
	assert.Equal(t, network.Limits{
		MaxHe: 6, MaxV: 4, MaxI: 5, MaxMixed: 8,
		GroupingMin: 3, GroupingWidthHe: 2, GroupingWidthV: 2,
	}, limits)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"grid too small", "grid: {nx: 2}", "Grid.Nx"},
		{"negative step", "grid: {hx: -1}", "Grid.Hx"},
		{"unknown process", "processes: [diff, melting]", "melting"},
		{"no partitions", "partitions: 0", "Partitions"},
		{"void portion", "void_portion: 100", "VoidPortion"},
		{"log level", "log_level: loud", "LogLevel"},
		{"checkpoint driver", "checkpoint: {driver: tape}", "Driver"},
		{"file without dir", "checkpoint: {driver: file}", "checkpoint.dir"},
		{"s3 without bucket", "checkpoint: {driver: s3}", "checkpoint.s3.bucket"},
		{"attenuation alone", "processes: [attenuation]", "attenuation needs modifiedTM"},
		{"empty network", "network: {max_he: 0, max_v: 0, max_i: 0, max_mixed: 0}", "no species"},
		{"cold", "temperature: {constant: 0}", "temperature"},
		{"bad yaml", "grid: [", "invalid configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("partitions: 2\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Partitions)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestTemperatureHandler(t *testing.T) {
	cfg := Default()
	h, err := cfg.TemperatureHandler()
	require.NoError(t, err)
	assert.Equal(t, temperature.Constant(1000), h)

	cfg.Temperature.Gradient = -5
	h, err = cfg.TemperatureHandler()
	require.NoError(t, err)
	assert.Equal(t, 950.0, h.Temperature([3]float64{10, 0, 0}, 0))

	path := filepath.Join(t.TempDir(), "temp.dat")
	require.NoError(t, os.WriteFile(path, []byte("0 500\n10 1500\n"), 0o644))
	cfg.Temperature.ProfileFile = path
	h, err = cfg.TemperatureHandler()
	require.NoError(t, err)
	assert.InDelta(t, 1000, h.Temperature([3]float64{}, 5), 1e-12)

	cfg.Temperature.ProfileFile = filepath.Join(t.TempDir(), "missing")
	_, err = cfg.TemperatureHandler()
	assert.Error(t, err)
}

func TestFluxProfile(t *testing.T) {
	cfg := Default()
	points, err := cfg.FluxProfile()
	require.NoError(t, err)
	assert.Nil(t, points)

	path := filepath.Join(t.TempDir(), "flux.dat")
	require.NoError(t, os.WriteFile(path, []byte("# time amplitude\n5 2e4\n0 1e4\n"), 0o644))
	cfg.Flux.ProfileFile = path
	points, err = cfg.FluxProfile()
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 0.0, points[0].Time)
	assert.Equal(t, 2e4, points[1].Amplitude)
}
