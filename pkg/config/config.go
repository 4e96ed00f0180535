// Package config loads and validates the YAML run configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-cd/pkg/checkpoint"
	"github.com/dd0wney/cluso-cd/pkg/logging"
	"github.com/dd0wney/cluso-cd/pkg/network"
	"github.com/dd0wney/cluso-cd/pkg/process"
	"github.com/dd0wney/cluso-cd/pkg/temperature"
)

// Process names accepted in Config.Processes.
const (
	ProcessDiffusion    = "diff"
	ProcessAdvection    = "advec"
	ProcessTrapMutation = "modifiedTM"
	ProcessAttenuation  = "attenuation"
	ProcessBursting     = "bursting"
	ProcessReaction     = "reaction"
)

// Checkpoint drivers.
const (
	CheckpointNone   = "none"
	CheckpointMemory = "memory"
	CheckpointFile   = "file"
	CheckpointS3     = "s3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is one run. InitialVConc seeds V1 at every interior point and
// VoidPortion is the percentage of the grid above the surface.
type Config struct {
	Network      NetworkConfig     `yaml:"network"`
	Grid         GridConfig        `yaml:"grid"`
	Temperature  TemperatureConfig `yaml:"temperature"`
	Flux         FluxConfig        `yaml:"flux"`
	Processes    []string          `yaml:"processes" validate:"dive,oneof=diff advec modifiedTM attenuation bursting reaction"`
	InitialVConc float64           `yaml:"initial_v_conc" validate:"gte=0"`
	VoidPortion  float64           `yaml:"void_portion" validate:"gte=0,lt=100"`
	Checkpoint   CheckpointConfig  `yaml:"checkpoint"`
	Partitions   int               `yaml:"partitions" validate:"gte=1"`
	LogLevel     string            `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

type NetworkConfig struct {
	MaxHe           int  `yaml:"max_he" validate:"gte=0"`
	MaxV            int  `yaml:"max_v" validate:"gte=0"`
	MaxI            int  `yaml:"max_i" validate:"gte=0"`
	MaxMixed        int  `yaml:"max_mixed" validate:"gte=0"`
	Dissociation    bool `yaml:"dissociation"`
	GroupingMin     int  `yaml:"grouping_min" validate:"gte=0"`
	GroupingWidthHe int  `yaml:"grouping_width_he" validate:"gte=1"`
	GroupingWidthV  int  `yaml:"grouping_width_v" validate:"gte=1"`
}

// GridConfig is the spatial grid. Regular is false for a grid refined towards
// the surface.
type GridConfig struct {
	Nx      int     `yaml:"nx" validate:"gte=3"`
	Hx      float64 `yaml:"hx" validate:"gt=0"`
	Regular bool    `yaml:"regular"`
}

// TemperatureConfig picks the temperature field. Gradient is in K/nm and is
// added to Constant.
type TemperatureConfig struct {
	Constant    float64 `yaml:"constant" validate:"gte=0"`
	Gradient    float64 `yaml:"gradient"`
	ProfileFile string  `yaml:"profile_file"`
}

type FluxConfig struct {
	Amplitude   float64 `yaml:"amplitude" validate:"gte=0"`
	ProfileFile string  `yaml:"profile_file"`
}

type CheckpointConfig struct {
	Driver string              `yaml:"driver" validate:"omitempty,oneof=none memory file s3"`
	Dir    string              `yaml:"dir"`
	S3     checkpoint.S3Config `yaml:"s3"`
}

// Default returns the configuration used when a file leaves a field out.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			MaxHe:           8,
			MaxV:            4,
			MaxI:            5,
			MaxMixed:        10,
			Dissociation:    true,
			GroupingWidthHe: 1,
			GroupingWidthV:  1,
		},
		Grid:        GridConfig{Nx: 20, Hx: 0.25, Regular: true},
		Temperature: TemperatureConfig{Constant: 1000},
		Flux:        FluxConfig{Amplitude: 4e7},
		Processes: []string{
			ProcessDiffusion, ProcessAdvection, ProcessTrapMutation,
			ProcessBursting, ProcessReaction,
		},
		Checkpoint: CheckpointConfig{Driver: CheckpointNone},
		Partitions: 1,
		LogLevel:   "info",
	}
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges and the rules that span several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, formatValidationError(err))
	}
	err := newChecker("config").
		Custom("network", func() error {
			_, err := network.ParseLimits(c.Properties())
			return err
		}).
		Require("temperature", c.Temperature.ProfileFile != "" || c.Temperature.Constant > 0,
			"needs a positive constant or a profile file").
		When(c.Checkpoint.Driver == CheckpointFile, func(ch *checker) {
			ch.Require("checkpoint.dir", c.Checkpoint.Dir != "", "required for the file driver")
		}).
		When(c.Checkpoint.Driver == CheckpointS3, func(ch *checker) {
			ch.Require("checkpoint.s3.bucket", c.Checkpoint.S3.Bucket != "", "required for the s3 driver")
		}).
		Require("processes", !c.Enabled(ProcessAttenuation) || c.Enabled(ProcessTrapMutation),
			"attenuation needs modifiedTM").
		Validate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Enabled reports whether a process is switched on.
func (c *Config) Enabled(process string) bool {
	return slices.Contains(c.Processes, process)
}

// Properties converts the network section into the network's property map.
func (c *Config) Properties() network.Properties {
	n := c.Network
	p := network.Properties{
		network.PropMaxHe:        strconv.Itoa(n.MaxHe),
		network.PropMaxV:         strconv.Itoa(n.MaxV),
		network.PropMaxI:         strconv.Itoa(n.MaxI),
		network.PropMaxMixed:     strconv.Itoa(n.MaxMixed),
		network.PropDissociation: strconv.FormatBool(n.Dissociation),
		network.PropGroupingHe:   strconv.Itoa(n.GroupingWidthHe),
		network.PropGroupingV:    strconv.Itoa(n.GroupingWidthV),
	}
	if n.GroupingMin > 0 {
		p[network.PropGroupingMin] = strconv.Itoa(n.GroupingMin)
	}
	return p
}

// Level is the configured log level.
func (c *Config) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

// TemperatureHandler builds the temperature field: a time profile when a file
// is given, a depth gradient when Gradient is set, a constant otherwise.
func (c *Config) TemperatureHandler() (temperature.Handler, error) {
	t := c.Temperature
	switch {
	case t.ProfileFile != "":
		p, err := temperature.LoadProfile(t.ProfileFile)
		if err != nil {
			return nil, fmt.Errorf("temperature profile: %w", err)
		}
		return p, nil
	case t.Gradient != 0:
		return temperature.Gradient{Surface: t.Constant, Slope: t.Gradient}, nil
	default:
		return temperature.Constant(t.Constant), nil
	}
}

// FluxProfile reads the optional flux amplitude history.
func (c *Config) FluxProfile() ([]process.TimePoint, error) {
	if c.Flux.ProfileFile == "" {
		return nil, nil
	}
	p, err := temperature.LoadProfile(c.Flux.ProfileFile)
	if err != nil {
		return nil, fmt.Errorf("flux profile: %w", err)
	}
	var points []process.TimePoint
	for _, pt := range p.Points() {
		points = append(points, process.TimePoint{Time: pt.Time, Amplitude: pt.Value})
	}
	return points, nil
}
