// Package config reads pose sensor configuration from YAML.
package config

import (
	"fmt"
	"os"

	"github.com/milosgajdos/go-msf/core"
	"github.com/milosgajdos/go-msf/distort"
	"github.com/milosgajdos/go-msf/measurement/pose"
	"github.com/milosgajdos/go-msf/noise"
	"github.com/milosgajdos/go-msf/state"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// Config is filter configuration.
type Config struct {
	Core CoreConfig   `yaml:"core"`
	Pose []PoseSensor `yaml:"pose"`
}

// CoreConfig configures filter core buffers.
type CoreConfig struct {
	// Capacity is the number of states and per-sensor measurements kept
	Capacity int `yaml:"capacity"`
}

// PoseSensor configures a single pose sensor.
type PoseSensor struct {
	SensorID         int        `yaml:"sensor_id"`
	NoisePosition    float64    `yaml:"n_zp"`
	NoiseOrientation float64    `yaml:"n_zq"`
	WorldSensor      bool       `yaml:"measurement_world_sensor"`
	FixedCovariance  bool       `yaml:"fixed_covariance"`
	Absolute         bool       `yaml:"absolute"`
	FixedStates      []string   `yaml:"fixed_states"`
	PinYawDrift      bool       `yaml:"pin_yaw_drift"`
	Distortion       Distortion `yaml:"distortion"`
}

// Distortion configures synthetic drift of pose readings.
type Distortion struct {
	Enabled        bool      `yaml:"enabled"`
	PositionDrift  []float64 `yaml:"position_drift"`
	YawDrift       float64   `yaml:"yaw_drift"`
	PositionStdDev float64   `yaml:"position_stddev"`
	// Seed seeds position noise; zero seeds from the clock
	Seed uint64 `yaml:"seed"`
}

// Load reads configuration from the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses YAML configuration and validates it.
func Parse(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if c.Core.Capacity == 0 {
		c.Core.Capacity = core.DefaultCapacity
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate returns error if the configuration is invalid.
func (c *Config) Validate() error {
	if c.Core.Capacity < 0 {
		return fmt.Errorf("invalid core capacity: %d", c.Core.Capacity)
	}

	seen := make(map[int]bool)
	for _, p := range c.Pose {
		if seen[p.SensorID] {
			return fmt.Errorf("duplicate pose sensor id: %d", p.SensorID)
		}
		seen[p.SensorID] = true

		if err := p.Validate(); err != nil {
			return fmt.Errorf("pose sensor %d: %w", p.SensorID, err)
		}
	}

	return nil
}

// Validate returns error if the sensor configuration is invalid.
func (p PoseSensor) Validate() error {
	if p.NoisePosition < 0 || p.NoiseOrientation < 0 {
		return fmt.Errorf("invalid noise: n_zp %v, n_zq %v", p.NoisePosition, p.NoiseOrientation)
	}

	if _, err := p.Mask(); err != nil {
		return err
	}

	d := p.Distortion
	if d.PositionDrift != nil && len(d.PositionDrift) != 3 {
		return fmt.Errorf("invalid position drift: %v", d.PositionDrift)
	}
	if d.PositionStdDev < 0 {
		return fmt.Errorf("invalid position stddev: %v", d.PositionStdDev)
	}

	return nil
}

// Mask returns the fixed state mask.
func (p PoseSensor) Mask() (state.Mask, error) {
	blocks := make([]state.Block, len(p.FixedStates))
	for i, name := range p.FixedStates {
		b, err := state.ParseBlock(name)
		if err != nil {
			return 0, err
		}
		blocks[i] = b
	}

	return state.MaskOf(blocks...), nil
}

// PoseConfig returns pose measurement configuration.
// It creates a new distorter if distortion is enabled.
func (p PoseSensor) PoseConfig() (pose.Config, error) {
	mask, err := p.Mask()
	if err != nil {
		return pose.Config{}, err
	}

	cfg := pose.Config{
		NoisePosition:    p.NoisePosition,
		NoiseOrientation: p.NoiseOrientation,
		WorldSensor:      p.WorldSensor,
		FixedCovariance:  p.FixedCovariance,
		Absolute:         p.Absolute,
		SensorID:         p.SensorID,
		FixedStates:      mask,
		PinYawDrift:      p.PinYawDrift,
	}

	if p.Distortion.Enabled {
		d, err := p.Distortion.Drift()
		if err != nil {
			return pose.Config{}, err
		}
		cfg.Distorter = d
	}

	return cfg, nil
}

// Drift returns new drift distorter.
func (d Distortion) Drift() (*distort.Drift, error) {
	var vel r3.Vec
	if len(d.PositionDrift) == 3 {
		vel = r3.Vec{X: d.PositionDrift[0], Y: d.PositionDrift[1], Z: d.PositionDrift[2]}
	}

	if d.PositionStdDev == 0 {
		return distort.NewDrift(vel, d.YawDrift, nil)
	}

	v := d.PositionStdDev * d.PositionStdDev
	cov := mat.NewSymDense(3, []float64{v, 0, 0, 0, v, 0, 0, 0, v})
	n, err := noise.NewGaussianWithSeed(make([]float64, 3), cov, d.Seed)
	if err != nil {
		return nil, err
	}

	return distort.NewDrift(vel, d.YawDrift, n)
}
