// Package config loads and validates the YAML run configuration and
// assembles it into a runnable pipeline. Every run gets a run directory
// with logs/, reports/, and plugins/ created up front.
package config

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abmazitov/heox/internal/lattice"
	"github.com/abmazitov/heox/internal/potential"
	"github.com/abmazitov/heox/internal/protocol"
	"github.com/abmazitov/heox/internal/trajectory"
)

// DefaultRunDir is used when the configuration does not name one.
const DefaultRunDir = "heox-run"

// Config models the run configuration file.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Structure  StructureConfig  `yaml:"structure"`
	Calculator CalculatorConfig `yaml:"calculator"`
	Protocols  []ProtocolConfig `yaml:"protocols"`
	Monitor    MonitorConfig    `yaml:"monitor"`
}

// RunConfig groups the pipeline-level settings.
type RunConfig struct {
	// Steps is the number of global pipeline steps.
	Steps int `yaml:"steps"`
	// Dir is the run directory. Empty means DefaultRunDir.
	Dir string `yaml:"dir"`
	// LogInterval logs every n global steps. Zero means every step.
	LogInterval int `yaml:"log_interval"`
	// LogOptions selects the logged columns.
	LogOptions []string `yaml:"log_options"`
	// Trajectory, when true, writes a frame per log tick to
	// <dir>/trajectory.xyz.
	Trajectory bool `yaml:"trajectory"`
	// Seed makes the run reproducible. Zero draws one from the clock.
	Seed int64 `yaml:"seed"`
}

// StructureConfig describes the starting structure: either a bulk build or
// an XYZ file to resume from.
type StructureConfig struct {
	Pattern     string             `yaml:"pattern"`
	A           float64            `yaml:"a"`
	Supercell   [3]int             `yaml:"supercell"`
	Composition map[string]float64 `yaml:"composition"`
	Dopant      string             `yaml:"dopant"`
	DopantFrac  float64            `yaml:"dopant_fraction"`
	// File loads the last frame of an extended-XYZ file instead of building.
	File string `yaml:"file"`
}

// CalculatorConfig selects a calculator by registry name.
type CalculatorConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params"`
}

// ProtocolConfig declares one protocol instance.
type ProtocolConfig struct {
	ID             string         `yaml:"id"`
	Type           string         `yaml:"type"`
	InvokeEvery    int            `yaml:"invoke_every"`
	StepsPerInvoke int            `yaml:"steps_per_invoke"`
	Settings       map[string]any `yaml:"settings"`
}

// Info converts the declaration into protocol identity.
func (pc ProtocolConfig) Info() protocol.Info {
	return protocol.Info{
		ID:             pc.ID,
		Type:           pc.Type,
		InvokeEvery:    pc.InvokeEvery,
		StepsPerInvoke: pc.StepsPerInvoke,
	}
}

// MonitorConfig configures the optional HTTP status endpoint.
type MonitorConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:7777". Empty disables the
	// monitor.
	Addr string `yaml:"addr"`
}

// Load opens and decodes the configuration file, then checks it.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var c Config
	dec := yaml.NewDecoder(bufio.NewReader(f))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := c.Check(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

// Check validates the configuration.
func (c *Config) Check() error {
	if c.Run.Steps <= 0 {
		return fmt.Errorf("run.steps must be positive, got %d", c.Run.Steps)
	}
	if c.Run.LogInterval < 0 {
		return fmt.Errorf("run.log_interval cannot be negative")
	}
	if c.Run.Dir == "" {
		c.Run.Dir = DefaultRunDir
	}
	if c.Run.LogInterval == 0 {
		c.Run.LogInterval = 1
	}

	if c.Structure.File == "" {
		if c.Structure.Pattern == "" {
			return fmt.Errorf("structure needs either a pattern or a file")
		}
		if len(c.Structure.Composition) == 0 {
			return fmt.Errorf("structure.composition is required when building from a pattern")
		}
	} else if c.Structure.Pattern != "" {
		return fmt.Errorf("structure.pattern and structure.file are mutually exclusive")
	}

	if c.Calculator.Name == "" {
		return fmt.Errorf("calculator.name is required")
	}
	if len(c.Protocols) == 0 {
		return fmt.Errorf("at least one protocol is required")
	}
	seen := make(map[string]bool, len(c.Protocols))
	for i, pc := range c.Protocols {
		if pc.ID == "" {
			return fmt.Errorf("protocols[%d].id is required", i)
		}
		if pc.Type == "" {
			return fmt.Errorf("protocol %s: type is required", pc.ID)
		}
		if seen[pc.ID] {
			return fmt.Errorf("protocol id %s declared twice", pc.ID)
		}
		seen[pc.ID] = true
	}
	return nil
}

// SeedOrNow returns the configured seed or a clock-derived one.
func (c *Config) SeedOrNow() int64 {
	if c.Run.Seed != 0 {
		return c.Run.Seed
	}
	return time.Now().UnixNano()
}

// LogsDir returns the run's log directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.Run.Dir, "logs")
}

// ReportsDir returns the run's report directory.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.Run.Dir, "reports")
}

// PluginsDir returns the directory scanned for protocol plugin files.
func (c *Config) PluginsDir() string {
	return filepath.Join(c.Run.Dir, "plugins")
}

// TrajectoryPath returns the trajectory file location.
func (c *Config) TrajectoryPath() string {
	return filepath.Join(c.Run.Dir, "trajectory.xyz")
}

// LogbookPath returns the run log location.
func (c *Config) LogbookPath() string {
	return filepath.Join(c.LogsDir(), "run.log")
}

// InitRunDir creates the run directory structure.
//
// <run>/
// ├── logs/      <- run log
// ├── reports/   <- run reports
// └── plugins/   <- user protocol plugin files (*.go)
func (c *Config) InitRunDir() error {
	for _, dir := range []string{c.LogsDir(), c.ReportsDir(), c.PluginsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}

// BuildStructure realizes the starting structure using rng for the random
// cation assignment.
func (c *Config) BuildStructure(rng *rand.Rand) (*lattice.Structure, error) {
	if c.Structure.File != "" {
		frames, err := trajectory.ReadFile(c.Structure.File)
		if err != nil {
			return nil, fmt.Errorf("config: structure file: %w", err)
		}
		if len(frames) == 0 {
			return nil, fmt.Errorf("config: structure file %s has no frames", c.Structure.File)
		}
		// Resume from where the previous run left off.
		return frames[len(frames)-1].Structure, nil
	}
	spec := lattice.BulkSpec{
		Pattern:        lattice.Pattern(c.Structure.Pattern),
		Composition:    c.Structure.Composition,
		A:              c.Structure.A,
		Supercell:      c.Structure.Supercell,
		Dopant:         c.Structure.Dopant,
		DopantFraction: c.Structure.DopantFrac,
	}
	return lattice.BulkHEO(spec, rng)
}

// BuildCalculator resolves the configured calculator from the registry.
func (c *Config) BuildCalculator(reg *potential.Registry) (potential.Calculator, error) {
	return reg.Resolve(c.Calculator.Name, potential.Params(c.Calculator.Params))
}

// Describe returns a short human-readable summary for reports and logs.
func (c *Config) Describe() string {
	var b strings.Builder
	if c.Structure.File != "" {
		fmt.Fprintf(&b, "structure from %s", c.Structure.File)
	} else {
		fmt.Fprintf(&b, "%s %dx%dx%d", c.Structure.Pattern,
			max1(c.Structure.Supercell[0]), max1(c.Structure.Supercell[1]), max1(c.Structure.Supercell[2]))
	}
	fmt.Fprintf(&b, ", %s calculator, %d protocols, %d steps",
		c.Calculator.Name, len(c.Protocols), c.Run.Steps)
	return b.String()
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
