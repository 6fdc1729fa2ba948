// Package config loads the shiftwatch YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/fentz26/shiftwatch/internal/schedule"
)

// Config is the top-level configuration. It is read once at start; changes
// need a restart.
type Config struct {
	// Listen is the HTTP listen address of the daemon.
	Listen string `yaml:"listen"`
	// DB is the SQLite database path.
	DB string `yaml:"db"`

	Logging    LoggingConfig    `yaml:"logging"`
	Tolerances TolerancesConfig `yaml:"tolerances"`
	Weekdays   WeekdaysConfig   `yaml:"weekdays"`
	// Blocks is the ordered block catalog.
	Blocks    []BlockConfig   `yaml:"blocks"`
	Sweeper   SweeperConfig   `yaml:"sweeper"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is console or json.
	Format string `yaml:"format"`
}

// TolerancesConfig holds Go duration strings. The after-start tolerance is
// always before_start plus 59 seconds.
type TolerancesConfig struct {
	BeforeStart string `yaml:"before_start"`
	AfterEnd    string `yaml:"after_end"`
}

// WeekdaysConfig is the schedule alphabet, Monday first.
type WeekdaysConfig struct {
	Letters string   `yaml:"letters"`
	Labels  []string `yaml:"labels"`
}

// BlockConfig is one catalog entry with "HH:MM" bounds.
type BlockConfig struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// SweeperConfig controls the unclosed-shift sweep.
type SweeperConfig struct {
	Enabled bool `yaml:"enabled"`
	// Spec is a five-field cron expression.
	Spec string `yaml:"spec"`
}

// RateLimitConfig bounds mutating API requests.
type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

const (
	defaultListen      = "127.0.0.1:7466"
	defaultSweeperSpec = "30 20 * * 1-5"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		Listen:  defaultListen,
		DB:      filepath.Join(Dir(), "shiftwatch.db"),
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Tolerances: TolerancesConfig{
			BeforeStart: "10m",
			AfterEnd:    "10m",
		},
		Sweeper:   SweeperConfig{Enabled: true, Spec: defaultSweeperSpec},
		RateLimit: RateLimitConfig{PerSecond: 5, Burst: 10},
	}
	cfg.Normalize()
	return cfg
}

// Dir returns ~/.shiftwatch, or the working directory when no home is set.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".shiftwatch"
	}
	return filepath.Join(home, ".shiftwatch")
}

// DefaultPath returns ~/.shiftwatch/config.yaml.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.DB == "" {
		c.DB = filepath.Join(Dir(), "shiftwatch.db")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Tolerances.BeforeStart == "" {
		c.Tolerances.BeforeStart = "10m"
	}
	// after_end follows before_start unless set.
	if c.Tolerances.AfterEnd == "" {
		c.Tolerances.AfterEnd = c.Tolerances.BeforeStart
	}
	if c.Weekdays.Letters == "" {
		c.Weekdays.Letters = schedule.DefaultAlphabet().Letters()
		if c.Weekdays.Labels == nil {
			c.Weekdays.Labels = schedule.DefaultAlphabet().Labels()
		}
	}
	if len(c.Blocks) == 0 {
		for _, b := range schedule.DefaultBlocks() {
			c.Blocks = append(c.Blocks, BlockConfig{Name: b.Name, Start: b.Start.String(), End: b.End.String()})
		}
	}
	if c.Sweeper.Spec == "" {
		c.Sweeper.Spec = defaultSweeperSpec
	}
	if c.RateLimit.PerSecond <= 0 {
		c.RateLimit.PerSecond = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
}

// Load reads path. A missing file is created with the defaults on first run.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, fmt.Errorf("writing default config: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path with 0600 permissions, creating parent
// directories as needed.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks the fields that are not covered by catalog validation.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	if c.Sweeper.Enabled {
		if _, err := cron.ParseStandard(c.Sweeper.Spec); err != nil {
			return fmt.Errorf("sweeper.spec: %w", err)
		}
	}
	return nil
}

// ParseTolerances parses the configured tolerance windows.
func (c *Config) ParseTolerances() (schedule.Tolerances, error) {
	before, err := time.ParseDuration(c.Tolerances.BeforeStart)
	if err != nil {
		return schedule.Tolerances{}, fmt.Errorf("tolerances.before_start: %w", err)
	}
	after, err := time.ParseDuration(c.Tolerances.AfterEnd)
	if err != nil {
		return schedule.Tolerances{}, fmt.Errorf("tolerances.after_end: %w", err)
	}
	return schedule.NewTolerances(before, after), nil
}

// Codec builds and validates the block catalog and weekday alphabet.
// Every malformed block is reported in one *schedule.ConfigurationError;
// warnings are returned for the caller to log.
func (c *Config) Codec() (*schedule.Codec, []string, error) {
	tol, err := c.ParseTolerances()
	if err != nil {
		return nil, nil, &schedule.ConfigurationError{Problems: []string{err.Error()}}
	}

	var problems []string
	blocks := make([]schedule.Block, 0, len(c.Blocks))
	for i, bc := range c.Blocks {
		start, err := schedule.ParseTimeOfDay(bc.Start)
		if err != nil {
			problems = append(problems, fmt.Sprintf("blocks[%d].start: %v", i, err))
		}
		end, err := schedule.ParseTimeOfDay(bc.End)
		if err != nil {
			problems = append(problems, fmt.Sprintf("blocks[%d].end: %v", i, err))
		}
		blocks = append(blocks, schedule.Block{Name: bc.Name, Start: start, End: end})
	}
	if len(problems) > 0 {
		return nil, nil, &schedule.ConfigurationError{Problems: problems}
	}

	catalog, warnings, err := schedule.NewCatalog(blocks, tol)
	if err != nil {
		return nil, nil, err
	}
	alphabet, err := schedule.NewAlphabet(c.Weekdays.Letters, c.Weekdays.Labels)
	if err != nil {
		return nil, nil, err
	}
	return schedule.NewCodec(catalog, alphabet), warnings, nil
}
