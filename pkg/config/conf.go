package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"github.com/mchmarny/gridpulse/pkg/attribution"
	"github.com/mchmarny/gridpulse/pkg/stress"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes every environment override, e.g. GRIDPULSE_WORKERS.
	EnvPrefix = "GRIDPULSE"

	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600

	defaultDataFile = "data.db"
)

// Config represents app config object.
type Config struct {
	Stress      StressConfig      `yaml:"stress" envconfig:"STRESS"`
	Attribution AttributionConfig `yaml:"attribution" envconfig:"ATTRIBUTION"`
	Store       StoreConfig       `yaml:"store" envconfig:"STORE"`
	Workers     int               `yaml:"workers" envconfig:"WORKERS" validate:"gte=1"`
}

// StressConfig holds the composite scorer policies.
type StressConfig struct {
	HighStressThreshold float64 `yaml:"high_stress_threshold" envconfig:"THRESHOLD" validate:"finite"`
	BaselineScenario    string  `yaml:"baseline_scenario" envconfig:"BASELINE" validate:"required"`
	SeasonMonths        []int   `yaml:"season_months" envconfig:"MONTHS" validate:"dive,min=1,max=12"`
}

// AttributionConfig holds the regressor policies.
type AttributionConfig struct {
	MinObservations int `yaml:"min_observations" envconfig:"MIN_OBS" validate:"gte=3"`
}

// StoreConfig locates the result store.
type StoreConfig struct {
	DSN string `yaml:"dsn" envconfig:"DSN"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	sc := stress.DefaultConfig()
	return &Config{
		Stress: StressConfig{
			HighStressThreshold: sc.HighStressThreshold,
			BaselineScenario:    sc.BaselineScenario,
			SeasonMonths:        sc.SeasonMonths,
		},
		Attribution: AttributionConfig{
			MinObservations: attribution.DefaultMinObservations,
		},
		Workers: runtime.NumCPU(),
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	}); err != nil {
		panic(err)
	}
	return v
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config required")
	}
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			msgs := make([]string, 0, len(ve))
			for _, fe := range ve {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ApplyEnv overrides values with any GRIDPULSE_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}
	return nil
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configFileName, err)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating default config", "path", path)
		if err := Save(dirPath, Default()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	// fields absent from the file keep their defaults
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}
	return c, nil
}

// Load reads the config file from dirPath, applies environment overrides
// and validates the result.
func Load(dirPath string) (*Config, error) {
	c, err := ReadOrCreate(dirPath)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(); err != nil {
		return nil, err
	}
	if c.Store.DSN == "" {
		c.Store.DSN = filepath.Join(dirPath, defaultDataFile)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
