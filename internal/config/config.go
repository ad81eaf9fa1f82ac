// Package config loads and validates the build configuration.
//
// Precedence, lowest to highest:
//  1. Defaults (Default)
//  2. Optional YAML file
//  3. Environment variables prefixed EVDEMAND_ (for example
//     EVDEMAND_OUTPUT_FORMAT, EVDEMAND_CENSUS_API_KEY)
//
// The unprefixed CENSUS_API_KEY is honoured when EVDEMAND_CENSUS_API_KEY is
// unset.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EVDEMAND"

// Build is the complete configuration of one panel build.
type Build struct {
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`

	// Input overrides. Empty means the default path under DataDir/raw.
	// A .xlsx extension selects the workbook reader.
	SessionsCSV      string `yaml:"sessions_csv" envconfig:"SESSIONS_CSV"`
	StationsCSV      string `yaml:"stations_csv" envconfig:"STATIONS_CSV"`
	RegistrationsCSV string `yaml:"registrations_csv" envconfig:"REGISTRATIONS_CSV"`
	CSV              CSV    `yaml:"csv" envconfig:"CSV"`

	Census  Census  `yaml:"census" envconfig:"CENSUS"`
	Output  Output  `yaml:"output" envconfig:"OUTPUT"`
	Metrics Metrics `yaml:"metrics" envconfig:"METRICS"`
	Logging Logging `yaml:"logging" envconfig:"LOGGING"`
}

// CSV tunes the reader for delimited extracts. It does not apply to .xlsx
// inputs.
type CSV struct {
	// Delimiter is a single character. Empty means ','.
	Delimiter  string `yaml:"delimiter" envconfig:"DELIMITER" validate:"omitempty,len=1"`
	LazyQuotes bool   `yaml:"lazy_quotes" envconfig:"LAZY_QUOTES"`
}

// Comma returns the delimiter as a rune, or 0 when unset.
func (c CSV) Comma() rune {
	for _, r := range c.Delimiter {
		return r
	}
	return 0
}

type Census struct {
	APIKey  string        `yaml:"api_key" envconfig:"API_KEY"`
	URL     string        `yaml:"url" envconfig:"URL" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
}

type Output struct {
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=csv xlsx"`
	Sink   Sink   `yaml:"sink" envconfig:"SINK"`
}

// Sink selects the optional SQL destination for the panel. An empty Kind
// disables it.
type Sink struct {
	Kind  string `yaml:"kind" envconfig:"KIND" validate:"omitempty,oneof=postgres sqlite mssql"`
	DSN   string `yaml:"dsn" envconfig:"DSN" validate:"required_with=Kind"`
	Table string `yaml:"table" envconfig:"TABLE" validate:"required_with=Kind"`
}

type Metrics struct {
	Backend        string   `yaml:"backend" envconfig:"BACKEND" validate:"oneof=none datadog pushgateway"`
	PushgatewayURL string   `yaml:"pushgateway_url" envconfig:"PUSHGATEWAY_URL" validate:"required_if=Backend pushgateway,omitempty,url"`
	Job            string   `yaml:"job" envconfig:"JOB" validate:"required"`
	Tags           []string `yaml:"tags" envconfig:"TAGS"`
}

type Logging struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json console"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Build {
	return Build{
		DataDir: "data",
		Census: Census{
			URL:     "https://api.census.gov/data/2022/acs/acs5",
			Timeout: 60 * time.Second,
		},
		Output: Output{
			Format: "csv",
			Sink:   Sink{Table: "state_month_panel"},
		},
		Metrics: Metrics{Backend: "none", Job: "evdemand"},
		Logging: Logging{Level: "info", Format: "json"},
	}
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment. It does not validate.
func Load(path string) (Build, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Build{}, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Build{}, fmt.Errorf("config: decode yaml %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Build{}, fmt.Errorf("config: env: %w", err)
	}

	if _, set := os.LookupEnv(EnvPrefix + "_CENSUS_API_KEY"); !set {
		if key := os.Getenv("CENSUS_API_KEY"); key != "" {
			cfg.Census.APIKey = key
		}
	}
	return cfg, nil
}
