// Package config provides configuration loading for the xls2csv command.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "XLS2CSV_"

// Config holds all configuration for the command.
type Config struct {
	Debug  bool         `yaml:"debug"`
	CSV    CSVConfig    `yaml:"csv"`
	Reader ReaderConfig `yaml:"reader"`
	Watch  WatchConfig  `yaml:"watch"`
}

// CSVConfig controls how cells are written.
type CSVConfig struct {
	Delimiter      string `yaml:"delimiter"`
	Quoting        string `yaml:"quoting"`
	LineTerminator string `yaml:"line_terminator"`
	// SheetDelimiter separates sheets in a single output; an explicit empty
	// string disables it.
	SheetDelimiter *string `yaml:"sheet_delimiter"`
	DateFormat     string  `yaml:"date_format"`
	FloatFormat    string  `yaml:"float_format"`
	IgnoreEmpty    bool    `yaml:"ignore_empty"`
	Escape         bool    `yaml:"escape"`
	MergeCells     bool    `yaml:"merge_cells"`
}

// ReaderConfig maps onto the workbook open options.
type ReaderConfig struct {
	OnDemand         bool   `yaml:"on_demand"`
	Mmap             bool   `yaml:"mmap"`
	IgnoreCorruption bool   `yaml:"ignore_corruption"`
	Encoding         string `yaml:"encoding"`
}

// WatchConfig holds settings of the watch command.
type WatchConfig struct {
	Extensions []string `yaml:"extensions"`
	DebounceMS int      `yaml:"debounce_ms"`
}

// SheetDelimiterOrDefault returns the configured sheet delimiter.
func (c *CSVConfig) SheetDelimiterOrDefault() string {
	if c.SheetDelimiter != nil {
		return *c.SheetDelimiter
	}
	return DefaultSheetDelimiter
}

// Load reads and parses the config file at path and applies defaults.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadEnvFile loads variables from a dotenv file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from XLS2CSV_* variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	var errs []error
	flag := func(key string, dst *bool) {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = b
	}

	flag("DEBUG", &cfg.Debug)
	str("DELIMITER", &cfg.CSV.Delimiter)
	str("QUOTING", &cfg.CSV.Quoting)
	str("LINE_TERMINATOR", &cfg.CSV.LineTerminator)
	if v, ok := lookup(EnvPrefix + "SHEET_DELIMITER"); ok {
		cfg.CSV.SheetDelimiter = &v
	}
	str("DATE_FORMAT", &cfg.CSV.DateFormat)
	str("FLOAT_FORMAT", &cfg.CSV.FloatFormat)
	flag("IGNORE_EMPTY", &cfg.CSV.IgnoreEmpty)
	flag("ESCAPE", &cfg.CSV.Escape)
	flag("ON_DEMAND", &cfg.Reader.OnDemand)
	flag("MMAP", &cfg.Reader.Mmap)
	flag("IGNORE_CORRUPTION", &cfg.Reader.IgnoreCorruption)
	str("ENCODING", &cfg.Reader.Encoding)
	return errors.Join(errs...)
}
