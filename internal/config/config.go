// Package config loads the server's runtime configuration. This is operator
// configuration for the process itself; the monitoring configuration arrives
// with each trigger request instead.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "45s" parse directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Listen string `yaml:"listen"`

	// Window is the compliance window evaluated on each trigger; the cycle
	// deadline bounds how long one trigger may take end to end.
	Window        Duration `yaml:"window"`
	CycleDeadline Duration `yaml:"cycleDeadline"`

	AdapterMode          string   `yaml:"adapterMode"`
	MaxConcurrentFetches int64    `yaml:"maxConcurrentFetches"`
	RetryAttempts        int      `yaml:"retryAttempts"`
	RetryBaseDelay       Duration `yaml:"retryBaseDelay"`

	// HistoryPath is the SQLite database for archived reports; empty
	// disables archiving.
	HistoryPath string `yaml:"historyPath"`

	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
	LogLevel        string   `yaml:"logLevel"`
}

const (
	AdapterGCP    = "gcp"
	AdapterStatic = "static"
)

func Default() Config {
	return Config{
		Listen:               ":8080",
		Window:               Duration(24 * time.Hour),
		CycleDeadline:        Duration(45 * time.Second),
		AdapterMode:          AdapterGCP,
		MaxConcurrentFetches: 8,
		RetryAttempts:        3,
		RetryBaseDelay:       Duration(200 * time.Millisecond),
		HistoryPath:          "slareport.db",
		ShutdownTimeout:      Duration(30 * time.Second),
		LogLevel:             "info",
	}
}

// Load reads a YAML file over the defaults. A missing path is not an error;
// the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.Window.Std() <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if c.CycleDeadline.Std() <= 0 {
		return fmt.Errorf("cycleDeadline must be positive")
	}
	if c.AdapterMode != AdapterGCP && c.AdapterMode != AdapterStatic {
		return fmt.Errorf("adapterMode must be %q or %q", AdapterGCP, AdapterStatic)
	}
	if c.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("maxConcurrentFetches must be positive")
	}
	if c.RetryAttempts <= 0 {
		return fmt.Errorf("retryAttempts must be positive")
	}
	return nil
}
