package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config holds all beacon configuration
type Config struct {
	AccountID string `yaml:"account_id"`
	Token     string `yaml:"token"`
	Endpoint  string `yaml:"endpoint"`
	DataDir   string `yaml:"data_dir"`

	Log   LogConfig   `yaml:"log"`
	Flush FlushConfig `yaml:"flush"`

	DeferDelay     time.Duration `yaml:"defer_delay"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	Workers        int           `yaml:"workers"`

	OptOut               bool `yaml:"opt_out"`
	SystemEventsEnabled  bool `yaml:"system_events_enabled"`
	Offline              bool `yaml:"offline"`
	CreatedPostAppLaunch bool `yaml:"created_post_app_launch"`

	IdentityKeys    []string      `yaml:"identity_keys"`
	DiscardedEvents []string      `yaml:"discarded_events"`
	ConnectivityTCP bool          `yaml:"connectivity_check"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	MetricsAddr     string        `yaml:"metrics_addr"`

	Device DeviceConfig `yaml:"device"`
}

// LogConfig controls logging output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// FlushConfig controls upload cadence
type FlushConfig struct {
	Delay     time.Duration `yaml:"delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
	BatchSize int           `yaml:"batch_size"`
}

// DeviceConfig are the static device facts attached to profile and ping events
type DeviceConfig struct {
	Carrier     string `yaml:"carrier"`
	CountryCode string `yaml:"country_code"`
	Timezone    string `yaml:"timezone"`
	PackageName string `yaml:"package_name"`
	NetworkType string `yaml:"network_type"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataDir: filepath.Join(home, ".beacon"),
		Log: LogConfig{
			Level: "info",
		},
		Flush: FlushConfig{
			Delay:     time.Second,
			MaxDelay:  10 * time.Minute,
			BatchSize: 50,
		},
		DeferDelay:      2 * time.Second,
		SessionTimeout:  20 * time.Minute,
		Workers:         4,
		ConnectivityTCP: true,
		ConnectTimeout:  3 * time.Second,
		IdentityKeys:    []string{"Identity", "Email"},
	}
}

// Load reads path (when not empty) over the defaults, then applies BEACON_* overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.AccountID = getenv("BEACON_ACCOUNT_ID", c.AccountID)
	c.Token = getenv("BEACON_TOKEN", c.Token)
	c.Endpoint = getenv("BEACON_ENDPOINT", c.Endpoint)
	c.DataDir = getenv("BEACON_DATA_DIR", c.DataDir)
	c.Log.Level = getenv("BEACON_LOG_LEVEL", c.Log.Level)
	c.MetricsAddr = getenv("BEACON_METRICS_ADDR", c.MetricsAddr)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(getenvBool("BEACON_LOG_JSON", &c.Log.JSON))
	collect(getenvBool("BEACON_OPT_OUT", &c.OptOut))
	collect(getenvBool("BEACON_OFFLINE", &c.Offline))
	collect(getenvBool("BEACON_SYSTEM_EVENTS", &c.SystemEventsEnabled))
	collect(getenvDuration("BEACON_FLUSH_DELAY", &c.Flush.Delay))
	collect(getenvDuration("BEACON_DEFER_DELAY", &c.DeferDelay))
	collect(getenvInt("BEACON_WORKERS", &c.Workers))

	if keys := os.Getenv("BEACON_IDENTITY_KEYS"); keys != "" {
		c.IdentityKeys = splitList(keys)
	}
	return errors.Join(errs...)
}

// Validate checks that the configuration can run a collector
func (c *Config) Validate() error {
	var problems []string
	if c.DataDir == "" {
		problems = append(problems, "data_dir is required")
	}
	if c.Flush.Delay <= 0 {
		problems = append(problems, "flush.delay must be positive")
	}
	if c.Flush.MaxDelay < c.Flush.Delay {
		problems = append(problems, "flush.max_delay must not be below flush.delay")
	}
	if c.Flush.BatchSize <= 0 {
		problems = append(problems, "flush.batch_size must be positive")
	}
	if c.DeferDelay <= 0 {
		problems = append(problems, "defer_delay must be positive")
	}
	if c.SessionTimeout <= 0 {
		problems = append(problems, "session_timeout must be positive")
	}
	if c.Workers <= 0 {
		problems = append(problems, "workers must be positive")
	}
	if c.Endpoint != "" && c.AccountID == "" {
		problems = append(problems, "account_id is required when endpoint is set")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	*dst = b
	return nil
}

func getenvInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	*dst = n
	return nil
}

func getenvDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	*dst = d
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
