// Package config loads the daemon configuration from a JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Defaults applied to missing fields.
const (
	DefaultThreads       = 5
	DefaultCheckTimeout  = 60 * time.Second
	DefaultInterval      = 300 * time.Second
	DefaultStatusFile    = "status.json"
	DefaultListen        = ":1982"
	DefaultTelegramRate  = 1.0
	DefaultTelegramBurst = 5
)

// ListenDisabled as server.listen turns the HTTP surface off.
const ListenDisabled = "-"

// Duration is a time.Duration read from a string such as "90s" or "5m".
// A bare JSON number is taken as seconds.
type Duration time.Duration

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		parsed, err := time.ParseDuration(t)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", t, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(t * float64(time.Second))
	default:
		return fmt.Errorf("duration must be a string or a number, got %T", v)
	}
	return nil
}

// Monitor holds the cycle settings.
type Monitor struct {
	Threads      int      `json:"threads"`
	CheckTimeout Duration `json:"check_timeout"`
	Interval     Duration `json:"interval"`
	StatusFile   string   `json:"status_file"`
}

// Telegram holds the notification sink settings. An empty token or chat id
// disables Telegram delivery.
type Telegram struct {
	Token         string  `json:"token"`
	ChatID        string  `json:"chat_id"`
	GroupMessages bool    `json:"group_messages"`
	Rate          float64 `json:"rate"`
	Burst         int     `json:"burst"`
	APIURL        string  `json:"api_url,omitempty"`
}

// Enabled reports whether both credentials are set.
func (t Telegram) Enabled() bool {
	return t.Token != "" && t.ChatID != ""
}

// Server holds the HTTP surface settings.
type Server struct {
	// Listen is the API address. Empty means DefaultListen and
	// ListenDisabled means no API.
	Listen string `json:"listen"`
}

// Address returns the address to bind, or "" when the API is disabled.
func (s Server) Address() string {
	if s.Listen == ListenDisabled {
		return ""
	}
	return s.Listen
}

// Config is the complete daemon configuration.
type Config struct {
	Monitor  Monitor                   `json:"monitor"`
	Telegram Telegram                  `json:"telegram"`
	Server   Server                    `json:"server"`
	Checks   map[string]map[string]any `json:"checks"`
}

// Default returns a configuration with every default applied and no checks.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: could not read file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates configuration data.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: could not parse JSON: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Monitor.Threads == 0 {
		c.Monitor.Threads = DefaultThreads
	}
	if c.Monitor.CheckTimeout == 0 {
		c.Monitor.CheckTimeout = Duration(DefaultCheckTimeout)
	}
	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = Duration(DefaultInterval)
	}
	if c.Monitor.StatusFile == "" {
		c.Monitor.StatusFile = DefaultStatusFile
	}
	if c.Telegram.Rate == 0 {
		c.Telegram.Rate = DefaultTelegramRate
	}
	if c.Telegram.Burst == 0 {
		c.Telegram.Burst = DefaultTelegramBurst
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Checks == nil {
		c.Checks = make(map[string]map[string]any)
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Monitor.Threads < 1 {
		errs = append(errs, fmt.Errorf("monitor.threads must be at least 1, got %d", c.Monitor.Threads))
	}
	if c.Monitor.CheckTimeout <= 0 {
		errs = append(errs, fmt.Errorf("monitor.check_timeout must be positive, got %v", time.Duration(c.Monitor.CheckTimeout)))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, fmt.Errorf("monitor.interval must be positive, got %v", time.Duration(c.Monitor.Interval)))
	}
	if c.Telegram.Rate < 0 {
		errs = append(errs, fmt.Errorf("telegram.rate must not be negative, got %v", c.Telegram.Rate))
	}
	if c.Telegram.Burst < 1 {
		errs = append(errs, fmt.Errorf("telegram.burst must be at least 1, got %d", c.Telegram.Burst))
	}
	for name, cfg := range c.Checks {
		if name == "" {
			errs = append(errs, errors.New("checks: empty check name"))
		}
		if cfg == nil {
			errs = append(errs, fmt.Errorf("checks.%s: must be an object", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
