// Package temperature implements a check that alerts when a thermal zone
// runs hotter than a threshold.
//
// Zones are read from /sys/class/thermal/thermal_zone*/{type,temp}. Each
// zone becomes one key named after its directory (thermal_zone0).
package temperature

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/kylerisse/watchful/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "temperature"

	// DefaultAlert is the temperature in °C above which a zone fails.
	DefaultAlert = 80.0

	// DefaultThermalDir is the sysfs thermal class, relative to the root
	// filesystem.
	DefaultThermalDir = "sys/class/thermal"
)

// Zone is one thermal zone reading.
type Zone struct {
	Dev  string
	Type string
	Temp float64
}

// ReadZones returns every zone under dir in fsys, sorted by name. Zones
// without a readable temperature are skipped. A missing dir yields no
// zones.
func ReadZones(fsys fs.FS, dir string) ([]Zone, error) {
	matches, err := fs.Glob(fsys, path.Join(dir, "thermal_zone*"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var zones []Zone
	for _, m := range matches {
		raw, err := fs.ReadFile(fsys, path.Join(m, "temp"))
		if err != nil {
			continue
		}
		temp, err := parseMilliCelsius(raw)
		if err != nil {
			continue
		}

		typ := "Unknown"
		if b, err := fs.ReadFile(fsys, path.Join(m, "type")); err == nil {
			if t := strings.TrimSpace(string(b)); t != "" {
				typ = t
			}
		}
		zones = append(zones, Zone{Dev: path.Base(m), Type: typ, Temp: temp})
	}
	return zones, nil
}

func parseMilliCelsius(raw []byte) (float64, error) {
	sc := bufio.NewScanner(bytes.NewReader(raw))
	if !sc.Scan() {
		return 0, errors.New("empty temperature")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(sc.Text()), 64)
	if err != nil {
		return 0, err
	}
	return v / 1000, nil
}

// zoneConfig holds the overrides for one zone.
type zoneConfig struct {
	disabled bool
	alert    float64
	label    string
}

// Check implements check.Check over sysfs thermal zones.
type Check struct {
	fsys  fs.FS
	dir   string
	alert float64
	zones map[string]zoneConfig
}

// Option is a functional option for configuring a temperature Check.
type Option func(*Check) error

// WithAlert sets the default threshold in °C.
func WithAlert(celsius float64) Option {
	return func(c *Check) error {
		if celsius <= 0 {
			return fmt.Errorf("alert must be positive, got %v", celsius)
		}
		c.alert = celsius
		return nil
	}
}

// WithZoneAlert overrides the threshold for one zone.
func WithZoneAlert(dev string, celsius float64) Option {
	return func(c *Check) error {
		if dev == "" {
			return errors.New("zone must not be empty")
		}
		if celsius <= 0 {
			return fmt.Errorf("alert for %s must be positive, got %v", dev, celsius)
		}
		z := c.zones[dev]
		z.alert = celsius
		c.zones[dev] = z
		return nil
	}
}

// WithLabel names a zone in messages instead of its sysfs type.
func WithLabel(dev, label string) Option {
	return func(c *Check) error {
		if dev == "" {
			return errors.New("zone must not be empty")
		}
		z := c.zones[dev]
		z.label = strings.TrimSpace(label)
		c.zones[dev] = z
		return nil
	}
}

// WithZoneDisabled skips a zone.
func WithZoneDisabled(dev string) Option {
	return func(c *Check) error {
		if dev == "" {
			return errors.New("zone must not be empty")
		}
		z := c.zones[dev]
		z.disabled = true
		c.zones[dev] = z
		return nil
	}
}

// WithFS reads zones from dir inside fsys.
func WithFS(fsys fs.FS, dir string) Option {
	return func(c *Check) error {
		if fsys == nil {
			return errors.New("filesystem must not be nil")
		}
		if !fs.ValidPath(dir) {
			return fmt.Errorf("invalid thermal dir %q", dir)
		}
		c.fsys = fsys
		c.dir = dir
		return nil
	}
}

// New creates a temperature Check reading the host's sysfs.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		fsys:  os.DirFS("/"),
		dir:   DefaultThermalDir,
		alert: DefaultAlert,
		zones: make(map[string]zoneConfig),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("temperature: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Threshold returns the alert threshold that applies to dev.
func (c *Check) Threshold(dev string) float64 {
	if z, ok := c.zones[dev]; ok && z.alert > 0 {
		return z.alert
	}
	return c.alert
}

// Run reads every enabled zone and reports one entry per zone.
func (c *Check) Run(ctx context.Context) (*check.ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("temperature: %w", err)
	}

	zones, err := ReadZones(c.fsys, c.dir)
	if err != nil {
		return nil, fmt.Errorf("temperature: %w", err)
	}

	rs := check.NewResultSet()
	for _, z := range zones {
		cfg := c.zones[z.Dev]
		if cfg.disabled {
			continue
		}
		label := cfg.label
		if label == "" {
			label = z.Type
		}
		limit := c.Threshold(z.Dev)
		ok := z.Temp <= limit

		var msg string
		if ok {
			msg = fmt.Sprintf("Sensor %s, temperature Ok %.1f °C", label, z.Temp)
		} else {
			msg = fmt.Sprintf("Sensor %s, over temperature Warning %.1f °C", label, z.Temp)
		}
		rs.Set(z.Dev, ok, msg, true, map[string]any{
			"name":  z.Dev,
			"type":  z.Type,
			"temp":  z.Temp,
			"alert": limit,
		})
	}
	return rs, nil
}

// Factory creates a temperature Check from a config map.
//
// Optional keys:
//   - "alert" (number): default threshold in °C, default 80
//   - "list" (object): zone -> {"enabled": bool, "alert": number, "label": string}
func Factory(_ string, config map[string]any, env check.Env) (check.Check, error) {
	var opts []Option

	alert, err := check.Number(config, "alert", DefaultAlert)
	if err != nil {
		return nil, fmt.Errorf("temperature: %w", err)
	}
	if alert <= 0 {
		if env.Logger != nil {
			env.Logger.Warnf("temperature: alert %v not positive, using %v", alert, DefaultAlert)
		}
		alert = DefaultAlert
	}
	opts = append(opts, WithAlert(alert))

	list, err := check.Map(config, "list")
	if err != nil {
		return nil, fmt.Errorf("temperature: %w", err)
	}
	for dev := range list {
		zone, err := check.Map(list, dev)
		if err != nil {
			return nil, fmt.Errorf("temperature: list: %w", err)
		}
		enabled, err := check.Bool(zone, "enabled", true)
		if err != nil {
			return nil, fmt.Errorf("temperature: %s: %w", dev, err)
		}
		if !enabled {
			opts = append(opts, WithZoneDisabled(dev))
		}
		zoneAlert, err := check.Number(zone, "alert", 0)
		if err != nil {
			return nil, fmt.Errorf("temperature: %s: %w", dev, err)
		}
		if zoneAlert > 0 {
			opts = append(opts, WithZoneAlert(dev, zoneAlert))
		}
		label, err := check.String(zone, "label", "")
		if err != nil {
			return nil, fmt.Errorf("temperature: %s: %w", dev, err)
		}
		if label != "" {
			opts = append(opts, WithLabel(dev, label))
		}
	}

	return New(opts...)
}
