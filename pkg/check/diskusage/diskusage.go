// Package diskusage implements a check that alerts when a mounted
// filesystem fills past a threshold.
//
// Usage is read from df through the injected check.CommandRunner. Every
// real (block device backed) filesystem becomes one key named after its
// mount point.
package diskusage

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kylerisse/watchful/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "diskusage"

	// DefaultAlert is the usage percent above which a filesystem is
	// reported as failing.
	DefaultAlert = 85.0

	// DefaultDF is the df binary used when none is configured.
	DefaultDF = "df"
)

// DefaultExcludeTypes are filesystem types skipped by default.
var DefaultExcludeTypes = []string{"squashfs", "tmpfs", "devtmpfs"}

// Usage is one parsed df line.
type Usage struct {
	Device  string
	Mount   string
	Percent float64
}

// Check implements check.Check over df output.
type Check struct {
	alert    float64
	perMount map[string]float64
	df       string
	excludes []string
	runner   check.CommandRunner
}

// Option is a functional option for configuring a disk usage Check.
type Option func(*Check) error

// WithAlert sets the default threshold in percent.
func WithAlert(percent float64) Option {
	return func(c *Check) error {
		if percent < 0 || percent > 100 {
			return fmt.Errorf("alert must be between 0 and 100, got %v", percent)
		}
		c.alert = percent
		return nil
	}
}

// WithMountAlert overrides the threshold for one mount point.
func WithMountAlert(mount string, percent float64) Option {
	return func(c *Check) error {
		if mount == "" {
			return fmt.Errorf("mount must not be empty")
		}
		if percent < 0 || percent > 100 {
			return fmt.Errorf("alert for %s must be between 0 and 100, got %v", mount, percent)
		}
		c.perMount[mount] = percent
		return nil
	}
}

// WithDF sets the df binary.
func WithDF(path string) Option {
	return func(c *Check) error {
		if path == "" {
			return fmt.Errorf("df path must not be empty")
		}
		c.df = path
		return nil
	}
}

// WithExcludeTypes replaces the list of filesystem types passed to df -x.
func WithExcludeTypes(types []string) Option {
	return func(c *Check) error {
		c.excludes = types
		return nil
	}
}

// WithRunner sets the command runner used to invoke df.
func WithRunner(r check.CommandRunner) Option {
	return func(c *Check) error {
		if r == nil {
			return fmt.Errorf("runner must not be nil")
		}
		c.runner = r
		return nil
	}
}

// New creates a disk usage Check.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		alert:    DefaultAlert,
		perMount: make(map[string]float64),
		df:       DefaultDF,
		excludes: DefaultExcludeTypes,
		runner:   check.ExecRunner{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("diskusage: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Threshold returns the alert threshold that applies to mount.
func (c *Check) Threshold(mount string) float64 {
	if v, ok := c.perMount[mount]; ok {
		return v
	}
	return c.alert
}

// Run reads df output and reports one entry per mount point.
func (c *Check) Run(ctx context.Context) (*check.ResultSet, error) {
	args := []string{"-P"}
	for _, t := range c.excludes {
		args = append(args, "-x", t)
	}

	out, err := c.runner.Run(ctx, c.df, args...)
	if err != nil {
		// df exits non-zero when a single mount is unreadable but still
		// prints the rest.
		if len(out) == 0 || ctx.Err() != nil {
			return nil, fmt.Errorf("diskusage: %s: %w", c.df, err)
		}
	}

	usages, err := ParseDF(out)
	if err != nil {
		return nil, fmt.Errorf("diskusage: %w", err)
	}

	rs := check.NewResultSet()
	for _, u := range usages {
		limit := c.Threshold(u.Mount)
		ok := u.Percent <= limit

		var msg string
		if ok {
			msg = fmt.Sprintf("Filesystem partition %s (%s) used %s%%", u.Device, u.Mount, formatPercent(u.Percent))
		} else {
			msg = fmt.Sprintf("Warning partition %s (%s) used %s%%", u.Device, u.Mount, formatPercent(u.Percent))
		}
		rs.Set(u.Mount, ok, msg, true, map[string]any{
			"device":       u.Device,
			"used_percent": u.Percent,
			"alert":        limit,
		})
	}
	return rs, nil
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// ParseDF parses POSIX df output. Only lines whose source is a /dev
// device are returned; the header and pseudo filesystems are skipped.
func ParseDF(out []byte) ([]Usage, error) {
	var usages []Usage
	seen := make(map[string]bool)

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 || !strings.HasPrefix(fields[0], "/dev/") {
			continue
		}
		pct := strings.TrimSuffix(fields[4], "%")
		if pct == fields[4] {
			continue
		}
		percent, err := strconv.ParseFloat(pct, 64)
		if err != nil {
			return nil, fmt.Errorf("could not parse usage %q: %w", fields[4], err)
		}
		mount := strings.Join(fields[5:], " ")
		if seen[mount] {
			continue
		}
		seen[mount] = true
		usages = append(usages, Usage{
			Device:  strings.TrimPrefix(fields[0], "/dev/"),
			Mount:   mount,
			Percent: percent,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return usages, nil
}

// Factory creates a disk usage Check from a config map.
//
// Optional keys:
//   - "alert" (number): default threshold in percent, default 85
//   - "list" (object): mount point -> threshold
//   - "df" (string): df binary
//   - "exclude_types" (list): filesystem types to skip
func Factory(_ string, config map[string]any, env check.Env) (check.Check, error) {
	opts := []Option{WithRunner(env.Runner)}

	alert, err := check.Number(config, "alert", DefaultAlert)
	if err != nil {
		return nil, fmt.Errorf("diskusage: %w", err)
	}
	if alert < 0 || alert > 100 {
		if env.Logger != nil {
			env.Logger.Warnf("diskusage: alert %v out of range, using %v", alert, DefaultAlert)
		}
		alert = DefaultAlert
	}
	opts = append(opts, WithAlert(alert))

	list, err := check.Map(config, "list")
	if err != nil {
		return nil, fmt.Errorf("diskusage: %w", err)
	}
	for mount := range list {
		v, err := check.Number(list, mount, 0)
		if err != nil {
			return nil, fmt.Errorf("diskusage: list: %w", err)
		}
		opts = append(opts, WithMountAlert(mount, v))
	}

	df, err := check.String(config, "df", DefaultDF)
	if err != nil {
		return nil, fmt.Errorf("diskusage: %w", err)
	}
	opts = append(opts, WithDF(df))

	if _, ok := config["exclude_types"]; ok {
		types, err := check.StringSlice(config, "exclude_types")
		if err != nil {
			return nil, fmt.Errorf("diskusage: %w", err)
		}
		opts = append(opts, WithExcludeTypes(types))
	}

	return New(opts...)
}
