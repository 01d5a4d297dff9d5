// Package ramswap implements a check that alerts when RAM or swap usage
// reaches a threshold. Usage is read from /proc/meminfo and reported under
// the keys "ram" and "swap".
package ramswap

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/kylerisse/watchful/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "ram_swap"

	// DefaultAlertRAM and DefaultAlertSwap are the usage percents at which
	// a key fails.
	DefaultAlertRAM  = 60.0
	DefaultAlertSwap = 60.0

	// DefaultMeminfo is the meminfo path, relative to the root filesystem.
	DefaultMeminfo = "proc/meminfo"
)

// Usage is the total and free size of one memory pool in kB.
type Usage struct {
	Total uint64
	Free  uint64
}

// UsedPercent returns the share of the pool in use. An empty pool is 0%.
func (u Usage) UsedPercent() float64 {
	if u.Total == 0 || u.Free >= u.Total {
		return 0
	}
	return float64(u.Total-u.Free) / float64(u.Total) * 100
}

// ParseMeminfo returns RAM and swap usage. RAM free space is MemAvailable
// when the kernel reports it, otherwise MemFree plus Buffers and Cached.
func ParseMeminfo(data []byte) (ram, swap Usage, err error) {
	fields := make(map[string]uint64)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		name, rest, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		parts := strings.Fields(rest)
		if len(parts) == 0 {
			continue
		}
		v, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return Usage{}, Usage{}, fmt.Errorf("%s: %w", name, err)
		}
		fields[name] = v
	}
	if err := sc.Err(); err != nil {
		return Usage{}, Usage{}, err
	}

	total, ok := fields["MemTotal"]
	if !ok {
		return Usage{}, Usage{}, errors.New("MemTotal missing")
	}
	ram.Total = total
	if avail, ok := fields["MemAvailable"]; ok {
		ram.Free = avail
	} else {
		ram.Free = fields["MemFree"] + fields["Buffers"] + fields["Cached"]
	}
	swap = Usage{Total: fields["SwapTotal"], Free: fields["SwapFree"]}
	return ram, swap, nil
}

// Check implements check.Check over meminfo.
type Check struct {
	fsys      fs.FS
	path      string
	alertRAM  float64
	alertSwap float64
}

// Option is a functional option for configuring a ram_swap Check.
type Option func(*Check) error

func validPercent(name string, v float64) error {
	if v <= 0 || v > 100 {
		return fmt.Errorf("%s must be in (0, 100], got %v", name, v)
	}
	return nil
}

// WithAlertRAM sets the RAM threshold in percent.
func WithAlertRAM(percent float64) Option {
	return func(c *Check) error {
		if err := validPercent("alert_ram", percent); err != nil {
			return err
		}
		c.alertRAM = percent
		return nil
	}
}

// WithAlertSwap sets the swap threshold in percent.
func WithAlertSwap(percent float64) Option {
	return func(c *Check) error {
		if err := validPercent("alert_swap", percent); err != nil {
			return err
		}
		c.alertSwap = percent
		return nil
	}
}

// WithFS reads meminfo from path inside fsys.
func WithFS(fsys fs.FS, path string) Option {
	return func(c *Check) error {
		if fsys == nil {
			return errors.New("filesystem must not be nil")
		}
		if !fs.ValidPath(path) {
			return fmt.Errorf("invalid meminfo path %q", path)
		}
		c.fsys = fsys
		c.path = path
		return nil
	}
}

// New creates a ram_swap Check reading the host's /proc/meminfo.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		fsys:      os.DirFS("/"),
		path:      DefaultMeminfo,
		alertRAM:  DefaultAlertRAM,
		alertSwap: DefaultAlertSwap,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("ram_swap: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run reads meminfo and reports the "ram" and "swap" keys.
func (c *Check) Run(ctx context.Context) (*check.ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ram_swap: %w", err)
	}

	data, err := fs.ReadFile(c.fsys, c.path)
	if err != nil {
		return nil, fmt.Errorf("ram_swap: %w", err)
	}
	ram, swap, err := ParseMeminfo(data)
	if err != nil {
		return nil, fmt.Errorf("ram_swap: %s: %w", c.path, err)
	}

	rs := check.NewResultSet()
	add(rs, "ram", "RAM", ram, c.alertRAM)
	add(rs, "swap", "SWAP", swap, c.alertSwap)
	return rs, nil
}

func add(rs *check.ResultSet, key, caption string, u Usage, alert float64) {
	used := u.UsedPercent()
	ok := used < alert

	msg := fmt.Sprintf("%s used %.1f%%", caption, used)
	if ok {
		msg = "Normal " + msg
	} else {
		msg = "Excessive " + msg
	}
	rs.Set(key, ok, msg, true, map[string]any{
		"used":     used,
		"alert":    alert,
		"total_kb": u.Total,
	})
}

// Factory creates a ram_swap Check from a config map. Optional keys:
// "alert_ram" and "alert_swap" (number, percent). Out of range values fall
// back to the default with a warning.
func Factory(_ string, config map[string]any, env check.Env) (check.Check, error) {
	var opts []Option

	for _, a := range []struct {
		key  string
		def  float64
		with func(float64) Option
	}{
		{"alert_ram", DefaultAlertRAM, WithAlertRAM},
		{"alert_swap", DefaultAlertSwap, WithAlertSwap},
	} {
		v, err := check.Number(config, a.key, a.def)
		if err != nil {
			return nil, fmt.Errorf("ram_swap: %w", err)
		}
		if validPercent(a.key, v) != nil {
			if env.Logger != nil {
				env.Logger.Warnf("ram_swap: %s %v out of range, using %v", a.key, v, a.def)
			}
			v = a.def
		}
		opts = append(opts, a.with(v))
	}

	return New(opts...)
}
