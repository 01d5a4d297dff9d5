// Package raid implements a check that reports the health of Linux
// software RAID arrays as listed in /proc/mdstat.
//
// Every array becomes one key named after its device (md0, md127). A
// host without arrays reports a single healthy key "none".
//
// A failing array is announced again, without a status change, when its
// state or member map changes (a second disk drops out, recovery starts or
// stops). The previous state is read through the check.StatusReader.
package raid

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/kylerisse/watchful/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "raid"

	// DefaultMdstat is the mdstat path, relative to the root filesystem.
	DefaultMdstat = "proc/mdstat"

	// NoArraysKey is reported when the host has no arrays.
	NoArraysKey = "none"
)

// Health is the condition of one array.
type Health string

const (
	HealthOK       Health = "ok"
	HealthDegraded Health = "degraded"
	HealthRecovery Health = "recovery"
	HealthUnknown  Health = "unknown"
)

// Recovery is the progress of a rebuild.
type Recovery struct {
	Percent float64
	Finish  string
	Speed   string
}

// Array is one md device parsed from mdstat.
type Array struct {
	Name    string
	State   string
	Level   string
	Devices []string

	// Total and Active are the "[n/m]" disk counts; Members is the
	// "[UU_]" map. All are zero when mdstat had no status line.
	Total   int
	Active  int
	Members string

	Recovery *Recovery
}

// Health classifies the array.
func (a Array) Health() Health {
	switch {
	case a.Recovery != nil:
		return HealthRecovery
	case a.Total == 0:
		return HealthUnknown
	case a.Active == a.Total:
		return HealthOK
	default:
		return HealthDegraded
	}
}

var (
	statusRe   = regexp.MustCompile(`\[(\d+)/(\d+)\]\s+\[([U_]+)\]`)
	recoveryRe = regexp.MustCompile(`recovery\s*=\s*([\d.]+)%`)
	finishRe   = regexp.MustCompile(`finish=(\S+)`)
	speedRe    = regexp.MustCompile(`speed=(\S+)`)
)

// ParseMdstat reads mdstat content and returns the arrays in file order.
func ParseMdstat(r io.Reader) ([]Array, error) {
	var arrays []Array
	cur := -1

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			cur = -1
		case strings.HasPrefix(line, "Personalities"), strings.HasPrefix(line, "unused devices"):
			cur = -1
		case cur == -1 && strings.HasPrefix(line, "md"):
			name, rest, ok := strings.Cut(line, ":")
			if !ok {
				return nil, fmt.Errorf("malformed array line %q", line)
			}
			fields := strings.Fields(rest)
			a := Array{Name: strings.TrimSpace(name)}
			if len(fields) > 0 {
				a.State = fields[0]
			}
			if len(fields) > 1 && !strings.Contains(fields[1], "[") {
				a.Level = fields[1]
				a.Devices = fields[2:]
			} else if len(fields) > 1 {
				a.Devices = fields[1:]
			}
			arrays = append(arrays, a)
			cur = len(arrays) - 1
		case cur == -1:
			// Lines outside an array block carry nothing we report.
		case recoveryRe.MatchString(line):
			m := recoveryRe.FindStringSubmatch(line)
			pct, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad recovery percent %q: %w", arrays[cur].Name, m[1], err)
			}
			rec := &Recovery{Percent: pct}
			if f := finishRe.FindStringSubmatch(line); f != nil {
				rec.Finish = f[1]
			}
			if s := speedRe.FindStringSubmatch(line); s != nil {
				rec.Speed = s[1]
			}
			arrays[cur].Recovery = rec
		case statusRe.MatchString(line):
			m := statusRe.FindStringSubmatch(line)
			total, _ := strconv.Atoi(m[1])
			active, _ := strconv.Atoi(m[2])
			arrays[cur].Total = total
			arrays[cur].Active = active
			arrays[cur].Members = "[" + m[3] + "]"
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return arrays, nil
}

// Check implements check.Check over mdstat.
type Check struct {
	fsys   fs.FS
	path   string
	name   string
	status check.StatusReader
}

// Option is a functional option for configuring a raid Check.
type Option func(*Check) error

// WithFS reads mdstat from path inside fsys.
func WithFS(fsys fs.FS, path string) Option {
	return func(c *Check) error {
		if fsys == nil {
			return errors.New("filesystem must not be nil")
		}
		if !fs.ValidPath(path) {
			return fmt.Errorf("invalid mdstat path %q", path)
		}
		c.fsys = fsys
		c.path = path
		return nil
	}
}

// WithStatus lets the check compare failing arrays against what was last
// recorded under checkName.
func WithStatus(checkName string, sr check.StatusReader) Option {
	return func(c *Check) error {
		if checkName == "" {
			return errors.New("check name must not be empty")
		}
		c.name = checkName
		c.status = sr
		return nil
	}
}

// New creates a raid Check reading the host's /proc/mdstat.
func New(opts ...Option) (*Check, error) {
	c := &Check{
		fsys: os.DirFS("/"),
		path: DefaultMdstat,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("raid: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run reads mdstat and reports one entry per array. A missing mdstat means
// no md driver and is reported like a host without arrays.
func (c *Check) Run(ctx context.Context) (*check.ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("raid: %w", err)
	}

	f, err := c.fsys.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		rs := check.NewResultSet()
		rs.Set(NoArraysKey, true, "No RAID arrays in the system", true, nil)
		return rs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("raid: %w", err)
	}
	defer f.Close()

	arrays, err := ParseMdstat(f)
	if err != nil {
		return nil, fmt.Errorf("raid: %s: %w", c.path, err)
	}

	rs := check.NewResultSet()
	if len(arrays) == 0 {
		rs.Set(NoArraysKey, true, "No RAID arrays in the system", true, nil)
		return rs, nil
	}
	for _, a := range arrays {
		rs.Add(c.entry(a))
	}
	return rs, nil
}

func (c *Check) entry(a Array) check.Entry {
	health := a.Health()
	meta := map[string]any{
		"state":   string(health),
		"level":   a.Level,
		"members": a.Members,
	}

	var msg string
	switch health {
	case HealthOK:
		msg = fmt.Sprintf("RAID %s in good status %s", a.Name, a.Members)
	case HealthDegraded:
		msg = fmt.Sprintf("RAID %s is degraded %s", a.Name, a.Members)
	case HealthRecovery:
		meta["percent"] = a.Recovery.Percent
		meta["finish"] = a.Recovery.Finish
		meta["speed"] = a.Recovery.Speed
		msg = fmt.Sprintf("RAID %s is degraded, recovery status %s%%, estimate time to finish %s",
			a.Name, strconv.FormatFloat(a.Recovery.Percent, 'f', -1, 64), a.Recovery.Finish)
	default:
		msg = fmt.Sprintf("RAID %s unknown error (%s)", a.Name, a.State)
	}

	e := check.Entry{
		Key:      a.Name,
		Status:   health == HealthOK,
		Message:  msg,
		Notify:   true,
		Metadata: meta,
	}
	if !e.Status {
		e.Changed = c.failureChanged(a.Name, meta)
	}
	return e
}

// failureChanged reports whether a key that was already failing now fails
// differently.
func (c *Check) failureChanged(key string, meta map[string]any) bool {
	if c.status == nil || c.status.StatusChanged(c.name, key, false) {
		return false
	}
	prev, ok := c.status.PreviousMetadata(c.name, key)
	if !ok {
		return false
	}
	return prev["state"] != meta["state"] || prev["members"] != meta["members"]
}

// Factory creates a raid Check from a config map. Optional key: "mdstat"
// (string), an absolute path to read instead of /proc/mdstat.
func Factory(name string, config map[string]any, env check.Env) (check.Check, error) {
	var opts []Option

	path, err := check.String(config, "mdstat", "")
	if err != nil {
		return nil, fmt.Errorf("raid: %w", err)
	}
	if path != "" {
		if !strings.HasPrefix(path, "/") {
			return nil, fmt.Errorf("raid: mdstat must be an absolute path, got %q", path)
		}
		opts = append(opts, WithFS(os.DirFS("/"), strings.TrimPrefix(path, "/")))
	}

	if env.Status != nil {
		opts = append(opts, WithStatus(name, env.Status))
	}
	return New(opts...)
}
