// Package servicestatus implements a check that reports whether systemd
// units are active.
//
// Each unit is queried with "systemctl is-active <unit>" through the
// injected check.CommandRunner and becomes one key named after the unit.
package servicestatus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kylerisse/watchful/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "service_status"

	// DefaultSystemctl is the systemctl binary used when none is configured.
	DefaultSystemctl = "systemctl"

	// DefaultThreads is the default number of units queried at once.
	DefaultThreads = 5

	// StateActive is the only state reported healthy.
	StateActive = "active"
)

// Check implements check.Check over systemctl.
type Check struct {
	services  []string
	systemctl string
	threads   int
	runner    check.CommandRunner
}

// Option is a functional option for configuring a service status Check.
type Option func(*Check) error

// WithSystemctl sets the systemctl binary.
func WithSystemctl(path string) Option {
	return func(c *Check) error {
		if path == "" {
			return errors.New("systemctl path must not be empty")
		}
		c.systemctl = path
		return nil
	}
}

// WithThreads sets how many units are queried concurrently.
func WithThreads(n int) Option {
	return func(c *Check) error {
		if n < 1 {
			return fmt.Errorf("threads must be at least 1, got %d", n)
		}
		c.threads = n
		return nil
	}
}

// WithRunner sets the command runner used to invoke systemctl.
func WithRunner(r check.CommandRunner) Option {
	return func(c *Check) error {
		if r == nil {
			return errors.New("runner must not be nil")
		}
		c.runner = r
		return nil
	}
}

// New creates a service status Check for the given units.
func New(services []string, opts ...Option) (*Check, error) {
	if len(services) == 0 {
		return nil, errors.New("service_status: at least one service is required")
	}
	for i, s := range services {
		if s == "" || strings.HasPrefix(s, "-") || strings.ContainsAny(s, " \t\n") {
			return nil, fmt.Errorf("service_status: invalid service name %q", s)
		}
		if slices.Contains(services[:i], s) {
			return nil, fmt.Errorf("service_status: duplicate service %q", s)
		}
	}

	c := &Check{
		services:  services,
		systemctl: DefaultSystemctl,
		threads:   DefaultThreads,
		runner:    check.ExecRunner{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("service_status: %w", err)
		}
	}
	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

type outcome struct {
	state string
	err   error
}

// Run queries every unit and reports one entry per unit.
func (c *Check) Run(ctx context.Context) (*check.ResultSet, error) {
	outcomes := make([]outcome, len(c.services))

	var g errgroup.Group
	g.SetLimit(c.threads)
	for i, svc := range c.services {
		g.Go(func() error {
			outcomes[i] = c.query(ctx, svc)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("service_status: %w", err)
	}

	rs := check.NewResultSet()
	for i, svc := range c.services {
		o := outcomes[i]
		meta := map[string]any{"state": o.state}
		switch {
		case o.err != nil:
			rs.Set(svc, false, fmt.Sprintf("Service: %s - Error: %v", svc, o.err), true, meta)
		case o.state == StateActive:
			rs.Set(svc, true, fmt.Sprintf("Service: %s - Status: %s", svc, o.state), true, meta)
		default:
			rs.Set(svc, false, fmt.Sprintf("Service: %s - Error: %s", svc, o.state), true, meta)
		}
	}
	return rs, nil
}

// query returns the unit state. systemctl exits non-zero for every state
// but active and still prints the state, so an error only counts when
// nothing was printed.
func (c *Check) query(ctx context.Context, svc string) outcome {
	out, err := c.runner.Run(ctx, c.systemctl, "is-active", svc)
	state := firstLine(out)
	if state == "" {
		if err == nil {
			err = errors.New("empty response")
		}
		return outcome{state: "unknown", err: err}
	}
	return outcome{state: state}
}

func firstLine(out []byte) string {
	line, _, _ := bytes.Cut(out, []byte("\n"))
	return strings.TrimSpace(string(line))
}

// Factory creates a service status Check from a config map.
//
// Required: "list" (object) mapping unit name -> enabled (bool). Disabled
// units are skipped. Optional keys: "systemctl" (string), "threads"
// (number).
func Factory(_ string, config map[string]any, env check.Env) (check.Check, error) {
	list, err := check.Map(config, "list")
	if err != nil {
		return nil, fmt.Errorf("service_status: %w", err)
	}

	var services []string
	for svc := range list {
		enabled, err := check.Bool(list, svc, false)
		if err != nil {
			return nil, fmt.Errorf("service_status: list: %w", err)
		}
		if enabled {
			services = append(services, svc)
		}
	}
	sort.Strings(services)

	var opts []Option
	if env.Runner != nil {
		opts = append(opts, WithRunner(env.Runner))
	}

	systemctl, err := check.String(config, "systemctl", DefaultSystemctl)
	if err != nil {
		return nil, fmt.Errorf("service_status: %w", err)
	}
	opts = append(opts, WithSystemctl(systemctl))

	threads, err := check.Number(config, "threads", DefaultThreads)
	if err != nil {
		return nil, fmt.Errorf("service_status: %w", err)
	}
	opts = append(opts, WithThreads(int(threads)))

	return New(services, opts...)
}
