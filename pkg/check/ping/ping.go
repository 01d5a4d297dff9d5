// Package ping implements a reachability check over a list of hosts.
//
// It shells out to the system ping command through the injected
// check.CommandRunner, one key per host, and records the round-trip time
// as latency_us metadata when the host answers.
package ping

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kylerisse/watchful/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "ping"

	// DefaultTimeout is the default per-host ping timeout.
	DefaultTimeout = 5 * time.Second

	// DefaultCount is the default number of ping packets.
	DefaultCount = 1

	// DefaultThreads is the default number of hosts pinged at once.
	DefaultThreads = 5
)

// Ping implements check.Check using ICMP echo requests.
type Ping struct {
	targets []string
	timeout time.Duration
	count   int
	threads int
	runner  check.CommandRunner
}

// Option is a functional option for configuring a Ping check.
type Option func(*Ping) error

// WithTimeout sets the ping timeout duration.
func WithTimeout(d time.Duration) Option {
	return func(p *Ping) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		p.timeout = d
		return nil
	}
}

// WithCount sets the number of ping packets to send.
func WithCount(n int) Option {
	return func(p *Ping) error {
		if n < 1 {
			return fmt.Errorf("count must be at least 1, got %d", n)
		}
		p.count = n
		return nil
	}
}

// WithThreads sets how many hosts are pinged concurrently.
func WithThreads(n int) Option {
	return func(p *Ping) error {
		if n < 1 {
			return fmt.Errorf("threads must be at least 1, got %d", n)
		}
		p.threads = n
		return nil
	}
}

// WithRunner sets the command runner used to invoke ping.
func WithRunner(r check.CommandRunner) Option {
	return func(p *Ping) error {
		if r == nil {
			return fmt.Errorf("runner must not be nil")
		}
		p.runner = r
		return nil
	}
}

// New creates a Ping check for the given targets.
func New(targets []string, opts ...Option) (*Ping, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("ping: at least one target is required")
	}
	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t == "" {
			return nil, fmt.Errorf("ping: target must not be empty")
		}
		if seen[t] {
			return nil, fmt.Errorf("ping: duplicate target %q", t)
		}
		seen[t] = true
	}

	p := &Ping{
		targets: targets,
		timeout: DefaultTimeout,
		count:   DefaultCount,
		threads: DefaultThreads,
		runner:  check.ExecRunner{},
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("ping: %w", err)
		}
	}

	return p, nil
}

// Type returns the check type name.
func (p *Ping) Type() string {
	return TypeName
}

// Targets returns the configured hosts.
func (p *Ping) Targets() []string {
	return append([]string(nil), p.targets...)
}

// Run pings every target and returns one entry per host. An unreachable
// host is an entry with status false, not an error.
func (p *Ping) Run(ctx context.Context) (*check.ResultSet, error) {
	type outcome struct {
		up      bool
		latency time.Duration
	}
	outcomes := make([]outcome, len(p.targets))

	var g errgroup.Group
	g.SetLimit(p.threads)
	for i, target := range p.targets {
		g.Go(func() error {
			latency, err := p.ping(ctx, target)
			outcomes[i] = outcome{up: err == nil, latency: latency}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	rs := check.NewResultSet()
	for i, target := range p.targets {
		o := outcomes[i]
		var metadata map[string]any
		if o.up && o.latency > 0 {
			metadata = map[string]any{"latency_us": o.latency.Microseconds()}
		}
		rs.Set(target, o.up, fmt.Sprintf("Ping: %s %s", target, upDown(o.up)), true, metadata)
	}
	return rs, nil
}

func (p *Ping) ping(ctx context.Context, target string) (time.Duration, error) {
	timeoutSec := strconv.Itoa(max(1, int(p.timeout.Round(time.Second).Seconds())))
	out, err := p.runner.Run(ctx, "ping", "-c", strconv.Itoa(p.count), "-W", timeoutSec, target)
	if err != nil {
		return 0, fmt.Errorf("ping %s: %w", target, err)
	}
	latency, err := parseOutput(string(out))
	if err != nil {
		// The command succeeded, so the host answered even if the output
		// format is unfamiliar.
		return 0, nil
	}
	return latency, nil
}

func upDown(up bool) string {
	if up {
		return "UP"
	}
	return "DOWN"
}

// Factory creates a Ping check from a config map.
//
// Targets come from "targets" (list of hosts) and/or "hosts" (object of
// host -> enabled bool). Optional keys: "timeout" (duration string),
// "count" (number), "threads" (number).
func Factory(_ string, config map[string]any, env check.Env) (check.Check, error) {
	targets, err := extractTargets(config)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithRunner(env.Runner)}

	timeout, err := check.Duration(config, "timeout", DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	opts = append(opts, WithTimeout(timeout))

	count, err := check.Number(config, "count", DefaultCount)
	if err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	opts = append(opts, WithCount(int(count)))

	threads, err := check.Number(config, "threads", DefaultThreads)
	if err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	opts = append(opts, WithThreads(int(threads)))

	return New(targets, opts...)
}

// extractTargets merges the "targets" list with the enabled entries of the
// "hosts" object, keeping list order first and then sorted host names.
func extractTargets(config map[string]any) ([]string, error) {
	targets, err := check.StringSlice(config, "targets")
	if err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	hosts, err := check.Map(config, "hosts")
	if err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	names := make([]string, 0, len(hosts))
	for name := range hosts {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		enabled, ok := hosts[name].(bool)
		if !ok {
			return nil, fmt.Errorf("ping: 'hosts.%s' must be a bool, got %T", name, hosts[name])
		}
		if enabled && !slices.Contains(targets, name) {
			targets = append(targets, name)
		}
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("ping: config needs 'targets' or enabled 'hosts'")
	}
	return targets, nil
}

// parseOutput extracts the round-trip time from ping command output.
func parseOutput(output string) (time.Duration, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, "time=")
		if idx < 0 {
			continue
		}

		rest := line[idx+len("time="):]
		rttStr, unit, _ := strings.Cut(rest, " ")
		unit = strings.TrimSpace(unit)

		rtt, err := strconv.ParseFloat(strings.TrimSpace(rttStr), 64)
		if err != nil {
			return 0, fmt.Errorf("could not parse RTT %q: %w", rttStr, err)
		}

		switch {
		case strings.HasPrefix(unit, "ms"):
			return time.Duration(rtt * float64(time.Millisecond)), nil
		case strings.HasPrefix(unit, "us"), strings.HasPrefix(unit, "µs"):
			return time.Duration(rtt * float64(time.Microsecond)), nil
		case unit == "s":
			return time.Duration(rtt * float64(time.Second)), nil
		}
		return 0, fmt.Errorf("could not determine time unit from %q", unit)
	}
	return 0, fmt.Errorf("RTT not found in ping output")
}
