// Package monitor runs checks in cycles, compares their findings with the
// last known state, announces transitions and persists the new state.
//
// A cycle runs every check on a bounded pool, waits for all of them, then
// applies the diff in the order the checks were given. A check that
// errors, panics or exceeds its timeout is recorded under check.FailureKey
// with status false; it never stops its siblings. Only a failure to persist
// the store is reported to the caller.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kylerisse/watchful/pkg/check"
	"github.com/kylerisse/watchful/pkg/notify"
	"github.com/kylerisse/watchful/pkg/status"
	"github.com/kylerisse/watchful/pkg/telemetry"
)

const (
	// DefaultCheckTimeout bounds a single check run.
	DefaultCheckTimeout = 60 * time.Second

	// DefaultConcurrency is the default worker pool size.
	DefaultConcurrency = 5
)

// ErrInvalidConcurrency is returned by RunCycle when maxConcurrency is
// below one.
var ErrInvalidConcurrency = errors.New("monitor: concurrency must be at least 1")

// Backend loads and saves the status store.
type Backend interface {
	Load() (*status.Store, error)
	Save(*status.Store) error
}

// Notifier receives the messages of changed entries.
type Notifier interface {
	Enqueue(text string, tag notify.Tag)
}

// Monitor owns the status store and runs check cycles against it.
type Monitor struct {
	store        *status.Store
	backend      Backend
	notifier     Notifier
	checkTimeout time.Duration
	logger       *logrus.Logger
	metrics      *telemetry.Metrics

	// cycle serializes RunCycle and ClearStatus.
	cycle sync.Mutex
}

// Option is a functional option for configuring a Monitor.
type Option func(*Monitor) error

// WithCheckTimeout sets the per-check timeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(m *Monitor) error {
		if d <= 0 {
			return fmt.Errorf("check timeout must be positive, got %v", d)
		}
		m.checkTimeout = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(m *Monitor) error {
		if logger != nil {
			m.logger = logger
		}
		return nil
	}
}

// WithNotifier sets where messages of changed entries are enqueued.
func WithNotifier(n Notifier) Option {
	return func(m *Monitor) error {
		m.notifier = n
		return nil
	}
}

// WithTelemetry records cycle counters on metrics.
func WithTelemetry(metrics *telemetry.Metrics) Option {
	return func(m *Monitor) error {
		m.metrics = metrics
		return nil
	}
}

// New creates a Monitor whose store is loaded from backend. A nil backend
// keeps state in memory only.
func New(backend Backend, opts ...Option) (*Monitor, error) {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	m := &Monitor{
		backend:      backend,
		checkTimeout: DefaultCheckTimeout,
		logger:       discard,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, fmt.Errorf("monitor: %w", err)
		}
	}

	if backend == nil {
		m.store = status.New()
		return m, nil
	}
	store, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("monitor: could not load status: %w", err)
	}
	m.store = store
	return m, nil
}

// Store returns the live status store. Callers must treat it as read-only.
func (m *Monitor) Store() *status.Store {
	return m.store
}

// StatusChanged reports whether newStatus differs from the recorded status
// of (checkName, key). A key with no record counts as changed.
func (m *Monitor) StatusChanged(checkName, key string, newStatus bool) bool {
	prev, ok := m.store.Lookup(checkName, key)
	return !ok || prev.Status != newStatus
}

// PreviousMetadata returns the metadata recorded for (checkName, key).
func (m *Monitor) PreviousMetadata(checkName, key string) (map[string]any, bool) {
	prev, ok := m.store.Lookup(checkName, key)
	if !ok {
		return nil, false
	}
	return prev.Metadata, true
}

// Previous returns the entry recorded for (checkName, key).
func (m *Monitor) Previous(checkName, key string) (status.Entry, bool) {
	return m.store.Lookup(checkName, key)
}

// ClearStatus empties the store and persists the empty state.
func (m *Monitor) ClearStatus() error {
	m.cycle.Lock()
	defer m.cycle.Unlock()

	m.store.Clear()
	m.logger.Infof("Status cleared")
	if m.backend == nil {
		return nil
	}
	if err := m.backend.Save(m.store); err != nil {
		return fmt.Errorf("monitor: could not persist cleared status: %w", err)
	}
	return nil
}

// outcome is what one check run produced.
type outcome struct {
	results *check.ResultSet
	err     error
}

// RunCycle runs every check once with at most maxConcurrency running at a
// time, applies the diff and persists the store if anything changed. It
// reports whether anything changed.
//
// If ctx ends before all checks finish, the partial results are discarded
// and ctx.Err() is returned so that a shutdown is not recorded as a wave of
// check failures.
func (m *Monitor) RunCycle(ctx context.Context, checks []check.Descriptor, maxConcurrency int) (bool, error) {
	if maxConcurrency < 1 {
		return false, fmt.Errorf("%w, got %d", ErrInvalidConcurrency, maxConcurrency)
	}
	if len(checks) == 0 {
		return false, nil
	}

	m.cycle.Lock()
	defer m.cycle.Unlock()

	start := time.Now()
	outcomes := make([]outcome, len(checks))

	var g errgroup.Group
	g.SetLimit(maxConcurrency)
	for i, d := range checks {
		g.Go(func() error {
			outcomes[i] = m.runCheck(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		m.logger.Infof("Cycle aborted after %v: %v", time.Since(start).Round(time.Millisecond), err)
		return false, err
	}

	changed := false
	for i, d := range checks {
		if m.apply(ctx, d.Name, outcomes[i]) {
			changed = true
		}
	}

	m.logger.Debugf("Cycle ran %d check(s) in %v, changed=%v", len(checks), time.Since(start).Round(time.Millisecond), changed)
	if !changed {
		return false, nil
	}
	m.metrics.CycleChanged(ctx)

	if m.backend == nil {
		return true, nil
	}
	if err := m.backend.Save(m.store); err != nil {
		m.logger.Errorf("Could not persist status: %v", err)
		return true, fmt.Errorf("monitor: could not persist status: %w", err)
	}
	return true, nil
}

// runCheck runs one check under the per-check timeout. Errors, panics and
// timeouts are all returned as outcome.err.
func (m *Monitor) runCheck(ctx context.Context, d check.Descriptor) outcome {
	ctx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	defer cancel()

	m.logger.Debugf("Running check %s", d.Name)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", check.ErrCheckPanic, r)}
			}
		}()
		results, err := d.Check.Run(ctx)
		done <- outcome{results: results, err: err}
	}()

	select {
	case o := <-done:
		return o
	case <-ctx.Done():
		return outcome{err: fmt.Errorf("no result after %v: %w", m.checkTimeout, ctx.Err())}
	}
}

// apply folds one check's outcome into the store. It reports whether any
// key changed.
func (m *Monitor) apply(ctx context.Context, name string, o outcome) bool {
	if o.err != nil {
		m.logger.Errorf("Check %s failed: %v", name, o.err)
		m.metrics.CheckRun(ctx, name, true)

		rs := check.NewResultSet()
		rs.Set(check.FailureKey, false, fmt.Sprintf("%s: %v", name, o.err), false, nil)
		return m.diff(ctx, name, rs)
	}

	m.metrics.CheckRun(ctx, name, false)
	if o.results == nil {
		m.logger.Warnf("Check %s returned no results, ignoring this cycle", name)
		return false
	}

	rs := o.results.Clone()
	if !rs.Has(check.FailureKey) {
		if prev, ok := m.store.Lookup(name, check.FailureKey); ok && !prev.Status {
			rs.Set(check.FailureKey, true, name+": recovered", false, nil)
		}
	}
	return m.diff(ctx, name, rs)
}

func (m *Monitor) diff(ctx context.Context, name string, rs *check.ResultSet) bool {
	n := 0
	for _, e := range rs.Entries() {
		if !e.Changed && !m.StatusChanged(name, e.Key, e.Status) {
			continue
		}
		m.logger.Debugf("Check %s key %s is now %v", name, e.Key, e.Status)
		m.store.Set(name, e.Key, status.Entry{Status: e.Status, Metadata: e.Metadata})
		if e.Notify && m.notifier != nil {
			m.notifier.Enqueue(e.Message, notify.TagFor(e.Status))
		}
		n++
	}

	if n > 0 {
		m.logger.Infof("Check %s: %d key(s) changed", name, n)
		m.metrics.KeysChanged(ctx, name, n)
	}
	return n > 0
}
