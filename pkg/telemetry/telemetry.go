// Package telemetry records counters for check cycles and notification
// delivery using OpenTelemetry instruments.
package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the instrumentation scope used by the daemon.
const MeterName = "github.com/kylerisse/watchful"

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	ChecksRun              int64 `json:"checks_run"`
	ChecksFailed           int64 `json:"checks_failed"`
	KeysChanged            int64 `json:"keys_changed"`
	CyclesChanged          int64 `json:"cycles_changed"`
	NotificationsEnqueued  int64 `json:"notifications_enqueued"`
	NotificationsDelivered int64 `json:"notifications_delivered"`
	NotificationsDropped   int64 `json:"notifications_dropped"`
}

// Metrics holds the instruments. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	meter metric.Meter

	checksRun     metric.Int64Counter
	checksFailed  metric.Int64Counter
	keysChanged   metric.Int64Counter
	cyclesChanged metric.Int64Counter
	enqueued      metric.Int64Counter
	delivered     metric.Int64Counter
	dropped       metric.Int64Counter

	counts struct {
		checksRun     atomic.Int64
		checksFailed  atomic.Int64
		keysChanged   atomic.Int64
		cyclesChanged atomic.Int64
		enqueued      atomic.Int64
		delivered     atomic.Int64
		dropped       atomic.Int64
	}
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.checksRun, "watchful.checks.run", "Number of check executions", "{check}"},
		{&m.checksFailed, "watchful.checks.failed", "Number of check executions that failed", "{check}"},
		{&m.keysChanged, "watchful.keys.changed", "Number of keys whose status changed", "{key}"},
		{&m.cyclesChanged, "watchful.cycles.changed", "Number of cycles that changed the status store", "{cycle}"},
		{&m.enqueued, "watchful.notifications.enqueued", "Number of notifications queued", "{message}"},
		{&m.delivered, "watchful.notifications.delivered", "Number of notifications handed to the sink", "{message}"},
		{&m.dropped, "watchful.notifications.dropped", "Number of notifications dropped", "{message}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

// NewNoop returns Metrics backed by a no-op meter. Counters are still
// mirrored for Snapshot.
func NewNoop() *Metrics {
	m, err := New(noop.NewMeterProvider().Meter(MeterName))
	if err != nil {
		// The no-op meter never fails to create instruments.
		panic(err)
	}
	return m
}

// CheckRun records one check execution.
func (m *Metrics) CheckRun(ctx context.Context, checkName string, failed bool) {
	if m == nil {
		return
	}
	opt := metric.WithAttributes(attribute.String("check", checkName))
	m.checksRun.Add(ctx, 1, opt)
	m.counts.checksRun.Add(1)
	if failed {
		m.checksFailed.Add(ctx, 1, opt)
		m.counts.checksFailed.Add(1)
	}
}

// KeysChanged records n changed keys for checkName.
func (m *Metrics) KeysChanged(ctx context.Context, checkName string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.keysChanged.Add(ctx, int64(n), metric.WithAttributes(attribute.String("check", checkName)))
	m.counts.keysChanged.Add(int64(n))
}

// CycleChanged records a cycle that modified the store.
func (m *Metrics) CycleChanged(ctx context.Context) {
	if m == nil {
		return
	}
	m.cyclesChanged.Add(ctx, 1)
	m.counts.cyclesChanged.Add(1)
}

// NotificationEnqueued records one queued message.
func (m *Metrics) NotificationEnqueued(ctx context.Context) {
	if m == nil {
		return
	}
	m.enqueued.Add(ctx, 1)
	m.counts.enqueued.Add(1)
}

// NotificationsDelivered records n messages accepted by the sink.
func (m *Metrics) NotificationsDelivered(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.delivered.Add(ctx, int64(n))
	m.counts.delivered.Add(int64(n))
}

// NotificationsDropped records n messages that were not delivered.
func (m *Metrics) NotificationsDropped(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dropped.Add(ctx, int64(n))
	m.counts.dropped.Add(int64(n))
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		ChecksRun:              m.counts.checksRun.Load(),
		ChecksFailed:           m.counts.checksFailed.Load(),
		KeysChanged:            m.counts.keysChanged.Load(),
		CyclesChanged:          m.counts.cyclesChanged.Load(),
		NotificationsEnqueued:  m.counts.enqueued.Load(),
		NotificationsDelivered: m.counts.delivered.Load(),
		NotificationsDropped:   m.counts.dropped.Load(),
	}
}

// RegisterStatusGauge exposes the last known status of every key as the
// watchful.check.status gauge (1 up, 0 down). statuses is called on every
// collection.
func (m *Metrics) RegisterStatusGauge(statuses func() map[string]map[string]bool) error {
	if m == nil {
		return nil
	}
	_, err := m.meter.Int64ObservableGauge("watchful.check.status",
		metric.WithDescription("Last known status per check key (1 up, 0 down)"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for name, keys := range statuses() {
				for key, up := range keys {
					var v int64
					if up {
						v = 1
					}
					o.Observe(v, metric.WithAttributes(
						attribute.String("check", name),
						attribute.String("key", key),
					))
				}
			}
			return nil
		}),
	)
	return err
}
