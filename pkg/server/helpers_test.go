package server

import (
	"context"
	"sync"
	"testing"

	"golang.org/x/time/rate"

	"github.com/kylerisse/watchful/pkg/check"
	"github.com/kylerisse/watchful/pkg/config"
	"github.com/kylerisse/watchful/pkg/monitor"
	"github.com/kylerisse/watchful/pkg/notify"
)

// recordingSink collects every delivered text.
type recordingSink struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingSink) Deliver(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingSink) delivered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

// stubCheck returns a check reporting the given key statuses.
func stubCheck(keys map[string]bool) check.Check {
	return check.NewFunc("stub", func(context.Context) (*check.ResultSet, error) {
		rs := check.NewResultSet()
		for k, up := range keys {
			msg := k + " DOWN"
			if up {
				msg = k + " UP"
			}
			rs.Set(k, up, msg, true, map[string]any{"target": k})
		}
		return rs, nil
	})
}

// newTestServer builds a Server with an in-memory monitor and a recording
// sink. The HTTP listener is disabled.
func newTestServer(t *testing.T, checks []check.Descriptor, opts ...Option) (*Server, *recordingSink) {
	t.Helper()

	sink := &recordingSink{}
	ch, err := notify.NewChannel(sink,
		notify.WithFormatter(notify.PlainFormatter{}),
		notify.WithRateLimit(rate.Inf, 0),
	)
	if err != nil {
		t.Fatalf("failed to create channel: %v", err)
	}
	mon, err := monitor.New(nil, monitor.WithNotifier(ch))
	if err != nil {
		t.Fatalf("failed to create monitor: %v", err)
	}

	cfg := config.Default()
	cfg.Server.Listen = ""

	s, err := New(cfg, mon, ch, checks, nil, opts...)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, sink
}
