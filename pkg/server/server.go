// Package server runs monitor cycles on a schedule and serves the resulting
// status over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kylerisse/watchful/pkg/check"
	"github.com/kylerisse/watchful/pkg/config"
	"github.com/kylerisse/watchful/pkg/monitor"
	"github.com/kylerisse/watchful/pkg/notify"
	"github.com/kylerisse/watchful/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestRate is the sustained request rate the API accepts.
	DefaultRequestRate = rate.Limit(200)

	// DefaultRequestBurst is the API request burst size.
	DefaultRequestBurst = 500

	shutdownTimeout = 5 * time.Second
)

// Server runs monitor cycles on a ticker and serves their results.
type Server struct {
	monitor  *monitor.Monitor
	channel  *notify.Channel
	checks   []check.Descriptor
	threads  int
	interval time.Duration
	listen   string

	metrics  *telemetry.Metrics
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
	logger   *logrus.Logger

	mu      sync.RWMutex
	lastRun time.Time
	lastErr error
	cycles  int

	cancel   context.CancelFunc
	httpSrv  *http.Server
	addr     net.Addr
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Option is a functional option for configuring a Server.
type Option func(*Server) error

// WithTelemetry reports counters on /api/summary.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(s *Server) error {
		s.metrics = m
		return nil
	}
}

// WithGatherer serves /metrics from g instead of the built-in status
// exposition.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) error {
		s.gatherer = g
		return nil
	}
}

// WithRequestLimit sets the API rate limit.
func WithRequestLimit(r rate.Limit, burst int) Option {
	return func(s *Server) error {
		if r <= 0 || burst < 1 {
			return fmt.Errorf("request limit must be positive, got %v/%d", r, burst)
		}
		s.limiter = rate.NewLimiter(r, burst)
		return nil
	}
}

// New creates a Server running checks through mon and flushing ch after
// every cycle. The HTTP surface is off when cfg.Server.Address() is empty.
func New(cfg *config.Config, mon *monitor.Monitor, ch *notify.Channel, checks []check.Descriptor, logger *logrus.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server: config must not be nil")
	}
	if mon == nil {
		return nil, errors.New("server: monitor must not be nil")
	}
	if ch == nil {
		return nil, errors.New("server: channel must not be nil")
	}
	if err := check.ValidateDescriptors(checks); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	s := &Server{
		monitor:  mon,
		channel:  ch,
		checks:   checks,
		threads:  cfg.Monitor.Threads,
		interval: time.Duration(cfg.Monitor.Interval),
		listen:   cfg.Server.Address(),
		limiter:  rate.NewLimiter(DefaultRequestRate, DefaultRequestBurst),
		logger:   logger,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("server: interval must be positive, got %v", s.interval)
	}
	return s, nil
}

// Start serves the API, if enabled, and runs one cycle immediately and then
// one per interval until ctx ends or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.listen != "" {
		if err := s.startAPI(); err != nil {
			cancel()
			return err
		}
	}

	s.channel.Start()
	s.logger.Infof("Running %d check(s) every %v", len(s.checks), s.interval)

	s.wg.Add(1)
	go s.worker(ctx)
	return nil
}

// Stop ends the cycle loop, shuts the API down and waits for queued
// notifications to be sent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()

		if s.httpSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := s.httpSrv.Shutdown(ctx); err != nil {
				s.logger.Errorf("API server shutdown: %v", err)
			}
			cancel()
		}

		s.channel.Stop()
		<-s.channel.Done()
		s.logger.Info("Server stopped.")
	})
}

// Addr returns the address the API listens on, or nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// RunOnce runs a single cycle and waits for its notifications, followed by
// a summary line, to be delivered. It reports whether anything changed.
func (s *Server) RunOnce(ctx context.Context) (bool, error) {
	s.channel.Start()

	changed, err := s.monitor.RunCycle(ctx, s.checks, s.threads)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastErr = err
	s.cycles++
	s.mu.Unlock()

	if derr := s.channel.DrainAndWait(ctx, true); derr != nil {
		s.logger.Warnf("Notifications still pending: %v", derr)
	}
	return changed, err
}
