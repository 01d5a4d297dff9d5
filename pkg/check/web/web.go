// Package web implements an HTTP availability check over a list of URLs.
package web

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/kylerisse/watchful/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "web"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 10 * time.Second
)

// Check implements check.Check using HTTP GET requests to one or more URLs.
type Check struct {
	urls         []string
	timeout      time.Duration
	skipVerify   bool
	expectStatus int
	client       *http.Client
}

// Option is a functional option for configuring a web Check.
type Option func(*Check) error

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// WithSkipVerify sets whether to skip TLS certificate verification.
func WithSkipVerify(skip bool) Option {
	return func(c *Check) error {
		c.skipVerify = skip
		return nil
	}
}

// WithExpectStatus requires an exact response status code. Without it any
// status below 400 counts as up.
func WithExpectStatus(code int) Option {
	return func(c *Check) error {
		if code < 100 || code > 599 {
			return fmt.Errorf("expect_status must be a valid HTTP status, got %d", code)
		}
		c.expectStatus = code
		return nil
	}
}

// WithClient replaces the HTTP client. The timeout and TLS options are not
// applied to a supplied client.
func WithClient(client *http.Client) Option {
	return func(c *Check) error {
		if client == nil {
			return fmt.Errorf("client must not be nil")
		}
		c.client = client
		return nil
	}
}

// New creates a web Check for the given URLs.
func New(urls []string, opts ...Option) (*Check, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("web: at least one URL is required")
	}
	for i, u := range urls {
		if u == "" {
			return nil, fmt.Errorf("web: URL at index %d is empty", i)
		}
		if slices.Contains(urls[:i], u) {
			return nil, fmt.Errorf("web: duplicate URL %q", u)
		}
	}

	c := &Check{
		urls:    urls,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("web: %w", err)
		}
	}

	if c.client == nil {
		c.client = &http.Client{
			Timeout: c.timeout,
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: c.skipVerify},
			},
		}
	}

	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run requests every URL and returns one entry per URL. Metadata carries
// the response status_code and latency_us when a response arrived.
func (c *Check) Run(ctx context.Context) (*check.ResultSet, error) {
	rs := check.NewResultSet()

	for _, url := range c.urls {
		code, elapsed, err := c.get(ctx, url)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("web: %w", ctxErr)
		}
		if err != nil {
			rs.Set(url, false, fmt.Sprintf("Web: %s DOWN (%v)", url, err), true, nil)
			continue
		}

		up := c.accept(code)
		rs.Set(url, up, fmt.Sprintf("Web: %s %s", url, upDown(up)), true, map[string]any{
			"status_code": code,
			"latency_us":  elapsed.Microseconds(),
		})
	}

	return rs, nil
}

func (c *Check) get(ctx context.Context, url string) (int, time.Duration, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()

	return resp.StatusCode, time.Since(start), nil
}

func (c *Check) accept(code int) bool {
	if c.expectStatus != 0 {
		return code == c.expectStatus
	}
	return code < http.StatusBadRequest
}

func upDown(up bool) string {
	if up {
		return "UP"
	}
	return "DOWN"
}

// Factory creates a web Check from a config map.
//
// URLs come from "urls" (list) and/or "sites" (object of site -> enabled
// bool); a site without a scheme is requested over http.
// Optional keys:
//   - "timeout" (string): duration string (e.g. "10s")
//   - "skip_verify" (bool): skip TLS certificate verification
//   - "expect_status" (number): exact status code required
func Factory(_ string, config map[string]any, _ check.Env) (check.Check, error) {
	urls, err := extractURLs(config)
	if err != nil {
		return nil, err
	}

	timeout, err := check.Duration(config, "timeout", DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}
	opts := []Option{WithTimeout(timeout)}

	skip, err := check.Bool(config, "skip_verify", false)
	if err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}
	opts = append(opts, WithSkipVerify(skip))

	if _, ok := config["expect_status"]; ok {
		code, err := check.Number(config, "expect_status", 0)
		if err != nil {
			return nil, fmt.Errorf("web: %w", err)
		}
		opts = append(opts, WithExpectStatus(int(code)))
	}

	return New(urls, opts...)
}

// extractURLs merges the "urls" list with the enabled entries of "sites".
func extractURLs(config map[string]any) ([]string, error) {
	urls, err := check.StringSlice(config, "urls")
	if err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}

	sites, err := check.Map(config, "sites")
	if err != nil {
		return nil, fmt.Errorf("web: %w", err)
	}
	names := make([]string, 0, len(sites))
	for name := range sites {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		enabled, ok := sites[name].(bool)
		if !ok {
			return nil, fmt.Errorf("web: 'sites.%s' must be a bool, got %T", name, sites[name])
		}
		if !enabled {
			continue
		}
		url := name
		if !strings.Contains(url, "://") {
			url = "http://" + url
		}
		if !slices.Contains(urls, url) {
			urls = append(urls, url)
		}
	}

	if len(urls) == 0 {
		return nil, fmt.Errorf("web: config needs 'urls' or enabled 'sites'")
	}
	return urls, nil
}
