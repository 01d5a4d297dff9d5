// Package wifistations implements a check that scrapes a Prometheus metrics
// endpoint for wifi_stations gauge values and reports, per radio interface,
// whether the radio is present and within its client limit.
//
// The target is expected to expose lines like:
//
//	wifi_stations{ifname="phy0-ap0"} 3
//	wifi_stations{ifname="phy1-ap0"} 7
//
// Each configured radio becomes one key named after its ifname.
package wifistations

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kylerisse/watchful/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "wifi_stations"

	// DefaultTimeout is the default HTTP scrape timeout.
	DefaultTimeout = 5 * time.Second

	// DefaultPort is the default port for the metrics endpoint.
	DefaultPort = "9100"

	// DefaultPath is the default path for the metrics endpoint.
	DefaultPath = "/metrics"

	// MetricName is the Prometheus metric name to look for.
	MetricName = "wifi_stations"
)

// WifiStations implements check.Check by scraping a Prometheus metrics endpoint.
type WifiStations struct {
	url        string
	radios     []string
	maxClients int64
	timeout    time.Duration
	client     *http.Client
}

// Option is a functional option for configuring a WifiStations check.
type Option func(*WifiStations) error

// WithTimeout sets the HTTP scrape timeout.
func WithTimeout(d time.Duration) Option {
	return func(w *WifiStations) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		w.timeout = d
		return nil
	}
}

// WithMaxClients marks a radio as failing once more than n clients are
// connected. Zero disables the limit.
func WithMaxClients(n int64) Option {
	return func(w *WifiStations) error {
		if n < 0 {
			return fmt.Errorf("max_clients must not be negative, got %d", n)
		}
		w.maxClients = n
		return nil
	}
}

// New creates a WifiStations check.
func New(url string, radios []string, opts ...Option) (*WifiStations, error) {
	if url == "" {
		return nil, fmt.Errorf("wifi_stations: url must not be empty")
	}
	if len(radios) == 0 {
		return nil, fmt.Errorf("wifi_stations: at least one radio is required")
	}
	for i, r := range radios {
		if r == "" {
			return nil, fmt.Errorf("wifi_stations: radio at index %d is empty", i)
		}
		if slices.Contains(radios[:i], r) {
			return nil, fmt.Errorf("wifi_stations: duplicate radio %q", r)
		}
	}

	w := &WifiStations{
		url:     url,
		radios:  radios,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, fmt.Errorf("wifi_stations: %w", err)
		}
	}

	w.client = &http.Client{Timeout: w.timeout}
	return w, nil
}

// Type returns the check type name.
func (w *WifiStations) Type() string {
	return TypeName
}

// Run scrapes the endpoint and returns one entry per configured radio. A
// radio missing from the scrape is reported down. A failed scrape fails the
// whole check.
func (w *WifiStations) Run(ctx context.Context) (*check.ResultSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return nil, fmt.Errorf("wifi_stations: failed to create request: %w", err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wifi_stations: scrape failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("wifi_stations: unexpected status %d", resp.StatusCode)
	}

	values, err := parseMetrics(resp.Body, w.radios)
	if err != nil {
		return nil, fmt.Errorf("wifi_stations: %w", err)
	}

	rs := check.NewResultSet()
	for _, radio := range w.radios {
		clients, ok := values[radio]
		if !ok {
			rs.Set(radio, false, fmt.Sprintf("WiFi: %s missing", radio), true, nil)
			continue
		}
		meta := map[string]any{"clients": clients}
		if w.maxClients > 0 && clients > w.maxClients {
			rs.Set(radio, false, fmt.Sprintf("WiFi: %s has %d clients (max %d)", radio, clients, w.maxClients), true, meta)
			continue
		}
		rs.Set(radio, true, fmt.Sprintf("WiFi: %s UP, %d clients", radio, clients), true, meta)
	}
	return rs, nil
}

// parseMetrics reads Prometheus text format and extracts wifi_stations values
// for the given radios.
func parseMetrics(r io.Reader, radios []string) (map[string]int64, error) {
	found := make(map[string]int64)
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, MetricName+"{") {
			continue
		}

		ifname, value, err := parseLine(line)
		if err != nil {
			continue
		}
		if slices.Contains(radios, ifname) {
			found[ifname] = value
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading metrics: %w", err)
	}
	return found, nil
}

// parseLine extracts the ifname label value and numeric value from a line like:
//
//	wifi_stations{ifname="phy0-ap0"} 3
func parseLine(line string) (string, int64, error) {
	start := strings.Index(line, `ifname="`)
	if start == -1 {
		return "", 0, fmt.Errorf("no ifname label found")
	}
	start += len(`ifname="`)

	end := strings.Index(line[start:], `"`)
	if end == -1 {
		return "", 0, fmt.Errorf("unterminated ifname label")
	}
	ifname := line[start : start+end]

	braceEnd := strings.Index(line, "}")
	if braceEnd == -1 {
		return "", 0, fmt.Errorf("no closing brace found")
	}

	fields := strings.Fields(line[braceEnd+1:])
	if len(fields) == 0 {
		return "", 0, fmt.Errorf("missing value")
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid value %q: %w", fields[0], err)
	}

	return ifname, int64(value), nil
}

// Factory creates a WifiStations check from a config map.
//
// Either "url" (string) or "target" (string, host used to build
// http://<target>:9100/metrics) is required, plus "radios" (list of ifname
// strings). Optional keys: "timeout" (duration string) and "max_clients"
// (number).
func Factory(_ string, config map[string]any, _ check.Env) (check.Check, error) {
	url, err := check.String(config, "url", "")
	if err != nil {
		return nil, fmt.Errorf("wifi_stations: %w", err)
	}
	if url == "" {
		target, err := check.String(config, "target", "")
		if err != nil {
			return nil, fmt.Errorf("wifi_stations: %w", err)
		}
		if target == "" {
			return nil, fmt.Errorf("wifi_stations: config missing 'target' or 'url'")
		}
		url = fmt.Sprintf("http://%s:%s%s", target, DefaultPort, DefaultPath)
	}

	radios, err := check.StringSlice(config, "radios")
	if err != nil {
		return nil, fmt.Errorf("wifi_stations: %w", err)
	}

	timeout, err := check.Duration(config, "timeout", DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("wifi_stations: %w", err)
	}
	opts := []Option{WithTimeout(timeout)}

	maxClients, err := check.Number(config, "max_clients", 0)
	if err != nil {
		return nil, fmt.Errorf("wifi_stations: %w", err)
	}
	opts = append(opts, WithMaxClients(int64(maxClients)))

	return New(url, radios, opts...)
}
