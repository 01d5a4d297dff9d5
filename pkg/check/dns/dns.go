// Package dns implements a check that resolves one or more names against a
// specific server and compares each answer with an expected value.
// Supported record types are A, AAAA and PTR. Every query is reported as
// its own key, named after the queried name.
package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/kylerisse/watchful/pkg/check"
)

const (
	// TypeName is the registered name for this check type.
	TypeName = "dns"

	// DefaultTimeout is the default DNS query timeout.
	DefaultTimeout = 3 * time.Second
)

// query is the parsed configuration of a single DNS query.
type query struct {
	name   string // query name as provided (without trailing dot)
	qtype  uint16 // dns.TypeA, dns.TypeAAAA, dns.TypePTR
	expect string
}

// key returns the result key for q. The record type is appended when the
// same name is queried for several types.
func (q query) key(dup bool) string {
	if dup {
		return q.name + "/" + qtypeName(q.qtype)
	}
	return q.name
}

// Check implements check.Check using DNS queries to a specific server.
type Check struct {
	server  string // host:port of the DNS server
	timeout time.Duration
	queries []query
	keys    []string
	client  *dns.Client
}

// Option is a functional option for configuring a DNS Check.
type Option func(*Check) error

// WithTimeout sets the DNS query timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Check) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		c.timeout = d
		return nil
	}
}

// New creates a DNS Check targeting server with the given queries.
func New(server string, queries []query, opts ...Option) (*Check, error) {
	if server == "" {
		return nil, fmt.Errorf("dns: server must not be empty")
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("dns: at least one query is required")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	c := &Check{
		server:  server,
		timeout: DefaultTimeout,
		queries: queries,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("dns: %w", err)
		}
	}

	names := make(map[string]int, len(queries))
	for _, q := range queries {
		names[q.name]++
	}
	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		k := q.key(names[q.name] > 1)
		if seen[k] {
			return nil, fmt.Errorf("dns: duplicate query %s %s", qtypeName(q.qtype), q.name)
		}
		seen[k] = true
		c.keys = append(c.keys, k)
	}

	c.client = &dns.Client{
		Timeout: c.timeout,
	}

	return c, nil
}

// Type returns the check type name.
func (c *Check) Type() string {
	return TypeName
}

// Run executes every query against the server. A query that fails to
// resolve or returns an unexpected answer is an entry with status false;
// the round-trip time of a good answer is stored as latency_us.
func (c *Check) Run(ctx context.Context) (*check.ResultSet, error) {
	rs := check.NewResultSet()

	for i, q := range c.queries {
		label := fmt.Sprintf("%s %s", qtypeName(q.qtype), q.name)

		rtt, err := c.resolve(ctx, q)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("dns: %w", ctxErr)
		}
		if err != nil {
			rs.Set(c.keys[i], false, fmt.Sprintf("DNS: %s failed: %v", label, err), true, nil)
			continue
		}
		rs.Set(c.keys[i], true, fmt.Sprintf("DNS: %s OK", label), true,
			map[string]any{"latency_us": rtt.Microseconds()})
	}

	return rs, nil
}

func (c *Check) resolve(ctx context.Context, q query) (time.Duration, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(q.name), q.qtype)
	msg.RecursionDesired = true

	resp, rtt, err := c.client.ExchangeContext(ctx, msg, c.server)
	if err != nil {
		return 0, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return 0, fmt.Errorf("rcode %s", dns.RcodeToString[resp.Rcode])
	}
	if err := validateAnswer(resp.Answer, q.qtype, q.expect); err != nil {
		return 0, err
	}
	return rtt, nil
}

// validateAnswer checks that at least one RR in the answer section matches
// the expected value for the given query type.
func validateAnswer(rrs []dns.RR, qtype uint16, expect string) error {
	for _, rr := range rrs {
		switch qtype {
		case dns.TypeA:
			if a, ok := rr.(*dns.A); ok && normalizeIP(a.A.String()) == normalizeIP(expect) {
				return nil
			}
		case dns.TypeAAAA:
			if aaaa, ok := rr.(*dns.AAAA); ok && normalizeIP(aaaa.AAAA.String()) == normalizeIP(expect) {
				return nil
			}
		case dns.TypePTR:
			if ptr, ok := rr.(*dns.PTR); ok && normalizeFQDN(ptr.Ptr) == normalizeFQDN(expect) {
				return nil
			}
		}
	}
	return fmt.Errorf("expected %q not found in answer", expect)
}

// normalizeIP re-serializes an IP address so that equivalent spellings
// compare equal.
func normalizeIP(s string) string {
	ip := net.ParseIP(s)
	if ip == nil {
		return s
	}
	return ip.String()
}

// normalizeFQDN strips the trailing dot and lowercases the name.
func normalizeFQDN(s string) string {
	return strings.ToLower(strings.TrimSuffix(s, "."))
}

// qtypeName returns a human-readable record type name for messages.
func qtypeName(qtype uint16) string {
	if name, ok := dns.TypeToString[qtype]; ok {
		return name
	}
	return fmt.Sprintf("TYPE%d", qtype)
}

// parseQType converts a record type string to a miekg/dns type constant.
// Supported values (case-insensitive): A, AAAA, PTR.
func parseQType(s string) (uint16, error) {
	switch strings.ToUpper(s) {
	case "A":
		return dns.TypeA, nil
	case "AAAA":
		return dns.TypeAAAA, nil
	case "PTR":
		return dns.TypePTR, nil
	default:
		return 0, fmt.Errorf("unsupported query type %q (supported: A, AAAA, PTR)", s)
	}
}

// Factory creates a DNS Check from a config map.
// Required keys:
//   - "server" (string): host or host:port of the DNS server to query
//   - "queries" (list of objects): each with "name", "type" and "expect"
//
// Optional keys:
//   - "timeout" (string): duration string (e.g. "5s"), default "3s"
func Factory(_ string, config map[string]any, _ check.Env) (check.Check, error) {
	server, err := check.String(config, "server", "")
	if err != nil {
		return nil, fmt.Errorf("dns: %w", err)
	}
	if server == "" {
		return nil, fmt.Errorf("dns: config missing required key 'server'")
	}

	queries, err := extractQueries(config)
	if err != nil {
		return nil, err
	}

	timeout, err := check.Duration(config, "timeout", DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("dns: %w", err)
	}

	return New(server, queries, WithTimeout(timeout))
}

// extractQueries parses the "queries" list from the config map.
func extractQueries(config map[string]any) ([]query, error) {
	raw, ok := config["queries"]
	if !ok {
		return nil, fmt.Errorf("dns: config missing required key 'queries'")
	}

	rawList, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("dns: 'queries' must be a list, got %T", raw)
	}
	if len(rawList) == 0 {
		return nil, fmt.Errorf("dns: 'queries' must not be empty")
	}

	queries := make([]query, 0, len(rawList))
	for i, item := range rawList {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("dns: query at index %d must be an object, got %T", i, item)
		}

		name, ok := m["name"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("dns: query at index %d missing required 'name'", i)
		}

		typeStr, ok := m["type"].(string)
		if !ok || typeStr == "" {
			return nil, fmt.Errorf("dns: query at index %d missing required 'type'", i)
		}
		qtype, err := parseQType(typeStr)
		if err != nil {
			return nil, fmt.Errorf("dns: query at index %d: %w", i, err)
		}

		expect, ok := m["expect"].(string)
		if !ok || expect == "" {
			return nil, fmt.Errorf("dns: query at index %d missing required 'expect'", i)
		}

		queries = append(queries, query{
			name:   strings.TrimSuffix(name, "."),
			qtype:  qtype,
			expect: expect,
		})
	}

	return queries, nil
}
