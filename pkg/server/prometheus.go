package server

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handlePrometheus serves the configured gatherer, or when there is none a
// check_status gauge per recorded key.
func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	if s.gatherer != nil {
		promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "# HELP check_status Whether the key is up (1=up, 0=down).\n")
	fmt.Fprint(w, "# TYPE check_status gauge\n")

	statuses := s.monitor.Store().Statuses()
	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		keys := make([]string, 0, len(statuses[name]))
		for k := range statuses[name] {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			v := 0
			if statuses[name][k] {
				v = 1
			}
			fmt.Fprintf(w, "check_status{check=\"%s\", key=\"%s\"} %d\n",
				sanitizePrometheusLabel(name),
				sanitizePrometheusLabel(k),
				v,
			)
		}
	}
}

// sanitizePrometheusLabel escapes backslash, double-quote, and newline
// characters in a Prometheus label value as the text exposition format requires.
func sanitizePrometheusLabel(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
