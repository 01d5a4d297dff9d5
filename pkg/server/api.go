package server

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/kylerisse/watchful/pkg/status"
	"github.com/kylerisse/watchful/pkg/telemetry"
)

// KeyStatusResponse is the recorded state of one key.
type KeyStatusResponse struct {
	Status   bool           `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CheckAPIResponse is the recorded state of one check.
type CheckAPIResponse struct {
	Type   string                       `json:"type,omitempty"`
	Status CheckStatus                  `json:"status"`
	Keys   map[string]KeyStatusResponse `json:"keys"`
}

// SummaryAPIResponse counts checks by aggregate status and carries the
// cycle and notification counters.
type SummaryAPIResponse struct {
	Checks               int                `json:"checks"`
	Up                   int                `json:"up"`
	Degraded             int                `json:"degraded"`
	Down                 int                `json:"down"`
	Unknown              int                `json:"unknown"`
	Cycles               int                `json:"cycles"`
	LastRun              int64              `json:"lastrun"`
	LastError            string             `json:"lasterror,omitempty"`
	PendingNotifications int                `json:"pending_notifications"`
	Telemetry            telemetry.Snapshot `json:"telemetry"`
}

// checkNames returns every configured check plus any check with recorded
// state, sorted.
func (s *Server) checkNames() []string {
	names := s.monitor.Store().Checks()
	for _, d := range s.checks {
		if !slices.Contains(names, d.Name) {
			names = append(names, d.Name)
		}
	}
	slices.Sort(names)
	return names
}

func (s *Server) checkType(name string) string {
	for _, d := range s.checks {
		if d.Name == name && d.Check != nil {
			return d.Check.Type()
		}
	}
	return ""
}

func (s *Server) checkResponse(name string) CheckAPIResponse {
	entries := s.monitor.Store().GetCheck(name, nil)
	keys := make(map[string]KeyStatusResponse, len(entries))
	for k, e := range entries {
		keys[k] = KeyStatusResponse{Status: e.Status, Metadata: e.Metadata}
	}
	return CheckAPIResponse{
		Type:   s.checkType(name),
		Status: computeCheckStatus(entries),
		Keys:   keys,
	}
}

func (s *Server) handleAPI(w http.ResponseWriter, _ *http.Request) {
	checks := make(map[string]CheckAPIResponse)
	for _, name := range s.checkNames() {
		checks[name] = s.checkResponse(name)
	}
	writeJSON(w, checks)
}

func (s *Server) handleCheckAPI(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !slices.Contains(s.checkNames(), name) {
		http.Error(w, "check not found", http.StatusNotFound)
		return
	}
	writeJSON(w, s.checkResponse(name))
}

func (s *Server) handleSummaryAPI(w http.ResponseWriter, _ *http.Request) {
	var resp SummaryAPIResponse
	for _, name := range s.checkNames() {
		resp.Checks++
		switch computeCheckStatus(s.monitor.Store().GetCheck(name, map[string]status.Entry{})) {
		case CheckStatusUp:
			resp.Up++
		case CheckStatusDegraded:
			resp.Degraded++
		case CheckStatusDown:
			resp.Down++
		default:
			resp.Unknown++
		}
	}

	s.mu.RLock()
	resp.Cycles = s.cycles
	if !s.lastRun.IsZero() {
		resp.LastRun = s.lastRun.Unix()
	}
	if s.lastErr != nil {
		resp.LastError = s.lastErr.Error()
	}
	s.mu.RUnlock()

	resp.PendingNotifications = s.channel.Pending()
	resp.Telemetry = s.metrics.Snapshot()
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
