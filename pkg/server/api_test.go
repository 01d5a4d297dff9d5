package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kylerisse/watchful/pkg/check"
	"github.com/kylerisse/watchful/pkg/telemetry"
)

func TestHandleAPI_BasicResponse(t *testing.T) {
	s, _ := newTestServer(t, []check.Descriptor{
		{Name: "ping", Check: stubCheck(map[string]bool{"8.8.8.8": true, "10.0.0.1": false})},
		{Name: "web", Check: stubCheck(map[string]bool{"https://example.org": true})},
	})
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest("GET", "/api", nil)
	w := httptest.NewRecorder()
	s.handler().ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	var body map[string]CheckAPIResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	ping, ok := body["ping"]
	if !ok {
		t.Fatal("expected ping in response")
	}
	if ping.Status != CheckStatusDegraded {
		t.Errorf("expected ping degraded, got %q", ping.Status)
	}
	if ping.Type != "stub" {
		t.Errorf("expected type stub, got %q", ping.Type)
	}
	if k := ping.Keys["8.8.8.8"]; !k.Status || k.Metadata["target"] != "8.8.8.8" {
		t.Errorf("unexpected key response %+v", k)
	}
	if body["web"].Status != CheckStatusUp {
		t.Errorf("expected web up, got %q", body["web"].Status)
	}
}

func TestHandleAPI_UnrunCheckIsUnknown(t *testing.T) {
	s, _ := newTestServer(t, []check.Descriptor{
		{Name: "ping", Check: stubCheck(map[string]bool{"8.8.8.8": true})},
	})

	req := httptest.NewRequest("GET", "/api", nil)
	w := httptest.NewRecorder()
	s.handler().ServeHTTP(w, req)

	var body map[string]CheckAPIResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["ping"].Status != CheckStatusUnknown {
		t.Errorf("expected unknown, got %q", body["ping"].Status)
	}
	if len(body["ping"].Keys) != 0 {
		t.Errorf("expected no keys, got %v", body["ping"].Keys)
	}
}

func TestHandleAPI_EmptyChecks(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/api", nil)
	w := httptest.NewRecorder()
	s.handler().ServeHTTP(w, req)

	var body map[string]CheckAPIResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("expected empty response, got %d checks", len(body))
	}
}

func TestHandleCheckAPI(t *testing.T) {
	failing := check.NewFunc("stub", func(context.Context) (*check.ResultSet, error) {
		return nil, errors.New("boom")
	})
	s, _ := newTestServer(t, []check.Descriptor{{Name: "broken", Check: failing}})
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/checks/broken", nil)
	w := httptest.NewRecorder()
	s.handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body CheckAPIResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != CheckStatusDown {
		t.Errorf("expected down, got %q", body.Status)
	}
	if k, ok := body.Keys[check.FailureKey]; !ok || k.Status {
		t.Errorf("expected failed %q key, got %+v", check.FailureKey, body.Keys)
	}
}

func TestHandleCheckAPI_NotFound(t *testing.T) {
	s, _ := newTestServer(t, nil)

	req := httptest.NewRequest("GET", "/api/checks/nope", nil)
	w := httptest.NewRecorder()
	s.handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleSummaryAPI(t *testing.T) {
	metrics := telemetry.NewNoop()
	s, _ := newTestServer(t, []check.Descriptor{
		{Name: "a", Check: stubCheck(map[string]bool{"x": true})},
		{Name: "b", Check: stubCheck(map[string]bool{"x": false})},
		{Name: "c", Check: stubCheck(map[string]bool{"x": true, "y": false})},
	}, WithTelemetry(metrics))
	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/summary", nil)
	w := httptest.NewRecorder()
	s.handler().ServeHTTP(w, req)

	var body SummaryAPIResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Checks != 3 || body.Up != 1 || body.Down != 1 || body.Degraded != 1 || body.Unknown != 0 {
		t.Errorf("unexpected counts %+v", body)
	}
	if body.Cycles != 1 || body.LastRun == 0 {
		t.Errorf("expected one recorded cycle, got %+v", body)
	}
	if body.LastError != "" {
		t.Errorf("expected no error, got %q", body.LastError)
	}
	if body.PendingNotifications != 0 {
		t.Errorf("expected drained queue, got %d pending", body.PendingNotifications)
	}
}
