package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kylerisse/watchful/pkg/check"
)

func TestNew_Valid(t *testing.T) {
	c, err := New([]string{"http://localhost"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %v", c.timeout)
	}
	if c.skipVerify {
		t.Error("expected TLS verification on by default")
	}
	if c.Type() != "web" {
		t.Errorf("expected type 'web', got %q", c.Type())
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("expected error for no URLs")
	}
	if _, err := New([]string{""}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New([]string{"http://a", "http://a"}); err == nil {
		t.Error("expected error for duplicate URL")
	}
	if _, err := New([]string{"http://a"}, WithTimeout(0)); err == nil {
		t.Error("expected error for zero timeout")
	}
	if _, err := New([]string{"http://a"}, WithExpectStatus(42)); err == nil {
		t.Error("expected error for invalid status")
	}
	if _, err := New([]string{"http://a"}, WithClient(nil)); err == nil {
		t.Error("expected error for nil client")
	}
}

func TestRun_UpAndDown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fine"))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	urls := []string{srv.URL + "/ok", srv.URL + "/moved", srv.URL + "/broken"}
	c, err := New(urls, WithClient(srv.Client()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rs, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(rs.Keys(), ",") != strings.Join(urls, ",") {
		t.Errorf("expected keys in URL order, got %v", rs.Keys())
	}

	ok, _ := rs.Get(srv.URL + "/ok")
	if !ok.Status || ok.Message != "Web: "+srv.URL+"/ok UP" {
		t.Errorf("unexpected /ok entry: %+v", ok)
	}
	if ok.Metadata["status_code"] != 200 {
		t.Errorf("expected status_code 200, got %v", ok.Metadata["status_code"])
	}
	if _, isInt := ok.Metadata["latency_us"].(int64); !isInt {
		t.Errorf("expected latency_us, got %v", ok.Metadata["latency_us"])
	}

	moved, _ := rs.Get(srv.URL + "/moved")
	if !moved.Status {
		t.Error("expected redirect to be followed")
	}

	broken, _ := rs.Get(srv.URL + "/broken")
	if broken.Status {
		t.Error("expected 500 to be down")
	}
	if broken.Metadata["status_code"] != 500 {
		t.Errorf("expected status_code 500, got %v", broken.Metadata["status_code"])
	}
	if !broken.Notify {
		t.Error("expected web entries to notify")
	}
}

func TestRun_ExpectStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := New([]string{srv.URL}, WithClient(srv.Client()), WithExpectStatus(401))
	rs, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e, _ := rs.Get(srv.URL); !e.Status {
		t.Error("expected 401 to satisfy expect_status 401")
	}
}

func TestRun_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, _ := New([]string{url}, WithTimeout(time.Second))
	rs, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, _ := rs.Get(url)
	if e.Status {
		t.Error("expected closed server to be down")
	}
	if !strings.HasPrefix(e.Message, "Web: "+url+" DOWN") {
		t.Errorf("unexpected message %q", e.Message)
	}
	if e.Metadata != nil {
		t.Errorf("expected no metadata without a response, got %v", e.Metadata)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c, _ := New([]string{srv.URL}, WithClient(srv.Client()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Run(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFactory_Valid(t *testing.T) {
	chk, err := Factory("sites", map[string]any{
		"urls":          []any{"https://example.com"},
		"sites":         map[string]any{"intranet.lan": true, "old.lan": false},
		"timeout":       "3s",
		"skip_verify":   true,
		"expect_status": float64(204),
	}, check.Env{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := chk.(*Check)
	if got := strings.Join(c.urls, ","); got != "https://example.com,http://intranet.lan" {
		t.Errorf("unexpected urls %s", got)
	}
	if c.timeout != 3*time.Second || !c.skipVerify || c.expectStatus != 204 {
		t.Errorf("options not applied: %+v", c)
	}
}

func TestFactory_StringSliceURLs(t *testing.T) {
	chk, err := Factory("web", map[string]any{"urls": []string{"http://localhost:8080"}}, check.Env{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chk.(*Check).urls) != 1 {
		t.Errorf("expected 1 URL")
	}
}

func TestFactory_Errors(t *testing.T) {
	tests := map[string]map[string]any{
		"no urls":            {},
		"wrong urls type":    {"urls": "http://a"},
		"wrong url item":     {"urls": []any{1}},
		"wrong site value":   {"sites": map[string]any{"a": "yes"}},
		"invalid timeout":    {"urls": []any{"http://a"}, "timeout": "later"},
		"wrong timeout type": {"urls": []any{"http://a"}, "timeout": 5},
		"wrong skip_verify":  {"urls": []any{"http://a"}, "skip_verify": "yes"},
		"wrong status type":  {"urls": []any{"http://a"}, "expect_status": "200"},
		"invalid status":     {"urls": []any{"http://a"}, "expect_status": float64(1000)},
	}
	for name, cfg := range tests {
		if _, err := Factory("web", cfg, check.Env{}); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRegistryIntegration(t *testing.T) {
	reg := check.NewRegistry()
	if err := reg.Register(TypeName, Factory); err != nil {
		t.Fatalf("failed to register web: %v", err)
	}
	chk, err := reg.Create("web", "web", map[string]any{
		"urls": []any{"http://localhost:8080", "https://localhost:8443"},
	}, check.Env{})
	if err != nil {
		t.Fatalf("failed to create web check: %v", err)
	}
	if chk.Type() != "web" {
		t.Errorf("expected type 'web', got %q", chk.Type())
	}
}

func TestCheckInterface(t *testing.T) {
	var _ check.Check = &Check{}
}
