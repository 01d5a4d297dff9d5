package check

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	cfg := map[string]any{"server": "127.0.0.1:53", "bad": 1.0}

	if v, err := String(cfg, "server", ""); err != nil || v != "127.0.0.1:53" {
		t.Errorf("expected server value, got %q (%v)", v, err)
	}
	if v, err := String(cfg, "missing", "def"); err != nil || v != "def" {
		t.Errorf("expected default, got %q (%v)", v, err)
	}
	if _, err := String(cfg, "bad", ""); err == nil {
		t.Error("expected error for non-string")
	}
}

func TestBool(t *testing.T) {
	cfg := map[string]any{"on": true, "bad": "yes"}

	if v, err := Bool(cfg, "on", false); err != nil || !v {
		t.Errorf("expected true, got %v (%v)", v, err)
	}
	if v, err := Bool(cfg, "missing", true); err != nil || !v {
		t.Errorf("expected default true, got %v (%v)", v, err)
	}
	if _, err := Bool(cfg, "bad", false); err == nil {
		t.Error("expected error for non-bool")
	}
}

func TestNumber(t *testing.T) {
	cfg := map[string]any{"alert": 90.0, "count": 3, "bad": "x"}

	if v, err := Number(cfg, "alert", 0); err != nil || v != 90 {
		t.Errorf("expected 90, got %v (%v)", v, err)
	}
	if v, err := Number(cfg, "count", 0); err != nil || v != 3 {
		t.Errorf("expected 3, got %v (%v)", v, err)
	}
	if v, err := Number(cfg, "missing", 85); err != nil || v != 85 {
		t.Errorf("expected default 85, got %v (%v)", v, err)
	}
	if _, err := Number(cfg, "bad", 0); err == nil {
		t.Error("expected error for non-number")
	}
}

func TestDuration(t *testing.T) {
	cfg := map[string]any{"timeout": "5s", "bad": "five", "num": 5.0}

	if v, err := Duration(cfg, "timeout", 0); err != nil || v != 5*time.Second {
		t.Errorf("expected 5s, got %v (%v)", v, err)
	}
	if v, err := Duration(cfg, "missing", time.Second); err != nil || v != time.Second {
		t.Errorf("expected default 1s, got %v (%v)", v, err)
	}
	if _, err := Duration(cfg, "bad", 0); err == nil {
		t.Error("expected error for unparseable duration")
	}
	if _, err := Duration(cfg, "num", 0); err == nil {
		t.Error("expected error for numeric duration")
	}
}

func TestStringSlice(t *testing.T) {
	cfg := map[string]any{
		"json":   []any{"a", "b"},
		"native": []string{"c"},
		"mixed":  []any{"a", 1.0},
		"scalar": "a",
	}

	if v, err := StringSlice(cfg, "json"); err != nil || len(v) != 2 || v[1] != "b" {
		t.Errorf("expected [a b], got %v (%v)", v, err)
	}
	if v, err := StringSlice(cfg, "native"); err != nil || len(v) != 1 {
		t.Errorf("expected [c], got %v (%v)", v, err)
	}
	if v, err := StringSlice(cfg, "missing"); err != nil || v != nil {
		t.Errorf("expected nil, got %v (%v)", v, err)
	}
	if _, err := StringSlice(cfg, "mixed"); err == nil {
		t.Error("expected error for non-string item")
	}
	if _, err := StringSlice(cfg, "scalar"); err == nil {
		t.Error("expected error for scalar")
	}
}

func TestMap(t *testing.T) {
	cfg := map[string]any{"list": map[string]any{"/": 90.0}, "bad": []any{}}

	if v, err := Map(cfg, "list"); err != nil || v["/"] != 90.0 {
		t.Errorf("expected map, got %v (%v)", v, err)
	}
	if v, err := Map(cfg, "missing"); err != nil || v != nil {
		t.Errorf("expected nil, got %v (%v)", v, err)
	}
	if _, err := Map(cfg, "bad"); err == nil {
		t.Error("expected error for list")
	}
}
