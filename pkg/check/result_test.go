package check

import (
	"testing"
)

func TestResultSet_ZeroValue(t *testing.T) {
	var r ResultSet
	if r.Len() != 0 {
		t.Errorf("zero ResultSet should be empty, got %d entries", r.Len())
	}
	if !r.Set("host1", true, "", true, nil) {
		t.Fatal("Set on zero ResultSet should succeed")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", r.Len())
	}
}

func TestResultSet_SetAndGet(t *testing.T) {
	r := NewResultSet()
	r.Set("mount_root", false, "over 90%", true, map[string]any{"used": 93.0})

	e, ok := r.Get("mount_root")
	if !ok {
		t.Fatal("expected mount_root entry")
	}
	if e.Key != "mount_root" {
		t.Errorf("expected key 'mount_root', got %q", e.Key)
	}
	if e.Status {
		t.Error("expected status false")
	}
	if e.Message != "over 90%" {
		t.Errorf("expected message 'over 90%%', got %q", e.Message)
	}
	if !e.Notify {
		t.Error("expected notify true")
	}
	if e.Metadata["used"] != 93.0 {
		t.Errorf("expected metadata used=93, got %v", e.Metadata["used"])
	}
}

func TestResultSet_EmptyKeyRejected(t *testing.T) {
	r := NewResultSet()
	if r.Set("", true, "", true, nil) {
		t.Error("expected Set with empty key to fail")
	}
	if r.Add(Entry{}) {
		t.Error("expected Add with empty key to fail")
	}
	if r.Len() != 0 {
		t.Errorf("expected no entries, got %d", r.Len())
	}
}

func TestResultSet_ReplaceKeepsOrder(t *testing.T) {
	r := NewResultSet()
	r.Set("a", true, "", true, nil)
	r.Set("b", true, "", true, nil)
	r.Set("a", false, "down", true, nil)

	keys := r.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("expected [a b], got %v", keys)
	}
	e, _ := r.Get("a")
	if e.Status {
		t.Error("expected replaced entry to be false")
	}
}

func TestResultSet_Remove(t *testing.T) {
	r := NewResultSet()
	r.Set("a", true, "", true, nil)
	r.Set("b", true, "", true, nil)

	if !r.Remove("a") {
		t.Error("expected Remove to report true")
	}
	if r.Remove("a") {
		t.Error("expected second Remove to report false")
	}
	if r.Has("a") {
		t.Error("expected a to be gone")
	}
	if keys := r.Keys(); len(keys) != 1 || keys[0] != "b" {
		t.Errorf("expected [b], got %v", keys)
	}
}

func TestResultSet_Entries(t *testing.T) {
	r := NewResultSet()
	r.Set("z", true, "", true, nil)
	r.Set("y", false, "", false, nil)

	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Key != "z" || entries[1].Key != "y" {
		t.Errorf("expected insertion order [z y], got [%s %s]", entries[0].Key, entries[1].Key)
	}
}

func TestResultSet_CloneIndependent(t *testing.T) {
	r := NewResultSet()
	r.Set("host1", true, "", true, map[string]any{"latency_us": 10.0})

	c := r.Clone()
	r.Set("host2", true, "", true, nil)
	e, _ := r.Get("host1")
	e.Metadata["latency_us"] = 99.0

	if c.Len() != 1 {
		t.Errorf("clone should not see later additions, got %d entries", c.Len())
	}
	ce, _ := c.Get("host1")
	if ce.Metadata["latency_us"] != 10.0 {
		t.Errorf("clone metadata should be independent, got %v", ce.Metadata["latency_us"])
	}
}

func TestResultSet_NilReceiver(t *testing.T) {
	var r *ResultSet
	if r.Len() != 0 {
		t.Error("nil ResultSet should have length 0")
	}
	if _, ok := r.Get("x"); ok {
		t.Error("nil ResultSet should not contain keys")
	}
	if r.Keys() != nil {
		t.Error("nil ResultSet should have nil keys")
	}
	if r.Clone().Len() != 0 {
		t.Error("clone of nil ResultSet should be empty")
	}
}
