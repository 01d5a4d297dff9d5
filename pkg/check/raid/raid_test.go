package raid

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/kylerisse/watchful/pkg/check"
)

const healthyMdstat = `Personalities : [raid1] [raid6] [raid5] [raid4]
md0 : active raid1 sdb1[1] sda1[0]
      244139648 blocks [2/2] [UU]

md1 : active raid5 sdc1[0] sdd1[1] sde1[3]
      1953262592 blocks super 1.2 level 5, 512k chunk, algorithm 2 [3/3] [UUU]
      bitmap: 0/8 pages [0KB], 65536KB chunk

unused devices: <none>
`

const degradedMdstat = `Personalities : [raid1]
md0 : active raid1 sda1[0]
      244139648 blocks [2/1] [U_]

md1 : active raid1 sdc1[2] sdb1[1]
      244139648 blocks [2/1] [_U]
      [===>.................]  recovery = 16.3% (39978944/244139648) finish=22.6min speed=149952K/sec

md127 : inactive sdf1[0](S)
      976630488 blocks super 1.2

unused devices: <none>
`

func mdstatFS(content string) fstest.MapFS {
	return fstest.MapFS{DefaultMdstat: &fstest.MapFile{Data: []byte(content)}}
}

// recordedStatus is a check.StatusReader over a fixed set of failing keys.
type recordedStatus map[string]map[string]any

func (r recordedStatus) StatusChanged(_, key string, newStatus bool) bool {
	_, ok := r[key]
	return !ok || newStatus
}

func (r recordedStatus) PreviousMetadata(_, key string) (map[string]any, bool) {
	md, ok := r[key]
	return md, ok
}

func TestParseMdstat(t *testing.T) {
	arrays, err := ParseMdstat(strings.NewReader(degradedMdstat))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(arrays) != 3 {
		t.Fatalf("expected 3 arrays, got %d: %+v", len(arrays), arrays)
	}

	tests := []struct {
		name    string
		state   string
		level   string
		members string
		health  Health
	}{
		{"md0", "active", "raid1", "[U_]", HealthDegraded},
		{"md1", "active", "raid1", "[_U]", HealthRecovery},
		{"md127", "inactive", "", "", HealthUnknown},
	}
	for i, tc := range tests {
		a := arrays[i]
		if a.Name != tc.name || a.State != tc.state || a.Level != tc.level || a.Members != tc.members {
			t.Errorf("array %d: got %+v", i, a)
		}
		if a.Health() != tc.health {
			t.Errorf("%s: expected health %s, got %s", tc.name, tc.health, a.Health())
		}
	}

	rec := arrays[1].Recovery
	if rec == nil || rec.Percent != 16.3 || rec.Finish != "22.6min" || rec.Speed != "149952K/sec" {
		t.Errorf("unexpected recovery %+v", rec)
	}
	if got := arrays[2].Devices; len(got) != 1 || got[0] != "sdf1[0](S)" {
		t.Errorf("unexpected md127 devices %v", got)
	}
}

func TestParseMdstat_Healthy(t *testing.T) {
	arrays, err := ParseMdstat(strings.NewReader(healthyMdstat))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(arrays) != 2 {
		t.Fatalf("expected 2 arrays, got %d", len(arrays))
	}
	for _, a := range arrays {
		if a.Health() != HealthOK {
			t.Errorf("%s: expected ok, got %s (%+v)", a.Name, a.Health(), a)
		}
	}
	if arrays[1].Total != 3 || arrays[1].Active != 3 || len(arrays[1].Devices) != 3 {
		t.Errorf("unexpected md1 %+v", arrays[1])
	}
}

func TestParseMdstat_Malformed(t *testing.T) {
	if _, err := ParseMdstat(strings.NewReader("md0 active raid1\n")); err == nil {
		t.Error("expected error for array line without colon")
	}
}

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]bool
		message map[string]string
	}{
		{
			name:    "healthy",
			content: healthyMdstat,
			want:    map[string]bool{"md0": true, "md1": true},
			message: map[string]string{"md0": "RAID md0 in good status [UU]"},
		},
		{
			name:    "degraded",
			content: degradedMdstat,
			want:    map[string]bool{"md0": false, "md1": false, "md127": false},
			message: map[string]string{
				"md0":   "RAID md0 is degraded [U_]",
				"md1":   "RAID md1 is degraded, recovery status 16.3%, estimate time to finish 22.6min",
				"md127": "RAID md127 unknown error (inactive)",
			},
		},
		{
			name:    "no arrays",
			content: "Personalities :\nunused devices: <none>\n",
			want:    map[string]bool{NoArraysKey: true},
			message: map[string]string{NoArraysKey: "No RAID arrays in the system"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(WithFS(mdstatFS(tc.content), DefaultMdstat))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			rs, err := c.Run(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rs.Len() != len(tc.want) {
				t.Fatalf("expected %d entries, got %v", len(tc.want), rs.Keys())
			}
			for key, status := range tc.want {
				e, ok := rs.Get(key)
				if !ok {
					t.Fatalf("missing key %s", key)
				}
				if e.Status != status || !e.Notify {
					t.Errorf("%s: unexpected entry %+v", key, e)
				}
				if e.Changed {
					t.Errorf("%s: expected no forced change without recorded state", key)
				}
				if msg, ok := tc.message[key]; ok && e.Message != msg {
					t.Errorf("%s: expected message %q, got %q", key, msg, e.Message)
				}
			}
		})
	}
}

func TestRun_RecoveryMetadata(t *testing.T) {
	c, _ := New(WithFS(mdstatFS(degradedMdstat), DefaultMdstat))
	rs, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e, _ := rs.Get("md1")
	if e.Metadata["state"] != "recovery" || e.Metadata["percent"] != 16.3 || e.Metadata["members"] != "[_U]" {
		t.Errorf("unexpected metadata %v", e.Metadata)
	}
}

func TestRun_MissingMdstat(t *testing.T) {
	c, _ := New(WithFS(fstest.MapFS{}, DefaultMdstat))
	rs, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e, ok := rs.Get(NoArraysKey); !ok || !e.Status {
		t.Errorf("expected healthy %q entry, got %v", NoArraysKey, rs.Entries())
	}
}

func TestRun_CancelledContext(t *testing.T) {
	c, _ := New(WithFS(mdstatFS(healthyMdstat), DefaultMdstat))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Run(ctx); err == nil {
		t.Error("expected error on cancelled context")
	}
}

func TestRun_ReannouncesChangedFailure(t *testing.T) {
	tests := []struct {
		name     string
		previous recordedStatus
		changed  map[string]bool
	}{
		{
			name: "same failure",
			previous: recordedStatus{
				"md0":   {"state": "degraded", "members": "[U_]"},
				"md1":   {"state": "recovery", "members": "[_U]"},
				"md127": {"state": "unknown", "members": ""},
			},
			changed: map[string]bool{"md0": false, "md1": false, "md127": false},
		},
		{
			name: "members and state differ",
			previous: recordedStatus{
				"md0":   {"state": "degraded", "members": "[UU_]"},
				"md1":   {"state": "degraded", "members": "[_U]"},
				"md127": {"state": "unknown", "members": ""},
			},
			changed: map[string]bool{"md0": true, "md1": true, "md127": false},
		},
		{
			name:     "never recorded",
			previous: recordedStatus{},
			changed:  map[string]bool{"md0": false, "md1": false, "md127": false},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(WithFS(mdstatFS(degradedMdstat), DefaultMdstat), WithStatus("raid", tc.previous))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			rs, err := c.Run(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for key, want := range tc.changed {
				e, _ := rs.Get(key)
				if e.Changed != want {
					t.Errorf("%s: expected changed=%v, got %v", key, want, e.Changed)
				}
			}
		})
	}
}

func TestRun_HealthyArrayNeverForcesChange(t *testing.T) {
	prev := recordedStatus{"md0": {"state": "degraded", "members": "[U_]"}}
	c, _ := New(WithFS(mdstatFS(healthyMdstat), DefaultMdstat), WithStatus("raid", prev))
	rs, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e, _ := rs.Get("md0"); e.Changed || !e.Status {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := map[string]Option{
		"nil fs":     WithFS(nil, DefaultMdstat),
		"bad path":   WithFS(fstest.MapFS{}, "/proc/mdstat"),
		"empty name": WithStatus("", recordedStatus{}),
	}
	for name, opt := range tests {
		if _, err := New(opt); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFactory(t *testing.T) {
	chk, err := Factory("raid", map[string]any{"mdstat": "/tmp/mdstat"}, check.Env{Status: recordedStatus{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := chk.(*Check)
	if c.path != "tmp/mdstat" || c.name != "raid" || c.status == nil {
		t.Errorf("unexpected check %+v", c)
	}
	if chk.Type() != TypeName {
		t.Errorf("expected type %q, got %q", TypeName, chk.Type())
	}

	chk, err = Factory("raid", nil, check.Env{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := chk.(*Check); c.path != DefaultMdstat || c.status != nil {
		t.Errorf("unexpected default check %+v", c)
	}
}

func TestFactory_Errors(t *testing.T) {
	tests := map[string]map[string]any{
		"relative path": {"mdstat": "proc/mdstat"},
		"bad type":      {"mdstat": 5},
	}
	for name, cfg := range tests {
		if _, err := Factory("raid", cfg, check.Env{}); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestRegistryIntegration(t *testing.T) {
	reg := check.NewRegistry()
	if err := reg.Register(TypeName, Factory); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	descs, err := reg.Build(map[string]map[string]any{"md": {"type": TypeName}}, check.Env{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(descs) != 1 || descs[0].Check.Type() != TypeName {
		t.Errorf("unexpected descriptors %+v", descs)
	}
}
