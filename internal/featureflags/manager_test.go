package featureflags

import "testing"

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	if !m.Enabled("a", 1) || !m.Enabled("c", 1) || !m.Enabled("e", 1) {
		t.Fatal("expected enabled boolean values to evaluate true")
	}
	if m.Enabled("b", 1) || m.Enabled("d", 1) || m.Enabled("f", 1) {
		t.Fatal("expected disabled boolean values to evaluate false")
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,over=150%")

	if !m.Enabled("always", 1) || !m.Enabled("over", 1) {
		t.Fatal("100% rollout should always be enabled")
	}
	if m.Enabled("never", 1) {
		t.Fatal("0% rollout should always be disabled")
	}

	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		if got := m.Enabled("canary", 42); got != first {
			t.Fatal("rollout evaluation must be deterministic per user")
		}
	}

	if m.Enabled("canary", 0) {
		t.Fatal("percentage rollout requires non-zero userID")
	}
}

func TestEnabled_CanaryCoversRoughlyItsShare(t *testing.T) {
	m := NewManager("canary=50%")
	on := 0
	for id := uint(1); id <= 1000; id++ {
		if m.Enabled("canary", id) {
			on++
		}
	}
	if on < 400 || on > 600 {
		t.Fatalf("50%% rollout enabled %d of 1000 users", on)
	}
}

func TestEnabledOr(t *testing.T) {
	m := NewManager(FlagGoogleLogin + "=off")

	if m.EnabledOr(FlagGoogleLogin, 1, true) {
		t.Fatal("configured flag must win over the default")
	}
	if !m.EnabledOr(FlagUnreadNotifications, 1, true) {
		t.Fatal("unconfigured flag should fall back to the default")
	}

	var nilManager *Manager
	if !nilManager.EnabledOr(FlagGoogleLogin, 1, true) {
		t.Fatal("nil manager should fall back to the default")
	}
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,x=on, y = 20% ,z=off,w=maybe ")

	raw := m.Raw()
	if len(raw) != 3 {
		t.Fatalf("expected 3 parsed flags, got %d", len(raw))
	}
	if raw["x"] != "on" || raw["y"] != "20%" || raw["z"] != "off" {
		t.Fatalf("unexpected raw flags: %#v", raw)
	}
	if names := m.Names(); names[0] != "x" || names[2] != "z" {
		t.Fatalf("unexpected names: %v", names)
	}

	snap := m.Snapshot(123)
	if len(snap) != 3+len(Builtin) {
		t.Fatalf("expected configured plus builtin flags, got %#v", snap)
	}
	if !snap["x"] || snap["z"] {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
	for _, name := range Builtin {
		if !snap[name] {
			t.Fatalf("builtin %s should default on", name)
		}
	}
}

func TestSnapshot_ConfiguredBuiltinWins(t *testing.T) {
	m := NewManager("event_publishing=off")
	snap := m.Snapshot(1)
	if snap[FlagEventPublishing] || !snap[FlagGoogleLogin] {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}

	var nilManager *Manager
	if got := nilManager.Snapshot(1); len(got) != len(Builtin) || !got[FlagUnreadNotifications] {
		t.Fatalf("nil manager snapshot: %#v", got)
	}
	if len(nilManager.Raw()) != 0 {
		t.Fatal("nil manager has no raw flags")
	}
}
