package safety

import (
	"testing"
	"time"
)

func newTestGate() *Gate {
	return NewGate(Options{})
}

func at(hour int) time.Time {
	return time.Date(2026, 8, 23, hour, 30, 0, 0, time.Local)
}

func TestAssess_EmergencyCue(t *testing.T) {
	g := newTestGate()

	a := g.Assess("I want to kill myself", nil)
	if a.Level != LevelEmergency {
		t.Fatalf("level = %s, want emergency", a.Level)
	}
	if a.RecommendedAction != ActionEmergencyProtocol {
		t.Fatalf("action = %s, want emergency-protocol", a.RecommendedAction)
	}
	if !a.Level.BlocksDispatch() {
		t.Fatal("emergency must block dispatch")
	}
	if len(a.Triggers) == 0 {
		t.Fatal("expected matched triggers")
	}
}

func TestAssess_MonitorCue(t *testing.T) {
	g := newTestGate()

	a := g.Assess("I'm tempted to drink", &SignalContext{Now: at(14)})
	if a.Level != LevelMonitor {
		t.Fatalf("level = %s, want monitor", a.Level)
	}
	if a.RecommendedAction != ActionInjectContext {
		t.Fatalf("action = %s, want inject-context", a.RecommendedAction)
	}
	if a.Level.BlocksDispatch() {
		t.Fatal("monitor must not block dispatch")
	}
}

// A higher-tier match wins even when lower-tier cues are present in the
// same text.
func TestAssess_HighestTierWins(t *testing.T) {
	g := newTestGate()

	a := g.Assess("I'm craving a drink and honestly I want to die", &SignalContext{Now: at(14)})
	if a.Level != LevelEmergency {
		t.Fatalf("level = %s, want emergency", a.Level)
	}
}

func TestAssess_NoMatchIsNone(t *testing.T) {
	g := newTestGate()

	for _, msg := range []string{"", "   ", "nice weather today", "made it to my meeting"} {
		a := g.Assess(msg, &SignalContext{Now: at(14)})
		if a.Level != LevelNone {
			t.Fatalf("Assess(%q) level = %s, want none", msg, a.Level)
		}
		if a.RecommendedAction != ActionProceed {
			t.Fatalf("Assess(%q) action = %s, want proceed", msg, a.RecommendedAction)
		}
	}
}

func TestAssess_VelocityEscalation(t *testing.T) {
	g := newTestGate()
	sctx := &SignalContext{RecentVelocity: 10, Now: at(14)}

	if a := g.Assess("nice weather today", sctx); a.Level != LevelMonitor {
		t.Fatalf("none + velocity = %s, want monitor", a.Level)
	}
	if a := g.Assess("I'm tempted to drink", sctx); a.Level != LevelConcern {
		t.Fatalf("monitor + velocity = %s, want concern", a.Level)
	}
	// Velocity never touches higher tiers.
	if a := g.Assess("I feel completely hopeless", sctx); a.Level < LevelConcern {
		t.Fatalf("concern + velocity = %s, must not decrease", a.Level)
	}
}

func TestAssess_LateNightEscalation(t *testing.T) {
	g := newTestGate()
	night := &SignalContext{Now: time.Date(2026, 8, 23, 23, 45, 0, 0, time.Local)}

	if a := g.Assess("I'm tempted to drink", night); a.Level != LevelConcern {
		t.Fatalf("monitor at 23:45 = %s, want concern", a.Level)
	}
	if a := g.Assess("I feel completely hopeless", night); a.Level != LevelUrgent {
		t.Fatalf("concern at 23:45 = %s, want urgent", a.Level)
	}
	// None stays none: late night only escalates monitor and concern.
	if a := g.Assess("nice weather today", night); a.Level != LevelNone {
		t.Fatalf("none at 23:45 = %s, want none", a.Level)
	}
}

func TestAssess_LateNightBandWrapsMidnight(t *testing.T) {
	g := newTestGate()

	early := &SignalContext{Now: time.Date(2026, 8, 23, 3, 0, 0, 0, time.Local)}
	if a := g.Assess("I'm tempted to drink", early); a.Level != LevelConcern {
		t.Fatalf("monitor at 03:00 = %s, want concern", a.Level)
	}
	morning := &SignalContext{Now: time.Date(2026, 8, 23, 9, 0, 0, 0, time.Local)}
	if a := g.Assess("I'm tempted to drink", morning); a.Level != LevelMonitor {
		t.Fatalf("monitor at 09:00 = %s, want monitor", a.Level)
	}
}

// Escalation monotonicity: the adjusted level never falls below the base
// classification, whatever the signals.
func TestAssess_EscalationMonotonic(t *testing.T) {
	g := newTestGate()

	messages := []string{
		"nice weather today",
		"I'm tempted to drink",
		"I feel completely hopeless",
		"I can't go on like this",
		"I want to kill myself",
	}
	signals := []*SignalContext{
		nil,
		{Now: at(14)},
		{Now: at(23)},
		{RecentVelocity: 10, Now: at(14)},
		{RecentVelocity: 10, Now: time.Date(2026, 8, 23, 2, 0, 0, 0, time.Local)},
	}

	for _, msg := range messages {
		base := g.Assess(msg, &SignalContext{Now: at(14)}).Level
		for _, sctx := range signals {
			adjusted := g.Assess(msg, sctx).Level
			if adjusted < base {
				t.Fatalf("Assess(%q, %+v) = %s below base %s", msg, sctx, adjusted, base)
			}
		}
	}
}

func TestActionFor_Total(t *testing.T) {
	want := map[CrisisLevel]Action{
		LevelNone:      ActionProceed,
		LevelMonitor:   ActionInjectContext,
		LevelConcern:   ActionShowResources,
		LevelUrgent:    ActionPauseAndConnect,
		LevelEmergency: ActionEmergencyProtocol,
	}
	for level, action := range want {
		if got := ActionFor(level); got != action {
			t.Errorf("ActionFor(%s) = %s, want %s", level, got, action)
		}
	}
}

func TestResources_IncludesEmergencyContact(t *testing.T) {
	bundle := Resources("Dana 555-0100")
	if len(bundle.Resources) == 0 {
		t.Fatal("expected a non-empty resource bundle")
	}
	if bundle.EmergencyContact != "Dana 555-0100" {
		t.Fatalf("EmergencyContact = %q", bundle.EmergencyContact)
	}
}
