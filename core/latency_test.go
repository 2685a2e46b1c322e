package pipeline

import (
	"testing"
	"time"
)

func TestLatencyMonitorReportsPerStageBreakdown(t *testing.T) {
	m := newLatencyMonitor(time.Minute, nil)

	tn := newTurn(time.Now())
	m.startTurn(tn)

	m.stageEnter(tn.id, stageRecognition)
	time.Sleep(5 * time.Millisecond)
	m.stageExit(tn.id, stageRecognition)

	m.stageEnter(tn.id, stageSynthesis)
	m.stageExit(tn.id, stageSynthesis)

	endToEnd, perStage, ok := m.finish(tn.id)
	if !ok {
		t.Fatalf("expected timing for the started turn")
	}
	if endToEnd <= 0 {
		t.Fatalf("expected positive end-to-end latency, got %s", endToEnd)
	}
	if perStage[stageRecognition] < 5*time.Millisecond {
		t.Fatalf("expected recognition to account for the sleep, got %s", perStage[stageRecognition])
	}
	if _, ok := perStage[stageSynthesis]; !ok {
		t.Fatalf("expected a synthesis entry in the breakdown")
	}

	if _, _, ok := m.finish(tn.id); ok {
		t.Fatalf("expected finish to be one-shot per turn")
	}
}

func TestLatencyMonitorProjectionTriggersOverBudget(t *testing.T) {
	var gotTurn string
	var gotProjected time.Duration
	m := newLatencyMonitor(time.Nanosecond, func(turnID string, projected time.Duration) {
		gotTurn = turnID
		gotProjected = projected
	})

	tn := newTurn(time.Now())
	m.startTurn(tn)
	m.stageEnter(tn.id, stageRecognition)
	time.Sleep(time.Millisecond)
	m.stageExit(tn.id, stageRecognition)

	if gotTurn != tn.id {
		t.Fatalf("expected over-budget callback for turn %s, got %q", tn.id, gotTurn)
	}
	if gotProjected <= 0 {
		t.Fatalf("expected a positive projection, got %s", gotProjected)
	}
}

func TestLatencyMonitorZeroBudgetDisablesProjection(t *testing.T) {
	called := false
	m := newLatencyMonitor(0, func(string, time.Duration) { called = true })

	tn := newTurn(time.Now())
	m.startTurn(tn)
	m.stageEnter(tn.id, stageRecognition)
	m.stageExit(tn.id, stageRecognition)

	if called {
		t.Fatalf("expected no over-budget callback without a budget")
	}
}

func TestLatencyMonitorIgnoresUnknownTurns(t *testing.T) {
	m := newLatencyMonitor(time.Minute, nil)

	m.stageEnter("ghost", stageRecognition)
	m.stageExit("ghost", stageRecognition)
	if _, _, ok := m.finish("ghost"); ok {
		t.Fatalf("expected no timing for an unknown turn")
	}
}

func TestDegradeControllerEscalatesInOrder(t *testing.T) {
	var c degradeController

	expected := []string{"skip_cache_writes", "fast_engine_profile", "truncate_history"}
	for _, want := range expected {
		action, ok := c.escalate()
		if !ok {
			t.Fatalf("expected escalation to %q to be possible", want)
		}
		if action != want {
			t.Fatalf("expected action %q, got %q", want, action)
		}
	}

	if _, ok := c.escalate(); ok {
		t.Fatalf("expected no escalation beyond the deepest level")
	}
	if !c.skipCacheWrites() || !c.fastProfile() || !c.truncateHistory() {
		t.Fatalf("expected all degrade levels active at the deepest level")
	}
}

func TestDegradeControllerResets(t *testing.T) {
	var c degradeController

	if c.reset() {
		t.Fatalf("expected reset to be a no-op at the normal level")
	}

	c.escalate()
	if !c.skipCacheWrites() {
		t.Fatalf("expected cache writes skipped after the first escalation")
	}
	if c.fastProfile() {
		t.Fatalf("expected the fast profile to need a second escalation")
	}

	if !c.reset() {
		t.Fatalf("expected reset to report the recovery")
	}
	if c.skipCacheWrites() {
		t.Fatalf("expected normal behavior after reset")
	}
}
