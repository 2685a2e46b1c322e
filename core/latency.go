package pipeline

import (
	"sync"
	"time"
)

const (
	stageRecognition   = "recognition"
	stageUnderstanding = "understanding"
	stageResponse      = "response"
	stageSynthesis     = "synthesis"
)

// stageOrder is the fixed processing order used to project remaining work.
var stageOrder = []string{stageRecognition, stageUnderstanding, stageResponse, stageSynthesis}

const estimateSmoothing = 0.3

// latencyMonitor stamps stage boundaries per turn and keeps a smoothed
// per-stage duration estimate. After each stage exit it projects the turn's
// end-to-end latency; when the projection exceeds the budget it notifies
// the degrade policy through onOverBudget.
type latencyMonitor struct {
	mutex     sync.Mutex
	budget    time.Duration
	estimates map[string]time.Duration
	turns     map[string]*turnTiming

	onOverBudget func(turnID string, projected time.Duration)
}

type turnTiming struct {
	origin  time.Time
	entries map[string]time.Time
	stages  map[string]time.Duration
}

func newLatencyMonitor(budget time.Duration, onOverBudget func(turnID string, projected time.Duration)) *latencyMonitor {
	return &latencyMonitor{
		budget:       budget,
		estimates:    map[string]time.Duration{},
		turns:        map[string]*turnTiming{},
		onOverBudget: onOverBudget,
	}
}

func (m *latencyMonitor) startTurn(t *turn) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.turns[t.id] = &turnTiming{
		origin:  t.origin,
		entries: map[string]time.Time{},
		stages:  map[string]time.Duration{},
	}
}

func (m *latencyMonitor) stageEnter(turnID, stage string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	timing, ok := m.turns[turnID]
	if !ok {
		return
	}
	timing.entries[stage] = time.Now()
}

func (m *latencyMonitor) stageExit(turnID, stage string) {
	m.mutex.Lock()
	timing, ok := m.turns[turnID]
	if !ok {
		m.mutex.Unlock()
		return
	}
	entered, ok := timing.entries[stage]
	if !ok {
		m.mutex.Unlock()
		return
	}
	elapsed := time.Since(entered)
	timing.stages[stage] = elapsed

	if previous, ok := m.estimates[stage]; ok {
		m.estimates[stage] = time.Duration(estimateSmoothing*float64(elapsed) + (1-estimateSmoothing)*float64(previous))
	} else {
		m.estimates[stage] = elapsed
	}

	projected := time.Since(timing.origin)
	remaining := false
	for _, name := range stageOrder {
		if remaining {
			projected += m.estimates[name]
		}
		if name == stage {
			remaining = true
		}
	}
	budget := m.budget
	onOverBudget := m.onOverBudget
	m.mutex.Unlock()

	if budget > 0 && projected > budget && onOverBudget != nil {
		onOverBudget(turnID, projected)
	}
}

// finish closes out a turn's timing and returns its end-to-end latency along
// with the per-stage breakdown. Called when the first chunk reaches playback.
func (m *latencyMonitor) finish(turnID string) (time.Duration, map[string]time.Duration, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	timing, ok := m.turns[turnID]
	if !ok {
		return 0, nil, false
	}
	delete(m.turns, turnID)

	perStage := make(map[string]time.Duration, len(timing.stages))
	for stage, elapsed := range timing.stages {
		perStage[stage] = elapsed
	}
	return time.Since(timing.origin), perStage, true
}

// abandon discards timing for a turn that will never reach playback.
func (m *latencyMonitor) abandon(turnID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.turns, turnID)
}

const (
	degradeNone = iota
	degradeSkipCacheWrites
	degradeFastProfile
	degradeTruncateHistory
)

var degradeActionNames = map[int32]string{
	degradeSkipCacheWrites: "skip_cache_writes",
	degradeFastProfile:     "fast_engine_profile",
	degradeTruncateHistory: "truncate_history",
}

// degradeController escalates one action per over-budget projection and
// relaxes back to normal once a turn completes inside the budget.
type degradeController struct {
	mutex sync.Mutex
	level int32
}

// escalate moves to the next degrade level and returns its action name.
// It returns ok=false when already at the deepest level.
func (c *degradeController) escalate() (string, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.level >= degradeTruncateHistory {
		return "", false
	}
	c.level++
	return degradeActionNames[c.level], true
}

func (c *degradeController) reset() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.level == degradeNone {
		return false
	}
	c.level = degradeNone
	return true
}

func (c *degradeController) skipCacheWrites() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.level >= degradeSkipCacheWrites
}

func (c *degradeController) fastProfile() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.level >= degradeFastProfile
}

func (c *degradeController) truncateHistory() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.level >= degradeTruncateHistory
}
