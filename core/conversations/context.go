// Package conversations owns the bounded per-session conversation state
// shared between the understanding and response stages.
package conversations

import (
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/copier"
)

// Turn is one completed request/response cycle as remembered by the
// conversation.
type Turn struct {
	Utterance   string
	Intent      string
	Response    string
	Interrupted bool
	Timestamp   time.Time
}

const (
	DefaultMaxTurns    = 10
	DefaultIdleTimeout = 5 * time.Minute
)

type contextOptions struct {
	maxTurns    int
	idleTimeout time.Duration
	scenario    string
}

type ContextOption func(*contextOptions)

func WithMaxTurns(maxTurns int) ContextOption {
	return func(o *contextOptions) {
		if maxTurns > 0 {
			o.maxTurns = maxTurns
		}
	}
}

func WithIdleTimeout(timeout time.Duration) ContextOption {
	return func(o *contextOptions) {
		if timeout > 0 {
			o.idleTimeout = timeout
		}
	}
}

func WithScenario(scenario string) ContextOption {
	return func(o *contextOptions) { o.scenario = scenario }
}

// Context is an append-only ring of the most recent turns plus a scenario
// tag. It is one of only two pieces of cross-stage mutable state in the
// pipeline (the other being the response cache); every method serializes
// access internally.
type Context struct {
	mu      sync.Mutex
	options contextOptions

	turns        []Turn
	scenario     string
	lastActivity time.Time

	// lookback bounds how much history is handed out; the degrade policy
	// shrinks it when the latency budget is at risk.
	lookback int
}

func NewContext(opts ...ContextOption) *Context {
	options := contextOptions{
		maxTurns:    DefaultMaxTurns,
		idleTimeout: DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Context{
		options:  options,
		scenario: options.scenario,
		lookback: options.maxTurns,
	}
}

// RecordTurn appends a completed turn, dropping the oldest once the ring is
// full. A context that went stale since the last activity is discarded
// first, so the new turn starts a fresh history.
func (c *Context) RecordTurn(utterance, intentName, response string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.staleLocked() {
		c.resetLocked()
	}

	c.turns = append(c.turns, Turn{
		Utterance: utterance,
		Intent:    intentName,
		Response:  response,
		Timestamp: time.Now(),
	})
	if len(c.turns) > c.options.maxTurns {
		c.turns = c.turns[len(c.turns)-c.options.maxTurns:]
	}
	c.lastActivity = time.Now()
}

// MarkLastInterrupted flags the most recent turn as cut short by barge-in.
func (c *Context) MarkLastInterrupted() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.turns) > 0 {
		c.turns[len(c.turns)-1].Interrupted = true
	}
}

// History returns a copy of the remembered turns, oldest first, truncated
// to the current lookback.
func (c *Context) History() []Turn {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns := c.turns
	if len(turns) > c.lookback {
		turns = turns[len(turns)-c.lookback:]
	}

	history := []Turn{}
	_ = copier.Copy(&history, turns)
	return history
}

// IsStale reports whether the idle timeout elapsed since the last recorded
// activity. A context without any activity yet is not stale.
func (c *Context) IsStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.staleLocked()
}

func (c *Context) staleLocked() bool {
	return !c.lastActivity.IsZero() && time.Since(c.lastActivity) > c.options.idleTimeout
}

func (c *Context) Scenario() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scenario
}

func (c *Context) SetScenario(scenario string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scenario = scenario
	c.lastActivity = time.Now()
}

// Fingerprint identifies the response-relevant context state. It is part of
// the response cache key, so two conversations in the same state can share
// cached responses.
func (c *Context) Fingerprint() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	lastIntent := ""
	if len(c.turns) > 0 {
		lastIntent = c.turns[len(c.turns)-1].Intent
	}
	return fmt.Sprintf("%s|%s", c.scenario, lastIntent)
}

// SetLookback bounds how many turns History returns. Used by the degrade
// policy; values are clamped to [1, max turns].
func (c *Context) SetLookback(lookback int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookback = min(max(lookback, 1), c.options.maxTurns)
}

func (c *Context) Lookback() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookback
}

func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}

// Reset discards the history and scenario, starting a fresh context.
func (c *Context) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Context) resetLocked() {
	c.turns = nil
	c.scenario = c.options.scenario
	c.lookback = c.options.maxTurns
	c.lastActivity = time.Time{}
}
