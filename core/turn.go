package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// turn tracks a single user utterance through the stages, from the segment
// leaving the voice activity gate to the last synthesized chunk played back.
type turn struct {
	id          string
	utteranceID string
	origin      time.Time

	cancelled   atomic.Bool
	aborted     atomic.Bool
	recorded    atomic.Bool
	firstPlayed atomic.Bool
}

func newTurn(origin time.Time) *turn {
	return &turn{
		id:          uuid.NewString(),
		utteranceID: uuid.NewString(),
		origin:      origin,
	}
}

// turnRegistry tracks the turn currently in its synthesis or playback phase.
// Only that turn is eligible for barge-in cancellation.
type turnRegistry struct {
	mutex  sync.Mutex
	active *turn
}

func (r *turnRegistry) setActive(t *turn) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.active = t
}

// clearActive drops the active turn, but only if it is still the given one.
func (r *turnRegistry) clearActive(t *turn) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.active == t {
		r.active = nil
	}
}

func (r *turnRegistry) activeTurn() *turn {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.active
}
