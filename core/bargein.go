package pipeline

import (
	"context"
	"time"

	"github.com/voxloop/voxloop-core/core/events"
)

// handleSpeechStarted runs inside the capture worker whenever the voice
// activity gate flips to speech. It opens the turn that the upcoming segment
// will ride on and cancels whatever the pipeline is currently saying.
func (p *Pipeline) handleSpeechStarted() {
	p.emit(events.NewSpeechStarted())

	p.pendingMutex.Lock()
	p.pendingTurn = newTurn(time.Now())
	p.pendingMutex.Unlock()

	p.Interrupt()
}

func (p *Pipeline) handleSpeechEnded() {
	p.emit(events.NewSpeechEnded())
}

// Interrupt cancels the turn currently being synthesized or played back, if
// any. Cancelling the same turn twice is a no-op, so barge-in and host-driven
// interruption can race safely.
func (p *Pipeline) Interrupt() {
	t := p.turns.activeTurn()
	if t == nil {
		return
	}
	if !t.cancelled.CompareAndSwap(false, true) {
		return
	}

	p.emit(events.NewCancelTurn(t.id))

	if err := p.synthesizer.cancel(t.id); err != nil {
		logger.Warn("cancelling synthesis failed", "turn_id", t.id, "error", err)
	}
	if p.options.sink != nil {
		p.options.sink.Flush()
	}
	if t.recorded.Load() {
		p.conversation.MarkLastInterrupted()
	}

	p.monitor.abandon(t.id)
	p.turns.clearActive(t)

	turnsInterrupted.Add(context.Background(), 1)
	p.emit(events.NewTurnInterrupted(t.id))
}
