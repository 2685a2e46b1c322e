package pipeline

import (
	"context"
	"sync"

	"github.com/voxloop/voxloop-core/core/audio"
)

// frameRing is the capture-side buffer. Unlike the inter-stage queues it
// never blocks the producer: when full, the oldest frame is overwritten so
// the device callback keeps its real-time cadence.
type frameRing struct {
	mutex  sync.Mutex
	frames []audio.Frame
	head   int
	length int

	signal chan struct{}
	closed bool

	onDrop func(dropped audio.Frame)
}

func newFrameRing(capacity int, onDrop func(audio.Frame)) *frameRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &frameRing{
		frames: make([]audio.Frame, capacity),
		signal: make(chan struct{}, 1),
		onDrop: onDrop,
	}
}

func (r *frameRing) Push(frame audio.Frame) {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return
	}

	// Eviction and insert happen under one lock hold so a concurrent Push
	// can never grow the ring past its capacity. The drop callback runs
	// after unlocking and may Push again.
	var dropped *audio.Frame
	if r.length == len(r.frames) {
		evicted := r.frames[r.head]
		dropped = &evicted
		r.head = (r.head + 1) % len(r.frames)
		r.length--
	}

	r.frames[(r.head+r.length)%len(r.frames)] = frame
	r.length++
	r.mutex.Unlock()

	if dropped != nil && r.onDrop != nil {
		r.onDrop(*dropped)
	}

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Pop blocks until a frame is available, the ring is closed, or the context
// is done. The second return value is false when no more frames will come.
func (r *frameRing) Pop(ctx context.Context) (audio.Frame, bool) {
	for {
		r.mutex.Lock()
		if r.length > 0 {
			frame := r.frames[r.head]
			r.frames[r.head] = audio.Frame{}
			r.head = (r.head + 1) % len(r.frames)
			r.length--
			remaining := r.length
			r.mutex.Unlock()
			if remaining > 0 {
				select {
				case r.signal <- struct{}{}:
				default:
				}
			}
			return frame, true
		}
		if r.closed {
			r.mutex.Unlock()
			return audio.Frame{}, false
		}
		r.mutex.Unlock()

		select {
		case <-r.signal:
		case <-ctx.Done():
			return audio.Frame{}, false
		}
	}
}

func (r *frameRing) Close() {
	r.mutex.Lock()
	r.closed = true
	r.mutex.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *frameRing) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.length
}

// send pushes a unit onto a bounded stage queue, blocking for backpressure.
// It returns false when the context is cancelled before the queue accepts.
func send[T any](ctx context.Context, queue chan<- T, unit T) bool {
	select {
	case queue <- unit:
		return true
	case <-ctx.Done():
		return false
	}
}
