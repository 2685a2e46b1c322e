package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/synthesis"
)

// synthesizer fronts the configured synthesis engine, applying the per-call
// timeout and folding failures into ErrModelUnavailable.
type synthesizer struct {
	engine  synthesis.Engine
	timeout time.Duration
}

func newSynthesizer(engine synthesis.Engine, timeout time.Duration) *synthesizer {
	return &synthesizer{engine: engine, timeout: timeout}
}

func (s *synthesizer) synthesize(
	ctx context.Context,
	t *turn,
	text string,
	encodingInfo audio.EncodingInfo,
	fast bool,
	onChunk func(synthesis.Chunk),
) error {
	if s.engine == nil {
		return fmt.Errorf("no synthesis engine configured: %w", ErrModelUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.engine.Synthesize(ctx, t.id, text,
		synthesis.WithEncodingInfo(encodingInfo),
		synthesis.WithFastProfile(fast),
		synthesis.WithChunkCallback(onChunk),
	)
	if err != nil {
		if t.cancelled.Load() {
			// Cancellation tears the stream down; not a failure.
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("synthesis deadline exceeded: %w", ErrModelUnavailable)
		}
		return fmt.Errorf("synthesis failed (%v): %w", err, ErrModelUnavailable)
	}
	return nil
}

func (s *synthesizer) cancel(turnID string) error {
	if s.engine == nil {
		return nil
	}
	return s.engine.Cancel(turnID)
}
