package synthesis

import (
	"context"

	"github.com/voxloop/voxloop-core/core/audio"
)

// Chunk is one ordered buffer of synthesized audio for a turn. Chunks for a
// turn must be played in Seq order and dropped once the turn is cancelled.
type Chunk struct {
	TurnID string
	Seq    int
	Audio  []byte
}

// Engine synthesizes response text into an ordered sequence of chunks
// delivered through the chunk callback.
//
// Synthesize blocks until all chunks for the turn have been delivered, the
// turn is cancelled, the context is done, or the engine fails. Cancel stops
// emission for the given turn id and releases any buffered chunks for it;
// it is idempotent and unknown turn ids are ignored.
type Engine interface {
	Synthesize(ctx context.Context, turnID, text string, opts ...SynthesizeOption) error
	Cancel(turnID string) error
}

type SynthesizeOptions struct {
	// ChunkCallback receives synthesized chunks in sequence order.
	ChunkCallback func(Chunk)

	EncodingInfo audio.EncodingInfo

	// FastProfile requests the engine's fastest (lowest quality) profile.
	// Set by the degrade policy; engines may ignore it.
	FastProfile bool
}

type SynthesizeOption func(*SynthesizeOptions)

func WithChunkCallback(callback func(Chunk)) SynthesizeOption {
	return func(o *SynthesizeOptions) { o.ChunkCallback = callback }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesizeOption {
	return func(o *SynthesizeOptions) { o.EncodingInfo = encodingInfo }
}

func WithFastProfile(fast bool) SynthesizeOption {
	return func(o *SynthesizeOptions) { o.FastProfile = fast }
}
