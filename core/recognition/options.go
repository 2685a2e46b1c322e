package recognition

import (
	"context"
	"time"

	"github.com/voxloop/voxloop-core/core/audio"
)

// Result is one transcription result for an utterance.
//
// For a given utterance id, result timestamps are non-decreasing and exactly
// one result with Final set is ever produced by a conforming engine.
type Result struct {
	UtteranceID string
	Text        string
	Final       bool
	Confidence  float64
	Timestamp   time.Time
}

// Engine turns a finite stream of audio samples into an ordered sequence of
// results delivered through the stream callbacks.
//
// Stream blocks until the final result has been delivered, the context is
// done, or the engine fails. A conforming engine either delivers exactly one
// final result or returns an error; the orchestrator maps context expiry to
// its model-unavailable handling.
type Engine interface {
	Stream(ctx context.Context, samples []byte, opts ...StreamOption) error
}

type StreamOptions struct {
	// PartialResultCallback receives interim results, in timestamp order.
	PartialResultCallback func(Result)
	// FinalResultCallback receives the single terminal result.
	FinalResultCallback func(Result)

	EncodingInfo audio.EncodingInfo

	// UtteranceID tags every result of this stream. Engines never invent
	// their own utterance ids.
	UtteranceID string

	// FastProfile requests the engine's fastest (lowest accuracy) profile.
	// Set by the degrade policy; engines may ignore it.
	FastProfile bool
}

type StreamOption func(*StreamOptions)

func WithPartialResultCallback(callback func(Result)) StreamOption {
	return func(o *StreamOptions) { o.PartialResultCallback = callback }
}

func WithFinalResultCallback(callback func(Result)) StreamOption {
	return func(o *StreamOptions) { o.FinalResultCallback = callback }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) StreamOption {
	return func(o *StreamOptions) { o.EncodingInfo = encodingInfo }
}

func WithUtteranceID(utteranceID string) StreamOption {
	return func(o *StreamOptions) { o.UtteranceID = utteranceID }
}

func WithFastProfile(fast bool) StreamOption {
	return func(o *StreamOptions) { o.FastProfile = fast }
}
