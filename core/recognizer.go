package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/recognition"
)

// recognizer fronts the configured recognition engines. It applies the
// per-call timeout and folds engine failures into the pipeline's sentinel
// errors so the workers only have to branch on two cases.
type recognizer struct {
	primary  recognition.Engine
	fallback recognition.Engine
	demoted  atomic.Bool

	timeout time.Duration
}

func newRecognizer(primary, fallback recognition.Engine, timeout time.Duration) *recognizer {
	return &recognizer{primary: primary, fallback: fallback, timeout: timeout}
}

func (r *recognizer) engine() recognition.Engine {
	if r.demoted.Load() && r.fallback != nil {
		return r.fallback
	}
	return r.primary
}

// demote switches subsequent calls to the fallback engine. It reports
// whether a fallback was available to switch to.
func (r *recognizer) demote() bool {
	if r.fallback == nil {
		return false
	}
	return r.demoted.CompareAndSwap(false, true)
}

func (r *recognizer) transcribe(
	ctx context.Context,
	t *turn,
	samples []byte,
	encodingInfo audio.EncodingInfo,
	fast bool,
	onPartial func(recognition.Result),
) (recognition.Result, error) {
	engine := r.engine()
	if engine == nil {
		return recognition.Result{}, fmt.Errorf("no recognition engine configured: %w", ErrModelUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var final *recognition.Result
	err := engine.Stream(ctx, samples,
		recognition.WithUtteranceID(t.utteranceID),
		recognition.WithEncodingInfo(encodingInfo),
		recognition.WithFastProfile(fast),
		recognition.WithPartialResultCallback(onPartial),
		recognition.WithFinalResultCallback(func(result recognition.Result) {
			final = &result
		}),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return recognition.Result{}, fmt.Errorf("recognition deadline exceeded: %w", ErrModelUnavailable)
		}
		return recognition.Result{}, fmt.Errorf("recognition failed (%v): %w", err, ErrModelUnavailable)
	}
	if final == nil {
		return recognition.Result{}, ErrRecognitionTimeout
	}
	return *final, nil
}
