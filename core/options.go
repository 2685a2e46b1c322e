package pipeline

import (
	"context"
	"time"

	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/conversations"
	"github.com/voxloop/voxloop-core/core/events"
	"github.com/voxloop/voxloop-core/core/intent"
	"github.com/voxloop/voxloop-core/core/recognition"
	"github.com/voxloop/voxloop-core/core/response"
	"github.com/voxloop/voxloop-core/core/synthesis"
)

// FrameSource produces raw audio from a capture device. Stream blocks until
// the context is done or the device fails.
type FrameSource interface {
	Stream(ctx context.Context, onAudio func(samples []byte)) error
	EncodingInfo() audio.EncodingInfo
}

// AudioSink consumes synthesized audio for playback. Flush discards anything
// buffered but not yet played.
type AudioSink interface {
	Write(samples []byte) error
	Flush()
}

const (
	DefaultFrameRingCapacity = 64
	DefaultQueueCapacity     = 8
	DefaultLatencyBudget     = 1500 * time.Millisecond
	DefaultEngineTimeout     = 10 * time.Second
	DefaultMaxStageAttempts  = 3
)

type pipelineOptions struct {
	encodingInfo audio.EncodingInfo

	frameRingCapacity int
	queueCapacity     int

	aggressiveness    int
	paddingDuration   time.Duration
	minSpeechDuration time.Duration
	trailingSilence   time.Duration

	latencyBudget    time.Duration
	engineTimeout    time.Duration
	maxStageAttempts int

	historyLength int
	idleTimeout   time.Duration
	scenario      string

	cacheSize int
	cacheTTL  time.Duration

	recognitionEngine         recognition.Engine
	fallbackRecognitionEngine recognition.Engine
	synthesisEngine           synthesis.Engine
	classifier                intent.Classifier
	composer                  *response.Composer

	source FrameSource
	sink   AudioSink

	eventCallback                func(events.Event)
	partialTranscriptionCallback func(recognition.Result)
	transcriptionCallback        func(recognition.Result)
	intentCallback               func(intent.Intent)
	responseCallback             func(response.Unit)
}

func defaultPipelineOptions() pipelineOptions {
	return pipelineOptions{
		encodingInfo:      audio.GetDefaultEncodingInfo(),
		frameRingCapacity: DefaultFrameRingCapacity,
		queueCapacity:     DefaultQueueCapacity,
		aggressiveness:    1,
		latencyBudget:     DefaultLatencyBudget,
		engineTimeout:     DefaultEngineTimeout,
		maxStageAttempts:  DefaultMaxStageAttempts,
		historyLength:     conversations.DefaultMaxTurns,
		idleTimeout:       conversations.DefaultIdleTimeout,
		cacheSize:         response.DefaultCacheSize,
		cacheTTL:          response.DefaultCacheTTL,
	}
}

type PipelineOption func(*pipelineOptions)

func WithEncodingInfo(encodingInfo audio.EncodingInfo) PipelineOption {
	return func(o *pipelineOptions) { o.encodingInfo = encodingInfo }
}

// WithFrameRingCapacity bounds the capture buffer. When full, the oldest
// frame is overwritten rather than blocking the device.
func WithFrameRingCapacity(capacity int) PipelineOption {
	return func(o *pipelineOptions) {
		if capacity > 0 {
			o.frameRingCapacity = capacity
		}
	}
}

// WithQueueCapacity bounds the inter-stage queues. A full queue blocks the
// producing stage.
func WithQueueCapacity(capacity int) PipelineOption {
	return func(o *pipelineOptions) {
		if capacity > 0 {
			o.queueCapacity = capacity
		}
	}
}

// WithAggressiveness tunes how eagerly the voice activity gate classifies
// frames as speech, from 0 (permissive) to 3 (aggressive).
func WithAggressiveness(aggressiveness int) PipelineOption {
	return func(o *pipelineOptions) { o.aggressiveness = aggressiveness }
}

func WithPaddingDuration(padding time.Duration) PipelineOption {
	return func(o *pipelineOptions) { o.paddingDuration = padding }
}

func WithMinSpeechDuration(minSpeech time.Duration) PipelineOption {
	return func(o *pipelineOptions) { o.minSpeechDuration = minSpeech }
}

func WithTrailingSilence(trailing time.Duration) PipelineOption {
	return func(o *pipelineOptions) { o.trailingSilence = trailing }
}

// WithLatencyBudget sets the end-to-end budget from end of user speech to
// first audible response. Zero disables projection and the degrade policy.
func WithLatencyBudget(budget time.Duration) PipelineOption {
	return func(o *pipelineOptions) { o.latencyBudget = budget }
}

// WithEngineTimeout bounds every recognition and synthesis engine call.
func WithEngineTimeout(timeout time.Duration) PipelineOption {
	return func(o *pipelineOptions) {
		if timeout > 0 {
			o.engineTimeout = timeout
		}
	}
}

// WithMaxStageAttempts caps consecutive engine attempts per turn before the
// stage gives up and falls back to the apology response.
func WithMaxStageAttempts(attempts int) PipelineOption {
	return func(o *pipelineOptions) {
		if attempts > 0 {
			o.maxStageAttempts = attempts
		}
	}
}

func WithHistoryLength(turns int) PipelineOption {
	return func(o *pipelineOptions) { o.historyLength = turns }
}

func WithIdleTimeout(timeout time.Duration) PipelineOption {
	return func(o *pipelineOptions) { o.idleTimeout = timeout }
}

func WithScenario(scenario string) PipelineOption {
	return func(o *pipelineOptions) { o.scenario = scenario }
}

func WithCacheSize(size int) PipelineOption {
	return func(o *pipelineOptions) { o.cacheSize = size }
}

func WithCacheTTL(ttl time.Duration) PipelineOption {
	return func(o *pipelineOptions) { o.cacheTTL = ttl }
}

func WithRecognitionEngine(engine recognition.Engine) PipelineOption {
	return func(o *pipelineOptions) { o.recognitionEngine = engine }
}

// WithFallbackRecognitionEngine sets the engine the pipeline demotes to
// after the primary engine fails.
func WithFallbackRecognitionEngine(engine recognition.Engine) PipelineOption {
	return func(o *pipelineOptions) { o.fallbackRecognitionEngine = engine }
}

func WithSynthesisEngine(engine synthesis.Engine) PipelineOption {
	return func(o *pipelineOptions) { o.synthesisEngine = engine }
}

func WithClassifier(classifier intent.Classifier) PipelineOption {
	return func(o *pipelineOptions) { o.classifier = classifier }
}

func WithComposer(composer *response.Composer) PipelineOption {
	return func(o *pipelineOptions) { o.composer = composer }
}

// WithFrameSource attaches a capture device. Without one, audio enters the
// pipeline only through SendAudio.
func WithFrameSource(source FrameSource) PipelineOption {
	return func(o *pipelineOptions) { o.source = source }
}

func WithAudioSink(sink AudioSink) PipelineOption {
	return func(o *pipelineOptions) { o.sink = sink }
}

func WithEventCallback(callback func(events.Event)) PipelineOption {
	return func(o *pipelineOptions) { o.eventCallback = callback }
}

func WithPartialTranscriptionCallback(callback func(recognition.Result)) PipelineOption {
	return func(o *pipelineOptions) { o.partialTranscriptionCallback = callback }
}

func WithTranscriptionCallback(callback func(recognition.Result)) PipelineOption {
	return func(o *pipelineOptions) { o.transcriptionCallback = callback }
}

func WithIntentCallback(callback func(intent.Intent)) PipelineOption {
	return func(o *pipelineOptions) { o.intentCallback = callback }
}

func WithResponseCallback(callback func(response.Unit)) PipelineOption {
	return func(o *pipelineOptions) { o.responseCallback = callback }
}
