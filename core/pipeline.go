// Package pipeline wires audio capture, voice activity detection, speech
// recognition, intent classification, response composition, speech synthesis
// and playback into a single always-on conversational loop.
//
// Stages communicate exclusively through bounded queues; the conversation
// context and the response cache are the only shared mutable state. Barge-in
// cancels the active turn so the user is never talked over.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/conversations"
	"github.com/voxloop/voxloop-core/core/dsp"
	"github.com/voxloop/voxloop-core/core/events"
	"github.com/voxloop/voxloop-core/core/intent"
	"github.com/voxloop/voxloop-core/core/response"
	"github.com/voxloop/voxloop-core/core/vad"
)

type Pipeline struct {
	options pipelineOptions

	preprocessor *dsp.Preprocessor
	gate         *vad.Gate
	recognizer   *recognizer
	synthesizer  *synthesizer
	classifier   intent.Classifier
	composer     *response.Composer
	conversation *conversations.Context

	frames      *frameRing
	segments    chan segmentUnit
	transcripts chan transcriptUnit
	intents     chan intentUnit
	responses   chan responseUnit
	chunks      chan chunkUnit

	monitor *latencyMonitor
	degrade degradeController
	turns   turnRegistry

	pendingMutex sync.Mutex
	pendingTurn  *turn

	frameSeq atomic.Uint64

	runContext context.Context
	stopRun    context.CancelFunc
	workers    sync.WaitGroup
	fatal      chan error
	started    atomic.Bool
	closeOnce  sync.Once
}

func New(opts ...PipelineOption) *Pipeline {
	options := defaultPipelineOptions()
	for _, opt := range opts {
		opt(&options)
	}

	p := &Pipeline{
		options:      options,
		preprocessor: dsp.NewPreprocessor(),
		recognizer:   newRecognizer(options.recognitionEngine, options.fallbackRecognitionEngine, options.engineTimeout),
		synthesizer:  newSynthesizer(options.synthesisEngine, options.engineTimeout),
		classifier:   options.classifier,
		composer:     options.composer,
		segments:     make(chan segmentUnit, options.queueCapacity),
		transcripts:  make(chan transcriptUnit, options.queueCapacity),
		intents:      make(chan intentUnit, options.queueCapacity),
		responses:    make(chan responseUnit, options.queueCapacity),
		chunks:       make(chan chunkUnit, options.queueCapacity),
		fatal:        make(chan error, 1),
	}

	if p.composer == nil {
		p.composer = response.NewComposer(
			response.WithCacheSize(options.cacheSize),
			response.WithCacheTTL(options.cacheTTL),
		)
	}

	p.conversation = conversations.NewContext(
		conversations.WithMaxTurns(options.historyLength),
		conversations.WithIdleTimeout(options.idleTimeout),
		conversations.WithScenario(options.scenario),
	)

	p.frames = newFrameRing(options.frameRingCapacity, func(dropped audio.Frame) {
		log.Printf("WARNING: capture buffer full, dropping frame %d", dropped.Seq)
		p.emit(events.NewQueueOverflow("frames", dropped.Seq))
	})

	p.monitor = newLatencyMonitor(options.latencyBudget, p.handleOverBudget)

	gateOptions := []vad.GateOption{
		vad.WithAggressiveness(options.aggressiveness),
		vad.WithSpeechStartedCallback(p.handleSpeechStarted),
		vad.WithSpeechEndedCallback(p.handleSpeechEnded),
	}
	if options.paddingDuration > 0 {
		gateOptions = append(gateOptions, vad.WithPaddingDuration(options.paddingDuration))
	}
	if options.minSpeechDuration > 0 {
		gateOptions = append(gateOptions, vad.WithMinSpeechDuration(options.minSpeechDuration))
	}
	if options.trailingSilence > 0 {
		gateOptions = append(gateOptions, vad.WithTrailingSilence(options.trailingSilence))
	}
	p.gate = vad.NewGate(options.encodingInfo, gateOptions...)

	return p
}

// Conversation exposes the session's conversation context, mainly so hosts
// can switch scenarios or reset history between sessions.
func (p *Pipeline) Conversation() *conversations.Context {
	return p.conversation
}

// Run starts the stage workers and blocks until the context is done or a
// fatal device error occurs. A pipeline runs at most once.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	runContext, cancel := context.WithCancel(ctx)
	p.runContext = runContext
	p.stopRun = cancel
	defer cancel()

	p.startWorker(p.captureWorker)
	p.startWorker(p.recognitionWorker)
	p.startWorker(p.understandingWorker)
	p.startWorker(p.responseWorker)
	p.startWorker(p.synthesisWorker)
	p.startWorker(p.playbackWorker)

	if p.options.source != nil {
		p.workers.Add(1)
		go func() {
			defer p.workers.Done()
			if err := p.options.source.Stream(runContext, p.SendAudio); err != nil && runContext.Err() == nil {
				select {
				case p.fatal <- fmt.Errorf("frame source: %w", err):
				default:
				}
			}
		}()
	}

	var err error
	select {
	case <-runContext.Done():
	case err = <-p.fatal:
		cancel()
	}

	p.frames.Close()
	p.workers.Wait()
	return err
}

func (p *Pipeline) startWorker(worker func(ctx context.Context)) {
	p.workers.Add(1)
	go func() {
		defer p.workers.Done()
		worker(p.runContext)
	}()
}

// SendAudio feeds raw samples into the capture buffer. It never blocks; when
// the buffer is full the oldest frame is dropped instead. This is also the
// entry point for hosts that bring their own audio transport.
func (p *Pipeline) SendAudio(samples []byte) {
	if len(samples) == 0 {
		return
	}
	buffered := make([]byte, len(samples))
	copy(buffered, samples)
	p.frames.Push(audio.Frame{
		Samples:  buffered,
		Seq:      p.frameSeq.Add(1),
		Captured: time.Now(),
	})
}

// Close stops the pipeline. Safe to call more than once and concurrently
// with Run.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		if p.stopRun != nil {
			p.stopRun()
		}
		p.frames.Close()
	})
	return nil
}

func (p *Pipeline) emit(event events.Event) {
	if p.options.eventCallback != nil {
		p.options.eventCallback(event)
	}
}

func (p *Pipeline) handleOverBudget(turnID string, projected time.Duration) {
	action, ok := p.degrade.escalate()
	if !ok {
		return
	}
	if action == degradeActionNames[degradeTruncateHistory] {
		p.conversation.SetLookback(p.conversation.Lookback() / 2)
	}

	degradeActions.Add(context.Background(), 1)
	logger.Warn("latency budget at risk, degrading",
		"turn_id", turnID,
		"projected", projected,
		"budget", p.options.latencyBudget,
		"action", action,
	)
	p.emit(events.NewDegradeApplied(turnID, action, projected, p.options.latencyBudget))
}

// takePendingTurn claims the turn opened at speech start for the segment
// that just left the gate.
func (p *Pipeline) takePendingTurn() *turn {
	p.pendingMutex.Lock()
	defer p.pendingMutex.Unlock()

	t := p.pendingTurn
	p.pendingTurn = nil
	if t == nil {
		t = newTurn(time.Now())
	} else {
		// The budget runs from end of speech, not start.
		t.origin = time.Now()
	}
	return t
}
