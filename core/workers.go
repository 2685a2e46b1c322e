package pipeline

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/events"
	"github.com/voxloop/voxloop-core/core/intent"
	"github.com/voxloop/voxloop-core/core/recognition"
	"github.com/voxloop/voxloop-core/core/response"
	"github.com/voxloop/voxloop-core/core/synthesis"
	"github.com/voxloop/voxloop-core/core/vad"
)

type segmentUnit struct {
	turn    *turn
	segment *vad.Segment
}

type transcriptUnit struct {
	turn   *turn
	result recognition.Result
}

type intentUnit struct {
	turn   *turn
	result recognition.Result
	intent intent.Intent
}

type responseUnit struct {
	turn   *turn
	intent intent.Intent
	unit   response.Unit
}

type chunkUnit struct {
	turn  *turn
	chunk synthesis.Chunk
	// last marks the end of a turn's chunk stream; it carries no audio.
	last bool
}

func (p *Pipeline) captureWorker(ctx context.Context) {
	for {
		frame, ok := p.frames.Pop(ctx)
		if !ok {
			return
		}

		frame.Samples = p.preprocessor.Process(frame.Samples)
		segment := p.gate.Process(frame)
		if segment == nil {
			continue
		}

		if !send(ctx, p.segments, segmentUnit{turn: p.takePendingTurn(), segment: segment}) {
			return
		}
	}
}

func (p *Pipeline) recognitionWorker(ctx context.Context) {
	for {
		var unit segmentUnit
		select {
		case unit = <-p.segments:
		case <-ctx.Done():
			return
		}
		p.processSegment(ctx, unit)
	}
}

func (p *Pipeline) processSegment(ctx context.Context, unit segmentUnit) {
	t := unit.turn
	p.monitor.startTurn(t)
	p.emit(events.NewTurnStarted(t.id))

	ctx, span := tracer.Start(ctx, "recognize utterance", trace.WithAttributes(
		attribute.String("turn.id", t.id),
		attribute.String("utterance.id", t.utteranceID),
	))
	defer span.End()

	p.monitor.stageEnter(t.id, stageRecognition)
	result, err := p.transcribeWithRetry(ctx, t, unit.segment)
	p.monitor.stageExit(t.id, stageRecognition)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrModelUnavailable) && ctx.Err() == nil {
			p.apologize(ctx, t, "recognition_unavailable")
			return
		}
		reason := "recognition_failed"
		if errors.Is(err, ErrRecognitionTimeout) {
			reason = "recognition_timeout"
		}
		p.abortTurn(t, reason)
		return
	}

	if strings.TrimSpace(result.Text) == "" {
		// Nothing intelligible was said; drop the turn silently.
		p.abortTurn(t, "empty_transcript")
		return
	}

	p.emit(events.NewTranscriptFinal(t.utteranceID, result.Text, result.Confidence))
	if callback := p.options.transcriptionCallback; callback != nil {
		callback(result)
	}

	send(ctx, p.transcripts, transcriptUnit{turn: t, result: result})
}

func (p *Pipeline) transcribeWithRetry(ctx context.Context, t *turn, segment *vad.Segment) (recognition.Result, error) {
	onPartial := func(result recognition.Result) {
		p.emit(events.NewTranscriptPartial(result.UtteranceID, result.Text))
		if callback := p.options.partialTranscriptionCallback; callback != nil {
			callback(result)
		}
	}

	samples := segment.Audio()

	var result recognition.Result
	var err error
	for attempt := 1; attempt <= p.options.maxStageAttempts; attempt++ {
		result, err = p.recognizer.transcribe(ctx, t, samples, p.options.encodingInfo, p.degrade.fastProfile(), onPartial)
		if err == nil || !errors.Is(err, ErrModelUnavailable) || ctx.Err() != nil {
			break
		}

		log.Printf("WARNING: recognition attempt %d failed: %v", attempt, err)
		p.emit(events.NewStageRestarted(stageRecognition, attempt))
		if p.recognizer.demote() {
			logger.Warn("recognition demoted to fallback engine", "turn_id", t.id)
		}
	}
	return result, err
}

func (p *Pipeline) understandingWorker(ctx context.Context) {
	for {
		var unit transcriptUnit
		select {
		case unit = <-p.transcripts:
		case <-ctx.Done():
			return
		}

		t := unit.turn
		if t.cancelled.Load() {
			p.monitor.abandon(t.id)
			continue
		}

		p.monitor.stageEnter(t.id, stageUnderstanding)
		classified := intent.Intent{
			Name:       intent.NameUnknown,
			RawText:    unit.result.Text,
			Confidence: 0,
		}
		if p.classifier != nil {
			result, err := p.classifier.Classify(unit.result.Text, p.conversation.Scenario())
			if err != nil {
				log.Printf("WARNING: intent classification failed: %v", err)
			} else {
				classified = result
			}
		}
		p.monitor.stageExit(t.id, stageUnderstanding)

		if callback := p.options.intentCallback; callback != nil {
			callback(classified)
		}

		if !send(ctx, p.intents, intentUnit{turn: t, result: unit.result, intent: classified}) {
			return
		}
	}
}

func (p *Pipeline) responseWorker(ctx context.Context) {
	for {
		var unit intentUnit
		select {
		case unit = <-p.intents:
		case <-ctx.Done():
			return
		}

		t := unit.turn
		if t.cancelled.Load() {
			p.monitor.abandon(t.id)
			continue
		}

		p.monitor.stageEnter(t.id, stageResponse)
		composed, err := p.composer.Compose(ctx, unit.intent, p.conversation, p.degrade.skipCacheWrites())
		if err != nil {
			log.Printf("WARNING: response composition failed: %v", err)
			composed = p.composer.Fallback()
		}
		p.monitor.stageExit(t.id, stageResponse)

		p.conversation.RecordTurn(unit.result.Text, unit.intent.Name, composed.Text)
		t.recorded.Store(true)

		if callback := p.options.responseCallback; callback != nil {
			callback(composed)
		}

		if !send(ctx, p.responses, responseUnit{turn: t, intent: unit.intent, unit: composed}) {
			return
		}
	}
}

func (p *Pipeline) synthesisWorker(ctx context.Context) {
	for {
		var unit responseUnit
		select {
		case unit = <-p.responses:
		case <-ctx.Done():
			return
		}
		p.processResponse(ctx, unit)
	}
}

func (p *Pipeline) processResponse(ctx context.Context, unit responseUnit) {
	t := unit.turn
	if t.cancelled.Load() {
		p.monitor.abandon(t.id)
		return
	}

	// From here on the turn is audible and eligible for barge-in.
	p.turns.setActive(t)

	ctx, span := tracer.Start(ctx, "synthesize response", trace.WithAttributes(
		attribute.String("turn.id", t.id),
	))
	defer span.End()

	var exitOnce sync.Once
	onChunk := func(chunk synthesis.Chunk) {
		// The engine delivers chunks from its own reader; stamp the stage
		// exit at the first one.
		exitOnce.Do(func() { p.monitor.stageExit(t.id, stageSynthesis) })
		if t.cancelled.Load() {
			return
		}
		send(ctx, p.chunks, chunkUnit{turn: t, chunk: chunk})
	}

	p.monitor.stageEnter(t.id, stageSynthesis)
	err := p.synthesizeWithRetry(ctx, t, unit.unit.Text, onChunk)
	if err != nil && !t.cancelled.Load() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		// Last resort: try to at least speak the apology.
		fallback := p.composer.Fallback()
		if apologyErr := p.synthesizer.synthesize(ctx, t, fallback.Text, p.options.encodingInfo, true, onChunk); apologyErr != nil {
			p.abortTurn(t, "synthesis_unavailable")
		}
	}

	send(ctx, p.chunks, chunkUnit{turn: t, last: true})
}

func (p *Pipeline) synthesizeWithRetry(ctx context.Context, t *turn, text string, onChunk func(synthesis.Chunk)) error {
	var err error
	for attempt := 1; attempt <= p.options.maxStageAttempts; attempt++ {
		err = p.synthesizer.synthesize(ctx, t, text, p.options.encodingInfo, p.degrade.fastProfile(), onChunk)
		if err == nil || !errors.Is(err, ErrModelUnavailable) || ctx.Err() != nil || t.cancelled.Load() {
			break
		}

		log.Printf("WARNING: synthesis attempt %d failed: %v", attempt, err)
		p.emit(events.NewStageRestarted(stageSynthesis, attempt))
	}
	return err
}

func (p *Pipeline) playbackWorker(ctx context.Context) {
	for {
		var unit chunkUnit
		select {
		case unit = <-p.chunks:
		case <-ctx.Done():
			return
		}

		t := unit.turn
		if unit.last {
			p.turns.clearActive(t)
			if !t.firstPlayed.Load() {
				// No chunk reached the sink, so finish never ran.
				p.monitor.abandon(t.id)
			}
			if !t.cancelled.Load() && !t.aborted.Load() {
				turnsCompleted.Add(ctx, 1)
				p.emit(events.NewTurnCompleted(t.id))
			}
			continue
		}

		if t.cancelled.Load() {
			continue
		}

		if t.firstPlayed.CompareAndSwap(false, true) {
			if endToEnd, perStage, ok := p.monitor.finish(t.id); ok {
				p.emit(events.NewLatencyReport(t.id, endToEnd, perStage, p.options.latencyBudget))
				if p.options.latencyBudget > 0 && endToEnd <= p.options.latencyBudget && p.degrade.reset() {
					logger.Info("latency back under budget, degrade policy reset", "turn_id", t.id)
				}
			}
		}

		if p.options.sink == nil {
			continue
		}
		if err := p.options.sink.Write(unit.chunk.Audio); err != nil {
			if errors.Is(err, audio.ErrDeviceUnavailable) {
				select {
				case p.fatal <- err:
				default:
				}
				return
			}
			log.Printf("WARNING: playback write failed: %v", err)
		}
	}
}

// abortTurn drops a turn that will never reach playback.
func (p *Pipeline) abortTurn(t *turn, reason string) {
	t.aborted.Store(true)
	p.monitor.abandon(t.id)
	p.emit(events.NewTurnAborted(t.id, reason))
}

// apologize short-circuits a turn whose recognition could not be served and
// queues the static fallback response for synthesis instead.
func (p *Pipeline) apologize(ctx context.Context, t *turn, reason string) {
	t.aborted.Store(true)
	p.emit(events.NewTurnAborted(t.id, reason))

	fallback := p.composer.Fallback()
	if callback := p.options.responseCallback; callback != nil {
		callback(fallback)
	}
	send(ctx, p.responses, responseUnit{
		turn:   t,
		intent: intent.Intent{Name: intent.NameUnknown},
		unit:   fallback,
	})
}
