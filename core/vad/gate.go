// Package vad segments a continuous frame stream into utterances using an
// energy-based voice activity gate with hysteresis.
package vad

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/voxloop/voxloop-core/core/audio"
)

type State int

const (
	StateIdle State = iota
	StateSpeech
	StateTrailing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeech:
		return "speech"
	case StateTrailing:
		return "trailing"
	}
	return "unknown"
}

// Segment is one bounded utterance: the frames between a detected
// speech-start and speech-end boundary, including leading and trailing
// padding. The gate hands ownership of the segment to the caller on emission.
type Segment struct {
	Frames []audio.Frame
	// Start is the capture timestamp of the first frame and serves as the
	// origin timestamp for end-to-end latency accounting.
	Start time.Time
}

// Audio returns the segment's samples concatenated in frame order.
func (s *Segment) Audio() []byte {
	total := 0
	for _, frame := range s.Frames {
		total += len(frame.Samples)
	}

	samples := make([]byte, 0, total)
	for _, frame := range s.Frames {
		samples = append(samples, frame.Samples...)
	}
	return samples
}

func (s *Segment) Duration(encodingInfo audio.EncodingInfo) time.Duration {
	total := time.Duration(0)
	for _, frame := range s.Frames {
		total += frame.Duration(encodingInfo)
	}
	return total
}

const (
	DefaultAggressiveness    = 2
	DefaultPaddingDuration   = 300 * time.Millisecond
	DefaultMinSpeechDuration = 250 * time.Millisecond
	DefaultTrailingSilence   = 100 * time.Millisecond
)

type gateOptions struct {
	aggressiveness    int
	paddingDuration   time.Duration
	minSpeechDuration time.Duration
	trailingSilence   time.Duration

	onSpeechStarted func()
	onSpeechEnded   func()
}

type GateOption func(*gateOptions)

// WithAggressiveness sets how conservative frame classification is (0-3).
// Higher values reduce false positives at the cost of slightly later
// detection. Values outside the range are clamped.
func WithAggressiveness(aggressiveness int) GateOption {
	return func(o *gateOptions) {
		o.aggressiveness = min(max(aggressiveness, 0), 3)
	}
}

// WithPaddingDuration sets how much trailing silence is kept around a
// segment before the gate returns to idle and emits it.
func WithPaddingDuration(duration time.Duration) GateOption {
	return func(o *gateOptions) { o.paddingDuration = duration }
}

// WithMinSpeechDuration sets the voiced duration below which a segment is
// treated as noise and discarded.
func WithMinSpeechDuration(duration time.Duration) GateOption {
	return func(o *gateOptions) { o.minSpeechDuration = duration }
}

// WithTrailingSilence sets the consecutive silence needed to leave the
// speech state for trailing.
func WithTrailingSilence(duration time.Duration) GateOption {
	return func(o *gateOptions) { o.trailingSilence = duration }
}

// WithSpeechStartedCallback is invoked the instant the gate transitions from
// idle to speech, before any segment is assembled. The orchestrator uses it
// to drive barge-in cancellation.
func WithSpeechStartedCallback(callback func()) GateOption {
	return func(o *gateOptions) { o.onSpeechStarted = callback }
}

func WithSpeechEndedCallback(callback func()) GateOption {
	return func(o *gateOptions) { o.onSpeechEnded = callback }
}

// Gate is the speech segmentation state machine. It is driven from a single
// goroutine; one call to Process per captured frame.
type Gate struct {
	encodingInfo audio.EncodingInfo
	options      gateOptions

	speechThreshold  float64
	silenceThreshold float64
	triggerFrames    int

	state   State
	padding []audio.Frame
	segment []audio.Frame

	speechRun      int
	silenceElapsed time.Duration
	voicedElapsed  time.Duration
}

func NewGate(encodingInfo audio.EncodingInfo, opts ...GateOption) *Gate {
	options := gateOptions{
		aggressiveness:    DefaultAggressiveness,
		paddingDuration:   DefaultPaddingDuration,
		minSpeechDuration: DefaultMinSpeechDuration,
		trailingSilence:   DefaultTrailingSilence,
	}
	for _, opt := range opts {
		opt(&options)
	}

	// Thresholds scale with aggressiveness; the silence threshold sits below
	// the speech threshold so classification doesn't flicker at the boundary.
	speechThreshold := 0.012 + 0.004*float64(options.aggressiveness)

	return &Gate{
		encodingInfo:     encodingInfo,
		options:          options,
		speechThreshold:  speechThreshold,
		silenceThreshold: speechThreshold * 0.55,
		triggerFrames:    2 + options.aggressiveness,
	}
}

func (g *Gate) State() State { return g.state }

// Process advances the state machine by one frame. It returns a segment on
// the trailing-to-idle transition, and nil otherwise. Segments with less
// voiced audio than the minimum speech duration are discarded and never
// returned.
func (g *Gate) Process(frame audio.Frame) *Segment {
	isSpeech := g.classify(frame)
	frameDuration := frame.Duration(g.encodingInfo)

	switch g.state {
	case StateIdle:
		if isSpeech {
			g.speechRun++
		} else {
			g.speechRun = 0
		}
		g.pushPadding(frame)
		if !isSpeech || g.speechRun < g.triggerFrames {
			return nil
		}

		g.state = StateSpeech
		g.segment = append(g.segment[:0], g.padding...)
		g.padding = g.padding[:0]
		g.voicedElapsed = time.Duration(g.speechRun) * frameDuration
		g.silenceElapsed = 0
		g.speechRun = 0
		if g.options.onSpeechStarted != nil {
			g.options.onSpeechStarted()
		}

	case StateSpeech:
		g.segment = append(g.segment, frame)
		if isSpeech {
			g.voicedElapsed += frameDuration
			g.silenceElapsed = 0
			return nil
		}

		g.silenceElapsed += frameDuration
		if g.silenceElapsed >= g.options.trailingSilence {
			g.state = StateTrailing
		}

	case StateTrailing:
		g.segment = append(g.segment, frame)
		if isSpeech {
			// Speech resumed before the padding elapsed: same segment.
			g.state = StateSpeech
			g.voicedElapsed += frameDuration
			g.silenceElapsed = 0
			return nil
		}

		g.silenceElapsed += frameDuration
		if g.silenceElapsed < g.options.paddingDuration {
			return nil
		}

		return g.release()
	}

	return nil
}

// Reset drops any partially assembled segment and returns the gate to idle.
func (g *Gate) Reset() {
	g.state = StateIdle
	g.padding = g.padding[:0]
	g.segment = nil
	g.speechRun = 0
	g.silenceElapsed = 0
	g.voicedElapsed = 0
}

func (g *Gate) release() *Segment {
	frames := g.segment
	voiced := g.voicedElapsed

	g.state = StateIdle
	g.segment = nil
	g.silenceElapsed = 0
	g.voicedElapsed = 0

	if g.options.onSpeechEnded != nil {
		g.options.onSpeechEnded()
	}

	if voiced < g.options.minSpeechDuration {
		return nil
	}

	return &Segment{Frames: frames, Start: frames[0].Captured}
}

func (g *Gate) pushPadding(frame audio.Frame) {
	g.padding = append(g.padding, frame)

	// The voiced run building toward the trigger sits at the tail of the
	// ring and must not consume the padding budget, or the trigger frames
	// would evict the leading silence they are meant to carry.
	budget := g.options.paddingDuration + time.Duration(g.speechRun)*frame.Duration(g.encodingInfo)

	elapsed := time.Duration(0)
	keepFrom := len(g.padding)
	for i := len(g.padding) - 1; i >= 0; i-- {
		elapsed += g.padding[i].Duration(g.encodingInfo)
		keepFrom = i
		if elapsed >= budget {
			break
		}
	}
	if keepFrom > 0 {
		g.padding = append(g.padding[:0], g.padding[keepFrom:]...)
	}
}

func (g *Gate) classify(frame audio.Frame) bool {
	level := rms(frame.Samples)
	if g.state == StateIdle {
		return level >= g.speechThreshold
	}
	return level >= g.silenceThreshold
}

func rms(samples []byte) float64 {
	if len(samples) < 2 {
		return 0
	}

	sum := 0.0
	count := len(samples) / 2
	for i := range count {
		sample := float64(int16(binary.LittleEndian.Uint16(samples[i*2:]))) / 32768.0
		sum += sample * sample
	}
	return math.Sqrt(sum / float64(count))
}
