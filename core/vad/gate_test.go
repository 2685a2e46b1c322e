package vad

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/voxloop/voxloop-core/core/audio"
)

var testEncoding = audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingLinear16}

// 30ms of a 1kHz tone, loud enough to clear every aggressiveness threshold.
func speechFrame(seq uint64) audio.Frame {
	samples := make([]byte, 960)
	for i := 0; i < 480; i++ {
		value := int16(12000 * math.Sin(2*math.Pi*1000*float64(i)/16000))
		binary.LittleEndian.PutUint16(samples[i*2:], uint16(value))
	}
	return audio.Frame{Samples: samples, Seq: seq, Captured: time.Now()}
}

func silenceFrame(seq uint64) audio.Frame {
	return audio.Frame{Samples: make([]byte, 960), Seq: seq, Captured: time.Now()}
}

func newTestGate(opts ...GateOption) *Gate {
	base := []GateOption{
		WithAggressiveness(0),
		WithPaddingDuration(60 * time.Millisecond),
		WithMinSpeechDuration(60 * time.Millisecond),
		WithTrailingSilence(30 * time.Millisecond),
	}
	return NewGate(testEncoding, append(base, opts...)...)
}

func TestGateEmitsSegmentAfterTrailingSilence(t *testing.T) {
	started := false
	ended := false
	g := newTestGate(
		WithSpeechStartedCallback(func() { started = true }),
		WithSpeechEndedCallback(func() { ended = true }),
	)

	seq := uint64(0)
	for i := 0; i < 6; i++ {
		seq++
		if segment := g.Process(speechFrame(seq)); segment != nil {
			t.Fatalf("expected no segment while speech is ongoing, got one at frame %d", seq)
		}
	}
	if !started {
		t.Fatalf("expected speech started callback during voiced frames")
	}
	if g.State() != StateSpeech {
		t.Fatalf("expected gate in speech state, got %s", g.State())
	}

	var segment *Segment
	for i := 0; i < 10 && segment == nil; i++ {
		seq++
		segment = g.Process(silenceFrame(seq))
	}

	if segment == nil {
		t.Fatalf("expected a segment after trailing silence")
	}
	if !ended {
		t.Fatalf("expected speech ended callback on segment release")
	}
	if g.State() != StateIdle {
		t.Fatalf("expected gate back in idle after release, got %s", g.State())
	}
	if segment.Duration(testEncoding) < 120*time.Millisecond {
		t.Fatalf("expected segment to cover the voiced frames, got %s", segment.Duration(testEncoding))
	}
	if segment.Start.IsZero() {
		t.Fatalf("expected segment start timestamp to be set")
	}
}

func TestGateDiscardsSegmentsShorterThanMinSpeech(t *testing.T) {
	g := newTestGate(WithMinSpeechDuration(150 * time.Millisecond))

	seq := uint64(0)
	for i := 0; i < 3; i++ {
		seq++
		if segment := g.Process(speechFrame(seq)); segment != nil {
			t.Fatalf("expected no segment during the short burst")
		}
	}
	for i := 0; i < 10; i++ {
		seq++
		if segment := g.Process(silenceFrame(seq)); segment != nil {
			t.Fatalf("expected the short burst to be discarded, got a segment")
		}
	}
	if g.State() != StateIdle {
		t.Fatalf("expected gate back in idle after discarding, got %s", g.State())
	}
}

func TestGateMergesSpeechResumingDuringTrailing(t *testing.T) {
	g := newTestGate()

	segments := 0
	seq := uint64(0)
	feed := func(frames int, speech bool) {
		for i := 0; i < frames; i++ {
			seq++
			frame := silenceFrame(seq)
			if speech {
				frame = speechFrame(seq)
			}
			if g.Process(frame) != nil {
				segments++
			}
		}
	}

	feed(4, true)
	// One silence frame reaches trailing but not the padding boundary.
	feed(1, false)
	feed(4, true)
	feed(10, false)

	if segments != 1 {
		t.Fatalf("expected the resumed speech to merge into one segment, got %d", segments)
	}
}

func TestGateIncludesLeadingPadding(t *testing.T) {
	g := newTestGate()

	seq := uint64(0)
	for i := 0; i < 5; i++ {
		seq++
		g.Process(silenceFrame(seq))
	}

	firstVoiced := seq + 1
	var segment *Segment
	for i := 0; i < 6; i++ {
		seq++
		segment = g.Process(speechFrame(seq))
	}
	for i := 0; i < 10 && segment == nil; i++ {
		seq++
		segment = g.Process(silenceFrame(seq))
	}

	if segment == nil {
		t.Fatalf("expected a segment")
	}
	if segment.Frames[0].Seq >= firstVoiced {
		t.Fatalf("expected the segment to start with padding before frame %d, got %d", firstVoiced, segment.Frames[0].Seq)
	}

	leading := 0
	for _, frame := range segment.Frames {
		if frame.Seq >= firstVoiced {
			break
		}
		leading++
	}
	// 60ms of padding at 30ms per frame.
	if leading != 2 {
		t.Fatalf("expected 2 leading padding frames, got %d", leading)
	}
}

func TestGateResetReturnsToIdle(t *testing.T) {
	g := newTestGate()

	seq := uint64(0)
	for i := 0; i < 4; i++ {
		seq++
		g.Process(speechFrame(seq))
	}
	if g.State() != StateSpeech {
		t.Fatalf("expected gate in speech state before reset, got %s", g.State())
	}

	g.Reset()
	if g.State() != StateIdle {
		t.Fatalf("expected gate idle after reset, got %s", g.State())
	}
	for i := 0; i < 10; i++ {
		seq++
		if g.Process(silenceFrame(seq)) != nil {
			t.Fatalf("expected no segment from the discarded speech")
		}
	}
}
