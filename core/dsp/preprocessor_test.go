package dsp

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func encodeSamples(values []int16) []byte {
	samples := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(samples[i*2:], uint16(v))
	}
	return samples
}

func decodeSamples(samples []byte) []int16 {
	values := make([]int16, len(samples)/2)
	for i := range values {
		values[i] = int16(binary.LittleEndian.Uint16(samples[i*2:]))
	}
	return values
}

func TestProcessRemovesDCOffset(t *testing.T) {
	p := NewPreprocessor(WithoutPreemphasis(), WithoutNormalization())

	values := make([]int16, 160)
	for i := range values {
		values[i] = 1000
	}

	out := decodeSamples(p.Process(encodeSamples(values)))
	for i, v := range out {
		if v < -1 || v > 1 {
			t.Fatalf("expected sample %d to be pulled to zero after DC removal, got %d", i, v)
		}
	}
}

func TestProcessPreemphasisIsContinuousAcrossFrames(t *testing.T) {
	p := NewPreprocessor(WithoutDCOffsetRemoval(), WithoutNormalization())

	first := make([]int16, 16)
	for i := range first {
		first[i] = 8000
	}
	second := make([]int16, 16)
	for i := range second {
		second[i] = 16000
	}

	p.Process(encodeSamples(first))
	out := decodeSamples(p.Process(encodeSamples(second)))

	// The first sample of the second frame is filtered against the last
	// sample of the first frame, not against itself.
	expected := 16000.0 - 0.97*8000.0
	if math.Abs(float64(out[0])-expected) > 2 {
		t.Fatalf("expected first sample of second frame near %.0f, got %d", expected, out[0])
	}
}

func TestProcessResetClearsFilterHistory(t *testing.T) {
	p := NewPreprocessor(WithoutDCOffsetRemoval(), WithoutNormalization())

	frame := make([]int16, 16)
	for i := range frame {
		frame[i] = 8000
	}

	p.Process(encodeSamples(frame))
	p.Reset()
	out := decodeSamples(p.Process(encodeSamples(frame)))

	// Unprimed, the filter seeds from the frame's own first sample.
	expected := 8000.0 - 0.97*8000.0
	if math.Abs(float64(out[0])-expected) > 2 {
		t.Fatalf("expected first sample near %.0f after reset, got %d", expected, out[0])
	}
}

func TestProcessNormalizationOnlyAttenuates(t *testing.T) {
	p := NewPreprocessor(WithoutDCOffsetRemoval(), WithoutPreemphasis())

	loud := decodeSamples(p.Process(encodeSamples([]int16{32000, -32000, 32000, -32000})))
	for i, v := range loud {
		if abs := math.Abs(float64(v)); abs > 0.9*32768+1 {
			t.Fatalf("expected loud sample %d scaled under the normalization target, got %d", i, v)
		}
	}

	quietIn := []int16{4000, -4000, 4000, -4000}
	quiet := decodeSamples(p.Process(encodeSamples(quietIn)))
	for i, v := range quiet {
		if v != quietIn[i] {
			t.Fatalf("expected quiet sample %d untouched, got %d instead of %d", i, v, quietIn[i])
		}
	}
}

func TestProcessDoesNotMutateInput(t *testing.T) {
	p := NewPreprocessor()

	in := encodeSamples([]int16{1000, -2000, 3000, -4000})
	original := bytes.Clone(in)

	out := p.Process(in)
	if !bytes.Equal(in, original) {
		t.Fatalf("expected input samples to be left untouched")
	}
	if len(out) != len(in) {
		t.Fatalf("expected output length %d, got %d", len(in), len(out))
	}
}
