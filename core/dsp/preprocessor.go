// Package dsp holds the per-frame preprocessing applied to captured audio
// before voice-activity gating and recognition.
package dsp

import (
	"encoding/binary"
	"math"
)

const (
	defaultPreemphasisCoeff = 0.97
	defaultNormalizeTarget  = 0.9
)

type preprocessorOptions struct {
	removeDCOffset bool
	preemphasis    bool
	normalize      bool

	preemphasisCoeff float64
	normalizeTarget  float64
}

type PreprocessorOption func(*preprocessorOptions)

func WithoutDCOffsetRemoval() PreprocessorOption {
	return func(o *preprocessorOptions) { o.removeDCOffset = false }
}

func WithoutPreemphasis() PreprocessorOption {
	return func(o *preprocessorOptions) { o.preemphasis = false }
}

func WithoutNormalization() PreprocessorOption {
	return func(o *preprocessorOptions) { o.normalize = false }
}

func WithPreemphasisCoeff(coeff float64) PreprocessorOption {
	return func(o *preprocessorOptions) { o.preemphasisCoeff = coeff }
}

// Preprocessor conditions linear16 frames for recognition: DC offset
// removal, pre-emphasis and peak normalization. It is stateless across
// frames except for the one-sample pre-emphasis history, so the filter is
// continuous across frame boundaries.
type Preprocessor struct {
	options preprocessorOptions

	// lastSample carries the final sample of the previous frame into the
	// pre-emphasis filter of the next one.
	lastSample float64
	primed     bool
}

func NewPreprocessor(opts ...PreprocessorOption) *Preprocessor {
	options := preprocessorOptions{
		removeDCOffset:   true,
		preemphasis:      true,
		normalize:        true,
		preemphasisCoeff: defaultPreemphasisCoeff,
		normalizeTarget:  defaultNormalizeTarget,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Preprocessor{options: options}
}

// Process returns a conditioned copy of the frame. The input is treated as
// little-endian linear16 and is never mutated; the output has the same
// length as the input.
func (p *Preprocessor) Process(samples []byte) []byte {
	if len(samples) < 2 {
		return samples
	}

	floats := decodeLinear16(samples)

	if p.options.removeDCOffset {
		removeDCOffset(floats)
	}

	if p.options.preemphasis {
		prev := floats[0]
		if p.primed {
			prev = p.lastSample
		}
		p.lastSample = floats[len(floats)-1]
		p.primed = true
		preemphasize(floats, prev, p.options.preemphasisCoeff)
	}

	if p.options.normalize {
		normalize(floats, p.options.normalizeTarget)
	}

	return encodeLinear16(floats)
}

// Reset clears the inter-frame filter history.
func (p *Preprocessor) Reset() {
	p.lastSample = 0
	p.primed = false
}

func removeDCOffset(samples []float64) {
	mean := 0.0
	for _, s := range samples {
		mean += s
	}
	mean /= float64(len(samples))

	for i := range samples {
		samples[i] -= mean
	}
}

func preemphasize(samples []float64, prev, coeff float64) {
	for i := range samples {
		current := samples[i]
		samples[i] = current - coeff*prev
		prev = current
	}
}

func normalize(samples []float64, target float64) {
	peak := 0.0
	for _, s := range samples {
		if abs := math.Abs(s); abs > peak {
			peak = abs
		}
	}
	if peak == 0 {
		return
	}

	scale := target / peak
	if scale >= 1 {
		return
	}
	for i := range samples {
		samples[i] *= scale
	}
}

func decodeLinear16(samples []byte) []float64 {
	floats := make([]float64, len(samples)/2)
	for i := range floats {
		floats[i] = float64(int16(binary.LittleEndian.Uint16(samples[i*2:]))) / 32768.0
	}
	return floats
}

func encodeLinear16(floats []float64) []byte {
	samples := make([]byte, len(floats)*2)
	for i, f := range floats {
		value := math.Round(f * 32767.0)
		if value > 32767 {
			value = 32767
		} else if value < -32768 {
			value = -32768
		}
		binary.LittleEndian.PutUint16(samples[i*2:], uint16(int16(value)))
	}
	return samples
}
