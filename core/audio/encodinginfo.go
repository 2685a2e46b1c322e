package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: encodingFormat(DefaultFormat)}
}

type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}

	return 0
}

// BytesPerSecond returns the raw throughput for this encoding, or -1 for an
// unknown format.
func (e EncodingInfo) BytesPerSecond() int {
	byteSize := e.Format.ByteSize()
	if byteSize < 0 {
		return -1
	}
	return e.SampleRate * byteSize
}

// Duration returns the playback duration of byteLen bytes of raw audio.
func (e EncodingInfo) Duration(byteLen int) time.Duration {
	bps := e.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(float64(byteLen) / float64(bps) * float64(time.Second))
}

// Bytes returns the number of raw audio bytes covering the given duration.
func (e EncodingInfo) Bytes(duration time.Duration) int {
	bps := e.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return int(float64(duration) / float64(time.Second) * float64(bps))
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
