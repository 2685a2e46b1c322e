package audio

import (
	"errors"
	"time"
)

// ErrDeviceUnavailable indicates the underlying audio device was lost or
// could not be opened. It is fatal to the session and is never retried.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Frame is one fixed-size buffer of raw audio as produced by a capture
// device. Frames are immutable once produced; ordering is carried by Seq.
type Frame struct {
	Samples  []byte
	Seq      uint64
	Captured time.Time
}

func (f Frame) Duration(encodingInfo EncodingInfo) time.Duration {
	return encodingInfo.Duration(len(f.Samples))
}
