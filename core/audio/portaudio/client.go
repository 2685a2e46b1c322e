// Package portaudio provides an alternate frame source and sink backed by
// PortAudio's blocking stream API.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/voxloop/voxloop-core/core/audio"
)

type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	pendingMu sync.Mutex
	pending   []byte

	in  []int16
	out []int16
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize portaudio: %v", audio.ErrDeviceUnavailable, err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to open portaudio stream: %v", audio.ErrDeviceUnavailable, err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

// Stream blocks reading device frames and invoking onAudio until the
// context is done.
func (c *Client) Stream(ctx context.Context, onAudio func(samples []byte)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("%w: failed to start portaudio stream: %v", audio.ErrDeviceUnavailable, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.stream.Read(); err != nil {
				return fmt.Errorf("%w: failed to read from portaudio stream: %v", audio.ErrDeviceUnavailable, err)
			}

			audioBuffer := bytes.Buffer{}
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onAudio(audioBuffer.Bytes())
		}
	}
}

// Write plays a synthesized chunk, carrying any remainder that doesn't fill
// a whole device buffer over to the next call.
func (c *Client) Write(samples []byte) error {
	bufferBytes := c.bufferSize * 2

	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	c.pending = append(c.pending, samples...)
	for len(c.pending) >= bufferBytes {
		if err := binary.Read(bytes.NewBuffer(c.pending[:bufferBytes]), binary.LittleEndian, c.out); err != nil {
			return fmt.Errorf("failed to decode playback buffer: %w", err)
		}
		if err := c.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
		c.pending = c.pending[bufferBytes:]
	}

	return nil
}

// Flush drops any buffered playback audio.
func (c *Client) Flush() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.pending = c.pending[:0]
}

func (c *Client) Close() {
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}
