// Package miniaudio provides a malgo-backed device client that serves as
// both the pipeline's frame source and its audio sink.
package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"
	"github.com/voxloop/voxloop-core/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext

	encodingInfo audio.EncodingInfo

	playbackClient
	captureClient
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize audio context: %v", audio.ErrDeviceUnavailable, err)
	}

	client := Client{
		audioContext: audioCtx,
		encodingInfo: audio.GetDefaultEncodingInfo(),
	}

	if err := client.playbackClient.Init(audioCtx, client.encodingInfo); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to initialize playback device: %v", audio.ErrDeviceUnavailable, err)
	}
	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to start playback device: %v", audio.ErrDeviceUnavailable, err)
	}

	if err := client.captureClient.Init(audioCtx, client.encodingInfo); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to initialize capture device: %v", audio.ErrDeviceUnavailable, err)
	}

	return &client, nil
}

// Stream starts capture and invokes onAudio for every device-cadence frame.
// It blocks until the context is done, then stops the device.
func (c *Client) Stream(ctx context.Context, onAudio func(samples []byte)) error {
	if err := c.captureClient.Start(onAudio); err != nil {
		return fmt.Errorf("%w: failed to start capture device: %v", audio.ErrDeviceUnavailable, err)
	}

	<-ctx.Done()
	return c.captureClient.Stop()
}

// Write queues a synthesized chunk for playback.
func (c *Client) Write(samples []byte) error {
	return c.playbackClient.Write(samples)
}

// Flush immediately drops all queued playback audio. Used by barge-in
// cancellation.
func (c *Client) Flush() {
	c.playbackClient.Flush()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encodingInfo
}
