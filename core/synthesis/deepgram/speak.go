// Package deepgram implements the synthesis engine contract on top of
// Deepgram's streaming speak API.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/synthesis"
)

const (
	defaultVoice = "aura-2-thalia-en"
	// fastVoice trades naturalness for time to first byte; used when the
	// degrade policy requests the fast profile.
	fastVoice = "aura-asteria-en"
)

// SpeechClient opens one websocket per turn and streams synthesized chunks
// back through the chunk callback. Turns can be cancelled mid-stream;
// cancellation closes the turn's connection, which releases everything
// Deepgram still had buffered for it.
type SpeechClient struct {
	voice string

	mu     sync.Mutex
	active map[string]*turnStream
}

type turnStream struct {
	conn      *websocket.Conn
	cancelled atomic.Bool
}

func NewSpeechClient() *SpeechClient {
	return &SpeechClient{
		voice:  defaultVoice,
		active: map[string]*turnStream{},
	}
}

func (c *SpeechClient) Synthesize(ctx context.Context, turnID, text string, opts ...synthesis.SynthesizeOption) error {
	options := synthesis.SynthesizeOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	voice := c.voice
	if options.FastProfile {
		voice = fastVoice
	}

	conn, err := connectWebsocket(voice, options.EncodingInfo)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	stream := &turnStream{conn: conn}
	c.mu.Lock()
	c.active[turnID] = stream
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.active, turnID)
		c.mu.Unlock()
		conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for _, msg := range []any{
		struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: "Speak", Text: text},
		struct {
			Type string `json:"type"`
		}{Type: "Flush"},
		struct {
			Type string `json:"type"`
		}{Type: "Close"},
	} {
		if err := conn.WriteJSON(msg); err != nil {
			if stream.cancelled.Load() {
				return nil
			}
			return fmt.Errorf("failed to send text to deepgram: %w", err)
		}
	}

	return c.readChunks(ctx, stream, turnID, options)
}

func (c *SpeechClient) readChunks(ctx context.Context, stream *turnStream, turnID string, options synthesis.SynthesizeOptions) error {
	seq := 0
	for {
		msgType, msg, err := stream.conn.ReadMessage()
		if err != nil {
			if stream.cancelled.Load() {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("failed to read deepgram websocket message: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			if stream.cancelled.Load() {
				continue
			}
			if options.ChunkCallback != nil {
				options.ChunkCallback(synthesis.Chunk{TurnID: turnID, Seq: seq, Audio: msg})
			}
			seq++

		case websocket.TextMessage:
			var parsedMsg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				log.Println("Failed to unmarshal deepgram message", "error", err)
				continue
			}
			if parsedMsg.Type == "Flushed" {
				return nil
			}
		}
	}
}

// Cancel stops emission for the turn and drops whatever Deepgram still had
// buffered. Unknown and already-cancelled turn ids are ignored.
func (c *SpeechClient) Cancel(turnID string) error {
	c.mu.Lock()
	stream := c.active[turnID]
	c.mu.Unlock()

	if stream == nil || !stream.cancelled.CompareAndSwap(false, true) {
		return nil
	}

	if err := stream.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cancelled turn stream: %w", err)
	}
	return nil
}

func connectWebsocket(voice string, encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	urlValues := url.Values{}
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", voice)
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.Dial(
		(&url.URL{
			Scheme: "wss",
			Host:   "api.deepgram.com", Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}
