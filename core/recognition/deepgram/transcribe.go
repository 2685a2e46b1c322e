// Package deepgram implements the recognition engine contract on top of
// Deepgram's streaming listen API.
package deepgram

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"context"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/recognition"
)

const (
	defaultModel = "nova-3"
	fastModel    = "nova-2-general"

	// audioChunkBytes is the write granularity for segment audio; Deepgram
	// accepts arbitrary binary message sizes, this just bounds memory spikes.
	audioChunkBytes = 8192
)

// TranscriptionClient streams one speech segment per call over a dedicated
// websocket connection and reports ordered partial and final results.
type TranscriptionClient struct {
	model string
}

func NewTranscriptionClient() *TranscriptionClient {
	return &TranscriptionClient{model: defaultModel}
}

func (c *TranscriptionClient) Stream(ctx context.Context, samples []byte, opts ...recognition.StreamOption) error {
	options := recognition.StreamOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	model := c.model
	if options.FastProfile {
		model = fastModel
	}

	conn, err := connectWebsocket(connectionOptions{
		sampleRate:     options.EncodingInfo.SampleRate,
		encoding:       options.EncodingInfo.Format.Name(),
		model:          model,
		interimResults: options.PartialResultCallback != nil,
	})
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := sendAudio(conn, samples); err != nil {
		return err
	}
	if err := conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
		return fmt.Errorf("failed to close deepgram stream: %w", err)
	}

	return c.readResults(ctx, conn, options)
}

func sendAudio(conn *websocket.Conn, samples []byte) error {
	for len(samples) > 0 {
		n := min(audioChunkBytes, len(samples))
		if err := conn.WriteMessage(websocket.BinaryMessage, samples[:n]); err != nil {
			return fmt.Errorf("failed to write to deepgram client: %w", err)
		}
		samples = samples[n:]
	}
	return nil
}

func (c *TranscriptionClient) readResults(ctx context.Context, conn *websocket.Conn, options recognition.StreamOptions) error {
	accumulated := []string{}
	confidence := 0.0
	finalSent := false

	emitFinal := func() {
		if finalSent {
			return
		}
		finalSent = true
		if options.FinalResultCallback != nil {
			options.FinalResultCallback(recognition.Result{
				UtteranceID: options.UtteranceID,
				Text:        strings.TrimSpace(strings.Join(accumulated, " ")),
				Final:       true,
				Confidence:  confidence,
				Timestamp:   time.Now(),
			})
		}
	}

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				emitFinal()
				return nil
			}
			return fmt.Errorf("failed to read deepgram websocket message: %w", err)
		}
		if msgType == websocket.BinaryMessage {
			continue
		}

		var parsedMsg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			log.Println("Failed to unmarshal deepgram message", "error", err)
			continue
		}

		switch api.TypeResponse(parsedMsg.Type) {
		case api.TypeMessageResponse:
			var msgResp api.MessageResponse
			if err := json.Unmarshal(msg, &msgResp); err != nil {
				log.Println("Failed to unmarshal deepgram message", err)
				continue
			}
			if len(msgResp.Channel.Alternatives) == 0 {
				continue
			}

			alternative := msgResp.Channel.Alternatives[0]
			transcript := strings.TrimSpace(alternative.Transcript)
			if transcript == "" {
				continue
			}

			if msgResp.IsFinal {
				accumulated = append(accumulated, transcript)
				confidence = alternative.Confidence
			}
			if options.PartialResultCallback != nil && !finalSent {
				text := strings.Join(accumulated, " ")
				if !msgResp.IsFinal {
					text = strings.TrimSpace(text + " " + transcript)
				}
				options.PartialResultCallback(recognition.Result{
					UtteranceID: options.UtteranceID,
					Text:        text,
					Confidence:  alternative.Confidence,
					Timestamp:   time.Now(),
				})
			}

		case api.TypeMetadataResponse:
			// Metadata closes out the stream once CloseStream was sent.
			emitFinal()
			return nil

		case api.TypeUtteranceEndResponse:
			emitFinal()
			return nil
		}
	}
}

type connectionOptions struct {
	sampleRate     int
	encoding       string
	model          string
	interimResults bool
}

func connectWebsocket(options connectionOptions) (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	listenUrl, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", options.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(options.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", options.model)
	queryParams.Set("language", "en-US")
	queryParams.Set("smart_format", "true")
	if options.interimResults {
		queryParams.Set("interim_results", "true")
	}
	queryParams.Set("endpointing", "300")

	listenUrl.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenUrl.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}
