package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/voxloop/voxloop-core/core/audio"
	"github.com/voxloop/voxloop-core/core/recognition"
)

// PrerecordedClient transcribes a whole segment in one HTTP round trip
// against Deepgram's prerecorded listen API. It trades partial results for
// a much simpler failure surface, which makes it the default fallback
// engine when the streaming client is restarted out.
type PrerecordedClient struct {
	httpClient *http.Client
	model      string
}

func NewPrerecordedClient() *PrerecordedClient {
	return &PrerecordedClient{
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		model:      defaultModel,
	}
}

func (c *PrerecordedClient) Stream(ctx context.Context, samples []byte, opts ...recognition.StreamOption) error {
	options := recognition.StreamOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(&options)
	}

	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return fmt.Errorf("deepgram api key not found")
	}

	model := c.model
	if options.FastProfile {
		model = fastModel
	}

	listenUrl, _ := url.Parse("https://api.deepgram.com/v1/listen")
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", model)
	queryParams.Set("language", "en-US")
	listenUrl.RawQuery = queryParams.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, listenUrl.String(), bytes.NewReader(samples))
	if err != nil {
		return fmt.Errorf("failed to build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+apiKey)
	req.Header.Set("Content-Type", "audio/raw")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transcription request failed with status %d", resp.StatusCode)
	}

	var parsedResp struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string  `json:"transcript"`
					Confidence float64 `json:"confidence"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsedResp); err != nil {
		return fmt.Errorf("failed to decode transcription response: %w", err)
	}

	transcript := ""
	confidence := 0.0
	if len(parsedResp.Results.Channels) > 0 && len(parsedResp.Results.Channels[0].Alternatives) > 0 {
		alternative := parsedResp.Results.Channels[0].Alternatives[0]
		transcript = strings.TrimSpace(alternative.Transcript)
		confidence = alternative.Confidence
	}

	if options.FinalResultCallback != nil {
		options.FinalResultCallback(recognition.Result{
			UtteranceID: options.UtteranceID,
			Text:        transcript,
			Final:       true,
			Confidence:  confidence,
			Timestamp:   time.Now(),
		})
	}

	return nil
}
