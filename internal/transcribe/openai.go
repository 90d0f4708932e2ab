package transcribe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIOptions configures the OpenAI-compatible transcription backend.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string // optional, for self-hosted OpenAI-compatible servers
	Model      string
	Language   string
	SampleRate uint32
	Timeout    time.Duration
}

// OpenAITranscriber sends each segment to an /audio/transcriptions
// endpoint as a 16-bit PCM WAV file.
type OpenAITranscriber struct {
	client     openai.Client
	model      string
	language   string
	sampleRate uint32
}

// NewOpenAITranscriber creates a remote transcriber. Requests are not
// retried: a failed segment is reported as ErrServiceUnavailable.
func NewOpenAITranscriber(opts OpenAIOptions) (*OpenAITranscriber, error) {
	if opts.APIKey == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("transcribe: openai backend needs an API key (set OPENAI_API_KEY)")
	}
	if opts.Model == "" {
		opts.Model = "whisper-1"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 16000
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	return &OpenAITranscriber{
		client:     openai.NewClient(reqOpts...),
		model:      opts.Model,
		language:   opts.Language,
		sampleRate: opts.SampleRate,
	}, nil
}

// Close is a no-op; the HTTP client holds no exclusive resources.
func (t *OpenAITranscriber) Close() error {
	return nil
}

// Process uploads the samples and returns the recognized text.
func (t *OpenAITranscriber) Process(ctx context.Context, samples []float32) (string, error) {
	f, err := tempWAV(samples, t.sampleRate)
	if err != nil {
		return "", err
	}
	defer func() {
		f.Close()
		os.Remove(f.Name())
	}()

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(t.model),
	}
	if t.language != "" {
		params.Language = openai.String(t.language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	return cleanText(resp.Text)
}

// classifyOpenAIError maps transport failures, rate limits and server
// errors to ErrServiceUnavailable. Anything else is returned wrapped as is.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: HTTP %d", ErrServiceUnavailable, apiErr.StatusCode)
		}
		return fmt.Errorf("transcribe: openai: %w", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	return fmt.Errorf("transcribe: openai: %w", err)
}
