package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures an OpenAIEngine.
type OpenAIOptions struct {
	APIKey   string
	BaseURL  string // empty uses the public API
	Model    string
	Language string
	Logger   *slog.Logger
}

// OpenAIEngine transcribes through an OpenAI-compatible audio endpoint.
type OpenAIEngine struct {
	client   *openai.Client
	model    string
	language string
	log      *slog.Logger
}

// NewOpenAIEngine builds a client. No request is made until Transcribe.
func NewOpenAIEngine(opts OpenAIOptions) (*OpenAIEngine, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("transcribe: openai api key is empty")
	}
	if opts.Model == "" {
		opts.Model = openai.Whisper1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAIEngine{
		client:   openai.NewClientWithConfig(cfg),
		model:    opts.Model,
		language: opts.Language,
		log:      opts.Logger,
	}, nil
}

func (e *OpenAIEngine) Close() error {
	return nil
}

// Transcribe uploads samples as a WAV file and maps the verbose response
// into segments.
func (e *OpenAIEngine) Transcribe(ctx context.Context, samples []float32, sampleRate uint32) ([]Segment, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	dir, err := os.MkdirTemp("", "micscribe-openai-*")
	if err != nil {
		return nil, fmt.Errorf("transcribe: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "speech.wav")
	if err := WriteWAV(path, samples, sampleRate); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := e.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    e.model,
		FilePath: path,
		Language: e.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("transcribe: openai: %w", err)
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		segments = append(segments, Segment{
			Text:  s.Text,
			Start: seconds(s.Start),
			End:   seconds(s.End),
		})
	}
	if len(segments) == 0 && resp.Text != "" {
		segments = append(segments, Segment{
			Text: resp.Text,
			End:  samplesDuration(len(samples), sampleRate),
		})
	}

	e.log.Debug("openai transcription finished", "took", time.Since(start), "segments", len(segments))
	return segments, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
