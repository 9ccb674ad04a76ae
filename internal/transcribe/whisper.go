package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// WhisperCPPOptions configures a WhisperCPPEngine.
type WhisperCPPOptions struct {
	Bin       string // whisper.cpp CLI, looked up in PATH when not absolute
	ModelPath string
	Language  string
	Threads   int // 0 lets whisper.cpp decide
	Logger    *slog.Logger
}

// WhisperCPPEngine transcribes by running the whisper.cpp command line tool
// on a temporary WAV file and reading back its JSON output.
type WhisperCPPEngine struct {
	bin       string
	modelPath string
	language  string
	threads   int
	log       *slog.Logger
}

// NewWhisperCPPEngine resolves the CLI binary. The model file itself is
// checked at transcription time so it can be downloaded after startup.
func NewWhisperCPPEngine(opts WhisperCPPOptions) (*WhisperCPPEngine, error) {
	if opts.Bin == "" {
		opts.Bin = "whisper-cli"
	}
	bin, err := exec.LookPath(opts.Bin)
	if err != nil {
		return nil, fmt.Errorf("transcribe: whisper.cpp binary %q: %w", opts.Bin, err)
	}
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("transcribe: whisper.cpp model path is empty")
	}
	if opts.Language == "" {
		opts.Language = "auto"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &WhisperCPPEngine{
		bin:       bin,
		modelPath: opts.ModelPath,
		language:  opts.Language,
		threads:   opts.Threads,
		log:       opts.Logger,
	}, nil
}

// Close is a no-op; each call starts and reaps its own process.
func (e *WhisperCPPEngine) Close() error {
	return nil
}

// Transcribe runs whisper.cpp on samples. Cancelling ctx kills the process.
func (e *WhisperCPPEngine) Transcribe(ctx context.Context, samples []float32, sampleRate uint32) ([]Segment, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	dir, err := os.MkdirTemp("", "micscribe-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("transcribe: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.wav")
	if err := WriteWAV(input, samples, sampleRate); err != nil {
		return nil, err
	}
	outBase := filepath.Join(dir, "output")

	args := []string{
		"-m", e.modelPath,
		"-f", input,
		"-l", e.language,
		"-oj",
		"-of", outBase,
		"-np",
	}
	if e.threads > 0 {
		args = append(args, "-t", strconv.Itoa(e.threads))
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.bin, args...) //nolint:gosec // binary comes from config
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("transcribe: whisper.cpp: %w: %s", err, lastLine(stderr.String()))
	}

	data, err := os.ReadFile(outBase + ".json")
	if err != nil {
		return nil, fmt.Errorf("transcribe: read whisper.cpp output: %w", err)
	}
	segments, err := parseWhisperJSON(data)
	if err != nil {
		return nil, err
	}

	e.log.Debug("whisper.cpp finished",
		"audio", samplesDuration(len(samples), sampleRate),
		"took", time.Since(start),
		"segments", len(segments),
	)
	return segments, nil
}

// whisperOutput is the subset of whisper.cpp's -oj output we read.
type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseWhisperJSON(data []byte) ([]Segment, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("transcribe: parse whisper.cpp output: %w", err)
	}
	segments := make([]Segment, 0, len(out.Transcription))
	for _, t := range out.Transcription {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Text:  text,
			Start: time.Duration(t.Offsets.From) * time.Millisecond,
			End:   time.Duration(t.Offsets.To) * time.Millisecond,
		})
	}
	return segments, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
