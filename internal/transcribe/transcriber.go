package transcribe

import (
	"fmt"
	"log/slog"

	"github.com/chaz8081/micscribe/internal/config"
)

// New creates an Engine based on the config backend setting. modelPath is
// the resolved model file for local backends and is ignored by remote ones.
func New(cfg *config.TranscribeConfig, modelPath string, logger *slog.Logger) (Engine, error) {
	switch cfg.Backend {
	case "whispercpp", "":
		return NewWhisperCPPEngine(WhisperCPPOptions{
			Bin:       cfg.WhisperBin,
			ModelPath: modelPath,
			Language:  cfg.Language,
			Threads:   cfg.Threads,
			Logger:    logger,
		})
	case "openai":
		return NewOpenAIEngine(OpenAIOptions{
			APIKey:   cfg.OpenAI.APIKey,
			BaseURL:  cfg.OpenAI.BaseURL,
			Model:    cfg.OpenAI.Model,
			Language: cfg.Language,
			Logger:   logger,
		})
	default:
		return nil, fmt.Errorf("transcribe: unknown backend %q (supported: whispercpp, openai)", cfg.Backend)
	}
}
