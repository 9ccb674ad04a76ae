package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/micscribe/internal/audio"
	"github.com/chaz8081/micscribe/internal/config"
	"github.com/chaz8081/micscribe/internal/hotkey"
	"github.com/chaz8081/micscribe/internal/inject"
	"github.com/chaz8081/micscribe/internal/models"
	"github.com/chaz8081/micscribe/internal/recording"
	"github.com/chaz8081/micscribe/internal/transcribe"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/micscribe/config.yaml)")
	initConfig := flag.Bool("init", false, "write the default config file and exit")
	downloadModels := flag.Bool("models", false, "download whisper models interactively and exit")
	listDevices := flag.Bool("devices", false, "list capture devices and exit")
	inputFile := flag.String("input", "", "transcribe a WAV file through the recording pipeline and exit")
	expect := flag.String("expect", "", "with -input, reference text to score the transcript against")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fatal("writing default config", err)
		}
		if path == "" {
			fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		} else {
			fmt.Printf("Wrote default config to %s\n", path)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("config", err)
	}
	if err := cfg.LoadEnv(); err != nil {
		fatal("environment", err)
	}
	if *inputFile != "" {
		cfg.Audio.Backend = "file"
		cfg.Audio.InputFile = *inputFile
	}
	if err := cfg.Validate(); err != nil {
		fatal("config validation", err)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      config.ParseLogLevel(cfg.LogLevel),
		TimeFormat: time.TimeOnly,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr := models.NewManager(cfg.Transcribe.ModelsDir)
	mgr.Logger = logger

	switch {
	case *downloadModels:
		if err := models.RunInteractiveDownload(ctx, mgr, models.Catalog, os.Stdin, os.Stdout); err != nil {
			fatal("model download", err)
		}
		return
	case *listDevices:
		if err := printDevices(cfg); err != nil {
			fatal("listing devices", err)
		}
		return
	}

	p, err := newPipeline(cfg, mgr, logger)
	if err != nil {
		fatal("startup", err)
	}

	if *inputFile != "" {
		err := p.transcribeFile(ctx, os.Stdout, *expect)
		p.close()
		if err != nil {
			fatal("transcription", err)
		}
		return
	}

	printBanner(cfg)
	if err := run(ctx, cfg, p, mgr, logger); err != nil {
		logger.Error("stopped with error", "err", err)
	}
	p.close()
	logger.Info("goodbye")
	// Exit directly to avoid gohook's C cleanup crash.
	// The OS reclaims the event hook on process exit.
	os.Exit(0)
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}

// run drives the interactive dictation loop until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, p *pipeline, mgr *models.Manager, logger *slog.Logger) error {
	injector := inject.NewInjector(cfg.Inject.Method)
	listener := hotkey.NewListener(cfg.Hotkey.Keys, cfg.Hotkey.Mode, func() bool {
		return p.ctrl.State() == recording.Recording
	})

	// The listener blocks in C until hook.End; it is not part of the group
	// so shutdown never waits on it.
	go listener.Start()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		events := listener.Events()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-events:
				if !ok {
					return errors.New("hotkey listener stopped")
				}
				handleHotkey(ctx, p.ctrl, ev, logger)
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case res, ok := <-p.ctrl.Results():
				if !ok {
					return nil
				}
				deliver(res, injector, cfg.Inject.Method, logger)
			}
		}
	})

	if cfg.Transcribe.Backend == "whispercpp" {
		g.Go(func() error {
			return mgr.Watch(ctx, func(e models.Event) {
				if e.Model.Name != cfg.Transcribe.Model {
					return
				}
				if e.Present {
					logger.Info("model available", "model", e.Model.Name)
				} else {
					logger.Warn("model removed", "model", e.Model.Name)
				}
			})
		})
	}

	logger.Info("ready", "hotkey", strings.Join(cfg.Hotkey.Keys, "+"), "mode", cfg.Hotkey.Mode)
	return g.Wait()
}

// handleHotkey maps a hotkey event onto a controller transition.
func handleHotkey(ctx context.Context, ctrl *recording.Controller, ev hotkey.Event, logger *slog.Logger) {
	var err error
	switch ev.Type {
	case hotkey.EventStart:
		err = ctrl.Start(ctx)
	case hotkey.EventStop:
		err = ctrl.Stop(ctx)
	}

	switch {
	case err == nil:
	case errors.Is(err, recording.ErrRecordingTooShort), errors.Is(err, transcribe.ErrNoSamples):
		logger.Info("recording too short, skipping", "err", err)
	case errors.Is(err, recording.ErrInvalidTransition), errors.Is(err, recording.ErrBusy):
		logger.Debug("hotkey ignored", "event", ev.Type, "state", ctrl.State(), "err", err)
	case errors.Is(err, recording.ErrModelUnavailable):
		logger.Error("model unavailable", "err", err)
	case errors.Is(err, audio.ErrEngineStartFailed), errors.Is(err, audio.ErrUnsupportedDeviceFormat):
		logger.Error("microphone unavailable", "err", err)
	default:
		logger.Error("hotkey action failed", "event", ev.Type, "err", err)
	}
}

// deliver injects a successful result.
func deliver(res recording.Result, injector inject.TextInjector, method string, logger *slog.Logger) {
	log := logger.With("session", res.SessionID)
	if res.Err != nil {
		log.Error("transcription failed", "err", res.Err)
		return
	}

	text := res.Text()
	if text == "" {
		log.Info("no speech detected", "took", res.Elapsed.Round(time.Millisecond))
		return
	}
	log.Info("transcribed", "audio", res.Audio.Round(time.Millisecond), "took", res.Elapsed.Round(time.Millisecond), "text", text)

	if method == "none" {
		fmt.Println(text)
		return
	}
	if err := inject.InjectSegments(injector, res.Segments); err != nil {
		log.Error("text injection failed", "err", err)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== micscribe ===")
	fmt.Printf("  Backend: %s\n", cfg.Transcribe.Backend)
	if cfg.Transcribe.Backend == "whispercpp" {
		fmt.Printf("  Model:   %s (%s)\n", cfg.Transcribe.Model, cfg.Transcribe.ModelsDir)
	} else {
		fmt.Printf("  Model:   %s\n", cfg.Transcribe.OpenAI.Model)
	}
	fmt.Printf("  Hotkey:  %s (%s mode)\n", strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode)
	fmt.Printf("  Audio:   %s %s\n", cfg.Audio.Backend, describeAudio(cfg.Audio))
	fmt.Printf("  Inject:  %s\n", cfg.Inject.Method)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("=================")
}
