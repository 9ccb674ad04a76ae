package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/chaz8081/micscribe/internal/audio"
	"github.com/chaz8081/micscribe/internal/config"
	"github.com/chaz8081/micscribe/internal/models"
	"github.com/chaz8081/micscribe/internal/recording"
	"github.com/chaz8081/micscribe/internal/transcribe"
)

// pipeline is the composed device → session → controller → engine chain.
type pipeline struct {
	dev     audio.Device
	session *audio.Session
	engine  transcribe.Engine
	ctrl    *recording.Controller
	log     *slog.Logger
}

func newPipeline(cfg *config.Config, mgr *models.Manager, logger *slog.Logger) (*pipeline, error) {
	want, err := desiredFormat(cfg.Audio)
	if err != nil {
		return nil, err
	}

	var (
		modelPath string
		gate      recording.ModelGate
	)
	if cfg.Transcribe.Backend == "whispercpp" {
		model, err := models.Lookup(cfg.Transcribe.Model)
		if err != nil {
			return nil, err
		}
		modelPath = mgr.Path(model)
		g := mgr.Gate(model.Name)
		if err := g.Ready(); err != nil {
			logger.Warn("model not downloaded yet; run micscribe -models", "path", modelPath)
		}
		gate = g
	}

	engine, err := transcribe.New(&cfg.Transcribe, modelPath, logger)
	if err != nil {
		return nil, err
	}

	dev, err := openDevice(cfg.Audio)
	if err != nil {
		closeEngine(engine, logger)
		return nil, err
	}

	session := audio.NewSession(dev, audio.SessionOptions{
		MaxDuration: cfg.Recording.MaxDuration,
		Logger:      logger,
	})
	ctrl := recording.NewController(session, engine, recording.Options{
		Format:      want,
		MinDuration: cfg.Recording.MinDuration,
		Gate:        gate,
		Logger:      logger,
	})

	return &pipeline{
		dev:     dev,
		session: session,
		engine:  engine,
		ctrl:    ctrl,
		log:     logger,
	}, nil
}

func (p *pipeline) close() {
	if err := p.ctrl.Close(); err != nil {
		p.log.Warn("closing controller", "err", err)
	}
	if err := p.session.Close(); err != nil {
		p.log.Warn("closing capture", "err", err)
	}
	closeEngine(p.engine, p.log)
}

func closeEngine(engine transcribe.Engine, logger *slog.Logger) {
	if err := engine.Close(); err != nil {
		logger.Warn("closing engine", "err", err)
	}
}

// transcribeFile replays the configured WAV file through one full
// Start/Stop cycle and prints the segments. A non-empty expect is scored
// against the transcript.
func (p *pipeline) transcribeFile(ctx context.Context, out io.Writer, expect string) error {
	fd, ok := p.dev.(*audio.FileDevice)
	if !ok {
		return fmt.Errorf("input mode needs the file backend, got %T", p.dev)
	}

	if err := p.ctrl.Start(ctx); err != nil {
		return err
	}
	select {
	case <-fd.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := p.ctrl.Stop(ctx); err != nil {
		return err
	}

	select {
	case res := <-p.ctrl.Results():
		if res.Err != nil {
			return res.Err
		}
		printSegments(out, res.Segments)
		if expect != "" {
			fmt.Fprintln(out, transcribe.ScoreSegments(expect, res.Segments))
		}
		p.log.Info("transcribed", "audio", res.Audio.Round(time.Millisecond), "took", res.Elapsed.Round(time.Millisecond),
			"dropped", p.ctrl.Stats().Dropped)
		return nil
	case <-ctx.Done():
		if err := p.ctrl.Cancel(); err != nil && !errors.Is(err, recording.ErrInvalidTransition) {
			p.log.Warn("cancelling transcription", "err", err)
		}
		return ctx.Err()
	}
}

// desiredFormat turns the audio section into the format requested from
// the device. All-zero settings mean device native and yield nil.
func desiredFormat(cfg config.AudioConfig) (*audio.Format, error) {
	kind, err := audio.ParseSampleKind(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.SampleRate == 0 && cfg.Channels == 0 && kind == audio.KindUnknown {
		return nil, nil
	}
	return &audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels, Kind: kind}, nil
}

// openDevice is swapped out by tests.
var openDevice = newDevice

func newDevice(cfg config.AudioConfig) (audio.Device, error) {
	switch cfg.Backend {
	case "file":
		return audio.NewFileDevice(cfg.InputFile, audio.DefaultFramesPerBuffer, false), nil
	case "pulse":
		return audio.NewPulseDevice(cfg.Device)
	default:
		return audio.NewMalgoDevice(cfg.Device)
	}
}

func describeAudio(cfg config.AudioConfig) string {
	want, err := desiredFormat(cfg)
	if err != nil || want == nil {
		return "(device native)"
	}
	return want.String()
}

func printDevices(cfg *config.Config) error {
	type lister interface {
		Devices() ([]audio.DeviceInfo, error)
		Close() error
	}

	var (
		dev lister
		err error
	)
	if cfg.Audio.Backend == "pulse" {
		dev, err = audio.NewPulseDevice("")
	} else {
		dev, err = audio.NewMalgoDevice("")
	}
	if err != nil {
		return err
	}
	defer dev.Close()

	devices, err := dev.Devices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		mark := " "
		if d.IsDefault {
			mark = "*"
		}
		fmt.Printf(" %s %s\n", mark, d.Name)
	}
	return nil
}

func printSegments(w io.Writer, segments []transcribe.Segment) {
	for _, s := range segments {
		fmt.Fprintf(w, "[%s -> %s] %s\n", stamp(s.Start), stamp(s.End), s.Text)
	}
}

// stamp formats d as mm:ss.mmm.
func stamp(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d.%03d", ms/60000, ms/1000%60, ms%1000)
}
