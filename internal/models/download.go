// Package models manages the whisper.cpp model files used for local
// transcription: the catalog, downloads, readiness checks and watching the
// models directory for changes.
package models

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrUnknownModel is returned for names not in the catalog.
	ErrUnknownModel = errors.New("models: unknown model")
	// ErrModelMissing is returned by Gate.Ready when the file is absent.
	ErrModelMissing = errors.New("models: model not downloaded")
)

// Model is a downloadable ggml model.
type Model struct {
	Name     string
	Info     string
	URL      string
	Filename string
}

// Catalog lists the models micscribe knows how to fetch.
var Catalog = []Model{
	{
		Name:     "base.en",
		Info:     "(F16, 142 MiB)",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.en.bin",
		Filename: "ggml-base.en.bin",
	},
	{
		Name:     "tiny.en",
		Info:     "(F16, 75 MiB)",
		URL:      "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.en.bin",
		Filename: "ggml-tiny.en.bin",
	},
}

// Lookup finds a catalog model by name.
func Lookup(name string) (Model, error) {
	for _, m := range Catalog {
		if m.Name == name {
			return m, nil
		}
	}
	return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
}

// Manager stores models under Dir.
type Manager struct {
	Dir    string
	Client *http.Client
	Logger *slog.Logger
}

// NewManager returns a manager for dir using the default HTTP client.
func NewManager(dir string) *Manager {
	return &Manager{Dir: dir, Client: http.DefaultClient, Logger: slog.Default()}
}

// Path returns where model is stored.
func (m *Manager) Path(model Model) string {
	return filepath.Join(m.Dir, model.Filename)
}

// IsDownloaded reports whether a non-empty model file is present.
func (m *Manager) IsDownloaded(model Model) bool {
	info, err := os.Stat(m.Path(model))
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Installed returns the catalog models present on disk.
func (m *Manager) Installed() []Model {
	var out []Model
	for _, model := range Catalog {
		if m.IsDownloaded(model) {
			out = append(out, model)
		}
	}
	return out
}

// Delete removes a downloaded model. Deleting a missing model is not an error.
func (m *Manager) Delete(model Model) error {
	if err := os.Remove(m.Path(model)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("models: delete %s: %w", model.Name, err)
	}
	m.Logger.Info("model deleted", "model", model.Name)
	return nil
}

// Download fetches model into Dir, printing progress to out. An existing
// file is left alone. The data is written to a temp file first and renamed
// into place, so a partial download never looks installed.
func (m *Manager) Download(ctx context.Context, model Model, out io.Writer) error {
	if err := os.MkdirAll(m.Dir, 0755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}

	destPath := m.Path(model)
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		fmt.Fprintf(out, "  Model %s already exists: %s (%.0f MB)\n", model.Name, destPath, float64(info.Size())/(1024*1024))
		return nil
	}

	fmt.Fprintf(out, "  Downloading %s %s...\n", model.Name, model.Info)
	fmt.Fprintf(out, "  URL: %s\n", model.URL)
	fmt.Fprintf(out, "  Destination: %s\n", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, model.URL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", model.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	pw := &progressWriter{
		writer: f,
		out:    out,
		total:  resp.ContentLength,
		label:  model.Filename,
	}

	written, err := io.Copy(pw, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing model file: %w", err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		os.Remove(tmpPath)
		return fmt.Errorf("download truncated: got %d of %d bytes", written, resp.ContentLength)
	}

	fmt.Fprintf(out, "\n  Downloaded %.1f MB\n", float64(written)/(1024*1024))

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("moving model file: %w", err)
	}
	m.Logger.Info("model downloaded", "model", model.Name, "path", destPath)
	return nil
}

// progressWriter wraps an io.Writer and prints download progress.
type progressWriter struct {
	writer  io.Writer
	out     io.Writer
	total   int64
	written int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB / %.1f MB (%.0f%%)",
			pw.label,
			float64(pw.written)/(1024*1024),
			float64(pw.total)/(1024*1024),
			pct)
	} else {
		fmt.Fprintf(pw.out, "\r  %s: %.1f MB downloaded",
			pw.label,
			float64(pw.written)/(1024*1024))
	}
	return n, err
}

// RunInteractiveDownload asks which of catalog to download and downloads
// the choice. Answers are read from in and prompts written to out.
func RunInteractiveDownload(ctx context.Context, m *Manager, catalog []Model, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "=== Model Download ===")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Models will be downloaded to: %s\n", m.Dir)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Which model would you like to download?")
	for i, model := range catalog {
		mark := ""
		if m.IsDownloaded(model) {
			mark = " [installed]"
		}
		fmt.Fprintf(out, "  [%d] %s %s%s\n", i+1, model.Name, model.Info, mark)
	}
	fmt.Fprintln(out, "  [a] All")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Choice: ")

	var choice string
	if sc := bufio.NewScanner(in); sc.Scan() {
		choice = strings.TrimSpace(sc.Text())
	}
	fmt.Fprintln(out)

	if strings.EqualFold(choice, "a") {
		for i, model := range catalog {
			fmt.Fprintf(out, "[%d/%d] %s:\n", i+1, len(catalog), model.Name)
			if err := m.Download(ctx, model, out); err != nil {
				return fmt.Errorf("%s download failed: %w", model.Name, err)
			}
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, "All models downloaded successfully!")
		return nil
	}

	n, err := strconv.Atoi(choice)
	if err != nil || n < 1 || n > len(catalog) {
		return fmt.Errorf("invalid choice: %q (expected 1-%d or a)", choice, len(catalog))
	}
	return m.Download(ctx, catalog[n-1], out)
}
