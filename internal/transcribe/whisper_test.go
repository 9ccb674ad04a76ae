package transcribe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeScript creates an executable shell script standing in for whisper-cli.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skipf("shell scripts not supported on %s", runtime.GOOS)
	}
	path := filepath.Join(t.TempDir(), "whisper-cli")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

// fakeWhisper writes a canned JSON result to the -of path and records its
// arguments next to it.
const fakeWhisper = `
out=""
args="$*"
while [ $# -gt 0 ]; do
  if [ "$1" = "-of" ]; then out="$2"; fi
  shift
done
echo "$args" > "$(dirname "$0")/args.txt"
cat > "$out.json" <<'JSON'
{"transcription": [
  {"offsets": {"from": 0, "to": 800}, "text": " testing"},
  {"offsets": {"from": 800, "to": 1900}, "text": " one two."}
]}
JSON
`

func TestWhisperCPPTranscribe(t *testing.T) {
	bin := writeScript(t, fakeWhisper)
	e, err := NewWhisperCPPEngine(WhisperCPPOptions{
		Bin:       bin,
		ModelPath: "/models/ggml-base.en.bin",
		Language:  "en",
		Threads:   3,
	})
	if err != nil {
		t.Fatalf("NewWhisperCPPEngine() error = %v", err)
	}
	defer e.Close()

	segments, err := e.Transcribe(context.Background(), make([]float32, 16000), 16000)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if got := Text(segments); got != "testing one two." {
		t.Errorf("Text() = %q, want %q", got, "testing one two.")
	}
	if segments[1].Start != 800*time.Millisecond || segments[1].End != 1900*time.Millisecond {
		t.Errorf("segment[1] = %+v, want 800ms-1.9s", segments[1])
	}

	args, err := os.ReadFile(filepath.Join(filepath.Dir(bin), "args.txt"))
	if err != nil {
		t.Fatalf("reading recorded args: %v", err)
	}
	for _, want := range []string{"-m /models/ggml-base.en.bin", "-l en", "-oj", "-np", "-t 3"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestWhisperCPPFailureReportsStderr(t *testing.T) {
	bin := writeScript(t, `echo "loading model" >&2; echo "failed to open model" >&2; exit 2`)
	e, err := NewWhisperCPPEngine(WhisperCPPOptions{Bin: bin, ModelPath: "missing.bin"})
	if err != nil {
		t.Fatalf("NewWhisperCPPEngine() error = %v", err)
	}

	_, err = e.Transcribe(context.Background(), []float32{0.1}, 16000)
	if err == nil {
		t.Fatal("Transcribe() should fail when whisper.cpp exits non-zero")
	}
	if !strings.Contains(err.Error(), "failed to open model") {
		t.Errorf("error = %v, want it to carry the last stderr line", err)
	}
}

func TestWhisperCPPCancel(t *testing.T) {
	bin := writeScript(t, "exec sleep 10")
	e, err := NewWhisperCPPEngine(WhisperCPPOptions{Bin: bin, ModelPath: "model.bin"})
	if err != nil {
		t.Fatalf("NewWhisperCPPEngine() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = e.Transcribe(ctx, []float32{0.1}, 16000)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Transcribe() error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Transcribe() did not return promptly after cancel")
	}
}

func TestNewWhisperCPPEngineErrors(t *testing.T) {
	if _, err := NewWhisperCPPEngine(WhisperCPPOptions{Bin: "/nonexistent/whisper-cli", ModelPath: "m"}); err == nil {
		t.Error("missing binary should fail")
	}
	bin := writeScript(t, "exit 0")
	if _, err := NewWhisperCPPEngine(WhisperCPPOptions{Bin: bin}); err == nil {
		t.Error("empty model path should fail")
	}
}
