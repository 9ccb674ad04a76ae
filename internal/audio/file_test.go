package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeTestWAV writes interleaved 16-bit PCM to a temporary WAV file.
func writeTestWAV(t *testing.T, rate, channels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encoding wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing wav encoder: %v", err)
	}
	return path
}

func TestFileDeviceOpenReportsFormat(t *testing.T) {
	path := writeTestWAV(t, 44100, 2, make([]int, 2*441))
	dev := NewFileDevice(path, 0, false)
	defer dev.Close()

	got, err := dev.Open(nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	want := Format{SampleRate: 44100, Channels: 2, Kind: KindInt16}
	if got != want {
		t.Errorf("Open() = %s, want %s", got, want)
	}
}

func TestFileDeviceOpenErrors(t *testing.T) {
	dev := NewFileDevice("/nonexistent/input.wav", 0, false)
	if _, err := dev.Open(nil); err == nil {
		t.Error("Open() with missing file should fail")
	}

	junk := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(junk, []byte("definitely not RIFF"), 0644); err != nil {
		t.Fatal(err)
	}
	dev = NewFileDevice(junk, 0, false)
	if _, err := dev.Open(nil); err == nil {
		t.Error("Open() with invalid WAV should fail")
	}
}

func TestFileDeviceThroughSession(t *testing.T) {
	const frames = 4410 // 100ms at 44.1kHz
	data := make([]int, 0, frames*2)
	for i := 0; i < frames; i++ {
		v := int(math.Round(8000 * math.Sin(float64(i)/20)))
		data = append(data, v, v)
	}
	path := writeTestWAV(t, 44100, 2, data)

	dev := NewFileDevice(path, 1024, false)
	s := NewSession(dev, SessionOptions{})
	defer s.Close()

	mustStart(t, s, nil)
	<-dev.Done()
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	samples, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if diff := len(samples) - 1600; diff < -1 || diff > 1 {
		t.Errorf("Snapshot() length = %d, want 1600±1", len(samples))
	}
	for i, v := range samples {
		if v < -1 || v > 1 {
			t.Fatalf("sample[%d] = %f out of range", i, v)
		}
	}

	stats := s.Stats()
	if stats.Chunks != 5 || stats.Frames != frames {
		t.Errorf("Stats() = %+v, want 5 chunks of %d frames total", stats, frames)
	}
}

func TestFileDeviceStopWithoutStart(t *testing.T) {
	dev := NewFileDevice("unused.wav", 0, false)
	if err := dev.Stop(); err != nil {
		t.Errorf("Stop() without Start error = %v", err)
	}
}

func TestToInt16(t *testing.T) {
	tests := []struct {
		v, depth int
		want     int16
	}{
		{1000, 16, 1000},
		{255, 8, 127 << 8},
		{128, 8, 0},
		{0x7fff00, 24, 0x7fff},
		{-0x10000, 32, -1},
	}
	for _, tt := range tests {
		if got := toInt16(tt.v, tt.depth); got != tt.want {
			t.Errorf("toInt16(%d, %d) = %d, want %d", tt.v, tt.depth, got, tt.want)
		}
	}
}
