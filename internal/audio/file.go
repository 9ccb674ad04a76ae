package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
)

// DefaultFramesPerBuffer matches the tap size most capture backends use.
const DefaultFramesPerBuffer = 1024

// FileDevice replays a PCM WAV file as if it were a microphone. Samples are
// delivered as 16-bit integers at the file's own rate and channel count.
type FileDevice struct {
	path     string
	frames   int
	realtime bool

	mu     sync.Mutex
	pcm    []byte
	format Format
	stop   chan struct{}
	done   chan struct{}
	eof    chan struct{}
}

// NewFileDevice returns a device replaying path in buffers of
// framesPerBuffer frames. With realtime set, buffers are paced at the
// file's sample rate; otherwise they are delivered as fast as the tap
// accepts them.
func NewFileDevice(path string, framesPerBuffer int, realtime bool) *FileDevice {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return &FileDevice{
		path:     path,
		frames:   framesPerBuffer,
		realtime: realtime,
		eof:      make(chan struct{}),
	}
}

// Open decodes the file. want is ignored: a file has exactly one format.
func (d *FileDevice) Open(_ *Format) (Format, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return Format{}, fmt.Errorf("opening %s: %w", d.path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Format{}, fmt.Errorf("%s: not a valid WAV file", d.path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Format{}, fmt.Errorf("decoding %s: %w", d.path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return Format{}, fmt.Errorf("%s: missing format chunk", d.path)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = toInt16(v, buf.SourceBitDepth)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pcm = EncodeInt16(samples)
	d.format = Format{
		SampleRate: uint32(buf.Format.SampleRate),
		Channels:   uint32(buf.Format.NumChannels),
		Kind:       KindInt16,
	}
	d.eof = make(chan struct{})
	return d.format, nil
}

// toInt16 rescales a decoded sample of the given bit depth to 16 bits.
func toInt16(v, depth int) int16 {
	switch {
	case depth == 8:
		return int16((v - 128) << 8)
	case depth > 16:
		return int16(v >> (depth - 16))
	default:
		return int16(v)
	}
}

// Start begins replaying from the beginning of the file.
func (d *FileDevice) Start(tap Tap) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pcm == nil {
		return errors.New("file device: not opened")
	}
	if d.stop != nil {
		return errors.New("file device: already started")
	}

	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.feed(tap, d.pcm, d.format, d.stop, d.done, d.eof)
	return nil
}

func (d *FileDevice) feed(tap Tap, pcm []byte, format Format, stop, done, eof chan struct{}) {
	defer close(done)

	chunkBytes := d.frames * format.FrameSize()
	interval := time.Duration(d.frames) * time.Second / time.Duration(format.SampleRate)
	scratch := make([]byte, chunkBytes)

	for pos := 0; pos < len(pcm); {
		select {
		case <-stop:
			return
		default:
		}

		end := min(pos+chunkBytes, len(pcm))
		n := copy(scratch, pcm[pos:end])
		tap(RawBuffer{Data: scratch[:n], Frames: uint32(n / format.FrameSize())})
		pos = end

		if d.realtime {
			select {
			case <-stop:
				return
			case <-time.After(interval):
			}
		}
	}
	close(eof)
}

// Stop ends the replay and waits for the feeding goroutine to exit.
func (d *FileDevice) Stop() error {
	d.mu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Done is closed once the whole file has been delivered.
func (d *FileDevice) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.eof
}

func (d *FileDevice) Close() error {
	if err := d.Stop(); err != nil {
		return err
	}
	d.mu.Lock()
	d.pcm = nil
	d.mu.Unlock()
	return nil
}
