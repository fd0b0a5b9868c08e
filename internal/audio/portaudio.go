package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Initialize prepares the portaudio host API. Call once per process before
// opening any device, and pair with Terminate on shutdown.
func Initialize() error {
	return portaudio.Initialize()
}

func Terminate() {
	_ = portaudio.Terminate()
}

type portaudioInput struct {
	stream *portaudio.Stream
}

// OpenPortAudioInput opens the default microphone as an InputStream. It is an
// InputOpener.
func OpenPortAudioInput(sampleRate, frames int, buf []float32) (InputStream, error) {
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frames, buf)
	if err != nil {
		return nil, fmt.Errorf("open default input: %w", err)
	}
	return &portaudioInput{stream: stream}, nil
}

func (p *portaudioInput) Start() error { return p.stream.Start() }
func (p *portaudioInput) Read() error  { return p.stream.Read() }
func (p *portaudioInput) Stop() error  { return p.stream.Stop() }
func (p *portaudioInput) Close() error { return p.stream.Close() }

// PortAudioSink plays scheduler buffers on the default output device.
// Writes are sequential and blocking, which keeps back-to-back buffers
// gapless without extra buffering here.
type PortAudioSink struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []float32
	frames  int
	closed  bool
	started bool
}

func NewPortAudioSink(sampleRate, channels, frames int) (*PortAudioSink, error) {
	if channels <= 0 {
		channels = 1
	}
	if frames <= 0 {
		frames = 1024
	}
	buf := make([]float32, frames*channels)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), frames, buf)
	if err != nil {
		return nil, fmt.Errorf("open default output: %w", err)
	}
	return &PortAudioSink{stream: stream, buf: buf, frames: frames}, nil
}

func (s *PortAudioSink) Write(buf *Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if !s.started {
		if err := s.stream.Start(); err != nil {
			return err
		}
		s.started = true
	}

	samples := buf.Samples
	for off := 0; off < len(samples); off += len(s.buf) {
		end := off + len(s.buf)
		if end > len(samples) {
			end = len(samples)
		}
		n := copy(s.buf, samples[off:end])
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		if err := s.stream.Write(); err != nil {
			return err
		}
	}
	return nil
}

// Reset drops queued device audio immediately (barge-in path).
func (s *PortAudioSink) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.started {
		return nil
	}
	if err := s.stream.Abort(); err != nil {
		return err
	}
	return s.stream.Start()
}

func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.started {
		_ = s.stream.Stop()
	}
	return s.stream.Close()
}
