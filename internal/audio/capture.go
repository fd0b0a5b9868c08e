package audio

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// InputStream abstracts a started microphone stream. Read fills the buffer
// the stream was opened with, portaudio style.
type InputStream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

// InputOpener acquires the microphone at the given rate. Implementations
// return an error when the device is unavailable or access is denied.
type InputOpener func(sampleRate, frames int, buf []float32) (InputStream, error)

// Capture owns the microphone input graph: it frames the stream into
// fixed-size chunks, keeps a rolling RMS volume estimate for metering, and
// hands each encoded chunk to the forward callback. Forwarding is fire and
// forget; a slow consumer never blocks the device read loop.
type Capture struct {
	open       InputOpener
	sampleRate int
	frames     int
	forward    func(wire string)
	onError    func(error)

	mu      sync.Mutex
	stream  InputStream
	stop    chan struct{}
	done    chan struct{}
	running bool

	volumeBits atomic.Uint64
}

// NewCapture builds a capture pipeline. forward receives each encoded chunk;
// onError receives device read failures and may be nil.
func NewCapture(open InputOpener, sampleRate, frames int, forward func(wire string), onError func(error)) *Capture {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if frames <= 0 {
		frames = 4096
	}
	return &Capture{
		open:       open,
		sampleRate: sampleRate,
		frames:     frames,
		forward:    forward,
		onError:    onError,
	}
}

// Start acquires the microphone and begins the chunk loop. Starting an
// already-running pipeline is a no-op.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}

	buf := make([]float32, c.frames)
	stream, err := c.open(c.sampleRate, c.frames, buf)
	if err != nil {
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("start input stream: %w", err)
	}

	c.stream = stream
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true

	go c.loop(stream, buf, c.stop, c.done)
	return nil
}

func (c *Capture) loop(stream InputStream, buf []float32, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			select {
			case <-stop:
				return
			default:
			}
			if c.onError != nil {
				c.onError(err)
			}
			return
		}

		chunk := make([]float32, len(buf))
		copy(chunk, buf)

		c.volumeBits.Store(math.Float64bits(RMS(chunk)))

		wire, err := EncodePCM16(chunk)
		if err != nil {
			continue
		}
		if c.forward != nil {
			// Self-contained, order-independent frames: sends may overlap.
			go c.forward(wire)
		}
	}
}

// Stop detaches the tap and releases the input device. Idempotent.
func (c *Capture) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stream := c.stream
	c.stream = nil
	close(c.stop)
	done := c.done
	c.mu.Unlock()

	_ = stream.Stop()
	_ = stream.Close()
	<-done

	c.volumeBits.Store(0)
}

// Volume returns the RMS level of the most recent chunk.
func (c *Capture) Volume() float64 {
	return math.Float64frombits(c.volumeBits.Load())
}

// Running reports whether the pipeline currently holds the microphone.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
