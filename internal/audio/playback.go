package audio

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink is the output device behind the playback scheduler. Write blocks until
// the device has accepted the buffer; Reset drops any audio the device still
// holds queued.
type Sink interface {
	Write(buf *Buffer) error
	Reset() error
	Close() error
}

// Scheduler plays decoded audio buffers gaplessly in strict arrival order.
// Each buffer is scheduled at max(nextStart, playhead) against a monotonic
// play-head clock, so bursts of chunks queue back to back without overlap.
type Scheduler struct {
	sink       Sink
	sampleRate int
	channels   int
	now        func() time.Time

	mu        sync.Mutex
	epoch     time.Time
	nextStart time.Duration
	inflight  map[string]*scheduledSource
	closed    bool

	onError func(error)
}

type scheduledSource struct {
	id    string
	start time.Duration
	buf   *Buffer
	stop  chan struct{}
	once  sync.Once
}

func (s *scheduledSource) cancel() {
	s.once.Do(func() { close(s.stop) })
}

// NewScheduler builds a scheduler decoding inbound chunks at the given rate
// and channel count. onError receives playback write failures; it may be nil.
func NewScheduler(sink Sink, sampleRate, channels int, onError func(error)) *Scheduler {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Scheduler{
		sink:       sink,
		sampleRate: sampleRate,
		channels:   channels,
		now:        time.Now,
		epoch:      time.Now(),
		inflight:   make(map[string]*scheduledSource),
		onError:    onError,
	}
}

func (s *Scheduler) playhead() time.Duration {
	return s.now().Sub(s.epoch)
}

// Enqueue decodes one wire chunk and schedules it after everything already
// queued. Start times are strictly non-decreasing and buffers never overlap.
func (s *Scheduler) Enqueue(wire string) error {
	buf, err := DecodePCM16(wire, s.sampleRate, s.channels)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	head := s.playhead()
	start := s.nextStart
	if head > start {
		start = head
	}
	s.nextStart = start + buf.Duration()
	src := &scheduledSource{
		id:    uuid.NewString(),
		start: start,
		buf:   buf,
		stop:  make(chan struct{}),
	}
	s.inflight[src.id] = src
	delay := start - head
	s.mu.Unlock()

	go s.run(src, delay)
	return nil
}

func (s *Scheduler) run(src *scheduledSource, delay time.Duration) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-src.stop:
			return
		case <-timer.C:
		}
	}

	// The timer can fire in the same instant as a cancellation.
	select {
	case <-src.stop:
		return
	default:
	}

	err := s.writeSliced(src)

	s.mu.Lock()
	delete(s.inflight, src.id)
	s.mu.Unlock()

	if err != nil && s.onError != nil {
		s.onError(err)
	}
}

// writeSliced hands the buffer to the sink in short slices, re-checking for
// cancellation between them. Barge-in must cut off speech mid-buffer, not
// just mid-queue, so a stopped source abandons its remaining slices.
func (s *Scheduler) writeSliced(src *scheduledSource) error {
	samples := src.buf.Samples
	step := s.sampleRate * s.channels / 20
	if step <= 0 {
		step = len(samples)
	}
	for off := 0; off < len(samples); off += step {
		select {
		case <-src.stop:
			return nil
		default:
		}
		end := off + step
		if end > len(samples) {
			end = len(samples)
		}
		slice := &Buffer{Samples: samples[off:end], SampleRate: src.buf.SampleRate, Channels: src.buf.Channels}
		if err := s.sink.Write(slice); err != nil {
			return err
		}
	}
	return nil
}

// Interrupt models barge-in: every in-flight source is stopped, the set is
// cleared, and the play-head clock restarts from zero.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	for id, src := range s.inflight {
		src.cancel()
		delete(s.inflight, id)
	}
	s.nextStart = 0
	s.epoch = s.now()
	closed := s.closed
	s.mu.Unlock()

	if !closed {
		_ = s.sink.Reset()
	}
}

// Teardown stops all in-flight sources and releases the output device.
// Safe to call more than once and after errors.
func (s *Scheduler) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, src := range s.inflight {
		src.cancel()
		delete(s.inflight, id)
	}
	s.nextStart = 0
	s.mu.Unlock()

	_ = s.sink.Reset()
	_ = s.sink.Close()
}

// InFlight reports how many scheduled buffers have not finished yet.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}
