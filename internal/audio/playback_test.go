package audio

import (
	"sync"
	"testing"
	"time"
)

type fakeSink struct {
	mu     sync.Mutex
	writes []*Buffer
	resets int
	closes int
	wrote  chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{wrote: make(chan struct{}, 64)}
}

func (f *fakeSink) Write(buf *Buffer) error {
	f.mu.Lock()
	f.writes = append(f.writes, buf)
	f.mu.Unlock()
	f.wrote <- struct{}{}
	return nil
}

func (f *fakeSink) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSink) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func encodeChunk(t *testing.T, n int, level float32) string {
	t.Helper()
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = level
	}
	wire, err := EncodePCM16(samples)
	if err != nil {
		t.Fatalf("EncodePCM16() error = %v", err)
	}
	return wire
}

func TestSchedulerStartTimesNeverOverlap(t *testing.T) {
	sink := newFakeSink()
	s := NewScheduler(sink, 24000, 1, nil)

	// Freeze the play-head so scheduling math is deterministic.
	epoch := time.Now()
	s.now = func() time.Time { return epoch }
	s.epoch = epoch

	const chunkSamples = 2400 // 100ms at 24kHz
	var prevStart, prevEnd time.Duration
	for i := 0; i < 5; i++ {
		s.mu.Lock()
		before := s.nextStart
		s.mu.Unlock()

		if err := s.Enqueue(encodeChunk(t, chunkSamples, 0.1)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}

		start := before // playhead frozen at 0, so start = max(before, 0) = before
		s.mu.Lock()
		after := s.nextStart
		s.mu.Unlock()

		if start < prevStart {
			t.Fatalf("chunk %d start %v < previous start %v", i, start, prevStart)
		}
		if start < prevEnd {
			t.Fatalf("chunk %d start %v overlaps previous end %v", i, start, prevEnd)
		}
		if after <= start {
			t.Fatalf("chunk %d nextStart %v did not advance past start %v", i, after, start)
		}
		prevStart, prevEnd = start, after
	}

	s.Teardown()
}

func TestSchedulerPlaysInArrivalOrder(t *testing.T) {
	sink := newFakeSink()
	s := NewScheduler(sink, 24000, 1, nil)

	// Tiny chunks keep the gapless delays short enough to wait out.
	const chunkSamples = 240 // 10ms
	levels := []float32{0.1, 0.2, 0.3}
	for i, level := range levels {
		if err := s.Enqueue(encodeChunk(t, chunkSamples, level)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	deadline := time.After(2 * time.Second)
	for sink.writeCount() < len(levels) {
		select {
		case <-sink.wrote:
		case <-deadline:
			t.Fatalf("timed out waiting for %d writes, got %d", len(levels), sink.writeCount())
		}
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, level := range levels {
		got := sink.writes[i].Samples[0]
		want := float32(int16(level*32767)) / 32768
		if got != want {
			t.Fatalf("write %d first sample = %v, want %v (arrival order broken)", i, got, want)
		}
	}

	if got := s.InFlight(); got != 0 {
		t.Fatalf("InFlight() after completion = %d, want 0", got)
	}
}

func TestSchedulerInterruptEmptiesInFlightAndResetsClock(t *testing.T) {
	sink := newFakeSink()
	s := NewScheduler(sink, 24000, 1, nil)

	epoch := time.Now()
	s.now = func() time.Time { return epoch }
	s.epoch = epoch

	// Long chunks so later sources stay pending on their timers.
	const chunkSamples = 24000 // 1s
	for i := 0; i < 4; i++ {
		if err := s.Enqueue(encodeChunk(t, chunkSamples, 0.1)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	s.Interrupt()

	if got := s.InFlight(); got != 0 {
		t.Fatalf("InFlight() after Interrupt = %d, want 0", got)
	}
	s.mu.Lock()
	next := s.nextStart
	s.mu.Unlock()
	if next != 0 {
		t.Fatalf("nextStart after Interrupt = %v, want 0", next)
	}

	sink.mu.Lock()
	resets := sink.resets
	sink.mu.Unlock()
	if resets == 0 {
		t.Fatalf("sink was never reset on Interrupt")
	}

	// Interrupting an empty scheduler is also fine.
	s.Interrupt()
	if got := s.InFlight(); got != 0 {
		t.Fatalf("InFlight() after second Interrupt = %d, want 0", got)
	}
}

// stallingSink blocks every Write until released, emulating a device that
// accepts audio slowly.
type stallingSink struct {
	mu      sync.Mutex
	samples int
	resets  int
	entered chan struct{}
	release chan struct{}
}

func newStallingSink() *stallingSink {
	return &stallingSink{
		entered: make(chan struct{}, 64),
		release: make(chan struct{}),
	}
}

func (f *stallingSink) Write(buf *Buffer) error {
	f.entered <- struct{}{}
	<-f.release
	f.mu.Lock()
	f.samples += len(buf.Samples)
	f.mu.Unlock()
	return nil
}

func (f *stallingSink) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	return nil
}

func (f *stallingSink) Close() error { return nil }

func TestInterruptCutsOffInProgressBuffer(t *testing.T) {
	sink := newStallingSink()
	s := NewScheduler(sink, 24000, 1, nil)
	defer s.Teardown()

	const total = 24000 // 1s
	if err := s.Enqueue(encodeChunk(t, total, 0.1)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Wait for the writer to be mid-buffer, then barge in.
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("sink never received the first slice")
	}

	s.Interrupt()
	close(sink.release)

	if got := s.InFlight(); got != 0 {
		t.Fatalf("InFlight() after Interrupt = %d, want 0", got)
	}

	// The stalled slice completes, but no further slice may follow.
	select {
	case <-sink.entered:
		t.Fatalf("sink received another slice after Interrupt")
	case <-time.After(200 * time.Millisecond):
	}

	sink.mu.Lock()
	got := sink.samples
	sink.mu.Unlock()
	if got >= total {
		t.Fatalf("sink received all %d samples of an interrupted buffer", got)
	}
}

func TestSchedulerTeardownIdempotent(t *testing.T) {
	sink := newFakeSink()
	s := NewScheduler(sink, 24000, 1, nil)

	if err := s.Enqueue(encodeChunk(t, 24000, 0.1)); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	s.Teardown()
	s.Teardown()

	sink.mu.Lock()
	closes := sink.closes
	sink.mu.Unlock()
	if closes != 1 {
		t.Fatalf("sink closed %d times, want 1", closes)
	}

	// Enqueue after teardown is a silent no-op.
	if err := s.Enqueue(encodeChunk(t, 240, 0.1)); err != nil {
		t.Fatalf("Enqueue() after Teardown error = %v", err)
	}
	if got := s.InFlight(); got != 0 {
		t.Fatalf("InFlight() after post-teardown enqueue = %d, want 0", got)
	}
}

func TestSchedulerRejectsMalformedChunk(t *testing.T) {
	s := NewScheduler(newFakeSink(), 24000, 1, nil)
	defer s.Teardown()

	if err := s.Enqueue("!!!"); err == nil {
		t.Fatalf("expected decode error for malformed chunk")
	}
}
