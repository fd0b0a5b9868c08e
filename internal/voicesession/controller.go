// Package voicesession ties the capture pipeline, playback scheduler,
// transport, and tool-call bridge into one controllable session.
package voicesession

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"todovoice/internal/audio"
	"todovoice/internal/bridge"
	"todovoice/internal/observability"
	"todovoice/internal/protocol"
	"todovoice/internal/todo"
	"todovoice/internal/transport"
)

// Transport is the subset of the realtime transport the controller drives.
type Transport interface {
	Open(ctx context.Context, token, sessionID string) error
	Send(frame any)
	Close()
	State() transport.State
}

// CapturePipeline is the microphone side of the session.
type CapturePipeline interface {
	Start() error
	Stop()
	Volume() float64
}

// PlaybackPipeline is the speaker side of the session.
type PlaybackPipeline interface {
	Enqueue(wire string) error
	Interrupt()
	Teardown()
	InFlight() int
}

type (
	TransportFactory func(h transport.Handler) Transport
	CaptureFactory   func(forward func(wire string), onError func(error)) CapturePipeline
	PlaybackFactory  func(onError func(error)) (PlaybackPipeline, error)
)

type Config struct {
	CaptureSampleRate  int
	PlaybackSampleRate int
	ActionTimeout      time.Duration
	// DumpDir, when set, receives one WAV per direction per session for
	// debugging.
	DumpDir string
}

// Controller owns at most one active realtime session. Stop is idempotent
// and safe from every exit path: user toggle, socket close, socket error,
// process teardown.
type Controller struct {
	cfg     Config
	crud    bridge.CRUD
	creds   todo.CredentialStore
	mirror  *todo.Mirror
	bridge  *bridge.Bridge
	metrics *observability.Metrics

	newTransport TransportFactory
	newCapture   CaptureFactory
	newPlayback  PlaybackFactory

	// onTasksChanged is the UI refresh callback, invoked after every
	// assistant-driven mutation with the fresh mirror snapshot.
	onTasksChanged func([]todo.Task)

	mu        sync.Mutex
	active    bool
	starting  bool
	sessionID string
	tr        Transport
	capture   CapturePipeline
	playback  PlaybackPipeline
	micDump   *audio.Dump
	outDump   *audio.Dump

	seq atomic.Int64
}

func New(
	cfg Config,
	crud bridge.CRUD,
	creds todo.CredentialStore,
	metrics *observability.Metrics,
	newTransport TransportFactory,
	newCapture CaptureFactory,
	newPlayback PlaybackFactory,
	onTasksChanged func([]todo.Task),
) *Controller {
	if cfg.CaptureSampleRate <= 0 {
		cfg.CaptureSampleRate = 16000
	}
	if cfg.PlaybackSampleRate <= 0 {
		cfg.PlaybackSampleRate = 24000
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = 10 * time.Second
	}
	mirror := todo.NewMirror()
	return &Controller{
		cfg:            cfg,
		crud:           crud,
		creds:          creds,
		mirror:         mirror,
		bridge:         bridge.New(crud, mirror),
		metrics:        metrics,
		newTransport:   newTransport,
		newCapture:     newCapture,
		newPlayback:    newPlayback,
		onTasksChanged: onTasksChanged,
	}
}

// Mirror exposes the session task mirror; the controller is its single
// writer.
func (c *Controller) Mirror() *todo.Mirror { return c.mirror }

// Start refreshes the mirror, opens the transport, and starts capture.
// Starting an already-active session is a no-op. The mutex guards only the
// field swap; network and device setup run outside it so Active, Status,
// and Volume stay responsive during a slow dial.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.active || c.starting {
		c.mu.Unlock()
		return nil
	}
	c.starting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.starting = false
		c.mu.Unlock()
	}()

	token, err := c.creds.Token()
	if err != nil {
		return err
	}

	if _, err := c.refresh(ctx); err != nil {
		return err
	}

	playback, err := c.newPlayback(func(err error) {
		log.Printf("voice: playback error: %v", err)
	})
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	var micDump, outDump *audio.Dump
	if c.cfg.DumpDir != "" {
		micDump = audio.NewDump(filepath.Join(c.cfg.DumpDir, "mic_"+sessionID+".wav"), c.cfg.CaptureSampleRate)
		outDump = audio.NewDump(filepath.Join(c.cfg.DumpDir, "assistant_"+sessionID+".wav"), c.cfg.PlaybackSampleRate)
	}

	tr := c.newTransport(c)
	if err := tr.Open(ctx, token, sessionID); err != nil {
		playback.Teardown()
		closeDump(micDump, "mic")
		closeDump(outDump, "assistant")
		return err
	}

	capture := c.newCapture(c.forwardChunk, func(err error) {
		log.Printf("voice: capture error: %v", err)
		go c.Stop()
	})
	if err := capture.Start(); err != nil {
		tr.Close()
		playback.Teardown()
		closeDump(micDump, "mic")
		closeDump(outDump, "assistant")
		return err
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.tr = tr
	c.capture = capture
	c.playback = playback
	c.micDump = micDump
	c.outDump = outDump
	c.active = true
	c.seq.Store(0)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ActiveSessions.Set(1)
	}

	c.sendVia(tr, c.todosUpdateFrame(), string(protocol.TypeTodosUpdate))

	// A disconnect that raced the field swap found Stop a no-op; catch it.
	if tr.State() != transport.StateActive {
		c.Stop()
	}
	return nil
}

// Stop releases the microphone, the playback graph, and the socket. Safe to
// call repeatedly and from error callbacks.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	capture := c.capture
	playback := c.playback
	tr := c.tr
	mic, out := c.micDump, c.outDump
	c.capture = nil
	c.playback = nil
	c.tr = nil
	c.micDump, c.outDump = nil, nil
	c.sessionID = ""
	c.mu.Unlock()

	capture.Stop()
	playback.Teardown()
	tr.Close()
	closeDump(mic, "mic")
	closeDump(out, "assistant")

	if c.metrics != nil {
		c.metrics.ActiveSessions.Set(0)
		c.metrics.ScheduledBuffers.Set(0)
	}
}

func closeDump(d *audio.Dump, label string) {
	if err := d.Close(); err != nil {
		log.Printf("voice: write %s dump: %v", label, err)
	}
}

// Active reports whether a session currently holds the transport.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Volume reports the current microphone RMS level for UI metering.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	capture := c.capture
	c.mu.Unlock()
	if capture == nil {
		return 0
	}
	return capture.Volume()
}

// Status is a point-in-time snapshot for the local status endpoint.
type Status struct {
	Active         bool    `json:"active"`
	SessionID      string  `json:"session_id,omitempty"`
	TransportState string  `json:"transport_state"`
	InFlight       int     `json:"in_flight_buffers"`
	Volume         float64 `json:"mic_volume"`
	MirroredTasks  int     `json:"mirrored_tasks"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		Active:        c.active,
		SessionID:     c.sessionID,
		MirroredTasks: c.mirror.Len(),
	}
	tr := c.tr
	capture := c.capture
	playback := c.playback
	c.mu.Unlock()

	st.TransportState = string(transport.StateDisconnected)
	if tr != nil {
		st.TransportState = string(tr.State())
	}
	if capture != nil {
		st.Volume = capture.Volume()
	}
	if playback != nil {
		st.InFlight = playback.InFlight()
	}
	return st
}

// refresh pulls the task list and replaces the mirror. Caller holds c.mu or
// is the only writer.
func (c *Controller) refresh(ctx context.Context) ([]todo.Task, error) {
	tasks, err := c.crud.Todos(ctx)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CRUDErrors.Inc()
		}
		return nil, err
	}
	c.mirror.Replace(tasks)
	return tasks, nil
}

func (c *Controller) todosUpdateFrame() protocol.TodosUpdate {
	tasks := c.mirror.Snapshot()
	summaries := make([]protocol.TaskSummary, len(tasks))
	for i, t := range tasks {
		summaries[i] = protocol.TaskSummary{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
			Priority:    string(t.Priority),
			DueAt:       t.DueAt.Format(time.RFC3339),
		}
	}
	return protocol.TodosUpdate{Type: protocol.TypeTodosUpdate, Todos: summaries}
}

// NotifyTasksChanged pushes a fresh todos_update after a local (non-voice)
// mutation, keeping the assistant's view in sync.
func (c *Controller) NotifyTasksChanged(ctx context.Context) {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if !active {
		return
	}
	if _, err := c.refresh(ctx); err != nil {
		log.Printf("voice: refresh after local change: %v", err)
		return
	}
	c.send(c.todosUpdateFrame(), string(protocol.TypeTodosUpdate))
}

// forwardChunk runs on the capture cadence; it must never block.
func (c *Controller) forwardChunk(wire string) {
	seq := c.seq.Add(1)
	frame := protocol.Audio{
		Type:        protocol.TypeAudio,
		Seq:         int(seq),
		PCM16Base64: wire,
		SampleRate:  c.cfg.CaptureSampleRate,
	}
	c.send(frame, string(protocol.TypeAudio))

	c.mu.Lock()
	dump := c.micDump
	c.mu.Unlock()
	if dump != nil {
		if buf, err := audio.DecodePCM16(wire, c.cfg.CaptureSampleRate, 1); err == nil {
			dump.Append(buf.Samples)
		}
	}
}

func (c *Controller) send(frame any, typ string) {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	c.sendVia(tr, frame, typ)
}

func (c *Controller) sendVia(tr Transport, frame any, typ string) {
	if tr == nil || tr.State() != transport.StateActive {
		if c.metrics != nil {
			c.metrics.DroppedFrames.Inc()
		}
		return
	}
	tr.Send(frame)
	if c.metrics != nil {
		c.metrics.Frames.WithLabelValues("out", typ).Inc()
	}
}

// HandleMessage dispatches one inbound frame from the transport read loop.
func (c *Controller) HandleMessage(msg any) {
	switch m := msg.(type) {
	case protocol.Audio:
		c.countIn(protocol.TypeAudio)
		c.mu.Lock()
		playback := c.playback
		outDump := c.outDump
		c.mu.Unlock()
		if playback == nil {
			return
		}
		if err := playback.Enqueue(m.PCM16Base64); err != nil {
			log.Printf("voice: drop undecodable audio frame: %v", err)
			return
		}
		if c.metrics != nil {
			c.metrics.ScheduledBuffers.Set(float64(playback.InFlight()))
		}
		if outDump != nil {
			if buf, err := audio.DecodePCM16(m.PCM16Base64, c.cfg.PlaybackSampleRate, 1); err == nil {
				outDump.Append(buf.Samples)
			}
		}
	case protocol.Interrupted:
		c.countIn(protocol.TypeInterrupted)
		c.mu.Lock()
		playback := c.playback
		c.mu.Unlock()
		if playback != nil {
			playback.Interrupt()
		}
		if c.metrics != nil {
			c.metrics.ScheduledBuffers.Set(0)
		}
	case protocol.Action:
		c.countIn(protocol.TypeAction)
		c.handleAction(m)
	case protocol.ErrorEvent:
		c.countIn(protocol.TypeError)
		log.Printf("voice: assistant error %s: %s", m.Code, m.Detail)
	case protocol.Connected:
		// Handshake acknowledgment, already consumed by Open.
	}
}

func (c *Controller) countIn(typ protocol.MessageType) {
	if c.metrics != nil {
		c.metrics.Frames.WithLabelValues("in", string(typ)).Inc()
	}
}

func (c *Controller) handleAction(m protocol.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ActionTimeout)
	defer cancel()

	res := c.bridge.Execute(ctx, bridge.Request{
		Name:        m.Name,
		Title:       m.Title,
		Description: m.Description,
		Priority:    m.Priority,
		DueAt:       m.DueAt,
		Search:      m.Search,
	})
	if c.metrics != nil {
		c.metrics.ActionResults.WithLabelValues(m.Name, res.Status).Inc()
	}

	c.send(protocol.ActionResult{
		Type:     protocol.TypeActionResult,
		ActionID: m.ID,
		Status:   res.Status,
		Message:  res.Message,
	}, string(protocol.TypeActionResult))

	// Mutations change the server copy; resync the mirror and tell both the
	// assistant and the UI.
	tasks, err := c.refresh(ctx)
	if err != nil {
		log.Printf("voice: refresh after action: %v", err)
		return
	}
	c.send(c.todosUpdateFrame(), string(protocol.TypeTodosUpdate))
	if c.onTasksChanged != nil {
		c.onTasksChanged(tasks)
	}
}

// HandleDisconnect runs when the socket closes or errors unexpectedly. The
// voice feature degrades silently to inactive.
func (c *Controller) HandleDisconnect(err error) {
	log.Printf("voice: session disconnected: %v", err)
	c.Stop()
}
