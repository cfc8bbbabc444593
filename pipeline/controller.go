package pipeline

import (
	"errors"
	"log"
	"sync"
)

// ErrSessionEnded is returned by dispatch methods after EndSession.
var ErrSessionEnded = errors.New("session ended")

// Channel is the duplex connection the controller exclusively owns. Close
// must be idempotent and safe when the channel never opened.
type Channel interface {
	SendMedia(mimeType string, data []byte) error
	Close() error
}

// ControllerConfig wires a pipeline together.
type ControllerConfig struct {
	Channel     Channel
	Clock       Clock // output clock; nil means a fresh real clock
	Sink        Sink
	Constraints Constraints

	// MaxQueuedAudioFrames bounds the uplink backlog while the channel is
	// connecting. Zero selects the default.
	MaxQueuedAudioFrames int

	// OnTranscriptDelta observes partial transcriptions as they stream in.
	OnTranscriptDelta func(speaker Speaker, delta string)
	// OnTurn observes the finalized entries committed by a completed turn.
	OnTurn func(entries []TranscriptEntry)
	// OnInterrupt observes server-signaled barge-in, after playback is
	// already stopped.
	OnInterrupt func()
	// OnFatal observes channel-level failures. Teardown has already run
	// when it is invoked.
	OnFatal func(err error)

	// Logf replaces log.Printf, mainly for tests.
	Logf func(format string, v ...any)
}

// event is one tagged item on the controller's single-consumer queue.
// Three producers feed it: the capture callbacks, the vision intake, and
// the channel's inbound dispatch. Within each source, FIFO order holds.
type event struct {
	audio   *AudioFrame
	vision  *VisionFrame
	inbound *InboundEvent
	opened  bool
	fatal   error
}

// Controller drives one live session pipeline: capture frames flow up
// through the uplink to the channel, inbound events flow down to the
// playback scheduler and transcript aggregator. All routing happens on a
// single consumer goroutine, so handlers never race each other.
type Controller struct {
	cfg     ControllerConfig
	capture *Capture
	uplink  *Uplink
	sched   *Scheduler
	trans   *TranscriptAggregator

	events   chan event
	done     chan struct{}
	loopDone chan struct{}

	mu        sync.Mutex
	started   bool
	ended     bool
	malformed int
	logf      func(format string, v ...any)
}

// NewController assembles the pipeline stages. The controller owns the
// capture stage, uplink, scheduler and aggregator; the caller keeps
// ownership of nothing but the config callbacks.
func NewController(cfg ControllerConfig) *Controller {
	clock := cfg.Clock
	if clock == nil {
		clock = NewRealClock()
	}
	logf := cfg.Logf
	if logf == nil {
		logf = log.Printf
	}

	c := &Controller{
		cfg:      cfg,
		uplink:   NewUplink(cfg.Channel, cfg.MaxQueuedAudioFrames),
		sched:    NewScheduler(clock, cfg.Sink),
		trans:    NewTranscriptAggregator(),
		events:   make(chan event, 256),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		logf:     logf,
	}
	c.capture = NewCapture(
		func(f AudioFrame) { c.post(event{audio: &f}) },
		func(f VisionFrame) { c.post(event{vision: &f}) },
	)
	return c
}

// Start arms capture and launches the routing loop. It does not open the
// channel — the owner opens it and reports readiness via ChannelOpened.
func (c *Controller) Start() error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return ErrSessionEnded
	}
	if c.started {
		c.mu.Unlock()
		return ErrCaptureActive
	}
	c.started = true
	c.mu.Unlock()

	cons := c.cfg.Constraints
	if cons.SampleRate == 0 {
		cons = DefaultConstraints()
	}
	if err := c.capture.Start(cons); err != nil {
		return err
	}
	go c.loop()
	return nil
}

// IngestAudio accepts raw mic PCM from the client.
func (c *Controller) IngestAudio(pcm []byte) {
	c.capture.IngestAudio(pcm)
}

// IngestVision accepts one camera JPEG from the client.
func (c *Controller) IngestVision(jpeg []byte) {
	c.capture.IngestVision(jpeg)
}

// ChannelOpened reports that the duplex channel finished its handshake.
func (c *Controller) ChannelOpened() {
	c.post(event{opened: true})
}

// ChannelFailed reports a transport-level failure. The pipeline tears down
// and OnFatal fires.
func (c *Controller) ChannelFailed(err error) {
	c.post(event{fatal: err})
}

// DispatchInbound routes decoded downlink events in receipt order.
func (c *Controller) DispatchInbound(events []InboundEvent) {
	for i := range events {
		c.post(event{inbound: &events[i]})
	}
}

// History returns the finalized transcript so far.
func (c *Controller) History() []TranscriptEntry {
	return c.trans.History()
}

// Speaking reports whether scheduled assistant audio is still playing.
func (c *Controller) Speaking() bool {
	return c.sched.Speaking()
}

// Stats is a point-in-time snapshot of pipeline drop/failure counters.
type Stats struct {
	DroppedAudioFrames  int
	DroppedVisionFrames int
	DecodeFailures      int
	MalformedEvents     int
	SendFailures        int
}

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	malformed := c.malformed
	c.mu.Unlock()
	return Stats{
		DroppedAudioFrames:  c.uplink.DroppedAudio(),
		DroppedVisionFrames: c.uplink.DroppedVision(),
		DecodeFailures:      c.sched.DecodeFailures(),
		MalformedEvents:     malformed,
		SendFailures:        c.uplink.SendFailures(),
	}
}

// NoteMalformed counts an inbound message that matched no known shape.
func (c *Controller) NoteMalformed() {
	c.mu.Lock()
	c.malformed++
	c.mu.Unlock()
}

// EndSession tears the whole pipeline down: capture released, uplink
// backlog discarded, every playback unit stopped, scheduling clock reset,
// channel closed. Idempotent and total — callable from any state,
// including before Start and after a failure, and it never leaves a
// device handle or pending unit behind.
func (c *Controller) EndSession() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	wasStarted := c.started
	c.mu.Unlock()

	close(c.done)
	if wasStarted {
		<-c.loopDone
	}

	c.capture.Stop()
	c.uplink.SetReady(false)
	c.sched.Reset()
	if err := c.cfg.Channel.Close(); err != nil {
		c.logf("pipeline: channel close: %v", err)
	}
}

// Ended reports whether EndSession has run.
func (c *Controller) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

// post enqueues an event without ever blocking the producer. A full queue
// means the consumer stalled badly; dropping is the lesser evil for
// periodic media.
func (c *Controller) post(ev event) {
	select {
	case <-c.done:
	case c.events <- ev:
	default:
		c.logf("pipeline: event queue full, dropping %v", ev)
	}
}

// loop is the single consumer. Events are processed strictly in arrival
// order; no fixed interleaving across sources is assumed.
func (c *Controller) loop() {
	defer close(c.loopDone)
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			switch {
			case ev.opened:
				c.uplink.SetReady(true)
			case ev.audio != nil:
				c.uplink.PushAudio(*ev.audio)
			case ev.vision != nil:
				c.uplink.PushVision(*ev.vision)
			case ev.inbound != nil:
				c.handleInbound(*ev.inbound)
			case ev.fatal != nil:
				c.fail(ev.fatal)
				return
			}
		}
	}
}

func (c *Controller) handleInbound(ev InboundEvent) {
	switch ev.Kind {
	case EventInputTranscript:
		c.trans.AppendInputDelta(ev.Text)
		if c.cfg.OnTranscriptDelta != nil {
			c.cfg.OnTranscriptDelta(SpeakerUser, ev.Text)
		}
	case EventOutputTranscript:
		c.trans.AppendOutputDelta(ev.Text)
		if c.cfg.OnTranscriptDelta != nil {
			c.cfg.OnTranscriptDelta(SpeakerAssistant, ev.Text)
		}
	case EventAudioChunk:
		if _, err := c.sched.Enqueue(ev.Audio, ev.SampleRate, ev.Channels); err != nil {
			c.logf("pipeline: dropped undecodable chunk (%d bytes, %d failures total)",
				len(ev.Audio), c.sched.DecodeFailures())
		}
	case EventTurnComplete:
		entries := c.trans.FlushTurn()
		if c.cfg.OnTurn != nil && len(entries) > 0 {
			c.cfg.OnTurn(entries)
		}
	case EventInterrupted:
		// Barge-in: a normal condition, not an error.
		c.sched.Interrupt()
		if c.cfg.OnInterrupt != nil {
			c.cfg.OnInterrupt()
		}
	case EventError:
		c.fail(ev.Err)
	default:
		c.NoteMalformed()
		c.logf("pipeline: ignoring unroutable event kind %v", ev.Kind)
	}
}

// fail runs full teardown for a fatal error, then reports it.
func (c *Controller) fail(err error) {
	c.logf("pipeline: fatal: %v", err)
	go func() {
		c.EndSession()
		if c.cfg.OnFatal != nil {
			c.cfg.OnFatal(err)
		}
	}()
}
