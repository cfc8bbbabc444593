package pipeline

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeChannel struct {
	mu     sync.Mutex
	sent   []Payload
	closed int
}

func (f *fakeChannel) SendMedia(mimeType string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, Payload{MIMEType: mimeType, Data: data})
	return nil
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeChannel) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestController(t *testing.T, ch *fakeChannel, sink *recordSink, cfg ControllerConfig) *Controller {
	t.Helper()
	cfg.Channel = ch
	cfg.Clock = &fakeClock{}
	cfg.Sink = sink
	cfg.Constraints = Constraints{SampleRate: 16000, FrameSamples: 4, VisionInterval: time.Millisecond}
	cfg.Logf = t.Logf
	c := NewController(cfg)
	t.Cleanup(c.EndSession)
	return c
}

func TestControllerUplinkFlow(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	c := newTestController(t, ch, &recordSink{}, ControllerConfig{})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	// Audio before the channel opens is buffered, not lost.
	c.IngestAudio(make([]byte, 8))
	c.ChannelOpened()
	waitFor(t, "buffered audio flush", func() bool { return ch.sentCount() == 1 })

	c.IngestAudio(make([]byte, 16)) // two frames
	waitFor(t, "live audio frames", func() bool { return ch.sentCount() == 3 })

	c.IngestVision([]byte{0xff, 0xd8})
	waitFor(t, "vision frame", func() bool { return ch.sentCount() == 4 })

	ch.mu.Lock()
	defer ch.mu.Unlock()
	for i := 0; i < 3; i++ {
		if ch.sent[i].MIMEType != MimePCM16k {
			t.Errorf("payload %d mime = %s", i, ch.sent[i].MIMEType)
		}
	}
	if ch.sent[3].MIMEType != MimeJPEG {
		t.Errorf("vision mime = %s", ch.sent[3].MIMEType)
	}
}

func TestControllerInboundRouting(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		turns  [][]TranscriptEntry
		deltas []string
		barges int
		locked = func(f func()) { mu.Lock(); defer mu.Unlock(); f() }
	)
	sink := &recordSink{}
	ch := &fakeChannel{}
	c := newTestController(t, ch, sink, ControllerConfig{
		OnTranscriptDelta: func(sp Speaker, d string) { locked(func() { deltas = append(deltas, string(sp)+":"+d) }) },
		OnTurn:            func(e []TranscriptEntry) { locked(func() { turns = append(turns, e) }) },
		OnInterrupt:       func() { locked(func() { barges++ }) },
	})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	c.DispatchInbound([]InboundEvent{
		{Kind: EventInputTranscript, Text: "I feel "},
		{Kind: EventInputTranscript, Text: "stuck"},
		{Kind: EventOutputTranscript, Text: "Tell me more"},
		{Kind: EventAudioChunk, Audio: make([]byte, 4800), SampleRate: 24000, Channels: 1},
		{Kind: EventTurnComplete},
	})

	waitFor(t, "turn flush", func() bool { mu.Lock(); defer mu.Unlock(); return len(turns) == 1 })

	mu.Lock()
	if len(turns[0]) != 2 || turns[0][0].Text != "I feel stuck" || turns[0][1].Text != "Tell me more" {
		t.Errorf("turn entries = %+v", turns[0])
	}
	if len(deltas) != 3 {
		t.Errorf("deltas = %v", deltas)
	}
	mu.Unlock()

	sink.mu.Lock()
	if len(sink.played) != 1 {
		t.Fatalf("scheduled %d units", len(sink.played))
	}
	sink.mu.Unlock()

	// Barge-in stops playback and notifies.
	c.DispatchInbound([]InboundEvent{{Kind: EventInterrupted}})
	waitFor(t, "barge-in", func() bool { mu.Lock(); defer mu.Unlock(); return barges == 1 })
	sink.mu.Lock()
	if sink.stopped == 0 {
		t.Error("interrupt did not stop playback")
	}
	sink.mu.Unlock()

	if got := c.History(); len(got) != 2 {
		t.Errorf("history = %+v", got)
	}
}

func TestControllerMalformedChunkDoesNotKillSession(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	c := newTestController(t, ch, &recordSink{}, ControllerConfig{})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}

	c.DispatchInbound([]InboundEvent{
		{Kind: EventAudioChunk, Audio: []byte{1}, SampleRate: 24000, Channels: 1}, // odd length
	})
	waitFor(t, "decode failure count", func() bool { return c.Stats().DecodeFailures == 1 })
	if c.Ended() {
		t.Error("decode failure ended the session")
	}
}

func TestControllerEndSessionIdempotent(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	sink := &recordSink{}
	c := newTestController(t, ch, sink, ControllerConfig{})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	c.ChannelOpened()
	c.DispatchInbound([]InboundEvent{
		{Kind: EventAudioChunk, Audio: make([]byte, 4800), SampleRate: 24000, Channels: 1},
	})

	c.EndSession()
	c.EndSession()

	if ch.closedCount() == 0 {
		t.Error("channel never closed")
	}
	if c.capture.Active() {
		t.Error("capture still holds its intake after EndSession")
	}
	if c.sched.Pending() != 0 || c.sched.NextStart() != 0 {
		t.Error("scheduler not reset")
	}
	// Media after teardown is discarded without panic.
	c.IngestAudio(make([]byte, 64))
	c.DispatchInbound([]InboundEvent{{Kind: EventTurnComplete}})
}

func TestControllerEndSessionWithoutStart(t *testing.T) {
	t.Parallel()

	ch := &fakeChannel{}
	c := NewController(ControllerConfig{Channel: ch, Clock: &fakeClock{}, Sink: &recordSink{}, Logf: t.Logf})

	// Never started: still safe, still closes the channel.
	c.EndSession()
	c.EndSession()
	if ch.closedCount() == 0 {
		t.Error("channel not closed")
	}
	if err := c.Start(); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("Start after end err = %v, want ErrSessionEnded", err)
	}
}

func TestControllerErroredTeardownMatchesNormal(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		fatal error
	)
	ch := &fakeChannel{}
	sink := &recordSink{}
	c := newTestController(t, ch, sink, ControllerConfig{
		OnFatal: func(err error) { mu.Lock(); fatal = err; mu.Unlock() },
	})
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	c.ChannelOpened()

	boom := errors.New("transport lost")
	c.ChannelFailed(boom)

	waitFor(t, "fatal teardown", func() bool { mu.Lock(); defer mu.Unlock(); return fatal != nil })
	waitFor(t, "session ended", c.Ended)

	// Same released resources as a normal close, plus the surfaced error.
	mu.Lock()
	if !errors.Is(fatal, boom) {
		t.Errorf("fatal = %v, want %v", fatal, boom)
	}
	mu.Unlock()
	if c.capture.Active() {
		t.Error("capture leaked after errored teardown")
	}
	if ch.closedCount() == 0 {
		t.Error("channel leaked after errored teardown")
	}
	if c.sched.Pending() != 0 || c.sched.NextStart() != 0 {
		t.Error("playback not reset after errored teardown")
	}
}
