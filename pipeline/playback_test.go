package pipeline

import (
	"math"
	"sync"
	"testing"
)

// fakeClock is a hand-driven output clock.
type fakeClock struct {
	mu  sync.Mutex
	now float64
}

func (c *fakeClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d float64) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// recordSink records scheduling decisions.
type recordSink struct {
	mu      sync.Mutex
	played  []PlaybackUnit
	stopped int
}

func (s *recordSink) PlayAt(u PlaybackUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, u)
}

func (s *recordSink) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

// pcm returns a buffer lasting the given number of seconds at 24kHz mono.
func pcm(seconds float64) []byte {
	return make([]byte, int(seconds*24000)*2)
}

func TestSchedulerGaplessBackToBack(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := &recordSink{}
	s := NewScheduler(clock, sink)

	// Three 0.5s chunks arriving back-to-back: boundaries at 0, 0.5, 1.0.
	for i := 0; i < 3; i++ {
		if _, err := s.Enqueue(pcm(0.5), 24000, 1); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	want := []float64{0, 0.5, 1.0}
	if len(sink.played) != 3 {
		t.Fatalf("expected 3 scheduled units, got %d", len(sink.played))
	}
	for i, u := range sink.played {
		if math.Abs(u.Start-want[i]) > 1e-9 {
			t.Errorf("unit %d start = %v, want %v", i, u.Start, want[i])
		}
		if math.Abs(u.Duration-0.5) > 1e-9 {
			t.Errorf("unit %d duration = %v, want 0.5", i, u.Duration)
		}
	}
	if got := s.NextStart(); math.Abs(got-1.5) > 1e-9 {
		t.Errorf("total scheduled span = %v, want 1.5", got)
	}
}

func TestSchedulerNoOverlapNonDecreasing(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := &recordSink{}
	s := NewScheduler(clock, sink)

	durations := []float64{0.25, 0.1, 0.7, 0.05, 0.3}
	for i, d := range durations {
		s.Enqueue(pcm(d), 24000, 1)
		// Interleave arbitrary clock movement between arrivals.
		if i%2 == 0 {
			clock.advance(d / 3)
		}
	}

	prevEnd := -1.0
	prevStart := -1.0
	for i, u := range sink.played {
		if u.Start < prevStart {
			t.Errorf("unit %d start %v decreased below %v", i, u.Start, prevStart)
		}
		if u.Start < prevEnd-1e-9 {
			t.Errorf("unit %d [%v, %v) overlaps previous end %v", i, u.Start, u.End(), prevEnd)
		}
		prevStart = u.Start
		prevEnd = u.End()
	}
}

func TestSchedulerFallenBehindStartsNow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := &recordSink{}
	s := NewScheduler(clock, sink)

	s.Enqueue(pcm(0.5), 24000, 1)
	// Stall: the stream falls 2s behind the cursor.
	clock.advance(2.5)

	u, err := s.Enqueue(pcm(0.5), 24000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(u.Start-2.5) > 1e-9 {
		t.Errorf("stalled unit start = %v, want now (2.5)", u.Start)
	}
}

func TestSchedulerInterruptResetsToNow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := &recordSink{}
	s := NewScheduler(clock, sink)

	s.Enqueue(pcm(0.5), 24000, 1)
	s.Enqueue(pcm(0.5), 24000, 1)
	if !s.Speaking() {
		t.Fatal("expected speaking while units are scheduled")
	}

	// Barge-in before the second chunk finishes.
	clock.advance(0.3)
	s.Interrupt()

	if sink.stopped != 1 {
		t.Fatalf("expected one StopAll, got %d", sink.stopped)
	}
	if s.Pending() != 0 {
		t.Errorf("expected empty pending set, got %d", s.Pending())
	}
	if s.Speaking() {
		t.Error("expected not speaking after interrupt")
	}

	// Next chunk starts at "now", not at the stale 1.0s mark.
	u, err := s.Enqueue(pcm(0.5), 24000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(u.Start-0.3) > 1e-9 {
		t.Errorf("post-interrupt start = %v, want 0.3", u.Start)
	}
}

func TestSchedulerSpeakingClearsWhenUnitsFinish(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	s := NewScheduler(clock, &recordSink{})

	s.Enqueue(pcm(0.5), 24000, 1)
	if !s.Speaking() {
		t.Fatal("expected speaking during playback window")
	}
	clock.advance(0.5)
	if s.Speaking() {
		t.Error("expected silence after the last unit finished")
	}
}

func TestSchedulerDecodeFailures(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := &recordSink{}
	s := NewScheduler(clock, sink)

	cases := []struct {
		name     string
		pcm      []byte
		rate     int
		channels int
	}{
		{"empty", nil, 24000, 1},
		{"odd length", make([]byte, 3), 24000, 1},
		{"zero rate", make([]byte, 4), 0, 1},
		{"zero channels", make([]byte, 4), 24000, 0},
	}
	for _, tc := range cases {
		if _, err := s.Enqueue(tc.pcm, tc.rate, tc.channels); err != ErrDecode {
			t.Errorf("%s: err = %v, want ErrDecode", tc.name, err)
		}
	}
	if got := s.DecodeFailures(); got != len(cases) {
		t.Errorf("decode failures = %d, want %d", got, len(cases))
	}
	if len(sink.played) != 0 {
		t.Errorf("undecodable chunks must not reach the sink, got %d", len(sink.played))
	}
	// A bad chunk must not advance the cursor.
	if s.NextStart() != 0 {
		t.Errorf("cursor moved to %v on decode failure", s.NextStart())
	}
}

func TestSchedulerResetRewindsCursor(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sink := &recordSink{}
	s := NewScheduler(clock, sink)

	s.Enqueue(pcm(1.0), 24000, 1)
	clock.advance(0.4)
	s.Reset()

	if s.NextStart() != 0 {
		t.Errorf("cursor = %v after reset, want 0", s.NextStart())
	}
	if s.Pending() != 0 || sink.stopped != 1 {
		t.Errorf("reset must stop and clear everything (pending=%d stops=%d)", s.Pending(), sink.stopped)
	}
}
