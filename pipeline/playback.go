package pipeline

import (
	"errors"
	"sync"
	"time"
)

// ErrDecode is returned by Enqueue for audio chunks that cannot be
// interpreted as 16-bit PCM. Dropped chunks are counted — repeated
// failures indicate a protocol mismatch upstream.
var ErrDecode = errors.New("audio decode failure")

// Clock is the logical output clock, in seconds. The scheduler never reads
// wall time directly so tests can drive scheduling deterministically.
type Clock interface {
	Now() float64
}

type realClock struct {
	epoch time.Time
}

// NewRealClock returns a Clock backed by monotonic wall time, starting at
// zero when created. One output clock exists per session, owned by the
// playback scheduler.
func NewRealClock() Clock {
	return &realClock{epoch: time.Now()}
}

func (c *realClock) Now() float64 {
	return time.Since(c.epoch).Seconds()
}

// PlaybackUnit is one decoded audio buffer with its scheduled start time
// on the output clock.
type PlaybackUnit struct {
	ID         uint64
	PCM        []byte
	SampleRate int
	Channels   int
	Start      float64 // seconds on the output clock
	Duration   float64 // seconds
}

// End returns the time the unit stops producing sound.
func (u PlaybackUnit) End() float64 {
	return u.Start + u.Duration
}

// Sink receives scheduling decisions. PlayAt is called once per enqueued
// unit; StopAll is called on interruption and must silence every unit
// previously handed over.
type Sink interface {
	PlayAt(unit PlaybackUnit)
	StopAll()
}

// Scheduler assigns gapless, non-overlapping start times to incoming audio
// chunks. It maintains a monotonically advancing cursor: each unit starts
// at max(cursor, now) and pushes the cursor forward by its duration, so
// back-to-back chunks are seamless and a stalled stream resumes
// immediately instead of waiting out a stale slot.
type Scheduler struct {
	clock Clock
	sink  Sink

	mu             sync.Mutex
	nextStart      float64
	seq            uint64
	active         []PlaybackUnit
	decodeFailures int
}

// NewScheduler creates a scheduler over the given output clock and sink.
func NewScheduler(clock Clock, sink Sink) *Scheduler {
	return &Scheduler{clock: clock, sink: sink}
}

// Enqueue schedules one decoded PCM chunk for playback and hands it to the
// sink. Empty or odd-length buffers (not whole 16-bit samples) and
// non-positive rates are decode failures: the chunk is dropped and counted.
func (s *Scheduler) Enqueue(pcm []byte, sampleRate, channels int) (PlaybackUnit, error) {
	s.mu.Lock()
	if len(pcm) == 0 || len(pcm)%2 != 0 || sampleRate <= 0 || channels <= 0 {
		s.decodeFailures++
		s.mu.Unlock()
		return PlaybackUnit{}, ErrDecode
	}

	now := s.clock.Now()
	start := s.nextStart
	if now > start {
		start = now
	}

	s.seq++
	unit := PlaybackUnit{
		ID:         s.seq,
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   channels,
		Start:      start,
		Duration:   float64(len(pcm)) / float64(2*channels*sampleRate),
	}
	s.nextStart = unit.End()
	s.pruneLocked(now)
	s.active = append(s.active, unit)
	s.mu.Unlock()

	s.sink.PlayAt(unit)
	return unit, nil
}

// Interrupt hard-stops every playing and pending unit and resets the
// cursor to the current clock time, so the next chunk starts at "now"
// rather than a stale scheduled slot.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	s.active = nil
	s.nextStart = s.clock.Now()
	s.mu.Unlock()

	s.sink.StopAll()
}

// Reset is the teardown variant of Interrupt: it additionally rewinds the
// cursor to zero for the next session on this scheduler.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.active = nil
	s.nextStart = 0
	s.mu.Unlock()

	s.sink.StopAll()
}

// Speaking reports whether any scheduled unit is still producing sound at
// the current clock time.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.clock.Now())
	return len(s.active) > 0
}

// Pending returns the number of units that have not finished yet.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.clock.Now())
	return len(s.active)
}

// NextStart exposes the scheduling cursor.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// DecodeFailures returns how many chunks were dropped as undecodable.
func (s *Scheduler) DecodeFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decodeFailures
}

// pruneLocked drops units whose playback window has passed.
func (s *Scheduler) pruneLocked(now float64) {
	kept := s.active[:0]
	for _, u := range s.active {
		if u.End() > now {
			kept = append(kept, u)
		}
	}
	s.active = kept
}
