package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Capture acquisition failures. These are fatal to starting a session and
// surfaced to the user; there is no automatic retry.
var (
	ErrPermissionDenied  = errors.New("capture permission denied")
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrCaptureActive     = errors.New("capture already started")
)

// AcquireError maps a client-reported acquisition failure reason onto the
// capture error taxonomy.
func AcquireError(reason string) error {
	switch reason {
	case "permission_denied":
		return ErrPermissionDenied
	case "device_unavailable":
		return ErrDeviceUnavailable
	default:
		return fmt.Errorf("capture acquisition failed: %s", reason)
	}
}

// Constraints fixes the capture format for a session.
type Constraints struct {
	SampleRate     int           // input PCM rate, Hz
	FrameSamples   int           // samples per emitted audio frame
	VisionInterval time.Duration // minimum spacing between vision frames
}

// DefaultConstraints matches the session defaults: 16 kHz mono input,
// 4096-sample frames (256 ms), one vision frame per second.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:     16000,
		FrameSamples:   4096,
		VisionInterval: time.Second,
	}
}

// AudioFrame is one fixed-length buffer of signed 16-bit mono samples.
type AudioFrame struct {
	PCM        []byte
	SampleRate int
}

// VisionFrame is one downscaled JPEG snapshot of the camera feed.
type VisionFrame struct {
	JPEG []byte
}

// Capture owns media intake for a session. The client delivers a raw PCM
// byte stream and JPEG snapshots; Capture reassembles the audio into
// fixed-size frames and throttles vision to the configured cadence. Media
// ingested while stopped is discarded.
type Capture struct {
	onAudio  func(AudioFrame)
	onVision func(VisionFrame)
	now      func() time.Time

	mu         sync.Mutex
	started    bool
	cons       Constraints
	pending    []byte
	lastVision time.Time
}

// NewCapture creates a capture stage delivering frames to the given
// callbacks. Callbacks are invoked outside the capture lock, in intake
// order.
func NewCapture(onAudio func(AudioFrame), onVision func(VisionFrame)) *Capture {
	return &Capture{onAudio: onAudio, onVision: onVision, now: time.Now}
}

// Start arms intake with the given constraints. Starting twice without an
// intervening Stop is an error.
func (c *Capture) Start(cons Constraints) error {
	if cons.SampleRate <= 0 || cons.FrameSamples <= 0 || cons.VisionInterval <= 0 {
		return fmt.Errorf("invalid capture constraints: %+v", cons)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrCaptureActive
	}
	c.started = true
	c.cons = cons
	c.pending = nil
	c.lastVision = time.Time{}
	return nil
}

// Stop releases intake and discards any partial frame. Idempotent: safe
// when never started or called repeatedly.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.pending = nil
	c.lastVision = time.Time{}
}

// Active reports whether intake is armed.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// IngestAudio appends raw PCM bytes to the partial frame and emits every
// completed fixed-size frame in order.
func (c *Capture) IngestAudio(pcm []byte) {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, pcm...)

	frameBytes := c.cons.FrameSamples * 2
	rate := c.cons.SampleRate
	var frames []AudioFrame
	for len(c.pending) >= frameBytes {
		frame := make([]byte, frameBytes)
		copy(frame, c.pending[:frameBytes])
		c.pending = c.pending[frameBytes:]
		frames = append(frames, AudioFrame{PCM: frame, SampleRate: rate})
	}
	c.mu.Unlock()

	for _, f := range frames {
		c.onAudio(f)
	}
}

// IngestVision forwards one JPEG frame, enforcing the fixed cadence:
// frames arriving faster than VisionInterval are dropped. Returns whether
// the frame was emitted.
func (c *Capture) IngestVision(jpeg []byte) bool {
	c.mu.Lock()
	if !c.started || len(jpeg) == 0 {
		c.mu.Unlock()
		return false
	}
	now := c.now()
	if !c.lastVision.IsZero() && now.Sub(c.lastVision) < c.cons.VisionInterval {
		c.mu.Unlock()
		return false
	}
	c.lastVision = now
	c.mu.Unlock()

	c.onVision(VisionFrame{JPEG: jpeg})
	return true
}
