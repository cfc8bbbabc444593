package pipeline

import (
	"errors"
	"testing"
	"time"
)

func TestCaptureFrameReassembly(t *testing.T) {
	t.Parallel()

	var frames []AudioFrame
	c := NewCapture(func(f AudioFrame) { frames = append(frames, f) }, func(VisionFrame) {})
	cons := Constraints{SampleRate: 16000, FrameSamples: 4, VisionInterval: time.Second}
	if err := c.Start(cons); err != nil {
		t.Fatal(err)
	}

	// 8 bytes per frame; feed 5 + 7 + 4 = exactly two frames.
	c.IngestAudio(make([]byte, 5))
	if len(frames) != 0 {
		t.Fatalf("partial data emitted %d frames", len(frames))
	}
	c.IngestAudio(make([]byte, 7))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame after 12 bytes, got %d", len(frames))
	}
	c.IngestAudio(make([]byte, 4))
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames after 16 bytes, got %d", len(frames))
	}
	for i, f := range frames {
		if len(f.PCM) != 8 {
			t.Errorf("frame %d length = %d, want 8", i, len(f.PCM))
		}
		if f.SampleRate != 16000 {
			t.Errorf("frame %d rate = %d", i, f.SampleRate)
		}
	}
}

func TestCaptureFramePreservesByteOrder(t *testing.T) {
	t.Parallel()

	var frames []AudioFrame
	c := NewCapture(func(f AudioFrame) { frames = append(frames, f) }, func(VisionFrame) {})
	c.Start(Constraints{SampleRate: 16000, FrameSamples: 2, VisionInterval: time.Second})

	c.IngestAudio([]byte{1, 2, 3})
	c.IngestAudio([]byte{4, 5, 6, 7, 8})

	if len(frames) != 2 {
		t.Fatalf("got %d frames", len(frames))
	}
	want := [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}
	for i := range want {
		for j := range want[i] {
			if frames[i].PCM[j] != want[i][j] {
				t.Fatalf("frame %d = %v, want %v", i, frames[i].PCM, want[i])
			}
		}
	}
}

func TestCaptureVisionThrottle(t *testing.T) {
	t.Parallel()

	var got int
	c := NewCapture(func(AudioFrame) {}, func(VisionFrame) { got++ })

	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }
	c.Start(Constraints{SampleRate: 16000, FrameSamples: 4096, VisionInterval: time.Second})

	if !c.IngestVision([]byte{0xff}) {
		t.Fatal("first frame must pass")
	}
	// 30 fps arrivals for the next second all drop.
	for i := 0; i < 30; i++ {
		now = now.Add(33 * time.Millisecond)
		if c.IngestVision([]byte{0xff}) && now.Sub(time.Unix(0, 0)) < time.Second {
			t.Fatalf("frame at %v passed inside the interval", now.Sub(time.Unix(0, 0)))
		}
	}
	now = time.Unix(0, 0).Add(1100 * time.Millisecond)
	if !c.IngestVision([]byte{0xff}) {
		t.Fatal("frame after the interval must pass")
	}
	if got != 2 {
		t.Errorf("emitted %d vision frames, want 2", got)
	}
}

func TestCaptureStopIdempotent(t *testing.T) {
	t.Parallel()

	var frames int
	c := NewCapture(func(AudioFrame) { frames++ }, func(VisionFrame) {})

	// Stop before ever starting is safe.
	c.Stop()
	c.Stop()

	if err := c.Start(DefaultConstraints()); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(DefaultConstraints()); !errors.Is(err, ErrCaptureActive) {
		t.Errorf("second Start err = %v, want ErrCaptureActive", err)
	}

	c.Stop()
	c.Stop()
	if c.Active() {
		t.Error("capture still active after Stop")
	}

	// Media after Stop is discarded.
	c.IngestAudio(make([]byte, 8192*2))
	if frames != 0 {
		t.Errorf("stopped capture emitted %d frames", frames)
	}
	if c.IngestVision([]byte{1}) {
		t.Error("stopped capture emitted a vision frame")
	}
}

func TestCaptureInvalidConstraints(t *testing.T) {
	t.Parallel()

	c := NewCapture(func(AudioFrame) {}, func(VisionFrame) {})
	bad := []Constraints{
		{SampleRate: 0, FrameSamples: 4096, VisionInterval: time.Second},
		{SampleRate: 16000, FrameSamples: 0, VisionInterval: time.Second},
		{SampleRate: 16000, FrameSamples: 4096, VisionInterval: 0},
	}
	for i, cons := range bad {
		if err := c.Start(cons); err == nil {
			t.Errorf("constraints %d accepted: %+v", i, cons)
			c.Stop()
		}
	}
}

func TestAcquireErrorMapping(t *testing.T) {
	t.Parallel()

	if !errors.Is(AcquireError("permission_denied"), ErrPermissionDenied) {
		t.Error("permission_denied not mapped")
	}
	if !errors.Is(AcquireError("device_unavailable"), ErrDeviceUnavailable) {
		t.Error("device_unavailable not mapped")
	}
	if AcquireError("something else") == nil {
		t.Error("unknown reason must still be an error")
	}
}
