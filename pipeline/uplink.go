package pipeline

import (
	"sync"
)

// Wire mime descriptors for uplink payloads.
const (
	MimePCM16k = "audio/pcm;rate=16000"
	MimeJPEG   = "image/jpeg"
)

// Payload is one encoded uplink message: raw media bytes plus the mime
// descriptor the remote endpoint expects.
type Payload struct {
	MIMEType string
	Data     []byte
}

// EncodeAudio packs a capture frame into the PCM wire format. Pure
// transform: the frame bytes are already little-endian s16, so this is a
// descriptor attach, no copy.
func EncodeAudio(frame AudioFrame) Payload {
	return Payload{MIMEType: MimePCM16k, Data: frame.PCM}
}

// EncodeVision wraps a JPEG snapshot for the wire. The quality reduction
// happened at capture; this is a passthrough.
func EncodeVision(frame VisionFrame) Payload {
	return Payload{MIMEType: MimeJPEG, Data: frame.JPEG}
}

// Sender delivers encoded payloads to the session channel.
type Sender interface {
	SendMedia(mimeType string, data []byte) error
}

// frameQueue is a bounded FIFO of encoded payloads buffered while the
// channel is unready. Exceeding the bound discards the oldest entry so
// memory stays bounded while the newest audio survives.
type frameQueue struct {
	frames    []Payload
	totalSize int
	maxFrames int
	dropped   int
}

func newFrameQueue(maxFrames int) *frameQueue {
	return &frameQueue{maxFrames: maxFrames}
}

func (q *frameQueue) push(p Payload) {
	for len(q.frames) >= q.maxFrames {
		q.totalSize -= len(q.frames[0].Data)
		q.frames = q.frames[1:]
		q.dropped++
	}
	q.frames = append(q.frames, p)
	q.totalSize += len(p.Data)
}

// flush returns the queued payloads in order and clears the queue.
func (q *frameQueue) flush() []Payload {
	out := q.frames
	q.frames = nil
	q.totalSize = 0
	return out
}

func (q *frameQueue) clear() {
	q.frames = nil
	q.totalSize = 0
}

func (q *frameQueue) len() int  { return len(q.frames) }
func (q *frameQueue) size() int { return q.totalSize }

// Uplink converts capture frames to wire payloads and hands them to the
// session channel without ever blocking the capture path. While the
// channel is unready, audio is buffered (bounded, drop-oldest) and vision
// frames are dropped silently — they are periodic samples, the next one is
// a second away.
type Uplink struct {
	sender Sender

	mu            sync.Mutex
	ready         bool
	queue         *frameQueue
	droppedVision int
	sendFailures  int
}

// NewUplink creates an uplink over the given sender, buffering at most
// maxQueuedFrames audio frames while the channel is unready.
func NewUplink(sender Sender, maxQueuedFrames int) *Uplink {
	if maxQueuedFrames <= 0 {
		maxQueuedFrames = 32
	}
	return &Uplink{sender: sender, queue: newFrameQueue(maxQueuedFrames)}
}

// SetReady marks the channel usable. Becoming ready flushes the buffered
// audio in arrival order; becoming unready discards it.
func (u *Uplink) SetReady(ready bool) {
	u.mu.Lock()
	u.ready = ready
	var backlog []Payload
	if ready {
		backlog = u.queue.flush()
	} else {
		u.queue.clear()
	}
	u.mu.Unlock()

	for _, p := range backlog {
		u.deliver(p)
	}
}

// PushAudio encodes and transmits one audio frame, fire-and-forget.
func (u *Uplink) PushAudio(frame AudioFrame) {
	p := EncodeAudio(frame)

	u.mu.Lock()
	if !u.ready {
		u.queue.push(p)
		u.mu.Unlock()
		return
	}
	u.mu.Unlock()

	u.deliver(p)
}

// PushVision encodes and transmits one vision frame, or drops it when the
// channel is unready.
func (u *Uplink) PushVision(frame VisionFrame) {
	u.mu.Lock()
	if !u.ready {
		u.droppedVision++
		u.mu.Unlock()
		return
	}
	u.mu.Unlock()

	u.deliver(EncodeVision(frame))
}

// DroppedAudio reports audio frames discarded by the bounded queue.
func (u *Uplink) DroppedAudio() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.queue.dropped
}

// DroppedVision reports vision frames discarded while the channel was
// unready.
func (u *Uplink) DroppedVision() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.droppedVision
}

// QueuedFrames reports the current backlog length.
func (u *Uplink) QueuedFrames() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.queue.len()
}

// QueuedBytes reports the current backlog size in bytes.
func (u *Uplink) QueuedBytes() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.queue.size()
}

// deliver sends one payload. Transport failures are counted, not
// propagated — the channel surfaces its own errors through its callbacks.
func (u *Uplink) deliver(p Payload) {
	if err := u.sender.SendMedia(p.MIMEType, p.Data); err != nil {
		u.mu.Lock()
		u.sendFailures++
		u.mu.Unlock()
	}
}

// SendFailures reports payloads the sender rejected.
func (u *Uplink) SendFailures() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sendFailures
}
