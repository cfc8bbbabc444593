package pipeline

import (
	"errors"
	"strconv"
	"strings"

	"google.golang.org/genai"
)

// ErrMalformedEvent is returned when an inbound message matches none of
// the known shapes. Callers log and drop — a malformed message never
// terminates the session.
var ErrMalformedEvent = errors.New("malformed inbound event")

// DefaultOutputSampleRate is the rate the live endpoint synthesizes audio
// at when the mime descriptor carries no rate parameter.
const DefaultOutputSampleRate = 24000

// EventKind tags an InboundEvent variant.
type EventKind int

const (
	EventInputTranscript EventKind = iota + 1
	EventOutputTranscript
	EventAudioChunk
	EventTurnComplete
	EventInterrupted
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventInputTranscript:
		return "input_transcript"
	case EventOutputTranscript:
		return "output_transcript"
	case EventAudioChunk:
		return "audio_chunk"
	case EventTurnComplete:
		return "turn_complete"
	case EventInterrupted:
		return "interrupted"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// InboundEvent is one classified downlink event. Exactly the fields for
// the tagged Kind are populated.
type InboundEvent struct {
	Kind       EventKind
	Text       string // transcript deltas
	Audio      []byte // raw PCM for audio chunks
	SampleRate int
	Channels   int
	Err        error // EventError only
}

// DecodeServerMessage classifies one live server message into the closed
// InboundEvent set, preserving protocol order: transcript deltas, audio,
// then interruption/turn markers. Messages that are recognized but carry
// no routable payload (setup acknowledgements, tool traffic handled
// elsewhere) decode to an empty slice. Anything else is ErrMalformedEvent.
func DecodeServerMessage(msg *genai.LiveServerMessage) ([]InboundEvent, error) {
	if msg == nil {
		return nil, ErrMalformedEvent
	}

	// Out-of-band but well-formed traffic.
	if msg.SetupComplete != nil || msg.ToolCall != nil || msg.ToolCallCancellation != nil {
		return nil, nil
	}

	sc := msg.ServerContent
	if sc == nil {
		return nil, ErrMalformedEvent
	}

	var events []InboundEvent

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, InboundEvent{Kind: EventInputTranscript, Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, InboundEvent{Kind: EventOutputTranscript, Text: sc.OutputTranscription.Text})
	}

	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil {
				continue
			}
			// Inline model text arrives on sessions without output
			// transcription; treat it as an assistant delta.
			if part.Text != "" {
				events = append(events, InboundEvent{Kind: EventOutputTranscript, Text: part.Text})
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				events = append(events, InboundEvent{
					Kind:       EventAudioChunk,
					Audio:      part.InlineData.Data,
					SampleRate: parsePCMRate(part.InlineData.MIMEType),
					Channels:   1,
				})
			}
		}
	}

	if sc.Interrupted {
		events = append(events, InboundEvent{Kind: EventInterrupted})
	}
	if sc.TurnComplete {
		events = append(events, InboundEvent{Kind: EventTurnComplete})
	}
	if sc.GenerationComplete {
		// Generation finished but the turn is still open; nothing to route.
		return events, nil
	}

	if len(events) == 0 {
		return nil, ErrMalformedEvent
	}
	return events, nil
}

// parsePCMRate extracts the rate parameter from a mime descriptor like
// "audio/pcm;rate=24000", falling back to the default output rate.
func parsePCMRate(mimeType string) int {
	for _, param := range strings.Split(mimeType, ";") {
		param = strings.TrimSpace(param)
		if rest, ok := strings.CutPrefix(param, "rate="); ok {
			if rate, err := strconv.Atoi(rest); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return DefaultOutputSampleRate
}
