package pipeline

import (
	"strings"
	"sync"
)

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEntry is one finalized utterance. Entries are immutable once
// appended to the history.
type TranscriptEntry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// TranscriptAggregator accumulates streaming transcription deltas per
// speaker and commits them to an append-only ordered history when a turn
// completes.
type TranscriptAggregator struct {
	mu      sync.Mutex
	input   strings.Builder
	output  strings.Builder
	history []TranscriptEntry
}

func NewTranscriptAggregator() *TranscriptAggregator {
	return &TranscriptAggregator{}
}

// AppendInputDelta concatenates a partial user transcription.
func (a *TranscriptAggregator) AppendInputDelta(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.WriteString(text)
}

// AppendOutputDelta concatenates a partial assistant transcription.
func (a *TranscriptAggregator) AppendOutputDelta(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.output.WriteString(text)
}

// FlushTurn commits the pending buffers to the history, user entry first,
// skipping empty buffers, then clears both. It returns the entries it
// appended; flushing with nothing pending appends nothing.
func (a *TranscriptAggregator) FlushTurn() []TranscriptEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	var appended []TranscriptEntry
	if a.input.Len() > 0 {
		appended = append(appended, TranscriptEntry{Speaker: SpeakerUser, Text: a.input.String()})
		a.input.Reset()
	}
	if a.output.Len() > 0 {
		appended = append(appended, TranscriptEntry{Speaker: SpeakerAssistant, Text: a.output.String()})
		a.output.Reset()
	}
	a.history = append(a.history, appended...)
	return appended
}

// History returns a copy of the finalized ordered transcript.
func (a *TranscriptAggregator) History() []TranscriptEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TranscriptEntry, len(a.history))
	copy(out, a.history)
	return out
}

// PendingInput returns the not-yet-flushed user transcription.
func (a *TranscriptAggregator) PendingInput() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input.String()
}

// PendingOutput returns the not-yet-flushed assistant transcription.
func (a *TranscriptAggregator) PendingOutput() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.output.String()
}

// Reset clears both accumulators and the history.
func (a *TranscriptAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.Reset()
	a.output.Reset()
	a.history = nil
}
