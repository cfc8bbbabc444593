package pipeline

import (
	"reflect"
	"testing"
)

func TestAggregatorFlushOrdering(t *testing.T) {
	t.Parallel()

	a := NewTranscriptAggregator()
	a.AppendInputDelta("Hel")
	a.AppendInputDelta("lo")
	a.AppendOutputDelta("Hi")
	a.AppendOutputDelta("!")

	got := a.FlushTurn()
	want := []TranscriptEntry{
		{Speaker: SpeakerUser, Text: "Hello"},
		{Speaker: SpeakerAssistant, Text: "Hi!"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("flush = %+v, want %+v", got, want)
	}
	if a.PendingInput() != "" || a.PendingOutput() != "" {
		t.Error("accumulators must be empty after flush")
	}

	// Second flush with no new deltas appends nothing.
	if extra := a.FlushTurn(); len(extra) != 0 {
		t.Errorf("empty flush appended %+v", extra)
	}
	if hist := a.History(); !reflect.DeepEqual(hist, want) {
		t.Errorf("history = %+v, want %+v", hist, want)
	}
}

func TestAggregatorPartialTurns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  []string
		output []string
		want   []TranscriptEntry
	}{
		{
			name:  "input only",
			input: []string{"just ", "me"},
			want:  []TranscriptEntry{{Speaker: SpeakerUser, Text: "just me"}},
		},
		{
			name:   "output only",
			output: []string{"thinking ", "aloud"},
			want:   []TranscriptEntry{{Speaker: SpeakerAssistant, Text: "thinking aloud"}},
		},
		{
			name: "both empty",
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := NewTranscriptAggregator()
			for _, d := range tc.input {
				a.AppendInputDelta(d)
			}
			for _, d := range tc.output {
				a.AppendOutputDelta(d)
			}
			if got := a.FlushTurn(); !reflect.DeepEqual(got, tc.want) {
				t.Errorf("flush = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestAggregatorHistoryIsCopy(t *testing.T) {
	t.Parallel()

	a := NewTranscriptAggregator()
	a.AppendInputDelta("one")
	a.FlushTurn()

	h := a.History()
	h[0].Text = "mutated"
	if a.History()[0].Text != "one" {
		t.Error("History must return a copy")
	}
}

func TestAggregatorMultipleTurns(t *testing.T) {
	t.Parallel()

	a := NewTranscriptAggregator()
	a.AppendInputDelta("first question")
	a.AppendOutputDelta("first answer")
	a.FlushTurn()
	a.AppendInputDelta("second question")
	a.FlushTurn()

	want := []TranscriptEntry{
		{Speaker: SpeakerUser, Text: "first question"},
		{Speaker: SpeakerAssistant, Text: "first answer"},
		{Speaker: SpeakerUser, Text: "second question"},
	}
	if got := a.History(); !reflect.DeepEqual(got, want) {
		t.Errorf("history = %+v, want %+v", got, want)
	}

	a.Reset()
	if len(a.History()) != 0 {
		t.Error("Reset must clear the history")
	}
}
