package messages

// Error codes
const (
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeGeminiError      = "GEMINI_ERROR"
	ErrCodeSessionFailed    = "SESSION_FAILED"
	ErrCodeConnectionClosed = "CONNECTION_CLOSED"
	ErrCodeCaptureFailed    = "CAPTURE_FAILED"
	ErrCodeBufferFull       = "BUFFER_FULL"
)

// Message types
const (
	TypeAudio      = "audio"
	TypeAudioStop  = "audio_stop"
	TypeTranscript = "transcript"
	TypeTurn       = "turn"
	TypeStatus     = "status"
	TypeError      = "error"
)

// ServerMessage represents a message sent to the frontend client.
type ServerMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Payload   interface{} `json:"payload"`
}

// AudioResponsePayload is one scheduled playback unit. PlayAt and Duration
// are seconds on the session's output clock; the client plays the chunk at
// exactly PlayAt and never overlaps units.
type AudioResponsePayload struct {
	Data     string  `json:"data"`     // Base64-encoded PCM audio
	MimeType string  `json:"mimeType"` // "audio/pcm;rate=24000"
	PlayAt   float64 `json:"playAt"`
	Duration float64 `json:"duration"`
}

// TranscriptPayload is one partial transcription delta.
type TranscriptPayload struct {
	Speaker string `json:"speaker"` // "user" or "assistant"
	Delta   string `json:"delta"`
}

// TurnEntry is one finalized utterance committed at a turn boundary.
type TurnEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// TurnPayload carries the entries a completed turn appended to the history.
type TurnPayload struct {
	Entries []TurnEntry `json:"entries"`
}

// StatusPayload contains status updates
type StatusPayload struct {
	Status  string `json:"status"` // "connected", "listening", "interrupted", "disconnected"
	Message string `json:"message,omitempty"`
}

// ErrorPayload contains error information
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewAudioMessage creates a scheduled audio playback message.
func NewAudioMessage(sessionID, data string, playAt, duration float64) *ServerMessage {
	return &ServerMessage{
		Type:      TypeAudio,
		SessionID: sessionID,
		Payload: AudioResponsePayload{
			Data:     data,
			MimeType: "audio/pcm;rate=24000",
			PlayAt:   playAt,
			Duration: duration,
		},
	}
}

// NewAudioStopMessage tells the client to halt all scheduled playback
// immediately (barge-in).
func NewAudioStopMessage(sessionID string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeAudioStop,
		SessionID: sessionID,
		Payload:   struct{}{},
	}
}

// NewTranscriptMessage creates a partial transcription delta message.
func NewTranscriptMessage(sessionID, speaker, delta string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeTranscript,
		SessionID: sessionID,
		Payload: TranscriptPayload{
			Speaker: speaker,
			Delta:   delta,
		},
	}
}

// NewTurnMessage creates a turn-boundary message with the committed entries.
func NewTurnMessage(sessionID string, entries []TurnEntry) *ServerMessage {
	return &ServerMessage{
		Type:      TypeTurn,
		SessionID: sessionID,
		Payload:   TurnPayload{Entries: entries},
	}
}

// NewStatusMessage creates a status message
func NewStatusMessage(sessionID, status, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeStatus,
		SessionID: sessionID,
		Payload: StatusPayload{
			Status:  status,
			Message: message,
		},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(sessionID, code, message string) *ServerMessage {
	return &ServerMessage{
		Type:      TypeError,
		SessionID: sessionID,
		Payload: ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}
