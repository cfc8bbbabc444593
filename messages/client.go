package messages

import "encoding/json"

// ClientMessage represents a JSON message from the frontend client. Raw mic
// audio travels as binary websocket frames and never passes through here.
type ClientMessage struct {
	Type    string          `json:"type"` // "audio", "video", "control"
	Payload json.RawMessage `json:"payload"`
}

// AudioPayload carries base64 PCM for clients that cannot send binary frames.
type AudioPayload struct {
	Data string `json:"data"` // Base64-encoded 16kHz mono PCM
}

// VideoPayload carries one camera frame.
type VideoPayload struct {
	Data string `json:"data"` // Base64-encoded JPEG
}

// ControlPayload carries session control commands.
type ControlPayload struct {
	Action string `json:"action"` // "start", "end", "ping", "capture_failed"

	// Reason qualifies capture_failed: "permission_denied" or
	// "device_unavailable".
	Reason string `json:"reason,omitempty"`

	// ClientID selects the therapy client whose background the session
	// should load. Only meaningful on "start".
	ClientID string `json:"clientId,omitempty"`
}
