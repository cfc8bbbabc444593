package gemini

import (
	"context"
	"fmt"
	"log"
	"sync"

	"google.golang.org/genai"
)

// DefaultLiveModel is the native-audio model the live session speaks to.
const DefaultLiveModel = "models/gemini-2.5-flash-native-audio-preview-12-2025"

// DefaultVoice is the prebuilt voice used when none is configured.
// Available voices: Puck, Charon, Kore, Fenrir, Aoede, Leda, Orus, Zephyr
const DefaultVoice = "Zephyr"

// ChannelState tracks the live connection lifecycle.
type ChannelState int

const (
	StateConnecting ChannelState = iota
	StateOpen
	StateClosing
	StateClosed
	StateErrored
)

func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LiveConfig describes one live session.
type LiveConfig struct {
	Model             string
	Voice             string
	SystemInstruction string
	Tools             []*genai.Tool

	// Transcription asks the server to transcribe both directions of audio.
	Transcription bool
}

// LiveChannel manages the bidirectional connection to the Gemini Live API
// using the official SDK.
type LiveChannel struct {
	client  *genai.Client
	session *genai.Session

	// Callbacks for handling server traffic
	OnMessage  func(msg *genai.LiveServerMessage)
	OnToolCall func(functionCalls []*genai.FunctionCall)
	OnError    func(err error)
	OnClose    func()

	mu    sync.RWMutex
	state ChannelState
}

// NewLiveChannel creates the API client. The session is not connected until
// Open is called.
func NewLiveChannel(ctx context.Context, apiKey string) (*LiveChannel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &LiveChannel{
		client: client,
		state:  StateConnecting,
	}, nil
}

// Open establishes the live session and starts the receive loop.
func (lc *LiveChannel) Open(ctx context.Context, cfg LiveConfig) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.state != StateConnecting {
		return fmt.Errorf("channel is %s, cannot open", lc.state)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultLiveModel
	}
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{"AUDIO"},
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: cfg.SystemInstruction},
			},
		},
		Tools: cfg.Tools,
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: voice,
				},
			},
		},
	}
	if cfg.Transcription {
		config.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		config.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}

	session, err := lc.client.Live.Connect(ctx, model, config)
	if err != nil {
		lc.state = StateErrored
		return fmt.Errorf("failed to connect to Live API: %w", err)
	}

	lc.session = session
	lc.state = StateOpen
	log.Printf("✅ Connected to Gemini Live via SDK (%s)", model)

	go lc.receiveLoop()
	return nil
}

// receiveLoop pumps server messages until the session ends. Tool calls are
// split out so the owner can answer them without parsing every message.
func (lc *LiveChannel) receiveLoop() {
	for {
		lc.mu.RLock()
		session := lc.session
		state := lc.state
		lc.mu.RUnlock()

		if state != StateOpen || session == nil {
			return
		}

		resp, err := session.Receive()
		if err != nil {
			lc.mu.Lock()
			closing := lc.state == StateClosing || lc.state == StateClosed
			if !closing {
				lc.state = StateErrored
			}
			lc.mu.Unlock()

			if closing {
				if lc.OnClose != nil {
					lc.OnClose()
				}
				return
			}
			log.Printf("❌ Gemini receive error: %v", err)
			if lc.OnError != nil {
				lc.OnError(err)
			}
			return
		}

		if resp.ToolCall != nil && len(resp.ToolCall.FunctionCalls) > 0 {
			log.Printf("📥 Received from Gemini: %d function call(s)", len(resp.ToolCall.FunctionCalls))
			if lc.OnToolCall != nil {
				lc.OnToolCall(resp.ToolCall.FunctionCalls)
			}
			continue
		}

		if lc.OnMessage != nil {
			lc.OnMessage(resp)
		}
	}
}

// SendMedia forwards one realtime media chunk (mic PCM or a camera JPEG).
func (lc *LiveChannel) SendMedia(mimeType string, data []byte) error {
	lc.mu.RLock()
	session := lc.session
	state := lc.state
	lc.mu.RUnlock()

	if state != StateOpen || session == nil {
		return fmt.Errorf("channel is %s, cannot send", state)
	}

	err := session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			MIMEType: mimeType,
			Data:     data,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send media: %w", err)
	}
	return nil
}

// SendText injects a typed user turn into the live conversation.
func (lc *LiveChannel) SendText(text string) error {
	lc.mu.RLock()
	session := lc.session
	state := lc.state
	lc.mu.RUnlock()

	if state != StateOpen || session == nil {
		return fmt.Errorf("channel is %s, cannot send", state)
	}

	turnComplete := true
	err := session.SendClientContent(genai.LiveSendClientContentParameters{
		Turns: []*genai.Content{
			{
				Role:  "user",
				Parts: []*genai.Part{{Text: text}},
			},
		},
		TurnComplete: &turnComplete,
	})
	if err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}

	log.Printf("📤 Sent text to Gemini: %s", text)
	return nil
}

// SendToolResponse sends function call responses back to Gemini.
func (lc *LiveChannel) SendToolResponse(responses []*genai.FunctionResponse) error {
	lc.mu.RLock()
	session := lc.session
	state := lc.state
	lc.mu.RUnlock()

	if state != StateOpen || session == nil {
		return fmt.Errorf("channel is %s, cannot send", state)
	}

	err := session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: responses,
	})
	if err != nil {
		return fmt.Errorf("failed to send tool response: %w", err)
	}

	log.Printf("📤 Sent %d tool response(s) to Gemini", len(responses))
	return nil
}

// Close terminates the live session. Safe to call repeatedly and before the
// session ever opened.
func (lc *LiveChannel) Close() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	switch lc.state {
	case StateClosing, StateClosed:
		return nil
	case StateErrored:
		// Already torn down by the receive loop; just release the session.
		if lc.session != nil {
			lc.session.Close()
			lc.session = nil
		}
		return nil
	}

	lc.state = StateClosing
	var err error
	if lc.session != nil {
		err = lc.session.Close()
		lc.session = nil
	}
	lc.state = StateClosed
	return err
}

// State returns the current lifecycle state.
func (lc *LiveChannel) State() ChannelState {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.state
}
