package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/sanctum-labs/sanctum/functions"
	"github.com/sanctum-labs/sanctum/gemini"
	"github.com/sanctum-labs/sanctum/messages"
	"github.com/sanctum-labs/sanctum/pipeline"
	"github.com/sanctum-labs/sanctum/store"
)

const (
	writeBufferSize = 256
	writeTimeout    = 10 * time.Second
)

// LiveOptions carries everything a session needs to open live runs.
type LiveOptions struct {
	GeminiKey      string
	Model          string
	Voice          string
	SystemPrompt   string
	Constraints    pipeline.Constraints
	MaxQueuedAudio int
	Tools          []*genai.Tool
}

// liveRun is one live conversation inside a session. A session can hold at
// most one run at a time; ending a run and starting another reuses the same
// websocket.
type liveRun struct {
	channel    *gemini.LiveChannel
	controller *pipeline.Controller
	clientID   string
}

// ClientSession represents a single practitioner's websocket connection.
type ClientSession struct {
	ID           string
	ClientConn   *websocket.Conn
	Store        *store.Store
	CreatedAt    time.Time
	LastActivity time.Time

	opts LiveOptions

	// Use channels for non-blocking writes
	writeChan chan any

	mu        sync.RWMutex
	run       *liveRun
	closed    bool
	CloseChan chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClientSession wraps an accepted websocket connection. The live channel
// is not opened until the client sends a start control.
func NewClientSession(ctx context.Context, id string, clientConn *websocket.Conn, st *store.Store, opts LiveOptions) *ClientSession {
	sessCtx, cancel := context.WithCancel(ctx)

	clientConn.SetReadLimit(512 * 1024) // 512KB max message
	clientConn.EnableWriteCompression(true)
	clientConn.SetCompressionLevel(6)

	return &ClientSession{
		ID:           id,
		ClientConn:   clientConn,
		Store:        st,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		opts:         opts,
		writeChan:    make(chan any, writeBufferSize),
		CloseChan:    make(chan struct{}),
		ctx:          sessCtx,
		cancel:       cancel,
	}
}

// Start begins the bidirectional message handling.
func (cs *ClientSession) Start() {
	go cs.writePump()
	cs.queueMessage(messages.NewStatusMessage(cs.ID, "connected", "Session established"))
	go cs.handleClientMessages()
}

// wsSink schedules playback on the client: each unit is shipped with its
// clock position and the client plays it at exactly that offset.
type wsSink struct {
	cs *ClientSession
}

func (s wsSink) PlayAt(u pipeline.PlaybackUnit) {
	encoded := base64.StdEncoding.EncodeToString(u.PCM)
	s.cs.queueMessage(messages.NewAudioMessage(s.cs.ID, encoded, u.Start, u.Duration))
}

func (s wsSink) StopAll() {
	s.cs.queueMessage(messages.NewAudioStopMessage(s.cs.ID))
}

// beginLive opens a live channel and builds a fresh pipeline around it.
func (cs *ClientSession) beginLive(clientID string) error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	if cs.run != nil {
		cs.mu.Unlock()
		return fmt.Errorf("live run already active")
	}
	cs.mu.Unlock()

	channel, err := gemini.NewLiveChannel(cs.ctx, cs.opts.GeminiKey)
	if err != nil {
		return fmt.Errorf("failed to create live channel: %w", err)
	}

	ctrl := pipeline.NewController(pipeline.ControllerConfig{
		Channel:              channel,
		Sink:                 wsSink{cs},
		Constraints:          cs.opts.Constraints,
		MaxQueuedAudioFrames: cs.opts.MaxQueuedAudio,
		OnTranscriptDelta: func(speaker pipeline.Speaker, delta string) {
			cs.queueMessage(messages.NewTranscriptMessage(cs.ID, string(speaker), delta))
		},
		OnTurn: func(entries []pipeline.TranscriptEntry) {
			out := make([]messages.TurnEntry, len(entries))
			for i, e := range entries {
				out[i] = messages.TurnEntry{Speaker: string(e.Speaker), Text: e.Text}
			}
			cs.queueMessage(messages.NewTurnMessage(cs.ID, out))
		},
		OnInterrupt: func() {
			cs.queueMessage(messages.NewStatusMessage(cs.ID, "interrupted", ""))
		},
		OnFatal: func(err error) {
			log.Printf("❌ [%s] Live pipeline failed: %v", cs.ID[:8], err)
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
			cs.clearRun()
		},
	})

	channel.OnMessage = func(msg *genai.LiveServerMessage) {
		events, err := pipeline.DecodeServerMessage(msg)
		if err != nil {
			ctrl.NoteMalformed()
			log.Printf("⚠️ [%s] Unroutable server message: %v", cs.ID[:8], err)
			return
		}
		ctrl.DispatchInbound(events)
	}
	channel.OnToolCall = func(calls []*genai.FunctionCall) {
		cs.handleToolCalls(channel, calls)
	}
	channel.OnError = func(err error) {
		ctrl.ChannelFailed(err)
	}

	prompt := cs.opts.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	if err := channel.Open(cs.ctx, gemini.LiveConfig{
		Model:             cs.opts.Model,
		Voice:             cs.opts.Voice,
		SystemInstruction: prompt,
		Tools:             cs.opts.Tools,
		Transcription:     true,
	}); err != nil {
		return fmt.Errorf("failed to open live channel: %w", err)
	}

	if err := ctrl.Start(); err != nil {
		channel.Close()
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	ctrl.ChannelOpened()

	cs.mu.Lock()
	cs.run = &liveRun{channel: channel, controller: ctrl, clientID: clientID}
	cs.mu.Unlock()

	if clientID != "" {
		if err := cs.Store.TouchClientSession(clientID, time.Now()); err != nil {
			log.Printf("⚠️ [%s] Unknown therapy client %q", cs.ID[:8], clientID)
		}
	}
	cs.queueMessage(messages.NewStatusMessage(cs.ID, "listening", ""))
	return nil
}

// endLive tears down the active run. Safe to call when none is active.
func (cs *ClientSession) endLive() {
	cs.mu.Lock()
	run := cs.run
	cs.run = nil
	cs.mu.Unlock()

	if run == nil {
		return
	}
	run.controller.EndSession()
	cs.queueMessage(messages.NewStatusMessage(cs.ID, "disconnected", ""))
}

// clearRun drops the run reference after the controller tore itself down.
func (cs *ClientSession) clearRun() {
	cs.mu.Lock()
	cs.run = nil
	cs.mu.Unlock()
}

func (cs *ClientSession) activeRun() *liveRun {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.run
}

// writePump handles all outgoing messages in a single goroutine
func (cs *ClientSession) writePump() {
	defer func() {
		cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		cs.ClientConn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
	}()

	writeJSON := func(msg any) error {
		data, err := sonic.Marshal(msg)
		if err != nil {
			return err
		}
		cs.ClientConn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return cs.ClientConn.WriteMessage(websocket.TextMessage, data)
	}

	for {
		select {
		case <-cs.CloseChan:
			return
		case msg, ok := <-cs.writeChan:
			if !ok {
				return
			}
			if err := writeJSON(msg); err != nil {
				return
			}

			n := len(cs.writeChan)
			for i := 0; i < n; i++ {
				select {
				case msg, ok := <-cs.writeChan:
					if !ok {
						return
					}
					if err := writeJSON(msg); err != nil {
						return
					}
				default:
				}
			}
		}
	}
}

// queueMessage adds a message to the write queue (non-blocking)
func (cs *ClientSession) queueMessage(msg any) {
	cs.mu.RLock()
	closed := cs.closed
	cs.mu.RUnlock()
	if closed {
		return
	}
	select {
	case cs.writeChan <- msg:
		cs.mu.Lock()
		cs.LastActivity = time.Now()
		cs.mu.Unlock()
	default:
		// Queue full, drop message (shouldn't happen with proper sizing)
	}
}

// Close terminates the session and cleans up resources
func (cs *ClientSession) Close() error {
	cs.mu.Lock()
	if cs.closed {
		cs.mu.Unlock()
		return nil
	}
	cs.closed = true
	run := cs.run
	cs.run = nil
	cs.mu.Unlock()

	cs.cancel()

	// Close the write channel first to stop writePump
	close(cs.writeChan)
	close(cs.CloseChan)

	if run != nil {
		run.controller.EndSession()
	}

	if cs.ClientConn != nil {
		cs.ClientConn.Close()
	}
	return nil
}

func (cs *ClientSession) handleClientMessages() {
	defer cs.Close()

	for {
		select {
		case <-cs.CloseChan:
			return
		default:
			messageType, message, err := cs.ClientConn.ReadMessage()
			if err != nil {
				return
			}

			cs.mu.Lock()
			cs.LastActivity = time.Now()
			cs.mu.Unlock()

			// Binary frames carry raw 16kHz mic PCM.
			if messageType == websocket.BinaryMessage {
				if run := cs.activeRun(); run != nil {
					run.controller.IngestAudio(message)
				}
				continue
			}

			var clientMsg messages.ClientMessage
			if err := sonic.Unmarshal(message, &clientMsg); err != nil {
				cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid message format"))
				continue
			}
			cs.processClientMessage(&clientMsg)
		}
	}
}

func (cs *ClientSession) processClientMessage(msg *messages.ClientMessage) {
	switch msg.Type {
	case "audio":
		var payload messages.AudioPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid audio payload"))
			return
		}
		audioBytes, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid base64 audio data"))
			return
		}
		if run := cs.activeRun(); run != nil {
			run.controller.IngestAudio(audioBytes)
		}

	case "video":
		var payload messages.VideoPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid video payload"))
			return
		}
		frame, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid base64 video data"))
			return
		}
		if run := cs.activeRun(); run != nil {
			run.controller.IngestVision(frame)
		}

	case "control":
		var payload messages.ControlPayload
		if err := sonic.Unmarshal(msg.Payload, &payload); err != nil {
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Invalid control payload"))
			return
		}
		cs.handleControlMessage(&payload)

	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown message type: "+msg.Type))
	}
}

func (cs *ClientSession) handleControlMessage(payload *messages.ControlPayload) {
	switch payload.Action {
	case "ping":
		cs.queueMessage(messages.NewStatusMessage(cs.ID, "pong", ""))

	case "start":
		if err := cs.beginLive(payload.ClientID); err != nil {
			log.Printf("❌ [%s] Failed to start live run: %v", cs.ID[:8], err)
			cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeSessionFailed, err.Error()))
		}

	case "end":
		cs.endLive()

	case "capture_failed":
		// The client could not acquire mic/camera. The live run is useless
		// without input, so tear it down.
		err := pipeline.AcquireError(payload.Reason)
		log.Printf("⚠️ [%s] Client capture failed: %v", cs.ID[:8], err)
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeCaptureFailed, err.Error()))
		cs.endLive()

	default:
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeInvalidMessage, "Unknown control action: "+payload.Action))
	}
}

// IsClosed returns whether the session is closed
func (cs *ClientSession) IsClosed() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.closed
}

// handleToolCalls processes function calls from Gemini and sends responses
func (cs *ClientSession) handleToolCalls(channel *gemini.LiveChannel, functionCalls []*genai.FunctionCall) {
	var responses []*genai.FunctionResponse

	for _, fc := range functionCalls {
		log.Printf("🔧 [%s] Function call: %s (id: %s)", cs.ID[:8], fc.Name, fc.ID)

		var response map[string]any

		switch fc.Name {
		case "get_client_background":
			clientID, _ := fc.Args["clientId"].(string)
			if clientID == "" {
				if run := cs.activeRun(); run != nil {
					clientID = run.clientID
				}
			}
			background := functions.GetClientBackground(cs.Store, clientID)
			response = map[string]any{"output": background}

		default:
			response = map[string]any{"error": fmt.Sprintf("Unknown function: %s", fc.Name)}
			log.Printf("⚠️ [%s] Unknown function called: %s", cs.ID[:8], fc.Name)
		}

		responses = append(responses, &genai.FunctionResponse{
			ID:       fc.ID,
			Name:     fc.Name,
			Response: response,
		})
	}

	if err := channel.SendToolResponse(responses); err != nil {
		log.Printf("❌ [%s] Failed to send tool response: %v", cs.ID[:8], err)
		cs.queueMessage(messages.NewErrorMessage(cs.ID, messages.ErrCodeGeminiError, err.Error()))
	}
}
