package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/sanctum-labs/sanctum/config"
	"github.com/sanctum-labs/sanctum/gemini"
	"github.com/sanctum-labs/sanctum/store"
)

// APIServer serves the practice-management REST endpoints: record CRUD and
// the single-shot generation labs.
type APIServer struct {
	httpServer *http.Server
	config     *config.Config
	store      *store.Store
	generator  *gemini.Generator
}

func NewAPIServer(cfg *config.Config, st *store.Store, gen *gemini.Generator) *APIServer {
	s := &APIServer{
		config:    cfg,
		store:     st,
		generator: gen,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/clients", s.handleClients)
	mux.HandleFunc("/api/clients/", s.handleClientByID)
	mux.HandleFunc("/api/scripts", s.handleScripts)
	mux.HandleFunc("/api/scripts/", s.handleScriptByID)
	mux.HandleFunc("/api/scripts/generate", s.handleGenerateScript)
	mux.HandleFunc("/api/tracks", s.handleTracks)
	mux.HandleFunc("/api/tracks/", s.handleTrackByID)
	mux.HandleFunc("/api/reframes", s.handleReframes)
	mux.HandleFunc("/api/readings", s.handleReadings)
	mux.HandleFunc("/api/holistic-dr", s.handleHolisticDr)
	mux.HandleFunc("/api/research", s.handleResearch)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/tts", s.handleTTS)
	mux.HandleFunc("/api/video/analyze", s.handleVideoAnalyze)
	mux.HandleFunc("/health", s.handleHealth)

	// Determine which port to use
	port := cfg.APIPort
	if cfg.ServerType == "api" {
		// When running as standalone API server, use the main port
		port = cfg.Port
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
		// Generation endpoints can run long; writes are bounded generously.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	return s
}

// Start begins listening for connections
func (s *APIServer) Start() error {
	log.Printf("🚀 API server starting on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *APIServer) Shutdown(ctx context.Context) error {
	log.Println("🛑 Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// GetAddr returns the server's listen address (for logging in main)
func (s *APIServer) GetAddr() string {
	return s.httpServer.Addr
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024*1024))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return false
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "server": "api"})
}

func (s *APIServer) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.ListClients())
	case http.MethodPost:
		var c store.Client
		if !readJSON(w, r, &c) {
			return
		}
		if c.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		writeJSON(w, http.StatusCreated, s.store.CreateClient(c))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *APIServer) handleClientByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/clients/")
	switch r.Method {
	case http.MethodGet:
		c, err := s.store.GetClient(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodPut:
		var c store.Client
		if !readJSON(w, r, &c) {
			return
		}
		c.ID = id
		if err := s.store.UpdateClient(c); err != nil {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodDelete:
		if err := s.store.DeleteClient(id); err != nil {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *APIServer) handleScripts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.ListScripts(r.URL.Query().Get("clientId")))
	case http.MethodPost:
		var sc store.Script
		if !readJSON(w, r, &sc) {
			return
		}
		writeJSON(w, http.StatusCreated, s.store.CreateScript(sc))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *APIServer) handleScriptByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/scripts/")
	switch r.Method {
	case http.MethodGet:
		sc, err := s.store.GetScript(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "script not found")
			return
		}
		writeJSON(w, http.StatusOK, sc)
	case http.MethodDelete:
		if err := s.store.DeleteScript(id); err != nil {
			writeError(w, http.StatusNotFound, "script not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *APIServer) handleGenerateScript(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		ClientID string   `json:"clientId"`
		Issue    string   `json:"issue"`
		Reframes []string `json:"reframes"`
	}
	if !readJSON(w, r, &req) {
		return
	}

	clientName := "the client"
	if req.ClientID != "" {
		c, err := s.store.GetClient(req.ClientID)
		if err != nil {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		clientName = c.Name
	}

	content, err := s.generator.GenerateFullScript(r.Context(), clientName, req.Issue, req.Reframes)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	sc := s.store.CreateScript(store.Script{
		ClientID: req.ClientID,
		Title:    fmt.Sprintf("%s — %s", clientName, req.Issue),
		Content:  content,
		Reframes: req.Reframes,
	})
	writeJSON(w, http.StatusCreated, sc)
}

func (s *APIServer) handleTracks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.ListTracks())
	case http.MethodPost:
		var t store.AudioTrack
		if !readJSON(w, r, &t) {
			return
		}
		writeJSON(w, http.StatusCreated, s.store.CreateTrack(t))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *APIServer) handleTrackByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/tracks/")
	switch r.Method {
	case http.MethodDelete:
		if err := s.store.DeleteTrack(id); err != nil {
			writeError(w, http.StatusNotFound, "track not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *APIServer) handleReframes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		LimitingBeliefs string `json:"limitingBeliefs"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.LimitingBeliefs == "" {
		writeError(w, http.StatusBadRequest, "limitingBeliefs is required")
		return
	}
	reframes, err := s.generator.GenerateReframes(r.Context(), req.LimitingBeliefs)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"reframes": reframes})
}

func (s *APIServer) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Type    string `json:"type"` // "tarot", "astrology", "chakra", "body-code"
		Context string `json:"context"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	switch req.Type {
	case "tarot", "astrology", "chakra", "body-code":
	default:
		writeError(w, http.StatusBadRequest, "type must be tarot, astrology, chakra or body-code")
		return
	}
	reading, err := s.generator.GenerateHolisticReading(r.Context(), req.Type, req.Context)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

func (s *APIServer) handleHolisticDr(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	answer, err := s.generator.ConsultHolisticDr(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *APIServer) handleResearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Topic string `json:"topic"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	answer, err := s.generator.ResearchTopic(r.Context(), req.Topic)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *APIServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Message string               `json:"message"`
		History []gemini.ChatMessage `json:"history"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	text, err := s.generator.Chat(r.Context(), req.Message, req.History)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *APIServer) handleTTS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
		Title string `json:"title"`
		Type  string `json:"type"` // track type, saved when Title is set
	}
	if !readJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	pcm, err := s.generator.TextToSpeech(r.Context(), req.Text, req.Voice)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	encoded := base64.StdEncoding.EncodeToString(pcm)
	resp := map[string]any{
		"audio":    encoded,
		"mimeType": "audio/pcm;rate=24000",
	}

	if req.Title != "" {
		duration := float64(len(pcm)) / (2 * 24000)
		track := s.store.CreateTrack(store.AudioTrack{
			Title:    req.Title,
			URL:      "data:audio/pcm;base64," + encoded,
			Duration: fmt.Sprintf("%.1fs", duration),
			Type:     req.Type,
		})
		resp["track"] = track
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleVideoAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Video    string `json:"video"` // base64
		MimeType string `json:"mimeType"`
		Prompt   string `json:"prompt"`
	}
	if !readJSON(w, r, &req) {
		return
	}
	video, err := base64.StdEncoding.DecodeString(req.Video)
	if err != nil || len(video) == 0 {
		writeError(w, http.StatusBadRequest, "video must be base64-encoded")
		return
	}
	if req.MimeType == "" {
		req.MimeType = "video/webm"
	}
	text, err := s.generator.AnalyzeVideoSession(r.Context(), video, req.MimeType, req.Prompt)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
