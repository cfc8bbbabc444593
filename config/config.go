package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server configuration
type Config struct {
	Port            int    // Live websocket server
	APIPort         int    // REST API server (used when ServerType is "both")
	ServerType      string // "live", "api", or "both"
	RedisURL        string
	RedisPassword   string
	MaxSessions     int
	SessionTimeout  time.Duration
	GeminiAPIKey    string
	AllowedOrigins  []string
	KeepAlivePeriod time.Duration

	// Live pipeline tuning
	LiveModel       string
	Voice           string
	FrameSamples    int           // Mic samples per uplink frame
	VisionInterval  time.Duration // Minimum spacing between camera frames
	MaxQueuedFrames int           // Uplink backlog bound while connecting
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:            8080,
		APIPort:         8081,
		ServerType:      "both",
		RedisURL:        "localhost:6379",
		RedisPassword:   "",
		MaxSessions:     100,
		SessionTimeout:  30 * time.Minute,
		AllowedOrigins:  []string{"*"},
		KeepAlivePeriod: 30 * time.Second,
		FrameSamples:    4096,
		VisionInterval:  time.Second,
		MaxQueuedFrames: 32,
	}

	// Required: GEMINI_API_KEY
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	// Optional: PORT
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	// Optional: API_PORT (used when SERVER_TYPE is "both")
	if apiPort := os.Getenv("API_PORT"); apiPort != "" {
		p, err := strconv.Atoi(apiPort)
		if err != nil {
			return nil, fmt.Errorf("invalid API_PORT: %w", err)
		}
		config.APIPort = p
	}

	// Optional: REDIS_URL
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}

	// Optional: REDIS_PASSWORD
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	// Optional: MAX_SESSIONS
	if maxSessions := os.Getenv("MAX_SESSIONS"); maxSessions != "" {
		m, err := strconv.Atoi(maxSessions)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		config.MaxSessions = m
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		config.SessionTimeout = time.Duration(t) * time.Minute
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	// Optional: KEEPALIVE_PERIOD (in seconds)
	if keepalive := os.Getenv("KEEPALIVE_PERIOD"); keepalive != "" {
		k, err := strconv.Atoi(keepalive)
		if err != nil {
			return nil, fmt.Errorf("invalid KEEPALIVE_PERIOD: %w", err)
		}
		config.KeepAlivePeriod = time.Duration(k) * time.Second
	}

	// Optional: LIVE_MODEL
	if model := os.Getenv("LIVE_MODEL"); model != "" {
		config.LiveModel = model
	}

	// Optional: VOICE
	if voice := os.Getenv("VOICE"); voice != "" {
		config.Voice = voice
	}

	// Optional: FRAME_SAMPLES (mic samples per uplink frame)
	if samples := os.Getenv("FRAME_SAMPLES"); samples != "" {
		s, err := strconv.Atoi(samples)
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid FRAME_SAMPLES: %q", samples)
		}
		config.FrameSamples = s
	}

	// Optional: VISION_INTERVAL_MS
	if interval := os.Getenv("VISION_INTERVAL_MS"); interval != "" {
		ms, err := strconv.Atoi(interval)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid VISION_INTERVAL_MS: %q", interval)
		}
		config.VisionInterval = time.Duration(ms) * time.Millisecond
	}

	// Optional: MAX_QUEUED_FRAMES
	if frames := os.Getenv("MAX_QUEUED_FRAMES"); frames != "" {
		f, err := strconv.Atoi(frames)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("invalid MAX_QUEUED_FRAMES: %q", frames)
		}
		config.MaxQueuedFrames = f
	}

	// Optional: SERVER_TYPE ("live", "api", or "both")
	if serverType := os.Getenv("SERVER_TYPE"); serverType != "" {
		switch serverType {
		case "live", "api", "both":
			config.ServerType = serverType
		default:
			return nil, fmt.Errorf("invalid SERVER_TYPE: must be 'live', 'api', or 'both'")
		}
	}

	return config, nil
}
