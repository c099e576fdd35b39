package config

import (
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Sessions  SessionConfig
	Shells    ShellConfig
	Transport TransportConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	// EventQueue bounds the events buffered per WebSocket connection
	EventQueue      int           `envconfig:"WS_EVENT_QUEUE" default:"1024"`
	// CORSOrigins lists browser origins allowed on the session API
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// SessionConfig holds PTY session registry configuration.
type SessionConfig struct {
	Max             int           `envconfig:"SESSION_MAX" default:"10"`
	HistoryLimit    int           `envconfig:"SESSION_HISTORY_LIMIT" default:"500"`
	BufferBytes     int           `envconfig:"SESSION_BUFFER_BYTES" default:"1048576"`
	MonitorInterval time.Duration `envconfig:"SESSION_MONITOR_INTERVAL" default:"1s"`
	TerminateGrace  time.Duration `envconfig:"SESSION_TERMINATE_GRACE" default:"2s"`
	Cols            int           `envconfig:"SESSION_COLS" default:"80"`
	Rows            int           `envconfig:"SESSION_ROWS" default:"24"`
	WorkingDir      string        `envconfig:"SESSION_WORKING_DIR"`
}

// ShellConfig holds shell catalog configuration.
type ShellConfig struct {
	Preferred      string        `envconfig:"SHELL_PREFERRED"`
	CandidatesFile string        `envconfig:"SHELL_CANDIDATES_FILE"`
	Watch          bool          `envconfig:"SHELL_WATCH" default:"true"`
	VersionTimeout time.Duration `envconfig:"SHELL_VERSION_TIMEOUT" default:"2s"`
}

// TransportConfig holds consumer-side transport configuration.
type TransportConfig struct {
	URL              string        `envconfig:"TRANSPORT_URL" default:"ws://localhost:8000/pty"`
	Debounce         time.Duration `envconfig:"TRANSPORT_DEBOUNCE" default:"250ms"`
	BackoffBase      time.Duration `envconfig:"TRANSPORT_BACKOFF_BASE" default:"500ms"`
	BackoffMax       time.Duration `envconfig:"TRANSPORT_BACKOFF_MAX" default:"8s"`
	BackoffJitter    float64       `envconfig:"TRANSPORT_BACKOFF_JITTER" default:"0.2"`
	MaxAttempts      int           `envconfig:"TRANSPORT_MAX_ATTEMPTS" default:"5"`
	QueueSize        int           `envconfig:"TRANSPORT_QUEUE_SIZE" default:"256"`
	MaxMessageAge    time.Duration `envconfig:"TRANSPORT_MAX_MESSAGE_AGE" default:"30s"`
	CallTimeout      time.Duration `envconfig:"TRANSPORT_CALL_TIMEOUT" default:"10s"`
	FailureThreshold uint32        `envconfig:"TRANSPORT_FAILURE_THRESHOLD" default:"3"`
	PingInterval     time.Duration `envconfig:"TRANSPORT_PING_INTERVAL" default:"15s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
			EventQueue:      1024,
			CORSOrigins:     []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Sessions: SessionConfig{
			Max:             10,
			HistoryLimit:    500,
			BufferBytes:     1 << 20,
			MonitorInterval: time.Second,
			TerminateGrace:  2 * time.Second,
			Cols:            80,
			Rows:            24,
		},
		Shells: ShellConfig{
			Watch:          true,
			VersionTimeout: 2 * time.Second,
		},
		Transport: TransportConfig{
			URL:              "ws://localhost:8000/pty",
			Debounce:         250 * time.Millisecond,
			BackoffBase:      500 * time.Millisecond,
			BackoffMax:       8 * time.Second,
			BackoffJitter:    0.2,
			MaxAttempts:      5,
			QueueSize:        256,
			MaxMessageAge:    30 * time.Second,
			CallTimeout:      10 * time.Second,
			FailureThreshold: 3,
			PingInterval:     15 * time.Second,
		},
	}
}
