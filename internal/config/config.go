// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Name        string
	Environment string
	GRPCPort    string
	HTTPPort    string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsPort string
}

// STTConfig selects and configures the transcription provider.
type STTConfig struct {
	Provider      string // mock, openai, google
	LanguageCode  string
	SampleRateHz  int
	AudioEncoding string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	Timeout       time.Duration
}

// LLMConfig selects and configures the reply provider.
type LLMConfig struct {
	Provider          string // none, openai, gemini
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	GeminiAPIKey      string
	GeminiModel       string
	Temperature       float64
	Timeout           time.Duration
	BreakerMaxFailure int
	BreakerOpenFor    time.Duration
}

// CaptureConfig bounds a single utterance.
type CaptureConfig struct {
	SampleRateHz     int
	FrameDuration    time.Duration
	SpeechThreshold  float64
	SilenceThreshold float64
	Smoothing        float64
	SilenceHold      time.Duration
	MaxDuration      time.Duration
	MaxAudioBytes    int64
}

// DialogueConfig holds per-session limits.
type DialogueConfig struct {
	MaxConsecutiveFailures int
	TurnTimeout            time.Duration
	SessionIdleTTL         time.Duration
	SessionMaxLifetime     time.Duration
	HistorySize            int
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	TopicTurns  string
	TopicOrders string
	Principal   string
}

// DatabaseConfig holds the order and restaurant store settings.
type DatabaseConfig struct {
	Driver          string // memory, postgres
	URL             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string
}

// TwilioConfig holds webhook settings.
type TwilioConfig struct {
	AccountSID    string
	AuthToken     string
	PublicBaseURL string
	Voice         string
	// GatherTimeout is how long Twilio waits for the caller to start speaking.
	GatherTimeout int
	SpeechTimeout string
}

// RecordingsConfig holds utterance archive settings.
type RecordingsConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
}

// RateLimitConfig throttles simulated test calls per user.
type RateLimitConfig struct {
	// TestCallRPS <= 0 disables the limit.
	TestCallRPS   float64
	TestCallBurst int
}

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	Observability ObservabilityConfig
	STT           STTConfig
	LLM           LLMConfig
	Capture       CaptureConfig
	Dialogue      DialogueConfig
	Kafka         KafkaConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Twilio        TwilioConfig
	Recordings    RecordingsConfig
	RateLimit     RateLimitConfig
	CORSOrigins   []string
}

// Load reads configuration from environment variables, falling back to
// defaults for anything unset or unparsable.
func Load() *Configuration {
	return &Configuration{
		Service: ServiceConfig{
			Name:        envOrDefault("SERVICE_NAME", "voice-order-service"),
			Environment: envOrDefault("APP_ENV", "development"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
		STT: STTConfig{
			Provider:      envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:  envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:  envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			AudioEncoding: envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL: envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:   envOrDefault("STT_OPENAI_MODEL", "whisper-1"),
			Timeout:       envOrDefaultDuration("STT_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			Provider:          envOrDefault("LLM_PROVIDER", "none"),
			OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:     envOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			OpenAIModel:       envOrDefault("LLM_OPENAI_MODEL", "gpt-4"),
			GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
			GeminiModel:       envOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
			Temperature:       envOrDefaultFloat("LLM_TEMPERATURE", 0.2),
			Timeout:           envOrDefaultDuration("LLM_TIMEOUT", 30*time.Second),
			BreakerMaxFailure: envOrDefaultInt("LLM_BREAKER_MAX_FAILURES", 5),
			BreakerOpenFor:    envOrDefaultDuration("LLM_BREAKER_OPEN_FOR", 30*time.Second),
		},
		Capture: CaptureConfig{
			SampleRateHz:     envOrDefaultInt("CAPTURE_SAMPLE_RATE_HZ", 16000),
			FrameDuration:    envOrDefaultDuration("CAPTURE_FRAME_DURATION", 20*time.Millisecond),
			SpeechThreshold:  envOrDefaultFloat("CAPTURE_SPEECH_THRESHOLD", 500),
			SilenceThreshold: envOrDefaultFloat("CAPTURE_SILENCE_THRESHOLD", 300),
			Smoothing:        envOrDefaultFloat("CAPTURE_SMOOTHING", 0.3),
			SilenceHold:      clampDuration(envOrDefaultDuration("CAPTURE_SILENCE_HOLD", 1200*time.Millisecond), 800*time.Millisecond, 1500*time.Millisecond),
			MaxDuration:      clampDuration(envOrDefaultDuration("CAPTURE_MAX_DURATION", 10*time.Second), 8*time.Second, 15*time.Second),
			MaxAudioBytes:    int64(envOrDefaultInt("CAPTURE_MAX_AUDIO_BYTES", 1024*1024)),
		},
		Dialogue: DialogueConfig{
			MaxConsecutiveFailures: envOrDefaultInt("DIALOGUE_MAX_FAILURES", 3),
			TurnTimeout:            envOrDefaultDuration("DIALOGUE_TURN_TIMEOUT", 30*time.Second),
			SessionIdleTTL:         envOrDefaultDuration("DIALOGUE_SESSION_IDLE_TTL", 5*time.Minute),
			SessionMaxLifetime:     envOrDefaultDuration("DIALOGUE_SESSION_MAX_LIFETIME", 30*time.Minute),
			HistorySize:            envOrDefaultInt("DIALOGUE_HISTORY_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Enabled:     envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:     envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTurns:  envOrDefault("KAFKA_TOPIC_TURNS", "dialogue.turn.completed"),
			TopicOrders: envOrDefault("KAFKA_TOPIC_ORDERS", "order.created"),
			Principal:   envOrDefault("KAFKA_PRINCIPAL", "svc-voice-order"),
		},
		Database: DatabaseConfig{
			Driver:          envOrDefault("DB_DRIVER", "memory"),
			URL:             os.Getenv("DATABASE_URL"),
			MaxConns:        int32(envOrDefaultInt("DB_MAX_CONNS", 10)),
			MinConns:        int32(envOrDefaultInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime: envOrDefaultDuration("DB_MAX_CONN_LIFETIME", time.Hour),
			ConnectTimeout:  envOrDefaultDuration("DB_CONNECT_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Twilio: TwilioConfig{
			AccountSID:    os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:     os.Getenv("TWILIO_AUTH_TOKEN"),
			PublicBaseURL: strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
			Voice:         envOrDefault("TWILIO_VOICE", "alice"),
			GatherTimeout: envOrDefaultInt("TWILIO_GATHER_TIMEOUT", 5),
			SpeechTimeout: envOrDefault("TWILIO_SPEECH_TIMEOUT", "auto"),
		},
		Recordings: RecordingsConfig{
			Enabled:   envOrDefaultBool("RECORDINGS_ENABLED", false),
			Endpoint:  os.Getenv("R2_ENDPOINT"),
			AccessKey: os.Getenv("R2_ACCESS_KEY"),
			SecretKey: os.Getenv("R2_SECRET_KEY"),
			Bucket:    os.Getenv("R2_BUCKET_NAME"),
			Region:    envOrDefault("R2_REGION", "auto"),
		},
		RateLimit: RateLimitConfig{
			TestCallRPS:   envOrDefaultFloat("TEST_CALL_RATE_RPS", 2),
			TestCallBurst: envOrDefaultInt("TEST_CALL_RATE_BURST", 10),
		},
		CORSOrigins: envOrDefaultList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Configuration) IsProduction() bool {
	return strings.EqualFold(c.Service.Environment, "production")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// envOrDefaultList splits a comma-separated value, dropping blanks.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
