// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration is the root configuration for the service.
type Configuration struct {
	Service       ServiceConfig
	STT           STTConfig
	Capture       CaptureConfig
	Trigger       TriggerConfig
	Analysis      AnalysisConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal   string
	HTTPPort    string
	GRPCPort    string
	MetricsAddr string
}

// STTConfig selects and configures the speech-to-text provider.
type STTConfig struct {
	Provider      string // mock, realtime, google
	URL           string // websocket endpoint for the realtime provider
	Model         string
	CredentialURL string // short-lived credential issuer
	LanguageCode  string
	SampleRateHz  int
	AudioFormat   string
}

// CaptureConfig controls resampling and framing of inbound audio.
type CaptureConfig struct {
	TargetRateHz int
	FrameBytes   int
	QueueFrames  int
}

// TriggerConfig controls when a tone-analysis window fires.
type TriggerConfig struct {
	MinChars    int
	MinSpeakers int
	MinTurns    int
}

// AnalysisConfig selects and configures the analysis backend.
type AnalysisConfig struct {
	Provider        string // http, openai, mock
	BaseURL         string
	Timeout         time.Duration
	MinClipBytes    int
	MaxClipBytes    int
	RecentSentiment int

	InformationLimit int
	ProblemLimit     int
	RequestLimit     int
	ConcernLimit     int

	DedupMinLength int
	NotePrefixes   []string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicAnalysis   string
	Principal       string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string
}

// DefaultNotePrefixes are stripped before notes are compared for duplicates.
var DefaultNotePrefixes = []string{
	"the customer's name is",
	"customer's name is",
	"the customer name is",
	"customer name is",
	"the caller's name is",
	"caller's name is",
	"customer wants to understand",
	"wants to understand",
	"customer wants to know",
	"wants to know",
	"customer is asking about",
	"is asking about",
	"customer is concerned about",
	"concerned about",
	"customer requests",
	"customer reports",
}

// Load reads the configuration from the environment, after an optional .env file.
func Load() *Configuration {
	_ = godotenv.Load()

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-call-assist")

	return &Configuration{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
		STT: STTConfig{
			Provider:      envOrDefault("STT_PROVIDER", "mock"),
			URL:           envOrDefault("STT_URL", "wss://stt-rt.soniox.com/transcribe-websocket"),
			Model:         envOrDefault("STT_MODEL", "stt-rt-preview"),
			CredentialURL: envOrDefault("STT_CREDENTIAL_URL", "http://localhost:3000/api/stt-credential"),
			LanguageCode:  envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:  envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			AudioFormat:   envOrDefault("STT_AUDIO_FORMAT", "pcm_s16le"),
		},
		Capture: CaptureConfig{
			TargetRateHz: envOrDefaultInt("CAPTURE_TARGET_RATE_HZ", 16000),
			FrameBytes:   envOrDefaultInt("CAPTURE_FRAME_BYTES", 3200),
			QueueFrames:  envOrDefaultInt("CAPTURE_QUEUE_FRAMES", 64),
		},
		Trigger: TriggerConfig{
			MinChars:    envOrDefaultInt("TRIGGER_MIN_CHARS", 20),
			MinSpeakers: envOrDefaultInt("TRIGGER_MIN_SPEAKERS", 2),
			MinTurns:    envOrDefaultInt("TRIGGER_MIN_TURNS", 2),
		},
		Analysis: AnalysisConfig{
			Provider:         envOrDefault("ANALYSIS_PROVIDER", "mock"),
			BaseURL:          envOrDefault("ANALYSIS_BASE_URL", "http://localhost:3000/api"),
			Timeout:          envOrDefaultDuration("ANALYSIS_TIMEOUT", 30*time.Second),
			MinClipBytes:     envOrDefaultInt("ANALYSIS_MIN_CLIP_BYTES", 64000),
			MaxClipBytes:     envOrDefaultInt("ANALYSIS_MAX_CLIP_BYTES", 960000),
			RecentSentiment:  envOrDefaultInt("ANALYSIS_RECENT_SENTIMENTS", 3),
			InformationLimit: envOrDefaultInt("NOTES_INFORMATION_LIMIT", 2),
			ProblemLimit:     envOrDefaultInt("NOTES_PROBLEM_LIMIT", 1),
			RequestLimit:     envOrDefaultInt("NOTES_REQUEST_LIMIT", 1),
			ConcernLimit:     envOrDefaultInt("NOTES_CONCERN_LIMIT", 1),
			DedupMinLength:   envOrDefaultInt("NOTES_DEDUP_MIN_LENGTH", 3),
			NotePrefixes:     envOrDefaultList("NOTES_BOILERPLATE_PREFIXES", DefaultNotePrefixes),
			OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:    os.Getenv("OPENAI_BASE_URL"),
			OpenAIModel:      envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "call.transcript"),
			TopicAnalysis:   envOrDefault("KAFKA_TOPIC_ANALYSIS", "call.analysis"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid integer, using default")
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid boolean, using default")
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration, using default")
		return def
	}
	return d
}

// envOrDefaultList splits a comma-separated value, dropping empty entries.
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
