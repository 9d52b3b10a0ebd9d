package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"call-assist-service/internal/config"
	"call-assist-service/internal/observability/logging"
	"call-assist-service/internal/observability/metrics"
	"call-assist-service/internal/schema"
	"call-assist-service/internal/service/analysis"
	"call-assist-service/internal/service/analysis/httpapi"
	"call-assist-service/internal/service/analysis/llm"
	analysismock "call-assist-service/internal/service/analysis/mock"
	"call-assist-service/internal/service/capture"
	"call-assist-service/internal/service/credential"
	"call-assist-service/internal/service/livecall"
	"call-assist-service/internal/service/session"
	"call-assist-service/internal/service/stt"
	"call-assist-service/internal/service/stt/google"
	sttmock "call-assist-service/internal/service/stt/mock"
	"call-assist-service/internal/service/stt/realtime"
	"call-assist-service/internal/service/trigger"
)

// mockFramesPerStep paces the scripted STT stream: one step per second of 100ms frames.
const mockFramesPerStep = 10

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Calls       *livecall.Manager
}

// New constructs the application and its call manager from the provided configuration.
// onChange receives every session view, typically for the events websocket hub.
func New(cfg *config.Configuration, publisher livecall.EventPublisher, onChange func(session.View)) (*Application, error) {
	a := &Application{Cfg: cfg}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	newAdapter, err := NewAdapterFactory(cfg)
	if err != nil {
		return nil, err
	}
	analyzer, err := NewAnalyzer(cfg)
	if err != nil {
		return nil, err
	}

	a.Calls = livecall.NewManager(livecall.PipelineConfig{
		Session:    SessionConfig(cfg),
		Capture:    capture.Config{TargetRate: cfg.Capture.TargetRateHz, FrameBytes: cfg.Capture.FrameBytes, QueueFrames: cfg.Capture.QueueFrames},
		NewAdapter: newAdapter,
		Dispatcher: analysis.NewDispatcher(analyzer, cfg.Analysis.Timeout, metrics.DefaultMetrics),
		Publisher:  publisher,
		OnChange:   onChange,
	}, 0)

	appLogger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("analysisProvider", cfg.Analysis.Provider).
		Msg("Call assist service application created")
	return a, nil
}

// setupLogger configures zerolog for the service. ZEROLOG_LOG_LEVEL overrides the
// configured level and ENV=dev switches to console output.
func (a *Application) setupLogger() {
	lc := logging.DefaultConfig()
	lc.Level = a.Cfg.Observability.LogLevel
	lc.Format = a.Cfg.Observability.LogFormat
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(envLevel)); err == nil {
			lc.Level = strings.ToLower(envLevel)
		}
	}
	if os.Getenv("ENV") == "dev" {
		lc.Format = "console"
	}
	logging.Init(lc)

	a.Logger = logging.WithComponent("application")
	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// SessionConfig maps configuration onto per-call session settings.
func SessionConfig(cfg *config.Configuration) session.Config {
	return session.Config{
		Trigger: trigger.Config{
			MinChars:    cfg.Trigger.MinChars,
			MinSpeakers: cfg.Trigger.MinSpeakers,
			MinTurns:    cfg.Trigger.MinTurns,
		},
		Merger: analysis.NewNoteMerger(analysis.NoteLimits{
			Information: cfg.Analysis.InformationLimit,
			Problems:    cfg.Analysis.ProblemLimit,
			Requests:    cfg.Analysis.RequestLimit,
			Concerns:    cfg.Analysis.ConcernLimit,
		}, cfg.Analysis.DedupMinLength, cfg.Analysis.NotePrefixes),
		RecentSentiments: cfg.Analysis.RecentSentiment,
		MinClipBytes:     cfg.Analysis.MinClipBytes,
		MaxClipBytes:     cfg.Analysis.MaxClipBytes,
		SampleRate:       cfg.Capture.TargetRateHz,
	}
}

// NewAdapterFactory returns the STT adapter constructor for the configured provider.
func NewAdapterFactory(cfg *config.Configuration) (livecall.AdapterFactory, error) {
	switch cfg.STT.Provider {
	case "mock":
		return func(context.Context, string) (stt.Adapter, error) {
			return sttmock.New(sttmock.DefaultScript, mockFramesPerStep), nil
		}, nil

	case "realtime":
		creds := credential.NewClient(cfg.STT.CredentialURL)
		rc := realtime.Config{
			URL:         cfg.STT.URL,
			Model:       cfg.STT.Model,
			AudioFormat: cfg.STT.AudioFormat,
			SampleRate:  cfg.Capture.TargetRateHz,
			Channels:    1,
		}
		return func(_ context.Context, callID string) (stt.Adapter, error) {
			return realtime.New(rc, creds, callID), nil
		}, nil

	case "google":
		gc := google.DefaultConfig()
		gc.LanguageCode = cfg.STT.LanguageCode
		gc.SampleRateHz = int32(cfg.Capture.TargetRateHz)
		return func(ctx context.Context, callID string) (stt.Adapter, error) {
			a, err := google.New(ctx, gc, callID)
			if err != nil {
				return nil, fmt.Errorf("create speech client: %w", err)
			}
			return a, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown STT provider %q", cfg.STT.Provider)
}

// NewAnalyzer returns the analysis backend for the configured provider.
func NewAnalyzer(cfg *config.Configuration) (analysis.Analyzer, error) {
	switch cfg.Analysis.Provider {
	case "mock":
		return analysismock.New(0), nil

	case "http":
		hc := httpapi.DefaultConfig(cfg.Analysis.BaseURL)
		if cfg.Analysis.Timeout > 0 {
			hc.Timeout = cfg.Analysis.Timeout
		}
		return httpapi.New(hc, schema.New()), nil

	case "openai":
		if cfg.Analysis.OpenAIKey == "" {
			return nil, fmt.Errorf("analysis provider openai requires OPENAI_API_KEY")
		}
		return llm.New(llm.Config{
			APIKey:  cfg.Analysis.OpenAIKey,
			BaseURL: cfg.Analysis.OpenAIBaseURL,
			Model:   cfg.Analysis.OpenAIModel,
		}, schema.New()), nil
	}
	return nil, fmt.Errorf("unknown analysis provider %q", cfg.Analysis.Provider)
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Call assist service starting")

	return nil
}

// Shutdown stops live calls and waits for in-flight analysis, bounded by ctx.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Int("liveCalls", a.Calls.Live()).Msg("Call assist service shutting down")
	return a.Calls.Shutdown(ctx)
}
