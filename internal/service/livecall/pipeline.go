// Package livecall runs the live-call pipeline: audio in, STT stream, transcript,
// triggers, analysis dispatch and event publishing for each call.
package livecall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"call-assist-service/internal/events"
	"call-assist-service/internal/models"
	"call-assist-service/internal/observability/logging"
	"call-assist-service/internal/observability/metrics"
	"call-assist-service/internal/service/analysis"
	"call-assist-service/internal/service/capture"
	"call-assist-service/internal/service/report"
	"call-assist-service/internal/service/session"
	"call-assist-service/internal/service/stt"
)

// ErrNotLive is returned when audio is attached to a call that is not streaming.
var ErrNotLive = errors.New("call is not live")

// Fatal error reasons, used as metrics labels.
const (
	reasonHandshake  = "handshake"
	reasonStream     = "stream"
	reasonPermission = "permission"
)

// AdapterFactory opens a new STT adapter for a call. It is called on start and on every retry.
type AdapterFactory func(ctx context.Context, callID string) (stt.Adapter, error)

// EventPublisher publishes transcript and analysis events.
type EventPublisher interface {
	PublishTranscript(ctx context.Context, eventType, callID string, event any) error
	PublishAnalysis(ctx context.Context, callID string, event any) error
}

// Pipeline drives one call. It implements stt.Callback for the STT stream and
// analysis.Sink for dispatched passes; all call state lives in the session.
type Pipeline struct {
	session    *session.CallSession
	newAdapter AdapterFactory
	dispatcher *analysis.Dispatcher
	publisher  EventPublisher
	capture    *capture.Capture
	onChange   func(session.View)
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	// baseCtx outlives the call so stopping does not cancel in-flight analysis.
	baseCtx context.Context

	// opMu serializes start, retry, stop and fatal errors.
	opMu sync.Mutex

	mu          sync.Mutex
	adapter     stt.Adapter
	stopCapture context.CancelFunc
}

// PipelineConfig holds the collaborators of a pipeline.
type PipelineConfig struct {
	Session    session.Config
	Capture    capture.Config
	NewAdapter AdapterFactory
	Dispatcher *analysis.Dispatcher
	Publisher  EventPublisher
	// OnChange receives the session view after every change. Optional.
	OnChange func(session.View)
	// BaseCtx bounds analysis requests. Defaults to context.Background().
	BaseCtx context.Context
}

// NewPipeline creates a pipeline for a call in IDLE state.
func NewPipeline(callID string, cfg PipelineConfig) *Pipeline {
	logger := logging.WithCall(callID)
	if cfg.BaseCtx == nil {
		cfg.BaseCtx = context.Background()
	}
	if cfg.OnChange == nil {
		cfg.OnChange = func(session.View) {}
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.New(nil)
	}
	return &Pipeline{
		session:    session.New(callID, cfg.Session),
		newAdapter: cfg.NewAdapter,
		dispatcher: cfg.Dispatcher,
		publisher:  cfg.Publisher,
		capture:    capture.New(cfg.Capture, logger),
		onChange:   cfg.OnChange,
		metrics:    metrics.DefaultMetrics,
		logger:     logger,
		baseCtx:    cfg.BaseCtx,
	}
}

// ID returns the call ID.
func (p *Pipeline) ID() string { return p.session.ID() }

// Status returns the call status.
func (p *Pipeline) Status() session.Status { return p.session.Status() }

// View returns the display state.
func (p *Pipeline) View() session.View { return p.session.View() }

// Report returns the accumulated call state for export.
func (p *Pipeline) Report() report.Report { return p.session.Report() }

// Start fetches a credential, opens the STT stream and moves the call to LIVE.
// On failure the call moves to ERROR and the error is returned.
func (p *Pipeline) Start(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if err := p.session.Connect(); err != nil {
		return err
	}
	p.changed()

	// The stream outlives the request that started it; Close ends it.
	streamCtx := context.WithoutCancel(ctx)
	adapter, err := p.newAdapter(streamCtx, p.ID())
	if err == nil {
		err = adapter.Start(streamCtx, p)
	}
	if err != nil {
		p.failLocked(err, reasonHandshake)
		return fmt.Errorf("start call: %w", err)
	}

	p.mu.Lock()
	p.adapter = adapter
	p.mu.Unlock()

	if err := p.session.Connected(); err != nil {
		_ = adapter.Close()
		return err
	}
	p.metrics.RecordCallStart()
	p.logger.Info().Str("sttProvider", adapter.Name()).Msg("Call live")
	p.changed()
	return nil
}

// Retry restarts a call after a failed handshake.
func (p *Pipeline) Retry(ctx context.Context) error {
	if st := p.Status(); st != session.StatusError {
		return fmt.Errorf("%w: retry from %s", session.ErrInvalidTransition, st)
	}
	return p.Start(ctx)
}

// Attach streams src into the call until the source ends, the call stops, or ctx is done.
// A permission failure from the source ends the call.
func (p *Pipeline) Attach(ctx context.Context, src capture.Source) error {
	if !p.session.IsLive() {
		_ = src.Close()
		return ErrNotLive
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	if p.stopCapture != nil {
		p.stopCapture()
	}
	p.stopCapture = cancel
	p.mu.Unlock()

	p.logger.Info().Int("sampleRate", src.SampleRate()).Msg("Audio source attached")
	err := p.capture.Run(ctx, src, p.sendFrame)
	if errors.Is(err, capture.ErrPermissionDenied) {
		p.fail(err, reasonPermission)
	}
	return err
}

func (p *Pipeline) sendFrame(ctx context.Context, frame []byte) error {
	if !p.session.IsLive() {
		p.metrics.RecordFrameDropped("not_live")
		return nil
	}
	p.mu.Lock()
	adapter := p.adapter
	p.mu.Unlock()

	if err := adapter.SendAudio(ctx, frame); err != nil {
		if errors.Is(err, stt.ErrStreamClosed) {
			p.metrics.RecordFrameDropped("closed")
			return nil
		}
		return err
	}
	p.session.AddAudio(frame)
	p.metrics.RecordAudioSent(len(frame))
	return nil
}

// SetMuted stops or resumes sending audio without ending the call.
func (p *Pipeline) SetMuted(muted bool) {
	p.capture.SetMuted(muted)
	p.session.SetMuted(muted)
	p.logger.Info().Bool("muted", muted).Msg("Mute toggled")
	p.changed()
}

// Stop ends a live call: capture stops, the stream is closed with the end-of-audio
// terminator so trailing tokens land, then the transcript and trigger buffer are flushed.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if st := p.Status(); st != session.StatusLive {
		return fmt.Errorf("%w: stop from %s", session.ErrInvalidTransition, st)
	}

	p.mu.Lock()
	if p.stopCapture != nil {
		p.stopCapture()
		p.stopCapture = nil
	}
	adapter := p.adapter
	p.mu.Unlock()

	if adapter != nil {
		if err := adapter.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Error closing STT stream")
		}
	}

	snap, live, err := p.session.Stop()
	if err != nil {
		// The stream failed while closing and already ended the call.
		return err
	}
	p.metrics.RecordCallEnd(live.Seconds())
	if snap != nil {
		p.dispatch(*snap)
	}
	p.logger.Info().Dur("duration", live).Msg("Call stopped")
	p.changed()
	return nil
}

// --- stt.Callback implementation ---

// OnTokens applies one STT message, publishes transcript changes and dispatches any trigger.
func (p *Pipeline) OnTokens(tokens []models.Token) {
	final := 0
	for _, t := range tokens {
		if t.IsFinal {
			final++
		}
	}
	p.metrics.RecordTokens(final, len(tokens)-final)

	u, ok := p.session.ApplyTokens(tokens)
	if !ok {
		p.logger.Debug().Int("tokens", len(tokens)).Msg("Tokens ignored, call not live")
		return
	}

	now := time.Now().UnixMilli()
	for i, b := range u.Sealed {
		p.publishTranscript(events.EventTranscriptSealed, models.TranscriptEvent{
			EventType:  events.EventTranscriptSealed,
			CallID:     p.ID(),
			BlockIndex: u.FirstSealedIndex + i,
			Block:      b,
			Timestamp:  now,
		})
	}
	if len(u.Sealed) > 0 {
		p.metrics.RecordBlocksSealed(len(u.Sealed))
	}
	if u.ProvisionalChanged && u.Provisional != nil {
		p.publishTranscript(events.EventTranscriptProvisional, models.TranscriptEvent{
			EventType:  events.EventTranscriptProvisional,
			CallID:     p.ID(),
			BlockIndex: -1,
			Block:      *u.Provisional,
			Timestamp:  now,
		})
	}

	if u.Snapshot != nil {
		p.dispatch(*u.Snapshot)
	}
	p.changed()
}

// OnError ends the call. The stream has already failed, so it is released asynchronously.
func (p *Pipeline) OnError(err error) {
	p.fail(err, reasonStream)
}

// --- analysis.Sink implementation ---

// Complete merges one pass outcome into the call and publishes it.
func (p *Pipeline) Complete(out analysis.Outcome) {
	ev, stats := p.session.Complete(out)

	for _, category := range []string{
		analysis.CategoryInformation,
		analysis.CategoryProblems,
		analysis.CategoryRequests,
		analysis.CategoryConcerns,
	} {
		p.metrics.RecordNotes(category, stats.Added[category], stats.Duplicates[category])
		if n := stats.Duplicates[category]; n > 0 {
			p.logger.Debug().Str("category", category).Int("duplicates", n).Msg("Duplicate notes dropped")
		}
	}

	if err := p.publisher.PublishAnalysis(p.baseCtx, p.ID(), ev); err != nil {
		p.logger.Warn().Err(err).Str("pass", out.Pass).Msg("Failed to publish analysis event")
	}
	p.changed()
}

func (p *Pipeline) dispatch(snap analysis.Snapshot) {
	if snap.Tone != nil {
		p.metrics.RecordTrigger("tone")
	}
	if snap.Context != nil {
		p.metrics.RecordTrigger("context")
	}
	p.dispatcher.Dispatch(p.baseCtx, snap, p)
}

func (p *Pipeline) fail(err error, reason string) {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.failLocked(err, reason)
}

// failLocked records a fatal session error. Callers hold opMu.
func (p *Pipeline) failLocked(err error, reason string) {
	prev, live, ferr := p.session.Fail(banner(reason, err))
	if ferr != nil {
		p.logger.Debug().Err(err).Str("reason", reason).Msg("Error after call ended, ignored")
		return
	}

	p.logger.Error().Err(err).Str("reason", reason).Str("previousState", prev.String()).Msg("Call failed")
	p.metrics.RecordCallFailed(reason)

	p.mu.Lock()
	adapter := p.adapter
	if p.stopCapture != nil {
		p.stopCapture()
		p.stopCapture = nil
	}
	p.mu.Unlock()

	if adapter != nil && reason == reasonStream {
		p.metrics.RecordSTTError(adapter.Name(), reason)
	}
	if prev == session.StatusLive {
		p.metrics.RecordCallEnd(live.Seconds())
		if adapter != nil {
			// OnError runs on the adapter's read loop; closing inline would wait on itself.
			go func() { _ = adapter.Close() }()
		}
	}
	p.changed()
}

// banner is the single user-visible message for a fatal error.
func banner(reason string, err error) string {
	switch reason {
	case reasonPermission:
		return "Microphone access was denied. Allow access and start a new call."
	case reasonHandshake:
		return "Could not connect to transcription: " + err.Error()
	default:
		return "Transcription stopped: " + err.Error()
	}
}

func (p *Pipeline) publishTranscript(eventType string, ev models.TranscriptEvent) {
	if err := p.publisher.PublishTranscript(p.baseCtx, eventType, p.ID(), ev); err != nil {
		p.logger.Warn().Err(err).Str("eventType", eventType).Msg("Failed to publish transcript event")
	}
}

func (p *Pipeline) changed() {
	p.onChange(p.session.View())
}
