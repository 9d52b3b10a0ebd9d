package livecall

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"call-assist-service/internal/events"
	"call-assist-service/internal/models"
	"call-assist-service/internal/service/analysis"
	"call-assist-service/internal/service/analysis/mock"
	"call-assist-service/internal/service/capture"
	"call-assist-service/internal/service/session"
	"call-assist-service/internal/service/stt"
)

// fakeAdapter records frames and lets tests drive the callback.
type fakeAdapter struct {
	mu       sync.Mutex
	startErr error
	cb       stt.Callback
	frames   [][]byte
	closed   bool
	// onClose runs before Close returns, as trailing tokens would.
	onClose func(cb stt.Callback)
}

func (f *fakeAdapter) Start(_ context.Context, cb stt.Callback) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) SendAudio(_ context.Context, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return stt.ErrStreamClosed
	}
	f.frames = append(f.frames, append([]byte(nil), audio...))
	return nil
}

func (f *fakeAdapter) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	cb := f.cb
	f.mu.Unlock()
	if f.onClose != nil && cb != nil {
		f.onClose(cb)
	}
	return nil
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) frameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func (f *fakeAdapter) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakePublisher records published events.
type fakePublisher struct {
	mu         sync.Mutex
	transcript []models.TranscriptEvent
	analysis   []models.AnalysisEvent
}

func (p *fakePublisher) PublishTranscript(_ context.Context, _, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcript = append(p.transcript, event.(models.TranscriptEvent))
	return nil
}

func (p *fakePublisher) PublishAnalysis(_ context.Context, _ string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analysis = append(p.analysis, event.(models.AnalysisEvent))
	return nil
}

func (p *fakePublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.transcript {
		if ev.EventType == eventType {
			n++
		}
	}
	return n
}

// sliceSource yields fixed blocks, then end.
type sliceSource struct {
	rate   int
	blocks [][]float32
	end    error
}

func (s *sliceSource) SampleRate() int { return s.rate }

func (s *sliceSource) Read(context.Context) ([]float32, error) {
	if len(s.blocks) == 0 {
		return nil, s.end
	}
	b := s.blocks[0]
	s.blocks = s.blocks[1:]
	return b, nil
}

func (s *sliceSource) Close() error { return nil }

func tone(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

type harness struct {
	pipeline   *Pipeline
	publisher  *fakePublisher
	dispatcher *analysis.Dispatcher
	adapters   []*fakeAdapter
	views      chan session.View
}

// newHarness builds a pipeline whose factory hands out adapters in order.
func newHarness(t *testing.T, adapters ...*fakeAdapter) *harness {
	t.Helper()
	h := &harness{
		publisher:  &fakePublisher{},
		dispatcher: analysis.NewDispatcher(mock.New(0), time.Second, nil),
		adapters:   adapters,
		views:      make(chan session.View, 256),
	}
	next := 0
	h.pipeline = NewPipeline("call-1", PipelineConfig{
		NewAdapter: func(context.Context, string) (stt.Adapter, error) {
			if next >= len(h.adapters) {
				return nil, errors.New("no adapter")
			}
			a := h.adapters[next]
			next++
			return a, nil
		},
		Dispatcher: h.dispatcher,
		Publisher:  h.publisher,
		OnChange: func(v session.View) {
			select {
			case h.views <- v:
			default:
			}
		},
	})
	return h
}

func final(speaker, text string) []models.Token {
	return []models.Token{{Text: text, Speaker: speaker, IsFinal: true}}
}

var refundCall = [][]models.Token{
	final("1", "Thanks for calling, how can I help?"),
	final("2", "I was charged twice for my subscription."),
	final("1", "I'm sorry about that, let me check."),
	final("2", "I want a refund please."),
	final("1", "I can do that now."),
}

func TestPipeline_Start(t *testing.T) {
	h := newHarness(t, &fakeAdapter{})

	if err := h.pipeline.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.pipeline.Status() != session.StatusLive {
		t.Errorf("expected live, got %v", h.pipeline.Status())
	}
	if len(h.views) == 0 {
		t.Error("expected view updates")
	}
}

func TestPipeline_HandshakeFailureThenRetry(t *testing.T) {
	h := newHarness(t, &fakeAdapter{startErr: errors.New("401 unauthorized")}, &fakeAdapter{})

	err := h.pipeline.Start(context.Background())
	if err == nil {
		t.Fatal("expected handshake error")
	}
	v := h.pipeline.View()
	if v.Status != session.StatusError {
		t.Errorf("expected error status, got %v", v.Status)
	}
	if !strings.Contains(v.Banner, "Could not connect") {
		t.Errorf("unexpected banner %q", v.Banner)
	}

	if err := h.pipeline.Retry(context.Background()); err != nil {
		t.Fatalf("retry: unexpected error: %v", err)
	}
	if h.pipeline.Status() != session.StatusLive {
		t.Errorf("expected live after retry, got %v", h.pipeline.Status())
	}
	if err := h.pipeline.Retry(context.Background()); !errors.Is(err, session.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition retrying a live call, got %v", err)
	}
}

func TestPipeline_TokensPublishAndDispatch(t *testing.T) {
	h := newHarness(t, &fakeAdapter{})
	_ = h.pipeline.Start(context.Background())

	for _, msg := range refundCall {
		h.pipeline.OnTokens(msg)
	}
	h.pipeline.OnTokens([]models.Token{{Text: "Thank", Speaker: "2"}})
	h.dispatcher.Wait()

	if n := h.publisher.count(events.EventTranscriptSealed); n != 4 {
		t.Errorf("expected 4 sealed events, got %d", n)
	}
	if n := h.publisher.count(events.EventTranscriptProvisional); n != 1 {
		t.Errorf("expected 1 provisional event, got %d", n)
	}

	v := h.pipeline.View()
	if len(v.Sentiments) != 1 {
		t.Errorf("expected one sentiment result, got %+v", v.Sentiments)
	}
	if len(v.Notes.Problems) == 0 || len(v.Notes.Requests) == 0 {
		t.Errorf("expected problem and request notes, got %+v", v.Notes)
	}
	if len(v.Solutions) == 0 || len(v.Coaching) == 0 {
		t.Errorf("expected coaching and solutions, got %v / %v", v.Coaching, v.Solutions)
	}
	for pass, st := range v.Passes {
		if st.Loading || st.Error != "" {
			t.Errorf("pass %s not settled: %+v", pass, st)
		}
	}
	h.publisher.mu.Lock()
	defer h.publisher.mu.Unlock()
	if len(h.publisher.analysis) == 0 {
		t.Error("expected analysis events")
	}
}

func TestPipeline_StopFlushesTrailingTokens(t *testing.T) {
	adapter := &fakeAdapter{onClose: func(cb stt.Callback) {
		cb.OnTokens(final("1", " Are you there?"))
	}}
	h := newHarness(t, adapter)
	_ = h.pipeline.Start(context.Background())
	h.pipeline.OnTokens(final("1", "Thanks for calling, how can I help you today?"))

	if err := h.pipeline.Stop(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.dispatcher.Wait()

	if !adapter.isClosed() {
		t.Error("expected stream closed")
	}
	r := h.pipeline.Report()
	if len(r.Blocks) != 1 || !strings.HasSuffix(r.Blocks[0].Text, "Are you there?") {
		t.Errorf("expected trailing tokens in the report, got %+v", r.Blocks)
	}
	v := h.pipeline.View()
	if v.Status != session.StatusIdle {
		t.Errorf("expected idle, got %v", v.Status)
	}
	if len(v.Sentiments) != 1 {
		t.Errorf("expected the flushed window to be judged, got %+v", v.Sentiments)
	}
	if err := h.pipeline.Stop(context.Background()); !errors.Is(err, session.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPipeline_AttachStreamsAudio(t *testing.T) {
	adapter := &fakeAdapter{}
	h := newHarness(t, adapter)
	_ = h.pipeline.Start(context.Background())

	src := &sliceSource{rate: 16000, blocks: [][]float32{tone(1600, 0.1), tone(1600, 0.1)}, end: io.EOF}
	if err := h.pipeline.Attach(context.Background(), src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := adapter.frameCount(); n != 2 {
		t.Errorf("expected 2 frames, got %d", n)
	}
}

func TestPipeline_AttachRequiresLive(t *testing.T) {
	h := newHarness(t)

	err := h.pipeline.Attach(context.Background(), &sliceSource{rate: 16000, end: io.EOF})
	if !errors.Is(err, ErrNotLive) {
		t.Errorf("expected ErrNotLive, got %v", err)
	}
}

func TestPipeline_MutedDropsFrames(t *testing.T) {
	adapter := &fakeAdapter{}
	h := newHarness(t, adapter)
	_ = h.pipeline.Start(context.Background())
	h.pipeline.SetMuted(true)

	src := &sliceSource{rate: 16000, blocks: [][]float32{tone(1600, 0.1)}, end: io.EOF}
	_ = h.pipeline.Attach(context.Background(), src)

	if n := adapter.frameCount(); n != 0 {
		t.Errorf("expected no frames while muted, got %d", n)
	}
	if !h.pipeline.View().Muted {
		t.Error("expected muted view")
	}
	if h.pipeline.Status() != session.StatusLive {
		t.Error("expected mute to keep the call live")
	}
}

func TestPipeline_PermissionDeniedEndsCall(t *testing.T) {
	h := newHarness(t, &fakeAdapter{})
	_ = h.pipeline.Start(context.Background())

	err := h.pipeline.Attach(context.Background(), &sliceSource{rate: 48000, end: capture.ErrPermissionDenied})
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	v := h.pipeline.View()
	if v.Status != session.StatusIdle {
		t.Errorf("expected idle, got %v", v.Status)
	}
	if !strings.Contains(v.Banner, "Microphone") {
		t.Errorf("unexpected banner %q", v.Banner)
	}
}

func TestPipeline_StreamErrorEndsCall(t *testing.T) {
	h := newHarness(t, &fakeAdapter{})
	_ = h.pipeline.Start(context.Background())
	h.pipeline.OnTokens(final("1", "Hello"))

	h.pipeline.OnError(errors.New("connection reset"))

	v := h.pipeline.View()
	if v.Status != session.StatusIdle {
		t.Errorf("expected idle, got %v", v.Status)
	}
	if v.Banner != "Transcription stopped: connection reset" {
		t.Errorf("unexpected banner %q", v.Banner)
	}

	// Late tokens from the failed stream are ignored.
	h.pipeline.OnTokens(final("2", "anyone?"))
	if got := h.pipeline.Report().Blocks; len(got) != 1 {
		t.Errorf("expected one block, got %+v", got)
	}
}
