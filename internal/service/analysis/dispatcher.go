package analysis

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"


	"call-assist-service/internal/models"
	"call-assist-service/internal/observability/logging"
	"call-assist-service/internal/observability/metrics"
)

// excerptRunes bounds the window excerpt stored with a sentiment result.
const excerptRunes = 160

// ToneJob is the tone part of a dispatch snapshot.
type ToneJob struct {
	Window           string
	Clip             []byte
	InsertAfterIndex int
}

// Snapshot is the immutable input to one dispatch. It is captured once per trigger;
// passes never read live call state.
type Snapshot struct {
	CallID string
	// Seq increases with every snapshot of a call. Outcomes carry it back so a late
	// result from an older snapshot never replaces a newer one.
	Seq     uint64
	Tone    *ToneJob
	Context *ContextRequest
}

// Outcome is the result of one pass.
type Outcome struct {
	Pass      string
	Seq       uint64
	Sentiment *models.SentimentResult
	List      []string
	Notes     models.Notes
	Err       error
}

// Sink receives outcomes. Complete may be called concurrently from different passes.
type Sink interface {
	Complete(Outcome)
}

// Dispatcher runs the passes of each snapshot concurrently.
type Dispatcher struct {
	analyzer Analyzer
	timeout  time.Duration
	metrics  *metrics.Metrics

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A zero timeout means no per-pass deadline.
func NewDispatcher(a Analyzer, timeout time.Duration, m *metrics.Metrics) *Dispatcher {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Dispatcher{analyzer: a, timeout: timeout, metrics: m}
}

// Dispatch starts every pass the snapshot asks for and returns without waiting.
// A failing pass does not affect the others.
func (d *Dispatcher) Dispatch(ctx context.Context, snap Snapshot, sink Sink) {
	if snap.Tone != nil {
		job := *snap.Tone
		d.spawn(ctx, snap, PassTone, sink, func(ctx context.Context) Outcome {
			return d.tone(ctx, job)
		})
	}

	if snap.Context != nil {
		req := *snap.Context
		d.spawn(ctx, snap, PassCoaching, sink, func(ctx context.Context) Outcome {
			list, err := d.analyzer.Coaching(ctx, req)
			return Outcome{List: list, Err: err}
		})
		d.spawn(ctx, snap, PassSolutions, sink, func(ctx context.Context) Outcome {
			list, err := d.analyzer.Solutions(ctx, req)
			return Outcome{List: list, Err: err}
		})
		d.spawn(ctx, snap, PassNotes, sink, func(ctx context.Context) Outcome {
			notes, err := d.analyzer.Notes(ctx, req)
			return Outcome{Notes: notes, Err: err}
		})
	}
}

func (d *Dispatcher) spawn(ctx context.Context, snap Snapshot, pass string, sink Sink, call func(context.Context) Outcome) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx, snap, pass, sink, call)
	}()
}

// Wait blocks until every dispatched pass has completed.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, snap Snapshot, pass string, sink Sink, call func(context.Context) Outcome) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	logger := logging.WithPass(snap.CallID, pass)
	start := time.Now()
	out := call(ctx)
	out.Pass = pass
	out.Seq = snap.Seq
	latency := time.Since(start)

	d.metrics.RecordAnalysis(pass, errorKind(out.Err), latency.Seconds())
	if out.Err != nil {
		logger.Warn().Err(out.Err).Dur("latency", latency).Msg("Analysis pass failed")
	} else {
		logger.Debug().Dur("latency", latency).Msg("Analysis pass completed")
	}
	sink.Complete(out)
}

func (d *Dispatcher) tone(ctx context.Context, job ToneJob) Outcome {
	res, err := d.analyzer.Tone(ctx, ToneRequest{Text: job.Window, Clip: job.Clip})
	if err != nil {
		return Outcome{Err: err}
	}
	sentiment := strings.TrimSpace(res.Sentiment)
	if sentiment == "" {
		sentiment = Neutral.Sentiment
	}
	return Outcome{Sentiment: &models.SentimentResult{
		Score:            ClampScore(res.Score),
		Sentiment:        sentiment,
		Excerpt:          Excerpt(job.Window),
		InsertAfterIndex: job.InsertAfterIndex,
	}}
}

// Excerpt shortens window text for display alongside a sentiment result.
func Excerpt(window string) string {
	s := strings.Join(strings.Fields(window), " ")
	if utf8.RuneCountInString(s) <= excerptRunes {
		return s
	}
	r := []rune(s)
	return string(r[:excerptRunes]) + "…"
}
