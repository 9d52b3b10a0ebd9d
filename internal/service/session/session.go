package session

import (
	"fmt"
	"sync"
	"time"

	"call-assist-service/internal/models"
	"call-assist-service/internal/service/analysis"
	"call-assist-service/internal/service/capture"
	"call-assist-service/internal/service/report"
	"call-assist-service/internal/service/transcript"
	"call-assist-service/internal/service/trigger"
)

// Config controls triggers, clip capture and note merging for a call.
type Config struct {
	Trigger trigger.Config
	Merger  *analysis.NoteMerger

	// RecentSentiments is how many of the latest sentiment labels go into a context request.
	RecentSentiments int

	// Audio collected since the last tone trigger is sent as a WAV clip once it
	// reaches MinClipBytes. Zero disables clips. The buffer never exceeds MaxClipBytes.
	MinClipBytes int
	MaxClipBytes int
	SampleRate   int
}

// PassState is the per-pass indicator shown next to each panel.
type PassState struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// CallSession is the state of one call. All mutation goes through its mutex.
type CallSession struct {
	id        string
	cfg       Config
	startedAt time.Time
	lifecycle *Lifecycle

	mu        sync.Mutex
	liveAt    time.Time
	endedAt   time.Time
	banner    string
	muted     bool
	assembler *transcript.Assembler
	engine    *trigger.Engine
	clip      []byte

	seq        uint64
	version    uint64 // bumped on every View so consumers can order them
	applied    map[string]uint64 // last snapshot seq merged per replace-wholesale pass
	inflight   map[string]int
	passErrors map[string]string

	sentiments []models.SentimentResult
	notes      models.Notes
	coaching   []string
	solutions  []string
}

// New creates a session in IDLE state with empty transcript and fresh trigger counters.
func New(id string, cfg Config) *CallSession {
	if cfg.Merger == nil {
		cfg.Merger = analysis.NewNoteMerger(analysis.DefaultNoteLimits(), 3, nil)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = capture.DefaultTargetRate
	}
	return &CallSession{
		id:         id,
		cfg:        cfg,
		startedAt:  time.Now().UTC(),
		lifecycle:  NewLifecycle(),
		assembler:  transcript.New(),
		engine:     trigger.New(cfg.Trigger),
		applied:    make(map[string]uint64),
		inflight:   make(map[string]int),
		passErrors: make(map[string]string),
	}
}

// ID returns the call ID.
func (s *CallSession) ID() string { return s.id }

// Status returns the current lifecycle status.
func (s *CallSession) Status() Status { return s.lifecycle.State() }

// IsLive reports whether audio should be streamed.
func (s *CallSession) IsLive() bool { return s.lifecycle.IsLive() }

// Connect moves the call to CONNECTING and clears any banner.
func (s *CallSession) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lifecycle.Connect(); err != nil {
		return err
	}
	s.banner = ""
	return nil
}

// Connected moves the call to LIVE.
func (s *CallSession) Connected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lifecycle.Connected(); err != nil {
		return err
	}
	s.liveAt = time.Now()
	s.endedAt = time.Time{}
	return nil
}

// Fail records a fatal error and shows banner. When the call was live the open block is
// sealed so it stays in the report, and the live duration is returned.
func (s *CallSession) Fail(banner string) (Status, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.lifecycle.Fail()
	if err != nil {
		return prev, 0, err
	}
	s.banner = banner
	var live time.Duration
	if prev == StatusLive {
		s.assembler.Finalize()
		s.endedAt = time.Now()
		live = s.endedAt.Sub(s.liveAt)
		s.clip = nil
	}
	return prev, live, nil
}

// SetMuted records the mute toggle for display.
func (s *CallSession) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

// AddAudio appends a sent frame to the tone clip buffer.
func (s *CallSession) AddAudio(frame []byte) {
	if s.cfg.MinClipBytes <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clip = append(s.clip, frame...)
	if limit := s.cfg.MaxClipBytes; limit > 0 && len(s.clip) > limit {
		over := len(s.clip) - limit
		over += over % 2 // keep sample alignment
		s.clip = append(s.clip[:0], s.clip[over:]...)
	}
}

// Update reports what one STT message changed.
type Update struct {
	transcript.Result
	Provisional *models.TranscriptBlock
	Snapshot    *analysis.Snapshot
}

// ApplyTokens merges one STT message and returns the snapshot to dispatch, if a trigger
// fired. Messages that arrive outside LIVE are ignored.
func (s *CallSession) ApplyTokens(tokens []models.Token) (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.IsLive() {
		return Update{}, false
	}

	u := Update{Result: s.assembler.Apply(tokens)}
	if p, ok := s.assembler.Provisional(); ok {
		u.Provisional = &p
	}
	u.Snapshot = s.snapshot(s.engine.Observe(s.assembler.Sealed()))
	return u, true
}

// Stop seals the open block, flushes the trigger buffer and returns the call to IDLE.
// The returned snapshot covers whatever the flush fired and may be nil.
func (s *CallSession) Stop() (*analysis.Snapshot, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.lifecycle.State(); st != StatusLive {
		return nil, 0, fmt.Errorf("%w: stop from %s", ErrInvalidTransition, st)
	}

	s.assembler.Finalize()
	sealed := s.assembler.Sealed()
	d := s.engine.Observe(sealed)
	if d.Tone == nil {
		d.Tone = s.engine.Flush(sealed)
	}
	snap := s.snapshot(d)

	if err := s.lifecycle.Stop(); err != nil {
		return nil, 0, err
	}
	s.endedAt = time.Now()
	s.clip = nil
	return snap, s.endedAt.Sub(s.liveAt), nil
}

// snapshot captures everything the fired passes need by value. Callers hold mu.
func (s *CallSession) snapshot(d trigger.Decision) *analysis.Snapshot {
	if d.Tone == nil && !d.Context {
		return nil
	}
	s.seq++
	snap := &analysis.Snapshot{CallID: s.id, Seq: s.seq}

	if d.Tone != nil {
		snap.Tone = &analysis.ToneJob{
			Window:           d.Tone.Text,
			Clip:             s.takeClip(),
			InsertAfterIndex: d.Tone.InsertAfterIndex,
		}
		s.inflight[analysis.PassTone]++
	}

	if d.Context {
		snap.Context = &analysis.ContextRequest{
			Transcript:        transcript.Format(s.assembler.Finalized()),
			Notes:             s.notes.Clone(),
			RecentSentiments:  s.recentSentiments(),
			PreviousCoaching:  append([]string{}, s.coaching...),
			PreviousSolutions: append([]string{}, s.solutions...),
		}
		s.inflight[analysis.PassCoaching]++
		s.inflight[analysis.PassSolutions]++
		s.inflight[analysis.PassNotes]++
	}
	return snap
}

// takeClip returns the buffered audio as WAV when long enough. The buffer restarts either way.
func (s *CallSession) takeClip() []byte {
	pcm := s.clip
	s.clip = nil
	if s.cfg.MinClipBytes <= 0 || len(pcm) < s.cfg.MinClipBytes {
		return nil
	}
	return capture.EncodeWAV(pcm, s.cfg.SampleRate)
}

func (s *CallSession) recentSentiments() []string {
	n := s.cfg.RecentSentiments
	if n <= 0 || n > len(s.sentiments) {
		n = len(s.sentiments)
	}
	out := make([]string, 0, n)
	for _, r := range s.sentiments[len(s.sentiments)-n:] {
		out = append(out, r.Sentiment)
	}
	return out
}

// Complete merges one pass outcome and returns the event describing it. Outcomes are
// merged whatever the current status, so results that land after stop still count.
func (s *CallSession) Complete(out analysis.Outcome) (models.AnalysisEvent, analysis.MergeStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight[out.Pass] > 0 {
		s.inflight[out.Pass]--
	}
	ev := models.AnalysisEvent{
		EventType: "call.analysis." + out.Pass,
		CallID:    s.id,
		Pass:      out.Pass,
		Timestamp: time.Now().UnixMilli(),
	}
	var stats analysis.MergeStats

	if out.Err != nil {
		s.passErrors[out.Pass] = analysis.FriendlyError(out.Err)
		ev.Error = s.passErrors[out.Pass]
		return ev, stats
	}
	delete(s.passErrors, out.Pass)

	switch out.Pass {
	case analysis.PassTone:
		if out.Sentiment != nil {
			s.sentiments = append(s.sentiments, *out.Sentiment)
			r := *out.Sentiment
			ev.Sentiment = &r
		}
	case analysis.PassCoaching:
		if out.List != nil && s.newer(out) {
			s.coaching = analysis.ReplaceList(out.List)
		}
		ev.Coaching = append([]string{}, s.coaching...)
	case analysis.PassSolutions:
		if out.List != nil && s.newer(out) {
			s.solutions = analysis.ReplaceList(out.List)
		}
		ev.Solutions = append([]string{}, s.solutions...)
	case analysis.PassNotes:
		s.notes, stats = s.cfg.Merger.Merge(s.notes, out.Notes)
		notes := s.notes.Clone()
		ev.Notes = &notes
	}
	return ev, stats
}

// newer reports whether out comes from a snapshot at least as recent as the last one applied.
func (s *CallSession) newer(out analysis.Outcome) bool {
	if out.Seq < s.applied[out.Pass] {
		return false
	}
	s.applied[out.Pass] = out.Seq
	return true
}

// View is the display state of a call.
type View struct {
	ID         string                   `json:"id"`
	Version    uint64                   `json:"version"`
	Status     Status                   `json:"status"`
	Banner     string                   `json:"banner,omitempty"`
	Muted      bool                     `json:"muted"`
	StartedAt  time.Time                `json:"startedAt"`
	EndedAt    *time.Time               `json:"endedAt,omitempty"`
	Blocks     []models.TranscriptBlock `json:"blocks"`
	Sentiments []report.TimelineEntry   `json:"sentiments"`
	Notes      models.Notes             `json:"notes"`
	Coaching   []string                 `json:"coaching"`
	Solutions  []string                 `json:"solutions"`
	Passes     map[string]PassState     `json:"passes"`
}

// View returns a deep copy of the display state.
func (s *CallSession) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	v := View{
		ID:         s.id,
		Version:    s.version,
		Status:     s.lifecycle.State(),
		Banner:     s.banner,
		Muted:      s.muted,
		StartedAt:  s.startedAt,
		Blocks:     s.assembler.View(),
		Sentiments: report.Timeline(s.sentiments),
		Notes:      s.notes.Clone(),
		Coaching:   append([]string{}, s.coaching...),
		Solutions:  append([]string{}, s.solutions...),
		Passes:     make(map[string]PassState, len(analysis.Passes)),
	}
	if !s.endedAt.IsZero() {
		ended := s.endedAt.UTC()
		v.EndedAt = &ended
	}
	for _, p := range analysis.Passes {
		v.Passes[p] = PassState{Loading: s.inflight[p] > 0, Error: s.passErrors[p]}
	}
	return v
}

// Report returns the accumulated state for export. Provisional text is left out.
func (s *CallSession) Report() report.Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	return report.Report{
		CallID:     s.id,
		StartedAt:  s.startedAt,
		Blocks:     s.assembler.Finalized(),
		Notes:      s.notes.Clone(),
		Coaching:   append([]string{}, s.coaching...),
		Solutions:  append([]string{}, s.solutions...),
		Sentiments: append([]models.SentimentResult{}, s.sentiments...),
	}
}
