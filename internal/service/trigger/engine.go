// Package trigger decides when accumulated transcript warrants an analysis pass.
//
// Two triggers run side by side. The tone trigger collects sealed blocks into a
// rolling window and fires once enough speakers have taken enough turns; the
// window is then cleared so consecutive tone windows never overlap. The context
// trigger fires whenever the sealed count grows and always covers the whole call.
package trigger

import (
	"strings"

	"call-assist-service/internal/models"
	"call-assist-service/internal/service/transcript"
)

// Config holds the tone trigger thresholds.
type Config struct {
	MinChars    int
	MinSpeakers int
	MinTurns    int
}

// DefaultConfig returns a 20-character window with two speakers of two turns each.
func DefaultConfig() Config {
	return Config{MinChars: 20, MinSpeakers: 2, MinTurns: 2}
}

// ToneWindow is the text sent to one tone pass.
type ToneWindow struct {
	Text string
	// InsertAfterIndex is the index of the last sealed block covered by the window.
	InsertAfterIndex int
}

// Decision is the outcome of observing the sealed history after one message.
type Decision struct {
	Tone    *ToneWindow
	Context bool
}

// Engine tracks trigger state for one call. Not safe for concurrent use.
type Engine struct {
	cfg Config

	buf   strings.Builder
	turns map[string]int

	seen         int // sealed blocks already added to the window
	contextCount int // sealed count at the last context fire
}

// New creates an engine with zeroed counters.
func New(cfg Config) *Engine {
	if cfg.MinChars <= 0 {
		cfg.MinChars = DefaultConfig().MinChars
	}
	if cfg.MinSpeakers <= 0 {
		cfg.MinSpeakers = DefaultConfig().MinSpeakers
	}
	if cfg.MinTurns <= 0 {
		cfg.MinTurns = DefaultConfig().MinTurns
	}
	return &Engine{cfg: cfg, turns: make(map[string]int)}
}

// Observe adds newly sealed blocks to the tone window and reports which passes should fire.
func (e *Engine) Observe(sealed []models.TranscriptBlock) Decision {
	var d Decision

	e.absorb(sealed)
	if e.toneReady() {
		d.Tone = e.take(len(sealed) - 1)
	}

	if len(sealed) > e.contextCount {
		e.contextCount = len(sealed)
		d.Context = true
	}
	return d
}

// Flush is called on stop, after the final block is sealed. It fires a last tone
// window when the buffer meets the length threshold, without the speaker check.
func (e *Engine) Flush(sealed []models.TranscriptBlock) *ToneWindow {
	e.absorb(sealed)
	if e.buf.Len() < e.cfg.MinChars {
		return nil
	}
	return e.take(len(sealed) - 1)
}

// Pending returns the buffered window text.
func (e *Engine) Pending() string { return e.buf.String() }

func (e *Engine) absorb(sealed []models.TranscriptBlock) {
	if e.seen > len(sealed) {
		e.seen = len(sealed)
	}
	for _, b := range sealed[e.seen:] {
		e.buf.WriteString(transcript.Line(b))
		e.buf.WriteByte('\n')
		e.turns[b.Speaker]++
	}
	e.seen = len(sealed)
}

func (e *Engine) toneReady() bool {
	if e.buf.Len() < e.cfg.MinChars {
		return false
	}
	speakers := 0
	for _, n := range e.turns {
		if n >= e.cfg.MinTurns {
			speakers++
		}
	}
	return speakers >= e.cfg.MinSpeakers
}

func (e *Engine) take(insertAfter int) *ToneWindow {
	w := &ToneWindow{Text: e.buf.String(), InsertAfterIndex: insertAfter}
	e.buf.Reset()
	clear(e.turns)
	return w
}
