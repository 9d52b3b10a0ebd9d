// Package analysis fans transcript snapshots out to the tone, coaching, solutions
// and notes passes and merges their results back into call state.
package analysis

import (
	"context"

	"call-assist-service/internal/models"
)

// Pass names, used in logs, metrics and per-pass state.
const (
	PassTone      = "tone"
	PassCoaching  = "coaching"
	PassSolutions = "solutions"
	PassNotes     = "notes"
)

// Passes lists every pass in display order.
var Passes = []string{PassTone, PassCoaching, PassSolutions, PassNotes}

// ToneRequest carries one tone window. Clip, when set, is a WAV file sent instead of Text.
type ToneRequest struct {
	Text string
	Clip []byte
}

// ToneResult is the raw tone judgment.
type ToneResult struct {
	Score     float64 `json:"score"`
	Sentiment string  `json:"sentiment"`
}

// ContextRequest is the whole-call context sent to the coaching, solutions and notes passes.
type ContextRequest struct {
	Transcript        string       `json:"transcript"`
	Notes             models.Notes `json:"notes"`
	RecentSentiments  []string     `json:"recentSentiments"`
	PreviousCoaching  []string     `json:"previousCoaching"`
	PreviousSolutions []string     `json:"previousSolutions"`
}

// Analyzer is the analysis backend. Each method is one independent pass.
// Coaching and Solutions return a nil list when the response carried no usable list;
// the current list is then kept. An empty non-nil list clears it.
type Analyzer interface {
	Tone(ctx context.Context, req ToneRequest) (ToneResult, error)
	Coaching(ctx context.Context, req ContextRequest) ([]string, error)
	Solutions(ctx context.Context, req ContextRequest) ([]string, error)
	Notes(ctx context.Context, req ContextRequest) (models.Notes, error)
}

// Neutral is the fallback for a malformed tone response.
var Neutral = ToneResult{Score: 0, Sentiment: "neutral"}

// ClampScore bounds a score to [-1, 1].
func ClampScore(s float64) float64 {
	switch {
	case s != s:
		return 0
	case s < -1:
		return -1
	case s > 1:
		return 1
	}
	return s
}
