// Package mock provides a deterministic keyword-based analyzer for running without a backend.
package mock

import (
	"context"
	"strings"
	"time"

	"call-assist-service/internal/models"
	"call-assist-service/internal/service/analysis"
)

var (
	negativeWords = []string{"charged twice", "problem", "waiting", "upset", "ridiculous", "frustrat", "cancel", "wrong", "never", "need the money"}
	positiveWords = []string{"thank", "great", "perfect", "appreciate", "fine", "sorting it out", "happy"}
)

// rule maps a transcript keyword to a note or suggestion.
type rule struct {
	keyword string
	text    string
}

var (
	problemRules = []rule{
		{"charged twice", "Customer was charged twice this month"},
		{"duplicate charge", "Duplicate charge on the account"},
		{"lower than expected", "Paycheck lower than expected"},
	}
	requestRules = []rule{
		{"refund", "Customer wants a refund"},
		{"cancel", "Customer wants to cancel"},
	}
	concernRules = []rule{
		{"how long", "Worried about how long the fix will take"},
		{"need the money", "Needs the money back soon"},
	}
	informationRules = []rule{
		{"email", "Customer provided the account email"},
		{"subscription", "Issue concerns the subscription"},
		{"business days", "Refund posts in three to five business days"},
	}
	solutionRules = []rule{
		{"charged twice", "Refund the duplicate charge"},
		{"refund", "Confirm the refund timeline in writing"},
		{"cancel", "Offer a retention discount before cancelling"},
	}
)

// Analyzer implements analysis.Analyzer from keyword matches.
type Analyzer struct {
	// Delay simulates backend latency.
	Delay time.Duration
}

// New creates a mock analyzer.
func New(delay time.Duration) *Analyzer {
	return &Analyzer{Delay: delay}
}

func (a *Analyzer) wait(ctx context.Context) error {
	if a.Delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.Delay):
		return nil
	}
}

// Tone scores positive minus negative keyword hits.
func (a *Analyzer) Tone(ctx context.Context, req analysis.ToneRequest) (analysis.ToneResult, error) {
	if err := a.wait(ctx); err != nil {
		return analysis.ToneResult{}, err
	}
	text := strings.ToLower(req.Text)
	score := 0.0
	for _, w := range positiveWords {
		if strings.Contains(text, w) {
			score += 0.3
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(text, w) {
			score -= 0.3
		}
	}
	score = analysis.ClampScore(score)

	sentiment := "neutral"
	switch {
	case score <= -0.5:
		sentiment = "frustrated"
	case score < 0:
		sentiment = "concerned"
	case score >= 0.5:
		sentiment = "satisfied"
	case score > 0:
		sentiment = "calm"
	}
	return analysis.ToneResult{Score: score, Sentiment: sentiment}, nil
}

// Coaching derives tips from the most recent sentiment.
func (a *Analyzer) Coaching(ctx context.Context, req analysis.ContextRequest) ([]string, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	tips := []string{"Summarize the next steps before ending the call"}
	if n := len(req.RecentSentiments); n > 0 {
		switch req.RecentSentiments[n-1] {
		case "frustrated", "concerned":
			tips = append([]string{"Acknowledge the customer's frustration before offering a fix"}, tips...)
		case "satisfied":
			tips = append([]string{"Confirm the customer is happy with the resolution"}, tips...)
		}
	}
	return tips, nil
}

// Solutions returns every matching solution.
func (a *Analyzer) Solutions(ctx context.Context, req analysis.ContextRequest) ([]string, error) {
	if err := a.wait(ctx); err != nil {
		return nil, err
	}
	return match(req.Transcript, solutionRules), nil
}

// Notes returns every matching note; deduplication is left to the merger.
func (a *Analyzer) Notes(ctx context.Context, req analysis.ContextRequest) (models.Notes, error) {
	if err := a.wait(ctx); err != nil {
		return models.Notes{}, err
	}
	return models.Notes{
		Information: match(req.Transcript, informationRules),
		Problems:    match(req.Transcript, problemRules),
		Requests:    match(req.Transcript, requestRules),
		Concerns:    match(req.Transcript, concernRules),
	}, nil
}

func match(transcript string, rules []rule) []string {
	text := strings.ToLower(transcript)
	out := []string{}
	for _, r := range rules {
		if strings.Contains(text, r.keyword) {
			out = append(out, r.text)
		}
	}
	return out
}
