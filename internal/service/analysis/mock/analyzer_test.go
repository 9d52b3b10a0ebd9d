package mock

import (
	"context"
	"testing"
	"time"

	"call-assist-service/internal/service/analysis"
)

func TestTone(t *testing.T) {
	a := New(0)
	tests := []struct {
		text      string
		sentiment string
	}{
		{"Speaker 2: I was charged twice and I've been waiting a week", "frustrated"},
		{"Speaker 2: thank you, that's great", "satisfied"},
		{"Speaker 1: hello", "neutral"},
	}
	for _, tt := range tests {
		res, err := a.Tone(context.Background(), analysis.ToneRequest{Text: tt.text})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Sentiment != tt.sentiment {
			t.Errorf("Tone(%q) = %+v, want %s", tt.text, res, tt.sentiment)
		}
		if res.Score < -1 || res.Score > 1 {
			t.Errorf("score out of range: %v", res.Score)
		}
	}
}

func TestNotesAndSolutions(t *testing.T) {
	a := New(0)
	req := analysis.ContextRequest{Transcript: "Speaker 2: I was charged twice for my subscription. I want a refund."}

	notes, err := a.Notes(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notes.Problems) != 1 || len(notes.Requests) != 1 || len(notes.Information) != 1 {
		t.Errorf("unexpected notes %+v", notes)
	}

	solutions, _ := a.Solutions(context.Background(), req)
	if len(solutions) != 2 {
		t.Errorf("expected 2 solutions, got %v", solutions)
	}
}

func TestCoaching_FollowsSentiment(t *testing.T) {
	a := New(0)
	tips, _ := a.Coaching(context.Background(), analysis.ContextRequest{RecentSentiments: []string{"calm", "frustrated"}})
	if len(tips) != 2 {
		t.Errorf("expected an empathy tip for frustration, got %v", tips)
	}
}

func TestDelayHonorsContext(t *testing.T) {
	a := New(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Tone(ctx, analysis.ToneRequest{}); err == nil {
		t.Error("expected cancelled context error")
	}
}
