package trigger

import (
	"strings"
	"testing"

	"call-assist-service/internal/models"
)

func block(speaker, text string) models.TranscriptBlock {
	return models.TranscriptBlock{Speaker: speaker, Text: text}
}

func TestEngine_FiresOnceWhenBothSpeakersHaveTwoTurns(t *testing.T) {
	e := New(DefaultConfig())
	history := []models.TranscriptBlock{
		block("1", "Hi."),
		block("2", "I have a problem"),
		block("1", "Sure."),
	}

	fires := 0
	for i := 1; i <= len(history); i++ {
		if d := e.Observe(history[:i]); d.Tone != nil {
			fires++
		}
	}
	if fires != 0 {
		t.Fatalf("expected no fire before speaker 2 has two turns, got %d", fires)
	}

	history = append(history, block("2", "with my bill."))
	d := e.Observe(history)
	if d.Tone == nil {
		t.Fatal("expected tone window after both speakers reach two turns")
	}
	if d.Tone.InsertAfterIndex != 3 {
		t.Errorf("expected insertAfterIndex 3, got %d", d.Tone.InsertAfterIndex)
	}
	for _, want := range []string{"Speaker 1: Hi.", "Speaker 2: with my bill."} {
		if !strings.Contains(d.Tone.Text, want) {
			t.Errorf("expected window to contain %q, got %q", want, d.Tone.Text)
		}
	}
	if e.Pending() != "" {
		t.Errorf("expected buffer cleared after fire, got %q", e.Pending())
	}

	if d := e.Observe(history); d.Tone != nil {
		t.Error("expected no second fire without new blocks")
	}
}

func TestEngine_MinChars(t *testing.T) {
	e := New(Config{MinChars: 200, MinSpeakers: 2, MinTurns: 2})
	history := []models.TranscriptBlock{block("1", "a"), block("2", "b"), block("1", "c"), block("2", "d")}

	if d := e.Observe(history); d.Tone != nil {
		t.Error("expected short window not to fire")
	}
	if e.Pending() == "" {
		t.Error("expected text to stay buffered")
	}
}

func TestEngine_WindowsNeverOverlap(t *testing.T) {
	e := New(Config{MinChars: 1, MinSpeakers: 2, MinTurns: 1})
	var history []models.TranscriptBlock
	var windows []string

	for i := 0; i < 8; i++ {
		speaker := "1"
		if i%2 == 1 {
			speaker = "2"
		}
		history = append(history, block(speaker, strings.Repeat("x", i+1)))
		if d := e.Observe(history); d.Tone != nil {
			windows = append(windows, d.Tone.Text)
			if e.Pending() != "" {
				t.Fatal("expected empty buffer immediately after firing")
			}
		}
	}

	if len(windows) != 4 {
		t.Fatalf("expected 4 windows, got %d", len(windows))
	}
	seen := map[string]bool{}
	for _, w := range windows {
		for _, line := range strings.Split(strings.TrimSpace(w), "\n") {
			if seen[line] {
				t.Errorf("line %q appears in more than one window", line)
			}
			seen[line] = true
		}
	}
}

func TestEngine_ContextFiresOnSealedGrowth(t *testing.T) {
	e := New(DefaultConfig())
	history := []models.TranscriptBlock{block("1", "Hi")}

	if d := e.Observe(history); !d.Context {
		t.Error("expected context pass on first sealed block")
	}
	if d := e.Observe(history); d.Context {
		t.Error("expected no context pass without new sealed blocks")
	}
	history = append(history, block("2", "Hello"))
	if d := e.Observe(history); !d.Context {
		t.Error("expected context pass after sealed count grew")
	}
}

func TestEngine_FlushSkipsSpeakerCheck(t *testing.T) {
	e := New(DefaultConfig())
	history := []models.TranscriptBlock{block("1", "This is a long single-speaker monologue.")}
	if d := e.Observe(history); d.Tone != nil {
		t.Fatal("expected no fire with one speaker")
	}

	w := e.Flush(history)
	if w == nil {
		t.Fatal("expected flush to fire on buffered text over the threshold")
	}
	if w.InsertAfterIndex != 0 {
		t.Errorf("expected insertAfterIndex 0, got %d", w.InsertAfterIndex)
	}
	if e.Flush(history) != nil {
		t.Error("expected second flush to find an empty buffer")
	}
}

func TestEngine_FlushBelowThreshold(t *testing.T) {
	e := New(Config{MinChars: 500})
	if w := e.Flush([]models.TranscriptBlock{block("1", "ok")}); w != nil {
		t.Errorf("expected no flush below threshold, got %+v", w)
	}
}
