package transcript

import (
	"strings"
	"testing"

	"call-assist-service/internal/models"
)

func final(speaker, text string) models.Token {
	return models.Token{Text: text, Speaker: speaker, IsFinal: true}
}

func provisional(speaker, text string) models.Token {
	return models.Token{Text: text, Speaker: speaker}
}

func TestAssembler_SpeakerChangeSeals(t *testing.T) {
	a := New()

	a.Apply([]models.Token{final("1", "Hello ")})
	a.Apply([]models.Token{final("1", "there")})
	res := a.Apply([]models.Token{final("2", " sir")})

	sealed := a.Sealed()
	if len(sealed) != 1 {
		t.Fatalf("expected 1 sealed block, got %d", len(sealed))
	}
	if sealed[0].Speaker != "1" || sealed[0].Text != "Hello there" {
		t.Errorf("unexpected sealed block %+v", sealed[0])
	}
	if open := a.Open(); open.Speaker != "2" || open.Text != " sir" {
		t.Errorf("unexpected open block %+v", open)
	}
	if len(res.Sealed) != 1 || res.FirstSealedIndex != 0 {
		t.Errorf("expected batch to report one sealed block at 0, got %+v", res)
	}
	if got := Line(a.Open()); got != "Speaker 2: sir" {
		t.Errorf("expected trimmed display line, got %q", got)
	}
}

func TestAssembler_AdjacentSealedBlocksAlternate(t *testing.T) {
	batches := [][]models.Token{
		{final("1", "a"), final("1", " b"), final("2", "c")},
		{final("2", " d"), final("1", "e"), final("2", "f"), final("2", " g")},
		{final("1", "h")},
		{final("1", " i"), final("2", "j")},
	}

	a := New()
	var all []models.Token
	for _, b := range batches {
		a.Apply(b)
		all = append(all, b...)
	}
	a.Finalize()

	sealed := a.Sealed()
	for i := 1; i < len(sealed); i++ {
		if sealed[i].Speaker == sealed[i-1].Speaker {
			t.Errorf("blocks %d and %d share speaker %s", i-1, i, sealed[i].Speaker)
		}
	}

	var joined strings.Builder
	for _, b := range sealed {
		joined.WriteString(b.Text)
	}
	var tokens strings.Builder
	for _, tok := range all {
		tokens.WriteString(tok.Text)
	}
	if joined.String() != tokens.String() {
		t.Errorf("expected block text %q to reproduce token text %q", joined.String(), tokens.String())
	}
}

func TestAssembler_ProvisionalReplacedEachMessage(t *testing.T) {
	a := New()

	a.Apply([]models.Token{provisional("1", "I want"), provisional("1", " to")})
	p, ok := a.Provisional()
	if !ok || p.Text != "I want to" || !p.IsProvisional {
		t.Fatalf("unexpected provisional block %+v", p)
	}

	res := a.Apply([]models.Token{final("1", "I want to"), provisional("2", "ok")})
	p, _ = a.Provisional()
	if p.Text != "ok" || p.Speaker != "2" {
		t.Errorf("expected provisional replaced by this message only, got %+v", p)
	}
	if !res.ProvisionalChanged {
		t.Error("expected provisional change to be reported")
	}

	a.Apply([]models.Token{final("1", " cancel")})
	if _, ok := a.Provisional(); ok {
		t.Error("expected provisional cleared by a message with no non-final tokens")
	}
}

func TestAssembler_ViewOrder(t *testing.T) {
	a := New()
	a.Apply([]models.Token{final("1", "Hi"), final("2", "Hello"), provisional("2", " how")})

	view := a.View()
	if len(view) != 3 {
		t.Fatalf("expected 3 blocks in view, got %d", len(view))
	}
	if view[0].IsProvisional || view[1].IsProvisional || !view[2].IsProvisional {
		t.Errorf("expected only the last block provisional: %+v", view)
	}

	for _, b := range a.Finalized() {
		if b.IsProvisional {
			t.Error("finalized transcript must not contain provisional text")
		}
	}
}

func TestAssembler_Finalize(t *testing.T) {
	a := New()
	if _, ok := a.Finalize(); ok {
		t.Error("expected nothing to seal on empty assembler")
	}

	a.Apply([]models.Token{final("1", "bye"), provisional("1", " now")})
	b, ok := a.Finalize()
	if !ok || b.Text != "bye" {
		t.Errorf("expected open block sealed, got %+v", b)
	}
	if _, ok := a.Provisional(); ok {
		t.Error("expected provisional dropped on finalize")
	}
	if a.SealedCount() != 1 {
		t.Errorf("expected 1 sealed block, got %d", a.SealedCount())
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{" word", " word"},
		{"two  spaces", "two spaces"},
		{"tab\there", "tab here"},
		{"<end>", ""},
		{"done<fin>", "done"},
		{" a \n b ", " a b "},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAssembler_MarkerTokensIgnored(t *testing.T) {
	a := New()
	a.Apply([]models.Token{final("1", "Hello"), final("2", "<end>")})

	if a.SealedCount() != 0 {
		t.Error("expected control marker not to seal the open block")
	}
	if a.Open().Text != "Hello" {
		t.Errorf("unexpected open text %q", a.Open().Text)
	}
}

func TestFormat(t *testing.T) {
	got := Format([]models.TranscriptBlock{{Speaker: "1", Text: "Hi "}, {Speaker: "2", Text: " Hello"}})
	want := "Speaker 1: Hi\nSpeaker 2: Hello\n"
	if got != want {
		t.Errorf("Format = %q, want %q", got, want)
	}
}
