// Package transcript assembles STT token batches into speaker-attributed blocks.
package transcript

import (
	"fmt"
	"regexp"
	"strings"

	"call-assist-service/internal/models"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	markers    = strings.NewReplacer("<end>", "", "<fin>", "")
)

// Clean strips stream control markers and collapses whitespace runs to one space.
// A leading space marks a word boundary and is kept.
func Clean(text string) string {
	return whitespace.ReplaceAllString(markers.Replace(text), " ")
}

// Result reports what a batch changed.
type Result struct {
	// Sealed holds blocks pushed to history by this batch, in order.
	Sealed []models.TranscriptBlock
	// FirstSealedIndex is the history index of Sealed[0].
	FirstSealedIndex int
	// ProvisionalChanged is set when the provisional tail differs from before.
	ProvisionalChanged bool
}

// Assembler holds the sealed history, the open finalized block and the provisional tail.
// It is not safe for concurrent use; the owning session serializes access.
type Assembler struct {
	sealed      []models.TranscriptBlock
	open        models.TranscriptBlock
	provisional *models.TranscriptBlock
}

// New creates an empty assembler.
func New() *Assembler {
	return &Assembler{}
}

// Apply merges one message's tokens. Final tokens extend the open block, sealing it on a
// speaker change. Non-final tokens replace the provisional tail entirely.
func (a *Assembler) Apply(tokens []models.Token) Result {
	res := Result{FirstSealedIndex: len(a.sealed)}

	var prov strings.Builder
	provSpeaker := ""
	for _, tok := range tokens {
		text := Clean(tok.Text)
		if !tok.IsFinal {
			if provSpeaker == "" {
				provSpeaker = tok.Speaker
			}
			prov.WriteString(text)
			continue
		}
		if text == "" {
			continue
		}
		if tok.Speaker != a.open.Speaker && a.open.Text != "" {
			res.Sealed = append(res.Sealed, a.seal())
		}
		if a.open.Text == "" {
			a.open.Speaker = tok.Speaker
		}
		a.open.Text += text
	}

	var next *models.TranscriptBlock
	if prov.Len() > 0 {
		next = &models.TranscriptBlock{Speaker: provSpeaker, Text: prov.String(), IsProvisional: true}
	}
	res.ProvisionalChanged = !sameBlock(a.provisional, next)
	a.provisional = next
	return res
}

// Finalize seals the open block and drops the provisional tail, as on stream stop.
// It returns the sealed block, if any.
func (a *Assembler) Finalize() (models.TranscriptBlock, bool) {
	a.provisional = nil
	if a.open.Text == "" {
		return models.TranscriptBlock{}, false
	}
	return a.seal(), true
}

func (a *Assembler) seal() models.TranscriptBlock {
	b := a.open
	a.sealed = append(a.sealed, b)
	a.open = models.TranscriptBlock{}
	return b
}

// Sealed returns a copy of the sealed history.
func (a *Assembler) Sealed() []models.TranscriptBlock {
	return append([]models.TranscriptBlock(nil), a.sealed...)
}

// SealedCount returns the number of sealed blocks.
func (a *Assembler) SealedCount() int { return len(a.sealed) }

// Open returns the open finalized block, which may be empty.
func (a *Assembler) Open() models.TranscriptBlock { return a.open }

// Provisional returns the provisional tail, if any.
func (a *Assembler) Provisional() (models.TranscriptBlock, bool) {
	if a.provisional == nil {
		return models.TranscriptBlock{}, false
	}
	return *a.provisional, true
}

// Finalized returns sealed history plus the open block. Provisional text is never included.
func (a *Assembler) Finalized() []models.TranscriptBlock {
	out := a.Sealed()
	if a.open.Text != "" {
		out = append(out, a.open)
	}
	return out
}

// View returns sealed history, the open block and the provisional tail, in display order.
func (a *Assembler) View() []models.TranscriptBlock {
	out := a.Finalized()
	if a.provisional != nil {
		out = append(out, *a.provisional)
	}
	return out
}

// Line renders one block as "Speaker N: text", trimmed for display.
func Line(b models.TranscriptBlock) string {
	return fmt.Sprintf("Speaker %s: %s", b.Speaker, strings.TrimSpace(b.Text))
}

// Format renders blocks one per line.
func Format(blocks []models.TranscriptBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString(Line(b))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func sameBlock(a, b *models.TranscriptBlock) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
