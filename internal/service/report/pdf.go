package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"call-assist-service/internal/models"
	"call-assist-service/internal/service/transcript"
)

// Page geometry in millimetres.
const (
	margin       = 15.0
	lineHeight   = 5.5
	headingSize  = 14.0
	bodySize     = 10.5
	sectionGap   = 4.0
	barMaxWidth  = 50.0
	barHeight    = 3.0
	documentFont = "Helvetica"
)

// Report is the accumulated state of one call.
type Report struct {
	CallID     string
	StartedAt  time.Time
	Blocks     []models.TranscriptBlock
	Notes      models.Notes
	Coaching   []string
	Solutions  []string
	Sentiments []models.SentimentResult
}

// Text renders the plain-text transcript export.
func Text(blocks []models.TranscriptBlock) string {
	return transcript.Format(blocks)
}

// layout tracks the cursor and starts a new page when the next element does not fit.
type layout struct {
	pdf   *fpdf.Fpdf
	tr    func(string) string
	width float64
	limit float64
}

func newLayout() *layout {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pageW, pageH := pdf.GetPageSize()
	return &layout{
		pdf:   pdf,
		tr:    pdf.UnicodeTranslatorFromDescriptor(""),
		width: pageW - 2*margin,
		limit: pageH - margin,
	}
}

// ensure starts a new page unless h millimetres remain.
func (l *layout) ensure(h float64) {
	if l.pdf.GetY()+h > l.limit {
		l.pdf.AddPage()
	}
}

func (l *layout) heading(text string) {
	l.ensure(lineHeight*2 + sectionGap)
	l.pdf.Ln(sectionGap)
	l.pdf.SetFont(documentFont, "B", headingSize)
	l.pdf.Cell(l.width, lineHeight*1.5, l.tr(text))
	l.pdf.Ln(lineHeight * 1.5)
	l.pdf.SetFont(documentFont, "", bodySize)
}

// paragraph wraps text to the content width, breaking pages between lines.
func (l *layout) paragraph(text string, indent float64) {
	lines := l.pdf.SplitText(l.tr(text), l.width-indent)
	for _, line := range lines {
		l.ensure(lineHeight)
		l.pdf.SetX(margin + indent)
		l.pdf.Cell(l.width-indent, lineHeight, line)
		l.pdf.Ln(lineHeight)
	}
}

func (l *layout) list(title string, items []string) {
	l.pdf.SetFont(documentFont, "B", bodySize)
	l.ensure(lineHeight * 2)
	l.pdf.Cell(l.width, lineHeight, l.tr(title))
	l.pdf.Ln(lineHeight)
	l.pdf.SetFont(documentFont, "", bodySize)
	if len(items) == 0 {
		l.paragraph("(none)", 4)
		return
	}
	for _, item := range items {
		l.paragraph("- "+item, 4)
	}
}

// WritePDF renders the paginated report and returns the page count.
func WritePDF(w io.Writer, r Report) (int, error) {
	l := newLayout()
	l.pdf.SetTitle("Call report "+r.CallID, true)
	l.pdf.SetCreationDate(r.StartedAt)
	l.pdf.AddPage()

	l.pdf.SetFont(documentFont, "B", headingSize+4)
	l.pdf.Cell(l.width, lineHeight*2, l.tr("Call Report"))
	l.pdf.Ln(lineHeight * 2)
	l.pdf.SetFont(documentFont, "", bodySize)
	l.paragraph(fmt.Sprintf("Call %s", r.CallID), 0)
	if !r.StartedAt.IsZero() {
		l.paragraph("Started "+r.StartedAt.UTC().Format(time.RFC1123), 0)
	}

	l.heading("Transcript")
	if len(r.Blocks) == 0 {
		l.paragraph("(no speech recognized)", 0)
	}
	for _, b := range r.Blocks {
		l.paragraph(transcript.Line(b), 0)
	}

	l.heading("Notes")
	l.list("Information", r.Notes.Information)
	l.list("Problems", r.Notes.Problems)
	l.list("Requests", r.Notes.Requests)
	l.list("Concerns", r.Notes.Concerns)

	l.heading("Coaching & Solutions")
	l.list("Coaching", r.Coaching)
	l.list("Solutions", r.Solutions)

	l.heading("Sentiment Timeline")
	if len(r.Sentiments) == 0 {
		l.paragraph("(no sentiment judgments)", 0)
	}
	for i, e := range Timeline(r.Sentiments) {
		l.sentiment(i+1, e)
	}

	pages := l.pdf.PageNo()
	if err := l.pdf.Output(w); err != nil {
		return 0, fmt.Errorf("render pdf: %w", err)
	}
	return pages, nil
}

func (l *layout) sentiment(n int, e TimelineEntry) {
	l.ensure(lineHeight*2 + barHeight)
	l.pdf.SetFont(documentFont, "B", bodySize)
	label := fmt.Sprintf("#%d  %s  (score %+.2f, blocks %d-%d)", n, strings.TrimSpace(e.Sentiment), e.Score, e.Range.Start+1, e.Range.End+1)
	l.pdf.Cell(l.width, lineHeight, l.tr(label))
	l.pdf.Ln(lineHeight)

	y := l.pdf.GetY()
	l.pdf.SetDrawColor(160, 160, 160)
	l.pdf.Rect(margin, y, barMaxWidth, barHeight, "D")
	l.pdf.SetFillColor(barColor(e.Bar))
	if e.Bar > 0 {
		l.pdf.Rect(margin, y, barMaxWidth*float64(e.Bar)/100, barHeight, "F")
	}
	l.pdf.Ln(barHeight + 1)

	l.pdf.SetFont(documentFont, "", bodySize)
	if e.Excerpt != "" {
		l.paragraph(e.Excerpt, 4)
	}
}

// barColor runs from red at 0 to green at 100.
func barColor(bar int) (int, int, int) {
	return 255 * (100 - bar) / 100, 200 * bar / 100, 60
}
