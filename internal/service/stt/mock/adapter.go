// Package mock provides a scripted STT adapter for running without provider credentials.
// It replays a two-speaker conversation: each utterance is first streamed as
// provisional tokens, then finalized on a later audio frame.
package mock

import (
	"context"
	"strings"
	"sync"

	"call-assist-service/internal/models"
	"call-assist-service/internal/service/stt"
)

// wordMs is the simulated duration of one word.
const wordMs = 300

// Utterance is one scripted turn.
type Utterance struct {
	Speaker string
	Text    string
}

// DefaultScript is a short support call between an agent (1) and a customer (2).
var DefaultScript = []Utterance{
	{Speaker: "1", Text: "Thanks for calling, this is Dana. How can I help you today?"},
	{Speaker: "2", Text: "Hi, I was charged twice for my subscription this month."},
	{Speaker: "1", Text: "I'm sorry about that. Can I have the email on the account?"},
	{Speaker: "2", Text: "It's jordan at example dot com. I've been waiting for a refund for a week."},
	{Speaker: "1", Text: "I can see the duplicate charge. I'll start the refund right now."},
	{Speaker: "2", Text: "Okay, how long will that take? I really need the money back."},
	{Speaker: "1", Text: "It should post in three to five business days."},
	{Speaker: "2", Text: "Fine, thank you for sorting it out."},
}

// Adapter implements stt.Adapter with scripted responses.
type Adapter struct {
	script        []Utterance
	framesPerStep int

	mu          sync.Mutex
	cb          stt.Callback
	out         chan []models.Token
	done        chan struct{}
	frames      int
	pos         int
	provisional bool // current utterance has been streamed provisionally
	clockMs     int64
	closed      bool
}

// New creates a mock adapter that advances the script every framesPerStep audio frames.
// A nil script uses DefaultScript.
func New(script []Utterance, framesPerStep int) *Adapter {
	if len(script) == 0 {
		script = DefaultScript
	}
	if framesPerStep < 1 {
		framesPerStep = 1
	}
	return &Adapter{script: script, framesPerStep: framesPerStep}
}

// Name implements stt.Adapter.
func (a *Adapter) Name() string { return "mock" }

// Start begins delivering token batches to cb from a single goroutine.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cb = cb
	a.out = make(chan []models.Token, 64)
	a.done = make(chan struct{})

	go func(out <-chan []models.Token, done chan<- struct{}) {
		defer close(done)
		for batch := range out {
			cb.OnTokens(batch)
		}
	}(a.out, a.done)
	return nil
}

// SendAudio counts the frame and emits the next scripted batch when a step is due.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return stt.ErrStreamClosed
	}

	a.frames++
	if a.frames%a.framesPerStep != 0 {
		return nil
	}
	if batch := a.nextBatch(); batch != nil {
		a.out <- batch
	}
	return nil
}

// Close finalizes any provisional utterance and waits for delivery to finish.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	if a.out == nil {
		a.mu.Unlock()
		return nil
	}
	if a.provisional {
		a.out <- a.nextBatch()
	}
	close(a.out)
	done := a.done
	a.mu.Unlock()

	<-done
	return nil
}

// nextBatch advances the script by one step. Caller holds mu.
func (a *Adapter) nextBatch() []models.Token {
	if a.pos >= len(a.script) {
		return nil
	}
	u := a.script[a.pos]
	words := strings.Fields(u.Text)

	if !a.provisional {
		a.provisional = true
		half := (len(words) + 1) / 2
		return tokens(u.Speaker, words[:half], false, nil)
	}

	a.provisional = false
	a.pos++
	return tokens(u.Speaker, words, true, &a.clockMs)
}

// tokens builds one token per word; words after the first carry a leading space.
// Final tokens are stamped from clock, which is advanced.
func tokens(speaker string, words []string, final bool, clock *int64) []models.Token {
	out := make([]models.Token, 0, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		tok := models.Token{Text: w, Speaker: speaker, IsFinal: final}
		if clock != nil {
			start, end := *clock, *clock+wordMs
			tok.StartMs, tok.EndMs = &start, &end
			*clock = end
		}
		out = append(out, tok)
	}
	return out
}
