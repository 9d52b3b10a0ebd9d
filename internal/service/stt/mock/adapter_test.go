package mock

import (
	"context"
	"strings"
	"sync"
	"testing"

	"call-assist-service/internal/models"
	"call-assist-service/internal/service/stt"
)

// testCallback implements stt.Callback for testing
type testCallback struct {
	mu      sync.Mutex
	batches [][]models.Token
	errors  []error
}

func (c *testCallback) OnTokens(tokens []models.Token) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, tokens)
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func finalText(batches [][]models.Token) map[string]string {
	out := map[string]string{}
	for _, b := range batches {
		for _, tok := range b {
			if tok.IsFinal {
				out[tok.Speaker] += tok.Text + "|"
			}
		}
	}
	return out
}

var shortScript = []Utterance{
	{Speaker: "1", Text: "hello there caller"},
	{Speaker: "2", Text: "hi I need help"},
}

func TestAdapter_ProvisionalThenFinal(t *testing.T) {
	adapter := New(shortScript, 1)
	cb := &testCallback{}
	if err := adapter.Start(context.Background(), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 4; i++ {
		if err := adapter.SendAudio(context.Background(), make([]byte, 3200)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	adapter.Close()

	if len(cb.batches) != 4 {
		t.Fatalf("expected 4 batches, got %d", len(cb.batches))
	}

	first := cb.batches[0]
	if len(first) != 2 || first[0].IsFinal || first[0].Text != "hello" || first[1].Text != " there" {
		t.Errorf("unexpected provisional batch %+v", first)
	}

	second := cb.batches[1]
	if len(second) != 3 || !second[2].IsFinal || second[2].Text != " caller" {
		t.Errorf("unexpected final batch %+v", second)
	}
	if second[0].StartMs == nil || *second[0].StartMs != 0 || *second[2].EndMs != 3*wordMs {
		t.Errorf("expected contiguous timestamps on final tokens, got %+v", second)
	}

	if cb.batches[2][0].Speaker != "2" || cb.batches[3][0].Speaker != "2" {
		t.Error("expected second utterance from speaker 2")
	}
}

func TestAdapter_CloseFinalizesProvisional(t *testing.T) {
	adapter := New(shortScript, 1)
	cb := &testCallback{}
	adapter.Start(context.Background(), cb)

	adapter.SendAudio(context.Background(), []byte("audio"))
	adapter.Close()

	if len(cb.batches) != 2 {
		t.Fatalf("expected provisional and final batches, got %d", len(cb.batches))
	}
	last := cb.batches[1]
	for _, tok := range last {
		if !tok.IsFinal {
			t.Errorf("expected final token after close, got %+v", tok)
		}
	}
}

func TestAdapter_FramesPerStep(t *testing.T) {
	adapter := New(shortScript, 5)
	cb := &testCallback{}
	adapter.Start(context.Background(), cb)

	for i := 0; i < 9; i++ {
		adapter.SendAudio(context.Background(), []byte("audio"))
	}
	adapter.Close()

	// one provisional step at frame 5, then the final from Close
	if len(cb.batches) != 2 {
		t.Errorf("expected 2 batches, got %d", len(cb.batches))
	}
}

func TestAdapter_ScriptExhausted(t *testing.T) {
	adapter := New(shortScript, 1)
	cb := &testCallback{}
	adapter.Start(context.Background(), cb)

	for i := 0; i < 10; i++ {
		adapter.SendAudio(context.Background(), []byte("audio"))
	}
	adapter.Close()

	finals := finalText(cb.batches)
	if got := strings.ReplaceAll(finals["1"], "|", ""); got != "hello there caller" {
		t.Errorf("unexpected speaker 1 text %q", got)
	}
	if got := strings.ReplaceAll(finals["2"], "|", ""); got != "hi I need help" {
		t.Errorf("unexpected speaker 2 text %q", got)
	}
}

func TestAdapter_SendAfterClose(t *testing.T) {
	adapter := New(nil, 1)
	adapter.Start(context.Background(), &testCallback{})
	adapter.Close()

	if err := adapter.SendAudio(context.Background(), []byte("audio")); err != stt.ErrStreamClosed {
		t.Errorf("expected ErrStreamClosed, got %v", err)
	}
	if err := adapter.Close(); err != nil {
		t.Errorf("expected idempotent close, got %v", err)
	}
}

func TestAdapter_NoCallbackSet(t *testing.T) {
	adapter := New(nil, 1)

	if err := adapter.SendAudio(context.Background(), []byte("audio")); err != stt.ErrStreamClosed {
		t.Errorf("expected ErrStreamClosed before Start, got %v", err)
	}
	if err := adapter.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDefaultScript(t *testing.T) {
	speakers := map[string]bool{}
	for i, u := range DefaultScript {
		if strings.TrimSpace(u.Text) == "" {
			t.Errorf("utterance %d has empty text", i)
		}
		speakers[u.Speaker] = true
	}
	if len(speakers) != 2 {
		t.Errorf("expected two speakers, got %d", len(speakers))
	}
}

func TestAdapter_ThreadSafety(t *testing.T) {
	adapter := New(nil, 1)
	adapter.Start(context.Background(), &testCallback{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				adapter.SendAudio(context.Background(), []byte("audio"))
			}
		}()
	}
	wg.Wait()
	adapter.Close()
}
