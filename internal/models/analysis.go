package models

// SentimentResult is one tone judgment tied to the sealed-block history.
// InsertAfterIndex is the index of the last sealed block in the judged window.
type SentimentResult struct {
	Score            float64 `json:"score"`
	Sentiment        string  `json:"sentiment"`
	Excerpt          string  `json:"excerpt"`
	InsertAfterIndex int     `json:"insertAfterIndex"`
}

// Notes holds the extracted call notes by category.
type Notes struct {
	Information []string `json:"information"`
	Problems    []string `json:"problems"`
	Requests    []string `json:"requests"`
	Concerns    []string `json:"concerns"`
}

// Clone returns a deep copy of the notes.
func (n Notes) Clone() Notes {
	return Notes{
		Information: append([]string(nil), n.Information...),
		Problems:    append([]string(nil), n.Problems...),
		Requests:    append([]string(nil), n.Requests...),
		Concerns:    append([]string(nil), n.Concerns...),
	}
}

// All returns every note in category order.
func (n Notes) All() []string {
	out := make([]string, 0, len(n.Information)+len(n.Problems)+len(n.Requests)+len(n.Concerns))
	out = append(out, n.Information...)
	out = append(out, n.Problems...)
	out = append(out, n.Requests...)
	return append(out, n.Concerns...)
}

// AnalysisEvent is published after an analysis pass result is merged into a call.
type AnalysisEvent struct {
	EventType string           `json:"eventType"`
	CallID    string           `json:"callId"`
	Pass      string           `json:"pass"`
	Sentiment *SentimentResult `json:"sentiment,omitempty"`
	Notes     *Notes           `json:"notes,omitempty"`
	Coaching  []string         `json:"coaching,omitempty"`
	Solutions []string         `json:"solutions,omitempty"`
	Error     string           `json:"error,omitempty"`
	Timestamp int64            `json:"timestamp"`
}
