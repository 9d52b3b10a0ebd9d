// Package models defines the data structures shared across the live-call pipeline.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Token is a single unit of recognized speech from the STT stream.
// Non-final tokens are provisional and may be superseded by the next message.
type Token struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
	IsFinal bool   `json:"is_final"`
	StartMs *int64 `json:"start_ms,omitempty"`
	EndMs   *int64 `json:"end_ms,omitempty"`
}

// UnmarshalJSON accepts the speaker label as a JSON string or number.
func (t *Token) UnmarshalJSON(data []byte) error {
	type wire Token
	var aux struct {
		wire
		Speaker json.RawMessage `json:"speaker"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	speaker, err := speakerLabel(aux.Speaker)
	if err != nil {
		return err
	}
	*t = Token(aux.wire)
	t.Speaker = speaker
	return nil
}

func speakerLabel(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("speaker: %w", err)
	}
	return n.String(), nil
}

// TranscriptBlock is one speaker turn in the assembled transcript.
type TranscriptBlock struct {
	Speaker       string `json:"speaker"`
	Text          string `json:"text"`
	IsProvisional bool   `json:"isProvisional,omitempty"`
}

// TranscriptEvent is published whenever the provisional tail changes or a block is sealed.
type TranscriptEvent struct {
	EventType  string          `json:"eventType"`
	CallID     string          `json:"callId"`
	BlockIndex int             `json:"blockIndex"`
	Block      TranscriptBlock `json:"block"`
	Timestamp  int64           `json:"timestamp"`
}
