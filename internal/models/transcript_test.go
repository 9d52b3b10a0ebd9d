package models

import (
	"encoding/json"
	"testing"
)

func TestToken_UnmarshalSpeaker(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"string", `{"text":"Hello ","speaker":"1","is_final":true}`, "1", false},
		{"number", `{"text":"Hello ","speaker":1,"is_final":true}`, "1", false},
		{"missing", `{"text":"Hello ","is_final":true}`, "", false},
		{"null", `{"text":"Hello ","speaker":null}`, "", false},
		{"bool", `{"text":"Hello ","speaker":true}`, "", true},
	}

	for _, tt := range tests {
		var tok Token
		err := json.Unmarshal([]byte(tt.input), &tok)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if tok.Speaker != tt.want {
			t.Errorf("%s: speaker = %q, want %q", tt.name, tok.Speaker, tt.want)
		}
		if tok.Text != "Hello " {
			t.Errorf("%s: text = %q", tt.name, tok.Text)
		}
	}
}

func TestToken_UnmarshalKeepsTimings(t *testing.T) {
	var tok Token
	if err := json.Unmarshal([]byte(`{"text":"hi","speaker":2,"is_final":true,"start_ms":100,"end_ms":400}`), &tok); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !tok.IsFinal || tok.StartMs == nil || *tok.StartMs != 100 || tok.EndMs == nil || *tok.EndMs != 400 {
		t.Errorf("unexpected token %+v", tok)
	}
}
