package google

import (
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/protobuf/types/known/durationpb"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.LanguageCode)
	}
	if cfg.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.SampleRateHz)
	}
	if !cfg.InterimResults {
		t.Error("expected interim results enabled by default")
	}
	if cfg.AudioEncoding != "LINEAR16" {
		t.Errorf("expected default encoding 'LINEAR16', got %s", cfg.AudioEncoding)
	}
	if cfg.MinSpeakers != 2 || cfg.MaxSpeakers != 2 {
		t.Errorf("expected two-party diarization, got %d..%d", cfg.MinSpeakers, cfg.MaxSpeakers)
	}
}

func TestParseAudioEncoding(t *testing.T) {
	tests := []struct {
		input    string
		expected speechpb.RecognitionConfig_AudioEncoding
	}{
		{"LINEAR16", speechpb.RecognitionConfig_LINEAR16},
		{"MULAW", speechpb.RecognitionConfig_MULAW},
		{"FLAC", speechpb.RecognitionConfig_FLAC},
		{"AMR", speechpb.RecognitionConfig_AMR},
		{"AMR_WB", speechpb.RecognitionConfig_AMR_WB},
		{"OGG_OPUS", speechpb.RecognitionConfig_OGG_OPUS},
		{"SPEEX_WITH_HEADER_BYTE", speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE},
		{"WEBM_OPUS", speechpb.RecognitionConfig_WEBM_OPUS},
		{"linear16", speechpb.RecognitionConfig_LINEAR16},
		{"invalid", speechpb.RecognitionConfig_LINEAR16},
		{"", speechpb.RecognitionConfig_LINEAR16},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseAudioEncoding(tt.input)
			if got != tt.expected {
				t.Errorf("parseAudioEncoding(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func word(text string, tag int32, startMs, endMs int64) *speechpb.WordInfo {
	return &speechpb.WordInfo{
		Word:       text,
		SpeakerTag: tag,
		StartTime:  durationpb.New(time.Duration(startMs) * time.Millisecond),
		EndTime:    durationpb.New(time.Duration(endMs) * time.Millisecond),
	}
}

func result(final bool, transcript string, words ...*speechpb.WordInfo) *speechpb.StreamingRecognitionResult {
	return &speechpb.StreamingRecognitionResult{
		IsFinal: final,
		Alternatives: []*speechpb.SpeechRecognitionAlternative{
			{Transcript: transcript, Words: words},
		},
	}
}

func TestTokensFromResponse_Interim(t *testing.T) {
	a := &Adapter{lastSpeaker: "1"}

	tokens := a.tokensFromResponse(&speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{result(false, "hello the")},
	})

	if len(tokens) != 1 {
		t.Fatalf("expected 1 token, got %d", len(tokens))
	}
	if tokens[0].IsFinal || tokens[0].Text != "hello the" || tokens[0].Speaker != "1" {
		t.Errorf("unexpected interim token %+v", tokens[0])
	}
}

func TestTokensFromResponse_DiarizedFinals(t *testing.T) {
	a := &Adapter{lastSpeaker: "1"}

	first := a.tokensFromResponse(&speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			result(true, "hello there", word("hello", 1, 0, 300), word("there", 1, 300, 600)),
		},
	})
	if len(first) != 2 || first[0].Text != "hello" || first[1].Text != " there" {
		t.Fatalf("unexpected first batch %+v", first)
	}
	if *first[1].StartMs != 300 || *first[1].EndMs != 600 {
		t.Errorf("unexpected offsets %d..%d", *first[1].StartMs, *first[1].EndMs)
	}

	// diarized results repeat earlier words; only the tail is new
	second := a.tokensFromResponse(&speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			result(true, "hello there hi",
				word("hello", 1, 0, 300), word("there", 1, 300, 600), word("hi", 2, 700, 900)),
		},
	})
	if len(second) != 1 {
		t.Fatalf("expected 1 new token, got %d", len(second))
	}
	if second[0].Speaker != "2" || second[0].Text != " hi" || !second[0].IsFinal {
		t.Errorf("unexpected token %+v", second[0])
	}
	if a.lastSpeaker != "2" {
		t.Errorf("expected last speaker 2, got %s", a.lastSpeaker)
	}
}

func TestTokensFromResponse_FinalWithoutWords(t *testing.T) {
	a := &Adapter{lastSpeaker: "2"}

	tokens := a.tokensFromResponse(&speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			result(true, "okay"),
			{IsFinal: true},
		},
	})
	if len(tokens) != 1 || !tokens[0].IsFinal || tokens[0].Speaker != "2" {
		t.Errorf("unexpected tokens %+v", tokens)
	}
}
