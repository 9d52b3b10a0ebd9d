// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"

	"call-assist-service/internal/models"
	"call-assist-service/internal/observability/logging"
	"call-assist-service/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
	MinSpeakers    int32
	MaxSpeakers    int32
}

// DefaultConfig returns settings for 16 kHz LINEAR16 audio with two-party diarization.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
		MinSpeakers:    2,
		MaxSpeakers:    2,
	}
}

// parseAudioEncoding maps an encoding name to the API enum, defaulting to LINEAR16.
func parseAudioEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	switch name {
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	cfg    Config
	client *speech.Client
	logger zerolog.Logger

	mu     sync.Mutex
	stream speechpb.Speech_StreamingRecognizeClient
	closed bool
	done   chan struct{}

	// words already emitted as final tokens; diarized results repeat earlier words
	emitted     int
	lastSpeaker string
}

// New creates a new Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, cfg Config, callId string) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Adapter{cfg: cfg, client: c, logger: logging.WithStream(callId, "google"), lastSpeaker: "1"}, nil
}

// Name implements stt.Adapter.
func (a *Adapter) Name() string { return "google" }

// Start begins a streaming recognition session, sends the config and starts listening.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz:            a.cfg.SampleRateHz,
					LanguageCode:               a.cfg.LanguageCode,
					EnableWordTimeOffsets:      true,
					EnableAutomaticPunctuation: true,
					DiarizationConfig: &speechpb.SpeakerDiarizationConfig{
						EnableSpeakerDiarization: true,
						MinSpeakerCount:          a.cfg.MinSpeakers,
						MaxSpeakerCount:          a.cfg.MaxSpeakers,
					},
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.stream = stream
	a.done = make(chan struct{})
	a.mu.Unlock()

	go a.listen(stream, cb)
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.stream == nil {
		return stt.ErrStreamClosed
	}
	return a.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Close half-closes the stream, waits for the final results and releases the client.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	stream, done := a.stream, a.done
	a.mu.Unlock()

	if stream != nil {
		if err := stream.CloseSend(); err == nil {
			select {
			case <-done:
			case <-time.After(3 * time.Second):
				a.logger.Warn().Msg("Timed out waiting for final recognition results")
			}
		}
	}
	return a.client.Close()
}

// listen receives responses and invokes callbacks until the stream ends.
func (a *Adapter) listen(stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	defer close(a.done)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			cb.OnError(err)
			return
		}
		if tokens := a.tokensFromResponse(resp); len(tokens) > 0 {
			cb.OnTokens(tokens)
		}
	}
}

// tokensFromResponse converts one response into a token batch. Final results yield one
// final token per newly recognized word; interim results yield one provisional token.
func (a *Adapter) tokensFromResponse(resp *speechpb.StreamingRecognizeResponse) []models.Token {
	var tokens []models.Token
	for _, r := range resp.GetResults() {
		if len(r.GetAlternatives()) == 0 {
			continue
		}
		alt := r.GetAlternatives()[0]

		if !r.GetIsFinal() {
			if alt.GetTranscript() != "" {
				tokens = append(tokens, models.Token{Text: alt.GetTranscript(), Speaker: a.lastSpeaker})
			}
			continue
		}

		words := alt.GetWords()
		if len(words) == 0 {
			if alt.GetTranscript() != "" {
				tokens = append(tokens, models.Token{Text: alt.GetTranscript(), Speaker: a.lastSpeaker, IsFinal: true})
			}
			continue
		}
		start := a.emitted
		if start > len(words) {
			start = 0
		}
		for i, w := range words[start:] {
			text := w.GetWord()
			if i > 0 || len(tokens) > 0 || a.emitted > 0 {
				text = " " + text
			}
			speaker := a.lastSpeaker
			if tag := w.GetSpeakerTag(); tag > 0 {
				speaker = strconv.Itoa(int(tag))
			}
			a.lastSpeaker = speaker
			startMs := w.GetStartTime().AsDuration().Milliseconds()
			endMs := w.GetEndTime().AsDuration().Milliseconds()
			tokens = append(tokens, models.Token{
				Text:    text,
				Speaker: speaker,
				IsFinal: true,
				StartMs: &startMs,
				EndMs:   &endMs,
			})
		}
		a.emitted = len(words)
	}
	return tokens
}
