// Package realtime provides a websocket STT adapter for token-streaming providers
// with speaker diarization and endpoint detection.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"call-assist-service/internal/models"
	"call-assist-service/internal/observability/logging"
	"call-assist-service/internal/service/credential"
	"call-assist-service/internal/service/stt"
)

// drainTimeout bounds how long Close waits for trailing tokens after the terminator.
const drainTimeout = 3 * time.Second

// CredentialSource yields a short-lived credential for each new stream.
type CredentialSource interface {
	Fetch(ctx context.Context) (credential.Credential, error)
}

// Config holds stream settings sent in the handshake.
type Config struct {
	URL         string
	Model       string
	AudioFormat string
	SampleRate  int
	Channels    int
}

// DefaultConfig returns the 16 kHz mono PCM stream configuration.
func DefaultConfig() Config {
	return Config{
		URL:         "wss://stt-rt.soniox.com/transcribe-websocket",
		Model:       "stt-rt-preview",
		AudioFormat: "pcm_s16le",
		SampleRate:  16000,
		Channels:    1,
	}
}

// handshake is the first text message on the stream.
type handshake struct {
	Credential        string `json:"credential"`
	Model             string `json:"model"`
	AudioFormat       string `json:"audio_format"`
	SampleRate        int    `json:"sample_rate"`
	Channels          int    `json:"channels"`
	Diarization       bool   `json:"diarization"`
	EndpointDetection bool   `json:"endpoint_detection"`
}

// message is one server message: a token batch, an error, or end of stream.
type message struct {
	Tokens       []models.Token `json:"tokens"`
	ErrorCode    int            `json:"error_code,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Finished     bool           `json:"finished,omitempty"`
}

// StreamError is an error-coded message from the provider. It is fatal to the stream.
type StreamError struct {
	Code    int
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stt stream error %d: %s", e.Code, e.Message)
}

// Adapter implements stt.Adapter over a websocket.
type Adapter struct {
	cfg    Config
	creds  CredentialSource
	dialer *websocket.Dialer
	logger zerolog.Logger

	mu     sync.Mutex // guards writes and closed
	conn   *websocket.Conn
	cb     stt.Callback
	closed bool
	done   chan struct{}
}

// New creates a realtime adapter.
func New(cfg Config, creds CredentialSource, callId string) *Adapter {
	return &Adapter{
		cfg:    cfg,
		creds:  creds,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logging.WithStream(callId, "realtime"),
	}
}

// Name implements stt.Adapter.
func (a *Adapter) Name() string { return "realtime" }

// Start fetches a credential, dials the stream, sends the handshake and starts listening.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	cred, err := a.creds.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch credential: %w", err)
	}

	conn, resp, err := a.dialer.DialContext(ctx, a.cfg.URL, http.Header{})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial stt stream: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial stt stream: %w", err)
	}

	hs := handshake{
		Credential:        cred.Value,
		Model:             a.cfg.Model,
		AudioFormat:       a.cfg.AudioFormat,
		SampleRate:        a.cfg.SampleRate,
		Channels:          a.cfg.Channels,
		Diarization:       true,
		EndpointDetection: true,
	}
	if err := conn.WriteJSON(hs); err != nil {
		conn.Close()
		return fmt.Errorf("send stt handshake: %w", err)
	}

	a.mu.Lock()
	a.conn = conn
	a.cb = cb
	a.done = make(chan struct{})
	a.mu.Unlock()

	a.logger.Info().
		Str("model", a.cfg.Model).
		Int("sampleRate", a.cfg.SampleRate).
		Time("credentialExpiresAt", cred.ExpiresAt).
		Msg("STT stream connected")

	go a.listen()
	return nil
}

// SendAudio writes one binary audio frame.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.conn == nil {
		return stt.ErrStreamClosed
	}
	return a.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Close sends the empty terminator, waits briefly for trailing tokens, then closes the socket.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed || a.conn == nil {
		a.closed = true
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	termErr := a.conn.WriteMessage(websocket.BinaryMessage, []byte{})
	conn, done := a.conn, a.done
	a.mu.Unlock()

	if termErr == nil {
		select {
		case <-done:
		case <-time.After(drainTimeout):
			a.logger.Warn().Msg("Timed out waiting for STT stream to finish")
		}
	}
	return conn.Close()
}

func (a *Adapter) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// listen reads server messages until the stream finishes or fails.
func (a *Adapter) listen() {
	defer close(a.done)
	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			if a.isClosed() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			a.cb.OnError(fmt.Errorf("stt stream read: %w", err))
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			a.logger.Warn().Err(err).Msg("Ignoring malformed STT message")
			continue
		}
		if msg.ErrorCode != 0 || msg.ErrorMessage != "" {
			a.cb.OnError(&StreamError{Code: msg.ErrorCode, Message: msg.ErrorMessage})
			return
		}
		if len(msg.Tokens) > 0 {
			a.cb.OnTokens(msg.Tokens)
		}
		if msg.Finished {
			return
		}
	}
}

// IsStreamError reports whether err came from an error-coded provider message.
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}
