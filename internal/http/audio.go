package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gorilla/websocket"

	"call-assist-service/internal/service/capture"
)

// DefaultSourceRate is assumed when the audio socket does not name its sample rate.
const DefaultSourceRate = 48000

// controlMessage is a text frame on the audio socket.
type controlMessage struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// socketSource reads little-endian float32 sample blocks from a browser audio socket.
// A capture_error control message means the browser could not open the microphone.
type socketSource struct {
	conn *websocket.Conn
	rate int
}

func newSocketSource(conn *websocket.Conn, rate int) *socketSource {
	return &socketSource{conn: conn, rate: rate}
}

func (s *socketSource) SampleRate() int { return s.rate }

// Read returns the next sample block. Cancelling ctx unblocks a pending read.
func (s *socketSource) Read(ctx context.Context) ([]float32, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read audio socket: %w", err)
		}

		switch mt {
		case websocket.BinaryMessage:
			return capture.DecodeFloat32LE(data), nil
		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == "capture_error" {
				return nil, fmt.Errorf("%w: %s", capture.ErrPermissionDenied, msg.Error)
			}
		}
	}
}

// Close leaves the socket to the handler, which sends the close frame.
func (s *socketSource) Close() error { return nil }
