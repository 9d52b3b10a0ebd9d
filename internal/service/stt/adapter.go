// Package stt defines the interface for streaming Speech-to-Text adapters.
package stt

import (
	"context"
	"errors"

	"call-assist-service/internal/models"
)

// ErrStreamClosed is returned when audio is sent after the stream has closed.
var ErrStreamClosed = errors.New("stt stream closed")

// Callback receives token batches from the STT provider.
// Calls are made sequentially from a single goroutine per stream.
type Callback interface {
	// OnTokens is called once per provider message, with tokens in temporal order.
	OnTokens(tokens []models.Token)

	// OnError is called when the stream fails. No further callbacks follow.
	OnError(err error)
}

// Adapter defines the interface for STT providers.
type Adapter interface {
	// Start opens the stream and completes the handshake. Audio may be sent once it returns nil.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends one frame of 16-bit little-endian mono PCM.
	SendAudio(ctx context.Context, audio []byte) error

	// Close sends the end-of-audio terminator and releases the stream.
	Close() error

	// Name identifies the provider in logs and metrics.
	Name() string
}
