package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"

	"call-assist-service/internal/observability/metrics"
)

// ErrPermissionDenied is returned by a Source when the audio device cannot be opened.
var ErrPermissionDenied = errors.New("audio capture permission denied")

// Defaults for the STT stream format.
const (
	DefaultTargetRate = 16000
	DefaultFrameBytes = 3200 // 100ms of 16 kHz mono int16
)

// Source delivers blocks of mono float samples in [-1,1].
type Source interface {
	// SampleRate reports the native rate of the samples returned by Read.
	SampleRate() int
	// Read blocks until the next block of samples is available. It returns io.EOF when the
	// source ends and ErrPermissionDenied when the device refused access.
	Read(ctx context.Context) ([]float32, error)
	Close() error
}

// Config controls framing.
type Config struct {
	TargetRate  int
	FrameBytes  int
	QueueFrames int
}

// Capture resamples a Source into fixed-size frames and hands them to a sender goroutine.
// The read path never blocks on the network: frames go into a bounded queue and are
// dropped when the queue is full. While muted, frames are dropped but capture keeps running.
type Capture struct {
	cfg     Config
	muted   atomic.Bool
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a Capture.
func New(cfg Config, logger zerolog.Logger) *Capture {
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = DefaultTargetRate
	}
	if cfg.FrameBytes <= 0 || cfg.FrameBytes%2 != 0 {
		cfg.FrameBytes = DefaultFrameBytes
	}
	if cfg.QueueFrames <= 0 {
		cfg.QueueFrames = 64
	}
	return &Capture{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.DefaultMetrics,
	}
}

// SetMuted toggles muting. Unmuting takes effect on the next frame.
func (c *Capture) SetMuted(muted bool) {
	c.muted.Store(muted)
}

// Muted reports whether frames are currently being dropped.
func (c *Capture) Muted() bool {
	return c.muted.Load()
}

// Run reads src until it ends or ctx is done, and calls send for every frame from a
// separate goroutine. The trailing partial frame is flushed when the source ends.
// Send errors are logged and do not stop capture.
func (c *Capture) Run(ctx context.Context, src Source, send func(ctx context.Context, frame []byte) error) error {
	defer src.Close()

	rate := src.SampleRate()
	if rate <= 0 {
		return fmt.Errorf("capture: invalid source sample rate %d", rate)
	}
	res := NewResampler(rate, c.cfg.TargetRate)

	frames := make(chan []byte, c.cfg.QueueFrames)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for frame := range frames {
			if err := send(ctx, frame); err != nil {
				c.logger.Warn().Err(err).Int("bytes", len(frame)).Msg("Failed to send audio frame")
			}
		}
	}()
	defer func() {
		close(frames)
		<-done
	}()

	var pending []byte
	for {
		block, err := src.Read(ctx)
		if len(block) > 0 {
			pending = res.Process(pending, block)
			for len(pending) >= c.cfg.FrameBytes {
				frame := make([]byte, c.cfg.FrameBytes)
				copy(frame, pending[:c.cfg.FrameBytes])
				pending = pending[c.cfg.FrameBytes:]
				c.enqueue(frames, frame)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(pending) > 0 {
					c.enqueue(frames, pending)
				}
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// enqueue hands a frame to the sender without blocking.
func (c *Capture) enqueue(frames chan<- []byte, frame []byte) {
	if IsSilent(frame) {
		c.metrics.RecordSilentFrame()
	}
	if c.muted.Load() {
		c.metrics.RecordFrameDropped("muted")
		return
	}
	select {
	case frames <- frame:
	default:
		c.metrics.RecordFrameDropped("backpressure")
		c.logger.Debug().Int("bytes", len(frame)).Msg("Audio queue full, frame dropped")
	}
}
