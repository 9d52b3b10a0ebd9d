package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// WAVInfo describes a PCM WAV stream.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// ReadWAVHeader reads and validates a canonical 44-byte PCM WAV header.
func ReadWAVHeader(r io.Reader) (WAVInfo, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return WAVInfo{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("not a valid WAV file")
	}
	if format := binary.LittleEndian.Uint16(header[20:22]); format != 1 {
		return WAVInfo{}, fmt.Errorf("unsupported WAV format %d, only PCM", format)
	}
	info := WAVInfo{
		Channels:      int(binary.LittleEndian.Uint16(header[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(header[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(header[34:36])),
	}
	if info.BitsPerSample != 16 {
		return WAVInfo{}, fmt.Errorf("unsupported bits per sample %d", info.BitsPerSample)
	}
	if info.Channels < 1 {
		return WAVInfo{}, fmt.Errorf("invalid channel count %d", info.Channels)
	}
	return info, nil
}

// EncodeWAV wraps mono 16-bit PCM in a WAV container.
func EncodeWAV(pcm []byte, sampleRate int) []byte {
	var b bytes.Buffer
	b.Grow(wavHeaderSize + len(pcm))
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(pcm)))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}

// WAVSource reads a 16-bit PCM WAV stream as a capture Source, downmixing to mono.
// When Realtime is set, blocks are paced at wall-clock speed.
type WAVSource struct {
	r        io.ReadCloser
	info     WAVInfo
	block    time.Duration
	realtime bool
	next     time.Time
}

// OpenWAV opens a WAV file as a Source.
func OpenWAV(path string, realtime bool) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, err
	}
	src, err := NewWAVSource(f, realtime)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// NewWAVSource wraps r, which must start with a WAV header.
func NewWAVSource(r io.ReadCloser, realtime bool) (*WAVSource, error) {
	info, err := ReadWAVHeader(r)
	if err != nil {
		return nil, err
	}
	return &WAVSource{r: r, info: info, block: 100 * time.Millisecond, realtime: realtime}, nil
}

// Info returns the parsed header.
func (s *WAVSource) Info() WAVInfo { return s.info }

// SampleRate implements Source.
func (s *WAVSource) SampleRate() int { return s.info.SampleRate }

// Read implements Source, returning about 100ms of audio per call.
func (s *WAVSource) Read(ctx context.Context) ([]float32, error) {
	if s.realtime {
		if s.next.IsZero() {
			s.next = time.Now()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Until(s.next)):
		}
		s.next = s.next.Add(s.block)
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	frameBytes := 2 * s.info.Channels
	samples := int(int64(s.info.SampleRate) * int64(s.block) / int64(time.Second))
	buf := make([]byte, samples*frameBytes)
	n, err := io.ReadFull(s.r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	n -= n % frameBytes
	return downmix(buf[:n], s.info.Channels), err
}

// Close implements Source.
func (s *WAVSource) Close() error { return s.r.Close() }

func downmix(pcm []byte, channels int) []float32 {
	all := PCM16ToFloat(pcm)
	if channels <= 1 {
		return all
	}
	out := make([]float32, len(all)/channels)
	for i := range out {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += all[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}
