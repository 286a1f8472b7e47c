package cold

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
)

// Compressor is the pluggable codec mandated by spec.md §4.3: the core
// commits to a reported compression ratio, not a specific algorithm.
// Levels 1..5 map onto zstd's speed/ratio encoder levels.
type Compressor interface {
	Compress(level int, data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	// Ratio returns sum(compressedSize)/sum(originalSize) observed so far.
	Ratio() float64
}

// zstdCompressor is the default Compressor, backed by klauspost/compress's
// zstd implementation (the teacher pack carries klauspost/compress as an
// indirect dependency of its erasure-coding/replication paths).
type zstdCompressor struct {
	mu       sync.Mutex
	encoders map[int]*zstd.Encoder

	compressedTotal int64
	originalTotal   int64
}

// NewCompressor returns a ready-to-use default compressor. Encoders are
// built lazily per level and reused across calls; decoders are cheap and
// created per call since zstd.Decoder.Reset is not safe for concurrent use.
func NewCompressor() Compressor {
	return &zstdCompressor{encoders: map[int]*zstd.Encoder{}}
}

func levelToZstd(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level == 2:
		return zstd.SpeedDefault
	case level == 3:
		return zstd.SpeedDefault
	case level == 4:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func (c *zstdCompressor) encoderFor(level int) (*zstd.Encoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encoders[level]; ok {
		return enc, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(levelToZstd(level)))
	if err != nil {
		return nil, err
	}
	c.encoders[level] = enc
	return enc, nil
}

func (c *zstdCompressor) Compress(level int, data []byte) ([]byte, error) {
	enc, err := c.encoderFor(level)
	if err != nil {
		return nil, err
	}
	out := enc.EncodeAll(data, nil)
	atomic.AddInt64(&c.compressedTotal, int64(len(out)))
	atomic.AddInt64(&c.originalTotal, int64(len(data)))
	return out, nil
}

func (c *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *zstdCompressor) Ratio() float64 {
	orig := atomic.LoadInt64(&c.originalTotal)
	if orig == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&c.compressedTotal)) / float64(orig)
}
