package audio

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rs/xid"
)

// Segment is one fixed-duration block of mono float32 PCM in [-1, 1].
// It must not be modified after it is handed to a Sink.
type Segment struct {
	ID         xid.ID
	Seq        uint64
	Samples    []float32
	SampleRate uint32
	CapturedAt time.Time
	// Overflow is set when the capture device delivered a malformed block
	// somewhere inside this window.
	Overflow bool
}

// Duration returns the audio length of the segment.
func (s Segment) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(s.Samples)) * time.Second / time.Duration(s.SampleRate)
}

// Sink receives completed segments. It is called on the capture thread and
// must not block.
type Sink func(Segment)

// Segmenter slices a continuous interleaved float32 stream into fixed-size
// mono segments.
type Segmenter struct {
	sampleRate uint32
	channels   uint32
	size       int
	sink       Sink
	now        func() time.Time

	mu       sync.Mutex
	buf      []float32
	seq      uint64
	overflow bool
}

// NewSegmenter creates a Segmenter emitting segments of the given duration.
func NewSegmenter(sampleRate, channels uint32, segment time.Duration, sink Sink) *Segmenter {
	if channels == 0 {
		channels = 1
	}
	size := int(float64(sampleRate) * segment.Seconds())
	if size < 1 {
		size = 1
	}
	return &Segmenter{
		sampleRate: sampleRate,
		channels:   channels,
		size:       size,
		sink:       sink,
		now:        time.Now,
		buf:        make([]float32, 0, size),
	}
}

// SegmentSize returns the number of mono samples per segment.
func (s *Segmenter) SegmentSize() int {
	return s.size
}

// Write accepts raw little-endian float32 frames as delivered by the
// capture device. A buffer shorter than frameCount promises is logged and
// marks the current segment as overflowed; whatever was readable is kept.
// malgo reports no xrun status, so a short buffer is the only overflow
// signal.
func (s *Segmenter) Write(pSample []byte, frameCount uint32) {
	want := frameCount * s.channels
	samples := bytesToFloat32(pSample, want)
	short := uint32(len(samples)) < want
	if short {
		slog.Warn("audio capture overflow", "want", want, "got", len(samples))
	}
	s.WriteSamples(downmix(samples, s.channels), short)
}

// WriteSamples appends mono samples, emitting every segment that fills up.
func (s *Segmenter) WriteSamples(mono []float32, overflow bool) {
	var ready []Segment

	s.mu.Lock()
	if overflow {
		s.overflow = true
	}
	for len(mono) > 0 {
		n := min(s.size-len(s.buf), len(mono))
		s.buf = append(s.buf, mono[:n]...)
		mono = mono[n:]
		if len(s.buf) == s.size {
			ready = append(ready, s.emitLocked())
		}
	}
	s.mu.Unlock()

	for _, seg := range ready {
		s.sink(seg)
	}
}

// Reset drops any partially filled segment.
func (s *Segmenter) Reset() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.overflow = false
	s.mu.Unlock()
}

func (s *Segmenter) emitLocked() Segment {
	s.seq++
	samples := make([]float32, len(s.buf))
	copy(samples, s.buf)
	seg := Segment{
		ID:         xid.New(),
		Seq:        s.seq,
		Samples:    samples,
		SampleRate: s.sampleRate,
		CapturedAt: s.now(),
		Overflow:   s.overflow,
	}
	s.buf = s.buf[:0]
	s.overflow = false
	return seg
}

// downmix averages interleaved channels into mono.
func downmix(samples []float32, channels uint32) []float32 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / int(channels)
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < int(channels); c++ {
			sum += samples[i*int(channels)+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
