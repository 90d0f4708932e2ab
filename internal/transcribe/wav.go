package transcribe

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// float32ToPCM16 scales [-1, 1] samples to signed 16-bit integers,
// clipping anything out of range.
func float32ToPCM16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32767)
		out[i] = int(max(-32768, min(32767, v)))
	}
	return out
}

// writeWAV encodes mono samples as 16-bit PCM WAV into w.
func writeWAV(w io.WriteSeeker, samples []float32, sampleRate uint32) error {
	enc := wav.NewEncoder(w, int(sampleRate), 16, 1, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: 1,
			SampleRate:  int(sampleRate),
		},
		Data:           float32ToPCM16(samples),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("transcribe: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("transcribe: finalize wav: %w", err)
	}
	return nil
}

// tempWAV writes samples to a temporary .wav file positioned at offset 0.
// The caller must close and remove the file.
func tempWAV(samples []float32, sampleRate uint32) (*os.File, error) {
	f, err := os.CreateTemp("", "gostt-segment-*.wav")
	if err != nil {
		return nil, fmt.Errorf("transcribe: create temp wav: %w", err)
	}
	if err := writeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("transcribe: rewind temp wav: %w", err)
	}
	return f, nil
}
