// Package audio captures microphone input with malgo and slices it into
// fixed-duration segments for transcription.
package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Capture streams audio from the default microphone into a Segmenter.
type Capture struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	channels   uint32
	segmenter  *Segmenter

	mu        sync.Mutex
	capturing bool
}

// NewCapture creates a capture stream that delivers segment-long blocks to
// sink. Call Close() when done.
func NewCapture(sampleRate, channels uint32, segment time.Duration, sink Sink) (*Capture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("initializing audio context: %w", err)
	}

	return &Capture{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
		segmenter:  NewSegmenter(sampleRate, channels, segment, sink),
	}, nil
}

// Start begins capturing from the default microphone. The device is asked
// for one period per segment; the Segmenter re-slices whatever block sizes
// the backend actually delivers.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return fmt.Errorf("already capturing")
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = c.channels
	deviceCfg.SampleRate = c.sampleRate
	deviceCfg.PeriodSizeInFrames = uint32(c.segmenter.SegmentSize())

	callbacks := malgo.DeviceCallbacks{
		Data: c.onData,
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("initializing capture device: %w", err)
	}

	if err := c.begin(device.Start); err != nil {
		device.Uninit()
		return fmt.Errorf("starting capture device: %w", err)
	}

	c.device = device
	c.capturing = true
	return nil
}

// Stop ends capture. Once Stop returns no further segments are delivered;
// a trailing partial segment is discarded.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	c.capturing = false
	c.segmenter.Reset()
}

// begin drops leftovers from a previous run, then starts the device. The
// reset must come first: the callback may deliver frames before start
// returns.
func (c *Capture) begin(start func() error) error {
	c.segmenter.Reset()
	return start()
}

// IsCapturing returns whether the microphone stream is running.
func (c *Capture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Close releases all audio resources.
func (c *Capture) Close() error {
	c.Stop()

	if c.ctx != nil {
		if err := c.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninitializing audio context: %w", err)
		}
		c.ctx.Free()
		c.ctx = nil
	}

	return nil
}

// onData is the malgo callback invoked on the device thread when a block
// of captured frames is available.
func (c *Capture) onData(_, pSample []byte, frameCount uint32) {
	c.segmenter.Write(pSample, frameCount)
}
