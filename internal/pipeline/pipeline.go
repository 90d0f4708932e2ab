// Package pipeline connects audio capture to attendance reporting.
//
// The capture callback pushes fixed-length segments onto a Queue without
// blocking. A single worker goroutine pops them in order, transcribes each
// one, appends the text to the transcript, classifies it and, on a keyword,
// runs the Trigger. Recognition and trigger failures are logged and the
// worker moves on to the next segment; only the stop sentinel ends it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/gostt-kiosk/internal/audio"
	"github.com/chaz8081/gostt-kiosk/internal/faces"
	"github.com/chaz8081/gostt-kiosk/internal/keyword"
	"github.com/chaz8081/gostt-kiosk/internal/transcribe"
)

// Recognizer converts a segment's samples to text.
type Recognizer interface {
	Process(ctx context.Context, samples []float32) (string, error)
}

// Classifier maps recognized text to a status.
type Classifier interface {
	Classify(text string) keyword.Status
}

// Firer handles a detected keyword.
type Firer interface {
	Fire(ctx context.Context, status keyword.Status, at time.Time) (faces.Result, error)
}

// TranscriptWriter records recognized text.
type TranscriptWriter interface {
	Append(text string, at time.Time) error
}

// Options wires a Pipeline's collaborators. Transcript may be nil.
type Options struct {
	Recognizer Recognizer
	Classifier Classifier
	Trigger    Firer
	Transcript TranscriptWriter
	// MaxQueued bounds the segment queue; 0 means unbounded.
	MaxQueued int
}

// Stats counts worker outcomes.
type Stats struct {
	Processed    uint64
	Unrecognized uint64
	Unavailable  uint64
	Failed       uint64
	Triggered    uint64
	Reported     uint64
}

// Pipeline owns the queue and the worker goroutine.
type Pipeline struct {
	opts  Options
	queue *Queue
	now   func() time.Time

	startOnce sync.Once
	done      chan struct{}

	processed    atomic.Uint64
	unrecognized atomic.Uint64
	unavailable  atomic.Uint64
	failed       atomic.Uint64
	triggered    atomic.Uint64
	reported     atomic.Uint64
}

// New creates a Pipeline. Recognizer, Classifier and Trigger are required.
func New(opts Options) (*Pipeline, error) {
	if opts.Recognizer == nil || opts.Classifier == nil || opts.Trigger == nil {
		return nil, fmt.Errorf("pipeline: recognizer, classifier and trigger are required")
	}
	return &Pipeline{
		opts:  opts,
		queue: NewQueue(opts.MaxQueued),
		now:   time.Now,
		done:  make(chan struct{}),
	}, nil
}

// Ingest enqueues a segment. It never blocks, so it can be used directly as
// the capture sink.
func (p *Pipeline) Ingest(seg audio.Segment) {
	if seg.Overflow {
		slog.Warn("segment contains a capture overflow", "seq", seg.Seq)
	}
	p.queue.Push(seg)
}

// Sink returns Ingest as an audio.Sink.
func (p *Pipeline) Sink() audio.Sink {
	return p.Ingest
}

// Start launches the worker. ctx is handed to every collaborator call; it
// should outlive Shutdown so that queued segments can still be processed.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go p.run(ctx)
	})
}

// Shutdown pushes the stop sentinel and waits until the worker has drained
// every queued segment, or until ctx expires.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	pending := p.queue.Len()
	p.queue.PushStop()
	slog.Info("draining segment queue", "pending", pending)

	select {
	case <-p.done:
		s := p.Stats()
		slog.Info("pipeline stopped",
			"processed", s.Processed,
			"triggered", s.Triggered,
			"reported", s.Reported,
			"dropped", p.queue.Dropped())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline: shutdown: %w", ctx.Err())
	}
}

// Done is closed when the worker has exited.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Stats returns a snapshot of the worker counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:    p.processed.Load(),
		Unrecognized: p.unrecognized.Load(),
		Unavailable:  p.unavailable.Load(),
		Failed:       p.failed.Load(),
		Triggered:    p.triggered.Load(),
		Reported:     p.reported.Load(),
	}
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	for {
		seg, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.process(ctx, seg)
	}
}

// process handles one segment. Any panic is contained to that segment.
func (p *Pipeline) process(ctx context.Context, seg audio.Segment) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			slog.Error("panic while processing segment",
				"seq", seg.Seq, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	defer p.processed.Add(1)

	text, err := p.opts.Recognizer.Process(ctx, seg.Samples)
	switch {
	case errors.Is(err, transcribe.ErrUnrecognized):
		p.unrecognized.Add(1)
		slog.Info("could not understand audio", "seq", seg.Seq)
		return
	case errors.Is(err, transcribe.ErrServiceUnavailable):
		p.unavailable.Add(1)
		slog.Warn("recognition service unavailable", "seq", seg.Seq, "error", err)
		return
	case err != nil:
		p.failed.Add(1)
		slog.Error("recognition failed", "seq", seg.Seq, "error", err)
		return
	}

	at := p.now()
	slog.Info("recognized", "seq", seg.Seq, "text", text)
	if p.opts.Transcript != nil {
		if err := p.opts.Transcript.Append(text, at); err != nil {
			slog.Warn("transcript append failed", "error", err)
		}
	}

	status := p.opts.Classifier.Classify(text)
	if status == keyword.None {
		return
	}

	p.triggered.Add(1)
	res, err := p.opts.Trigger.Fire(ctx, status, at)
	if err != nil {
		slog.Error("trigger failed", "status", status, "error", err)
		return
	}
	if res.Outcome == faces.Matched {
		p.reported.Add(1)
	}
}
