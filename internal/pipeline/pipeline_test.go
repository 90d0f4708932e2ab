package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/gostt-kiosk/internal/faces"
	"github.com/chaz8081/gostt-kiosk/internal/keyword"
	"github.com/chaz8081/gostt-kiosk/internal/transcribe"
)

// scriptRecognizer returns a canned response keyed by the first sample of
// each segment, which the tests set to the segment's Seq.
type scriptRecognizer struct {
	mu      sync.Mutex
	script  map[uint64]any // string, error, or "panic"
	seen    []uint64
	delay   time.Duration
	ctxErrs int
}

func (r *scriptRecognizer) Process(ctx context.Context, samples []float32) (string, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	seq := uint64(samples[0])
	r.mu.Lock()
	r.seen = append(r.seen, seq)
	if ctx.Err() != nil {
		r.ctxErrs++
	}
	resp := r.script[seq]
	r.mu.Unlock()

	switch v := resp.(type) {
	case error:
		return "", v
	case string:
		if v == "panic" {
			panic("recognizer exploded")
		}
		return v, nil
	}
	return "", transcribe.ErrUnrecognized
}

func (r *scriptRecognizer) Seen() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.seen...)
}

type fakeFirer struct {
	mu       sync.Mutex
	statuses []keyword.Status
	res      faces.Result
	err      error
}

func (f *fakeFirer) Fire(_ context.Context, status keyword.Status, _ time.Time) (faces.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return f.res, f.err
}

func (f *fakeFirer) Statuses() []keyword.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]keyword.Status(nil), f.statuses...)
}

type memTranscript struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (m *memTranscript) Append(text string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, text)
	return m.err
}

func newTestPipeline(t *testing.T, rec Recognizer, firer Firer, tr TranscriptWriter) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Recognizer: rec,
		Classifier: keyword.NewClassifier(nil),
		Trigger:    firer,
		Transcript: tr,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func shutdown(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() should fail without collaborators")
	}
}

func TestPipelineClockInReported(t *testing.T) {
	rec := &scriptRecognizer{script: map[uint64]any{1: "出勤します"}}
	firer := &fakeFirer{res: faces.Result{Outcome: faces.Matched, Person: "Alice", Matches: 1}}
	tr := &memTranscript{}
	p := newTestPipeline(t, rec, firer, tr)

	p.Start(t.Context())
	p.Ingest(seg(1))
	shutdown(t, p)

	if got := firer.Statuses(); len(got) != 1 || got[0] != keyword.ClockIn {
		t.Errorf("fired %v, want [clock-in]", got)
	}
	if len(tr.lines) != 1 || tr.lines[0] != "出勤します" {
		t.Errorf("transcript = %v", tr.lines)
	}
	s := p.Stats()
	if s.Processed != 1 || s.Triggered != 1 || s.Reported != 1 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestPipelineNoKeywordNoTrigger(t *testing.T) {
	rec := &scriptRecognizer{script: map[uint64]any{1: "今日は天気がいい"}}
	firer := &fakeFirer{}
	tr := &memTranscript{}
	p := newTestPipeline(t, rec, firer, tr)

	p.Start(t.Context())
	p.Ingest(seg(1))
	shutdown(t, p)

	if n := len(firer.Statuses()); n != 0 {
		t.Errorf("fired %d times, want 0", n)
	}
	if len(tr.lines) != 1 {
		t.Errorf("transcript has %d lines, want 1", len(tr.lines))
	}
}

func TestPipelineNoFaceNoReport(t *testing.T) {
	rec := &scriptRecognizer{script: map[uint64]any{1: "退勤します"}}
	firer := &fakeFirer{res: faces.Result{Outcome: faces.NoFace}}
	p := newTestPipeline(t, rec, firer, nil)

	p.Start(t.Context())
	p.Ingest(seg(1))
	shutdown(t, p)

	s := p.Stats()
	if s.Triggered != 1 || s.Reported != 0 {
		t.Errorf("Stats() = %+v, want triggered=1 reported=0", s)
	}
}

func TestPipelineContinuesAfterFailures(t *testing.T) {
	rec := &scriptRecognizer{script: map[uint64]any{
		1: transcribe.ErrUnrecognized,
		2: fmt.Errorf("openai: %w", transcribe.ErrServiceUnavailable),
		3: errors.New("model crashed"),
		4: "panic",
		5: "出勤",
		6: "退勤",
	}}
	firer := &fakeFirer{err: errors.New("report: connection refused")}
	tr := &memTranscript{err: errors.New("disk full")}
	p := newTestPipeline(t, rec, firer, tr)

	p.Start(t.Context())
	for i := uint64(1); i <= 6; i++ {
		p.Ingest(seg(i))
	}
	shutdown(t, p)

	if got := rec.Seen(); len(got) != 6 {
		t.Fatalf("recognizer saw %v, want all 6 segments", got)
	}
	if got := firer.Statuses(); len(got) != 2 || got[0] != keyword.ClockIn || got[1] != keyword.ClockOut {
		t.Errorf("fired %v, want [clock-in clock-out]", got)
	}
	s := p.Stats()
	want := Stats{Processed: 6, Unrecognized: 1, Unavailable: 1, Failed: 2, Triggered: 2, Reported: 0}
	if s != want {
		t.Errorf("Stats() = %+v, want %+v", s, want)
	}
}

func TestPipelineDrainsInOrderOnShutdown(t *testing.T) {
	rec := &scriptRecognizer{script: map[uint64]any{}, delay: time.Millisecond}
	p := newTestPipeline(t, rec, &fakeFirer{}, nil)

	const n = 50
	// Queue everything before the worker starts so shutdown must drain.
	for i := uint64(1); i <= n; i++ {
		p.Ingest(seg(i))
	}
	p.Start(t.Context())
	shutdown(t, p)

	got := rec.Seen()
	if len(got) != n {
		t.Fatalf("processed %d segments, want %d", len(got), n)
	}
	for i, seq := range got {
		if seq != uint64(i+1) {
			t.Fatalf("segment %d processed at position %d: order not preserved", seq, i)
		}
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done() should be closed after Shutdown")
	}
}

func TestPipelineIngestAfterShutdownIgnored(t *testing.T) {
	rec := &scriptRecognizer{script: map[uint64]any{}}
	p := newTestPipeline(t, rec, &fakeFirer{}, nil)
	p.Start(t.Context())
	shutdown(t, p)

	p.Ingest(seg(99))
	if got := rec.Seen(); len(got) != 0 {
		t.Errorf("recognizer saw %v after shutdown", got)
	}
}

func TestPipelineShutdownTimeout(t *testing.T) {
	rec := &scriptRecognizer{script: map[uint64]any{}, delay: 200 * time.Millisecond}
	p := newTestPipeline(t, rec, &fakeFirer{}, nil)
	p.Start(t.Context())
	p.Ingest(seg(1))
	p.Ingest(seg(2))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want DeadlineExceeded", err)
	}
	<-p.Done()
}
