package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/gostt-kiosk/internal/faces"
	"github.com/chaz8081/gostt-kiosk/internal/keyword"
	"github.com/chaz8081/gostt-kiosk/internal/report"
)

type fakeCamera struct {
	img   []byte
	err   error
	calls int
}

func (c *fakeCamera) Capture(context.Context) ([]byte, error) {
	c.calls++
	return c.img, c.err
}

type fakeAttributor struct {
	res   faces.Result
	err   error
	calls int
	got   []byte
}

func (a *fakeAttributor) Attribute(_ context.Context, image []byte) (faces.Result, error) {
	a.calls++
	a.got = image
	return a.res, a.err
}

type fakeReporter struct {
	mu      sync.Mutex
	records []report.Record
	err     error
}

func (r *fakeReporter) Send(_ context.Context, rec report.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

func (r *fakeReporter) Records() []report.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]report.Record(nil), r.records...)
}

var at = time.Date(2026, 4, 1, 9, 0, 0, 0, time.Local)

func TestTriggerMatchedReports(t *testing.T) {
	cam := &fakeCamera{img: []byte("jpeg")}
	attr := &fakeAttributor{res: faces.Result{Outcome: faces.Matched, Person: "Alice", Matches: 2}}
	rep := &fakeReporter{}

	res, err := NewTrigger(cam, attr, rep).Fire(t.Context(), keyword.ClockIn, at)
	if err != nil {
		t.Fatalf("Fire() error = %v", err)
	}
	if res.Person != "Alice" {
		t.Errorf("Fire() person = %q, want Alice", res.Person)
	}
	if string(attr.got) != "jpeg" {
		t.Errorf("attributor got %q, want captured image", attr.got)
	}
	recs := rep.Records()
	if len(recs) != 1 {
		t.Fatalf("reported %d records, want 1", len(recs))
	}
	want := report.Record{Person: "Alice", Status: keyword.ClockIn, At: at}
	if recs[0] != want {
		t.Errorf("record = %+v, want %+v", recs[0], want)
	}
}

func TestTriggerNoReport(t *testing.T) {
	for _, outcome := range []faces.Outcome{faces.NoFace, faces.Unknown} {
		t.Run(outcome.String(), func(t *testing.T) {
			rep := &fakeReporter{}
			trig := NewTrigger(&fakeCamera{img: []byte("x")}, &fakeAttributor{res: faces.Result{Outcome: outcome}}, rep)

			res, err := trig.Fire(t.Context(), keyword.ClockOut, at)
			if err != nil {
				t.Fatalf("Fire() error = %v", err)
			}
			if res.Outcome != outcome {
				t.Errorf("Outcome = %v, want %v", res.Outcome, outcome)
			}
			if n := len(rep.Records()); n != 0 {
				t.Errorf("reported %d records, want 0", n)
			}
		})
	}
}

func TestTriggerCameraFailureStops(t *testing.T) {
	attr := &fakeAttributor{}
	rep := &fakeReporter{}
	_, err := NewTrigger(&fakeCamera{err: errors.New("no device")}, attr, rep).Fire(t.Context(), keyword.ClockIn, at)
	if err == nil || !strings.Contains(err.Error(), "capture") {
		t.Fatalf("Fire() error = %v, want capture error", err)
	}
	if attr.calls != 0 {
		t.Error("attributor should not run after a capture failure")
	}
	if len(rep.Records()) != 0 {
		t.Error("nothing should be reported after a capture failure")
	}
}

func TestTriggerAttributionFailureStops(t *testing.T) {
	rep := &fakeReporter{}
	_, err := NewTrigger(&fakeCamera{img: []byte("x")}, &fakeAttributor{err: errors.New("embed service down")}, rep).
		Fire(t.Context(), keyword.ClockIn, at)
	if err == nil || !strings.Contains(err.Error(), "attribute") {
		t.Fatalf("Fire() error = %v, want attribute error", err)
	}
	if len(rep.Records()) != 0 {
		t.Error("nothing should be reported after an attribution failure")
	}
}

func TestTriggerReportFailure(t *testing.T) {
	rep := &fakeReporter{err: errors.New("connection refused")}
	attr := &fakeAttributor{res: faces.Result{Outcome: faces.Matched, Person: "Bob", Matches: 1}}
	res, err := NewTrigger(&fakeCamera{img: []byte("x")}, attr, rep).Fire(t.Context(), keyword.BreakStart, at)
	if err == nil || !strings.Contains(err.Error(), "report") {
		t.Fatalf("Fire() error = %v, want report error", err)
	}
	if res.Person != "Bob" {
		t.Errorf("Fire() person = %q, want Bob", res.Person)
	}
	if len(rep.Records()) != 1 {
		t.Errorf("Send() called %d times, want exactly 1", len(rep.Records()))
	}
}

func TestGreeting(t *testing.T) {
	for _, s := range []keyword.Status{keyword.ClockIn, keyword.ClockOut, keyword.BreakStart, keyword.BreakEnd, keyword.None} {
		if g := greeting("Alice", s); !strings.HasPrefix(g, "Aliceさん") {
			t.Errorf("greeting(%v) = %q", s, g)
		}
	}
}
