package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/gostt-kiosk/internal/camera"
	"github.com/chaz8081/gostt-kiosk/internal/faces"
	"github.com/chaz8081/gostt-kiosk/internal/keyword"
	"github.com/chaz8081/gostt-kiosk/internal/report"
)

// Attributor identifies the person in a captured image.
type Attributor interface {
	Attribute(ctx context.Context, image []byte) (faces.Result, error)
}

// Trigger runs the capture → attribute → report sequence for one detected
// keyword.
type Trigger struct {
	camera     camera.Camera
	attributor Attributor
	reporter   report.Reporter
}

// NewTrigger creates a Trigger.
func NewTrigger(cam camera.Camera, attributor Attributor, reporter report.Reporter) *Trigger {
	return &Trigger{camera: cam, attributor: attributor, reporter: reporter}
}

// Fire captures a frame and, if it shows a known person, reports
// (person, status, at). An unrecognized or absent face is not an error: the
// Result says what happened and nothing is reported. Errors identify the
// stage that failed; no later stage runs after a failure.
func (t *Trigger) Fire(ctx context.Context, status keyword.Status, at time.Time) (faces.Result, error) {
	slog.Info("keyword detected, capturing", "status", status)

	img, err := t.camera.Capture(ctx)
	if err != nil {
		return faces.Result{}, fmt.Errorf("pipeline: capture: %w", err)
	}

	res, err := t.attributor.Attribute(ctx, img)
	if err != nil {
		return faces.Result{}, fmt.Errorf("pipeline: attribute: %w", err)
	}

	switch res.Outcome {
	case faces.NoFace:
		slog.Info("no face in captured frame", "status", status)
		return res, nil
	case faces.Unknown:
		slog.Info("face not recognized", "status", status)
		return res, nil
	}

	slog.Info(greeting(res.Person, status), "person", res.Person, "matches", res.Matches)

	rec := report.Record{Person: res.Person, Status: status, At: at}
	if err := t.reporter.Send(ctx, rec); err != nil {
		return res, fmt.Errorf("pipeline: report: %w", err)
	}
	return res, nil
}

func greeting(person string, status keyword.Status) string {
	switch status {
	case keyword.ClockIn:
		return person + "さん、おはようございます"
	case keyword.ClockOut:
		return person + "さん、お疲れさまでした"
	case keyword.BreakStart:
		return person + "さん、ごゆっくりどうぞ"
	case keyword.BreakEnd:
		return person + "さん、おかえりなさい"
	}
	return person + "さん"
}
