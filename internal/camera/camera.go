// Package camera grabs single still frames for attribution.
package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"github.com/chaz8081/gostt-kiosk/internal/config"
)

// Camera captures one still image and returns it JPEG encoded.
type Camera interface {
	Capture(ctx context.Context) ([]byte, error)
}

// Exec grabs frames by running an external command (ffmpeg, fswebcam,
// libcamera-still, ...) that writes a single image to a file.
type Exec struct {
	Device      int
	Command     []string
	Output      string
	SettleDelay time.Duration
	MaxWidth    int
	MaxHeight   int

	sleep func(ctx context.Context, d time.Duration) error
}

// NewExec creates an Exec camera from config.
func NewExec(cfg *config.CameraConfig) *Exec {
	return &Exec{
		Device:      cfg.Device,
		Command:     cfg.Command,
		Output:      cfg.Output,
		SettleDelay: cfg.SettleDelay,
		MaxWidth:    cfg.MaxWidth,
		MaxHeight:   cfg.MaxHeight,
	}
}

// Capture waits for the settle delay so the subject can face the lens, runs
// the grabber and returns the downscaled frame.
func (e *Exec) Capture(ctx context.Context) ([]byte, error) {
	if len(e.Command) == 0 {
		return nil, fmt.Errorf("camera: no capture command configured")
	}
	if err := e.wait(ctx, e.SettleDelay); err != nil {
		return nil, fmt.Errorf("camera: settle: %w", err)
	}

	out := e.Output
	if out == "" {
		out = filepath.Join(os.TempDir(), "gostt-kiosk-capture.jpg")
	}
	// A leftover frame from a previous run must not be mistaken for a new one.
	_ = os.Remove(out)

	argv := expand(e.Command, e.Device, out)
	slog.Debug("capturing frame", "argv", argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("camera: %s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("camera: reading frame: %w", err)
	}
	img, err := Downscale(data, e.MaxWidth, e.MaxHeight)
	if err != nil {
		return nil, fmt.Errorf("camera: %w", err)
	}
	return img, nil
}

func (e *Exec) wait(ctx context.Context, d time.Duration) error {
	if e.sleep != nil {
		return e.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// expand substitutes {device} and {output} in each argument.
func expand(argv []string, device int, output string) []string {
	r := strings.NewReplacer("{device}", strconv.Itoa(device), "{output}", output)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}

// Downscale decodes a JPEG or PNG frame and re-encodes it as JPEG, shrunk to
// fit within maxW×maxH with the aspect ratio kept. A zero bound disables
// that axis.
func Downscale(data []byte, maxW, maxH int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	bounds := img.Bounds()
	w, h := fit(bounds.Dx(), bounds.Dy(), maxW, maxH)
	if w != bounds.Dx() || h != bounds.Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}

// fit returns the largest size not exceeding the bounds with w:h preserved.
func fit(w, h, maxW, maxH int) (int, int) {
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && h > maxH {
		scale = min(scale, float64(maxH)/float64(h))
	}
	if scale == 1.0 {
		return w, h
	}
	return max(1, int(math.Round(float64(w)*scale))), max(1, int(math.Round(float64(h)*scale)))
}
