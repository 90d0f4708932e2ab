// Command test-camera is a manual test for still capture and, optionally,
// face attribution. It counts down the settle delay, grabs one frame and
// writes it to disk. With --match it also sends the frame to the embedding
// service and matches it against the gallery cache.
//
// Usage:
//
//	go run ./cmd/test-camera [--device 0] [--out frame.jpg] [--match]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chaz8081/gostt-kiosk/internal/camera"
	"github.com/chaz8081/gostt-kiosk/internal/config"
	"github.com/chaz8081/gostt-kiosk/internal/faces"
)

func main() {
	device := flag.Int("device", 0, "video device index (/dev/videoN)")
	out := flag.String("out", "test-frame.jpg", "where to save the captured frame")
	settle := flag.Duration("settle", 3*time.Second, "delay before grabbing the frame")
	match := flag.Bool("match", false, "match the frame against the gallery cache")
	flag.Parse()

	cfg := config.Default()
	cfg.ApplyEnv()
	cfg.Camera.Device = *device

	cam := camera.NewExec(&cfg.Camera)
	cam.SettleDelay = 0

	fmt.Printf("Capturing from /dev/video%d in %s...\n", *device, *settle)
	fmt.Println("Look at the camera now!")
	for i := int(settle.Seconds()); i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	ctx := context.Background()
	img, err := cam.Capture(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, img, 0644); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Saved %d bytes to %s\n", len(img), *out)

	if !*match {
		return
	}

	extractor := faces.NewHTTPExtractor(cfg.Faces.EmbedURL, cfg.Faces.Timeout)
	store := &faces.Store{SourceDir: cfg.Faces.KnownDir, CachePath: cfg.Faces.CachePath, Extractor: extractor}
	g, err := store.Load(ctx)
	if err != nil {
		fmt.Printf("Gallery: %v\n", err)
	}
	metric, err := faces.ParseMetric(cfg.Faces.Metric)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	res, err := faces.NewAttributor(extractor, g, cfg.Faces.Tolerance, metric).Attribute(ctx, img)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	switch res.Outcome {
	case faces.Matched:
		fmt.Printf("Matched %s (%d of their faces within %.2f)\n", res.Person, res.Matches, cfg.Faces.Tolerance)
	default:
		fmt.Printf("Result: %s\n", res.Outcome)
	}
}
