package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-kiosk/internal/audio"
	"github.com/chaz8081/gostt-kiosk/internal/camera"
	"github.com/chaz8081/gostt-kiosk/internal/config"
	"github.com/chaz8081/gostt-kiosk/internal/faces"
	"github.com/chaz8081/gostt-kiosk/internal/keyword"
	"github.com/chaz8081/gostt-kiosk/internal/pipeline"
	"github.com/chaz8081/gostt-kiosk/internal/report"
	"github.com/chaz8081/gostt-kiosk/internal/transcribe"
	"github.com/chaz8081/gostt-kiosk/internal/transcript"
)

func runKiosk(cmd *cobra.Command, _ []string) error {
	cfg := mustConfig()
	printBanner(cfg)

	// Collaborator calls use a context that is only cancelled after the
	// queue has drained; signals are handled separately below.
	ctx := context.Background()

	extractor := faces.NewHTTPExtractor(cfg.Faces.EmbedURL, cfg.Faces.Timeout)
	gallery := loadGallery(ctx, cfg, extractor)

	metric, err := faces.ParseMetric(cfg.Faces.Metric)
	if err != nil {
		log.Fatalf("faces: %v", err)
	}
	attributor := faces.NewAttributor(extractor, gallery, cfg.Faces.Tolerance, metric)

	rules, err := cfg.KeywordRules()
	if err != nil {
		log.Fatalf("keywords: %v", err)
	}
	classifier := keyword.NewClassifier(rules)

	// Initialize transcriber
	log.Printf("Loading %s transcriber...", cfg.Transcribe.Backend)
	modelStart := time.Now()
	transcriber, err := transcribe.New(&cfg.Transcribe, cfg.Audio.SampleRate)
	if err != nil {
		log.Fatalf("Failed to initialize transcriber: %v\n\nFor the whisper backend, check that the model exists at: %s\nRun 'gostt-kiosk models download' to fetch it.", err, cfg.Transcribe.ModelPath)
	}
	defer transcriber.Close()
	log.Printf("Transcriber ready in %s", time.Since(modelStart).Round(time.Millisecond))

	tlog, err := transcript.Open(cfg.Transcript.Dir, time.Now())
	if err != nil {
		log.Fatalf("transcript: %v", err)
	}
	defer tlog.Close()
	log.Printf("Transcript: %s", tlog.Path())

	trigger := pipeline.NewTrigger(
		camera.NewExec(&cfg.Camera),
		attributor,
		report.NewClient(cfg.Report.URL, cfg.Report.Timeout),
	)

	p, err := pipeline.New(pipeline.Options{
		Recognizer: transcriber,
		Classifier: classifier,
		Trigger:    trigger,
		Transcript: tlog,
		MaxQueued:  cfg.Queue.MaxSegments,
	})
	if err != nil {
		return err
	}

	// Initialize audio capture
	capture, err := audio.NewCapture(cfg.Audio.SampleRate, cfg.Audio.Channels, segmentDuration(cfg), p.Sink())
	if err != nil {
		log.Fatalf("Failed to initialize audio capture: %v\n\nCheck that a microphone is connected and the user can access the audio device.", err)
	}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	p.Start(ctx)
	if err := capture.Start(); err != nil {
		capture.Close()
		log.Fatalf("Failed to start audio capture: %v", err)
	}

	log.Println("Ready! Say 出勤 / 退勤 / 休憩開始 / 休憩終了. Ctrl+C to quit.")

	sig := <-sigCh
	log.Printf("Received %s, shutting down...", sig)

	capture.Stop()
	if err := capture.Close(); err != nil {
		slog.Warn("closing audio capture", "error", err)
	}

	// A second signal abandons the drain.
	shutdownCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received %s again, abandoning queued audio", sig)
			cancel()
		case <-shutdownCtx.Done():
		}
	}()

	if err := p.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
	}
	log.Println("Goodbye!")
	return nil
}

// loadGallery returns the known-faces gallery. A missing known-faces
// directory is created so staff can add photos later; until then every
// face is reported as unknown.
func loadGallery(ctx context.Context, cfg *config.Config, extractor faces.Extractor) *faces.Gallery {
	if _, err := os.Stat(cfg.Faces.KnownDir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(cfg.Faces.KnownDir, 0755); err != nil {
			slog.Warn("could not create known faces dir", "dir", cfg.Faces.KnownDir, "error", err)
		} else {
			slog.Warn("created empty known faces dir; add one sub-folder of photos per person",
				"dir", cfg.Faces.KnownDir)
		}
	}

	store := newStore(cfg, extractor)
	gallery, err := store.Load(ctx)
	if err != nil {
		slog.Warn("gallery unavailable, continuing in degraded mode", "error", err)
	}
	if gallery == nil {
		gallery = &faces.Gallery{}
	}
	if gallery.Len() == 0 {
		slog.Warn("gallery is empty; every face will be reported as unknown")
	} else {
		slog.Info("gallery ready", "people", gallery.Len(), "embeddings", gallery.EmbeddingCount())
	}
	return gallery
}

func newStore(cfg *config.Config, extractor faces.Extractor) *faces.Store {
	return &faces.Store{
		SourceDir:    cfg.Faces.KnownDir,
		CachePath:    cfg.Faces.CachePath,
		Extractor:    extractor,
		VerifySource: cfg.Faces.VerifySource,
		Progress:     os.Stderr,
	}
}
