package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-kiosk/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gostt-kiosk",
	Short: "Voice-triggered attendance kiosk",
	Long: `gostt-kiosk listens to a microphone, transcribes what it hears and,
when someone says a clock-in, clock-out or break keyword, takes a photo,
recognizes the speaker against a gallery of known faces and reports the
event to a remote collector.

Run without a subcommand to start the kiosk. Ctrl+C drains pending audio
and exits.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runKiosk,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/gostt-kiosk/config.yaml)")
	rootCmd.AddCommand(galleryCmd, modelsCmd, configCmd)
}

func initEnv() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// mustConfig loads, overrides and validates the configuration and installs
// the default logger. It exits on any error.
func mustConfig() *config.Config {
	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	return cfg
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

// segmentDuration converts the configured segment length to a Duration.
func segmentDuration(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Audio.SegmentSeconds * float64(time.Second))
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	fmt.Println("=== gostt-kiosk ===")
	if cfg.Transcribe.Backend == "openai" {
		fmt.Printf("  STT:       openai (%s, %s)\n", cfg.Transcribe.OpenAIModel, cfg.Transcribe.Language)
	} else {
		fmt.Printf("  STT:       whisper (%s, %s)\n", cfg.Transcribe.ModelPath, cfg.Transcribe.Language)
	}
	fmt.Printf("  Audio:     %dHz, %dch, %.1fs segments\n", cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.SegmentSeconds)
	if cfg.Queue.MaxSegments > 0 {
		fmt.Printf("  Queue:     max %d segments\n", cfg.Queue.MaxSegments)
	} else {
		fmt.Printf("  Queue:     unbounded\n")
	}
	fmt.Printf("  Faces:     %s (%s <= %.2f)\n", cfg.Faces.KnownDir, cfg.Faces.Metric, cfg.Faces.Tolerance)
	fmt.Printf("  Camera:    /dev/video%d, settle %s\n", cfg.Camera.Device, cfg.Camera.SettleDelay)
	fmt.Printf("  Collector: %s\n", cfg.Report.URL)
	fmt.Printf("  Log:       %s\n", cfg.LogLevel)
	fmt.Println("===================")
}
