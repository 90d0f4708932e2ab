package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-kiosk/internal/config"
	"github.com/chaz8081/gostt-kiosk/internal/models"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage whisper models",
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download [model]",
	Short: "Download a whisper ggml model",
	Long: `Downloads a multilingual whisper.cpp model next to the configured
transcribe.model_path. Without an argument an interactive menu is shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := mustConfig()
		dir := filepath.Dir(cfg.Transcribe.ModelPath)
		if dir == "" || dir == "." {
			dir = config.DefaultModelsDir()
		}
		d := models.NewDownloader(dir, os.Stdout)

		if len(args) == 0 {
			_, err := d.RunInteractive(cmd.Context(), os.Stdin)
			return err
		}
		m, ok := models.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown model %q", args[0])
		}
		_, err := d.Download(cmd.Context(), m)
		return err
	},
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloadable models",
	Args:  cobra.NoArgs,
	Run: func(*cobra.Command, []string) {
		for i, m := range models.Catalog {
			fmt.Printf("  [%d] %-16s ~%-7s %s\n", i+1, m.Name, m.Size, m.Note)
		}
	},
}

func init() {
	modelsCmd.AddCommand(modelsDownloadCmd, modelsListCmd)
}
