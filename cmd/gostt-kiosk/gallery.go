package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chaz8081/gostt-kiosk/internal/faces"
)

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Manage the known-faces gallery cache",
}

var galleryBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Re-encode every known face and overwrite the cache",
	Long: `Scans the known-faces directory (one sub-folder of photos per person),
sends every image to the embedding service and writes the result to the
gallery cache, replacing any existing cache.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := mustConfig()
		extractor := faces.NewHTTPExtractor(cfg.Faces.EmbedURL, cfg.Faces.Timeout)
		store := newStore(cfg, extractor)

		g, err := store.Build(cmd.Context(), cfg.Faces.KnownDir)
		if err != nil {
			return err
		}
		if err := store.Save(g); err != nil {
			return err
		}
		fmt.Printf("Encoded %d people (%d faces) into %s\n", g.Len(), g.EmbeddingCount(), cfg.Faces.CachePath)
		return nil
	},
}

var galleryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List people in the gallery cache",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := mustConfig()
		extractor := faces.NewHTTPExtractor(cfg.Faces.EmbedURL, cfg.Faces.Timeout)
		g, err := newStore(cfg, extractor).Load(cmd.Context())
		if err != nil {
			return err
		}

		if g.Len() == 0 {
			fmt.Println("Gallery is empty.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tNAME\tFACES")
		for i, p := range g.People {
			fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, p.Name, len(p.Embeddings))
		}
		w.Flush()
		if !g.BuiltAt.IsZero() {
			fmt.Printf("\nBuilt %s from %s\n", g.BuiltAt.Format("2006-01-02 15:04"), g.SourceDir)
		}
		return nil
	},
}

func init() {
	galleryCmd.AddCommand(galleryBuildCmd, galleryListCmd)
}
