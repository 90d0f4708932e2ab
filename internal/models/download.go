package models

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
)

const baseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"

// Model is a downloadable whisper.cpp ggml model. Only multilingual models
// are listed since the kiosk transcribes Japanese.
type Model struct {
	Name string // file name, e.g. "ggml-base.bin"
	Size string // approximate, for display
	Note string
}

// Catalog lists the supported models. The first entry is the default.
var Catalog = []Model{
	{Name: "ggml-base.bin", Size: "142 MB", Note: "default, good on a Raspberry Pi 5"},
	{Name: "ggml-tiny.bin", Size: "75 MB", Note: "fastest, lower accuracy"},
	{Name: "ggml-small.bin", Size: "466 MB", Note: "better accuracy, needs a desktop CPU"},
}

// Lookup returns the catalog entry with the given file name.
func Lookup(name string) (Model, bool) {
	for _, m := range Catalog {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// Downloader fetches models into Dir.
type Downloader struct {
	Dir     string
	BaseURL string
	Client  *http.Client
	Out     io.Writer
}

// NewDownloader creates a Downloader writing into dir and reporting to out.
func NewDownloader(dir string, out io.Writer) *Downloader {
	return &Downloader{Dir: dir, BaseURL: baseURL, Client: http.DefaultClient, Out: out}
}

// Download fetches model into Dir unless a non-empty copy is already there,
// and returns its path.
func (d *Downloader) Download(ctx context.Context, m Model) (string, error) {
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating models dir: %w", err)
	}

	destPath := filepath.Join(d.Dir, m.Name)

	// Check if already downloaded
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		fmt.Fprintf(d.Out, "  Model already exists: %s (%.0f MB)\n", destPath, float64(info.Size())/(1024*1024))
		return destPath, nil
	}

	url := d.BaseURL + m.Name
	fmt.Fprintf(d.Out, "  Downloading %s from HuggingFace...\n", m.Name)
	fmt.Fprintf(d.Out, "  URL: %s\n", url)
	fmt.Fprintf(d.Out, "  Destination: %s\n", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", m.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	bar := progressbar.NewOptions64(resp.ContentLength,
		progressbar.OptionSetWriter(d.Out),
		progressbar.OptionSetDescription("  "+m.Name),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(d.Out) }),
	)

	written, err := io.Copy(io.MultiWriter(f, bar), resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("writing model file: %w", err)
	}
	_ = bar.Finish()

	fmt.Fprintf(d.Out, "  Downloaded %.1f MB\n", float64(written)/(1024*1024))

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("moving model file: %w", err)
	}

	return destPath, nil
}

// RunInteractive prompts on in for a catalog entry and downloads it.
// An empty answer selects the default model.
func (d *Downloader) RunInteractive(ctx context.Context, in io.Reader) (string, error) {
	fmt.Fprintln(d.Out, "=== Model Download ===")
	fmt.Fprintln(d.Out)
	fmt.Fprintf(d.Out, "Models will be downloaded to: %s\n", d.Dir)
	fmt.Fprintln(d.Out)
	fmt.Fprintln(d.Out, "Which model would you like to download?")
	for i, m := range Catalog {
		fmt.Fprintf(d.Out, "  [%d] %s (~%s) - %s\n", i+1, m.Name, m.Size, m.Note)
	}
	fmt.Fprintln(d.Out)
	fmt.Fprintf(d.Out, "Choice [1-%d, default 1]: ", len(Catalog))

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading choice: %w", err)
	}
	choice := strings.TrimSpace(line)
	fmt.Fprintln(d.Out)

	idx := 1
	if choice != "" {
		idx, err = strconv.Atoi(choice)
		if err != nil || idx < 1 || idx > len(Catalog) {
			return "", fmt.Errorf("invalid choice: %q (expected 1-%d)", choice, len(Catalog))
		}
	}
	return d.Download(ctx, Catalog[idx-1])
}
