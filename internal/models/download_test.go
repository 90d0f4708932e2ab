package models

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func newTestServer(t *testing.T, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if !strings.HasSuffix(r.URL.Path, ".bin") {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testDownloader(t *testing.T, ts *httptest.Server) *Downloader {
	d := NewDownloader(filepath.Join(t.TempDir(), "models"), io.Discard)
	d.BaseURL = ts.URL + "/"
	d.Client = ts.Client()
	return d
}

func TestLookup(t *testing.T) {
	if _, ok := Lookup("ggml-base.bin"); !ok {
		t.Error("Lookup(ggml-base.bin) should succeed")
	}
	if _, ok := Lookup("ggml-base.en.bin"); ok {
		t.Error("English-only models should not be in the catalog")
	}
	if Catalog[0].Name != "ggml-base.bin" {
		t.Errorf("default model = %q, want ggml-base.bin", Catalog[0].Name)
	}
}

func TestDownload(t *testing.T) {
	d := testDownloader(t, newTestServer(t, "model-bytes", nil))

	path, err := d.Download(t.Context(), Catalog[0])
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading model: %v", err)
	}
	if string(got) != "model-bytes" {
		t.Errorf("model content = %q", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should be gone after download")
	}
}

func TestDownloadSkipsExisting(t *testing.T) {
	var hits atomic.Int32
	d := testDownloader(t, newTestServer(t, "new", &hits))
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(d.Dir, Catalog[0].Name)
	if err := os.WriteFile(existing, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := d.Download(t.Context(), Catalog[0]); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if hits.Load() != 0 {
		t.Error("existing model should not be downloaded again")
	}
	got, _ := os.ReadFile(existing)
	if string(got) != "old" {
		t.Errorf("existing model overwritten: %q", got)
	}
}

func TestDownloadHTTPError(t *testing.T) {
	d := testDownloader(t, newTestServer(t, "", nil))
	_, err := d.Download(t.Context(), Model{Name: "missing.txt"})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("Download() error = %v, want HTTP 404", err)
	}
	if _, err := os.Stat(filepath.Join(d.Dir, "missing.txt")); !os.IsNotExist(err) {
		t.Error("nothing should be written on failure")
	}
}

func TestRunInteractive(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantFile string
		wantErr  bool
	}{
		{"default", "\n", "ggml-base.bin", false},
		{"eof", "", "ggml-base.bin", false},
		{"second", "2\n", "ggml-tiny.bin", false},
		{"out of range", "9\n", "", true},
		{"garbage", "abc\n", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := testDownloader(t, newTestServer(t, "x", nil))
			path, err := d.RunInteractive(t.Context(), strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("RunInteractive() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && filepath.Base(path) != tt.wantFile {
				t.Errorf("RunInteractive() path = %q, want %s", path, tt.wantFile)
			}
		})
	}
}
