package faces

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/blake2b"
)

// ErrSourceMissing is returned when the known-faces directory does not exist.
var ErrSourceMissing = errors.New("faces: source directory missing")

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Store builds the gallery from a directory of per-person image folders
// and caches it as a msgpack file.
//
// Layout of SourceDir:
//
//	known_faces/
//	  Alice/ a1.jpg a2.png
//	  Bob/   b1.jpeg
//
// Store is used at startup only and is not safe for concurrent writers.
type Store struct {
	SourceDir string
	CachePath string
	Extractor Extractor
	// VerifySource makes Load rebuild a cache whose source fingerprint no
	// longer matches SourceDir. Off by default: a present cache is trusted.
	VerifySource bool
	// Progress, if set, receives a progress bar during Build.
	Progress io.Writer

	now func() time.Time
}

// Build extracts embeddings for every person folder under sourceDir.
// Unreadable images and extraction failures are logged and skipped, and
// people left with no embeddings are dropped. Build fails, returning an
// empty gallery, only when sourceDir cannot be listed (ErrSourceMissing if
// it does not exist) or ctx is cancelled.
func (s *Store) Build(ctx context.Context, sourceDir string) (*Gallery, error) {
	g := &Gallery{SourceDir: sourceDir, BuiltAt: s.clock()}

	people, err := scanSource(sourceDir)
	if err != nil {
		return g, err
	}

	total := 0
	for _, p := range people {
		total += len(p.images)
	}

	var bar *progressbar.ProgressBar
	if s.Progress != nil && total > 0 {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(s.Progress),
			progressbar.OptionSetDescription("Encoding faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
		)
	}

	h, err := newSourceHash()
	if err != nil {
		return g, err
	}
	for _, p := range people {
		h.person(p.name)
		var embeddings [][]float32
		for _, path := range p.images {
			if err := ctx.Err(); err != nil {
				return &Gallery{SourceDir: sourceDir, BuiltAt: g.BuiltAt}, err
			}
			embs, err := s.extractFile(ctx, path, h)
			if bar != nil {
				_ = bar.Add(1)
			}
			if err != nil {
				slog.Warn("skipping gallery image", "person", p.name, "path", path, "error", err)
				continue
			}
			if len(embs) == 0 {
				slog.Warn("no face found in gallery image", "person", p.name, "path", path)
				continue
			}
			embeddings = append(embeddings, embs...)
		}
		if !g.add(p.name, embeddings) {
			slog.Warn("dropping person with no usable images", "person", p.name)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	g.Fingerprint = h.sum()

	slog.Info("gallery built", "people", g.Len(), "embeddings", g.EmbeddingCount(), "dir", sourceDir)
	return g, nil
}

// Load returns the cached gallery, building and saving it first when the
// cache is absent or unreadable (or stale, with VerifySource). An empty
// freshly built gallery is returned but not cached, so that photos added
// later are picked up on the next start.
func (s *Store) Load(ctx context.Context) (*Gallery, error) {
	g, err := s.readCache()
	switch {
	case err == nil:
		if !s.VerifySource || !s.stale(g) {
			slog.Info("gallery loaded from cache", "path", s.CachePath, "people", g.Len())
			return g, nil
		}
		slog.Info("gallery cache is stale, rebuilding", "path", s.CachePath)
	case errors.Is(err, os.ErrNotExist):
		slog.Info("no gallery cache, building", "path", s.CachePath, "dir", s.SourceDir)
	default:
		slog.Warn("gallery cache unreadable, rebuilding", "path", s.CachePath, "error", err)
	}

	g, err = s.Build(ctx, s.SourceDir)
	if err != nil {
		return g, err
	}
	if g.Len() == 0 {
		return g, nil
	}
	if err := s.Save(g); err != nil {
		return g, err
	}
	return g, nil
}

// Save writes g to CachePath, replacing any existing cache.
func (s *Store) Save(g *Gallery) error {
	data, err := msgpack.Marshal(g)
	if err != nil {
		return fmt.Errorf("faces: encode gallery: %w", err)
	}

	if dir := filepath.Dir(s.CachePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("faces: create cache dir: %w", err)
		}
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := s.CachePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("faces: write cache: %w", err)
	}
	if err := os.Rename(tmpPath, s.CachePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("faces: move cache: %w", err)
	}
	return nil
}

func (s *Store) readCache() (*Gallery, error) {
	data, err := os.ReadFile(s.CachePath)
	if err != nil {
		return nil, err
	}
	var g Gallery
	if err := msgpack.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("faces: decode cache: %w", err)
	}
	return &g, nil
}

func (s *Store) stale(g *Gallery) bool {
	people, err := scanSource(s.SourceDir)
	if err != nil {
		// Nothing to rebuild from; keep what we have.
		return false
	}
	fp, err := fingerprint(people)
	if err != nil {
		return false
	}
	return fp != g.Fingerprint
}

// extractFile reads one image, feeds it to h and extracts its embeddings,
// so each image is read once per build.
func (s *Store) extractFile(ctx context.Context, path string, h *sourceHash) ([][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	h.image(path, data)
	return s.Extractor.Extract(ctx, data)
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

type sourcePerson struct {
	name   string
	images []string
}

// scanSource lists person folders and their image files in name order.
func scanSource(dir string) ([]sourcePerson, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceMissing, dir)
		}
		return nil, fmt.Errorf("faces: read source dir: %w", err)
	}

	var people []sourcePerson
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		personDir := filepath.Join(dir, e.Name())
		files, err := os.ReadDir(personDir)
		if err != nil {
			slog.Warn("skipping unreadable person folder", "path", personDir, "error", err)
			continue
		}
		p := sourcePerson{name: e.Name()}
		for _, f := range files {
			if f.IsDir() || !imageExts[strings.ToLower(filepath.Ext(f.Name()))] {
				continue
			}
			p.images = append(p.images, filepath.Join(personDir, f.Name()))
		}
		people = append(people, p)
	}
	return people, nil
}

// sourceHash is a blake2b-256 digest over person names, image names and
// image contents, in scan order.
type sourceHash struct {
	h hash.Hash
}

func newSourceHash() (*sourceHash, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("faces: fingerprint: %w", err)
	}
	return &sourceHash{h: h}, nil
}

func (s *sourceHash) person(name string) {
	io.WriteString(s.h, name)
	s.h.Write([]byte{0})
}

func (s *sourceHash) image(path string, data []byte) {
	io.WriteString(s.h, filepath.Base(path))
	s.h.Write([]byte{0})
	s.h.Write(data)
}

func (s *sourceHash) sum() string {
	return hex.EncodeToString(s.h.Sum(nil))
}

// fingerprint hashes the current source tree the same way Build does.
func fingerprint(people []sourcePerson) (string, error) {
	h, err := newSourceHash()
	if err != nil {
		return "", err
	}
	for _, p := range people {
		h.person(p.name)
		for _, path := range p.images {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			h.image(path, data)
		}
	}
	return h.sum(), nil
}
