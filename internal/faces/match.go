package faces

import (
	"context"
	"fmt"
	"math"
)

// Metric measures the distance between two embeddings. Smaller is closer.
type Metric int

const (
	// Euclidean is the L2 distance, as used by dlib-style 128-d encodings.
	Euclidean Metric = iota
	// Cosine is 1 - cosine similarity, for normalized embeddings such as
	// ArcFace/InsightFace.
	Cosine
)

// ParseMetric converts a config value to a Metric.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "euclidean", "":
		return Euclidean, nil
	case "cosine":
		return Cosine, nil
	default:
		return 0, fmt.Errorf("faces: unknown metric %q", s)
	}
}

func (m Metric) String() string {
	if m == Cosine {
		return "cosine"
	}
	return "euclidean"
}

// Distance returns the distance between a and b. Vectors of different or
// zero length are infinitely far apart.
func (m Metric) Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	switch m {
	case Cosine:
		var dot, normA, normB float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			normA += float64(a[i]) * float64(a[i])
			normB += float64(b[i]) * float64(b[i])
		}
		if normA == 0 || normB == 0 {
			return math.Inf(1)
		}
		return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
	default:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	}
}

// Outcome classifies an attribution attempt.
type Outcome int

const (
	Unknown Outcome = iota
	Matched
	NoFace
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case NoFace:
		return "no-face-detected"
	default:
		return "unknown"
	}
}

// Result is the outcome of attributing one image.
type Result struct {
	Outcome Outcome
	Person  string
	// Matches is how many of Person's embeddings fell within tolerance.
	Matches int
}

// Match returns the first person in gallery order with any embedding within
// tolerance of query. It does not look for the closest person: a later
// person with a smaller distance never displaces an earlier hit.
func Match(query []float32, g *Gallery, tolerance float64, metric Metric) Result {
	if g == nil {
		return Result{Outcome: Unknown}
	}
	for _, p := range g.People {
		n := 0
		for _, e := range p.Embeddings {
			if metric.Distance(query, e) <= tolerance {
				n++
			}
		}
		if n > 0 {
			return Result{Outcome: Matched, Person: p.Name, Matches: n}
		}
	}
	return Result{Outcome: Unknown}
}

// Attributor matches captured images against a fixed gallery.
type Attributor struct {
	extractor Extractor
	gallery   *Gallery
	tolerance float64
	metric    Metric
}

// NewAttributor creates an Attributor. The gallery must not be modified
// while the Attributor is in use.
func NewAttributor(extractor Extractor, gallery *Gallery, tolerance float64, metric Metric) *Attributor {
	if gallery == nil {
		gallery = &Gallery{}
	}
	return &Attributor{
		extractor: extractor,
		gallery:   gallery,
		tolerance: tolerance,
		metric:    metric,
	}
}

// Attribute extracts faces from image and matches the first one. An error
// is returned only when extraction itself fails.
func (a *Attributor) Attribute(ctx context.Context, image []byte) (Result, error) {
	embeddings, err := a.extractor.Extract(ctx, image)
	if err != nil {
		return Result{}, fmt.Errorf("faces: extract: %w", err)
	}
	if len(embeddings) == 0 {
		return Result{Outcome: NoFace}, nil
	}
	return Match(embeddings[0], a.gallery, a.tolerance, a.metric), nil
}
