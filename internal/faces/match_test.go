package faces

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestMetricDistance(t *testing.T) {
	tests := []struct {
		name   string
		metric Metric
		a, b   []float32
		want   float64
	}{
		{"euclidean identical", Euclidean, []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"euclidean 3-4-5", Euclidean, []float32{0, 0}, []float32{3, 4}, 5},
		{"cosine identical", Cosine, []float32{1, 0}, []float32{2, 0}, 0},
		{"cosine orthogonal", Cosine, []float32{1, 0}, []float32{0, 1}, 1},
		{"cosine opposite", Cosine, []float32{1, 0}, []float32{-1, 0}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.metric.Distance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Distance(%v, %v) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMetricDistanceMismatch(t *testing.T) {
	for _, m := range []Metric{Euclidean, Cosine} {
		if d := m.Distance([]float32{1, 2}, []float32{1}); !math.IsInf(d, 1) {
			t.Errorf("%v.Distance() with mismatched dims = %f, want +Inf", m, d)
		}
		if d := m.Distance(nil, nil); !math.IsInf(d, 1) {
			t.Errorf("%v.Distance() with empty vectors = %f, want +Inf", m, d)
		}
	}
	if d := Cosine.Distance([]float32{0, 0}, []float32{1, 0}); !math.IsInf(d, 1) {
		t.Errorf("Cosine.Distance() with zero vector = %f, want +Inf", d)
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"euclidean", Euclidean, false},
		{"", Euclidean, false},
		{"cosine", Cosine, false},
		{"manhattan", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMetric(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMetric(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func aliceBobGallery() *Gallery {
	return &Gallery{People: []Person{
		{Name: "Alice", Embeddings: [][]float32{{0, 0}, {1, 0}, {0.1, 0}}},
		{Name: "Bob", Embeddings: [][]float32{{5, 5}, {6, 6}}},
	}}
}

func TestMatchAlice(t *testing.T) {
	got := Match([]float32{0.9, 0.1}, aliceBobGallery(), 0.45, Euclidean)
	if got.Outcome != Matched || got.Person != "Alice" {
		t.Fatalf("Match() = %+v, want Alice", got)
	}
	if got.Matches != 1 {
		t.Errorf("Matches = %d, want 1", got.Matches)
	}
}

func TestMatchCountsEmbeddingsWithinTolerance(t *testing.T) {
	got := Match([]float32{0.05, 0}, aliceBobGallery(), 0.45, Euclidean)
	if got.Person != "Alice" || got.Matches != 2 {
		t.Errorf("Match() = %+v, want Alice with 2 matches", got)
	}
}

func TestMatchUnknown(t *testing.T) {
	got := Match([]float32{20, 20}, aliceBobGallery(), 0.45, Euclidean)
	if got.Outcome != Unknown || got.Person != "" {
		t.Errorf("Match() = %+v, want unknown", got)
	}
}

func TestMatchFirstPersonWinsOverCloser(t *testing.T) {
	g := &Gallery{People: []Person{
		{Name: "Alice", Embeddings: [][]float32{{0.4, 0}}},
		{Name: "Bob", Embeddings: [][]float32{{0, 0}}},
	}}
	// Bob is an exact match, but Alice is within tolerance and comes first.
	got := Match([]float32{0, 0}, g, 0.45, Euclidean)
	if got.Person != "Alice" {
		t.Errorf("Match() = %+v, want Alice (first match, not best)", got)
	}

	// Stricter tolerance excludes Alice.
	got = Match([]float32{0, 0}, g, 0.3, Euclidean)
	if got.Person != "Bob" {
		t.Errorf("Match() = %+v, want Bob", got)
	}
}

func TestMatchToleranceBoundaryInclusive(t *testing.T) {
	g := &Gallery{People: []Person{{Name: "Alice", Embeddings: [][]float32{{3, 4}}}}}
	if got := Match([]float32{0, 0}, g, 5, Euclidean); got.Outcome != Matched {
		t.Errorf("Match() at distance == tolerance = %+v, want matched", got)
	}
}

func TestMatchDeterministic(t *testing.T) {
	g := aliceBobGallery()
	q := []float32{0.2, 0.1}
	first := Match(q, g, 0.45, Euclidean)
	for i := 0; i < 10; i++ {
		if got := Match(q, g, 0.45, Euclidean); got != first {
			t.Fatalf("Match() run %d = %+v, want %+v", i, got, first)
		}
	}
}

func TestMatchNilAndEmptyGallery(t *testing.T) {
	if got := Match([]float32{0}, nil, 1, Euclidean); got.Outcome != Unknown {
		t.Errorf("Match(nil gallery) = %+v, want unknown", got)
	}
	if got := Match([]float32{0}, &Gallery{}, 1, Euclidean); got.Outcome != Unknown {
		t.Errorf("Match(empty gallery) = %+v, want unknown", got)
	}
}

type stubExtractor struct {
	embeddings [][]float32
	err        error
}

func (s stubExtractor) Extract(context.Context, []byte) ([][]float32, error) {
	return s.embeddings, s.err
}

func TestAttributorNoFace(t *testing.T) {
	a := NewAttributor(stubExtractor{}, aliceBobGallery(), 0.45, Euclidean)
	got, err := a.Attribute(t.Context(), []byte("img"))
	if err != nil {
		t.Fatalf("Attribute() error = %v", err)
	}
	if got.Outcome != NoFace {
		t.Errorf("Outcome = %v, want %v", got.Outcome, NoFace)
	}
}

func TestAttributorUsesFirstFace(t *testing.T) {
	ex := stubExtractor{embeddings: [][]float32{{5.1, 5}, {0, 0}}}
	a := NewAttributor(ex, aliceBobGallery(), 0.45, Euclidean)
	got, err := a.Attribute(t.Context(), []byte("img"))
	if err != nil {
		t.Fatalf("Attribute() error = %v", err)
	}
	if got.Person != "Bob" {
		t.Errorf("Person = %q, want Bob (first detected face)", got.Person)
	}
}

func TestAttributorExtractError(t *testing.T) {
	boom := errors.New("boom")
	a := NewAttributor(stubExtractor{err: boom}, nil, 0.45, Euclidean)
	if _, err := a.Attribute(t.Context(), []byte("img")); !errors.Is(err, boom) {
		t.Errorf("Attribute() error = %v, want %v", err, boom)
	}
}

func TestOutcomeString(t *testing.T) {
	tests := map[Outcome]string{Matched: "matched", Unknown: "unknown", NoFace: "no-face-detected"}
	for o, want := range tests {
		if got := o.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(o), got, want)
		}
	}
}
