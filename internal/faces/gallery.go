// Package faces builds and caches the known-faces gallery and attributes
// captured images to a person in it.
package faces

import "time"

// Person is one gallery entry. Embeddings is never empty in a built gallery.
type Person struct {
	Name       string      `msgpack:"name"`
	Embeddings [][]float32 `msgpack:"embeddings"`
}

// Gallery is the ordered set of known people. Order is significant: the
// matcher walks it front to back and stops at the first hit.
type Gallery struct {
	SourceDir   string    `msgpack:"source_dir"`
	Fingerprint string    `msgpack:"fingerprint"`
	BuiltAt     time.Time `msgpack:"built_at"`
	People      []Person  `msgpack:"people"`
}

// Len returns the number of people.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.People)
}

// EmbeddingCount returns the total number of stored embeddings.
func (g *Gallery) EmbeddingCount() int {
	if g == nil {
		return 0
	}
	n := 0
	for _, p := range g.People {
		n += len(p.Embeddings)
	}
	return n
}

// Names returns person names in gallery order.
func (g *Gallery) Names() []string {
	if g == nil {
		return nil
	}
	names := make([]string, len(g.People))
	for i, p := range g.People {
		names[i] = p.Name
	}
	return names
}

// add appends a person, dropping it if it has no embeddings.
func (g *Gallery) add(name string, embeddings [][]float32) bool {
	if len(embeddings) == 0 {
		return false
	}
	g.People = append(g.People, Person{Name: name, Embeddings: embeddings})
	return true
}
