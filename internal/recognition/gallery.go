package recognition

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Entry is one (id, embedding) pair available for matching.
type Entry struct {
	ID        uuid.UUID
	Embedding []float32
}

// Snapshot is an immutable view of a gallery at a point in time. Matchers
// iterate entries in the order they were loaded; that order is the tie-break
// rule for exactly-equal distances, so it must be stable (storage returns
// embeddings ordered by enrollment time).
type Snapshot struct {
	entries []Entry
}

func NewSnapshot(entries []Entry) *Snapshot {
	return &Snapshot{entries: entries}
}

func (s *Snapshot) Entries() []Entry {
	return s.entries
}

func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Gallery owns a swappable snapshot. Readers grab the current snapshot and
// match against it without locking; writers build a complete replacement and
// publish it atomically, so a concurrent matcher never observes a torn view.
//
// The persisted store is the source of truth; a gallery is a cache that can
// be rebuilt from it at any time.
type Gallery struct {
	snap atomic.Pointer[Snapshot]
}

func NewGallery() *Gallery {
	g := &Gallery{}
	g.snap.Store(NewSnapshot(nil))
	return g
}

// Snapshot returns the current published view.
func (g *Gallery) Snapshot() *Snapshot {
	return g.snap.Load()
}

// Replace publishes a new snapshot built from the given entries.
func (g *Gallery) Replace(entries []Entry) {
	g.snap.Store(NewSnapshot(entries))
}

// Upsert publishes a new snapshot with the entry for id replaced (or appended
// when absent). The existing snapshot is never mutated in place.
func (g *Gallery) Upsert(id uuid.UUID, embedding []float32) {
	old := g.snap.Load().entries
	entries := make([]Entry, 0, len(old)+1)
	replaced := false
	for _, e := range old {
		if e.ID == id {
			entries = append(entries, Entry{ID: id, Embedding: embedding})
			replaced = true
			continue
		}
		entries = append(entries, e)
	}
	if !replaced {
		entries = append(entries, Entry{ID: id, Embedding: embedding})
	}
	g.snap.Store(NewSnapshot(entries))
}

// Remove publishes a new snapshot without the entry for id.
func (g *Gallery) Remove(id uuid.UUID) {
	old := g.snap.Load().entries
	entries := make([]Entry, 0, len(old))
	for _, e := range old {
		if e.ID != id {
			entries = append(entries, e)
		}
	}
	g.snap.Store(NewSnapshot(entries))
}
