package recognition

import (
	"testing"

	"github.com/google/uuid"
)

func TestGalleryStartsEmpty(t *testing.T) {
	g := NewGallery()
	if n := g.Snapshot().Len(); n != 0 {
		t.Fatalf("new gallery has %d entries", n)
	}
}

func TestGalleryUpsertReplaces(t *testing.T) {
	g := NewGallery()
	id := uuid.New()

	g.Upsert(id, []float32{1, 2})
	g.Upsert(id, []float32{3, 4})

	snap := g.Snapshot()
	if snap.Len() != 1 {
		t.Fatalf("len = %d after double upsert of same id, want 1", snap.Len())
	}
	if got := snap.Entries()[0].Embedding[0]; got != 3 {
		t.Errorf("embedding not replaced, got %v", got)
	}
}

func TestGalleryUpsertPreservesOrder(t *testing.T) {
	g := NewGallery()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	g.Upsert(a, []float32{1})
	g.Upsert(b, []float32{2})
	g.Upsert(c, []float32{3})

	// Re-upserting b must keep it in position, not move it to the end.
	g.Upsert(b, []float32{20})

	entries := g.Snapshot().Entries()
	want := []uuid.UUID{a, b, c}
	for i, e := range entries {
		if e.ID != want[i] {
			t.Fatalf("entry %d = %v, want %v", i, e.ID, want[i])
		}
	}
}

func TestGalleryRemove(t *testing.T) {
	g := NewGallery()
	a, b := uuid.New(), uuid.New()
	g.Upsert(a, []float32{1})
	g.Upsert(b, []float32{2})

	g.Remove(a)

	snap := g.Snapshot()
	if snap.Len() != 1 {
		t.Fatalf("len = %d after remove, want 1", snap.Len())
	}
	if snap.Entries()[0].ID != b {
		t.Error("wrong entry removed")
	}

	// Removing an absent id is a no-op.
	g.Remove(uuid.New())
	if g.Snapshot().Len() != 1 {
		t.Error("remove of absent id changed the gallery")
	}
}

// A snapshot taken before a write never sees the write.
func TestSnapshotIsolation(t *testing.T) {
	g := NewGallery()
	id := uuid.New()
	g.Upsert(id, []float32{1})

	before := g.Snapshot()
	g.Replace([]Entry{
		{ID: uuid.New(), Embedding: []float32{9}},
		{ID: uuid.New(), Embedding: []float32{9}},
	})

	if before.Len() != 1 {
		t.Errorf("old snapshot len = %d after replace, want 1", before.Len())
	}
	if before.Entries()[0].ID != id {
		t.Error("old snapshot mutated by replace")
	}
	if g.Snapshot().Len() != 2 {
		t.Errorf("new snapshot len = %d, want 2", g.Snapshot().Len())
	}
}
