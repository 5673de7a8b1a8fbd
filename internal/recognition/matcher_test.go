package recognition

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"unit apart", []float32{0, 0}, []float32{1, 0}, 1},
		{"pythagorean", []float32{0, 0}, []float32{3, 4}, 5},
		{"symmetric", []float32{3, 4}, []float32{0, 0}, 5},
		{"both empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Distance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBestMatchEmptyGallery(t *testing.T) {
	_, err := BestMatch([]float32{1, 2}, NewSnapshot(nil), 0.5)
	if !errors.Is(err, ErrEmptyGallery) {
		t.Fatalf("BestMatch on empty snapshot: err = %v, want ErrEmptyGallery", err)
	}
}

func TestBestMatchSelf(t *testing.T) {
	id := uuid.New()
	snap := NewSnapshot([]Entry{
		{ID: uuid.New(), Embedding: []float32{1, 0, 0}},
		{ID: id, Embedding: []float32{0, 1, 0}},
		{ID: uuid.New(), Embedding: []float32{0, 0, 1}},
	})

	m, err := BestMatch([]float32{0, 1, 0}, snap, 0.5)
	if err != nil {
		t.Fatalf("BestMatch: %v", err)
	}
	if m.ID != id {
		t.Errorf("matched %v, want %v", m.ID, id)
	}
	if m.Distance != 0 {
		t.Errorf("distance = %v, want 0", m.Distance)
	}
	if !m.Accepted {
		t.Error("self match not accepted")
	}
}

// Acceptance is strict: a distance exactly at the threshold is a miss.
func TestBestMatchThresholdBoundary(t *testing.T) {
	snap := NewSnapshot([]Entry{
		{ID: uuid.New(), Embedding: []float32{0, 0}},
	})

	m, err := BestMatch([]float32{0.5, 0}, snap, 0.5)
	if err != nil {
		t.Fatalf("BestMatch: %v", err)
	}
	if m.Accepted {
		t.Errorf("distance %v at threshold 0.5 accepted, want rejected", m.Distance)
	}

	m, err = BestMatch([]float32{0.49, 0}, snap, 0.5)
	if err != nil {
		t.Fatalf("BestMatch: %v", err)
	}
	if !m.Accepted {
		t.Errorf("distance %v under threshold 0.5 rejected, want accepted", m.Distance)
	}
}

func TestBestMatchNoMatchIsNotError(t *testing.T) {
	snap := NewSnapshot([]Entry{
		{ID: uuid.New(), Embedding: []float32{10, 10}},
	})

	m, err := BestMatch([]float32{0, 0}, snap, 0.5)
	if err != nil {
		t.Fatalf("BestMatch below threshold returned error: %v", err)
	}
	if m.Accepted {
		t.Error("far probe accepted")
	}
	if m.Distance <= 0.5 {
		t.Errorf("distance = %v, expected far", m.Distance)
	}
}

// Exactly-equal distances resolve to the entry loaded first, every time.
func TestBestMatchDeterministicTieBreak(t *testing.T) {
	first := uuid.New()
	second := uuid.New()
	snap := NewSnapshot([]Entry{
		{ID: first, Embedding: []float32{1, 0}},
		{ID: second, Embedding: []float32{-1, 0}},
	})

	for i := 0; i < 10; i++ {
		m, err := BestMatch([]float32{0, 0}, snap, 2.0)
		if err != nil {
			t.Fatalf("BestMatch: %v", err)
		}
		if m.ID != first {
			t.Fatalf("tie resolved to %v, want first-loaded %v", m.ID, first)
		}
	}
}
