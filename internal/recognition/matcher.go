package recognition

import (
	"math"

	"github.com/google/uuid"
)

// Match is the result of probing a gallery snapshot.
type Match struct {
	ID       uuid.UUID
	Distance float64
	Accepted bool
}

// Distance computes the Euclidean distance between two embeddings. Lower is
// more similar; identical embeddings are at distance zero.
func Distance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// BestMatch scans the snapshot for the entry nearest to probe and reports
// whether it clears the acceptance threshold (accepted iff distance <
// threshold, strictly).
//
// Ties at exactly-equal minimum distance go to the entry seen first in
// snapshot iteration order, which keeps results reproducible across runs.
// An empty snapshot returns ErrEmptyGallery so callers can distinguish
// "nobody enrolled" from "nobody matched".
//
// Pure function of its inputs; no side effects.
func BestMatch(probe []float32, snap *Snapshot, threshold float64) (Match, error) {
	if snap.Len() == 0 {
		return Match{}, ErrEmptyGallery
	}

	best := Match{Distance: math.Inf(1)}
	for _, e := range snap.Entries() {
		d := Distance(probe, e.Embedding)
		if d < best.Distance {
			best.ID = e.ID
			best.Distance = d
		}
	}

	best.Accepted = best.Distance < threshold
	return best, nil
}
