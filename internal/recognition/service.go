package recognition

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/campuswatch/internal/models"
)

// Encoder turns an image into face embeddings, one per detected face. Zero,
// one, or many faces may come back. The decision logic here never looks at
// pixels; the vision package (or a test stub) supplies this capability.
type Encoder interface {
	DetectAndEncode(imageData []byte) ([][]float32, error)
}

// EmbeddingStore is the persistence surface the gallery is rebuilt from.
type EmbeddingStore interface {
	SaveEmbedding(ctx context.Context, identityID uuid.UUID, embedding []float32, photoKey string) error
	DeleteEmbedding(ctx context.Context, identityID uuid.UUID) error
	LoadAllEmbeddings(ctx context.Context) ([]models.IdentityEmbedding, error)
}

// Service owns the staff/student gallery: enrollment writes through to the
// store and republishes the snapshot, reload rebuilds it wholesale.
type Service struct {
	store     EmbeddingStore
	encoder   Encoder
	gallery   *Gallery
	threshold float64

	// serializes enroll/reload so the store and the published snapshot
	// cannot diverge under concurrent administrative calls
	mu sync.Mutex
}

func NewService(store EmbeddingStore, encoder Encoder, threshold float64) *Service {
	return &Service{
		store:     store,
		encoder:   encoder,
		gallery:   NewGallery(),
		threshold: threshold,
	}
}

// Gallery exposes the snapshot source for matchers (the visitor guard reads
// the same gallery).
func (s *Service) Gallery() *Gallery {
	return s.gallery
}

func (s *Service) Threshold() float64 {
	return s.threshold
}

// Enroll extracts the face embedding from image and stores it as the single
// active embedding for identityID. Exactly one face must be present.
// Re-enrolling replaces the prior embedding, never appends.
func (s *Service) Enroll(ctx context.Context, identityID uuid.UUID, image []byte, photoKey string) error {
	if s.encoder == nil {
		return ErrEncoderUnavailable
	}
	embeddings, err := s.encoder.DetectAndEncode(image)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	switch {
	case len(embeddings) == 0:
		return ErrNoFaceDetected
	case len(embeddings) > 1:
		return ErrMultipleFaces
	}
	embedding := embeddings[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SaveEmbedding(ctx, identityID, embedding, photoKey); err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	s.gallery.Upsert(identityID, embedding)
	return nil
}

// Unenroll removes the identity's face data; called when the underlying
// person record is deleted.
func (s *Service) Unenroll(ctx context.Context, identityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteEmbedding(ctx, identityID); err != nil {
		return fmt.Errorf("delete embedding: %w", err)
	}
	s.gallery.Remove(identityID)
	return nil
}

// Reload rebuilds the gallery from persisted storage and publishes the new
// snapshot. Matches in flight keep reading the old snapshot untouched.
func (s *Service) Reload(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.LoadAllEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("load embeddings: %w", err)
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, Entry{ID: r.IdentityID, Embedding: r.Embedding})
	}
	s.gallery.Replace(entries)
	return len(entries), nil
}

// Identify encodes the first face in image and matches it against the
// staff/student gallery. The probe embedding is returned alongside the match
// so callers can reuse it without re-encoding.
func (s *Service) Identify(image []byte) (Match, []float32, error) {
	if s.encoder == nil {
		return Match{}, nil, ErrEncoderUnavailable
	}
	embeddings, err := s.encoder.DetectAndEncode(image)
	if err != nil {
		return Match{}, nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	if len(embeddings) == 0 {
		return Match{}, nil, ErrNoFaceDetected
	}
	probe := embeddings[0]

	m, err := BestMatch(probe, s.gallery.Snapshot(), s.threshold)
	if err != nil {
		return Match{}, probe, err
	}
	return m, probe, nil
}
