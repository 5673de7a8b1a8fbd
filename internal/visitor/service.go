// Package visitor gatekeeps guest check-in against the staff/student
// population and deduplicates repeat visitors by face.
package visitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/campuswatch/internal/models"
	"github.com/your-org/campuswatch/internal/recognition"
)

var (
	ErrNotFound          = errors.New("visitor not found")
	ErrAlreadyCheckedOut = errors.New("visitor already checked out")
)

// Store is the persistence surface for visitor records.
type Store interface {
	SaveVisitorRecord(ctx context.Context, v *models.VisitorRecord) error
	GetVisitorRecord(ctx context.Context, id uuid.UUID) (*models.VisitorRecord, error)
	MarkVisitorExit(ctx context.Context, id uuid.UUID, exitTime time.Time) error
	LoadVisitorEmbeddings(ctx context.Context) ([]models.VisitorRecord, error)
}

// PhotoStore keeps the raw check-in photos.
type PhotoStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
}

// CheckInRequest carries the kiosk form fields plus the raw photo.
type CheckInRequest struct {
	Name         string
	Reason       string
	Phone        string
	Organization string
	HostName     string
	Photo        []byte
	CreatedBy    string
}

// CheckInResult is what the kiosk renders.
type CheckInResult struct {
	Accepted bool
	// Reason the check-in was refused; only set when Accepted is false.
	RejectReason string
	Record       *models.VisitorRecord
	IsReturning  bool
	VisitCount   int
	Message      string
}

// Service implements visitor check-in/out. It reads the staff/student gallery
// owned by the recognition service and owns the visitor gallery itself,
// mirrored from the visitor record store with the same swap-snapshot rules.
type Service struct {
	store   Store
	photos  PhotoStore
	encoder recognition.Encoder

	staffGallery   *recognition.Gallery
	staffThreshold float64

	gallery          *recognition.Gallery
	visitorThreshold float64

	// serializes check-in writes so the persisted store and the visitor
	// gallery snapshot stay in step
	mu sync.Mutex
}

func NewService(
	store Store,
	photos PhotoStore,
	encoder recognition.Encoder,
	staffGallery *recognition.Gallery,
	staffThreshold, visitorThreshold float64,
) *Service {
	return &Service{
		store:            store,
		photos:           photos,
		encoder:          encoder,
		staffGallery:     staffGallery,
		staffThreshold:   staffThreshold,
		gallery:          recognition.NewGallery(),
		visitorThreshold: visitorThreshold,
	}
}

// Reload rebuilds the visitor gallery from persisted records carrying an
// embedding. Safe under concurrent check-ins reading the old snapshot.
func (s *Service) Reload(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.store.LoadVisitorEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("load visitor embeddings: %w", err)
	}

	entries := make([]recognition.Entry, 0, len(records))
	for _, r := range records {
		if len(r.Embedding) == 0 {
			continue
		}
		entries = append(entries, recognition.Entry{ID: r.ID, Embedding: r.Embedding})
	}
	s.gallery.Replace(entries)
	return len(entries), nil
}

// CheckIn runs the mandatory three-step flow:
//
//  1. Staff/student guard. A face matching the staff/student gallery is
//     refused outright: visitor enrollment must never mint a second,
//     lower-trust identity for someone who already has an account.
//  2. Returning-visitor match against the visitor gallery; a hit links the
//     new record to the prior visit and bumps the visit counter.
//  3. Best-effort enrollment: the embedding is attached only when exactly
//     one face was detected; anything else still checks in, just without
//     recognition on the next visit.
func (s *Service) CheckIn(ctx context.Context, req CheckInRequest) (*CheckInResult, error) {
	var embeddings [][]float32
	if s.encoder != nil {
		var err error
		embeddings, err = s.encoder.DetectAndEncode(req.Photo)
		if err != nil {
			slog.Warn("visitor photo encode failed", "error", err, "name", req.Name)
			embeddings = nil
		}
	}

	var probe []float32
	if len(embeddings) > 0 {
		probe = embeddings[0]
	}

	// Step 1: staff/student guard.
	if probe != nil {
		m, err := recognition.BestMatch(probe, s.staffGallery.Snapshot(), s.staffThreshold)
		if err == nil && m.Accepted {
			return &CheckInResult{
				Accepted: false,
				RejectReason: "Access denied: you are registered as staff or student. " +
					"Please use the student/faculty entry system, not the visitor kiosk.",
			}, nil
		}
	}

	// Step 2: returning-visitor match.
	var prior *models.VisitorRecord
	if probe != nil {
		m, err := recognition.BestMatch(probe, s.gallery.Snapshot(), s.visitorThreshold)
		if err == nil && m.Accepted {
			prior, err = s.store.GetVisitorRecord(ctx, m.ID)
			if err != nil {
				return nil, fmt.Errorf("load prior visitor: %w", err)
			}
		}
	}

	// Step 3: persist the record; embedding only with exactly one face.
	var embedding []float32
	if len(embeddings) == 1 {
		embedding = embeddings[0]
	}

	now := time.Now().UTC()
	rec := &models.VisitorRecord{
		ID:           uuid.New(),
		Name:         req.Name,
		Reason:       req.Reason,
		Phone:        req.Phone,
		Organization: req.Organization,
		HostName:     req.HostName,
		PhotoKey:     fmt.Sprintf("visitors/%s/%s.jpg", now.Format("2006-01-02"), uuid.New()),
		Embedding:    embedding,
		EntryTime:    now,
		Status:       models.VisitorIn,
		CreatedBy:    req.CreatedBy,
	}
	if prior != nil {
		rec.IsReturning = true
		rec.PreviousVisitCount = prior.PreviousVisitCount + 1
	}

	if err := s.photos.PutObject(ctx, rec.PhotoKey, req.Photo, "image/jpeg"); err != nil {
		slog.Warn("store visitor photo", "error", err, "key", rec.PhotoKey)
		rec.PhotoKey = ""
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SaveVisitorRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("save visitor record: %w", err)
	}
	if len(rec.Embedding) > 0 {
		// Keep one gallery entry per face: the latest record carries the
		// visit chain, so the next match must land on it, not on the oldest.
		if prior != nil {
			s.gallery.Remove(prior.ID)
		}
		s.gallery.Upsert(rec.ID, rec.Embedding)
	}

	msg := fmt.Sprintf("Welcome, %s! First time visitor", rec.Name)
	if rec.IsReturning {
		msg = fmt.Sprintf("Welcome back, %s! This is visit #%d", rec.Name, rec.PreviousVisitCount+1)
	}

	return &CheckInResult{
		Accepted:    true,
		Record:      rec,
		IsReturning: rec.IsReturning,
		VisitCount:  rec.PreviousVisitCount,
		Message:     msg,
	}, nil
}

// CheckOut marks the visitor as exited. The record must currently be IN.
func (s *Service) CheckOut(ctx context.Context, visitorID uuid.UUID, now time.Time) (*models.VisitorRecord, error) {
	rec, err := s.store.GetVisitorRecord(ctx, visitorID)
	if err != nil {
		return nil, fmt.Errorf("load visitor: %w", err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.Status == models.VisitorOut {
		return nil, ErrAlreadyCheckedOut
	}

	if err := s.store.MarkVisitorExit(ctx, visitorID, now); err != nil {
		return nil, fmt.Errorf("mark visitor exit: %w", err)
	}

	rec.Status = models.VisitorOut
	rec.ExitTime = &now
	return rec, nil
}
