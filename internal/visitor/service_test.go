package visitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/campuswatch/internal/models"
	"github.com/your-org/campuswatch/internal/recognition"
)

type fakeVisitorStore struct {
	records map[uuid.UUID]*models.VisitorRecord
	saveErr error
}

func newFakeVisitorStore() *fakeVisitorStore {
	return &fakeVisitorStore{records: make(map[uuid.UUID]*models.VisitorRecord)}
}

func (f *fakeVisitorStore) SaveVisitorRecord(_ context.Context, v *models.VisitorRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *v
	f.records[v.ID] = &cp
	return nil
}

func (f *fakeVisitorStore) GetVisitorRecord(_ context.Context, id uuid.UUID) (*models.VisitorRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeVisitorStore) MarkVisitorExit(_ context.Context, id uuid.UUID, exitTime time.Time) error {
	rec, ok := f.records[id]
	if !ok || rec.Status != models.VisitorIn {
		return errors.New("visitor not checked in")
	}
	rec.Status = models.VisitorOut
	rec.ExitTime = &exitTime
	return nil
}

func (f *fakeVisitorStore) LoadVisitorEmbeddings(_ context.Context) ([]models.VisitorRecord, error) {
	var out []models.VisitorRecord
	for _, rec := range f.records {
		if len(rec.Embedding) > 0 {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type fakePhotoStore struct {
	keys []string
	err  error
}

func (f *fakePhotoStore) PutObject(_ context.Context, key string, _ []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	return nil
}

type fakeEncoder struct {
	faces [][]float32
	err   error
}

func (f *fakeEncoder) DetectAndEncode(_ []byte) ([][]float32, error) {
	return f.faces, f.err
}

func newTestService(store *fakeVisitorStore, enc *fakeEncoder, staffEntries []recognition.Entry) *Service {
	staff := recognition.NewGallery()
	staff.Replace(staffEntries)
	return NewService(store, &fakePhotoStore{}, enc, staff, 0.50, 0.55)
}

func checkIn(t *testing.T, svc *Service, name string) *CheckInResult {
	t.Helper()
	result, err := svc.CheckIn(context.Background(), CheckInRequest{
		Name:   name,
		Reason: "meeting",
		Photo:  []byte("photo"),
	})
	if err != nil {
		t.Fatalf("CheckIn(%s): %v", name, err)
	}
	return result
}

func TestCheckInNewVisitor(t *testing.T) {
	store := newFakeVisitorStore()
	svc := newTestService(store, &fakeEncoder{faces: [][]float32{{1, 0}}}, nil)

	result := checkIn(t, svc, "Dana")
	if !result.Accepted {
		t.Fatalf("rejected: %s", result.RejectReason)
	}
	if result.IsReturning {
		t.Error("first visit flagged as returning")
	}
	if result.VisitCount != 0 {
		t.Errorf("visit count = %d, want 0", result.VisitCount)
	}
	if !strings.Contains(result.Message, "First time visitor") {
		t.Errorf("message = %q", result.Message)
	}
	if len(result.Record.Embedding) == 0 {
		t.Error("single-face check-in did not keep the embedding")
	}
	if result.Record.Status != models.VisitorIn {
		t.Errorf("status = %s, want IN", result.Record.Status)
	}
}

// A face already enrolled as staff or student must never become a visitor.
func TestCheckInStaffGuard(t *testing.T) {
	staffID := uuid.New()
	store := newFakeVisitorStore()
	svc := newTestService(store,
		&fakeEncoder{faces: [][]float32{{1, 0}}},
		[]recognition.Entry{{ID: staffID, Embedding: []float32{1, 0}}},
	)

	result := checkIn(t, svc, "Imposter")
	if result.Accepted {
		t.Fatal("staff face accepted as visitor")
	}
	if !strings.Contains(result.RejectReason, "staff or student") {
		t.Errorf("reject reason = %q", result.RejectReason)
	}
	if len(store.records) != 0 {
		t.Error("rejected check-in persisted a record")
	}
}

func TestCheckInReturningVisitor(t *testing.T) {
	store := newFakeVisitorStore()
	svc := newTestService(store, &fakeEncoder{faces: [][]float32{{0, 1}}}, nil)

	first := checkIn(t, svc, "Dana")
	second := checkIn(t, svc, "Dana")

	if !second.IsReturning {
		t.Fatal("same face not linked as returning")
	}
	if second.VisitCount != 1 {
		t.Errorf("second visit count = %d, want 1", second.VisitCount)
	}
	if !strings.Contains(second.Message, "Welcome back") || !strings.Contains(second.Message, "#2") {
		t.Errorf("message = %q", second.Message)
	}
	if second.Record.ID == first.Record.ID {
		t.Error("returning visit reused the prior record id")
	}

	third := checkIn(t, svc, "Dana")
	if third.VisitCount != 2 {
		t.Errorf("third visit count = %d, want 2", third.VisitCount)
	}
}

// Zero or multiple faces still check in, just without recognition next time.
func TestCheckInEmbeddingBestEffort(t *testing.T) {
	tests := []struct {
		name  string
		faces [][]float32
	}{
		{"no face", nil},
		{"two faces", [][]float32{{1, 0}, {0, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeVisitorStore()
			svc := newTestService(store, &fakeEncoder{faces: tt.faces}, nil)

			result := checkIn(t, svc, "Dana")
			if !result.Accepted {
				t.Fatalf("rejected: %s", result.RejectReason)
			}
			if len(result.Record.Embedding) != 0 {
				t.Error("ambiguous photo still stored an embedding")
			}
		})
	}
}

func TestCheckInEncoderFailureTolerated(t *testing.T) {
	store := newFakeVisitorStore()
	svc := newTestService(store, &fakeEncoder{err: errors.New("boom")}, nil)

	result := checkIn(t, svc, "Dana")
	if !result.Accepted {
		t.Fatalf("encode failure rejected the check-in: %s", result.RejectReason)
	}
	if len(result.Record.Embedding) != 0 {
		t.Error("embedding present despite encode failure")
	}
}

func TestCheckOut(t *testing.T) {
	store := newFakeVisitorStore()
	svc := newTestService(store, &fakeEncoder{faces: [][]float32{{1, 0}}}, nil)

	result := checkIn(t, svc, "Dana")
	now := time.Now().UTC()

	rec, err := svc.CheckOut(context.Background(), result.Record.ID, now)
	if err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	if rec.Status != models.VisitorOut {
		t.Errorf("status = %s, want OUT", rec.Status)
	}
	if rec.ExitTime == nil || !rec.ExitTime.Equal(now) {
		t.Error("exit time not recorded")
	}

	_, err = svc.CheckOut(context.Background(), result.Record.ID, now)
	if !errors.Is(err, ErrAlreadyCheckedOut) {
		t.Fatalf("second checkout: err = %v, want ErrAlreadyCheckedOut", err)
	}
}

func TestCheckOutUnknownVisitor(t *testing.T) {
	svc := newTestService(newFakeVisitorStore(), &fakeEncoder{}, nil)

	_, err := svc.CheckOut(context.Background(), uuid.New(), time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReloadSkipsRecordsWithoutEmbedding(t *testing.T) {
	store := newFakeVisitorStore()
	withEmb := &models.VisitorRecord{ID: uuid.New(), Name: "A", Embedding: []float32{1}, Status: models.VisitorIn}
	without := &models.VisitorRecord{ID: uuid.New(), Name: "B", Status: models.VisitorIn}
	store.records[withEmb.ID] = withEmb
	store.records[without.ID] = without

	svc := newTestService(store, &fakeEncoder{}, nil)
	n, err := svc.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if n != 1 {
		t.Errorf("loaded %d, want 1", n)
	}
}
