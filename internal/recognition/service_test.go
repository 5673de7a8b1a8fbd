package recognition

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/your-org/campuswatch/internal/models"
)

type fakeStore struct {
	saved   map[uuid.UUID][]float32
	records []models.IdentityEmbedding
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[uuid.UUID][]float32)}
}

func (f *fakeStore) SaveEmbedding(_ context.Context, id uuid.UUID, emb []float32, _ string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[id] = emb
	return nil
}

func (f *fakeStore) DeleteEmbedding(_ context.Context, id uuid.UUID) error {
	delete(f.saved, id)
	return nil
}

func (f *fakeStore) LoadAllEmbeddings(_ context.Context) ([]models.IdentityEmbedding, error) {
	return f.records, nil
}

type fakeEncoder struct {
	faces [][]float32
	err   error
}

func (f *fakeEncoder) DetectAndEncode(_ []byte) ([][]float32, error) {
	return f.faces, f.err
}

func TestEnrollSingleFace(t *testing.T) {
	store := newFakeStore()
	enc := &fakeEncoder{faces: [][]float32{{1, 2, 3}}}
	svc := NewService(store, enc, 0.5)

	id := uuid.New()
	if err := svc.Enroll(context.Background(), id, []byte("img"), "faces/key.jpg"); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	if _, ok := store.saved[id]; !ok {
		t.Error("embedding not persisted")
	}
	if svc.Gallery().Snapshot().Len() != 1 {
		t.Error("gallery not updated after enroll")
	}
}

func TestEnrollFaceCountErrors(t *testing.T) {
	tests := []struct {
		name    string
		faces   [][]float32
		wantErr error
	}{
		{"zero faces", nil, ErrNoFaceDetected},
		{"two faces", [][]float32{{1}, {2}}, ErrMultipleFaces},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			svc := NewService(store, &fakeEncoder{faces: tt.faces}, 0.5)

			err := svc.Enroll(context.Background(), uuid.New(), []byte("img"), "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(store.saved) != 0 {
				t.Error("rejected enrollment still persisted")
			}
			if svc.Gallery().Snapshot().Len() != 0 {
				t.Error("rejected enrollment reached the gallery")
			}
		})
	}
}

func TestEnrollEncoderFailure(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeEncoder{err: errors.New("boom")}, 0.5)

	err := svc.Enroll(context.Background(), uuid.New(), []byte("img"), "")
	if !errors.Is(err, ErrEncodingFailed) {
		t.Fatalf("err = %v, want ErrEncodingFailed", err)
	}
}

func TestEnrollStoreFailureKeepsGalleryClean(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("db down")
	svc := NewService(store, &fakeEncoder{faces: [][]float32{{1}}}, 0.5)

	if err := svc.Enroll(context.Background(), uuid.New(), []byte("img"), ""); err == nil {
		t.Fatal("expected error")
	}
	if svc.Gallery().Snapshot().Len() != 0 {
		t.Error("gallery updated despite store failure")
	}
}

func TestReEnrollReplaces(t *testing.T) {
	store := newFakeStore()
	enc := &fakeEncoder{faces: [][]float32{{1, 1}}}
	svc := NewService(store, enc, 0.5)

	id := uuid.New()
	if err := svc.Enroll(context.Background(), id, []byte("a"), ""); err != nil {
		t.Fatal(err)
	}
	enc.faces = [][]float32{{2, 2}}
	if err := svc.Enroll(context.Background(), id, []byte("b"), ""); err != nil {
		t.Fatal(err)
	}

	snap := svc.Gallery().Snapshot()
	if snap.Len() != 1 {
		t.Fatalf("gallery len = %d after re-enroll, want 1", snap.Len())
	}
	if snap.Entries()[0].Embedding[0] != 2 {
		t.Error("re-enroll did not replace the embedding")
	}
}

func TestReloadRebuildsGallery(t *testing.T) {
	store := newFakeStore()
	a, b := uuid.New(), uuid.New()
	store.records = []models.IdentityEmbedding{
		{IdentityID: a, Embedding: []float32{1}},
		{IdentityID: b, Embedding: []float32{2}},
	}
	svc := NewService(store, &fakeEncoder{}, 0.5)

	n, err := svc.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if n != 2 {
		t.Errorf("loaded %d, want 2", n)
	}

	entries := svc.Gallery().Snapshot().Entries()
	if entries[0].ID != a || entries[1].ID != b {
		t.Error("gallery order does not follow storage order")
	}
}

func TestIdentifyMatchesFirstFace(t *testing.T) {
	store := newFakeStore()
	id := uuid.New()
	enc := &fakeEncoder{faces: [][]float32{{0, 1}}}
	svc := NewService(store, enc, 0.5)
	svc.Gallery().Replace([]Entry{{ID: id, Embedding: []float32{0, 1}}})

	m, probe, err := svc.Identify([]byte("img"))
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if !m.Accepted || m.ID != id {
		t.Errorf("match = %+v, want accepted %v", m, id)
	}
	if probe == nil {
		t.Error("probe embedding not returned")
	}
}

func TestIdentifyNoEncoder(t *testing.T) {
	svc := NewService(newFakeStore(), nil, 0.5)

	_, _, err := svc.Identify([]byte("img"))
	if !errors.Is(err, ErrEncoderUnavailable) {
		t.Fatalf("err = %v, want ErrEncoderUnavailable", err)
	}
}
