package tracking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/campuswatch/internal/models"
)

type fakeEventStore struct {
	events    map[uuid.UUID][]*models.PresenceEvent
	appendErr error
	loadErr   error
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[uuid.UUID][]*models.PresenceEvent)}
}

func (f *fakeEventStore) AppendPresenceEvent(_ context.Context, ev *models.PresenceEvent) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.events[ev.IdentityID] = append(f.events[ev.IdentityID], ev)
	return nil
}

func (f *fakeEventStore) LoadLastEvent(_ context.Context, id uuid.UUID) (*models.PresenceEvent, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	evs := f.events[id]
	if len(evs) == 0 {
		return nil, nil
	}
	return evs[len(evs)-1], nil
}

func TestFirstObservationIsIn(t *testing.T) {
	store := newFakeEventStore()
	tr := New(store, 5*time.Minute)

	out, err := tr.Record(context.Background(), uuid.New(), models.VerifyFace, "Main Gate", time.Now())
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !out.Created {
		t.Error("first observation did not create an event")
	}
	if out.Direction != models.DirectionIn {
		t.Errorf("direction = %s, want IN", out.Direction)
	}
	if !strings.Contains(out.Message, "entered") {
		t.Errorf("message = %q, want an entry message", out.Message)
	}
}

func TestDirectionsAlternate(t *testing.T) {
	store := newFakeEventStore()
	tr := New(store, 5*time.Minute)
	id := uuid.New()

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	want := []models.Direction{
		models.DirectionIn,
		models.DirectionOut,
		models.DirectionIn,
		models.DirectionOut,
	}
	for i, dir := range want {
		now := base.Add(time.Duration(i) * time.Hour)
		out, err := tr.Record(context.Background(), id, models.VerifyFace, "Main Gate", now)
		if err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
		if !out.Created {
			t.Fatalf("Record %d suppressed, want created", i)
		}
		if out.Direction != dir {
			t.Fatalf("Record %d direction = %s, want %s", i, out.Direction, dir)
		}
	}
	if got := len(store.events[id]); got != len(want) {
		t.Errorf("stored %d events, want %d", got, len(want))
	}
}

func TestDebounceSuppressesDuplicate(t *testing.T) {
	store := newFakeEventStore()
	tr := New(store, 5*time.Minute)
	id := uuid.New()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	first, err := tr.Record(context.Background(), id, models.VerifyFace, "Main Gate", base)
	if err != nil {
		t.Fatal(err)
	}

	// 3 minutes later: inside the window, nothing new is written.
	dup, err := tr.Record(context.Background(), id, models.VerifyFace, "Main Gate", base.Add(3*time.Minute))
	if err != nil {
		t.Fatalf("duplicate Record: %v", err)
	}
	if dup.Created {
		t.Error("duplicate inside window created an event")
	}
	if dup.Direction != models.DirectionIn {
		t.Errorf("duplicate reports direction %s, want the prior IN", dup.Direction)
	}
	if !strings.Contains(dup.Message, "3 minutes ago") {
		t.Errorf("message = %q, want elapsed minutes", dup.Message)
	}
	if dup.Event == nil || dup.Event.ID != first.Event.ID {
		t.Error("duplicate outcome does not reference the prior event")
	}
	if len(store.events[id]) != 1 {
		t.Errorf("stored %d events, want 1", len(store.events[id]))
	}
}

func TestDebounceWindowBoundary(t *testing.T) {
	store := newFakeEventStore()
	tr := New(store, 5*time.Minute)
	id := uuid.New()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	if _, err := tr.Record(context.Background(), id, models.VerifyFace, "Main Gate", base); err != nil {
		t.Fatal(err)
	}

	// Exactly at the window: no longer a duplicate.
	out, err := tr.Record(context.Background(), id, models.VerifyFace, "Main Gate", base.Add(5*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !out.Created {
		t.Error("observation at exactly the window boundary suppressed")
	}
	if out.Direction != models.DirectionOut {
		t.Errorf("direction = %s, want OUT", out.Direction)
	}
}

func TestRecordStoreFailure(t *testing.T) {
	store := newFakeEventStore()
	store.appendErr = errors.New("db down")
	tr := New(store, 5*time.Minute)

	out, err := tr.Record(context.Background(), uuid.New(), models.VerifyFace, "Main Gate", time.Now())
	if err == nil {
		t.Fatal("append failure not surfaced")
	}
	if out != nil {
		t.Error("outcome returned alongside error")
	}
}

func TestRecordLoadFailure(t *testing.T) {
	store := newFakeEventStore()
	store.loadErr = errors.New("db down")
	tr := New(store, 5*time.Minute)

	if _, err := tr.Record(context.Background(), uuid.New(), models.VerifyFace, "Main Gate", time.Now()); err == nil {
		t.Fatal("load failure not surfaced")
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	store := newFakeEventStore()
	tr := New(store, 5*time.Minute)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	a, b := uuid.New(), uuid.New()
	outA, err := tr.Record(context.Background(), a, models.VerifyFace, "Main Gate", now)
	if err != nil {
		t.Fatal(err)
	}
	// b seconds later is not a's duplicate.
	outB, err := tr.Record(context.Background(), b, models.VerifyFace, "Main Gate", now.Add(10*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if !outA.Created || !outB.Created {
		t.Error("independent identities interfered with each other")
	}
	if outB.Direction != models.DirectionIn {
		t.Errorf("b direction = %s, want IN", outB.Direction)
	}
}
