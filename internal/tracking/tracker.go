// Package tracking turns identity matches into durable, temporally consistent
// IN/OUT presence events.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/campuswatch/internal/models"
)

// EventStore is the append-only presence log.
type EventStore interface {
	AppendPresenceEvent(ctx context.Context, ev *models.PresenceEvent) error
	LoadLastEvent(ctx context.Context, identityID uuid.UUID) (*models.PresenceEvent, error)
}

// Outcome reports what one observation did. Event is always set on success:
// either the newly created event or, for a suppressed duplicate, the prior
// one, so callers can attach emotion observations in both cases.
type Outcome struct {
	Created   bool                  `json:"created"`
	Direction models.Direction      `json:"direction"`
	Message   string                `json:"message"`
	Event     *models.PresenceEvent `json:"event"`
}

// Tracker runs the per-identity IN/OUT state machine:
//
//	no history -> IN
//	IN         -> OUT
//	OUT        -> IN
//
// An observation inside the debounce window of the identity's latest event
// creates nothing and reports the prior event instead, so rapid repeated
// camera triggers cannot flip direction back and forth.
//
// A first-ever observation is always IN by construction; there is no way to
// be recorded OUT without a prior IN. That mirrors how gates enroll people
// and is deliberate policy, not an oversight.
type Tracker struct {
	store  EventStore
	window time.Duration

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func New(store EventStore, window time.Duration) *Tracker {
	return &Tracker{
		store:  store,
		window: window,
		locks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockFor returns the serialization lock for one identity. The map grows to
// at most the enrolled population and is never pruned.
func (t *Tracker) lockFor(id uuid.UUID) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

// Record applies one observation for identityID at now. The read-decide-write
// sequence is serialized per identity so two near-simultaneous frames cannot
// both conclude "no recent event" and write conflicting directions.
//
// A store failure is returned as an error, never panicked: the kiosk caller
// must still render a response, and must tell the user presence was NOT
// recorded rather than pretending it was.
func (t *Tracker) Record(ctx context.Context, identityID uuid.UUID, method models.VerificationMethod, location string, now time.Time) (*Outcome, error) {
	l := t.lockFor(identityID)
	l.Lock()
	defer l.Unlock()

	last, err := t.store.LoadLastEvent(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("load last event: %w", err)
	}

	if last != nil {
		if age := now.Sub(last.Timestamp); age < t.window {
			return &Outcome{
				Created:   false,
				Direction: last.Direction,
				Message: fmt.Sprintf("Recent %s entry detected %d minutes ago",
					last.Direction, int(age.Minutes())),
				Event: last,
			}, nil
		}
	}

	direction := models.DirectionIn
	if last != nil {
		direction = last.Direction.Opposite()
	}

	ev := &models.PresenceEvent{
		ID:                 uuid.New(),
		IdentityID:         identityID,
		Direction:          direction,
		VerificationMethod: method,
		Location:           location,
		Timestamp:          now,
	}
	if err := t.store.AppendPresenceEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("append presence event: %w", err)
	}

	action := "entered the campus"
	if direction == models.DirectionOut {
		action = "exited the campus"
	}

	return &Outcome{
		Created:   true,
		Direction: direction,
		Message:   "Successfully " + action,
		Event:     ev,
	}, nil
}
