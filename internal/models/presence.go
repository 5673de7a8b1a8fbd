package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Opposite returns the alternated direction for the next observation.
func (d Direction) Opposite() Direction {
	if d == DirectionIn {
		return DirectionOut
	}
	return DirectionIn
}

type VerificationMethod string

const (
	VerifyFace   VerificationMethod = "face"
	VerifyManual VerificationMethod = "manual"
)

// PresenceEvent is one IN or OUT observation for an identity. Events are
// append-only: never updated or deleted once written.
type PresenceEvent struct {
	ID                 uuid.UUID          `json:"id" db:"id"`
	IdentityID         uuid.UUID          `json:"identity_id" db:"identity_id"`
	Direction          Direction          `json:"direction" db:"direction"`
	VerificationMethod VerificationMethod `json:"verification_method" db:"verification_method"`
	Location           string             `json:"location" db:"location"`
	Timestamp          time.Time          `json:"timestamp" db:"timestamp"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
}

// EmotionObservation is optionally attached to a presence event at the moment
// of a successful match. At most one per event, read-only afterward.
type EmotionObservation struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	EventID         uuid.UUID       `json:"event_id" db:"event_id"`
	IdentityID      uuid.UUID       `json:"identity_id" db:"identity_id"`
	DominantEmotion string          `json:"dominant_emotion" db:"dominant_emotion"`
	Scores          json.RawMessage `json:"scores" db:"scores"`
	Confidence      float32         `json:"confidence" db:"confidence"`
	Age             int             `json:"age" db:"age"`
	Gender          string          `json:"gender" db:"gender"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}
