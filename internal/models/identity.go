package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of population tags. The staff/student populations
// share one gallery; visitors are tracked separately.
type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleVisitor Role = "visitor"
)

// Identity is a person eligible for passive recognition.
type Identity struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Role      Role      `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IdentityCandidate is a ranked search result: an identity plus its distance
// to a probe embedding.
type IdentityCandidate struct {
	Identity
	Distance float64 `json:"distance"`
}

// IdentityEmbedding is the single active face embedding for an identity.
// Re-enrollment replaces the row; an identity never carries more than one.
type IdentityEmbedding struct {
	IdentityID uuid.UUID `json:"identity_id" db:"identity_id"`
	Embedding  []float32 `json:"-" db:"embedding"`
	PhotoKey   string    `json:"photo_key" db:"photo_key"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
