package models

import (
	"time"

	"github.com/google/uuid"
)

type VisitorStatus string

const (
	VisitorIn  VisitorStatus = "IN"
	VisitorOut VisitorStatus = "OUT"
)

// VisitorRecord is one guest check-in. Created at check-in, mutated only by
// check-out (exit time + status), never deleted.
//
// The embedding is attached only when exactly one face was detected in the
// check-in photo; visitor photos are less controlled than enrollment photos,
// so a missing embedding does not block the check-in.
type VisitorRecord struct {
	ID                 uuid.UUID     `json:"id" db:"id"`
	Name               string        `json:"name" db:"name"`
	Reason             string        `json:"reason" db:"reason"`
	Phone              string        `json:"phone,omitempty" db:"phone"`
	Organization       string        `json:"organization,omitempty" db:"organization"`
	HostName           string        `json:"host_name,omitempty" db:"host_name"`
	PhotoKey           string        `json:"photo_key" db:"photo_key"`
	Embedding          []float32     `json:"-" db:"embedding"`
	EntryTime          time.Time     `json:"entry_time" db:"entry_time"`
	ExitTime           *time.Time    `json:"exit_time,omitempty" db:"exit_time"`
	Status             VisitorStatus `json:"status" db:"status"`
	IsReturning        bool          `json:"is_returning" db:"is_returning"`
	PreviousVisitCount int           `json:"previous_visit_count" db:"previous_visit_count"`
	CreatedBy          string        `json:"created_by" db:"created_by"`
}

// VisitorStats is the aggregate view for the security dashboard.
type VisitorStats struct {
	TotalVisitors     int `json:"total_visitors"`
	ActiveVisitors    int `json:"active_visitors"`
	ReturningVisitors int `json:"returning_visitors"`
	TodayVisitors     int `json:"today_visitors"`
}
