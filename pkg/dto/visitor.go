package dto

import "github.com/google/uuid"

type VisitorCheckInResponse struct {
	Accepted    bool             `json:"accepted"`
	Reason      string           `json:"reason,omitempty"`
	Visitor     *VisitorResponse `json:"visitor,omitempty"`
	IsReturning bool             `json:"is_returning"`
	VisitCount  int              `json:"visit_count"`
	Message     string           `json:"message,omitempty"`
}

type VisitorResponse struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Reason             string    `json:"reason"`
	Phone              string    `json:"phone,omitempty"`
	Organization       string    `json:"organization,omitempty"`
	HostName           string    `json:"host_name,omitempty"`
	EntryTime          string    `json:"entry_time"`
	ExitTime           string    `json:"exit_time,omitempty"`
	Status             string    `json:"status"`
	IsReturning        bool      `json:"is_returning"`
	PreviousVisitCount int       `json:"previous_visit_count"`
}

type VisitorListResponse struct {
	Visitors []VisitorResponse `json:"visitors"`
	Total    int               `json:"total"`
}

type VisitorStatsResponse struct {
	TotalVisitors     int `json:"total_visitors"`
	ActiveVisitors    int `json:"active_visitors"`
	ReturningVisitors int `json:"returning_visitors"`
	TodayVisitors     int `json:"today_visitors"`
}
