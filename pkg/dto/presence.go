package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

// RecognizeResponse is what the kiosk renders after submitting a frame.
// Recognized and Recorded are independent: a match with a persistence
// failure reports Recognized=true, Recorded=false so the kiosk can warn the
// user that presence was not saved.
type RecognizeResponse struct {
	Recognized   bool             `json:"recognized"`
	IdentityID   *uuid.UUID       `json:"identity_id,omitempty"`
	IdentityName string           `json:"identity_name,omitempty"`
	Distance     float64          `json:"distance,omitempty"`
	Confidence   float64          `json:"confidence,omitempty"`
	Recorded     bool             `json:"recorded"`
	Direction    string           `json:"direction,omitempty"`
	Duplicate    bool             `json:"duplicate"`
	Message      string           `json:"message"`
	Emotion      *EmotionResponse `json:"emotion,omitempty"`
}

type EmotionResponse struct {
	Dominant   string          `json:"dominant"`
	Scores     json.RawMessage `json:"scores,omitempty"`
	Confidence float32         `json:"confidence"`
	Age        int             `json:"age,omitempty"`
	Gender     string          `json:"gender,omitempty"`
}

type PresenceEventResponse struct {
	ID                 uuid.UUID `json:"id"`
	IdentityID         uuid.UUID `json:"identity_id"`
	Direction          string    `json:"direction"`
	VerificationMethod string    `json:"verification_method"`
	Location           string    `json:"location"`
	Timestamp          string    `json:"timestamp"`
}

type PresenceHistoryResponse struct {
	Events []PresenceEventResponse `json:"events"`
	Total  int                     `json:"total"`
}

// WSEvent is a WebSocket message for real-time gate activity delivery.
type WSEvent struct {
	Type     string          `json:"type"` // presence_recorded, duplicate_suppressed, visitor_check_in, visitor_check_out
	Location string          `json:"location,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}
