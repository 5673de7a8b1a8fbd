package dto

import "github.com/google/uuid"

type CreateIdentityRequest struct {
	Name string `json:"name" binding:"required"`
	Role string `json:"role" binding:"required,oneof=student faculty"`
}

type IdentityResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Enrolled  bool      `json:"enrolled"`
	CreatedAt string    `json:"created_at"`
}

type EnrollResponse struct {
	IdentityID uuid.UUID `json:"identity_id"`
	PhotoKey   string    `json:"photo_key,omitempty"`
	Message    string    `json:"message"`
}

type ReloadResponse struct {
	Gallery string `json:"gallery"`
	Loaded  int    `json:"loaded"`
}
