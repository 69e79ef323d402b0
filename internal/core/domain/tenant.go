package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents a vendor project authorized to call the gateway.
type Tenant struct {
	ID            uuid.UUID `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	APIKey        string    `json:"-"`
	SigningSecret string    `json:"-"` // >= 32 bytes of entropy, never exposed
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
