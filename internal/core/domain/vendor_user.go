package domain

import (
	"time"

	"github.com/google/uuid"
)

// VendorUser is the scoped identity of a caller within a tenant. Created
// lazily on first balance reference; never deleted independently of its
// tenant.
type VendorUser struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	UserID         uuid.UUID `json:"user_id"`
	UserExternalID string    `json:"user_external_id,omitempty"`
	EthAddress     *string   `json:"eth_address,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
