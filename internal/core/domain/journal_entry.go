package domain

import (
	"time"

	"github.com/google/uuid"
)

// JournalKind identifies the class of a balance mutation.
type JournalKind string

const (
	JournalKindTopup       JournalKind = "topup"
	JournalKindDeduct      JournalKind = "deduct"
	JournalKindManualReset JournalKind = "manual_reset"
	JournalKindAdjustment  JournalKind = "adjustment"
)

// IsCredit reports whether this kind increases a balance.
func (k JournalKind) IsCredit() bool {
	return k == JournalKindTopup || k == JournalKindAdjustment
}

// JournalEntry is an immutable audit record of one balance mutation.
// Never updated or deleted after insert. (tenant_id, ref) is unique.
type JournalEntry struct {
	ID            uuid.UUID              `json:"id"`
	TenantID      uuid.UUID              `json:"tenant_id"`
	UserID        uuid.UUID              `json:"user_id"`
	Kind          JournalKind            `json:"kind"`
	AmountCredits int64                  `json:"amount_credits"`
	Ref           string                 `json:"ref"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}
