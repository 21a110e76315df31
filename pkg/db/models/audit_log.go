package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

// AuditLog is an immutable record of one administrative or system action.
// Details holds the JSON encoding of the variant named by Action.
type AuditLog struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	AuctionID *uuid.UUID        `gorm:"type:uuid" json:"auction_id"`
	UserID    *uuid.UUID        `gorm:"type:uuid" json:"user_id"`
	Action    enums.AuditAction `gorm:"type:text;not null" json:"action"`
	Summary   string            `gorm:"type:text;not null" json:"summary"`
	Details   json.RawMessage   `gorm:"type:jsonb;not null" json:"details"`
	CreatedAt time.Time         `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}
