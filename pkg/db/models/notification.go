package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

// Notification is an append-only in-app message for one user.
type Notification struct {
	ID        uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID              `gorm:"type:uuid;not null" json:"user_id"`
	AuctionID *uuid.UUID             `gorm:"type:uuid" json:"auction_id,omitempty"`
	Type      enums.NotificationType `gorm:"type:text;not null" json:"type"`
	Title     string                 `gorm:"type:text;not null" json:"title"`
	Message   string                 `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time              `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}
