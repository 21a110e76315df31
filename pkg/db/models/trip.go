package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

// Trip is the delivery created once an auction completes with a winner.
type Trip struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	AuctionID   uuid.UUID        `gorm:"type:uuid;not null" json:"auction_id"`
	DriverID    uuid.UUID        `gorm:"type:uuid;not null" json:"driver_id"`
	ConsignerID uuid.UUID        `gorm:"type:uuid;not null" json:"consigner_id"`
	Status      enums.TripStatus `gorm:"type:text;not null;default:in_progress" json:"status"`
	AgreedPrice decimal.Decimal  `gorm:"type:numeric(12,2);not null" json:"agreed_price"`
	CreatedAt   time.Time        `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}
