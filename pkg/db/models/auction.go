package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

// Auction is a reverse-price listing for one delivery job. The winner and
// aggregate columns are a cache re-derived from the bids table after every
// bid mutation.
type Auction struct {
	ID                  uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedBy           uuid.UUID           `gorm:"type:uuid;not null" json:"created_by"`
	Title               string              `gorm:"type:text;not null" json:"title"`
	Description         *string             `gorm:"type:text" json:"description,omitempty"`
	PickupLocation      string              `gorm:"type:text;not null" json:"pickup_location"`
	DropoffLocation     string              `gorm:"type:text;not null" json:"dropoff_location"`
	CargoType           *string             `gorm:"type:text" json:"cargo_type,omitempty"`
	CargoWeightKg       *decimal.Decimal    `gorm:"type:numeric(12,2)" json:"cargo_weight_kg,omitempty"`
	VehicleType         *string             `gorm:"type:text" json:"vehicle_type,omitempty"`
	VehicleRequirements *string             `gorm:"type:text" json:"vehicle_requirements,omitempty"`
	Status              enums.AuctionStatus `gorm:"type:text;not null;default:active" json:"status"`
	StartTime           time.Time           `gorm:"type:timestamptz;not null" json:"start_time"`
	EndTime             time.Time           `gorm:"type:timestamptz;not null" json:"end_time"`
	WinnerID            *uuid.UUID          `gorm:"type:uuid" json:"winner_id"`
	WinningBidID        *uuid.UUID          `gorm:"type:uuid" json:"winning_bid_id"`
	BidCount            int                 `gorm:"not null;default:0" json:"bid_count"`
	LowestBidAmount     decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"lowest_bid_amount"`
	HighestBidAmount    decimal.NullDecimal `gorm:"type:numeric(12,2)" json:"highest_bid_amount"`
	CreatedAt           time.Time           `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time           `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}
