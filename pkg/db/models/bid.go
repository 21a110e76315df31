package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid is one driver's price offer on an auction. A driver holds at most one
// bid per auction; re-bidding edits the amount.
type Bid struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	AuctionID    uuid.UUID       `gorm:"type:uuid;not null" json:"auction_id"`
	UserID       uuid.UUID       `gorm:"type:uuid;not null" json:"user_id"`
	Amount       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	IsWinningBid bool            `gorm:"not null;default:false" json:"is_winning_bid"`
	CreatedAt    time.Time       `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}
