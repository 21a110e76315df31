package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

// Details is one variant of the audit payload union. The variant is named by
// Action and stored in the audit_logs.action column.
type Details interface {
	Action() enums.AuditAction
	stamp(at time.Time, actor string)
}

// Stamp is embedded in every variant.
type Stamp struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
}

func (s *Stamp) stamp(at time.Time, actor string) {
	s.Timestamp = at.UTC()
	s.Actor = actor
}

type AuctionCreated struct {
	Stamp
	Title           string    `json:"title"`
	ConsignerID     uuid.UUID `json:"consigner_id"`
	DurationMinutes int       `json:"duration_minutes"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
}

func (*AuctionCreated) Action() enums.AuditAction { return enums.AuditActionAuctionCreated }

type AuctionUpdated struct {
	Stamp
	Fields []string `json:"fields"`
}

func (*AuctionUpdated) Action() enums.AuditAction { return enums.AuditActionAuctionUpdated }

// StepCount records how many rows one cascade step removed.
type StepCount struct {
	Step string `json:"step"`
	Rows int64  `json:"rows"`
}

type AuctionDeleted struct {
	Stamp
	AuctionID uuid.UUID   `json:"auction_id"`
	Title     string      `json:"title"`
	Steps     []StepCount `json:"steps"`
}

func (*AuctionDeleted) Action() enums.AuditAction { return enums.AuditActionAuctionDeleted }

type StatusChanged struct {
	Stamp
	From          enums.AuctionStatus `json:"from"`
	To            enums.AuctionStatus `json:"to"`
	WinnerCleared bool                `json:"winner_cleared"`
	TripID        *uuid.UUID          `json:"trip_id,omitempty"`
}

func (*StatusChanged) Action() enums.AuditAction { return enums.AuditActionStatusChanged }

type BidRecorded struct {
	Stamp
	BidID                uuid.UUID        `json:"bid_id"`
	Created              bool             `json:"created"`
	PreviousAmount       *decimal.Decimal `json:"previous_amount,omitempty"`
	NewAmount            decimal.Decimal  `json:"new_amount"`
	Reelected            bool             `json:"reelected"`
	PreviousWinningBidID *uuid.UUID       `json:"previous_winning_bid_id,omitempty"`
	WinningBidID         *uuid.UUID       `json:"winning_bid_id,omitempty"`
}

func (*BidRecorded) Action() enums.AuditAction { return enums.AuditActionBidRecorded }

type BidDeleted struct {
	Stamp
	BidID      uuid.UUID       `json:"bid_id"`
	BidderID   uuid.UUID       `json:"bidder_id"`
	Amount     decimal.Decimal `json:"amount"`
	WasWinning bool            `json:"was_winning"`
}

func (*BidDeleted) Action() enums.AuditAction { return enums.AuditActionBidDeleted }

type AggregatesReconciled struct {
	Stamp
	PreviousBidCount     int        `json:"previous_bid_count"`
	BidCount             int        `json:"bid_count"`
	PreviousWinningBidID *uuid.UUID `json:"previous_winning_bid_id,omitempty"`
	WinningBidID         *uuid.UUID `json:"winning_bid_id,omitempty"`
}

func (*AggregatesReconciled) Action() enums.AuditAction { return enums.AuditActionAggregatesReconciled }

type ProfileDeleted struct {
	Stamp
	ProfileID uuid.UUID         `json:"profile_id"`
	Role      enums.ProfileRole `json:"role"`
	Steps     []StepCount       `json:"steps"`
}

func (*ProfileDeleted) Action() enums.AuditAction { return enums.AuditActionProfileDeleted }

// Decode restores the typed variant for a stored row.
func Decode(action enums.AuditAction, raw []byte) (Details, error) {
	var details Details
	switch action {
	case enums.AuditActionAuctionCreated:
		details = &AuctionCreated{}
	case enums.AuditActionAuctionUpdated:
		details = &AuctionUpdated{}
	case enums.AuditActionAuctionDeleted:
		details = &AuctionDeleted{}
	case enums.AuditActionStatusChanged:
		details = &StatusChanged{}
	case enums.AuditActionBidRecorded:
		details = &BidRecorded{}
	case enums.AuditActionBidDeleted:
		details = &BidDeleted{}
	case enums.AuditActionAggregatesReconciled:
		details = &AggregatesReconciled{}
	case enums.AuditActionProfileDeleted:
		details = &ProfileDeleted{}
	default:
		return nil, fmt.Errorf("unknown audit action %q", action)
	}
	if err := json.Unmarshal(raw, details); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", action, err)
	}
	return details, nil
}
