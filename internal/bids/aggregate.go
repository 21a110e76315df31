package bids

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/haulbid-backend/internal/auctions"
	"github.com/angelmondragon/haulbid-backend/pkg/db/models"
)

// Election selects how Recompute treats the winner pointer.
type Election int

const (
	// ElectLowest always points the winner at the leading bid. Used after a
	// bid is inserted or its amount changes.
	ElectLowest Election = iota
	// RetainOrVacate keeps a vacant winner vacant and clears a winner whose
	// bid no longer exists. A surviving winner is moved to the leader. Used
	// after deletions and by reconciliation.
	RetainOrVacate
)

// Less orders bids by amount, then age, then id.
func Less(a, b models.Bid) bool {
	if cmp := a.Amount.Cmp(b.Amount); cmp != 0 {
		return cmp < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// Rank sorts bids in place, leader first.
func Rank(bids []models.Bid) {
	sort.SliceStable(bids, func(i, j int) bool { return Less(bids[i], bids[j]) })
}

// Leader returns the lowest bid or nil for an empty set.
func Leader(bids []models.Bid) *models.Bid {
	var leader *models.Bid
	for i := range bids {
		if leader == nil || Less(bids[i], *leader) {
			leader = &bids[i]
		}
	}
	return leader
}

// Recompute derives an auction's cached fields from its complete current bid
// set. It never reads the previous aggregate values, only the previous
// winning bid pointer.
func Recompute(bids []models.Bid, currentWinningBidID *uuid.UUID, election Election) auctions.Aggregate {
	agg := auctions.Aggregate{BidCount: len(bids)}
	if len(bids) == 0 {
		return agg
	}

	lowest, highest := bids[0].Amount, bids[0].Amount
	for _, bid := range bids[1:] {
		if bid.Amount.LessThan(lowest) {
			lowest = bid.Amount
		}
		if bid.Amount.GreaterThan(highest) {
			highest = bid.Amount
		}
	}
	agg.LowestBidAmount = decimal.NewNullDecimal(lowest)
	agg.HighestBidAmount = decimal.NewNullDecimal(highest)

	leader := Leader(bids)
	switch election {
	case ElectLowest:
		agg.WinningBidID, agg.WinnerID = pointers(leader)
	case RetainOrVacate:
		if currentWinningBidID != nil && contains(bids, *currentWinningBidID) {
			agg.WinningBidID, agg.WinnerID = pointers(leader)
		}
	}
	return agg
}

// Reelected reports whether the winner pointer moved.
func Reelected(previous, next *uuid.UUID) bool {
	if previous == nil || next == nil {
		return previous != next
	}
	return *previous != *next
}

// Drifted reports whether the stored auction disagrees with agg.
func Drifted(auction *models.Auction, agg auctions.Aggregate) bool {
	if auction.BidCount != agg.BidCount {
		return true
	}
	if !sameAmount(auction.LowestBidAmount, agg.LowestBidAmount) || !sameAmount(auction.HighestBidAmount, agg.HighestBidAmount) {
		return true
	}
	return Reelected(auction.WinningBidID, agg.WinningBidID) || Reelected(auction.WinnerID, agg.WinnerID)
}

func sameAmount(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func pointers(bid *models.Bid) (*uuid.UUID, *uuid.UUID) {
	if bid == nil {
		return nil, nil
	}
	bidID, userID := bid.ID, bid.UserID
	return &bidID, &userID
}

func contains(bids []models.Bid, id uuid.UUID) bool {
	for _, bid := range bids {
		if bid.ID == id {
			return true
		}
	}
	return false
}
