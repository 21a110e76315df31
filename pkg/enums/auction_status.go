package enums

import "fmt"

// AuctionStatus tracks the lifecycle of a freight auction.
type AuctionStatus string

const (
	AuctionStatusActive     AuctionStatus = "active"
	AuctionStatusCompleted  AuctionStatus = "completed"
	AuctionStatusCancelled  AuctionStatus = "cancelled"
	AuctionStatusIncomplete AuctionStatus = "incomplete"
)

var validAuctionStatuses = []AuctionStatus{
	AuctionStatusActive,
	AuctionStatusCompleted,
	AuctionStatusCancelled,
	AuctionStatusIncomplete,
}

// String implements fmt.Stringer.
func (a AuctionStatus) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuctionStatus.
func (a AuctionStatus) IsValid() bool {
	for _, candidate := range validAuctionStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is defined out of the status.
func (a AuctionStatus) IsTerminal() bool {
	return a.IsValid() && a != AuctionStatusActive
}

// ParseAuctionStatus converts raw input into an AuctionStatus.
func ParseAuctionStatus(value string) (AuctionStatus, error) {
	for _, candidate := range validAuctionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid auction status %q", value)
}
