package livesync

import (
	"context"
	"fmt"

	"github.com/angelmondragon/haulbid-backend/internal/auctions"
	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	"github.com/angelmondragon/haulbid-backend/pkg/enums"
)

// Snapshot is the state a viewer receives for its scope.
type Snapshot struct {
	Data any
	// Status is set for single-auction scopes.
	Status enums.AuctionStatus
}

// Fetcher pulls the current state for a scope.
type Fetcher interface {
	Fetch(ctx context.Context, scope changefeed.Scope) (Snapshot, error)
}

// AuctionFetcher serves scopes from the auctions service. Collection scopes
// return the most recent page.
type AuctionFetcher struct {
	Auctions auctions.Service
	PageSize int
}

func (f AuctionFetcher) Fetch(ctx context.Context, scope changefeed.Scope) (Snapshot, error) {
	switch {
	case scope.IsAuction():
		snapshot, err := f.Auctions.Get(ctx, scope.ID)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Data: snapshot, Status: snapshot.Auction.Status}, nil
	case scope.IsConsigner():
		id := scope.ID
		page, err := f.Auctions.List(ctx, auctions.ListInput{ConsignerID: &id, Limit: f.PageSize})
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Data: page}, nil
	case scope.IsDriver():
		id := scope.ID
		page, err := f.Auctions.List(ctx, auctions.ListInput{BidderID: &id, Limit: f.PageSize})
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Data: page}, nil
	case scope.Kind == changefeed.ScopeAll:
		page, err := f.Auctions.List(ctx, auctions.ListInput{Limit: f.PageSize})
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{Data: page}, nil
	}
	return Snapshot{}, fmt.Errorf("unsupported scope %q", scope.Key())
}
