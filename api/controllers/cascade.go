package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/haulbid-backend/api/responses"
	"github.com/angelmondragon/haulbid-backend/internal/cascade"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
)

type cascadeFunc func(ctx context.Context, id uuid.UUID) (*cascade.Report, error)

func cascadeHandler(param string, run func(cascade.Coordinator) cascadeFunc, coordinator cascade.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if coordinator == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("cascade coordinator"))
			return
		}
		id, err := uuidParam(r, param)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := run(coordinator)(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// AdminDeleteAuction removes an auction and every row referencing it.
func AdminDeleteAuction(coordinator cascade.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return cascadeHandler("auctionId", func(c cascade.Coordinator) cascadeFunc { return c.DeleteAuction }, coordinator, logg)
}

// AdminDeleteConsigner removes a consigner, their auctions and their identity.
func AdminDeleteConsigner(coordinator cascade.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return cascadeHandler("profileId", func(c cascade.Coordinator) cascadeFunc { return c.DeleteConsigner }, coordinator, logg)
}

// AdminDeleteDriver removes a driver's bids and trips, re-deriving the
// aggregates of every auction they bid on.
func AdminDeleteDriver(coordinator cascade.Coordinator, logg *logger.Logger) http.HandlerFunc {
	return cascadeHandler("profileId", func(c cascade.Coordinator) cascadeFunc { return c.DeleteDriver }, coordinator, logg)
}
