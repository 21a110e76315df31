package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/haulbid-backend/api/responses"
	"github.com/angelmondragon/haulbid-backend/api/validators"
	"github.com/angelmondragon/haulbid-backend/internal/bids"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
)

// Amounts are decoded as json.Number so both 450.5 and "450.50" are accepted
// and parsed exactly by the engine.
type recordBidRequest struct {
	DriverID uuid.UUID   `json:"driver_id" validate:"required"`
	Amount   json.Number `json:"amount" validate:"required,amount"`
}

type updateBidRequest struct {
	AuctionID uuid.UUID   `json:"auction_id" validate:"required"`
	Amount    json.Number `json:"amount" validate:"required,amount"`
}

// AdminRecordBid places or edits a driver's bid on an auction.
func AdminRecordBid(engine bids.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("bid engine"))
			return
		}
		auctionID, err := uuidParam(r, "auctionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload recordBidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := engine.RecordOrUpdate(r.Context(), bids.RecordInput{
			AuctionID: auctionID,
			BidderID:  payload.DriverID,
			Amount:    payload.Amount.String(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

func AdminUpdateBid(engine bids.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("bid engine"))
			return
		}
		bidID, err := uuidParam(r, "bidId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateBidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := engine.UpdateAmount(r.Context(), bids.UpdateAmountInput{
			BidID:     bidID,
			AuctionID: payload.AuctionID,
			Amount:    payload.Amount.String(),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminDeleteBid removes a bid; the auction id comes from the query string.
func AdminDeleteBid(engine bids.Engine, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("bid engine"))
			return
		}
		bidID, err := uuidParam(r, "bidId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		auctionID, err := validators.RequireQueryUUID(r, "auction_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := engine.Delete(r.Context(), bids.DeleteInput{BidID: bidID, AuctionID: auctionID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
