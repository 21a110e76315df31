package controllers

import (
	"net/http"

	"github.com/angelmondragon/haulbid-backend/api/responses"
	"github.com/angelmondragon/haulbid-backend/internal/livesync"
	"github.com/angelmondragon/haulbid-backend/pkg/changefeed"
	pkgerrors "github.com/angelmondragon/haulbid-backend/pkg/errors"
	"github.com/angelmondragon/haulbid-backend/pkg/logger"
)

// AdminLive upgrades to a websocket streaming snapshots for ?scope=, which
// defaults to every auction.
func AdminLive(server *livesync.Server, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if server == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("live sync"))
			return
		}
		raw := r.URL.Query().Get("scope")
		if raw == "" {
			raw = changefeed.ScopeAll
		}
		scope, err := changefeed.ParseScope(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid scope").WithDetails(map[string]any{"field": "scope"}))
			return
		}
		server.Serve(w, r, scope)
	}
}
