package handlers

import (
	"context"
	"net/http"

	"pocketsync-server/src/logger"
	"pocketsync-server/src/middleware"
	"pocketsync-server/src/models"
	"pocketsync-server/src/util"
)

// PlaidLinker runs the Plaid Link handshake.
type PlaidLinker interface {
	CreateLinkToken(ctx context.Context, clientUserID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string, profile models.Profile) (*models.PlaidItem, error)
}

func CreateLinkToken(linker PlaidLinker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		clientUserID := middleware.Subject(r.Context())
		if clientUserID == "" {
			clientUserID = "owner"
		}
		linkToken, err := linker.CreateLinkToken(r.Context(), clientUserID)
		if err != nil {
			log.Error().Err(err).Msg("Plaid link token creation failed")
			http.Error(w, "Failed to create link token", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"link_token": linkToken})
	}
}

// ExchangePublicToken stores the item created by Plaid Link. Every account of
// the item reconciles into the requested profile.
func ExchangePublicToken(linker PlaidLinker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req struct {
			PublicToken string `json:"public_token"`
			Profile     string `json:"profile"`
		}
		if err := decodeJSON(w, r, &req); err != nil || req.PublicToken == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		profile := models.ProfilePersonal
		if req.Profile != "" {
			p, err := util.ValidateProfile(req.Profile)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			profile = p
		}

		item, err := linker.ExchangePublicToken(r.Context(), req.PublicToken, profile)
		if err != nil {
			log.Error().Err(err).Msg("Plaid public token exchange failed")
			http.Error(w, "Failed to exchange public token", http.StatusBadGateway)
			return
		}
		log.Info().Str("item_id", item.ItemID).Str("profile", string(profile)).Msg("Linked plaid item")
		writeJSON(w, http.StatusCreated, item)
	}
}
