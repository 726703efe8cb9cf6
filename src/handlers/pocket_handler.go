package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"pocketsync-server/src/db"
	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
	"pocketsync-server/src/notify"
)

type PocketStore interface {
	ListPockets(ctx context.Context, profile models.Profile) ([]models.Pocket, error)
	GetPocket(ctx context.Context, id string) (*models.Pocket, error)
	CreatePocket(ctx context.Context, p *models.Pocket) error
	UpdatePocketBudget(ctx context.Context, id string, budget decimal.NullDecimal) error
}

type pocketView struct {
	models.Pocket
	Protected      bool             `json:"protected"`
	AllocationUsed *decimal.Decimal `json:"allocation_used,omitempty"`
}

func viewPockets(pockets []models.Pocket) []pocketView {
	out := make([]pocketView, 0, len(pockets))
	for _, p := range pockets {
		v := pocketView{Pocket: p, Protected: p.IsProtected()}
		if used, ok := notify.AllocationUsed(p); ok {
			v.AllocationUsed = &used
		}
		out = append(out, v)
	}
	return out
}

// GetPockets lists a profile's pockets, served from cache until the next pass
// or pocket write.
func GetPockets(store PocketStore, cache *db.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		profile, err := profileParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		key := db.CacheKey(db.PocketCache, string(profile))
		if cached, ok := cache.Get(key); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}

		pockets, err := store.ListPockets(r.Context(), profile)
		if err != nil {
			log.Error().Err(err).Str("profile", string(profile)).Msg("Failed to list pockets")
			http.Error(w, "failed to list pockets", http.StatusInternalServerError)
			return
		}
		views := viewPockets(pockets)
		cache.Set(db.PocketCache, key, views)
		writeJSON(w, http.StatusOK, views)
	}
}

// CreatePocket adds a local-only pocket. Remote-linked and protected pockets
// only come from a sync pass.
func CreatePocket(store PocketStore, cache *db.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req struct {
			Name         string              `json:"name"`
			Profile      models.Profile      `json:"profile"`
			Kind         models.PocketKind   `json:"type"`
			TargetAmount decimal.NullDecimal `json:"target_amount"`
			TargetBudget decimal.NullDecimal `json:"target_budget"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.Name == "" || !req.Profile.Valid() {
			http.Error(w, "name and a valid profile are required", http.StatusBadRequest)
			return
		}
		switch req.Kind {
		case "":
			req.Kind = models.PocketSavings
		case models.PocketSavings, models.PocketBuffer:
		default:
			http.Error(w, "type must be savings or buffer", http.StatusBadRequest)
			return
		}

		p := &models.Pocket{
			Name:         req.Name,
			Profile:      req.Profile,
			Kind:         req.Kind,
			Balance:      decimal.Zero,
			TargetAmount: req.TargetAmount,
			TargetBudget: req.TargetBudget,
		}
		if err := store.CreatePocket(r.Context(), p); err != nil {
			log.Error().Err(err).Msg("Failed to create pocket")
			http.Error(w, "failed to create pocket", http.StatusInternalServerError)
			return
		}
		cache.Clear(db.PocketCache)
		log.Info().Str("pocket_id", p.ID).Str("profile", string(p.Profile)).Msg("Created pocket")
		writeJSON(w, http.StatusCreated, p)
	}
}

// UpdatePocketBudget sets or clears the spending allocation that drives the
// "% of allocation used" notification suffix.
func UpdatePocketBudget(store PocketStore, cache *db.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		id := chi.URLParam(r, "pocket_id")

		var req struct {
			TargetBudget decimal.NullDecimal `json:"target_budget"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.TargetBudget.Valid && req.TargetBudget.Decimal.IsNegative() {
			http.Error(w, "target_budget cannot be negative", http.StatusBadRequest)
			return
		}

		if err := store.UpdatePocketBudget(r.Context(), id, req.TargetBudget); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				http.Error(w, "pocket not found", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("pocket_id", id).Msg("Failed to update pocket budget")
			http.Error(w, "failed to update pocket", http.StatusInternalServerError)
			return
		}
		cache.Clear(db.PocketCache)

		p, err := store.GetPocket(r.Context(), id)
		if err != nil || p == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}
