package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"pocketsync-server/src/db"
	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
	"pocketsync-server/src/util"
)

type ObligationStore interface {
	ListObligations(ctx context.Context, profile models.Profile) ([]models.RecurringObligation, error)
	CreateObligation(ctx context.Context, o *models.RecurringObligation) error
	DeleteObligation(ctx context.Context, id string, profile models.Profile) error
}

// listObligations reads through the obligation cache.
func listObligations(ctx context.Context, store ObligationStore, cache *db.Cache, profile models.Profile) ([]models.RecurringObligation, error) {
	key := db.CacheKey(db.ObligationCache, string(profile))
	if cached, ok := cache.Get(key); ok {
		if obligations, ok := cached.([]models.RecurringObligation); ok {
			return obligations, nil
		}
	}
	obligations, err := store.ListObligations(ctx, profile)
	if err != nil {
		return nil, err
	}
	cache.Set(db.ObligationCache, key, obligations)
	return obligations, nil
}

func GetObligations(store ObligationStore, cache *db.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		profile, err := profileParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		obligations, err := listObligations(r.Context(), store, cache, profile)
		if err != nil {
			log.Error().Err(err).Str("profile", string(profile)).Msg("Failed to list obligations")
			http.Error(w, "failed to list obligations", http.StatusInternalServerError)
			return
		}
		if obligations == nil {
			obligations = []models.RecurringObligation{}
		}
		writeJSON(w, http.StatusOK, obligations)
	}
}

func CreateObligation(store ObligationStore, cache *db.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var o models.RecurringObligation
		if err := decodeJSON(w, r, &o); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		o.Name = strings.TrimSpace(o.Name)
		if o.Profile == "" {
			o.Profile = models.ProfilePersonal
		}
		if o.Category == "" {
			o.Category = "other"
		}
		// A non-positive count carries no information; fall back to end date.
		if o.PaymentsLeft != nil && *o.PaymentsLeft <= 0 {
			o.PaymentsLeft = nil
		}
		if err := util.ValidateObligation(&o); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.CreateObligation(r.Context(), &o); err != nil {
			log.Error().Err(err).Msg("Failed to create obligation")
			http.Error(w, "failed to create obligation", http.StatusInternalServerError)
			return
		}
		cache.Clear(db.ObligationCache, db.ProjectionCache)
		log.Info().Str("obligation_id", o.ID).Str("profile", string(o.Profile)).Msg("Created obligation")
		writeJSON(w, http.StatusCreated, o)
	}
}

func DeleteObligation(store ObligationStore, cache *db.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		id := chi.URLParam(r, "obligation_id")
		profile, err := profileParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.DeleteObligation(r.Context(), id, profile); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				http.Error(w, "obligation not found", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("obligation_id", id).Msg("Failed to delete obligation")
			http.Error(w, "failed to delete obligation", http.StatusInternalServerError)
			return
		}
		cache.Clear(db.ObligationCache, db.ProjectionCache)
		w.WriteHeader(http.StatusNoContent)
	}
}
