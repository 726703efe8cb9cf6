package handlers

import (
	"context"
	"net/http"
	"strings"

	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
	"pocketsync-server/src/util"
)

type IncomeStore interface {
	ListIncome(ctx context.Context, profile models.Profile) ([]models.Income, error)
	CreateIncome(ctx context.Context, i *models.Income) error
}

func GetIncome(store IncomeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		profile, err := profileParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		income, err := store.ListIncome(r.Context(), profile)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list income")
			http.Error(w, "failed to list income", http.StatusInternalServerError)
			return
		}
		if income == nil {
			income = []models.Income{}
		}
		writeJSON(w, http.StatusOK, income)
	}
}

// CreateIncome records money received outside any connected bank.
func CreateIncome(store IncomeStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var i models.Income
		if err := decodeJSON(w, r, &i); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		i.Source = strings.TrimSpace(i.Source)
		if i.Profile == "" {
			i.Profile = models.ProfilePersonal
		}
		if !i.Profile.Valid() || i.Source == "" {
			http.Error(w, "source and a valid profile are required", http.StatusBadRequest)
			return
		}
		if err := util.ValidatePositiveAmount(i.Amount); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := store.CreateIncome(r.Context(), &i); err != nil {
			log.Error().Err(err).Msg("Failed to create income")
			http.Error(w, "failed to create income", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, i)
	}
}
