package handlers

import (
	"net/http"

	"pocketsync-server/src/db"
	"pocketsync-server/src/logger"
	"pocketsync-server/src/projection"
	"pocketsync-server/src/util"
)

// RotaSettings is the household's shift pattern and pay.
type RotaSettings struct {
	Pattern projection.ShiftPattern
	Rates   projection.PayRates
}

// MonthlyProjection returns what is due in the given month (default: the
// current one) alongside everything still owed.
func MonthlyProjection(store ObligationStore, cache *db.Cache, today Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		profile, err := profileParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		now := today()
		month := now
		if m := r.URL.Query().Get("month"); m != "" {
			if month, err = util.ParseMonth(m); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		key := db.CacheKey(db.ProjectionCache, "monthly", string(profile), month.String(), now.String())
		if cached, ok := cache.Get(key); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}

		obligations, err := listObligations(r.Context(), store, cache, profile)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list obligations for projection")
			http.Error(w, "failed to build projection", http.StatusInternalServerError)
			return
		}
		summary := projection.BuildMonthlySummary(obligations, month, now)
		cache.Set(db.ProjectionCache, key, summary)
		writeJSON(w, http.StatusOK, summary)
	}
}

// Forecast returns the rolling cashflow window from today.
func Forecast(store ObligationStore, rota RotaStore, cache *db.Cache, settings RotaSettings, today Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		profile, err := profileParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		now := today()

		key := db.CacheKey(db.ProjectionCache, "forecast", string(profile), now.String())
		if cached, ok := cache.Get(key); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}

		obligations, err := listObligations(r.Context(), store, cache, profile)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list obligations for forecast")
			http.Error(w, "failed to build forecast", http.StatusInternalServerError)
			return
		}
		overrides, err := rota.ListRotaOverrides(r.Context(), profile, now.AddDays(-6), now.AddDays(projection.ForecastDays))
		if err != nil {
			log.Error().Err(err).Msg("Failed to list rota overrides for forecast")
			http.Error(w, "failed to build forecast", http.StatusInternalServerError)
			return
		}

		forecast := projection.CashflowForecast(obligations, settings.Pattern, overrides, settings.Rates, now)
		cache.Set(db.ProjectionCache, key, forecast)
		writeJSON(w, http.StatusOK, forecast)
	}
}
