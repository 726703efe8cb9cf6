package handlers

import (
	"context"
	"errors"
	"net/http"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"

	"pocketsync-server/src/db"
	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
	"pocketsync-server/src/projection"
	"pocketsync-server/src/util"
)

const (
	defaultRotaDays = 28
	maxRotaDays     = 366
	upcomingDays    = 14
)

type RotaStore interface {
	ListRotaOverrides(ctx context.Context, profile models.Profile, from, to civil.Date) ([]models.RotaOverride, error)
	UpsertRotaOverrides(ctx context.Context, overrides []models.RotaOverride) error
	UpdateRotaOverrideStatus(ctx context.Context, id string, status models.OverrideStatus) error
	DeleteRotaOverride(ctx context.Context, profile models.Profile, date civil.Date) error
}

type rotaResponse struct {
	From            civil.Date            `json:"from"`
	To              civil.Date            `json:"to"`
	Schedule        []projection.ShiftDay `json:"schedule"`
	Overrides       []models.RotaOverride `json:"overrides"`
	Pay             projection.PayCycle   `json:"pay"`
	UpcomingShifts  []civil.Date          `json:"upcoming_shifts"`
	NextPayday      civil.Date            `json:"next_payday"`
	DaysUntilPayday int                   `json:"days_until_payday"`
}

// GetRota evaluates the shift pattern over [from, to] (default: four weeks from
// today) and prices it with the overrides recorded for that range.
func GetRota(store RotaStore, settings RotaSettings, today Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		profile, err := profileParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		now := today()
		q := r.URL.Query()
		from, err := util.ParseDate(q.Get("from"), now)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		to, err := util.ParseDate(q.Get("to"), from.AddDays(defaultRotaDays-1))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if to.Before(from) || to.DaysSince(from) >= maxRotaDays {
			http.Error(w, "to must be on or after from and within a year of it", http.StatusBadRequest)
			return
		}

		overrides, err := store.ListRotaOverrides(r.Context(), profile, from, to)
		if err != nil {
			log.Error().Err(err).Msg("Failed to list rota overrides")
			http.Error(w, "failed to load rota", http.StatusInternalServerError)
			return
		}
		if overrides == nil {
			overrides = []models.RotaOverride{}
		}

		schedule := projection.ShiftScheduleForRange(settings.Pattern, from, to)
		resp := rotaResponse{
			From:           from,
			To:             to,
			Schedule:       schedule,
			Overrides:      overrides,
			Pay:            projection.PayCycleNet(schedule, overrides, settings.Rates),
			UpcomingShifts: projection.UpcomingShifts(settings.Pattern, now, upcomingDays),
		}
		resp.DaysUntilPayday, resp.NextPayday = projection.DaysUntilNextPayday(now)
		writeJSON(w, http.StatusOK, resp)
	}
}

func validOverrideKind(k models.OverrideKind) bool {
	switch k {
	case models.OverrideOvertime, models.OverrideAbsence, models.OverrideHoliday:
		return true
	}
	return false
}

func validOverrideStatus(s models.OverrideStatus) bool {
	return s == models.OverridePending || s == models.OverrideApproved
}

// UpsertRotaOverrides writes a batch of overrides; an existing override for
// the same date and profile is replaced.
func UpsertRotaOverrides(store RotaStore, cache *db.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var overrides []models.RotaOverride
		if err := decodeJSON(w, r, &overrides); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		for i := range overrides {
			o := &overrides[i]
			if o.Profile == "" {
				o.Profile = models.ProfilePersonal
			}
			if o.Status == "" {
				o.Status = models.OverridePending
			}
			if o.Date.IsZero() || !o.Profile.Valid() || !validOverrideKind(o.Kind) || !validOverrideStatus(o.Status) {
				http.Error(w, "each override needs a date, a valid type, status and profile", http.StatusBadRequest)
				return
			}
		}
		if len(overrides) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if err := store.UpsertRotaOverrides(r.Context(), overrides); err != nil {
			log.Error().Err(err).Int("count", len(overrides)).Msg("Failed to upsert rota overrides")
			http.Error(w, "failed to save overrides", http.StatusInternalServerError)
			return
		}
		cache.Clear(db.ProjectionCache)
		log.Info().Int("count", len(overrides)).Msg("Saved rota overrides")
		w.WriteHeader(http.StatusNoContent)
	}
}

func UpdateRotaOverrideStatus(store RotaStore, cache *db.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		id := chi.URLParam(r, "override_id")

		var req struct {
			Status models.OverrideStatus `json:"status"`
		}
		if err := decodeJSON(w, r, &req); err != nil || !validOverrideStatus(req.Status) {
			http.Error(w, "status must be pending or approved", http.StatusBadRequest)
			return
		}

		if err := store.UpdateRotaOverrideStatus(r.Context(), id, req.Status); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				http.Error(w, "override not found", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("override_id", id).Msg("Failed to update rota override")
			http.Error(w, "failed to update override", http.StatusInternalServerError)
			return
		}
		cache.Clear(db.ProjectionCache)
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteRotaOverride(store RotaStore, cache *db.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		profile, err := profileParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		date, err := civil.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			http.Error(w, "invalid date: want YYYY-MM-DD", http.StatusBadRequest)
			return
		}

		if err := store.DeleteRotaOverride(r.Context(), profile, date); err != nil {
			log.Error().Err(err).Str("date", date.String()).Msg("Failed to delete rota override")
			http.Error(w, "failed to delete override", http.StatusInternalServerError)
			return
		}
		cache.Clear(db.ProjectionCache)
		w.WriteHeader(http.StatusNoContent)
	}
}
