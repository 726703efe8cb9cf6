package handlers

import (
	"context"
	"net/http"

	"pocketsync-server/src/logger"
)

type SettingsStore interface {
	NotificationsEnabled(ctx context.Context) (bool, error)
	SetNotificationsEnabled(ctx context.Context, enabled bool) error
}

type notificationSettings struct {
	Enabled *bool `json:"enabled"`
}

func GetNotificationSettings(store SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		enabled, err := store.NotificationsEnabled(r.Context())
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("Failed to read notification setting")
			http.Error(w, "failed to read settings", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, notificationSettings{Enabled: &enabled})
	}
}

func UpdateNotificationSettings(store SettingsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req notificationSettings
		if err := decodeJSON(w, r, &req); err != nil || req.Enabled == nil {
			http.Error(w, "enabled is required", http.StatusBadRequest)
			return
		}
		if err := store.SetNotificationsEnabled(r.Context(), *req.Enabled); err != nil {
			log.Error().Err(err).Msg("Failed to update notification setting")
			http.Error(w, "failed to update settings", http.StatusInternalServerError)
			return
		}
		log.Info().Bool("enabled", *req.Enabled).Msg("Updated notification setting")
		writeJSON(w, http.StatusOK, req)
	}
}
