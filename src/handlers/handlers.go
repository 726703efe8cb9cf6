// Package handlers holds the HTTP handler factories. Each takes the narrow
// dependencies it needs and returns an http.HandlerFunc.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"cloud.google.com/go/civil"

	"pocketsync-server/src/calendar"
	"pocketsync-server/src/models"
	"pocketsync-server/src/util"
)

// maxBodyBytes caps request and webhook bodies.
const maxBodyBytes = 1 << 20

// Clock returns today's date in the household's time zone.
type Clock func() civil.Date

func SystemClock(loc *time.Location) Clock {
	return func() civil.Date {
		return calendar.Today(loc)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

// profileParam reads ?profile=, defaulting to personal.
func profileParam(r *http.Request) (models.Profile, error) {
	p := r.URL.Query().Get("profile")
	if p == "" {
		return models.ProfilePersonal, nil
	}
	return util.ValidateProfile(p)
}

func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}
}
