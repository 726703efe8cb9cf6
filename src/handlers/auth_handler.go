package handlers

import (
	"context"
	"net/http"
	"time"

	"pocketsync-server/src/logger"
	"pocketsync-server/src/util"
)

// MonzoAuthorizer is the OAuth2 side of the Monzo client.
type MonzoAuthorizer interface {
	AuthCodeURL(state string) string
	ExchangeAuthCode(ctx context.Context, code string) error
}

// MonzoAuth returns the URL the app should send the user to. The state is a
// signed, short-lived token checked again by MonzoCallback.
func MonzoAuth(client MonzoAuthorizer, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := util.NewOAuthState([]byte(secret), time.Now())
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("Failed to create oauth state")
			http.Error(w, "failed to start authorization", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": client.AuthCodeURL(state)})
	}
}

// MonzoCallback exchanges the authorization code and stores the tokens, starts
// a first pass so pots appear straight away, then sends the browser back to
// doneURL.
func MonzoCallback(client MonzoAuthorizer, secret, doneURL string, firstPass PassTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		q := r.URL.Query()

		if errParam := q.Get("error"); errParam != "" {
			log.Warn().Str("error", errParam).Msg("Monzo authorization declined")
			http.Error(w, "authorization declined", http.StatusBadRequest)
			return
		}
		if err := util.VerifyOAuthState([]byte(secret), q.Get("state")); err != nil {
			log.Warn().Err(err).Msg("Rejected monzo callback")
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		if err := client.ExchangeAuthCode(r.Context(), code); err != nil {
			log.Error().Err(err).Msg("Failed to exchange monzo auth code")
			http.Error(w, "failed to connect monzo", http.StatusBadGateway)
			return
		}
		log.Info().Msg("Connected monzo")
		if firstPass != nil && !firstPass.Fire(r.Context()) {
			log.Info().Msg("Initial monzo pass skipped, one ran recently")
		}
		http.Redirect(w, r, doneURL, http.StatusFound)
	}
}
