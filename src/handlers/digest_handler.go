package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pocketsync-server/src/logger"
	"pocketsync-server/src/notify"
)

type DigestSender interface {
	Morning(ctx context.Context) (notify.DigestResult, error)
	Evening(ctx context.Context) (notify.DigestResult, error)
}

// Digest sends the morning or evening digest named by {kind}. It is called by
// an external cron.
func Digest(sender DigestSender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		kind := chi.URLParam(r, "kind")

		var res notify.DigestResult
		var err error
		switch kind {
		case notify.DigestMorning:
			res, err = sender.Morning(r.Context())
		case notify.DigestEvening:
			res, err = sender.Evening(r.Context())
		default:
			http.Error(w, "Unknown digest", http.StatusNotFound)
			return
		}

		if errors.Is(err, notify.ErrNoDigestPockets) {
			http.Error(w, "No digest pockets found", http.StatusBadRequest)
			return
		}
		if err != nil {
			log.Error().Err(err).Str("kind", kind).Msg("Failed to send digest")
			http.Error(w, "Failed to send digest", http.StatusInternalServerError)
			return
		}

		log.Info().Str("kind", kind).Bool("sent", res.Sent).Str("title", res.Title).Msg("Digest sent")
		writeJSON(w, http.StatusOK, res)
	}
}
