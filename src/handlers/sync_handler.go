package handlers

import (
	"context"
	"net/http"
	"time"

	"pocketsync-server/src/db"
	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
)

// PollLimit caps the transactions fetched per account by a poll.
const PollLimit = 100

// Syncer is one provider's reconciliation engine.
type Syncer interface {
	Provider() string
	Run(ctx context.Context) (models.SyncReport, error)
	Poll(ctx context.Context, lookback time.Duration, limit int) (models.SyncReport, error)
	RegisterWebhooks(ctx context.Context, url string) error
}

type syncResult struct {
	models.SyncReport
	Error string `json:"error,omitempty"`
}

// respondReports answers 200 unless every provider failed.
func respondReports(w http.ResponseWriter, results []syncResult) {
	status := http.StatusOK
	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}
	if len(results) > 0 && failed == len(results) {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, results)
}

// Poll runs a transaction-only pass over the recent window for every
// provider. It is called by an external cron.
func Poll(syncers []Syncer, cache *db.Cache, lookback time.Duration, limit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		results := make([]syncResult, 0, len(syncers))
		for _, s := range syncers {
			report, err := s.Poll(r.Context(), lookback, limit)
			res := syncResult{SyncReport: report}
			if err != nil {
				log.Error().Err(err).Str("provider", s.Provider()).Msg("Poll failed")
				res.Error = "poll failed"
			}
			results = append(results, res)
		}
		cache.Clear(db.PocketCache, db.ProjectionCache)
		respondReports(w, results)
	}
}

// Sync registers webhooks and runs a full pass for every provider. Webhook
// registration failures are logged and never stop the pass.
func Sync(syncers []Syncer, cache *db.Cache, webhookURLs map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		results := make([]syncResult, 0, len(syncers))
		for _, s := range syncers {
			provider := s.Provider()
			if url := webhookURLs[provider]; url != "" {
				if err := s.RegisterWebhooks(r.Context(), url); err != nil {
					log.Warn().Err(err).Str("provider", provider).Msg("Failed to register webhooks")
				}
			}

			report, err := s.Run(r.Context())
			res := syncResult{SyncReport: report}
			if err != nil {
				log.Error().Err(err).Str("provider", provider).Msg("Sync failed")
				res.Error = "sync failed"
			} else {
				log.Info().Str("provider", provider).Int("inserted", report.Inserted).Int("accounts", report.Accounts).Msg("Synced provider")
			}
			results = append(results, res)
		}
		cache.Clear(db.PocketCache, db.ProjectionCache)
		respondReports(w, results)
	}
}
