package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"pocketsync-server/src/archive"
	"pocketsync-server/src/bank"
	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
	"pocketsync-server/src/monzo"
)

type WebhookIngester interface {
	IngestWebhook(ctx context.Context, tx bank.Transaction) (models.IngestStatus, error)
}

type WebhookVerifier interface {
	Verify(ctx context.Context, body []byte, headers http.Header) error
}

// PassTrigger starts a background pass, reporting false when it was dropped.
type PassTrigger interface {
	Fire(ctx context.Context) bool
}

func archiveBody(ctx context.Context, a archive.Archiver, provider string, body []byte) {
	if err := a.Archive(ctx, provider, body); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("provider", provider).Msg("Failed to archive webhook body")
	}
}

// MonzoWebhook ingests transaction.created events. The shared secret arrives
// as the ?secret= query parameter of the registered webhook URL.
func MonzoWebhook(secret string, archiver archive.Archiver, ingester WebhookIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		got := r.URL.Query().Get("secret")
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			log.Warn().Msg("Rejected monzo webhook with bad secret")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		archiveBody(r.Context(), archiver, monzo.ServiceName, body)

		eventType, tx, err := monzo.ParseWebhook(body)
		if err != nil {
			log.Error().Err(err).Msg("Failed to parse monzo webhook")
			http.Error(w, "invalid webhook payload", http.StatusBadRequest)
			return
		}
		if tx == nil {
			log.Debug().Str("type", eventType).Msg("Ignored monzo webhook")
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		status, err := ingester.IngestWebhook(r.Context(), *tx)
		if err != nil {
			// A non-2xx makes Monzo redeliver; the dedup key absorbs the retry.
			log.Error().Err(err).Str("provider_tx_id", tx.ID).Msg("Failed to ingest monzo webhook")
			http.Error(w, "failed to ingest transaction", http.StatusInternalServerError)
			return
		}
		log.Info().Str("provider_tx_id", tx.ID).Str("status", string(status)).Msg("Ingested monzo webhook")
		writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
	}
}

// PlaidWebhook verifies the Plaid-Verification JWT and starts a Plaid pass for
// TRANSACTIONS webhooks. Plaid only says that something changed, so the pass
// re-reads the recent window.
func PlaidWebhook(verifier WebhookVerifier, archiver archive.Archiver, trigger PassTrigger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := verifier.Verify(r.Context(), body, r.Header); err != nil {
			log.Warn().Err(err).Msg("Rejected plaid webhook")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		archiveBody(r.Context(), archiver, "plaid", body)

		var payload struct {
			WebhookType string `json:"webhook_type"`
			WebhookCode string `json:"webhook_code"`
			ItemID      string `json:"item_id"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			http.Error(w, "invalid webhook payload", http.StatusBadRequest)
			return
		}
		log = log.With().Str("webhook_type", payload.WebhookType).Str("webhook_code", payload.WebhookCode).Str("item_id", payload.ItemID).Logger()

		if payload.WebhookType != "TRANSACTIONS" {
			log.Debug().Msg("Ignored plaid webhook")
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		status := "throttled"
		if trigger.Fire(logger.WithContext(r.Context(), log)) {
			status = "accepted"
		}
		log.Info().Str("status", status).Msg("Received plaid webhook")
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
	}
}
