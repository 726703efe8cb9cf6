package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"pocketsync-server/src/db"
	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
	"pocketsync-server/src/util"
)

const (
	defaultTransactionDays  = 30
	defaultTransactionLimit = 100
	maxTransactionLimit     = 500
)

type TransactionStore interface {
	ListTransactions(ctx context.Context, profile models.Profile, since time.Time, limit int) ([]models.LedgerTransaction, error)
	CreateTransfer(ctx context.Context, req *models.TransferRequest) (*models.LedgerTransaction, *models.LedgerTransaction, error)
	DeleteTransaction(ctx context.Context, id string) error
}

// GetTransactions lists a profile's ledger, newest first, from ?since=
// (default thirty days back) up to ?limit= rows.
func GetTransactions(store TransactionStore, today Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		profile, err := profileParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q := r.URL.Query()
		since, err := util.ParseDate(q.Get("since"), today().AddDays(-defaultTransactionDays))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		limit := defaultTransactionLimit
		if l := q.Get("limit"); l != "" {
			limit, err = strconv.Atoi(l)
			if err != nil || limit <= 0 || limit > maxTransactionLimit {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
		}

		txs, err := store.ListTransactions(r.Context(), profile, since.In(time.UTC), limit)
		if err != nil {
			log.Error().Err(err).Str("profile", string(profile)).Msg("Failed to list transactions")
			http.Error(w, "failed to list transactions", http.StatusInternalServerError)
			return
		}
		if txs == nil {
			txs = []models.LedgerTransaction{}
		}
		writeJSON(w, http.StatusOK, txs)
	}
}

// CreateTransfer records a move between two pockets of one profile as a
// linked pair of rows.
func CreateTransfer(store TransactionStore, cache *db.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req models.TransferRequest
		if err := decodeJSON(w, r, &req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if req.Profile == "" {
			req.Profile = models.ProfilePersonal
		}
		if err := util.ValidateTransfer(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		out, in, err := store.CreateTransfer(r.Context(), &req)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				http.Error(w, "pocket not found in profile", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("from_pocket_id", req.FromPocketID).Str("to_pocket_id", req.ToPocketID).Msg("Failed to create transfer")
			http.Error(w, "failed to create transfer", http.StatusInternalServerError)
			return
		}
		cache.Clear(db.PocketCache)
		log.Info().Str("transaction_id", out.ID).Str("paired_transaction_id", in.ID).Msg("Created transfer")
		writeJSON(w, http.StatusCreated, map[string]*models.LedgerTransaction{"out": out, "in": in})
	}
}

// DeleteTransaction removes a row together with its transfer pair.
func DeleteTransaction(store TransactionStore, cache *db.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		id := chi.URLParam(r, "transaction_id")

		if err := store.DeleteTransaction(r.Context(), id); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				http.Error(w, "transaction not found", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("transaction_id", id).Msg("Failed to delete transaction")
			http.Error(w, "failed to delete transaction", http.StatusInternalServerError)
			return
		}
		cache.Clear(db.PocketCache)
		log.Info().Str("transaction_id", id).Msg("Deleted transaction")
		w.WriteHeader(http.StatusNoContent)
	}
}
