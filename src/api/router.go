package api

import (
	"net/url"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"pocketsync-server/src/archive"
	"pocketsync-server/src/config"
	"pocketsync-server/src/db"
	"pocketsync-server/src/handlers"
	"pocketsync-server/src/middleware"
)

// Store is everything the HTTP surface reads and writes. Both the Postgres
// store and the in-memory demo store satisfy it.
type Store interface {
	handlers.PocketStore
	handlers.ObligationStore
	handlers.RotaStore
	handlers.TransactionStore
	handlers.IncomeStore
	handlers.SettingsStore
}

// Deps wires the router. Provider fields are nil when that provider is not
// configured, and its routes are then not mounted.
type Deps struct {
	Config   config.Config
	Logger   zerolog.Logger
	Store    Store
	Cache    *db.Cache
	Archiver archive.Archiver
	Syncers  []handlers.Syncer
	Rota     handlers.RotaSettings
	Clock    handlers.Clock
	Digest   handlers.DigestSender

	MonzoIngester handlers.WebhookIngester
	MonzoAuth     handlers.MonzoAuthorizer
	MonzoTrigger  handlers.PassTrigger

	PlaidVerifier handlers.WebhookVerifier
	PlaidTrigger  handlers.PassTrigger
	PlaidLinker   handlers.PlaidLinker
}

// WebhookURLs is where each provider is told to deliver webhooks.
func WebhookURLs(cfg config.Config) map[string]string {
	return map[string]string{
		"monzo": cfg.AppURL + "/api/monzo/webhook?secret=" + url.QueryEscape(cfg.WebhookSecret),
		"plaid": cfg.AppURL + "/api/plaid/webhook",
	}
}

func NewRouter(d Deps) *chi.Mux {
	cfg := d.Config
	if d.Archiver == nil {
		d.Archiver = archive.Noop{}
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(d.Logger))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.DemoModeMiddleware(cfg.DemoMode))

	r.Get("/health", handlers.Health())

	r.Route("/api", func(r chi.Router) {
		// Webhooks authenticate themselves.
		if d.MonzoIngester != nil {
			r.Post("/monzo/webhook", handlers.MonzoWebhook(cfg.WebhookSecret, d.Archiver, d.MonzoIngester))
		}
		if d.PlaidVerifier != nil && d.PlaidTrigger != nil {
			r.Post("/plaid/webhook", handlers.PlaidWebhook(d.PlaidVerifier, d.Archiver, d.PlaidTrigger))
		}
		if d.MonzoAuth != nil {
			r.Get("/monzo/callback", handlers.MonzoCallback(d.MonzoAuth, cfg.JWTSecret, cfg.AppURL+"/finances?monzo=connected", d.MonzoTrigger))
		}

		r.With(middleware.CronAuthMiddleware(cfg.CronSecret)).Group(func(r chi.Router) {
			r.Get("/poll", handlers.Poll(d.Syncers, d.Cache, cfg.PollLookback, handlers.PollLimit))
			if d.Digest != nil {
				r.Get("/digest/{kind}", handlers.Digest(d.Digest))
			}
		})

		// Protected routes
		r.With(middleware.JWTAuthMiddleware(cfg.JWTSecret)).Group(func(r chi.Router) {
			// Providers
			if d.MonzoAuth != nil {
				r.Get("/monzo/auth", handlers.MonzoAuth(d.MonzoAuth, cfg.JWTSecret))
			}
			if d.PlaidLinker != nil {
				r.Post("/plaid/create-link-token", handlers.CreateLinkToken(d.PlaidLinker))
				r.Post("/plaid/exchange-public-token", handlers.ExchangePublicToken(d.PlaidLinker))
			}
			r.Post("/sync", handlers.Sync(d.Syncers, d.Cache, WebhookURLs(cfg)))

			// Pockets
			r.Get("/pockets", handlers.GetPockets(d.Store, d.Cache))
			r.Post("/pockets", handlers.CreatePocket(d.Store, d.Cache))
			r.Put("/pockets/{pocket_id}/budget", handlers.UpdatePocketBudget(d.Store, d.Cache))

			// Ledger
			r.Get("/transactions", handlers.GetTransactions(d.Store, d.Clock))
			r.Delete("/transactions/{transaction_id}", handlers.DeleteTransaction(d.Store, d.Cache))
			r.Post("/transfers", handlers.CreateTransfer(d.Store, d.Cache))
			r.Get("/income", handlers.GetIncome(d.Store))
			r.Post("/income", handlers.CreateIncome(d.Store))

			// Obligations and projections
			r.Get("/obligations", handlers.GetObligations(d.Store, d.Cache))
			r.Post("/obligations", handlers.CreateObligation(d.Store, d.Cache))
			r.Delete("/obligations/{obligation_id}", handlers.DeleteObligation(d.Store, d.Cache))
			r.Get("/projections/monthly", handlers.MonthlyProjection(d.Store, d.Cache, d.Clock))
			r.Get("/projections/forecast", handlers.Forecast(d.Store, d.Store, d.Cache, d.Rota, d.Clock))

			// Rota
			r.Get("/rota", handlers.GetRota(d.Store, d.Rota, d.Clock))
			r.Put("/rota/overrides", handlers.UpsertRotaOverrides(d.Store, d.Cache))
			r.Patch("/rota/overrides/{override_id}", handlers.UpdateRotaOverrideStatus(d.Store, d.Cache))
			r.Delete("/rota/overrides/{date}", handlers.DeleteRotaOverride(d.Store, d.Cache))

			// Settings
			r.Get("/settings/notifications", handlers.GetNotificationSettings(d.Store))
			r.Put("/settings/notifications", handlers.UpdateNotificationSettings(d.Store))
		})
	})

	return r
}
