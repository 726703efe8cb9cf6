package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pocketsync-server/src/api"
	"pocketsync-server/src/archive"
	"pocketsync-server/src/config"
	"pocketsync-server/src/db"
	"pocketsync-server/src/db/memory"
	dbsql "pocketsync-server/src/db/sql"
	"pocketsync-server/src/handlers"
	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
	"pocketsync-server/src/monzo"
	"pocketsync-server/src/notify"
	plaidsync "pocketsync-server/src/plaid"
	"pocketsync-server/src/projection"
	"pocketsync-server/src/reconcile"
	"pocketsync-server/src/scheduler"
	"pocketsync-server/src/util"
)

const (
	householdZone   = "Europe/London"
	triggeredEvery  = time.Minute
	shutdownTimeout = 15 * time.Second
)

// appStore is the union of every store interface the server wires together.
type appStore interface {
	api.Store
	reconcile.Store
	notify.Store
	notify.Outbox
	monzo.TokenStore
	plaidsync.ItemStore
}

func main() {
	cfg, cfgErr := config.Load()
	log := logger.New(cfg.LogLevel)
	if cfg.LogJSON {
		log = logger.NewJSON(cfg.LogLevel)
	}
	if cfgErr != nil {
		log.Fatal().Err(cfgErr).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	var store appStore
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("No DATABASE_URL, using in-memory store")
		store = memory.New()
	} else {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		store = dbsql.NewPgStore(pool)
	}
	for _, profile := range []models.Profile{models.ProfilePersonal, models.ProfileBusiness} {
		if err := store.EnsureProtectedPockets(ctx, profile); err != nil {
			return err
		}
	}

	cache, err := db.NewCache()
	if err != nil {
		return err
	}
	defer cache.Close()
	clearCaches := func() { cache.Clear(db.PocketCache, db.ProjectionCache) }

	archiver, closeArchive, err := archive.New(ctx, cfg.WebhookArchiveBucket)
	if err != nil {
		return err
	}
	defer closeArchive()

	notifier := notify.New(store, notify.LogSink{}, notify.OutboxSink{Outbox: store})
	opts := reconcile.Options{Lookback: cfg.SyncLookback}

	loc, err := time.LoadLocation(householdZone)
	if err != nil {
		return err
	}

	pattern := projection.ShiftPattern{Anchor: cfg.RotaAnchor, OnDays: cfg.RotaOnDays, OffDays: cfg.RotaOffDays}
	deps := api.Deps{
		Config:   cfg,
		Logger:   log,
		Store:    store,
		Cache:    cache,
		Archiver: archiver,
		Clock:    handlers.SystemClock(loc),
		Rota: handlers.RotaSettings{
			Pattern: pattern,
			Rates:   projection.PayRates{HoursPerShift: cfg.ShiftHours, BaseRate: cfg.HourlyRate, DeductionRate: cfg.DeductionRate},
		},
		Digest: notify.NewDigest(store, notifier, notify.DigestConfig{
			Pattern:          pattern,
			EssentialsPocket: cfg.EssentialsPocket,
			FunPocket:        cfg.FunPocket,
			Location:         loc,
		}),
	}
	var runners []scheduler.Runner
	var triggers []*scheduler.Trigger
	// Triggered passes stop with the server, before the store closes.
	passCtx, cancelPasses := context.WithCancel(ctx)
	defer cancelPasses()

	if cfg.MonzoEnabled() {
		client := monzo.NewClient(monzo.Config{
			ClientID:     cfg.MonzoClientID,
			ClientSecret: cfg.MonzoClientSecret,
			RedirectURL:  cfg.AppURL + "/api/monzo/callback",
			APIURL:       cfg.MonzoAPIURL,
			Timeout:      cfg.RemoteTimeout,
		}, store)
		engine := reconcile.New(client, store, notifier, opts)
		deps.MonzoIngester = engine
		deps.MonzoAuth = client
		trigger := scheduler.NewTrigger(passCtx, engine, triggeredEvery, clearCaches)
		deps.MonzoTrigger = trigger
		triggers = append(triggers, trigger)
		deps.Syncers = append(deps.Syncers, engine)
		runners = append(runners, engine)
		log.Info().Msg("Monzo enabled")
	}

	if cfg.PlaidEnabled() {
		plaidClient, err := plaidsync.NewPlaidClient(cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidEnv)
		if err != nil {
			return err
		}
		adapter := plaidsync.NewAdapter(plaidClient, store)
		engine := reconcile.New(adapter, store, notifier, opts)
		deps.PlaidVerifier = util.NewWebhookVerifier(util.PlaidKeyFetcher(plaidClient))
		trigger := scheduler.NewTrigger(passCtx, engine, triggeredEvery, clearCaches)
		deps.PlaidTrigger = trigger
		triggers = append(triggers, trigger)
		deps.PlaidLinker = adapter
		deps.Syncers = append(deps.Syncers, engine)
		runners = append(runners, engine)
		log.Info().Str("env", cfg.PlaidEnv).Msg("Plaid enabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	poller := scheduler.NewPoller(cfg.SyncInterval, clearCaches, runners...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Start(gctx)
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Bool("demo", cfg.DemoMode).Msg("API server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		log.Info().Msg("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	cancelPasses()
	for _, t := range triggers {
		t.Wait()
	}
	return err
}
