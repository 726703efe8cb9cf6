// Package scheduler drives sync passes: on an interval for every provider, and
// on demand behind a rate limit for webhook-triggered passes.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
)

// Runner is one provider's reconciliation engine.
type Runner interface {
	Provider() string
	Run(ctx context.Context) (models.SyncReport, error)
}

type Poller struct {
	runners  []Runner
	interval time.Duration
	// after runs once every runner of a tick has finished, whatever the outcome.
	after func()
}

func NewPoller(interval time.Duration, after func(), runners ...Runner) *Poller {
	if after == nil {
		after = func() {}
	}
	return &Poller{runners: runners, interval: interval, after: after}
}

// Start blocks, running a pass for every provider each interval until ctx is
// done. A tick that overruns the interval delays the next one rather than
// overlapping it.
func (p *Poller) Start(ctx context.Context) error {
	log := logger.FromContext(ctx)
	if len(p.runners) == 0 || p.interval <= 0 {
		log.Info().Msg("Poller disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	log.Info().Dur("interval", p.interval).Int("providers", len(p.runners)).Msg("Poller started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Poller stopped")
			return nil
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs every provider once, concurrently. Provider failures are logged
// and never stop the others.
func (p *Poller) Tick(ctx context.Context) []models.SyncReport {
	reports := make([]models.SyncReport, len(p.runners))
	var g errgroup.Group
	for i, r := range p.runners {
		g.Go(func() error {
			reports[i] = runLogged(ctx, r)
			return nil
		})
	}
	_ = g.Wait()
	p.after()
	return reports
}

func runLogged(ctx context.Context, r Runner) models.SyncReport {
	log := logger.FromContext(ctx).With().Str("provider", r.Provider()).Logger()
	report, err := r.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Sync pass failed")
		return report
	}
	log.Info().
		Int("accounts", report.Accounts).
		Int("failed_accounts", report.FailedAccounts).
		Int("inserted", report.Inserted).
		Int("skipped", report.Skipped).
		Int("pockets_deleted", report.PocketsDeleted).
		Msg("Sync pass finished")
	return report
}

// Trigger runs passes for one provider on demand. Requests beyond the limiter's
// budget, or arriving while a pass is in flight, are dropped; the next allowed
// pass picks their changes up.
type Trigger struct {
	base    context.Context
	runner  Runner
	limiter *rate.Limiter
	after   func()
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewTrigger builds a trigger whose passes are cancelled with base.
func NewTrigger(base context.Context, r Runner, every time.Duration, after func()) *Trigger {
	if after == nil {
		after = func() {}
	}
	return &Trigger{base: base, runner: r, limiter: rate.NewLimiter(rate.Every(every), 1), after: after}
}

// Fire starts a pass in the background and reports whether it was started.
// The pass outlives ctx but keeps its values.
func (t *Trigger) Fire(ctx context.Context) bool {
	t.mu.Lock()
	if t.running || t.base.Err() != nil || !t.limiter.Allow() {
		t.mu.Unlock()
		return false
	}
	t.running = true
	t.wg.Add(1)
	t.mu.Unlock()

	pctx := passContext{Context: t.base, values: ctx}
	go func() {
		defer t.wg.Done()
		defer func() {
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
		}()
		runLogged(pctx, t.runner)
		t.after()
	}()
	return true
}

// Wait blocks until the pass in flight, if any, has returned.
func (t *Trigger) Wait() {
	t.wg.Wait()
}

// passContext is cancelled with its embedded context and looks values up in
// the context that fired the pass first.
type passContext struct {
	context.Context
	values context.Context
}

func (c passContext) Value(key any) any {
	if v := c.values.Value(key); v != nil {
		return v
	}
	return c.Context.Value(key)
}
