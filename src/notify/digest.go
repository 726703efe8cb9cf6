package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"pocketsync-server/src/models"
	"pocketsync-server/src/projection"
)

const (
	DigestMorning = "morning"
	DigestEvening = "evening"

	financesURL = "/finances"
)

// ErrNoDigestPockets is returned by the morning digest when neither of the
// pockets it reports on exists.
var ErrNoDigestPockets = errors.New("no digest pockets found")

// Categories that never count towards the day's spend.
var excludedFromDailySpend = map[string]bool{
	"transfers": true,
	"bills":     true,
	"savings":   true,
}

type DigestStore interface {
	ListPockets(ctx context.Context, profile models.Profile) ([]models.Pocket, error)
	ListTransactions(ctx context.Context, profile models.Profile, since time.Time, limit int) ([]models.LedgerTransaction, error)
}

type DigestConfig struct {
	Pattern          projection.ShiftPattern
	EssentialsPocket string
	FunPocket        string
	Location         *time.Location
}

// Digest sends the daily budget briefing and spend review for the personal
// profile.
type Digest struct {
	store    DigestStore
	notifier *Notifier
	cfg      DigestConfig
	now      func() time.Time
}

func NewDigest(store DigestStore, notifier *Notifier, cfg DigestConfig) *Digest {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Digest{store: store, notifier: notifier, cfg: cfg, now: time.Now}
}

type DigestResult struct {
	Kind         string           `json:"kind"`
	Sent         bool             `json:"sent"`
	Title        string           `json:"title"`
	Body         string           `json:"body"`
	DaysToPayday int              `json:"days_to_payday"`
	DailyTarget  decimal.Decimal  `json:"daily_target"`
	TodaySpend   *decimal.Decimal `json:"today_spend,omitempty"`
}

// MorningFigures is what the morning briefing is built from.
type MorningFigures struct {
	EssentialsName string
	Essentials     decimal.Decimal
	FunName        string
	Fun            decimal.Decimal
	DaysToPayday   int
	ShiftDay       bool
}

// EveningFigures is what the evening review is built from. Essentials is the
// balance after today's spending.
type EveningFigures struct {
	EssentialsName string
	Essentials     decimal.Decimal
	Spent          decimal.Decimal
	DaysToPayday   int
}

func (d *Digest) Morning(ctx context.Context) (DigestResult, error) {
	today := civil.DateOf(d.now().In(d.cfg.Location))

	pockets, err := d.store.ListPockets(ctx, models.ProfilePersonal)
	if err != nil {
		return DigestResult{}, fmt.Errorf("list pockets: %w", err)
	}
	ess, essOK := pocketBalance(pockets, d.cfg.EssentialsPocket)
	fun, funOK := pocketBalance(pockets, d.cfg.FunPocket)
	if !essOK && !funOK {
		return DigestResult{}, ErrNoDigestPockets
	}

	days, _ := projection.DaysUntilNextPayday(today)
	figures := MorningFigures{
		EssentialsName: d.cfg.EssentialsPocket,
		Essentials:     ess,
		FunName:        d.cfg.FunPocket,
		Fun:            fun,
		DaysToPayday:   days,
		ShiftDay:       d.cfg.Pattern.IsWorkingDay(today),
	}
	note := ComposeMorning(figures)
	res := DigestResult{
		Kind:         DigestMorning,
		Title:        note.Title,
		Body:         note.Body,
		DaysToPayday: days,
		DailyTarget:  DailyTarget(ess, days),
	}
	res.Sent, err = d.notifier.Send(ctx, note)
	return res, err
}

func (d *Digest) Evening(ctx context.Context) (DigestResult, error) {
	now := d.now().In(d.cfg.Location)
	today := civil.DateOf(now)

	txs, err := d.store.ListTransactions(ctx, models.ProfilePersonal, today.In(d.cfg.Location), 0)
	if err != nil {
		return DigestResult{}, fmt.Errorf("list transactions: %w", err)
	}
	spent := DailySpend(txs)

	pockets, err := d.store.ListPockets(ctx, models.ProfilePersonal)
	if err != nil {
		return DigestResult{}, fmt.Errorf("list pockets: %w", err)
	}
	ess, _ := pocketBalance(pockets, d.cfg.EssentialsPocket)

	days, _ := projection.DaysUntilNextPayday(today)
	note := ComposeEvening(EveningFigures{
		EssentialsName: d.cfg.EssentialsPocket,
		Essentials:     ess,
		Spent:          spent,
		DaysToPayday:   days,
	})
	res := DigestResult{
		Kind:         DigestEvening,
		Title:        note.Title,
		Body:         note.Body,
		DaysToPayday: days,
		DailyTarget:  DailyTarget(ess, days),
		TodaySpend:   &spent,
	}
	res.Sent, err = d.notifier.Send(ctx, note)
	return res, err
}

// DailySpend totals the day-to-day spending among txs.
func DailySpend(txs []models.LedgerTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txs {
		if t.Type != models.MovementSpend || excludedFromDailySpend[t.Category] {
			continue
		}
		total = total.Add(t.Amount)
	}
	return total
}

// DailyTarget spreads balance evenly over the days left until payday.
func DailyTarget(balance decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return balance
	}
	return balance.Div(decimal.NewFromInt(int64(days)))
}

func ComposeMorning(f MorningFigures) models.Notification {
	lines := []string{fmt.Sprintf("%s: %s left.", f.EssentialsName, gbp(f.Essentials))}
	if f.DaysToPayday > 0 {
		lines = append(lines, fmt.Sprintf("Aim to spend under %s/day to reach payday (%s away).",
			gbp(DailyTarget(f.Essentials, f.DaysToPayday)), dayLabel(f.DaysToPayday)))
	}
	if f.Fun.GreaterThan(decimal.NewFromInt(5)) {
		lines = append(lines, fmt.Sprintf("%s pocket: %s available.", f.FunName, gbp(f.Fun)))
	}

	greeting := "Good morning"
	if f.ShiftDay {
		greeting = "Morning shift"
	}
	return models.Notification{
		Title: greeting + ", here's your budget",
		Body:  strings.Join(lines, " "),
		URL:   financesURL,
	}
}

func ComposeEvening(f EveningFigures) models.Notification {
	target := DailyTarget(f.Essentials, f.DaysToPayday)
	note := models.Notification{URL: transactionsURL}

	switch {
	case f.Spent.IsZero():
		note.Title = "No-spend day!"
		note.Body = fmt.Sprintf("You didn't spend anything from your pockets today. %s still in %s, great discipline!",
			gbp(f.Essentials), f.EssentialsName)
	case f.Spent.LessThanOrEqual(target):
		note.Title = fmt.Sprintf("Good day: %s spent", gbp(f.Spent))
		note.Body = fmt.Sprintf("You came in %s under your %s daily target with %s to payday. Keep it up!",
			gbp(target.Sub(f.Spent)), gbp(target), dayLabel(f.DaysToPayday))
	default:
		// Tomorrow's target spreads what is left over one day fewer.
		next := f.Essentials
		if f.DaysToPayday > 1 {
			next = DailyTarget(f.Essentials, f.DaysToPayday-1)
		}
		note.Title = fmt.Sprintf("%s spent today", gbp(f.Spent))
		note.Body = fmt.Sprintf("You went %s over today's target of %s. Aim for under %s tomorrow to stay on track.",
			gbp(f.Spent.Sub(target)), gbp(target), gbp(next))
	}
	return note
}

func pocketBalance(pockets []models.Pocket, name string) (decimal.Decimal, bool) {
	for _, p := range pockets {
		if p.Name == name {
			return p.Balance, true
		}
	}
	return decimal.Zero, false
}

func gbp(d decimal.Decimal) string {
	return "£" + d.StringFixed(2)
}

func dayLabel(days int) string {
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
