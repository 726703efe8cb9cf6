// Package notify decides whether a newly recorded movement should alert the
// user and composes the alert. Delivery is someone else's job: notifications
// are handed to a Sink.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
)

const (
	// SettingKey is the settings row holding the global on/off preference.
	SettingKey = "notifications_enabled"

	transactionsURL = "/finances/transactions"
	mainAccountName = "Main Account"
)

type Event struct {
	Provider    string
	Amount      decimal.Decimal
	Description string
	IsSpend     bool
	IsTransfer  bool
	PocketName  string
	PocketID    string
}

type Store interface {
	// NotificationsEnabled reports the global preference; unset means enabled.
	NotificationsEnabled(ctx context.Context) (bool, error)
	GetPocket(ctx context.Context, id string) (*models.Pocket, error)
}

type Sink interface {
	Send(ctx context.Context, n models.Notification) error
}

type Notifier struct {
	store Store
	sinks []Sink
	now   func() time.Time
}

func New(store Store, sinks ...Sink) *Notifier {
	return &Notifier{store: store, sinks: sinks, now: time.Now}
}

// Notify composes and hands off an alert for ev. It returns false when the
// preference is off. A failing sink does not stop the others.
func (n *Notifier) Notify(ctx context.Context, ev Event) (bool, error) {
	enabled, err := n.store.NotificationsEnabled(ctx)
	if err != nil {
		return false, fmt.Errorf("read notification preference: %w", err)
	}
	if !enabled {
		return false, nil
	}

	note := Compose(ev)
	if ev.IsSpend && !ev.IsTransfer && ev.PocketID != "" {
		pocket, err := n.store.GetPocket(ctx, ev.PocketID)
		if err != nil {
			return false, fmt.Errorf("load pocket %s: %w", ev.PocketID, err)
		}
		if pocket != nil {
			if used, ok := AllocationUsed(*pocket); ok {
				note.Body += fmt.Sprintf(" (%s%% of allocation used)", used.Round(0).String())
			}
		}
	}
	return true, n.deliver(ctx, note)
}

// Send hands an already composed notification to the sinks, honouring the
// preference the same way Notify does.
func (n *Notifier) Send(ctx context.Context, note models.Notification) (bool, error) {
	enabled, err := n.store.NotificationsEnabled(ctx)
	if err != nil {
		return false, fmt.Errorf("read notification preference: %w", err)
	}
	if !enabled {
		return false, nil
	}
	return true, n.deliver(ctx, note)
}

func (n *Notifier) deliver(ctx context.Context, note models.Notification) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = n.now()
	}
	log := logger.FromContext(ctx)
	var firstErr error
	for _, sink := range n.sinks {
		if err := sink.Send(ctx, note); err != nil {
			log.Error().Err(err).Str("title", note.Title).Msg("Failed to deliver notification")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Compose builds the title and body, e.g. "Spent £12.50 from General: Tesco".
func Compose(ev Event) models.Notification {
	pocketName := ev.PocketName
	if pocketName == "" {
		pocketName = mainAccountName
	}
	provider := displayName(ev.Provider)

	var title string
	switch {
	case ev.IsTransfer:
		title = provider + " Transfer"
	case ev.IsSpend:
		title = provider + " Spend"
	default:
		title = provider + " Received"
	}

	var body string
	if ev.IsSpend {
		body = fmt.Sprintf("Spent £%s from %s: %s", ev.Amount.StringFixed(2), pocketName, ev.Description)
	} else {
		body = fmt.Sprintf("Received £%s in %s: %s", ev.Amount.StringFixed(2), pocketName, ev.Description)
	}

	return models.Notification{Title: strings.TrimSpace(title), Body: body, URL: transactionsURL}
}

// AllocationUsed is (targetBudget - balance) / targetBudget as a percentage.
// ok is false when the pocket has no nonzero target budget.
func AllocationUsed(p models.Pocket) (decimal.Decimal, bool) {
	if !p.TargetBudget.Valid || p.TargetBudget.Decimal.IsZero() {
		return decimal.Zero, false
	}
	budget := p.TargetBudget.Decimal
	return budget.Sub(p.Balance).Div(budget).Mul(decimal.NewFromInt(100)), true
}

func displayName(provider string) string {
	if provider == "" {
		return ""
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}
