package notify

import (
	"context"

	"pocketsync-server/src/logger"
	"pocketsync-server/src/models"
)

// LogSink writes notifications to the request or pass logger.
type LogSink struct{}

func (LogSink) Send(ctx context.Context, n models.Notification) error {
	log := logger.FromContext(ctx)
	log.Info().Str("title", n.Title).Str("body", n.Body).Msg("Notification")
	return nil
}

// Outbox stores notifications for the push transport to pick up.
type Outbox interface {
	SaveNotification(ctx context.Context, n *models.Notification) error
}

type OutboxSink struct {
	Outbox Outbox
}

func (s OutboxSink) Send(ctx context.Context, n models.Notification) error {
	return s.Outbox.SaveNotification(ctx, &n)
}
