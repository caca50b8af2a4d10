// Package notify delivers queued chat notifications.
package notify

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/suPer8Hu/gadgetchat/internal/chat"
	"gorm.io/gorm"
)

// Deliverer hands a notification to its recipient (mail, push, inbox).
type Deliverer interface {
	Deliver(ctx context.Context, n *chat.Notification) error
}

// LogDeliverer only records the delivery.
type LogDeliverer struct {
	Log zerolog.Logger
}

func (d LogDeliverer) Deliver(_ context.Context, n *chat.Notification) error {
	d.Log.Info().
		Str("notification_id", n.ID).
		Str("request_id", n.RequestID).
		Str("message_id", n.MessageID).
		Str("recipient", n.Recipient).
		Msg("notification delivered")
	return nil
}

type Processor struct {
	repo    *chat.Repo
	deliver Deliverer
	log     zerolog.Logger
}

func NewProcessor(repo *chat.Repo, d Deliverer) *Processor {
	return &Processor{
		repo:    repo,
		deliver: d,
		log:     log.Logger.With().Str("component", "notify").Logger(),
	}
}

// ErrPermanent marks failures that retrying cannot fix.
var ErrPermanent = errors.New("notify: permanent failure")

// Handle delivers one notification. Already handled notifications are skipped so
// redelivered queue messages are harmless.
func (p *Processor) Handle(ctx context.Context, notificationID string) error {
	start := time.Now()

	n, err := p.repo.GetNotification(ctx, notificationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(ErrPermanent, "notification %s not found", notificationID)
		}
		return err
	}
	if n.Status != chat.NotificationQueued {
		p.log.Debug().Str("notification_id", n.ID).Str("status", string(n.Status)).Msg("already handled")
		return nil
	}

	if err := p.deliver.Deliver(ctx, n); err != nil {
		return errors.Wrap(err, "deliver")
	}
	if err := p.repo.MarkNotificationSent(ctx, n.ID); err != nil {
		return errors.Wrap(err, "mark sent")
	}

	if cost := time.Since(start); cost > 500*time.Millisecond {
		p.log.Warn().Str("notification_id", n.ID).Dur("cost", cost).Msg("slow notification")
	}
	return nil
}

// GiveUp records the final failure of a notification.
func (p *Processor) GiveUp(ctx context.Context, notificationID string, cause error) {
	if err := p.repo.MarkNotificationFailed(ctx, notificationID, cause.Error()); err != nil {
		p.log.Error().Err(err).Str("notification_id", notificationID).Msg("mark failed")
	}
}
