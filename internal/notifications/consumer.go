package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pubsublib "cloud.google.com/go/pubsub/v2"

	"github.com/nafsiapp/nafsi-backend/internal/users"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
	"github.com/nafsiapp/nafsi-backend/pkg/metrics"
)

const workerName = "notification-push"

// PushSender delivers a rendered push message to a device token.
type PushSender interface {
	Send(ctx context.Context, deviceToken, title, body string) error
}

// Consumer drains the notification subscription and forwards pushes to
// registered devices. Messages for users without a device token are dropped.
type Consumer struct {
	users   users.Repository
	sender  PushSender
	logg    *logger.Logger
	metrics *metrics.WorkerMetrics
}

// NewConsumer wires the push delivery consumer.
func NewConsumer(userRepo users.Repository, sender PushSender, logg *logger.Logger, workerMetrics *metrics.WorkerMetrics) (*Consumer, error) {
	if userRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		users:   userRepo,
		sender:  sender,
		logg:    logg,
		metrics: workerMetrics,
	}, nil
}

// Run blocks on the subscription until the context is cancelled.
func (c *Consumer) Run(ctx context.Context, subscriber *pubsublib.Subscriber) error {
	if subscriber == nil {
		return fmt.Errorf("subscriber handle required")
	}
	return subscriber.Receive(ctx, c.handle)
}

func (c *Consumer) handle(ctx context.Context, msg *pubsublib.Message) {
	start := time.Now()

	var event PushEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// Malformed payloads never become deliverable; drop them.
		c.logg.Error(ctx, "drop malformed notification event", err)
		c.metrics.IncFailure(workerName)
		msg.Ack()
		return
	}

	ctx = c.logg.WithFields(ctx, map[string]any{
		"notification_id": event.NotificationID.String(),
		"user_id":         event.UserID.String(),
		"type":            string(event.Type),
	})

	if err := c.deliver(ctx, event); err != nil {
		c.logg.Error(ctx, "deliver notification", err)
		c.metrics.IncFailure(workerName)
		msg.Nack()
		return
	}

	c.metrics.ObserveDuration(workerName, time.Since(start))
	c.metrics.IncSuccess(workerName)
	msg.Ack()
}

func (c *Consumer) deliver(ctx context.Context, event PushEvent) error {
	user, err := c.users.FindByID(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.FCMToken == nil || *user.FCMToken == "" {
		c.logg.Info(ctx, "user has no registered device, skipping push")
		return nil
	}
	if c.sender == nil {
		c.logg.Info(ctx, "no push sender configured, skipping push")
		return nil
	}
	return c.sender.Send(ctx, *user.FCMToken, event.Title, event.Body)
}
