// Package fcm delivers push notifications through Firebase Cloud
// Messaging. Reminder and caregiver notifications go through here.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"github.com/medicos-health/medigate/internal/port/outbound"
)

// Notifier sends messages to a device token or a topic.
type Notifier struct {
	client *messaging.Client
	logger *slog.Logger
}

// NewNotifier creates a notifier over the app's messaging client.
func NewNotifier(ctx context.Context, app *firebase.App, logger *slog.Logger) (*Notifier, error) {
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}
	return &Notifier{client: client, logger: logger}, nil
}

var _ outbound.Notifier = (*Notifier)(nil)

// Send delivers one notification. Exactly one of Token or Topic must be
// set; FCM rejects messages addressed to both.
func (n *Notifier) Send(ctx context.Context, notification outbound.Notification) (string, error) {
	if (notification.Token == "") == (notification.Topic == "") {
		return "", fmt.Errorf("notification needs exactly one of token or topic")
	}

	msg := &messaging.Message{
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data:  notification.Data,
		Token: notification.Token,
		Topic: notification.Topic,
	}

	msgID, err := n.client.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("send notification: %w", err)
	}

	n.logger.Debug("notification sent", "message_id", msgID, "topic", notification.Topic)
	return msgID, nil
}
