package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrDeliveryFailed wraps every transport failure. Deliveries are never
// retried.
var ErrDeliveryFailed = errors.New("delivery_failed")

// ErrNoRecipient is returned when a message has nowhere to go.
var ErrNoRecipient = errors.New("no_recipient")

// Notifier hands a text message to the outbound messaging transport.
// recipient is a numeric chat id or an "@handle".
type Notifier interface {
	Send(ctx context.Context, recipient, text string) error
}

// LogNotifier writes messages to the log instead of delivering them. It is
// used when no bot token is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify.log")}
}

func (n *LogNotifier) Send(ctx context.Context, recipient, text string) error {
	if recipient == "" {
		return ErrNoRecipient
	}
	n.log.Info("message not delivered, transport disabled",
		zap.String("recipient", recipient),
		zap.Int("length", len(text)),
	)
	return nil
}
