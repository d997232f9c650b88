// Package messaging implements the channels behind the Messaging task kind
// (spec §3's task kind table; spec §1's "notification (email/SMS)"): once a
// grievance is classified and routed to an office (spec §4's office
// directory lookup), a task of kind Messaging notifies that office.
package messaging

import (
	"context"
	"fmt"

	"github.com/grievanceplatform/orchestrator/core"
)

// Notification is the channel-agnostic payload a Messaging task body
// builds once it has resolved the target office from
// dbtask.OfficeDirectory. Channels render it into their own wire format.
type Notification struct {
	GrievanceID string
	OfficeName  string
	OfficeEmail string
	OfficePhone string
	Subject     string
	Body        string
}

// Channel is one concrete transport a Notification can be sent over.
// Telegram and SMTP email are the two channels wired in this module;
// new transports implement this interface without touching pkg/tasks.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notifier dispatches a Notification to every configured channel,
// collecting per-channel errors rather than stopping at the first failure
// so one dead transport doesn't silently swallow the others.
type Notifier struct {
	channels []Channel
	logger   core.ComponentAwareLogger
}

// New returns a Notifier sending through every channel in channels, in order.
func New(logger core.ComponentAwareLogger, channels ...Channel) *Notifier {
	return &Notifier{channels: channels, logger: logger}
}

// Send delivers n through every configured channel. It returns the first
// error encountered (after attempting all channels) so the caller's retry
// classifier (pkg/retry) still sees a single error to classify, while every
// channel still gets a chance to deliver.
func (n *Notifier) Send(ctx context.Context, notification Notification) error {
	var firstErr error
	for _, ch := range n.channels {
		if err := ch.Send(ctx, notification); err != nil {
			if n.logger != nil {
				n.logger.Error("notification channel send failed", map[string]interface{}{
					"operation":    "messaging_send",
					"channel":      ch.Name(),
					"grievance_id": notification.GrievanceID,
					"error":        err.Error(),
				})
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("messaging: %s channel: %w", ch.Name(), err)
			}
			continue
		}
		if n.logger != nil {
			n.logger.Info("notification sent", map[string]interface{}{
				"operation":    "messaging_send",
				"channel":      ch.Name(),
				"grievance_id": notification.GrievanceID,
			})
		}
	}
	return firstErr
}
