// Package notify sends SMS acknowledgements for submitted records.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"village-assist/internal/queue"
	"village-assist/internal/sms"
)

// Notifier handles notify tasks.
type Notifier struct {
	sender sms.Sender
	log    *slog.Logger
}

func New(sender sms.Sender, log *slog.Logger) *Notifier {
	return &Notifier{sender: sender, log: log}
}

// Acknowledgement is the default message for a registered ticket.
func Acknowledgement(ticket string) string {
	return fmt.Sprintf("Your request has been registered. Ticket: %s. Keep this number for follow-up.", ticket)
}

// HandleTask sends the acknowledgement described by a notify task.
func (n *Notifier) HandleTask(ctx context.Context, task queue.Task) error {
	var p queue.NotifyPayload
	if err := task.Decode(&p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Mobile) == "" {
		return errors.New("notify task without mobile number")
	}
	msg := p.Message
	if strings.TrimSpace(msg) == "" {
		msg = Acknowledgement(p.Ticket)
	}
	if err := n.sender.SendMessage(ctx, p.Mobile, msg); err != nil {
		return fmt.Errorf("send acknowledgement: %w", err)
	}
	n.log.Info("acknowledgement sent", "ticket", p.Ticket, "mobile", sms.Mask(p.Mobile))
	return nil
}
