package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lojf/vbs/internal/models"
)

// ConsoleNotifier logs confirmations instead of mailing them. Sent keeps every
// rendered message for inspection.
type ConsoleNotifier struct {
	event Event
	log   *zap.Logger

	mu   sync.Mutex
	sent []Message
}

var _ Notifier = (*ConsoleNotifier)(nil)

func NewConsoleNotifier(ev Event, log *zap.Logger) *ConsoleNotifier {
	return &ConsoleNotifier{event: ev, log: log.Named("console-mail")}
}

func (n *ConsoleNotifier) SendConfirmation(_ context.Context, reg *models.Registration) error {
	msg, err := Confirmation(reg, n.event)
	if err != nil {
		return err
	}
	n.log.Info("confirmation (not sent)",
		zap.String("to", msg.To.String()),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Text),
	)
	n.mu.Lock()
	n.sent = append(n.sent, *msg)
	n.mu.Unlock()
	return nil
}

func (n *ConsoleNotifier) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.sent...)
}
