// Package payments wraps the hosted checkout provider.
package payments

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrBadSignature   = errors.New("payments: webhook signature rejected")
	ErrUnknownSession = errors.New("payments: unknown checkout session")
)

type CheckoutRequest struct {
	RegistrationID  uint
	Code            string
	Email           string
	Children        int
	UnitAmountCents int64
	Currency        string
	Description     string
}

type Checkout struct {
	SessionID string
	URL       string // where to send the parent
}

type CheckoutStatus struct {
	SessionID      string
	RegistrationID uint
	Paid           bool
}

type WebhookEvent struct {
	Type           string
	SessionID      string
	RegistrationID uint
	Paid           bool
}

// Completed reports whether the event should finalize a registration.
func (e *WebhookEvent) Completed() bool {
	switch e.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		return e.Paid && e.RegistrationID != 0
	}
	return false
}

type Provider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	VerifyCheckout(ctx context.Context, sessionID string) (*CheckoutStatus, error)
	ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error)
}
