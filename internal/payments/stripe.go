package payments

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

type StripeProvider struct {
	sessions      *session.Client
	webhookSecret string
	baseURL       string
	log           *zap.Logger
}

var _ Provider = (*StripeProvider)(nil)

func NewStripeProvider(secretKey, webhookSecret, baseURL string, log *zap.Logger) *StripeProvider {
	return newStripeProvider(stripe.GetBackend(stripe.APIBackend), secretKey, webhookSecret, baseURL, log)
}

func newStripeProvider(b stripe.Backend, secretKey, webhookSecret, baseURL string, log *zap.Logger) *StripeProvider {
	return &StripeProvider{
		sessions:      &session.Client{B: b, Key: secretKey},
		webhookSecret: webhookSecret,
		baseURL:       baseURL,
		log:           log.Named("stripe"),
	}
}

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	if req.Children <= 0 {
		return nil, errors.New("payments: checkout needs at least one child")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.baseURL + "/register/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(p.baseURL + "/register/cancel?code=" + req.Code),
		ClientReferenceID: stripe.String(strconv.FormatUint(uint64(req.RegistrationID), 10)),
		CustomerEmail:     stripe.String(req.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Description),
				},
				UnitAmount: stripe.Int64(req.UnitAmountCents),
			},
			Quantity: stripe.Int64(int64(req.Children)),
		}},
	}
	params.Context = ctx
	params.AddMetadata("registration_id", strconv.FormatUint(uint64(req.RegistrationID), 10))
	params.AddMetadata("code", req.Code)

	s, err := p.sessions.New(params)
	if err != nil {
		return nil, errors.Wrap(err, "stripe: create checkout session")
	}
	p.log.Info("checkout session created",
		zap.String("session_id", s.ID),
		zap.Uint("registration_id", req.RegistrationID),
	)
	return &Checkout{SessionID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) VerifyCheckout(ctx context.Context, sessionID string) (*CheckoutStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := p.sessions.Get(sessionID, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.HTTPStatusCode == 404 {
			return nil, ErrUnknownSession
		}
		return nil, errors.Wrap(err, "stripe: get checkout session")
	}
	regID, err := registrationID(s)
	if err != nil {
		return nil, err
	}
	return &CheckoutStatus{
		SessionID:      s.ID,
		RegistrationID: regID,
		Paid:           s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the checkout
// session from checkout events. Other event types come back with only Type set.
func (p *StripeProvider) ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Wrap(ErrBadSignature, err.Error())
	}

	out := &WebhookEvent{Type: string(ev.Type)}
	switch out.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
	default:
		return out, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
		return nil, errors.Wrap(err, "stripe: decode checkout session")
	}
	regID, err := registrationID(&s)
	if err != nil {
		return nil, err
	}
	out.SessionID = s.ID
	out.RegistrationID = regID
	out.Paid = s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
	return out, nil
}

func registrationID(s *stripe.CheckoutSession) (uint, error) {
	raw := s.Metadata["registration_id"]
	if raw == "" {
		raw = s.ClientReferenceID
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Errorf("stripe: session %s has no registration reference", s.ID)
	}
	return uint(id), nil
}
