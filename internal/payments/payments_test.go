package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"
)

const whsec = "whsec_test_secret"

// sign builds a Stripe-Signature header for payload.
func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func checkoutEvent(typ, paymentStatus string) []byte {
	return []byte(`{
  "id": "evt_1",
  "object": "event",
  "api_version": "2023-10-16",
  "type": "` + typ + `",
  "data": {"object": {
    "id": "cs_test_123",
    "object": "checkout.session",
    "client_reference_id": "42",
    "payment_status": "` + paymentStatus + `",
    "metadata": {"registration_id": "42"}
  }}
}`)
}

func testStripe(t *testing.T, srv *httptest.Server) *StripeProvider {
	t.Helper()
	var b stripe.Backend
	if srv != nil {
		b = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(srv.URL),
			HTTPClient:        srv.Client(),
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		})
	}
	return newStripeProvider(b, "sk_test_123", whsec, "https://vbs.example.org", zap.NewNop())
}

func TestStripeParseWebhook_Completed(t *testing.T) {
	p := testStripe(t, nil)
	payload := checkoutEvent("checkout.session.completed", "paid")

	ev, err := p.ParseWebhook(payload, sign(payload, whsec, time.Now()))
	require.NoError(t, err)
	assert.True(t, ev.Completed())
	assert.Equal(t, "cs_test_123", ev.SessionID)
	assert.Equal(t, uint(42), ev.RegistrationID)
}

func TestStripeParseWebhook_UnpaidDoesNotComplete(t *testing.T) {
	p := testStripe(t, nil)
	payload := checkoutEvent("checkout.session.completed", "unpaid")

	ev, err := p.ParseWebhook(payload, sign(payload, whsec, time.Now()))
	require.NoError(t, err)
	assert.False(t, ev.Completed())
}

func TestStripeParseWebhook_OtherEventIgnored(t *testing.T) {
	p := testStripe(t, nil)
	payload := checkoutEvent("checkout.session.expired", "unpaid")

	ev, err := p.ParseWebhook(payload, sign(payload, whsec, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "checkout.session.expired", ev.Type)
	assert.False(t, ev.Completed())
}

func TestStripeParseWebhook_BadSignature(t *testing.T) {
	p := testStripe(t, nil)
	payload := checkoutEvent("checkout.session.completed", "paid")

	_, err := p.ParseWebhook(payload, sign(payload, "whsec_wrong", time.Now()))
	assert.Equal(t, ErrBadSignature, errors.Cause(err))

	_, err = p.ParseWebhook(payload, sign(payload, whsec, time.Now().Add(-time.Hour)))
	assert.Equal(t, ErrBadSignature, errors.Cause(err), "stale timestamp")
}

func TestStripeCreateCheckout(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_test_new","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_new"}`))
	}))
	defer srv.Close()

	p := testStripe(t, srv)
	co, err := p.CreateCheckout(context.Background(), CheckoutRequest{
		RegistrationID:  9,
		Code:            "VBS-0000ABCD",
		Email:           "ruth@example.org",
		Children:        3,
		UnitAmountCents: 2500,
		Currency:        "usd",
		Description:     "VBS 2026",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_new", co.SessionID)
	assert.True(t, strings.HasPrefix(co.URL, "https://checkout.stripe.com/"))

	assert.Equal(t, []string{"payment"}, form["mode"])
	assert.Equal(t, []string{"9"}, form["client_reference_id"])
	assert.Equal(t, []string{"9"}, form["metadata[registration_id]"])
	assert.Equal(t, []string{"3"}, form["line_items[0][quantity]"])
	assert.Equal(t, []string{"2500"}, form["line_items[0][price_data][unit_amount]"])
	assert.Equal(t, []string{"https://vbs.example.org/register/success?session_id={CHECKOUT_SESSION_ID}"}, form["success_url"])
}

func TestStripeVerifyCheckout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path != "/v1/checkout/sessions/cs_test_paid" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"cs_test_paid","object":"checkout.session","payment_status":"paid","client_reference_id":"12","metadata":{}}`))
	}))
	defer srv.Close()

	p := testStripe(t, srv)
	st, err := p.VerifyCheckout(context.Background(), "cs_test_paid")
	require.NoError(t, err)
	assert.True(t, st.Paid)
	assert.Equal(t, uint(12), st.RegistrationID)

	_, err = p.VerifyCheckout(context.Background(), "cs_missing")
	assert.Equal(t, ErrUnknownSession, err)
}

func TestDevProvider_RoundTrip(t *testing.T) {
	p := NewDevProvider("http://localhost:8080", zap.NewNop())
	co, err := p.CreateCheckout(context.Background(), CheckoutRequest{RegistrationID: 17, Children: 2, UnitAmountCents: 2500})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(co.URL, "http://localhost:8080/register/success?session_id=dev_17_"))

	st, err := p.VerifyCheckout(context.Background(), co.SessionID)
	require.NoError(t, err)
	assert.Equal(t, uint(17), st.RegistrationID)
	assert.True(t, st.Paid)

	_, err = p.VerifyCheckout(context.Background(), "dev_17_nope")
	assert.Equal(t, ErrUnknownSession, err)
}

func TestDevProvider_Webhook(t *testing.T) {
	p := NewDevProvider("http://localhost:8080", zap.NewNop())
	co, err := p.CreateCheckout(context.Background(), CheckoutRequest{RegistrationID: 5, Children: 1})
	require.NoError(t, err)

	ev, err := p.ParseWebhook([]byte(`{"type":"checkout.session.completed","session_id":"`+co.SessionID+`"}`), "")
	require.NoError(t, err)
	assert.True(t, ev.Completed())
	assert.Equal(t, uint(5), ev.RegistrationID)

	_, err = p.ParseWebhook([]byte(`not json`), "")
	assert.Equal(t, ErrBadSignature, errors.Cause(err))
}
