package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const whsec = "whsec_test"

func newTestStripe() *Stripe {
	return NewStripe(Config{SecretKey: "sk_test", WebhookSecret: whsec, PriceID: "price_setup", BaseURL: "https://profitpal.org/"})
}

func sign(t *testing.T, payload string) (string, []byte) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    whsec,
		Timestamp: time.Now(),
	})
	return sp.Header, sp.Payload
}

func TestCreateCheckout(t *testing.T) {
	orig := newCheckoutSession
	t.Cleanup(func() { newCheckoutSession = orig })

	var got *stripe.CheckoutSessionParams
	newCheckoutSession = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = p
		return &stripe.CheckoutSession{URL: "https://checkout.stripe.com/c/pay/cs_1"}, nil
	}

	url, err := newTestStripe().CreateCheckout(context.Background(), "bob@example.com", "ABCDE12345fghij")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", url)

	require.NotNil(t, got)
	assert.Equal(t, "payment", *got.Mode)
	assert.Equal(t, "bob@example.com", *got.CustomerEmail)
	assert.Equal(t, "price_setup", *got.LineItems[0].Price)
	assert.Equal(t, "https://profitpal.org/cancel", *got.CancelURL)
	assert.Equal(t, "ABCDE12345fghij", got.Metadata["referral_code"])
}

func TestCreateCheckout_Errors(t *testing.T) {
	_, err := NewStripe(Config{}).CreateCheckout(context.Background(), "a@b.c", "")
	assert.ErrorIs(t, err, ErrNotConfigured)

	orig := newCheckoutSession
	t.Cleanup(func() { newCheckoutSession = orig })
	newCheckoutSession = func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, errors.New("card declined")
	}
	_, err = newTestStripe().CreateCheckout(context.Background(), "a@b.c", "")
	assert.ErrorContains(t, err, "card declined")
}

func TestParseWebhook_CheckoutCompleted(t *testing.T) {
	header, body := sign(t, `{
		"id": "evt_1", "object": "event", "type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1", "object": "checkout.session",
			"customer": "cus_42",
			"customer_email": "bob@example.com",
			"customer_details": {"email": "bob@example.com", "name": "Bob Builder"},
			"amount_total": 2999,
			"payment_status": "paid",
			"metadata": {"email": "bob@example.com", "referral_code": "ABCDE12345fghij"}
		}}
	}`)

	ev, ok, err := newTestStripe().ParseWebhook(body, header)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "bob@example.com", ev.Email)
	assert.Equal(t, "Bob Builder", ev.Name)
	assert.Equal(t, "cus_42", ev.CustomerID)
	assert.Equal(t, 29.99, ev.Amount)
	assert.Equal(t, "ABCDE12345fghij", ev.ReferralCode)
}

func TestParseWebhook_IgnoresOtherEvents(t *testing.T) {
	header, body := sign(t, `{"id":"evt_2","object":"event","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1"}}}`)

	_, ok, err := newTestStripe().ParseWebhook(body, header)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseWebhook_IgnoresUnpaid(t *testing.T) {
	header, body := sign(t, `{"id":"evt_3","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_2","customer_email":"x@example.com","payment_status":"unpaid"}}}`)

	_, ok, err := newTestStripe().ParseWebhook(body, header)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseWebhook_BadSignature(t *testing.T) {
	_, body := sign(t, `{"id":"evt_4","object":"event","type":"checkout.session.completed","data":{"object":{}}}`)

	_, _, err := newTestStripe().ParseWebhook(body, "t=1,v1=deadbeef")
	assert.Error(t, err)
}
