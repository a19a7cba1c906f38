package auction_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-auctions/internal/auction"
	"ms-auctions/internal/models"
)

// stripeSignature produces the Stripe-Signature header value for a
// payload, the same scheme the real webhook endpoint signs with.
func stripeSignature(secret string, payload []byte, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func webhookRequest(t *testing.T, payload []byte, signature string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auctions/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	return req
}

func checkoutCompletedPayload(t *testing.T, auctionOrderID string) []byte {
	t.Helper()
	session := map[string]any{
		"id":       "cs_test_1",
		"metadata": map[string]string{"auction_order_id": auctionOrderID},
	}
	raw, err := json.Marshal(session)
	require.NoError(t, err)
	payload, err := json.Marshal(map[string]any{
		"id":   "evt_test_1",
		"type": "checkout.session.completed",
		"data": map[string]any{"object": json.RawMessage(raw)},
	})
	require.NoError(t, err)
	return payload
}

func TestWebhookRefusedWithoutSecret(t *testing.T) {
	h := newHarness(t)
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	err := h.service.HandlePaymentWebhook(webhookRequest(t, []byte("{}"), "t=1,v1=deadbeef"))
	var whErr *auction.WebhookError
	require.True(t, errors.As(err, &whErr))
	assert.Equal(t, "configuration", whErr.Category)
	assert.Equal(t, http.StatusInternalServerError, whErr.StatusCode)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")

	payload := checkoutCompletedPayload(t, "ao-1")
	sig := stripeSignature("whsec_wrong", payload, time.Now())

	err := h.service.HandlePaymentWebhook(webhookRequest(t, payload, sig))
	var whErr *auction.WebhookError
	require.True(t, errors.As(err, &whErr))
	assert.Equal(t, "validation", whErr.Category)
	assert.Equal(t, http.StatusUnauthorized, whErr.StatusCode)
}

func TestWebhookConfirmsJoinPayment(t *testing.T) {
	h := newHarness(t)
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	ctx := context.Background()

	h.seedUser(t, "artist-1")
	h.seedUser(t, "user-a")
	h.seedProduct(t, "prod-1", "artist-1")
	a := h.createAuction(t, "artist-1", "prod-1")

	ao, err := h.service.RequestToJoin(ctx, a.ID, "user-a", "addr-user-a")
	require.NoError(t, err)
	_, err = h.service.Pay(ctx, a.ID, "user-a")
	require.NoError(t, err)

	payload := checkoutCompletedPayload(t, ao.ID)
	sig := stripeSignature("whsec_test", payload, time.Now())
	require.NoError(t, h.service.HandlePaymentWebhook(webhookRequest(t, payload, sig)))

	got, err := h.store.GetAuctionOrder(ctx, a.ID, "user-a")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)

	// Stripe delivers at least once; a replay must be harmless.
	sig = stripeSignature("whsec_test", payload, time.Now())
	require.NoError(t, h.service.HandlePaymentWebhook(webhookRequest(t, payload, sig)))
}

func TestWebhookIgnoresUnrelatedEvents(t *testing.T) {
	h := newHarness(t)
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")

	payload, err := json.Marshal(map[string]any{
		"id":   "evt_test_2",
		"type": "invoice.paid",
		"data": map[string]any{"object": json.RawMessage(`{}`)},
	})
	require.NoError(t, err)
	sig := stripeSignature("whsec_test", payload, time.Now())

	assert.NoError(t, h.service.HandlePaymentWebhook(webhookRequest(t, payload, sig)))
}

func TestWebhookRequiresAuctionOrderID(t *testing.T) {
	h := newHarness(t)
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")

	session := json.RawMessage(`{"id": "cs_test_1", "metadata": {}}`)
	payload, err := json.Marshal(map[string]any{
		"id":   "evt_test_3",
		"type": "checkout.session.completed",
		"data": map[string]any{"object": session},
	})
	require.NoError(t, err)
	sig := stripeSignature("whsec_test", payload, time.Now())

	whErr := &auction.WebhookError{}
	err = h.service.HandlePaymentWebhook(webhookRequest(t, payload, sig))
	require.True(t, errors.As(err, &whErr))
	assert.Equal(t, "processing", whErr.Category)
	assert.Equal(t, http.StatusBadRequest, whErr.StatusCode)
}
