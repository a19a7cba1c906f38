package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-auctions/internal/config"
	"ms-auctions/internal/logger"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeGateway is the payment gateway adapter: it creates checkout
// sessions for the flat join fee and issues refunds. Webhook
// verification lives on the service (HandlePaymentWebhook) because it
// needs the join-record store, not the client.
type StripeGateway struct {
	client *client.API
	cfg    config.StripeConfig
	log    *logger.Logger
}

func NewStripeGateway(cfg config.StripeConfig, log *logger.Logger) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY is not configured")
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(cfg.SecretKey, nil)
	if sc == nil {
		log.Error("STRIPE", "Failed to initialize Stripe client")
		return nil, ErrStripeClientInitFailed
	}

	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeGateway{client: sc, cfg: cfg, log: log}, nil
}

// CreateJoinCheckoutSession creates a Stripe checkout session charging
// the flat auction join fee. The call runs under a bounded timeout; on
// timeout the join record stays Pending and the user may retry.
func (g *StripeGateway) CreateJoinCheckoutSession(ctx context.Context, customerEmail string, metadata map[string]string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	amountInCents := int64(g.cfg.JoinFee * 100)

	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:      stripe.String(customerEmail),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(g.cfg.Currency),
					UnitAmount: stripe.Int64(amountInCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Art Space Auction"),
					},
				},
			},
		},
		SuccessURL: stripe.String(g.cfg.SuccessURL),
		CancelURL:  stripe.String(g.cfg.CancelURL),
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	session, err := g.client.CheckoutSessions.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Failed to create checkout session: %v", err))
		return "", "", fmt.Errorf("stripe checkout session: %w", err)
	}

	g.log.Info("STRIPE", fmt.Sprintf("Created checkout session %s (%.2f %s)", session.ID, g.cfg.JoinFee, g.cfg.Currency))
	return session.URL, session.ID, nil
}

// Refund refunds a confirmed payment by its payment intent reference.
func (g *StripeGateway) Refund(ctx context.Context, paymentRef string) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()

	_, err := g.client.Refunds.New(&stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(paymentRef),
	})
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("Refund failed for %s: %v", paymentRef, err))
		return fmt.Errorf("stripe refund: %w", err)
	}

	g.log.Info("STRIPE", fmt.Sprintf("Refund issued for %s", paymentRef))
	return nil
}

// WebhookError carries enough classification for the handler to pick a
// status code without leaking internals to the client.
type WebhookError struct {
	Category      string // "configuration", "validation", "processing"
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *WebhookError) Error() string {
	return e.InternalError
}

// HandlePaymentWebhook verifies and processes a Stripe webhook delivery.
// Unverified events are rejected and never processed. Delivery is
// at-least-once, so the completed-checkout path is idempotent on the
// auction order id carried in the event metadata.
func (s *Service) HandlePaymentWebhook(r *http.Request) error {
	webhookSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if webhookSecret == "" {
		s.logger.Error("WEBHOOK", "Stripe webhook secret is not configured")
		return &WebhookError{
			Category:      "configuration",
			StatusCode:    http.StatusInternalServerError,
			PublicError:   "Webhook processing error",
			InternalError: "Stripe webhook secret is not configured",
		}
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to read webhook payload: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusBadRequest,
			PublicError:   "Invalid webhook payload",
			InternalError: fmt.Sprintf("Failed to read webhook payload: %v", err),
			OriginalErr:   err,
		}
	}

	opts := webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	}
	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), webhookSecret, opts)
	if err != nil {
		s.logger.Error("WEBHOOK", fmt.Sprintf("Webhook signature verification failed: %v", err))
		return &WebhookError{
			Category:      "validation",
			StatusCode:    http.StatusUnauthorized,
			PublicError:   "Webhook signature verification failed",
			InternalError: fmt.Sprintf("Webhook signature verification failed: %v", err),
			OriginalErr:   err,
		}
	}

	s.logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe webhook event: %s", event.Type))

	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to unmarshal checkout session: %v", err))
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid event data",
				InternalError: fmt.Sprintf("Failed to unmarshal checkout session: %v", err),
				OriginalErr:   err,
			}
		}

		auctionOrderID, exists := session.Metadata["auction_order_id"]
		if !exists {
			s.logger.Error("WEBHOOK", "Checkout session has no auction_order_id in metadata")
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusBadRequest,
				PublicError:   "Invalid checkout session data",
				InternalError: "Checkout session has no auction_order_id in metadata",
			}
		}

		paymentIntent := ""
		if session.PaymentIntent != nil {
			paymentIntent = session.PaymentIntent.ID
		}

		if err := s.ConfirmJoinPayment(r.Context(), auctionOrderID, paymentIntent); err != nil {
			s.logger.Error("WEBHOOK", fmt.Sprintf("Failed to confirm join payment: %v", err))
			return &WebhookError{
				Category:      "processing",
				StatusCode:    http.StatusInternalServerError,
				PublicError:   "Webhook processing error",
				InternalError: fmt.Sprintf("Failed to confirm join payment: %v", err),
				OriginalErr:   err,
			}
		}

	default:
		// Other event types are acknowledged and ignored.
		s.logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring event type: %s", event.Type))
	}

	return nil
}
