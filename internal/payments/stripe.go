package payments

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	domain "github.com/hanko-field/returns/internal/domain"
)

// Logger receives structured payment events.
type Logger func(ctx context.Context, event string, fields map[string]any)

type refundCreator interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

// StripeConfig configures StripeRefunder. Refunds replaces the live API client in tests.
type StripeConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    Logger
	Clock     func() time.Time
	Refunds   refundCreator
}

// StripeRefunder refunds Stripe payment intents.
type StripeRefunder struct {
	refunds refundCreator
	account string
	now     func() time.Time
	log     Logger
}

var _ Refunder = (*StripeRefunder)(nil)

func NewStripeRefunder(cfg StripeConfig) (*StripeRefunder, error) {
	refunds := cfg.Refunds
	if refunds == nil {
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			return nil, errors.New("stripe: api key is required")
		}
		refunds = client.New(key, cfg.Backends).Refunds
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = func(context.Context, string, map[string]any) {}
	}
	return &StripeRefunder{
		refunds: refunds,
		account: strings.TrimSpace(cfg.AccountID),
		now:     func() time.Time { return now().UTC() },
		log:     log,
	}, nil
}

func (s *StripeRefunder) Refund(ctx context.Context, req domain.GatewayRefundRequest) (Reversal, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
		Amount:        stripe.Int64(req.Amount),
		Metadata:      maps.Clone(req.Metadata),
	}
	params.Context = ctx
	if reason, ok := stripeReason(req.Reason); ok {
		params.Reason = stripe.String(reason)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if s.account != "" {
		params.SetStripeAccount(s.account)
	}

	refund, err := s.refunds.New(params)
	if err != nil {
		fields := map[string]any{"paymentIntent": req.IntentID, "error": err.Error()}
		var apiErr *stripe.Error
		if errors.As(err, &apiErr) {
			fields["code"] = string(apiErr.Code)
			fields["httpStatus"] = apiErr.HTTPStatusCode
		}
		s.log(ctx, "payments.stripe.refund.failed", fields)
		return Reversal{}, fmt.Errorf("stripe: refund %s: %w", req.IntentID, err)
	}

	reversal := s.reversal(refund)
	if reversal.PaymentIntent == "" {
		reversal.PaymentIntent = req.IntentID
	}
	s.log(ctx, "payments.stripe.refund.created", map[string]any{
		"paymentIntent": reversal.PaymentIntent,
		"refundId":      reversal.ID,
		"status":        string(reversal.Status),
		"amount":        reversal.Amount,
	})
	return reversal, nil
}

func (s *StripeRefunder) reversal(refund *stripe.Refund) Reversal {
	out := Reversal{Status: ReversalPending, CreatedAt: s.now()}
	if refund == nil {
		return out
	}
	out.ID = refund.ID
	out.Amount = refund.Amount
	out.Currency = strings.ToUpper(string(refund.Currency))
	if refund.Created > 0 {
		out.CreatedAt = time.Unix(refund.Created, 0).UTC()
	}
	if refund.PaymentIntent != nil {
		out.PaymentIntent = refund.PaymentIntent.ID
	}
	switch refund.Status {
	case stripe.RefundStatusSucceeded:
		out.Status = ReversalSucceeded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		out.Status = ReversalFailed
	}
	return out
}

// stripeReason accepts only the reasons Stripe's API enumerates.
func stripeReason(reason string) (string, bool) {
	switch r := stripe.RefundReason(strings.ToLower(strings.TrimSpace(reason))); r {
	case stripe.RefundReasonDuplicate, stripe.RefundReasonFraudulent, stripe.RefundReasonRequestedByCustomer:
		return string(r), true
	}
	return "", false
}
