package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"

	domain "github.com/hanko-field/returns/internal/domain"
)

type refundCreatorFunc func(*stripe.RefundParams) (*stripe.Refund, error)

func (f refundCreatorFunc) New(params *stripe.RefundParams) (*stripe.Refund, error) { return f(params) }

func TestStripeRefunderSendsParams(t *testing.T) {
	var captured *stripe.RefundParams
	var events []string
	refunder, err := NewStripeRefunder(StripeConfig{
		AccountID: "acct_123",
		Refunds: refundCreatorFunc(func(params *stripe.RefundParams) (*stripe.Refund, error) {
			captured = params
			return &stripe.Refund{
				ID:            "re_1",
				Amount:        5400,
				Currency:      stripe.Currency("myr"),
				Status:        stripe.RefundStatusSucceeded,
				Created:       1700000000,
				PaymentIntent: &stripe.PaymentIntent{ID: "pi_1"},
			}, nil
		}),
		Logger: func(_ context.Context, event string, _ map[string]any) { events = append(events, event) },
	})
	require.NoError(t, err)

	reversal, err := refunder.Refund(context.Background(), domain.GatewayRefundRequest{
		IntentID:       "pi_1",
		Amount:         5400,
		Reason:         "Requested_By_Customer",
		IdempotencyKey: "return:ret_1:refund",
		Metadata:       map[string]string{"return_id": "ret_1", "order_id": "ord_1"},
	})
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, "pi_1", stripe.StringValue(captured.PaymentIntent))
	assert.Equal(t, int64(5400), stripe.Int64Value(captured.Amount))
	assert.Equal(t, "return:ret_1:refund", stripe.StringValue(captured.IdempotencyKey))
	assert.Equal(t, "acct_123", stripe.StringValue(captured.StripeAccount))
	assert.Equal(t, string(stripe.RefundReasonRequestedByCustomer), stripe.StringValue(captured.Reason))
	assert.Equal(t, "ord_1", captured.Metadata["order_id"])

	assert.Equal(t, Reversal{
		ID:            "re_1",
		PaymentIntent: "pi_1",
		Status:        ReversalSucceeded,
		Amount:        5400,
		Currency:      "MYR",
		CreatedAt:     time.Unix(1700000000, 0).UTC(),
	}, reversal)
	assert.Equal(t, []string{"payments.stripe.refund.created"}, events)
}

func TestStripeRefunderDropsUnknownReason(t *testing.T) {
	var captured *stripe.RefundParams
	refunder, err := NewStripeRefunder(StripeConfig{Refunds: refundCreatorFunc(func(params *stripe.RefundParams) (*stripe.Refund, error) {
		captured = params
		return &stripe.Refund{ID: "re_2"}, nil
	})})
	require.NoError(t, err)

	reversal, err := refunder.Refund(context.Background(), domain.GatewayRefundRequest{IntentID: "pi_2", Amount: 1, Reason: "return_completed"})
	require.NoError(t, err)
	assert.Nil(t, captured.Reason)
	assert.Equal(t, "pi_2", reversal.PaymentIntent)
	assert.Equal(t, ReversalPending, reversal.Status)
}

func TestStripeRefunderStatuses(t *testing.T) {
	now := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	refunder, err := NewStripeRefunder(StripeConfig{
		Refunds: refundCreatorFunc(func(*stripe.RefundParams) (*stripe.Refund, error) { return nil, nil }),
		Clock:   func() time.Time { return now },
	})
	require.NoError(t, err)

	for in, want := range map[stripe.RefundStatus]ReversalStatus{
		stripe.RefundStatusSucceeded:      ReversalSucceeded,
		stripe.RefundStatusPending:        ReversalPending,
		stripe.RefundStatusRequiresAction: ReversalPending,
		stripe.RefundStatusFailed:         ReversalFailed,
		stripe.RefundStatusCanceled:       ReversalFailed,
	} {
		got := refunder.reversal(&stripe.Refund{ID: "re", Status: in})
		assert.Equal(t, want, got.Status, string(in))
		assert.Equal(t, now, got.CreatedAt, string(in))
	}
}

func TestStripeRefunderLogsAPIError(t *testing.T) {
	var fields map[string]any
	refunder, err := NewStripeRefunder(StripeConfig{
		Refunds: refundCreatorFunc(func(*stripe.RefundParams) (*stripe.Refund, error) {
			return nil, &stripe.Error{Code: stripe.ErrorCodeChargeAlreadyRefunded, HTTPStatusCode: 400, Msg: "already refunded"}
		}),
		Logger: func(_ context.Context, _ string, f map[string]any) { fields = f },
	})
	require.NoError(t, err)

	_, err = refunder.Refund(context.Background(), domain.GatewayRefundRequest{IntentID: "pi_1", Amount: 10})
	var apiErr *stripe.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, string(stripe.ErrorCodeChargeAlreadyRefunded), fields["code"])
	assert.Equal(t, 400, fields["httpStatus"])
}

func TestNewStripeRefunderRequiresKey(t *testing.T) {
	_, err := NewStripeRefunder(StripeConfig{})
	assert.Error(t, err)
}
