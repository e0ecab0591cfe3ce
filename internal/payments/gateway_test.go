package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/returns/internal/domain"
)

type stubRefunder struct {
	refundFn func(context.Context, domain.GatewayRefundRequest) (Reversal, error)
	calls    int
}

func (s *stubRefunder) Refund(ctx context.Context, req domain.GatewayRefundRequest) (Reversal, error) {
	s.calls++
	if s.refundFn == nil {
		return Reversal{ID: "re_stub", Status: ReversalSucceeded, Amount: req.Amount}, nil
	}
	return s.refundFn(ctx, req)
}

func TestGatewayRoutesByProviderID(t *testing.T) {
	stripe := &stubRefunder{}
	stripeMY := &stubRefunder{}
	gw, err := NewGateway(map[string]Refunder{"stripe": stripe, "stripe_my": stripeMY})
	require.NoError(t, err)

	_, err = gw.Refund(context.Background(), domain.GatewayRefundRequest{Provider: "pp_stripe_stripe", IntentID: "pi_1", Amount: 100})
	require.NoError(t, err)
	_, err = gw.Refund(context.Background(), domain.GatewayRefundRequest{Provider: "PP_STRIPE_MY", IntentID: "pi_2", Amount: 100})
	require.NoError(t, err)

	assert.Equal(t, 1, stripe.calls)
	assert.Equal(t, 1, stripeMY.calls)
}

func TestGatewayUnsupportedProvider(t *testing.T) {
	gw, err := NewGateway(map[string]Refunder{"stripe": &stubRefunder{}, "billplz": &stubRefunder{}})
	require.NoError(t, err)

	_, err = gw.Refund(context.Background(), domain.GatewayRefundRequest{Provider: "pp_system_default", IntentID: "pi", Amount: 1})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = gw.Refund(context.Background(), domain.GatewayRefundRequest{IntentID: "pi", Amount: 1})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestGatewaySingleRefunderHandlesBlankProvider(t *testing.T) {
	only := &stubRefunder{}
	gw, err := NewGateway(map[string]Refunder{"stripe": only})
	require.NoError(t, err)

	_, err = gw.Refund(context.Background(), domain.GatewayRefundRequest{IntentID: "pi", Amount: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, only.calls)
}

func TestGatewayMapsReversal(t *testing.T) {
	created := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	var seen domain.GatewayRefundRequest
	gw, err := NewGateway(map[string]Refunder{"stripe": &stubRefunder{
		refundFn: func(_ context.Context, req domain.GatewayRefundRequest) (Reversal, error) {
			seen = req
			return Reversal{ID: "re_123", Status: ReversalPending, Amount: 12000, CreatedAt: created}, nil
		},
	}})
	require.NoError(t, err)

	req := domain.GatewayRefundRequest{
		Provider:       "pp_stripe_stripe",
		IntentID:       "pi_123",
		Amount:         12000,
		Currency:       "myr",
		IdempotencyKey: "return:ret_1:refund",
		Metadata:       map[string]string{"return_id": "ret_1"},
	}
	refund, err := gw.Refund(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, req, seen)
	assert.Equal(t, domain.GatewayRefund{ID: "re_123", Amount: 12000, Currency: "MYR", Status: "pending", CreatedAt: created}, refund)
}

func TestGatewayRejectsFailedReversal(t *testing.T) {
	gw, err := NewGateway(map[string]Refunder{"stripe": &stubRefunder{
		refundFn: func(context.Context, domain.GatewayRefundRequest) (Reversal, error) {
			return Reversal{ID: "re_9", Status: ReversalFailed}, nil
		},
	}})
	require.NoError(t, err)

	_, err = gw.Refund(context.Background(), domain.GatewayRefundRequest{IntentID: "pi_9", Amount: 10})
	assert.ErrorIs(t, err, ErrRefundRejected)
}

func TestGatewayValidatesAndPropagates(t *testing.T) {
	boom := errors.New("card_declined")
	refunder := &stubRefunder{refundFn: func(context.Context, domain.GatewayRefundRequest) (Reversal, error) { return Reversal{}, boom }}
	gw, err := NewGateway(map[string]Refunder{"stripe": refunder})
	require.NoError(t, err)

	_, err = gw.Refund(context.Background(), domain.GatewayRefundRequest{Amount: 10})
	assert.Error(t, err)
	_, err = gw.Refund(context.Background(), domain.GatewayRefundRequest{IntentID: "pi", Amount: 0})
	assert.Error(t, err)
	assert.Zero(t, refunder.calls)

	_, err = gw.Refund(context.Background(), domain.GatewayRefundRequest{IntentID: "pi", Amount: 10})
	assert.ErrorIs(t, err, boom)
}

func TestNewGatewayValidates(t *testing.T) {
	_, err := NewGateway(nil)
	assert.Error(t, err)
	_, err = NewGateway(map[string]Refunder{"stripe": nil})
	assert.Error(t, err)
	_, err = NewGateway(map[string]Refunder{" ": &stubRefunder{}})
	assert.Error(t, err)
}
