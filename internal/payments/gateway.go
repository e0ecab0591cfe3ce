// Package payments reverses captured payments at the payment service provider that took them.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/hanko-field/returns/internal/domain"
)

var (
	// ErrUnsupportedProvider means no registered refunder matches the payment's provider ID.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrRefundRejected means the provider answered but refused or cancelled the refund.
	ErrRefundRejected = errors.New("payments: refund rejected")
)

// ReversalStatus is the provider-neutral refund state.
type ReversalStatus string

const (
	ReversalPending   ReversalStatus = "pending"
	ReversalSucceeded ReversalStatus = "succeeded"
	ReversalFailed    ReversalStatus = "failed"
)

// Reversal is a refund as reported by a provider.
type Reversal struct {
	ID            string
	PaymentIntent string
	Status        ReversalStatus
	Amount        int64
	Currency      string
	CreatedAt     time.Time
}

// Refunder issues refunds against one provider.
type Refunder interface {
	Refund(ctx context.Context, req domain.GatewayRefundRequest) (Reversal, error)
}

type route struct {
	key      string
	refunder Refunder
}

// Gateway picks the refunder for a payment by its provider ID. A payment whose provider ID
// contains a registered key (pp_stripe_stripe contains stripe) goes to that refunder; the
// longest matching key wins.
type Gateway struct {
	routes []route
}

func NewGateway(refunders map[string]Refunder) (*Gateway, error) {
	if len(refunders) == 0 {
		return nil, errors.New("payments: at least one refunder is required")
	}
	g := &Gateway{routes: make([]route, 0, len(refunders))}
	for key, refunder := range refunders {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" || refunder == nil {
			return nil, fmt.Errorf("payments: invalid refunder registration %q", key)
		}
		g.routes = append(g.routes, route{key: key, refunder: refunder})
	}
	sort.Slice(g.routes, func(i, j int) bool {
		if len(g.routes[i].key) != len(g.routes[j].key) {
			return len(g.routes[i].key) > len(g.routes[j].key)
		}
		return g.routes[i].key < g.routes[j].key
	})
	return g, nil
}

func (g *Gateway) route(providerID string) (Refunder, error) {
	providerID = strings.ToLower(strings.TrimSpace(providerID))
	if providerID == "" {
		if len(g.routes) == 1 {
			return g.routes[0].refunder, nil
		}
		return nil, fmt.Errorf("%w: payment has no provider id", ErrUnsupportedProvider)
	}
	for _, r := range g.routes {
		if strings.Contains(providerID, r.key) {
			return r.refunder, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, providerID)
}

// Refund reverses req.Amount of the captured payment. A pending reversal counts as accepted.
func (g *Gateway) Refund(ctx context.Context, req domain.GatewayRefundRequest) (domain.GatewayRefund, error) {
	if strings.TrimSpace(req.IntentID) == "" {
		return domain.GatewayRefund{}, errors.New("payments: payment intent id is required")
	}
	if req.Amount <= 0 {
		return domain.GatewayRefund{}, errors.New("payments: refund amount must be positive")
	}
	refunder, err := g.route(req.Provider)
	if err != nil {
		return domain.GatewayRefund{}, err
	}

	reversal, err := refunder.Refund(ctx, req)
	if err != nil {
		return domain.GatewayRefund{}, err
	}
	if reversal.Status == ReversalFailed {
		return domain.GatewayRefund{}, fmt.Errorf("%w: %s", ErrRefundRejected, reversal.ID)
	}

	currency := reversal.Currency
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	}
	return domain.GatewayRefund{
		ID:        reversal.ID,
		Amount:    reversal.Amount,
		Currency:  currency,
		Status:    string(reversal.Status),
		CreatedAt: reversal.CreatedAt,
	}, nil
}
