package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/repositories"
)

// DefaultReturnWindow is how long after delivery a return may still be opened.
const DefaultReturnWindow = 30 * 24 * time.Hour

// EligibilityValidator decides whether a new return may be opened for an order.
type EligibilityValidator struct {
	returns repositories.ReturnRepository
	clock   func() time.Time
	window  time.Duration
}

// NewEligibilityValidator constructs a validator. A zero window falls back to DefaultReturnWindow.
func NewEligibilityValidator(returns repositories.ReturnRepository, clock func() time.Time, window time.Duration) (*EligibilityValidator, error) {
	if returns == nil {
		return nil, fmt.Errorf("eligibility validator: return repository is required")
	}
	if clock == nil {
		clock = time.Now
	}
	if window <= 0 {
		window = DefaultReturnWindow
	}
	return &EligibilityValidator{returns: returns, clock: clock, window: window}, nil
}

// CanOpenReturn returns nil when the order is eligible, otherwise the first failing rule.
func (v *EligibilityValidator) CanOpenReturn(ctx context.Context, order domain.Order) error {
	if !strings.EqualFold(strings.TrimSpace(order.FulfillmentStatus), domain.FulfillmentStatusDelivered) {
		return ErrReturnNotEligible
	}

	if order.DeliveredAt != nil {
		elapsed := v.clock().UTC().Sub(order.DeliveredAt.UTC())
		if elapsed > v.window {
			return fmt.Errorf("%w: delivered %s ago", ErrReturnWindowExpired, elapsed.Truncate(time.Hour))
		}
	}

	existing, err := v.returns.ListByOrder(ctx, order.ID)
	if err != nil {
		return mapReturnRepoError(err)
	}
	for _, ret := range existing {
		if ret.Status.IsOpen() {
			return fmt.Errorf("%w: %s is %s", ErrReturnDuplicatePending, ret.ID, ret.Status)
		}
	}
	return nil
}
