package carrier

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/returns/internal/domain"
)

const simulatedTrackingBase = "https://app.easyparcel.com/my/en/track/details/?awb="

// SimulatedPaymentGateway issues mock parcel numbers and AWBs without contacting the carrier.
// It is selected in sandbox deployments where the carrier demo account cannot pay for orders.
type SimulatedPaymentGateway struct {
	clock   func() time.Time
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSimulatedPaymentGateway constructs a sandbox payment gateway.
func NewSimulatedPaymentGateway(clock func() time.Time) *SimulatedPaymentGateway {
	if clock == nil {
		clock = time.Now
	}
	return &SimulatedPaymentGateway{
		clock:   clock,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// PayOrder returns a payment with the same shape as the live carrier and Sandbox set.
func (g *SimulatedPaymentGateway) PayOrder(_ context.Context, orderNo string) (domain.CarrierPayment, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return domain.CarrierPayment{}, errors.New("carrier: order number is required")
	}

	g.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(g.clock()), g.entropy)
	g.mu.Unlock()
	if err != nil {
		return domain.CarrierPayment{}, fmt.Errorf("carrier: simulate payment: %w", err)
	}

	suffix := id.String()[len(id.String())-8:]
	awb := fmt.Sprintf("SIM%s", suffix)
	return domain.CarrierPayment{
		OrderNo:     orderNo,
		ParcelNo:    fmt.Sprintf("EP-PA%s", suffix),
		AWB:         awb,
		TrackingURL: simulatedTrackingBase + awb,
		Sandbox:     true,
		Raw: map[string]any{
			"messagenow": "Fully Paid",
			"simulated":  true,
		},
	}, nil
}
