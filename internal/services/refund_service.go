package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/repositories"
)

const (
	// DefaultRefundProviderID is the payment provider whose captures can be reversed.
	DefaultRefundProviderID = "stripe"

	refundReason       = "requested_by_customer"
	pointsResultSkip   = "skipped"
	refundReceiptName  = "refund.json"
	refundIdemTemplate = "return:%s:refund"
)

// RefundServiceDeps bundles collaborators required to construct the refund service.
type RefundServiceDeps struct {
	Returns    repositories.ReturnRepository
	Orders     OrderReader
	Gateway    RefundGateway
	Points     PointsLedger
	Receipts   ReceiptArchive
	ProviderID string

	Clock       func() time.Time
	IDGenerator func() string
	Events      ReturnEventPublisher
	Metrics     SagaMetrics
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type refundService struct {
	returns    repositories.ReturnRepository
	orders     OrderReader
	gateway    RefundGateway
	points     PointsLedger
	receipts   ReceiptArchive
	providerID string
	runtime    sagaRuntime
}

var _ RefundService = (*refundService)(nil)

// NewRefundService wires dependencies into a concrete RefundService implementation.
func NewRefundService(deps RefundServiceDeps) (RefundService, error) {
	if deps.Returns == nil {
		return nil, errors.New("refund service: return repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("refund service: order reader is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("refund service: refund gateway is required")
	}
	provider := strings.ToLower(strings.TrimSpace(deps.ProviderID))
	if provider == "" {
		provider = DefaultRefundProviderID
	}
	return &refundService{
		returns:    deps.Returns,
		orders:     deps.Orders,
		gateway:    deps.Gateway,
		points:     deps.Points,
		receipts:   deps.Receipts,
		providerID: provider,
		runtime:    newSagaRuntime(deps.Clock, deps.IDGenerator, deps.Logger, deps.Events, deps.Metrics),
	}, nil
}

func (s *refundService) ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (outcome RefundOutcome, err error) {
	returnID := strings.TrimSpace(cmd.ReturnID)
	if returnID == "" {
		return RefundOutcome{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}
	ctx, span := s.runtime.startSpan(ctx, "returns.refund", returnID)
	defer func() { endSpan(span, err) }()

	ret, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return RefundOutcome{}, mapReturnRepoError(err)
	}
	switch {
	case ret.Status != domain.ReturnStatusCompleted:
		return RefundOutcome{}, fmt.Errorf("%w: status is %s", ErrRefundNotCompleted, ret.Status)
	case ret.RefundStatus == domain.RefundStatusCompleted:
		return RefundOutcome{}, fmt.Errorf("%w: reference %s", ErrRefundAlreadyCompleted, ret.RefundReference)
	case ret.ReturnType != domain.ReturnTypeRefund:
		return RefundOutcome{}, ErrRefundNotRefundType
	}

	processing := ret.Clone()
	processing.RefundStatus = domain.RefundStatusProcessing
	processing.UpdatedAt = s.runtime.now()
	processing, err = s.returns.Update(ctx, processing, ret.Version)
	if err != nil {
		return RefundOutcome{}, mapReturnRepoError(err)
	}

	order, err := s.orders.FindOrder(ctx, processing.OrderID)
	if err != nil {
		s.markFailed(ctx, processing, cmd.ActorID, err)
		return RefundOutcome{}, mapOrderReadError(err)
	}

	payment, ok := FindCapturedPayment(order, s.providerID)
	if !ok {
		s.markFailed(ctx, processing, cmd.ActorID, ErrRefundNoCapturedPayment)
		return RefundOutcome{}, fmt.Errorf("%w: order %s", ErrRefundNoCapturedPayment, order.ID)
	}

	amount := processing.RefundDue()
	if amount <= 0 {
		s.markFailed(ctx, processing, cmd.ActorID, ErrReturnInvalidInput)
		return RefundOutcome{}, fmt.Errorf("%w: refund amount must be positive", ErrReturnInvalidInput)
	}
	currency := chooseFirstNonEmpty(processing.Currency, payment.Currency, defaultCurrency)

	refund, err := s.gateway.Refund(ctx, domain.GatewayRefundRequest{
		Provider:       payment.ProviderID,
		IntentID:       chooseFirstNonEmpty(payment.IntentID, payment.ID),
		Amount:         amount,
		Currency:       currency,
		Reason:         refundReason,
		IdempotencyKey: fmt.Sprintf(refundIdemTemplate, processing.ID),
		Metadata: map[string]string{
			"return_id": processing.ID,
			"order_id":  processing.OrderID,
		},
	})
	if err != nil {
		s.runtime.metrics.ObserveRefund(resultFailure)
		s.markFailed(ctx, processing, cmd.ActorID, err)
		return RefundOutcome{}, &RefundGatewayError{Message: err.Error(), Err: err}
	}
	s.runtime.metrics.ObserveRefund(resultSuccess)
	if refund.Amount == 0 {
		refund.Amount = amount
	}
	if refund.Currency == "" {
		refund.Currency = currency
	}

	now := s.runtime.now()
	completed := processing.Clone()
	completed.RefundStatus = domain.RefundStatusCompleted
	completed.RefundReference = refund.ID
	completed.RefundedAt = &now
	completed.UpdatedAt = now
	completed, err = s.returns.Update(ctx, completed, processing.Version)
	if err != nil {
		s.runtime.logger(ctx, "returns.refund.record_failed", map[string]any{
			"returnID": processing.ID,
			"refundID": refund.ID,
			"error":    err.Error(),
		})
		return RefundOutcome{}, fmt.Errorf("returns: refund %s issued but not recorded: %w", refund.ID, mapReturnRepoError(err))
	}

	s.archiveReceipt(ctx, completed, refund, payment)
	s.runtime.publish(ctx, returnEventRefundCompleted, completed, cmd.ActorID, map[string]any{
		"refund_id": refund.ID,
		"amount":    refund.Amount,
		"currency":  refund.Currency,
	})

	return RefundOutcome{
		Return: completed,
		Refund: refund,
		Points: s.adjustPoints(ctx, completed),
	}, nil
}

// markFailed records the failed refund. When the write itself fails the return stays in
// processing and the failure is only logged.
func (s *refundService) markFailed(ctx context.Context, ret ReturnRequest, actorID string, cause error) {
	failed := ret.Clone()
	failed.RefundStatus = domain.RefundStatusFailed
	failed.UpdatedAt = s.runtime.now()
	saved, err := s.returns.Update(ctx, failed, ret.Version)
	if err != nil {
		s.runtime.logger(ctx, "returns.refund.rollback_failed", map[string]any{
			"returnID": ret.ID,
			"cause":    cause.Error(),
			"error":    err.Error(),
		})
		return
	}
	s.runtime.publish(ctx, returnEventRefundFailed, saved, actorID, map[string]any{
		"error": cause.Error(),
	})
}

// adjustPoints deducts every point earned on the order and restores every point redeemed on it,
// regardless of how much of the order was returned. Failures are logged and yield nil.
func (s *refundService) adjustPoints(ctx context.Context, ret ReturnRequest) *PointsAdjustment {
	if s.points == nil || strings.TrimSpace(ret.CustomerID) == "" {
		return nil
	}
	summary, err := s.points.OrderPoints(ctx, ret.CustomerID, ret.OrderID)
	if err != nil {
		s.runtime.metrics.ObservePointsAdjustment(resultFailure)
		s.runtime.logger(ctx, "returns.points.lookup_failed", map[string]any{
			"returnID": ret.ID,
			"orderID":  ret.OrderID,
			"error":    err.Error(),
		})
		return nil
	}
	if summary.Earned <= 0 && summary.Redeemed <= 0 {
		s.runtime.metrics.ObservePointsAdjustment(pointsResultSkip)
		return nil
	}

	adjustment, err := s.points.Adjust(ctx, domain.PointsAdjustmentRequest{
		CustomerID: ret.CustomerID,
		OrderID:    ret.OrderID,
		ReturnID:   ret.ID,
		Deduct:     max(summary.Earned, 0),
		Restore:    max(summary.Redeemed, 0),
		Reason:     fmt.Sprintf("refund of return %s", ret.ID),
	})
	if err != nil {
		s.runtime.metrics.ObservePointsAdjustment(resultFailure)
		s.runtime.logger(ctx, "returns.points.adjust_failed", map[string]any{
			"returnID": ret.ID,
			"orderID":  ret.OrderID,
			"error":    err.Error(),
		})
		return nil
	}
	s.runtime.metrics.ObservePointsAdjustment(resultSuccess)
	return &adjustment
}

func (s *refundService) archiveReceipt(ctx context.Context, ret ReturnRequest, refund GatewayRefund, payment domain.Payment) {
	if s.receipts == nil {
		return
	}
	payload := map[string]any{
		"return_id":      ret.ID,
		"order_id":       ret.OrderID,
		"refund_id":      refund.ID,
		"amount":         refund.Amount,
		"currency":       refund.Currency,
		"status":         refund.Status,
		"payment_id":     payment.ID,
		"payment_intent": payment.IntentID,
		"refunded_at":    ret.RefundedAt,
	}
	if _, err := s.receipts.StoreReceipt(ctx, ret.ID, refundReceiptName, payload); err != nil {
		s.runtime.logger(ctx, "returns.receipt.store_failed", map[string]any{
			"returnID": ret.ID,
			"receipt":  refundReceiptName,
			"error":    err.Error(),
		})
	}
}

// FindCapturedPayment scans every payment collection for a captured payment from the provider.
func FindCapturedPayment(order domain.Order, providerID string) (domain.Payment, bool) {
	for _, collection := range order.PaymentCollections {
		for _, payment := range collection.Payments {
			if payment.CapturedAt == nil {
				continue
			}
			if !strings.Contains(strings.ToLower(payment.ProviderID), providerID) {
				continue
			}
			return payment, true
		}
	}
	return domain.Payment{}, false
}
