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

const maxReturnPageSize = 100

// ReturnServiceDeps bundles collaborators required to construct the return service.
type ReturnServiceDeps struct {
	Returns      repositories.ReturnRepository
	Orders       OrderReader
	Clock        func() time.Time
	IDGenerator  func() string
	ReturnWindow time.Duration
	Events       ReturnEventPublisher
	Metrics      SagaMetrics
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type returnService struct {
	returns     repositories.ReturnRepository
	orders      OrderReader
	eligibility *EligibilityValidator
	runtime     sagaRuntime
}

var _ ReturnService = (*returnService)(nil)

// NewReturnService wires dependencies into a concrete ReturnService implementation.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Returns == nil {
		return nil, errors.New("return service: return repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("return service: order reader is required")
	}
	runtime := newSagaRuntime(deps.Clock, deps.IDGenerator, deps.Logger, deps.Events, deps.Metrics)
	eligibility, err := NewEligibilityValidator(deps.Returns, runtime.clock, deps.ReturnWindow)
	if err != nil {
		return nil, err
	}
	return &returnService{
		returns:     deps.Returns,
		orders:      deps.Orders,
		eligibility: eligibility,
		runtime:     runtime,
	}, nil
}

func (s *returnService) CreateReturn(ctx context.Context, cmd CreateReturnCommand) (ReturnRequest, error) {
	if err := validateCreateReturn(cmd); err != nil {
		return ReturnRequest{}, err
	}

	order, err := s.orders.FindOrder(ctx, strings.TrimSpace(cmd.OrderID))
	if err != nil {
		return ReturnRequest{}, mapOrderReadError(err)
	}
	if err := s.eligibility.CanOpenReturn(ctx, order); err != nil {
		return ReturnRequest{}, err
	}

	items, err := snapshotReturnItems(order, cmd.Items)
	if err != nil {
		return ReturnRequest{}, err
	}
	currency, ok := normalizeCurrency(order.Currency)
	if !ok {
		return ReturnRequest{}, fmt.Errorf("%w: order currency %q is not a valid ISO 4217 code", ErrReturnInvalidInput, order.Currency)
	}

	now := s.runtime.now()
	ret := ReturnRequest{
		ID:             returnIDPrefix + s.runtime.newID(),
		OrderID:        order.ID,
		CustomerID:     order.CustomerID,
		Status:         domain.ReturnStatusRequested,
		ReturnType:     cmd.ReturnType,
		Reason:         cmd.Reason,
		ReasonDetails:  sanitizeText(cmd.ReasonDetails),
		Items:          items,
		Currency:       currency,
		RefundAmount:   cmd.RefundAmount,
		ShippingRefund: cmd.ShippingRefund,
		TotalRefund:    cmd.RefundAmount + cmd.ShippingRefund,
		Discounts:      order.Discounts,
		RequestedAt:    now,
		AdminNotes:     sanitizeText(cmd.AdminNotes),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.returns.Insert(ctx, ret); err != nil {
		return ReturnRequest{}, mapReturnRepoError(err)
	}

	s.runtime.publish(ctx, returnEventCreated, ret, cmd.ActorID, map[string]any{
		"return_type":  string(ret.ReturnType),
		"reason":       string(ret.Reason),
		"total_refund": ret.TotalRefund,
		"currency":     ret.Currency,
	})
	return ret, nil
}

func (s *returnService) GetReturn(ctx context.Context, returnID string) (ReturnRequest, error) {
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return ReturnRequest{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}
	ret, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return ReturnRequest{}, mapReturnRepoError(err)
	}
	return ret, nil
}

func (s *returnService) ListReturns(ctx context.Context, filter ReturnListFilter) (domain.CursorPage[ReturnRequest], error) {
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return domain.CursorPage[ReturnRequest]{}, fmt.Errorf("%w: unknown status %q", ErrReturnInvalidInput, status)
		}
	}
	pager := filter.Pagination
	if pager.PageSize < 0 {
		return domain.CursorPage[ReturnRequest]{}, fmt.Errorf("%w: page size must be positive", ErrReturnInvalidInput)
	}
	if pager.PageSize > maxReturnPageSize {
		pager.PageSize = maxReturnPageSize
	}
	page, err := s.returns.List(ctx, repositories.ReturnListFilter{
		Statuses:   filter.Statuses,
		OrderID:    strings.TrimSpace(filter.OrderID),
		CustomerID: strings.TrimSpace(filter.CustomerID),
		Pagination: pager,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrInvalidPageToken) {
			return domain.CursorPage[ReturnRequest]{}, fmt.Errorf("%w: %v", ErrReturnInvalidInput, err)
		}
		return domain.CursorPage[ReturnRequest]{}, mapReturnRepoError(err)
	}
	return page, nil
}

func (s *returnService) Transition(ctx context.Context, cmd TransitionReturnCommand) (ReturnRequest, error) {
	returnID := strings.TrimSpace(cmd.ReturnID)
	if returnID == "" {
		return ReturnRequest{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}
	eventType, known := transitionEventTypes[cmd.Event]
	if !known {
		return ReturnRequest{}, fmt.Errorf("%w: unknown event %q", ErrReturnInvalidInput, cmd.Event)
	}

	current, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return ReturnRequest{}, mapReturnRepoError(err)
	}
	if err := checkExpectedVersion(current, cmd.ExpectedVersion); err != nil {
		return ReturnRequest{}, err
	}

	next, err := Apply(current, TransitionInput{
		Event:          cmd.Event,
		AdminNotes:     sanitizeText(cmd.AdminNotes),
		Reason:         sanitizeText(cmd.Reason),
		Courier:        cmd.Courier,
		TrackingNumber: cmd.TrackingNumber,
		At:             s.runtime.now(),
	})
	if err != nil {
		s.runtime.metrics.ObserveTransition(string(cmd.Event), resultFailure)
		return ReturnRequest{}, err
	}

	saved, err := s.returns.Update(ctx, next, current.Version)
	if err != nil {
		s.runtime.metrics.ObserveTransition(string(cmd.Event), resultFailure)
		return ReturnRequest{}, mapReturnRepoError(err)
	}
	s.runtime.metrics.ObserveTransition(string(cmd.Event), resultSuccess)

	data := map[string]any{"from": string(current.Status)}
	if cmd.Event == ReturnEventShip {
		data["courier"] = saved.ReturnCourier
		data["tracking_number"] = saved.ReturnTrackingNumber
	}
	s.runtime.publish(ctx, eventType, saved, cmd.ActorID, data)
	return saved, nil
}

func (s *returnService) RecordReplacement(ctx context.Context, cmd RecordReplacementCommand) (ReturnRequest, error) {
	returnID := strings.TrimSpace(cmd.ReturnID)
	replacementID := strings.TrimSpace(cmd.ReplacementOrderID)
	if returnID == "" || replacementID == "" {
		return ReturnRequest{}, fmt.Errorf("%w: return id and replacement order id are required", ErrReturnInvalidInput)
	}

	current, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return ReturnRequest{}, mapReturnRepoError(err)
	}
	if err := checkExpectedVersion(current, cmd.ExpectedVersion); err != nil {
		return ReturnRequest{}, err
	}
	if current.ReturnType != domain.ReturnTypeReplacement {
		return ReturnRequest{}, fmt.Errorf("%w: return %s is not a replacement return", ErrReturnInvalidInput, current.ID)
	}
	if current.Status != domain.ReturnStatusCompleted {
		return ReturnRequest{}, fmt.Errorf("%w: replacement can only be recorded on a completed return", ErrReturnInvalidTransition)
	}
	if current.ReplacementOrderID != "" {
		return ReturnRequest{}, fmt.Errorf("%w: %s", ErrReplacementAlreadyRecorded, current.ReplacementOrderID)
	}

	now := s.runtime.now()
	next := current.Clone()
	next.ReplacementOrderID = replacementID
	next.ReplacementCreatedAt = &now
	next.UpdatedAt = now

	saved, err := s.returns.Update(ctx, next, current.Version)
	if err != nil {
		return ReturnRequest{}, mapReturnRepoError(err)
	}
	s.runtime.publish(ctx, returnEventReplacementAdded, saved, cmd.ActorID, map[string]any{
		"replacement_order_id": replacementID,
	})
	return saved, nil
}

func validateCreateReturn(cmd CreateReturnCommand) error {
	switch {
	case strings.TrimSpace(cmd.OrderID) == "":
		return fmt.Errorf("%w: order id is required", ErrReturnInvalidInput)
	case !cmd.ReturnType.Valid():
		return fmt.Errorf("%w: return type must be refund or replacement", ErrReturnInvalidInput)
	case !cmd.Reason.Valid():
		return fmt.Errorf("%w: unsupported reason %q", ErrReturnInvalidInput, cmd.Reason)
	case len(cmd.Items) == 0:
		return fmt.Errorf("%w: at least one item is required", ErrReturnInvalidInput)
	case cmd.RefundAmount < 0:
		return fmt.Errorf("%w: refund amount must not be negative", ErrReturnInvalidInput)
	case cmd.ShippingRefund < 0:
		return fmt.Errorf("%w: shipping refund must not be negative", ErrReturnInvalidInput)
	}
	for i, item := range cmd.Items {
		if strings.TrimSpace(item.ItemID) == "" {
			return fmt.Errorf("%w: items[%d].item_id is required", ErrReturnInvalidInput, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: items[%d].quantity must be positive", ErrReturnInvalidInput, i)
		}
		if item.UnitPrice != nil && *item.UnitPrice < 0 {
			return fmt.Errorf("%w: items[%d].unit_price must not be negative", ErrReturnInvalidInput, i)
		}
	}
	return nil
}

// snapshotReturnItems freezes the returned lines, filling gaps from the order and rejecting lines
// that were never purchased or exceed the purchased quantity.
func snapshotReturnItems(order domain.Order, inputs []ReturnItemInput) ([]domain.ReturnItem, error) {
	lines := make(map[string]domain.OrderItem, len(order.Items))
	for _, line := range order.Items {
		lines[line.ID] = line
	}
	requested := make(map[string]int, len(inputs))
	items := make([]domain.ReturnItem, 0, len(inputs))
	for i, input := range inputs {
		itemID := strings.TrimSpace(input.ItemID)
		line, ok := lines[itemID]
		if !ok {
			return nil, fmt.Errorf("%w: items[%d] %s is not part of order %s", ErrReturnInvalidInput, i, itemID, order.ID)
		}
		requested[itemID] += input.Quantity
		if requested[itemID] > line.Quantity {
			return nil, fmt.Errorf("%w: items[%d] returns %d of %d purchased", ErrReturnInvalidInput, i, requested[itemID], line.Quantity)
		}
		item := domain.ReturnItem{
			ItemID:      itemID,
			VariantID:   strings.TrimSpace(input.VariantID),
			ProductName: sanitizeText(input.ProductName),
			Quantity:    input.Quantity,
			UnitPrice:   line.UnitPrice,
		}
		if item.VariantID == "" {
			item.VariantID = line.VariantID
		}
		if item.ProductName == "" {
			item.ProductName = line.Title
		}
		if input.UnitPrice != nil {
			item.UnitPrice = *input.UnitPrice
		}
		items = append(items, item)
	}
	return items, nil
}
