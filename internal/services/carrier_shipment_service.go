package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/repositories"
)

const (
	carrierOpRates  = "rates"
	carrierOpSubmit = "submit"
	carrierOpPay    = "pay"

	defaultShipmentContent = "Return items"
	pickupDateLayout       = "2006-01-02"
	defaultRecoveryBatch   = 50
)

var (
	minimumShipmentWeight = decimal.RequireFromString("0.5")

	// DefaultExcludedServiceKeywords marks services that need a drop-off or locker booking flow.
	DefaultExcludedServiceKeywords = []string{"locker", "point to point", "p2p", "drop off", "dropoff", "drop-off"}
)

// CarrierShipmentServiceDeps bundles collaborators required to construct the carrier shipment service.
type CarrierShipmentServiceDeps struct {
	Returns   repositories.ReturnRepository
	Shipments repositories.CarrierShipmentRepository
	Handoff   repositories.CarrierHandoff
	Orders    OrderReader
	Customers CustomerReader
	Weights   VariantWeightReader
	Carrier   CarrierClient
	Payments  CarrierPaymentGateway
	Jobs      HandoffJobPublisher
	Receipts  ReceiptArchive
	Warehouse Address

	ExcludedServiceKeywords []string

	Clock       func() time.Time
	IDGenerator func() string
	Events      ReturnEventPublisher
	Metrics     SagaMetrics
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type carrierShipmentService struct {
	returns   repositories.ReturnRepository
	shipments repositories.CarrierShipmentRepository
	handoff   repositories.CarrierHandoff
	orders    OrderReader
	customers CustomerReader
	weights   VariantWeightReader
	carrier   CarrierClient
	payments  CarrierPaymentGateway
	jobs      HandoffJobPublisher
	receipts  ReceiptArchive
	warehouse Address
	excluded  []string
	runtime   sagaRuntime
}

var _ CarrierShipmentService = (*carrierShipmentService)(nil)

// NewCarrierShipmentService wires dependencies into a concrete CarrierShipmentService.
func NewCarrierShipmentService(deps CarrierShipmentServiceDeps) (CarrierShipmentService, error) {
	switch {
	case deps.Returns == nil:
		return nil, errors.New("carrier shipment service: return repository is required")
	case deps.Shipments == nil:
		return nil, errors.New("carrier shipment service: shipment repository is required")
	case deps.Handoff == nil:
		return nil, errors.New("carrier shipment service: handoff committer is required")
	case deps.Orders == nil:
		return nil, errors.New("carrier shipment service: order reader is required")
	case deps.Weights == nil:
		return nil, errors.New("carrier shipment service: variant weight reader is required")
	case deps.Carrier == nil:
		return nil, errors.New("carrier shipment service: carrier client is required")
	case deps.Payments == nil:
		return nil, errors.New("carrier shipment service: carrier payment gateway is required")
	}

	excluded := make([]string, 0, len(deps.ExcludedServiceKeywords))
	for _, keyword := range deps.ExcludedServiceKeywords {
		if keyword = strings.ToLower(strings.TrimSpace(keyword)); keyword != "" {
			excluded = append(excluded, keyword)
		}
	}
	if len(excluded) == 0 {
		excluded = append(excluded, DefaultExcludedServiceKeywords...)
	}

	return &carrierShipmentService{
		returns:   deps.Returns,
		shipments: deps.Shipments,
		handoff:   deps.Handoff,
		orders:    deps.Orders,
		customers: deps.Customers,
		weights:   deps.Weights,
		carrier:   deps.Carrier,
		payments:  deps.Payments,
		jobs:      deps.Jobs,
		receipts:  deps.Receipts,
		warehouse: deps.Warehouse,
		excluded:  excluded,
		runtime:   newSagaRuntime(deps.Clock, deps.IDGenerator, deps.Logger, deps.Events, deps.Metrics),
	}, nil
}

func (s *carrierShipmentService) FetchRates(ctx context.Context, cmd FetchRatesCommand) (RateQuote, error) {
	if strings.TrimSpace(cmd.ReturnID) == "" {
		return RateQuote{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}
	if cmd.Weight.IsNegative() {
		return RateQuote{}, fmt.Errorf("%w: weight must not be negative", ErrReturnInvalidInput)
	}

	ret, err := s.returns.FindByID(ctx, strings.TrimSpace(cmd.ReturnID))
	if err != nil {
		return RateQuote{}, mapReturnRepoError(err)
	}
	pickup, err := s.customerAddress(ctx, ret)
	if err != nil {
		return RateQuote{}, err
	}
	if s.warehouse.IsZero() {
		return RateQuote{}, ErrCarrierWarehouseMissing
	}

	weight := cmd.Weight
	if !weight.IsPositive() {
		weight, err = s.computeWeight(ctx, ret.Items)
		if err != nil {
			return RateQuote{}, err
		}
	}

	rates, err := s.carrier.CheckRates(ctx, domain.CarrierRateQuery{
		PickupPostcode:   pickup.PostalCode,
		PickupState:      pickup.State,
		PickupCountry:    pickup.Country,
		DeliveryPostcode: s.warehouse.PostalCode,
		DeliveryState:    s.warehouse.State,
		DeliveryCountry:  s.warehouse.Country,
		Weight:           weight,
	})
	s.runtime.metrics.ObserveCarrierCall(carrierOpRates, resultLabel(err))
	if err != nil {
		return RateQuote{}, classifyCarrierError(carrierOpRates, err)
	}

	return RateQuote{
		Rates:            s.filterRates(rates),
		Weight:           weight,
		CustomerAddress:  pickup,
		WarehouseAddress: s.warehouse,
	}, nil
}

func (s *carrierShipmentService) SubmitShipment(ctx context.Context, cmd SubmitShipmentCommand) (CarrierShipment, error) {
	if err := validateSubmitShipment(cmd); err != nil {
		return CarrierShipment{}, err
	}
	returnID := strings.TrimSpace(cmd.ReturnID)

	existing, err := s.shipments.FindByReturnID(ctx, returnID)
	switch {
	case err == nil && existing.Submitted():
		return CarrierShipment{}, &AlreadySubmittedError{OrderNo: existing.OrderNo}
	case err != nil && !isRepoNotFound(err):
		return CarrierShipment{}, mapShipmentRepoError(err)
	}

	ret, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return CarrierShipment{}, mapReturnRepoError(err)
	}
	if ret.Status != domain.ReturnStatusApproved {
		return CarrierShipment{}, &InvalidTransitionError{From: ret.Status, Event: ReturnEventShip}
	}
	if s.warehouse.IsZero() {
		return CarrierShipment{}, ErrCarrierWarehouseMissing
	}

	sender, err := s.senderAddress(ctx, ret)
	if err != nil {
		return CarrierShipment{}, err
	}
	receiver := s.warehouse
	if sender.Phone, err = normalizePartyPhone("sender", sender.Phone); err != nil {
		return CarrierShipment{}, err
	}
	if receiver.Phone, err = normalizePartyPhone("receiver", receiver.Phone); err != nil {
		return CarrierShipment{}, err
	}

	content := sanitizeText(cmd.Content)
	if content == "" {
		content = defaultShipmentContent
	}

	result, err := s.carrier.SubmitOrder(ctx, domain.CarrierOrderRequest{
		Reference:   ret.ID,
		ServiceID:   strings.TrimSpace(cmd.ServiceID),
		CourierID:   strings.TrimSpace(cmd.CourierID),
		Weight:      cmd.Weight,
		Content:     content,
		Value:       itemsValue(ret.Items),
		PickupDate:  strings.TrimSpace(cmd.PickupDate),
		PickupTime:  strings.TrimSpace(cmd.PickupTime),
		Sender:      sender,
		Receiver:    receiver,
		SenderEmail: sender.Email,
	})
	if err == nil && strings.TrimSpace(result.OrderNo) == "" {
		err = &CarrierError{Operation: carrierOpSubmit, Remark: chooseFirstNonEmpty(result.Remark, "carrier did not return an order number")}
	}
	s.runtime.metrics.ObserveCarrierCall(carrierOpSubmit, resultLabel(err))
	if err != nil {
		var carrierErr *CarrierError
		if errors.As(err, &carrierErr) {
			return CarrierShipment{}, err
		}
		return CarrierShipment{}, classifyCarrierError(carrierOpSubmit, err)
	}

	rate := cmd.Rate
	if !rate.IsPositive() {
		rate = result.Price
	}
	now := s.runtime.now()
	shipment := CarrierShipment{
		ID:          shipmentIDPrefix + s.runtime.newID(),
		ReturnID:    ret.ID,
		OrderNo:     strings.TrimSpace(result.OrderNo),
		ServiceID:   strings.TrimSpace(cmd.ServiceID),
		ServiceName: strings.TrimSpace(cmd.ServiceName),
		CourierID:   strings.TrimSpace(cmd.CourierID),
		CourierName: chooseFirstNonEmpty(strings.TrimSpace(cmd.CourierName), result.Courier),
		Weight:      cmd.Weight,
		Rate:        rate,
		PickupDate:  strings.TrimSpace(cmd.PickupDate),
		PickupTime:  strings.TrimSpace(cmd.PickupTime),
		Content:     content,
		Sender:      sender,
		Receiver:    receiver,
		Status:      domain.CarrierShipmentOrderCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if existing.ID != "" {
		shipment.ID = existing.ID
		shipment.CreatedAt = existing.CreatedAt
	}

	if err := s.shipments.Create(ctx, shipment); err != nil {
		if repositories.HasCode(err, repositories.StoreErrorAlreadySubmitted) {
			stored, findErr := s.shipments.FindByReturnID(ctx, ret.ID)
			s.runtime.logger(ctx, "returns.carrier.submit.duplicate_booking", map[string]any{
				"returnID":      ret.ID,
				"orphanOrderNo": shipment.OrderNo,
				"storedOrderNo": stored.OrderNo,
			})
			if findErr == nil {
				return CarrierShipment{}, &AlreadySubmittedError{OrderNo: stored.OrderNo}
			}
		}
		return CarrierShipment{}, mapShipmentRepoError(err)
	}

	s.runtime.publish(ctx, returnEventShipmentSubmit, ret, cmd.ActorID, map[string]any{
		"order_no":   shipment.OrderNo,
		"service_id": shipment.ServiceID,
		"courier":    shipment.CourierName,
		"rate":       shipment.Rate.String(),
	})
	return shipment, nil
}

func (s *carrierShipmentService) PayShipment(ctx context.Context, cmd PayShipmentCommand) (result CarrierShipment, err error) {
	returnID := strings.TrimSpace(cmd.ReturnID)
	if returnID == "" {
		return CarrierShipment{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}
	ctx, span := s.runtime.startSpan(ctx, "returns.carrier.pay", returnID)
	defer func() { endSpan(span, err) }()

	shipment, err := s.shipments.FindByReturnID(ctx, returnID)
	if err != nil {
		if isRepoNotFound(err) {
			return CarrierShipment{}, ErrCarrierNotSubmitted
		}
		return CarrierShipment{}, mapShipmentRepoError(err)
	}
	if !shipment.Submitted() {
		return CarrierShipment{}, ErrCarrierNotSubmitted
	}
	if shipment.AWB != "" {
		if shipment.HandoffPending {
			if recovered, _, herr := s.completeHandoff(ctx, shipment, cmd.ActorID); herr == nil {
				return recovered, nil
			}
		}
		return shipment, nil
	}

	ret, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		return CarrierShipment{}, mapReturnRepoError(err)
	}
	if ret.Status != domain.ReturnStatusApproved {
		return CarrierShipment{}, &InvalidTransitionError{From: ret.Status, Event: ReturnEventShip}
	}

	payment, err := s.payments.PayOrder(ctx, shipment.OrderNo)
	if err == nil && strings.TrimSpace(payment.AWB) == "" {
		err = &CarrierError{Operation: carrierOpPay, Remark: "carrier did not issue an AWB"}
	}
	s.runtime.metrics.ObserveCarrierCall(carrierOpPay, resultLabel(err))
	if err != nil {
		var carrierErr *CarrierError
		if errors.As(err, &carrierErr) {
			return CarrierShipment{}, err
		}
		return CarrierShipment{}, classifyCarrierError(carrierOpPay, err)
	}

	now := s.runtime.now()
	paid := shipment
	paid.ParcelNo = chooseFirstNonEmpty(payment.ParcelNo, shipment.ParcelNo)
	paid.AWB = strings.TrimSpace(payment.AWB)
	paid.TrackingURL = payment.TrackingURL
	paid.Sandbox = payment.Sandbox
	paid.Status = domain.CarrierShipmentPaid
	paid.PaidAt = &now
	paid.UpdatedAt = now
	paid.HandoffPending = false

	s.archiveReceipt(ctx, ret.ID, "carrier-payment.json", map[string]any{
		"return_id":    ret.ID,
		"order_no":     paid.OrderNo,
		"parcel_no":    paid.ParcelNo,
		"awb":          paid.AWB,
		"tracking_url": paid.TrackingURL,
		"courier":      paid.CourierName,
		"rate":         paid.Rate.String(),
		"sandbox":      paid.Sandbox,
		"paid_at":      now,
		"carrier":      payment.Raw,
	})

	saved, handoffErr := s.commitHandoff(ctx, paid, ret)
	if handoffErr != nil {
		return s.compensateHandoff(ctx, paid, ret, cmd.ActorID, handoffErr)
	}

	s.runtime.publish(ctx, returnEventShipmentPaid, saved, cmd.ActorID, map[string]any{
		"order_no": paid.OrderNo,
		"awb":      paid.AWB,
		"sandbox":  paid.Sandbox,
	})
	s.runtime.publish(ctx, transitionEventTypes[ReturnEventShip], saved, cmd.ActorID, map[string]any{
		"from":            string(ret.Status),
		"courier":         saved.ReturnCourier,
		"tracking_number": saved.ReturnTrackingNumber,
	})
	return paid, nil
}

func (s *carrierShipmentService) ShipmentStatus(ctx context.Context, returnID string) (ShipmentStatusResult, error) {
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return ShipmentStatusResult{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}
	if _, err := s.returns.FindByID(ctx, returnID); err != nil {
		return ShipmentStatusResult{}, mapReturnRepoError(err)
	}
	shipment, err := s.shipments.FindByReturnID(ctx, returnID)
	if err != nil {
		if isRepoNotFound(err) {
			return ShipmentStatusResult{}, nil
		}
		return ShipmentStatusResult{}, mapShipmentRepoError(err)
	}
	if !shipment.Submitted() {
		return ShipmentStatusResult{}, nil
	}
	return ShipmentStatusResult{HasShipment: true, Shipment: &shipment}, nil
}

func (s *carrierShipmentService) RecoverHandoffs(ctx context.Context, limit int) (HandoffRecoveryReport, error) {
	if limit <= 0 {
		limit = defaultRecoveryBatch
	}
	pending, err := s.shipments.ListHandoffPending(ctx, limit)
	if err != nil {
		return HandoffRecoveryReport{}, mapShipmentRepoError(err)
	}

	report := HandoffRecoveryReport{Scanned: len(pending)}
	for _, shipment := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		_, transitioned, err := s.completeHandoff(ctx, shipment, "")
		switch {
		case err != nil:
			report.Failed++
			s.runtime.logger(ctx, "returns.carrier.handoff.recovery_failed", map[string]any{
				"returnID": shipment.ReturnID,
				"orderNo":  shipment.OrderNo,
				"error":    err.Error(),
			})
		case transitioned:
			report.Recovered++
		default:
			report.Cleared++
		}
	}
	return report, nil
}

// completeHandoff replays the ship transition for a paid shipment. It reports whether the return
// was transitioned; a return that already left approved only has the pending flag cleared.
func (s *carrierShipmentService) completeHandoff(ctx context.Context, shipment CarrierShipment, actorID string) (CarrierShipment, bool, error) {
	ret, err := s.returns.FindByID(ctx, shipment.ReturnID)
	if err != nil {
		return shipment, false, mapReturnRepoError(err)
	}

	cleared := shipment
	cleared.HandoffPending = false
	cleared.UpdatedAt = s.runtime.now()

	if ret.Status != domain.ReturnStatusApproved {
		if ret.Status == domain.ReturnStatusCancelled || ret.Status == domain.ReturnStatusRejected {
			s.runtime.logger(ctx, "returns.carrier.handoff.orphaned", map[string]any{
				"returnID": ret.ID,
				"status":   string(ret.Status),
				"awb":      shipment.AWB,
			})
		}
		if err := s.shipments.Update(ctx, cleared); err != nil {
			return shipment, false, mapShipmentRepoError(err)
		}
		return cleared, false, nil
	}

	saved, err := s.commitHandoff(ctx, cleared, ret)
	if err != nil {
		return shipment, false, err
	}
	s.runtime.publish(ctx, transitionEventTypes[ReturnEventShip], saved, actorID, map[string]any{
		"from":            string(ret.Status),
		"courier":         saved.ReturnCourier,
		"tracking_number": saved.ReturnTrackingNumber,
		"recovered":       true,
	})
	return cleared, true, nil
}

func (s *carrierShipmentService) commitHandoff(ctx context.Context, shipment CarrierShipment, ret ReturnRequest) (ReturnRequest, error) {
	next, err := Apply(ret, TransitionInput{
		Event:          ReturnEventShip,
		Courier:        chooseFirstNonEmpty(shipment.CourierName, shipment.ServiceName, shipment.CourierID),
		TrackingNumber: shipment.AWB,
		At:             s.runtime.now(),
	})
	if err != nil {
		s.runtime.metrics.ObserveTransition(string(ReturnEventShip), resultFailure)
		return ReturnRequest{}, err
	}
	saved, err := s.handoff.CommitHandoff(ctx, shipment, next, ret.Version)
	s.runtime.metrics.ObserveTransition(string(ReturnEventShip), resultLabel(err))
	if err != nil {
		return ReturnRequest{}, mapReturnRepoError(err)
	}
	return saved, nil
}

// compensateHandoff records a paid shipment whose lifecycle transition could not be committed and
// queues it for the recovery worker.
func (s *carrierShipmentService) compensateHandoff(ctx context.Context, paid CarrierShipment, ret ReturnRequest, actorID string, cause error) (CarrierShipment, error) {
	paid.HandoffPending = true
	s.runtime.logger(ctx, "returns.carrier.handoff.deferred", map[string]any{
		"returnID": ret.ID,
		"orderNo":  paid.OrderNo,
		"awb":      paid.AWB,
		"error":    cause.Error(),
	})

	persistErr := s.shipments.Update(ctx, paid)
	if s.jobs != nil {
		job := HandoffJob{
			ReturnID:    ret.ID,
			OrderNo:     paid.OrderNo,
			AWB:         paid.AWB,
			CourierName: paid.CourierName,
			Cause:       cause.Error(),
			QueuedAt:    s.runtime.now(),
		}
		if err := s.jobs.PublishHandoffPending(ctx, job); err != nil {
			s.runtime.logger(ctx, "returns.carrier.handoff.enqueue_failed", map[string]any{
				"returnID": ret.ID,
				"error":    err.Error(),
			})
		}
	}
	if persistErr != nil {
		s.runtime.logger(ctx, "returns.carrier.handoff.persist_failed", map[string]any{
			"returnID": ret.ID,
			"orderNo":  paid.OrderNo,
			"awb":      paid.AWB,
			"error":    persistErr.Error(),
		})
		return CarrierShipment{}, fmt.Errorf("returns: carrier accepted payment for order %s (awb %s) but it could not be recorded: %w", paid.OrderNo, paid.AWB, mapShipmentRepoError(persistErr))
	}

	s.runtime.publish(ctx, returnEventShipmentPaid, ret, actorID, map[string]any{
		"order_no":        paid.OrderNo,
		"awb":             paid.AWB,
		"sandbox":         paid.Sandbox,
		"handoff_pending": true,
	})
	return paid, nil
}

func (s *carrierShipmentService) archiveReceipt(ctx context.Context, returnID, name string, payload map[string]any) {
	if s.receipts == nil {
		return
	}
	if _, err := s.receipts.StoreReceipt(ctx, returnID, name, payload); err != nil {
		s.runtime.logger(ctx, "returns.receipt.store_failed", map[string]any{
			"returnID": returnID,
			"receipt":  name,
			"error":    err.Error(),
		})
	}
}

func (s *carrierShipmentService) customerAddress(ctx context.Context, ret ReturnRequest) (Address, error) {
	order, err := s.orders.FindOrder(ctx, ret.OrderID)
	if err != nil {
		return Address{}, mapOrderReadError(err)
	}
	if order.ShippingAddress == nil || order.ShippingAddress.IsZero() || strings.TrimSpace(order.ShippingAddress.PostalCode) == "" {
		return Address{}, ErrCarrierAddressMissing
	}
	return *order.ShippingAddress, nil
}

// senderAddress builds the pickup party from the order's delivery address, filling contact details
// from the customer record.
func (s *carrierShipmentService) senderAddress(ctx context.Context, ret ReturnRequest) (Address, error) {
	order, err := s.orders.FindOrder(ctx, ret.OrderID)
	if err != nil {
		return Address{}, mapOrderReadError(err)
	}
	if order.ShippingAddress == nil || order.ShippingAddress.IsZero() || strings.TrimSpace(order.ShippingAddress.PostalCode) == "" {
		return Address{}, ErrCarrierAddressMissing
	}
	sender := *order.ShippingAddress
	sender.Email = chooseFirstNonEmpty(sender.Email, order.Email)

	if s.customers != nil && strings.TrimSpace(ret.CustomerID) != "" && (sender.Name == "" || sender.Phone == "" || sender.Email == "") {
		customer, err := s.customers.FindCustomer(ctx, ret.CustomerID)
		if err != nil {
			s.runtime.logger(ctx, "returns.carrier.customer_lookup_failed", map[string]any{
				"returnID":   ret.ID,
				"customerID": ret.CustomerID,
				"error":      err.Error(),
			})
		} else {
			sender.Name = chooseFirstNonEmpty(sender.Name, customer.FullName())
			sender.Phone = chooseFirstNonEmpty(sender.Phone, customer.Phone)
			sender.Email = chooseFirstNonEmpty(sender.Email, customer.Email)
		}
	}
	return sender, nil
}

// computeWeight sums catalog weights over the returned quantities with a 0.5kg floor.
func (s *carrierShipmentService) computeWeight(ctx context.Context, items []ReturnItem) (decimal.Decimal, error) {
	variantIDs := make([]string, 0, len(items))
	for _, item := range items {
		if item.VariantID != "" {
			variantIDs = append(variantIDs, item.VariantID)
		}
	}
	weights := map[string]decimal.Decimal{}
	if len(variantIDs) > 0 {
		var err error
		weights, err = s.weights.VariantWeights(ctx, variantIDs)
		if err != nil {
			return decimal.Zero, fmt.Errorf("returns: load variant weights: %w", err)
		}
	}
	return ShipmentWeight(items, weights), nil
}

// ShipmentWeight returns Σ weight×quantity rounded to two places, never below 0.5kg. Variants
// without a catalog weight contribute nothing.
func ShipmentWeight(items []ReturnItem, weights map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		weight, ok := weights[item.VariantID]
		if !ok || weight.IsNegative() {
			continue
		}
		total = total.Add(weight.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	total = total.Round(2)
	if total.LessThan(minimumShipmentWeight) {
		return minimumShipmentWeight
	}
	return total
}

func (s *carrierShipmentService) filterRates(rates []CarrierRate) []CarrierRate {
	out := make([]CarrierRate, 0, len(rates))
	for _, rate := range rates {
		if s.isExcluded(rate) {
			continue
		}
		out = append(out, rate)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

func (s *carrierShipmentService) isExcluded(rate CarrierRate) bool {
	haystack := strings.ToLower(rate.ServiceName + " " + rate.ServiceType)
	for _, keyword := range s.excluded {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

func validateSubmitShipment(cmd SubmitShipmentCommand) error {
	switch {
	case strings.TrimSpace(cmd.ReturnID) == "":
		return fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	case strings.TrimSpace(cmd.ServiceID) == "":
		return fmt.Errorf("%w: service_id is required", ErrReturnInvalidInput)
	case !cmd.Weight.IsPositive():
		return fmt.Errorf("%w: weight must be positive", ErrReturnInvalidInput)
	case cmd.Rate.IsNegative():
		return fmt.Errorf("%w: rate must not be negative", ErrReturnInvalidInput)
	}
	if _, err := time.Parse(pickupDateLayout, strings.TrimSpace(cmd.PickupDate)); err != nil {
		return fmt.Errorf("%w: pickup_date must be YYYY-MM-DD", ErrReturnInvalidInput)
	}
	return nil
}

func normalizePartyPhone(party, phone string) (string, error) {
	normalized, ok := normalizeMalaysianPhone(phone)
	if !ok {
		return "", fmt.Errorf("%w: %s phone %q", ErrCarrierInvalidPhone, party, phone)
	}
	return normalized, nil
}

// itemsValue converts the snapshot's minor-unit prices into a declared parcel value.
func itemsValue(items []ReturnItem) decimal.Decimal {
	var total int64
	for _, item := range items {
		total += item.UnitPrice * int64(item.Quantity)
	}
	return decimal.New(total, -2)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func mapShipmentRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrCarrierShipmentNotFound, repoErr.Error())
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %s", ErrReturnUnavailable, repoErr.Error())
		}
	}
	return err
}

func chooseFirstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
