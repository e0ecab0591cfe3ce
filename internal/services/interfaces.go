package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/returns/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	ReturnRequest      = domain.ReturnRequest
	ReturnItem         = domain.ReturnItem
	CarrierShipment    = domain.CarrierShipment
	CarrierRate        = domain.CarrierRate
	Address            = domain.Address
	Order              = domain.Order
	Customer           = domain.Customer
	GatewayRefund      = domain.GatewayRefund
	PointsAdjustment   = domain.PointsAdjustment
	ReadinessReport    = domain.ReadinessReport
	BuildInfo          = domain.BuildInfo
)

// ReturnService drives return requests through their lifecycle.
type ReturnService interface {
	CreateReturn(ctx context.Context, cmd CreateReturnCommand) (ReturnRequest, error)
	GetReturn(ctx context.Context, returnID string) (ReturnRequest, error)
	ListReturns(ctx context.Context, filter ReturnListFilter) (domain.CursorPage[ReturnRequest], error)
	Transition(ctx context.Context, cmd TransitionReturnCommand) (ReturnRequest, error)
	RecordReplacement(ctx context.Context, cmd RecordReplacementCommand) (ReturnRequest, error)
}

// CarrierShipmentService books and pays for the return-leg shipment.
type CarrierShipmentService interface {
	FetchRates(ctx context.Context, cmd FetchRatesCommand) (RateQuote, error)
	SubmitShipment(ctx context.Context, cmd SubmitShipmentCommand) (CarrierShipment, error)
	PayShipment(ctx context.Context, cmd PayShipmentCommand) (CarrierShipment, error)
	ShipmentStatus(ctx context.Context, returnID string) (ShipmentStatusResult, error)
	RecoverHandoffs(ctx context.Context, limit int) (HandoffRecoveryReport, error)
}

// RefundService reverses the captured payment of a completed return and corrects loyalty points.
type RefundService interface {
	ProcessRefund(ctx context.Context, cmd ProcessRefundCommand) (RefundOutcome, error)
}

// SystemService reports whether the process can serve return traffic.
type SystemService interface {
	Readiness(ctx context.Context) (ReadinessReport, error)
}

// OrderReader loads orders from the external order store.
type OrderReader interface {
	FindOrder(ctx context.Context, orderID string) (Order, error)
}

// CustomerReader loads customers from the external customer store.
type CustomerReader interface {
	FindCustomer(ctx context.Context, customerID string) (Customer, error)
}

// VariantWeightReader returns the shipping weight in kilograms for each known variant.
type VariantWeightReader interface {
	VariantWeights(ctx context.Context, variantIDs []string) (map[string]decimal.Decimal, error)
}

// RefundGateway reverses captured payments.
type RefundGateway interface {
	Refund(ctx context.Context, req domain.GatewayRefundRequest) (GatewayRefund, error)
}

// CarrierClient talks to the carrier's rate and booking endpoints.
type CarrierClient interface {
	CheckRates(ctx context.Context, query domain.CarrierRateQuery) ([]CarrierRate, error)
	SubmitOrder(ctx context.Context, req domain.CarrierOrderRequest) (domain.CarrierOrderResult, error)
}

// CarrierPaymentGateway pays for a booked shipment and issues the label.
type CarrierPaymentGateway interface {
	PayOrder(ctx context.Context, orderNo string) (domain.CarrierPayment, error)
}

// OrderPoints reports loyalty activity recorded against an order.
type OrderPoints struct {
	Earned   int64
	Redeemed int64
}

// PointsLedger reads and adjusts loyalty balances.
type PointsLedger interface {
	OrderPoints(ctx context.Context, customerID, orderID string) (OrderPoints, error)
	Adjust(ctx context.Context, req domain.PointsAdjustmentRequest) (PointsAdjustment, error)
}

// ReturnEventPublisher emits lifecycle events for downstream consumers.
type ReturnEventPublisher interface {
	PublishReturnEvent(ctx context.Context, event ReturnLifecycleEvent) error
}

// ReturnLifecycleEvent is the payload published after each successful state change.
type ReturnLifecycleEvent struct {
	ID         string
	Type       string
	ReturnID   string
	OrderID    string
	Status     string
	ActorID    string
	OccurredAt time.Time
	Data       map[string]any
}

// HandoffJobPublisher enqueues carrier handoffs that must be replayed by the recovery worker.
type HandoffJobPublisher interface {
	PublishHandoffPending(ctx context.Context, job HandoffJob) error
}

// HandoffJob identifies a paid shipment whose lifecycle transition has not been recorded.
type HandoffJob struct {
	ReturnID    string    `json:"return_id"`
	OrderNo     string    `json:"order_no"`
	AWB         string    `json:"awb"`
	CourierName string    `json:"courier_name"`
	Cause       string    `json:"cause,omitempty"`
	QueuedAt    time.Time `json:"queued_at"`
}

// ReceiptArchive stores JSON receipts of upstream financial operations.
type ReceiptArchive interface {
	StoreReceipt(ctx context.Context, returnID, name string, payload any) (string, error)
}

// SagaMetrics records saga step outcomes.
type SagaMetrics interface {
	ObserveTransition(event, result string)
	ObserveCarrierCall(operation, result string)
	ObserveRefund(result string)
	ObservePointsAdjustment(result string)
}

// ReturnListFilter narrows ListReturns.
type ReturnListFilter struct {
	Statuses   []domain.ReturnStatus
	OrderID    string
	CustomerID string
	Pagination Pagination
}

// ReturnItemInput is a line the caller wants to return.
type ReturnItemInput struct {
	ItemID      string
	VariantID   string
	ProductName string
	Quantity    int
	UnitPrice   *int64
}

// CreateReturnCommand opens a new return request.
type CreateReturnCommand struct {
	OrderID        string
	ReturnType     domain.ReturnType
	Reason         domain.ReturnReason
	ReasonDetails  string
	Items          []ReturnItemInput
	RefundAmount   int64
	ShippingRefund int64
	AdminNotes     string
	ActorID        string
}

// TransitionReturnCommand applies a lifecycle event. ExpectedVersion, when set, must match the
// stored version.
type TransitionReturnCommand struct {
	ReturnID        string
	Event           ReturnEvent
	AdminNotes      string
	Reason          string
	Courier         string
	TrackingNumber  string
	ExpectedVersion *int64
	ActorID         string
}

// RecordReplacementCommand links a replacement order to a completed replacement return.
type RecordReplacementCommand struct {
	ReturnID           string
	ReplacementOrderID string
	ExpectedVersion    *int64
	ActorID            string
}

// FetchRatesCommand requests carrier quotes. A zero Weight means compute from the catalog.
type FetchRatesCommand struct {
	ReturnID string
	Weight   decimal.Decimal
}

// RateQuote lists bookable services for the return leg.
type RateQuote struct {
	Rates            []CarrierRate
	Weight           decimal.Decimal
	CustomerAddress  Address
	WarehouseAddress Address
}

// SubmitShipmentCommand books the chosen carrier service.
type SubmitShipmentCommand struct {
	ReturnID    string
	ServiceID   string
	ServiceName string
	CourierID   string
	CourierName string
	Weight      decimal.Decimal
	Rate        decimal.Decimal
	PickupDate  string
	PickupTime  string
	Content     string
	ActorID     string
}

// PayShipmentCommand pays for the booked shipment of a return.
type PayShipmentCommand struct {
	ReturnID string
	ActorID  string
}

// ShipmentStatusResult reports the stored booking, if any.
type ShipmentStatusResult struct {
	HasShipment bool
	Shipment    *CarrierShipment
}

// HandoffRecoveryReport summarises one recovery sweep.
type HandoffRecoveryReport struct {
	Scanned   int
	Recovered int
	Cleared   int
	Failed    int
}

// ProcessRefundCommand issues the refund for a completed return.
type ProcessRefundCommand struct {
	ReturnID string
	ActorID  string
}

// RefundOutcome is the result of ProcessRefund. Points is nil when the ledger step failed or
// had nothing to adjust.
type RefundOutcome struct {
	Return ReturnRequest
	Refund GatewayRefund
	Points *PointsAdjustment
}
