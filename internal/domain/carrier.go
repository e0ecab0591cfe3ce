package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CarrierShipmentStatus tracks the booking progress of a return-leg shipment.
type CarrierShipmentStatus string

const (
	CarrierShipmentRateChecked  CarrierShipmentStatus = "rate_checked"
	CarrierShipmentOrderCreated CarrierShipmentStatus = "order_created"
	CarrierShipmentPaid         CarrierShipmentStatus = "paid"
)

// CarrierShipment is the booking record for the customer-to-warehouse leg of a return.
type CarrierShipment struct {
	ID       string
	ReturnID string

	OrderNo     string
	ParcelNo    string
	AWB         string
	TrackingURL string

	ServiceID   string
	ServiceName string
	CourierID   string
	CourierName string
	Weight      decimal.Decimal
	Rate        decimal.Decimal

	PickupDate string
	PickupTime string
	Content    string

	Sender   Address
	Receiver Address

	Status         CarrierShipmentStatus
	HandoffPending bool
	Sandbox        bool

	CreatedAt time.Time
	UpdatedAt time.Time
	PaidAt    *time.Time
}

// Submitted reports whether the carrier has accepted the booking.
func (s CarrierShipment) Submitted() bool {
	return s.OrderNo != ""
}

// CarrierRateQuery describes a rate lookup between two postcodes.
type CarrierRateQuery struct {
	PickupPostcode   string
	PickupState      string
	PickupCountry    string
	DeliveryPostcode string
	DeliveryState    string
	DeliveryCountry  string
	Weight           decimal.Decimal
}

// CarrierRate is a single bookable service quoted by the carrier.
type CarrierRate struct {
	ServiceID    string
	ServiceName  string
	ServiceType  string
	CourierID    string
	CourierName  string
	CourierLogo  string
	Price        decimal.Decimal
	PickupDate   string
	DeliveryTime string
}

// CarrierOrderRequest books a shipment with the carrier.
type CarrierOrderRequest struct {
	Reference   string
	ServiceID   string
	CourierID   string
	Weight      decimal.Decimal
	Content     string
	Value       decimal.Decimal
	PickupDate  string
	PickupTime  string
	Sender      Address
	Receiver    Address
	SenderEmail string
}

// CarrierOrderResult is the carrier's acknowledgement of a booking.
type CarrierOrderResult struct {
	OrderNo string
	Price   decimal.Decimal
	Courier string
	Remark  string
}

// CarrierPayment is the outcome of paying for a booked shipment.
type CarrierPayment struct {
	OrderNo     string
	ParcelNo    string
	AWB         string
	TrackingURL string
	Sandbox     bool
	Raw         map[string]any
}
