package domain

import "time"

// FulfillmentStatusDelivered is the only fulfillment state from which a return may be opened.
const FulfillmentStatusDelivered = "delivered"

// Order is the read model of an order owned by the external order store.
type Order struct {
	ID                 string
	DisplayID          string
	CustomerID         string
	Email              string
	Currency           string
	FulfillmentStatus  string
	DeliveredAt        *time.Time
	Discounts          DiscountSnapshot
	ShippingAddress    *Address
	Items              []OrderItem
	PaymentCollections []PaymentCollection
}

// OrderItem is a purchased line on the original order.
type OrderItem struct {
	ID        string
	VariantID string
	Title     string
	Quantity  int
	UnitPrice int64
}

// PaymentCollection groups payment attempts for an order.
type PaymentCollection struct {
	ID       string
	Status   string
	Payments []Payment
}

// Payment is a single gateway payment inside a collection.
type Payment struct {
	ID         string
	ProviderID string
	IntentID   string
	Amount     int64
	Currency   string
	CapturedAt *time.Time
}

// Customer is the read model of a customer owned by the external customer store.
type Customer struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// FullName joins the customer's given and family names.
func (c Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}
