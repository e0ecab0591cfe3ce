package orderstore

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/returns/internal/domain"
)

// orderRecord maps the commerce orders table. Discount columns are frozen at checkout.
type orderRecord struct {
	ID                 string `gorm:"primaryKey"`
	DisplayID          string
	CustomerID         string `gorm:"index"`
	Email              string
	Currency           string
	FulfillmentStatus  string
	DeliveredAt        *time.Time
	OriginalTotal      int64
	CouponCode         string
	CouponDiscount     int64
	PointsRedeemed     int64
	PointsDiscount     int64
	PWPDiscount        int64 `gorm:"column:pwp_discount"`
	ShippingAddressID  *string
	ShippingAddress    *addressRecord            `gorm:"foreignKey:ShippingAddressID"`
	Items              []orderItemRecord         `gorm:"foreignKey:OrderID"`
	PaymentCollections []paymentCollectionRecord `gorm:"foreignKey:OrderID"`
	CreatedAt          time.Time
}

func (orderRecord) TableName() string { return "orders" }

type addressRecord struct {
	ID          string `gorm:"primaryKey"`
	FirstName   string
	LastName    string
	Company     string
	Phone       string
	Email       string
	Address1    string
	Address2    string
	City        string
	Province    string
	PostalCode  string
	CountryCode string
}

func (addressRecord) TableName() string { return "addresses" }

type orderItemRecord struct {
	ID        string `gorm:"primaryKey"`
	OrderID   string `gorm:"index"`
	VariantID string
	Title     string
	Quantity  int
	UnitPrice int64
	CreatedAt time.Time
}

func (orderItemRecord) TableName() string { return "order_items" }

type paymentCollectionRecord struct {
	ID        string `gorm:"primaryKey"`
	OrderID   string `gorm:"index"`
	Status    string
	Payments  []paymentRecord `gorm:"foreignKey:PaymentCollectionID"`
	CreatedAt time.Time
}

func (paymentCollectionRecord) TableName() string { return "payment_collections" }

type paymentRecord struct {
	ID                  string `gorm:"primaryKey"`
	PaymentCollectionID string `gorm:"index"`
	ProviderID          string
	IntentID            string
	Amount              int64
	CurrencyCode        string
	CapturedAt          *time.Time
	CreatedAt           time.Time
}

func (paymentRecord) TableName() string { return "payments" }

type customerRecord struct {
	ID        string `gorm:"primaryKey"`
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

func (customerRecord) TableName() string { return "customers" }

// variantRecord carries the shipping weight in kilograms. Variants without a weight are skipped.
type variantRecord struct {
	ID        string `gorm:"primaryKey"`
	ProductID string
	Title     string
	Weight    decimal.NullDecimal `gorm:"type:numeric(10,3)"`
}

func (variantRecord) TableName() string { return "product_variants" }

func (r orderRecord) toDomain() domain.Order {
	order := domain.Order{
		ID:                r.ID,
		DisplayID:         r.DisplayID,
		CustomerID:        r.CustomerID,
		Email:             r.Email,
		Currency:          r.Currency,
		FulfillmentStatus: r.FulfillmentStatus,
		Discounts: domain.DiscountSnapshot{
			OriginalOrderTotal: r.OriginalTotal,
			CouponCode:         r.CouponCode,
			CouponDiscount:     r.CouponDiscount,
			PointsRedeemed:     r.PointsRedeemed,
			PointsDiscount:     r.PointsDiscount,
			PWPDiscount:        r.PWPDiscount,
		},
	}
	if r.DeliveredAt != nil {
		delivered := r.DeliveredAt.UTC()
		order.DeliveredAt = &delivered
	}
	if r.ShippingAddress != nil {
		addr := r.ShippingAddress.toDomain()
		order.ShippingAddress = &addr
	}
	for _, item := range r.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:        item.ID,
			VariantID: item.VariantID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	for _, pc := range r.PaymentCollections {
		collection := domain.PaymentCollection{ID: pc.ID, Status: pc.Status}
		for _, p := range pc.Payments {
			payment := domain.Payment{
				ID:         p.ID,
				ProviderID: p.ProviderID,
				IntentID:   p.IntentID,
				Amount:     p.Amount,
				Currency:   p.CurrencyCode,
			}
			if p.CapturedAt != nil {
				captured := p.CapturedAt.UTC()
				payment.CapturedAt = &captured
			}
			collection.Payments = append(collection.Payments, payment)
		}
		order.PaymentCollections = append(order.PaymentCollections, collection)
	}
	return order
}

func (r addressRecord) toDomain() domain.Address {
	name := r.FirstName
	if r.LastName != "" {
		if name != "" {
			name += " "
		}
		name += r.LastName
	}
	return domain.Address{
		Name:       name,
		Company:    r.Company,
		Phone:      r.Phone,
		Email:      r.Email,
		Line1:      r.Address1,
		Line2:      r.Address2,
		City:       r.City,
		State:      r.Province,
		PostalCode: r.PostalCode,
		Country:    r.CountryCode,
	}
}

func (r customerRecord) toDomain() domain.Customer {
	return domain.Customer{
		ID:        r.ID,
		Email:     r.Email,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
	}
}
