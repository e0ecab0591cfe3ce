package orderstore

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hanko-field/returns/internal/repositories"
)

func TestOrderRecordToDomain(t *testing.T) {
	delivered := time.Date(2024, 5, 2, 10, 0, 0, 0, time.FixedZone("MYT", 8*3600))
	captured := delivered.Add(-72 * time.Hour)
	addrID := "addr_1"
	record := orderRecord{
		ID:                "order_1",
		DisplayID:         "1001",
		CustomerID:        "cus_1",
		Currency:          "MYR",
		FulfillmentStatus: "delivered",
		DeliveredAt:       &delivered,
		OriginalTotal:     25000,
		CouponCode:        "RAYA10",
		CouponDiscount:    2500,
		PointsRedeemed:    300,
		PointsDiscount:    300,
		ShippingAddressID: &addrID,
		ShippingAddress: &addressRecord{
			ID:          addrID,
			FirstName:   "Aisyah",
			LastName:    "Rahman",
			Address1:    "12 Jalan Bukit",
			City:        "Kuala Lumpur",
			Province:    "Wilayah Persekutuan",
			PostalCode:  "50450",
			CountryCode: "MY",
		},
		Items: []orderItemRecord{{ID: "item_1", VariantID: "var_1", Title: "Linen Shirt", Quantity: 2, UnitPrice: 12500}},
		PaymentCollections: []paymentCollectionRecord{{
			ID:     "pc_1",
			Status: "captured",
			Payments: []paymentRecord{{
				ID:           "pay_1",
				ProviderID:   "pp_stripe_stripe",
				IntentID:     "pi_123",
				Amount:       22500,
				CurrencyCode: "myr",
				CapturedAt:   &captured,
			}},
		}},
	}

	order := record.toDomain()

	assert.Equal(t, "order_1", order.ID)
	require.NotNil(t, order.DeliveredAt)
	assert.Equal(t, time.UTC, order.DeliveredAt.Location())
	assert.True(t, order.DeliveredAt.Equal(delivered))
	assert.Equal(t, int64(25000), order.Discounts.OriginalOrderTotal)
	assert.Equal(t, "RAYA10", order.Discounts.CouponCode)
	assert.Equal(t, int64(300), order.Discounts.PointsRedeemed)
	require.NotNil(t, order.ShippingAddress)
	assert.Equal(t, "Aisyah Rahman", order.ShippingAddress.Name)
	assert.Equal(t, "Wilayah Persekutuan", order.ShippingAddress.State)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	require.Len(t, order.PaymentCollections, 1)
	require.Len(t, order.PaymentCollections[0].Payments, 1)
	payment := order.PaymentCollections[0].Payments[0]
	assert.Equal(t, "pi_123", payment.IntentID)
	require.NotNil(t, payment.CapturedAt)
}

func TestOrderRecordToDomain_NoAddress(t *testing.T) {
	order := orderRecord{ID: "order_2"}.toDomain()
	assert.Nil(t, order.ShippingAddress)
	assert.Nil(t, order.DeliveredAt)
	assert.Empty(t, order.Items)
}

func TestAddressNameVariants(t *testing.T) {
	assert.Equal(t, "Rahman", addressRecord{LastName: "Rahman"}.toDomain().Name)
	assert.Equal(t, "Aisyah", addressRecord{FirstName: "Aisyah"}.toDomain().Name)
}

func TestUniqueIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, uniqueIDs([]string{" a", "b", "a", "", "  "}))
}

func TestWrapError(t *testing.T) {
	err := wrapError("orders.find", "order x not found", gorm.ErrRecordNotFound)
	var storeErr *repositories.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.True(t, storeErr.IsNotFound())
	assert.Equal(t, "orders.find: order x not found", storeErr.Error())

	err = wrapError("orders.find", "", errors.New("connection refused"))
	require.True(t, errors.As(err, &storeErr))
	assert.True(t, storeErr.IsUnavailable())
}

func TestNewRequiresDB(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestVariantRecordNullWeight(t *testing.T) {
	rec := variantRecord{ID: "var_1"}
	assert.False(t, rec.Weight.Valid)
	rec.Weight = decimal.NewNullDecimal(decimal.RequireFromString("0.450"))
	assert.True(t, rec.Weight.Valid)
}
