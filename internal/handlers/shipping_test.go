package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/services"
)

type stubShipmentService struct {
	ratesFn   func(context.Context, services.FetchRatesCommand) (services.RateQuote, error)
	submitFn  func(context.Context, services.SubmitShipmentCommand) (services.CarrierShipment, error)
	payFn     func(context.Context, services.PayShipmentCommand) (services.CarrierShipment, error)
	statusFn  func(context.Context, string) (services.ShipmentStatusResult, error)
	recoverFn func(context.Context, int) (services.HandoffRecoveryReport, error)
}

func (s *stubShipmentService) FetchRates(ctx context.Context, cmd services.FetchRatesCommand) (services.RateQuote, error) {
	return s.ratesFn(ctx, cmd)
}

func (s *stubShipmentService) SubmitShipment(ctx context.Context, cmd services.SubmitShipmentCommand) (services.CarrierShipment, error) {
	return s.submitFn(ctx, cmd)
}

func (s *stubShipmentService) PayShipment(ctx context.Context, cmd services.PayShipmentCommand) (services.CarrierShipment, error) {
	return s.payFn(ctx, cmd)
}

func (s *stubShipmentService) ShipmentStatus(ctx context.Context, returnID string) (services.ShipmentStatusResult, error) {
	return s.statusFn(ctx, returnID)
}

func (s *stubShipmentService) RecoverHandoffs(ctx context.Context, limit int) (services.HandoffRecoveryReport, error) {
	if s.recoverFn == nil {
		return services.HandoffRecoveryReport{}, nil
	}
	return s.recoverFn(ctx, limit)
}

func newShippingRouter(svc services.CarrierShipmentService) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1/return-requests", NewShippingHandlers(svc).Routes)
	return r
}

func TestShippingHandlers_FetchRates(t *testing.T) {
	var captured services.FetchRatesCommand
	svc := &stubShipmentService{
		ratesFn: func(_ context.Context, cmd services.FetchRatesCommand) (services.RateQuote, error) {
			captured = cmd
			return services.RateQuote{
				Rates: []services.CarrierRate{{
					ServiceID:   "EP-CS0I",
					ServiceName: "Pickup Parcel",
					CourierID:   "EP-CR0A",
					CourierName: "J&T Express",
					Price:       decimal.RequireFromString("7.50"),
				}},
				Weight:           decimal.RequireFromString("1.2"),
				CustomerAddress:  services.Address{Name: "Aina Rahman", PostalCode: "50450", Country: "MY"},
				WarehouseAddress: services.Address{Name: "Returns Desk", PostalCode: "47301", Country: "MY"},
			}, nil
		},
	}
	router := newShippingRouter(svc)

	rr := doJSON(t, router, http.MethodPost, "/api/v1/return-requests/ret_01/shipping/rates", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "ret_01", captured.ReturnID)
	assert.True(t, captured.Weight.IsZero())

	body := decodeBody(t, rr)
	assert.Equal(t, "1.2", body["weight"])
	rates := body["rates"].([]any)
	require.Len(t, rates, 1)
	assert.Equal(t, "7.5", rates[0].(map[string]any)["price"])
	assert.Equal(t, "50450", body["customer_address"].(map[string]any)["postal_code"])

	rr = doJSON(t, router, http.MethodPost, "/api/v1/return-requests/ret_01/shipping/rates", `{"weight":"2.5"}`, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, captured.Weight.Equal(decimal.RequireFromString("2.5")))
}

func TestShippingHandlers_FetchRatesErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrCarrierAddressMissing, http.StatusBadRequest, "invalid_request"},
		{services.ErrCarrierWarehouseMissing, http.StatusBadRequest, "warehouse_not_configured"},
		{&services.CarrierError{Operation: "rates", Remark: "Invalid postcode"}, http.StatusBadGateway, "carrier_error"},
	}
	for _, tc := range cases {
		svc := &stubShipmentService{
			ratesFn: func(context.Context, services.FetchRatesCommand) (services.RateQuote, error) {
				return services.RateQuote{}, tc.err
			},
		}
		rr := doJSON(t, newShippingRouter(svc), http.MethodPost, "/api/v1/return-requests/ret_01/shipping/rates", "", nil)
		assert.Equal(t, tc.status, rr.Code)
		body := decodeBody(t, rr)
		assert.Equal(t, tc.code, body["error"])
		assert.Contains(t, body["message"], tc.err.Error())
	}
}

func TestShippingHandlers_Submit(t *testing.T) {
	var captured services.SubmitShipmentCommand
	svc := &stubShipmentService{
		submitFn: func(_ context.Context, cmd services.SubmitShipmentCommand) (services.CarrierShipment, error) {
			captured = cmd
			return services.CarrierShipment{ID: "shp_01", ReturnID: cmd.ReturnID, OrderNo: "EI-ABC123"}, nil
		},
	}
	body := `{"service_id":"EP-CS0I","courier_id":"EP-CR0A","courier_name":"J&T Express","weight":"1.2","rate":"7.50","pickup_date":"2024-05-12","pickup_time":"09:00"}`
	rr := doJSON(t, newShippingRouter(svc), http.MethodPost, "/api/v1/return-requests/ret_01/shipping/submit", body, nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "ret_01", captured.ReturnID)
	assert.Equal(t, "2024-05-12", captured.PickupDate)
	assert.True(t, captured.Rate.Equal(decimal.RequireFromString("7.5")))
	resp := decodeBody(t, rr)
	assert.Equal(t, "EI-ABC123", resp["order_no"])
	assert.Equal(t, "shp_01", resp["easyparcel_return_id"])
}

func TestShippingHandlers_SubmitValidation(t *testing.T) {
	svc := &stubShipmentService{
		submitFn: func(context.Context, services.SubmitShipmentCommand) (services.CarrierShipment, error) {
			t.Fatalf("service must not be called")
			return services.CarrierShipment{}, nil
		},
	}
	router := newShippingRouter(svc)

	for name, body := range map[string]string{
		"missing service": `{"courier_id":"EP-CR0A","pickup_date":"2024-05-12"}`,
		"bad date":        `{"service_id":"EP-CS0I","courier_id":"EP-CR0A","pickup_date":"12/05/2024"}`,
		"empty":           ``,
	} {
		t.Run(name, func(t *testing.T) {
			rr := doJSON(t, router, http.MethodPost, "/api/v1/return-requests/ret_01/shipping/submit", body, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}
}

func TestShippingHandlers_SubmitAlreadySubmitted(t *testing.T) {
	svc := &stubShipmentService{
		submitFn: func(context.Context, services.SubmitShipmentCommand) (services.CarrierShipment, error) {
			return services.CarrierShipment{}, &services.AlreadySubmittedError{OrderNo: "EI-ABC123"}
		},
	}
	body := `{"service_id":"EP-CS0I","courier_id":"EP-CR0A","pickup_date":"2024-05-12"}`
	rr := doJSON(t, newShippingRouter(svc), http.MethodPost, "/api/v1/return-requests/ret_01/shipping/submit", body, nil)

	assert.Equal(t, http.StatusConflict, rr.Code)
	resp := decodeBody(t, rr)
	assert.Equal(t, "already_submitted", resp["error"])
	assert.Equal(t, "EI-ABC123", resp["order_no"])
}

func TestShippingHandlers_Pay(t *testing.T) {
	paidAt := time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	svc := &stubShipmentService{
		payFn: func(_ context.Context, cmd services.PayShipmentCommand) (services.CarrierShipment, error) {
			require.Equal(t, "ret_01", cmd.ReturnID)
			return services.CarrierShipment{
				ReturnID:    "ret_01",
				OrderNo:     "EI-ABC123",
				ParcelNo:    "EP-PQ1",
				AWB:         "631234567890",
				TrackingURL: "https://track.example/631234567890",
				Status:      domain.CarrierShipmentPaid,
				Sandbox:     true,
				PaidAt:      &paidAt,
			}, nil
		},
	}
	rr := doJSON(t, newShippingRouter(svc), http.MethodPost, "/api/v1/return-requests/ret_01/shipping/pay", "", nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decodeBody(t, rr)
	assert.Equal(t, "631234567890", resp["awb"])
	assert.Equal(t, true, resp["sandbox"])
	assert.Equal(t, false, resp["handoff_pending"])
}

func TestShippingHandlers_PayErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: balance 1.20", services.ErrInsufficientCarrierCredit), http.StatusPaymentRequired, "insufficient_carrier_credit"},
		{&services.CarrierError{Operation: "pay", Remark: "Order not found"}, http.StatusBadGateway, "carrier_error"},
		{services.ErrCarrierNotSubmitted, http.StatusConflict, "not_submitted"},
		{services.ErrCarrierShipmentNotFound, http.StatusNotFound, "shipment_not_found"},
		{errors.New("unexpected"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		svc := &stubShipmentService{
			payFn: func(context.Context, services.PayShipmentCommand) (services.CarrierShipment, error) {
				return services.CarrierShipment{}, tc.err
			},
		}
		rr := doJSON(t, newShippingRouter(svc), http.MethodPost, "/api/v1/return-requests/ret_01/shipping/pay", "", nil)
		assert.Equal(t, tc.status, rr.Code, tc.err.Error())
		assert.Equal(t, tc.code, decodeBody(t, rr)["error"])
	}
}

func TestShippingHandlers_Status(t *testing.T) {
	createdAt := time.Date(2024, 5, 11, 10, 0, 0, 0, time.UTC)
	svc := &stubShipmentService{
		statusFn: func(_ context.Context, returnID string) (services.ShipmentStatusResult, error) {
			if returnID == "ret_none" {
				return services.ShipmentStatusResult{}, nil
			}
			return services.ShipmentStatusResult{
				HasShipment: true,
				Shipment: &services.CarrierShipment{
					ID:        "shp_01",
					ReturnID:  returnID,
					OrderNo:   "EI-ABC123",
					Status:    domain.CarrierShipmentOrderCreated,
					Weight:    decimal.RequireFromString("1.2"),
					CreatedAt: createdAt,
					UpdatedAt: createdAt,
				},
			}, nil
		},
	}
	router := newShippingRouter(svc)

	rr := doJSON(t, router, http.MethodGet, "/api/v1/return-requests/ret_01/shipping/status", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeBody(t, rr)
	assert.Equal(t, true, resp["has_easyparcel_shipping"])
	shipping := resp["shipping"].(map[string]any)
	assert.Equal(t, "order_created", shipping["status"])
	assert.Equal(t, "2024-05-11T10:00:00Z", shipping["created_at"])

	rr = doJSON(t, router, http.MethodGet, "/api/v1/return-requests/ret_none/shipping/status", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp = decodeBody(t, rr)
	assert.Equal(t, false, resp["has_easyparcel_shipping"])
	_, present := resp["shipping"]
	assert.False(t, present)
}

func TestShippingHandlers_Unavailable(t *testing.T) {
	rr := doJSON(t, newShippingRouter(nil), http.MethodPost, "/api/v1/return-requests/ret_01/shipping/pay", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
