package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hanko-field/returns/internal/platform/requestctx"
	"github.com/hanko-field/returns/internal/services"
)

type ratesRequest struct {
	Weight *decimal.Decimal `json:"weight,omitempty"`
}

type submitShipmentRequest struct {
	ServiceID   string          `json:"service_id" validate:"required,max=128"`
	ServiceName string          `json:"service_name" validate:"max=256"`
	CourierID   string          `json:"courier_id" validate:"required,max=128"`
	CourierName string          `json:"courier_name" validate:"max=256"`
	Weight      decimal.Decimal `json:"weight"`
	Rate        decimal.Decimal `json:"rate"`
	PickupDate  string          `json:"pickup_date" validate:"required,datetime=2006-01-02"`
	PickupTime  string          `json:"pickup_time" validate:"max=32"`
	Content     string          `json:"content" validate:"max=256"`
}

type addressPayload struct {
	Name       string `json:"name"`
	Company    string `json:"company,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type ratePayload struct {
	ServiceID    string          `json:"service_id"`
	ServiceName  string          `json:"service_name"`
	ServiceType  string          `json:"service_type,omitempty"`
	CourierID    string          `json:"courier_id"`
	CourierName  string          `json:"courier_name"`
	CourierLogo  string          `json:"courier_logo,omitempty"`
	Price        decimal.Decimal `json:"price"`
	PickupDate   string          `json:"pickup_date,omitempty"`
	DeliveryTime string          `json:"delivery_time,omitempty"`
}

type ratesResponse struct {
	Rates            []ratePayload   `json:"rates"`
	Weight           decimal.Decimal `json:"weight"`
	CustomerAddress  addressPayload  `json:"customer_address"`
	WarehouseAddress addressPayload  `json:"warehouse_address"`
}

type submitShipmentResponse struct {
	OrderNo            string `json:"order_no"`
	EasyParcelReturnID string `json:"easyparcel_return_id"`
}

type payShipmentResponse struct {
	OrderNo        string `json:"order_no"`
	ParcelNo       string `json:"parcel_no"`
	AWB            string `json:"awb"`
	TrackingURL    string `json:"tracking_url"`
	Sandbox        bool   `json:"sandbox"`
	HandoffPending bool   `json:"handoff_pending"`
}

type shipmentPayload struct {
	ID             string          `json:"id"`
	ReturnID       string          `json:"return_id"`
	Status         string          `json:"status"`
	OrderNo        string          `json:"order_no"`
	ParcelNo       string          `json:"parcel_no,omitempty"`
	AWB            string          `json:"awb,omitempty"`
	TrackingURL    string          `json:"tracking_url,omitempty"`
	ServiceID      string          `json:"service_id"`
	ServiceName    string          `json:"service_name,omitempty"`
	CourierID      string          `json:"courier_id"`
	CourierName    string          `json:"courier_name,omitempty"`
	Weight         decimal.Decimal `json:"weight"`
	Rate           decimal.Decimal `json:"rate"`
	PickupDate     string          `json:"pickup_date"`
	PickupTime     string          `json:"pickup_time,omitempty"`
	Content        string          `json:"content,omitempty"`
	HandoffPending bool            `json:"handoff_pending"`
	Sandbox        bool            `json:"sandbox"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
	PaidAt         *string         `json:"paid_at,omitempty"`
}

type shipmentStatusResponse struct {
	HasEasyParcelShipping bool             `json:"has_easyparcel_shipping"`
	Shipping              *shipmentPayload `json:"shipping,omitempty"`
}

// ShippingHandlers exposes the carrier booking endpoints for a return.
type ShippingHandlers struct {
	shipments services.CarrierShipmentService
	validate  *payloadValidator
}

// NewShippingHandlers constructs the shipping handlers.
func NewShippingHandlers(shipments services.CarrierShipmentService) *ShippingHandlers {
	return &ShippingHandlers{shipments: shipments, validate: newPayloadValidator()}
}

// Routes registers the /return-requests/{returnID}/shipping endpoints.
func (h *ShippingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/{returnID}/shipping", func(sr chi.Router) {
		sr.Post("/rates", h.fetchRates)
		sr.Post("/submit", h.submitShipment)
		sr.Post("/pay", h.payShipment)
		sr.Get("/status", h.shipmentStatus)
	})
}

func (h *ShippingHandlers) fetchRates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		writeServiceUnavailable(ctx, w, "shipping")
		return
	}
	returnID, ok := returnIDParam(w, r)
	if !ok {
		return
	}
	var req ratesRequest
	if err := decodeJSONBody(r, &req, false); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	cmd := services.FetchRatesCommand{ReturnID: returnID}
	if req.Weight != nil {
		cmd.Weight = *req.Weight
	}
	quote, err := h.shipments.FetchRates(ctx, cmd)
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	rates := make([]ratePayload, 0, len(quote.Rates))
	for _, rate := range quote.Rates {
		rates = append(rates, ratePayload{
			ServiceID:    rate.ServiceID,
			ServiceName:  rate.ServiceName,
			ServiceType:  rate.ServiceType,
			CourierID:    rate.CourierID,
			CourierName:  rate.CourierName,
			CourierLogo:  rate.CourierLogo,
			Price:        rate.Price,
			PickupDate:   rate.PickupDate,
			DeliveryTime: rate.DeliveryTime,
		})
	}
	writeJSONResponse(w, http.StatusOK, ratesResponse{
		Rates:            rates,
		Weight:           quote.Weight,
		CustomerAddress:  buildAddressPayload(quote.CustomerAddress),
		WarehouseAddress: buildAddressPayload(quote.WarehouseAddress),
	})
}

func (h *ShippingHandlers) submitShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		writeServiceUnavailable(ctx, w, "shipping")
		return
	}
	returnID, ok := returnIDParam(w, r)
	if !ok {
		return
	}
	var req submitShipmentRequest
	if err := decodeJSONBody(r, &req, true); err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	if err := h.validate.Check(&req); err != nil {
		writeReturnError(ctx, w, wrapInvalidInput(err))
		return
	}
	shipment, err := h.shipments.SubmitShipment(ctx, services.SubmitShipmentCommand{
		ReturnID:    returnID,
		ServiceID:   req.ServiceID,
		ServiceName: req.ServiceName,
		CourierID:   req.CourierID,
		CourierName: req.CourierName,
		Weight:      req.Weight,
		Rate:        req.Rate,
		PickupDate:  req.PickupDate,
		PickupTime:  req.PickupTime,
		Content:     req.Content,
		ActorID:     requestctx.Actor(ctx),
	})
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, submitShipmentResponse{
		OrderNo:            shipment.OrderNo,
		EasyParcelReturnID: shipment.ID,
	})
}

func (h *ShippingHandlers) payShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		writeServiceUnavailable(ctx, w, "shipping")
		return
	}
	returnID, ok := returnIDParam(w, r)
	if !ok {
		return
	}
	shipment, err := h.shipments.PayShipment(ctx, services.PayShipmentCommand{
		ReturnID: returnID,
		ActorID:  requestctx.Actor(ctx),
	})
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, payShipmentResponse{
		OrderNo:        shipment.OrderNo,
		ParcelNo:       shipment.ParcelNo,
		AWB:            shipment.AWB,
		TrackingURL:    shipment.TrackingURL,
		Sandbox:        shipment.Sandbox,
		HandoffPending: shipment.HandoffPending,
	})
}

func (h *ShippingHandlers) shipmentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipments == nil {
		writeServiceUnavailable(ctx, w, "shipping")
		return
	}
	returnID, ok := returnIDParam(w, r)
	if !ok {
		return
	}
	result, err := h.shipments.ShipmentStatus(ctx, returnID)
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	resp := shipmentStatusResponse{HasEasyParcelShipping: result.HasShipment}
	if result.Shipment != nil {
		payload := buildShipmentPayload(*result.Shipment)
		resp.Shipping = &payload
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func buildAddressPayload(addr services.Address) addressPayload {
	return addressPayload{
		Name:       addr.Name,
		Company:    addr.Company,
		Phone:      addr.Phone,
		Email:      addr.Email,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func buildShipmentPayload(s services.CarrierShipment) shipmentPayload {
	return shipmentPayload{
		ID:             s.ID,
		ReturnID:       s.ReturnID,
		Status:         string(s.Status),
		OrderNo:        s.OrderNo,
		ParcelNo:       s.ParcelNo,
		AWB:            s.AWB,
		TrackingURL:    s.TrackingURL,
		ServiceID:      s.ServiceID,
		ServiceName:    s.ServiceName,
		CourierID:      s.CourierID,
		CourierName:    s.CourierName,
		Weight:         s.Weight,
		Rate:           s.Rate,
		PickupDate:     s.PickupDate,
		PickupTime:     s.PickupTime,
		Content:        s.Content,
		HandoffPending: s.HandoffPending,
		Sandbox:        s.Sandbox,
		CreatedAt:      formatTime(s.CreatedAt),
		UpdatedAt:      formatTime(s.UpdatedAt),
		PaidAt:         formatTimePointer(s.PaidAt),
	}
}
