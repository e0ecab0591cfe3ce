package carrier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/returns/internal/domain"
)

type capturedRequest struct {
	action string
	form   url.Values
}

func newTestClient(t *testing.T, body string, status int) (*Client, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.action = r.URL.Query().Get("ac")
		raw, _ := io.ReadAll(r.Body)
		captured.form, _ = url.ParseQuery(string(raw))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "ep-key"})
	require.NoError(t, err)
	return client, captured
}

func TestCheckRates(t *testing.T) {
	client, captured := newTestClient(t, `{
		"api_status": "Success",
		"error_code": "0",
		"error_remark": "",
		"result": [{
			"status": "Success",
			"remarks": "",
			"rates": [
				{"service_id": "EP-CS0WO", "service_name": "Poslaju Next Day", "service_type": "parcel", "courier_id": "EP-CR0M", "courier_name": "Poslaju", "price": "7.50", "pickup_date": "2025-03-04", "delivery": "1 working day"},
				{"service_id": "EP-CS0XA", "service_name": "J&T Drop Off", "service_type": "dropoff", "courier_id": 12, "courier_name": "J&T", "price": 5.2}
			]
		}]
	}`, http.StatusOK)

	rates, err := client.CheckRates(context.Background(), domain.CarrierRateQuery{
		PickupPostcode:   "50450",
		PickupState:      "kul",
		PickupCountry:    "Malaysia",
		DeliveryPostcode: "47810",
		DeliveryState:    "sgr",
		DeliveryCountry:  "MY",
		Weight:           decimal.RequireFromString("1.5"),
	})
	require.NoError(t, err)

	assert.Equal(t, "EPRateCheckingBulk", captured.action)
	assert.Equal(t, "ep-key", captured.form.Get("api"))
	assert.Equal(t, "50450", captured.form.Get("bulk[0][pick_code]"))
	assert.Equal(t, "MY", captured.form.Get("bulk[0][pick_country]"))
	assert.Equal(t, "47810", captured.form.Get("bulk[0][send_code]"))
	assert.Equal(t, "1.50", captured.form.Get("bulk[0][weight]"))

	require.Len(t, rates, 2)
	assert.Equal(t, "EP-CS0WO", rates[0].ServiceID)
	assert.True(t, rates[0].Price.Equal(decimal.RequireFromString("7.50")))
	assert.Equal(t, "1 working day", rates[0].DeliveryTime)
	assert.Equal(t, "12", rates[1].CourierID)
	assert.True(t, rates[1].Price.Equal(decimal.RequireFromString("5.2")))
}

func TestCheckRatesEnvelopeError(t *testing.T) {
	client, _ := newTestClient(t, `{"api_status":"Error","error_code":"3","error_remark":"Invalid API Key","result":[]}`, http.StatusOK)

	_, err := client.CheckRates(context.Background(), domain.CarrierRateQuery{Weight: decimal.NewFromInt(1)})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid API Key", apiErr.Remark())
	assert.Equal(t, "3", apiErr.Code)
	assert.False(t, apiErr.InsufficientCredit())
}

func TestCheckRatesResultStatusError(t *testing.T) {
	client, _ := newTestClient(t, `{"api_status":"Success","error_code":0,"result":[{"status":"Fail","remarks":"Invalid postcode","rates":[]}]}`, http.StatusOK)

	_, err := client.CheckRates(context.Background(), domain.CarrierRateQuery{Weight: decimal.NewFromInt(1)})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid postcode", apiErr.Remark())
}

func TestSubmitOrder(t *testing.T) {
	client, captured := newTestClient(t, `{
		"api_status": "Success",
		"error_code": "0",
		"result": [{"status": "Success", "remarks": "Order Successfully Placed", "order_number": "EI-5UFAI", "price": "7.50", "courier": "Poslaju"}]
	}`, http.StatusOK)

	result, err := client.SubmitOrder(context.Background(), domain.CarrierOrderRequest{
		Reference:  "ret_1",
		ServiceID:  "EP-CS0WO",
		Weight:     decimal.RequireFromString("1.2"),
		Content:    "Returned goods",
		Value:      decimal.RequireFromString("120"),
		PickupDate: "2025-03-04",
		Sender: domain.Address{
			Name: "Aisyah", Phone: "0123456789", Line1: "12 Jalan Ampang", City: "Kuala Lumpur",
			State: "kul", PostalCode: "50450", Country: "MY",
		},
		Receiver: domain.Address{
			Name: "Returns Desk", Company: "Hanko Field", Phone: "0378901234", Line1: "Lot 5",
			City: "Petaling Jaya", State: "sgr", PostalCode: "47810", Country: "MY",
		},
		SenderEmail: "aisyah@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, "EPSubmitOrderBulk", captured.action)
	assert.Equal(t, "EP-CS0WO", captured.form.Get("bulk[0][service_id]"))
	assert.Equal(t, "Aisyah", captured.form.Get("bulk[0][pick_name]"))
	assert.Equal(t, "0123456789", captured.form.Get("bulk[0][pick_contact]"))
	assert.Equal(t, "Hanko Field", captured.form.Get("bulk[0][send_company]"))
	assert.Equal(t, "47810", captured.form.Get("bulk[0][send_code]"))
	assert.Equal(t, "2025-03-04", captured.form.Get("bulk[0][collect_date]"))
	assert.Equal(t, "120.00", captured.form.Get("bulk[0][value]"))
	assert.Equal(t, "ret_1", captured.form.Get("bulk[0][reference]"))

	assert.Equal(t, "EI-5UFAI", result.OrderNo)
	assert.Equal(t, "Poslaju", result.Courier)
}

func TestSubmitOrderRejected(t *testing.T) {
	client, _ := newTestClient(t, `{"api_status":"Success","error_code":"0","result":[{"status":"Fail","remarks":"Pickup date is a public holiday"}]}`, http.StatusOK)

	_, err := client.SubmitOrder(context.Background(), domain.CarrierOrderRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Pickup date is a public holiday", apiErr.Remark())
}

func TestPayOrder(t *testing.T) {
	client, captured := newTestClient(t, `{
		"api_status": "Success",
		"error_code": "0",
		"result": [{
			"orderno": "EI-5UFAI",
			"messagenow": "Fully Paid",
			"parcel": [{"parcelno": "EP-PA0P6H", "awb": "238770015234", "awb_id_link": "https://connect.easyparcel.my/label/1", "tracking_url": "https://track.example/238770015234"}]
		}]
	}`, http.StatusOK)

	payment, err := client.PayOrder(context.Background(), "EI-5UFAI")
	require.NoError(t, err)

	assert.Equal(t, "EPPayOrderBulk", captured.action)
	assert.Equal(t, "EI-5UFAI", captured.form.Get("bulk[0][order_no]"))
	assert.Equal(t, "EP-PA0P6H", payment.ParcelNo)
	assert.Equal(t, "238770015234", payment.AWB)
	assert.Equal(t, "https://track.example/238770015234", payment.TrackingURL)
	assert.False(t, payment.Sandbox)
}

func TestPayOrderInsufficientCredit(t *testing.T) {
	client, _ := newTestClient(t, `{"api_status":"Success","error_code":"0","result":[{"orderno":"EI-5UFAI","messagenow":"Insufficient Credit","parcel":[]}]}`, http.StatusOK)

	_, err := client.PayOrder(context.Background(), "EI-5UFAI")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.InsufficientCredit())
	assert.Equal(t, "Insufficient Credit", apiErr.Remark())
}

func TestHTTPFailure(t *testing.T) {
	client, _ := newTestClient(t, `bad gateway`, http.StatusBadGateway)

	_, err := client.PayOrder(context.Background(), "EI-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.HTTPStatus)
	assert.Equal(t, "bad gateway", apiErr.Remark())
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)

	client, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, LiveBaseURL, client.baseURL)
}

func TestPayOrderRequiresOrderNumber(t *testing.T) {
	client, err := NewClient(Config{APIKey: "k", HTTPClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("should not be called")
	})}})
	require.NoError(t, err)
	_, err = client.PayOrder(context.Background(), " ")
	require.Error(t, err)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
