// Package carrier talks to the EasyParcel bulk API used to book return-leg shipments.
package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/returns/internal/domain"
)

const (
	// LiveBaseURL is the production EasyParcel endpoint.
	LiveBaseURL = "https://connect.easyparcel.my/"
	// SandboxBaseURL is the EasyParcel demo endpoint.
	SandboxBaseURL = "https://demo.connect.easyparcel.my/"

	defaultTimeout = 15 * time.Second

	actionRateCheck   = "EPRateCheckingBulk"
	actionSubmitOrder = "EPSubmitOrderBulk"
	actionPayOrder    = "EPPayOrderBulk"

	statusSuccess = "Success"
)

// Logger receives structured client events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Config configures the live client.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     Logger
}

// Client issues form-encoded bulk calls against the carrier API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  Logger
}

// NewClient constructs a live carrier client.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("carrier: api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = LiveBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("carrier: invalid base url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    httpClient,
		logger:  logger,
	}, nil
}

// CheckRates quotes every service the carrier offers for the lane and weight.
func (c *Client) CheckRates(ctx context.Context, query domain.CarrierRateQuery) ([]domain.CarrierRate, error) {
	form := bulkForm{}
	form.set("pick_code", query.PickupPostcode)
	form.set("pick_state", query.PickupState)
	form.set("pick_country", countryCode(query.PickupCountry))
	form.set("send_code", query.DeliveryPostcode)
	form.set("send_state", query.DeliveryState)
	form.set("send_country", countryCode(query.DeliveryCountry))
	form.set("weight", query.Weight.StringFixed(2))

	var results []rateResult
	if err := c.call(ctx, actionRateCheck, form, &results); err != nil {
		return nil, err
	}
	first, err := firstResult(actionRateCheck, results)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(first.Status, statusSuccess) {
		return nil, &APIError{Action: actionRateCheck, Message: first.Remarks}
	}

	rates := make([]domain.CarrierRate, 0, len(first.Rates))
	for _, r := range first.Rates {
		rates = append(rates, domain.CarrierRate{
			ServiceID:    r.ServiceID.String(),
			ServiceName:  r.ServiceName,
			ServiceType:  r.ServiceType,
			CourierID:    r.CourierID.String(),
			CourierName:  r.CourierName,
			CourierLogo:  r.CourierLogo,
			Price:        r.Price,
			PickupDate:   r.PickupDate,
			DeliveryTime: r.Delivery,
		})
	}
	return rates, nil
}

// SubmitOrder books a shipment and returns the carrier order number.
func (c *Client) SubmitOrder(ctx context.Context, req domain.CarrierOrderRequest) (domain.CarrierOrderResult, error) {
	form := bulkForm{}
	form.set("weight", req.Weight.StringFixed(2))
	form.set("content", req.Content)
	form.set("value", req.Value.StringFixed(2))
	form.set("service_id", req.ServiceID)
	form.setAddress("pick", req.Sender)
	form.setAddress("send", req.Receiver)
	form.set("collect_date", req.PickupDate)
	form.set("sms", "0")
	form.set("send_email", req.SenderEmail)
	form.set("reference", req.Reference)

	var results []submitResult
	if err := c.call(ctx, actionSubmitOrder, form, &results); err != nil {
		return domain.CarrierOrderResult{}, err
	}
	first, err := firstResult(actionSubmitOrder, results)
	if err != nil {
		return domain.CarrierOrderResult{}, err
	}
	if !strings.EqualFold(first.Status, statusSuccess) {
		return domain.CarrierOrderResult{}, &APIError{Action: actionSubmitOrder, Message: first.Remarks}
	}
	return domain.CarrierOrderResult{
		OrderNo: strings.TrimSpace(first.OrderNumber),
		Price:   first.Price,
		Courier: first.Courier,
		Remark:  first.Remarks,
	}, nil
}

// PayOrder pays for a booked shipment from the account credit and returns the issued AWB.
func (c *Client) PayOrder(ctx context.Context, orderNo string) (domain.CarrierPayment, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return domain.CarrierPayment{}, errors.New("carrier: order number is required")
	}
	form := bulkForm{}
	form.set("order_no", orderNo)

	var results []payResult
	if err := c.call(ctx, actionPayOrder, form, &results); err != nil {
		return domain.CarrierPayment{}, err
	}
	first, err := firstResult(actionPayOrder, results)
	if err != nil {
		return domain.CarrierPayment{}, err
	}
	if len(first.Parcels) == 0 {
		return domain.CarrierPayment{}, &APIError{Action: actionPayOrder, Message: first.Message}
	}

	parcel := first.Parcels[0]
	payment := domain.CarrierPayment{
		OrderNo:     chooseFirstNonEmpty(first.OrderNo, orderNo),
		ParcelNo:    parcel.ParcelNo,
		AWB:         parcel.AWB,
		TrackingURL: parcel.TrackingURL,
		Raw: map[string]any{
			"messagenow":  first.Message,
			"awb_id_link": parcel.AWBLink,
		},
	}
	c.logger(ctx, "carrier.easyparcel.order.paid", map[string]any{
		"orderNo": payment.OrderNo,
		"awb":     payment.AWB,
	})
	return payment, nil
}

func (c *Client) call(ctx context.Context, action string, form bulkForm, out any) error {
	if c == nil || c.http == nil {
		return errors.New("carrier: client not initialised")
	}

	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("carrier: invalid base url: %w", err)
	}
	q := endpoint.Query()
	q.Set("ac", action)
	endpoint.RawQuery = q.Encode()

	values := form.values()
	values.Set("api", c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger(ctx, "carrier.easyparcel.request.failed", map[string]any{"action": action, "error": err})
		return fmt.Errorf("carrier: %s: %w", action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{Action: action, HTTPStatus: resp.StatusCode, Message: drainError(resp.Body)}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("carrier: %s: decode response: %w", action, err)
	}
	c.logger(ctx, "carrier.easyparcel.request.completed", map[string]any{
		"action":    action,
		"apiStatus": env.APIStatus,
		"latencyMs": time.Since(start).Milliseconds(),
	})

	code := strings.TrimSpace(env.ErrorCode.String())
	if strings.EqualFold(env.APIStatus, "Error") || (code != "" && code != "0") {
		return &APIError{Action: action, Code: code, Message: env.ErrorRemark}
	}
	if len(env.Result) == 0 {
		return &APIError{Action: action, Message: "empty result"}
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("carrier: %s: decode result: %w", action, err)
	}
	return nil
}

func firstResult[T any](action string, results []T) (T, error) {
	var zero T
	if len(results) == 0 {
		return zero, &APIError{Action: action, Message: "empty result"}
	}
	return results[0], nil
}

type bulkForm map[string]string

func (f bulkForm) set(field, value string) {
	f[field] = strings.TrimSpace(value)
}

func (f bulkForm) setAddress(prefix string, addr domain.Address) {
	f.set(prefix+"_name", addr.Name)
	f.set(prefix+"_company", addr.Company)
	f.set(prefix+"_contact", addr.Phone)
	f.set(prefix+"_mobile", addr.Phone)
	f.set(prefix+"_addr1", addr.Line1)
	f.set(prefix+"_addr2", addr.Line2)
	f.set(prefix+"_city", addr.City)
	f.set(prefix+"_state", addr.State)
	f.set(prefix+"_code", addr.PostalCode)
	f.set(prefix+"_country", countryCode(addr.Country))
}

func (f bulkForm) values() url.Values {
	values := make(url.Values, len(f)+1)
	for field, value := range f {
		values.Set(fmt.Sprintf("bulk[0][%s]", field), value)
	}
	return values
}

func countryCode(country string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	switch country {
	case "", "MALAYSIA":
		return "MY"
	case "SINGAPORE":
		return "SG"
	default:
		return country
	}
}

func drainError(r io.Reader) string {
	if r == nil {
		return ""
	}
	b, _ := io.ReadAll(io.LimitReader(r, 256))
	return strings.TrimSpace(string(b))
}

func chooseFirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type envelope struct {
	APIStatus   string          `json:"api_status"`
	ErrorCode   flexString      `json:"error_code"`
	ErrorRemark string          `json:"error_remark"`
	Result      json.RawMessage `json:"result"`
}

type rateResult struct {
	Status  string     `json:"status"`
	Remarks string     `json:"remarks"`
	Rates   []rateItem `json:"rates"`
}

type rateItem struct {
	ServiceID   flexString      `json:"service_id"`
	ServiceName string          `json:"service_name"`
	ServiceType string          `json:"service_type"`
	CourierID   flexString      `json:"courier_id"`
	CourierName string          `json:"courier_name"`
	CourierLogo string          `json:"courier_logo"`
	Price       decimal.Decimal `json:"price"`
	PickupDate  string          `json:"pickup_date"`
	Delivery    string          `json:"delivery"`
}

type submitResult struct {
	Status      string          `json:"status"`
	Remarks     string          `json:"remarks"`
	OrderNumber string          `json:"order_number"`
	Price       decimal.Decimal `json:"price"`
	Courier     string          `json:"courier"`
}

type payResult struct {
	OrderNo string      `json:"orderno"`
	Message string      `json:"messagenow"`
	Parcels []payParcel `json:"parcel"`
}

type payParcel struct {
	ParcelNo    string `json:"parcelno"`
	AWB         string `json:"awb"`
	AWBLink     string `json:"awb_id_link"`
	TrackingURL string `json:"tracking_url"`
}

// flexString accepts JSON strings and numbers; the carrier mixes both for identifiers and codes.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(trimmed)
	return nil
}

func (f flexString) String() string {
	return string(f)
}
