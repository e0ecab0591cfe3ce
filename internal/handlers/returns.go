package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/hanko-field/returns/internal/domain"
	"github.com/hanko-field/returns/internal/platform/httpx"
	"github.com/hanko-field/returns/internal/platform/requestctx"
	"github.com/hanko-field/returns/internal/services"
)

const (
	defaultReturnPageSize = 50
	maxReturnPageSize     = 100
)

// ReturnHandlers exposes the return lifecycle and refund endpoints.
type ReturnHandlers struct {
	returns  services.ReturnService
	refunds  services.RefundService
	validate *payloadValidator
}

// NewReturnHandlers constructs the handlers. refunds may be nil, in which case the refund
// endpoint reports 503.
func NewReturnHandlers(returns services.ReturnService, refunds services.RefundService) *ReturnHandlers {
	return &ReturnHandlers{
		returns:  returns,
		refunds:  refunds,
		validate: newPayloadValidator(),
	}
}

// Routes registers the /returns endpoints.
func (h *ReturnHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createReturn)
	r.Get("/", h.listReturns)
	r.Get("/{returnID}", h.getReturn)
	r.Post("/{returnID}/approve", h.approveReturn)
	r.Post("/{returnID}/reject", h.rejectReturn)
	r.Post("/{returnID}/in-transit", h.markInTransit)
	r.Post("/{returnID}/received", h.markReceived)
	r.Post("/{returnID}/inspecting", h.markInspecting)
	r.Post("/{returnID}/complete", h.completeReturn)
	r.Post("/{returnID}/cancel", h.cancelReturn)
	r.Post("/{returnID}/refund", h.processRefund)
	r.Post("/{returnID}/replacement", h.recordReplacement)
}

func (h *ReturnHandlers) createReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeServiceUnavailable(ctx, w, "return")
		return
	}
	var req createReturnRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	ret, err := h.returns.CreateReturn(ctx, req.toCommand(requestctx.Actor(ctx)))
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	writeReturn(w, http.StatusCreated, ret)
}

func (h *ReturnHandlers) listReturns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeServiceUnavailable(ctx, w, "return")
		return
	}
	query := r.URL.Query()

	var statuses []domain.ReturnStatus
	for _, raw := range parseFilterValues(query["status"]) {
		status := domain.ReturnStatus(raw)
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("unknown status %q", raw), http.StatusBadRequest))
			return
		}
		statuses = append(statuses, status)
	}

	pageSize := defaultReturnPageSize
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case size <= 0:
			pageSize = defaultReturnPageSize
		case size > maxReturnPageSize:
			pageSize = maxReturnPageSize
		default:
			pageSize = size
		}
	}

	page, err := h.returns.ListReturns(ctx, services.ReturnListFilter{
		Statuses:   statuses,
		OrderID:    strings.TrimSpace(query.Get("order_id")),
		CustomerID: strings.TrimSpace(query.Get("customer_id")),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}

	items := make([]returnPayload, 0, len(page.Items))
	for _, ret := range page.Items {
		items = append(items, buildReturnPayload(ret))
	}
	writeJSONResponse(w, http.StatusOK, returnListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *ReturnHandlers) getReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeServiceUnavailable(ctx, w, "return")
		return
	}
	returnID, ok := returnIDParam(w, r)
	if !ok {
		return
	}
	ret, err := h.returns.GetReturn(ctx, returnID)
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	writeReturn(w, http.StatusOK, ret)
}

func (h *ReturnHandlers) approveReturn(w http.ResponseWriter, r *http.Request) {
	var req approveReturnRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	h.transition(w, r, services.TransitionReturnCommand{
		Event:      services.ReturnEventApprove,
		AdminNotes: req.AdminNotes,
	}, req.Version)
}

func (h *ReturnHandlers) rejectReturn(w http.ResponseWriter, r *http.Request) {
	var req rejectReturnRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	h.transition(w, r, services.TransitionReturnCommand{
		Event:  services.ReturnEventReject,
		Reason: req.Reason,
	}, req.Version)
}

func (h *ReturnHandlers) markInTransit(w http.ResponseWriter, r *http.Request) {
	var req inTransitRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	h.transition(w, r, services.TransitionReturnCommand{
		Event:          services.ReturnEventShip,
		Courier:        req.Courier,
		TrackingNumber: req.TrackingNumber,
	}, req.Version)
}

func (h *ReturnHandlers) markReceived(w http.ResponseWriter, r *http.Request) {
	var req versionOnlyRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	h.transition(w, r, services.TransitionReturnCommand{Event: services.ReturnEventReceive}, req.Version)
}

func (h *ReturnHandlers) markInspecting(w http.ResponseWriter, r *http.Request) {
	var req versionOnlyRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	h.transition(w, r, services.TransitionReturnCommand{Event: services.ReturnEventInspect}, req.Version)
}

func (h *ReturnHandlers) completeReturn(w http.ResponseWriter, r *http.Request) {
	var req completeReturnRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	h.transition(w, r, services.TransitionReturnCommand{
		Event:      services.ReturnEventComplete,
		AdminNotes: req.AdminNotes,
	}, req.Version)
}

func (h *ReturnHandlers) cancelReturn(w http.ResponseWriter, r *http.Request) {
	var req cancelReturnRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	h.transition(w, r, services.TransitionReturnCommand{
		Event:  services.ReturnEventCancel,
		Reason: req.Reason,
	}, req.Version)
}

func (h *ReturnHandlers) transition(w http.ResponseWriter, r *http.Request, cmd services.TransitionReturnCommand, bodyVersion *int64) {
	ctx := r.Context()
	if h.returns == nil {
		writeServiceUnavailable(ctx, w, "return")
		return
	}
	returnID, ok := returnIDParam(w, r)
	if !ok {
		return
	}
	version, ok := expectedVersion(w, r, bodyVersion)
	if !ok {
		return
	}
	cmd.ReturnID = returnID
	cmd.ExpectedVersion = version
	cmd.ActorID = requestctx.Actor(ctx)

	ret, err := h.returns.Transition(ctx, cmd)
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	writeReturn(w, http.StatusOK, ret)
}

func (h *ReturnHandlers) processRefund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.refunds == nil {
		writeServiceUnavailable(ctx, w, "refund")
		return
	}
	returnID, ok := returnIDParam(w, r)
	if !ok {
		return
	}
	outcome, err := h.refunds.ProcessRefund(ctx, services.ProcessRefundCommand{
		ReturnID: returnID,
		ActorID:  requestctx.Actor(ctx),
	})
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	w.Header().Set("ETag", formatETag(outcome.Return.Version))
	writeJSONResponse(w, http.StatusOK, buildRefundResponse(outcome))
}

func (h *ReturnHandlers) recordReplacement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.returns == nil {
		writeServiceUnavailable(ctx, w, "return")
		return
	}
	returnID, ok := returnIDParam(w, r)
	if !ok {
		return
	}
	var req replacementRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	version, ok := expectedVersion(w, r, req.Version)
	if !ok {
		return
	}
	ret, err := h.returns.RecordReplacement(ctx, services.RecordReplacementCommand{
		ReturnID:           returnID,
		ReplacementOrderID: req.ReplacementOrderID,
		ExpectedVersion:    version,
		ActorID:            requestctx.Actor(ctx),
	})
	if err != nil {
		writeReturnError(ctx, w, err)
		return
	}
	writeReturn(w, http.StatusOK, ret)
}

// decode reads and validates the JSON body, writing the error response itself on failure.
func (h *ReturnHandlers) decode(w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	ctx := r.Context()
	if err := decodeJSONBody(r, dst, required); err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := h.validate.Check(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	return true
}

func returnIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	returnID := strings.TrimSpace(chi.URLParam(r, "returnID"))
	if returnID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "return id is required", http.StatusBadRequest))
		return "", false
	}
	return returnID, true
}

// expectedVersion resolves the optimistic concurrency precondition. If-Match wins over the body
// version; both must agree when supplied together.
func expectedVersion(w http.ResponseWriter, r *http.Request, bodyVersion *int64) (*int64, bool) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return bodyVersion, true
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version <= 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "If-Match must carry a positive version", http.StatusBadRequest))
		return nil, false
	}
	if bodyVersion != nil && *bodyVersion != version {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "If-Match and body version disagree", http.StatusBadRequest))
		return nil, false
	}
	return &version, true
}

func formatETag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

func writeReturn(w http.ResponseWriter, status int, ret services.ReturnRequest) {
	w.Header().Set("ETag", formatETag(ret.Version))
	writeJSONResponse(w, status, returnResponse{Return: buildReturnPayload(ret)})
}

func parseFilterValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	filters := make([]string, 0, len(values))
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			trimmed := strings.ToLower(strings.TrimSpace(part))
			if trimmed == "" {
				continue
			}
			if _, exists := seen[trimmed]; exists {
				continue
			}
			seen[trimmed] = struct{}{}
			filters = append(filters, trimmed)
		}
	}
	return filters
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}
