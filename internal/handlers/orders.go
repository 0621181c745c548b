package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/storelane/fulfillment/internal/domain"
	"github.com/storelane/fulfillment/internal/platform/httpx"
	"github.com/storelane/fulfillment/internal/platform/requestctx"
	"github.com/storelane/fulfillment/internal/services"
)

const (
	defaultOrderListLimit = 20
	maxOrderListLimit     = 100
	maxOrderBodySize      = 16 * 1024
)

type placeOrderRequest struct {
	Items []cartLinePayload `json:"items"`
}

type cartLinePayload struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type requestReturnPayload struct {
	ProductID string `json:"productId"`
	Reason    string `json:"reason"`
}

type placeOrderResponse struct {
	OrderID      string           `json:"orderId"`
	PaymentID    string           `json:"paymentId,omitempty"`
	ShipmentID   string           `json:"shipmentId,omitempty"`
	TrackingCode string           `json:"trackingCode,omitempty"`
	TotalCents   int64            `json:"totalCents"`
	CurrencyCode string           `json:"currencyCode"`
	Outcome      string           `json:"outcome"`
	Warnings     []warningPayload `json:"warnings,omitempty"`
}

type warningPayload struct {
	Step      string `json:"step"`
	ProductID string `json:"productId,omitempty"`
	Message   string `json:"message"`
}

type orderPayload struct {
	ID           string             `json:"id"`
	CurrencyCode string             `json:"currencyCode"`
	TotalCents   int64              `json:"totalCents"`
	CreatedAt    time.Time          `json:"createdAt"`
	Items        []orderItemPayload `json:"items,omitempty"`
	Payment      *paymentPayload    `json:"payment,omitempty"`
	Shipment     *shipmentPayload   `json:"shipment,omitempty"`
}

type paymentPayload struct {
	ID          string    `json:"id"`
	AmountCents int64     `json:"amountCents"`
	Status      string    `json:"status"`
	PaidAt      time.Time `json:"paidAt"`
}

type orderItemPayload struct {
	ProductID      string `json:"productId"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	SubtotalCents  int64  `json:"subtotalCents"`
}

type returnPayload struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"orderId"`
	ProductID   string    `json:"productId"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	RefundCents int64     `json:"refundCents"`
	RequestedAt time.Time `json:"requestedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// OrderHandlers exposes the order placement, order read, and return endpoints.
type OrderHandlers struct {
	fulfillment services.FulfillmentService
	orders      services.OrderService
	returns     services.ReturnService
	customers   services.CustomerService
	payments    services.PaymentService
	shipments   services.ShipmentService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(
	fulfillment services.FulfillmentService,
	orders services.OrderService,
	returns services.ReturnService,
	customers services.CustomerService,
	payments services.PaymentService,
	shipments services.ShipmentService,
) *OrderHandlers {
	return &OrderHandlers{
		fulfillment: fulfillment,
		orders:      orders,
		returns:     returns,
		customers:   customers,
		payments:    payments,
		shipments:   shipments,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}/returns", h.requestReturn)
	r.Get("/{orderID}/returns/latest", h.latestReturn)
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := requestctx.Principal(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	var body placeOrderRequest
	if err := decodeJSONBody(w, r, &body); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	lines := make([]services.CartLine, 0, len(body.Items))
	for _, item := range body.Items {
		lines = append(lines, services.CartLine{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	result, err := h.fulfillment.PlaceOrder(ctx, services.PlaceOrderCommand{
		PrincipalID: principal,
		Lines:       lines,
	})
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}

	warnings := make([]warningPayload, 0, len(result.Warnings))
	for _, warning := range result.Warnings {
		warnings = append(warnings, warningPayload{
			Step:      warning.Step,
			ProductID: warning.ProductID,
			Message:   warning.Message,
		})
	}
	httpx.WriteJSON(w, http.StatusCreated, placeOrderResponse{
		OrderID:      result.OrderID,
		PaymentID:    result.PaymentID,
		ShipmentID:   result.ShipmentID,
		TrackingCode: result.TrackingCode,
		TotalCents:   result.TotalCents,
		CurrencyCode: result.CurrencyCode,
		Outcome:      string(result.Outcome),
		Warnings:     warnings,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customer, ok := h.resolveCustomer(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	if order.CustomerID != customer.ID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	payload := buildOrderPayload(order)
	// Payment and shipment may legitimately be absent: an order placed while
	// the ledger was down has neither, and one that failed at the shipment
	// step has only a payment.
	if payment, err := h.payments.GetByOrder(ctx, orderID); err == nil {
		payload.Payment = &paymentPayload{
			ID:          payment.ID,
			AmountCents: payment.AmountCents,
			Status:      string(payment.Status),
			PaidAt:      payment.PaidAt,
		}
	} else if !errors.Is(err, services.ErrPaymentNotFound) {
		writeFulfillmentError(ctx, w, err)
		return
	}
	if shipment, err := h.shipments.GetByOrder(ctx, orderID); err == nil {
		payload.Shipment = &shipmentPayload{
			ID:           shipment.ID,
			OrderID:      shipment.OrderID,
			TrackingCode: shipment.TrackingCode,
			Status:       string(shipment.Status),
			CreatedAt:    shipment.CreatedAt,
			DeliveredAt:  shipment.DeliveredAt,
		}
	} else if !errors.Is(err, services.ErrShipmentNotFound) {
		writeFulfillmentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customer, ok := h.resolveCustomer(ctx, w)
	if !ok {
		return
	}

	limit := defaultOrderListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case parsed <= 0:
			limit = defaultOrderListLimit
		case parsed > maxOrderListLimit:
			limit = maxOrderListLimit
		default:
			limit = parsed
		}
	}

	orders, err := h.orders.ListByCustomer(ctx, customer.ID, limit)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *OrderHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customer, ok := h.resolveCustomer(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if !h.ownsOrder(ctx, w, customer, orderID) {
		return
	}

	var body requestReturnPayload
	if err := decodeJSONBody(w, r, &body); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	request, err := h.returns.RequestReturn(ctx, services.RequestReturnCommand{
		OrderID:   orderID,
		ProductID: strings.TrimSpace(body.ProductID),
		Reason:    body.Reason,
	})
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildReturnPayload(request))
}

func (h *OrderHandlers) latestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customer, ok := h.resolveCustomer(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	productID := strings.TrimSpace(r.URL.Query().Get("productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId query parameter is required", http.StatusBadRequest))
		return
	}
	if !h.ownsOrder(ctx, w, customer, orderID) {
		return
	}

	request, err := h.returns.GetLatestReturnStatus(ctx, orderID, productID)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildReturnPayload(request))
}

func (h *OrderHandlers) resolveCustomer(ctx context.Context, w http.ResponseWriter) (domain.Customer, bool) {
	principal, ok := requestctx.Principal(ctx)
	if !ok {
		writeUnauthenticated(ctx, w)
		return domain.Customer{}, false
	}
	customer, err := h.customers.ResolveByPrincipal(ctx, principal)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return domain.Customer{}, false
	}
	return customer, true
}

// ownsOrder hides other customers' orders behind a plain not-found.
func (h *OrderHandlers) ownsOrder(ctx context.Context, w http.ResponseWriter, customer domain.Customer, orderID string) bool {
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return false
	}
	if order.CustomerID != customer.ID {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return false
	}
	return true
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			SubtotalCents:  item.SubtotalCents,
		})
	}
	return orderPayload{
		ID:           order.ID,
		CurrencyCode: order.CurrencyCode,
		TotalCents:   order.TotalCents,
		CreatedAt:    order.CreatedAt,
		Items:        items,
	}
}

func buildReturnPayload(request domain.ReturnRequest) returnPayload {
	return returnPayload{
		ID:          request.ID,
		OrderID:     request.OrderID,
		ProductID:   request.ProductID,
		Status:      string(request.Status),
		Reason:      request.Reason,
		RefundCents: request.RefundCents,
		RequestedAt: request.RequestedAt,
		UpdatedAt:   request.UpdatedAt,
	}
}

func writeUnauthenticated(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxOrderBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errors.New("request body must be valid JSON")
	}
	return nil
}

// writeFulfillmentError maps service errors onto the API error envelope.
func writeFulfillmentError(ctx context.Context, w http.ResponseWriter, err error) {
	var stockErr *services.StockUnavailableError
	if errors.As(err, &stockErr) {
		lines := make([]map[string]any, 0, len(stockErr.Lines))
		for _, line := range stockErr.Lines {
			lines = append(lines, map[string]any{
				"productId": line.ProductID,
				"reason":    string(line.Reason),
				"requested": line.Requested,
				"available": line.Available,
			})
		}
		httpx.WriteError(ctx, w, httpx.NewError("stock_unavailable", "one or more items are unavailable", http.StatusConflict).
			WithDetails(map[string]any{"lines": lines}))
		return
	}

	var partial *services.OrderItemsWriteError
	if errors.As(err, &partial) {
		httpx.WriteError(ctx, w, httpx.NewError("order_items_write_failed", "order was created but line items could not be written", http.StatusBadGateway).
			WithDetails(map[string]any{"orderId": partial.OrderID}))
		return
	}

	switch {
	case errors.Is(err, services.ErrFulfillmentInvalidInput),
		errors.Is(err, services.ErrInventoryInvalidInput),
		errors.Is(err, services.ErrOrderInvalidInput),
		errors.Is(err, services.ErrReturnInvalidInput),
		errors.Is(err, services.ErrShipmentInvalidInput),
		errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("customer_not_found", "no customer for principal", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReturnNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("return_not_found", "return request not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReturnItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_item_not_found", "order has no such item", http.StatusNotFound))
	case errors.Is(err, services.ErrShipmentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("shipment_not_found", "shipment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_found", "payment not found", http.StatusNotFound))
	case errors.Is(err, services.ErrShipmentInvalidTransition),
		errors.Is(err, services.ErrReturnInvalidTransition),
		errors.Is(err, services.ErrShipmentConflict):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderCreationFailed),
		errors.Is(err, services.ErrPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_write_failed", "the order could not be persisted", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
