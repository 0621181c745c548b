package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/storelane/fulfillment/internal/domain"
	"github.com/storelane/fulfillment/internal/platform/httpx"
	"github.com/storelane/fulfillment/internal/services"
)

type updateShipmentRequest struct {
	Status string `json:"status"`
}

type shipmentPayload struct {
	ID           string     `json:"id"`
	OrderID      string     `json:"orderId"`
	TrackingCode string     `json:"trackingCode"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
}

// ShipmentHandlers exposes shipment status transitions for back-office callers.
type ShipmentHandlers struct {
	shipments services.ShipmentService
}

// NewShipmentHandlers constructs a new ShipmentHandlers instance.
func NewShipmentHandlers(shipments services.ShipmentService) *ShipmentHandlers {
	return &ShipmentHandlers{shipments: shipments}
}

// Routes registers the /shipments endpoints.
func (h *ShipmentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{shipmentID}/status", h.updateStatus)
}

func (h *ShipmentHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body updateShipmentRequest
	if err := decodeJSONBody(w, r, &body); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	target := domain.ShipmentStatus(strings.ToUpper(strings.TrimSpace(body.Status)))
	if target == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	shipmentID := strings.TrimSpace(chi.URLParam(r, "shipmentID"))
	shipment, err := h.shipments.UpdateStatus(ctx, shipmentID, target)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, shipmentPayload{
		ID:           shipment.ID,
		OrderID:      shipment.OrderID,
		TrackingCode: shipment.TrackingCode,
		Status:       string(shipment.Status),
		CreatedAt:    shipment.CreatedAt,
		DeliveredAt:  shipment.DeliveredAt,
	})
}
