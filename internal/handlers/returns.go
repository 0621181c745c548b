package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storelane/fulfillment/internal/platform/httpx"
	"github.com/storelane/fulfillment/internal/services"
)

// ReturnHandlers exposes back-office return decisions. Customers request
// returns through the order routes; declining or cancelling a pending
// request belongs to support tooling.
type ReturnHandlers struct {
	returns services.ReturnService
}

// NewReturnHandlers constructs a new ReturnHandlers instance.
func NewReturnHandlers(returns services.ReturnService) *ReturnHandlers {
	return &ReturnHandlers{returns: returns}
}

// Routes registers the /returns endpoints.
func (h *ReturnHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{returnID}/decline", h.decline)
	r.Post("/{returnID}/cancel", h.cancel)
}

func (h *ReturnHandlers) decline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	returnID := strings.TrimSpace(chi.URLParam(r, "returnID"))
	request, err := h.returns.Decline(ctx, returnID)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildReturnPayload(request))
}

func (h *ReturnHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	returnID := strings.TrimSpace(chi.URLParam(r, "returnID"))
	request, err := h.returns.CancelReturn(ctx, returnID)
	if err != nil {
		writeFulfillmentError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildReturnPayload(request))
}
