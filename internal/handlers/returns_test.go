package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/storelane/fulfillment/internal/domain"
	"github.com/storelane/fulfillment/internal/services"
)

func newReturnRouter(svc *stubReturnService) http.Handler {
	handlers := NewReturnHandlers(svc)
	return NewRouter(WithReturnRoutes(handlers.Routes))
}

func TestDeclineReturnEndpoint(t *testing.T) {
	svc := &stubReturnService{request: domain.ReturnRequest{
		ID:        "ret_1",
		OrderID:   "ord_1",
		ProductID: "p1",
		Status:    domain.ReturnStatusDeclined,
	}}
	router := newReturnRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/returns/ret_1/decline", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload returnPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if payload.ID != "ret_1" || payload.Status != "DECLINED" {
		t.Fatalf("unexpected payload %#v", payload)
	}
}

func TestDeclineReturnEndpointMapsInvalidTransition(t *testing.T) {
	svc := &stubReturnService{err: services.ErrReturnInvalidTransition}
	router := newReturnRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/returns/ret_1/decline", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestCancelReturnEndpointMapsNotFound(t *testing.T) {
	svc := &stubReturnService{err: services.ErrReturnNotFound}
	router := newReturnRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/returns/ret_missing/cancel", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
