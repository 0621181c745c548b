package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/storelane/fulfillment/internal/domain"
)

type stubReturnRepository struct {
	mu       sync.Mutex
	requests map[string]domain.ReturnRequest
	order    []string
}

func newStubReturnRepository() *stubReturnRepository {
	return &stubReturnRepository{requests: make(map[string]domain.ReturnRequest)}
}

func (r *stubReturnRepository) Insert(_ context.Context, request domain.ReturnRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[request.ID] = request
	r.order = append(r.order, request.ID)
	return nil
}

func (r *stubReturnRepository) FindByID(_ context.Context, returnID string) (domain.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[returnID]
	if !ok {
		return domain.ReturnRequest{}, notFoundError("return not found")
	}
	return request, nil
}

func (r *stubReturnRepository) FindLatest(_ context.Context, orderID, productID string) (domain.ReturnRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Insertion order stands in for the requestedAt ordering the real store
	// applies; the test clock is frozen so timestamps alone cannot break ties.
	var latest *domain.ReturnRequest
	for _, id := range r.order {
		request := r.requests[id]
		if request.OrderID == orderID && request.ProductID == productID {
			latest = &request
		}
	}
	if latest == nil {
		return domain.ReturnRequest{}, notFoundError("return not found")
	}
	return *latest, nil
}

func (r *stubReturnRepository) UpdateStatus(_ context.Context, returnID string, from, to domain.ReturnStatus, updatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	request, ok := r.requests[returnID]
	if !ok {
		return false, notFoundError("return not found")
	}
	if request.Status != from {
		return false, nil
	}
	request.Status = to
	request.UpdatedAt = updatedAt
	r.requests[returnID] = request
	return true, nil
}

func (r *stubReturnRepository) get(returnID string) domain.ReturnRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[returnID]
}

type stubPaymentService struct {
	mu       sync.Mutex
	refunded []string
	err      error
}

func (s *stubPaymentService) RecordPayment(context.Context, string, int64) (domain.Payment, error) {
	return domain.Payment{}, errors.New("not implemented")
}

func (s *stubPaymentService) GetByOrder(context.Context, string) (domain.Payment, error) {
	return domain.Payment{}, errors.New("not implemented")
}

func (s *stubPaymentService) MarkRefunded(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.refunded = append(s.refunded, orderID)
	return nil
}

type returnFixture struct {
	svc       ReturnService
	returns   *stubReturnRepository
	orders    *stubOrderRepository
	payments  *stubPaymentService
	scheduler *fakeScheduler
	publisher *capturingPublisher
}

func newReturnFixture(t *testing.T) *returnFixture {
	t.Helper()
	returns := newStubReturnRepository()
	orders := newStubOrderRepository()
	payments := &stubPaymentService{}
	scheduler := &fakeScheduler{}
	publisher := &capturingPublisher{}

	orders.items["ord_1"] = []domain.OrderItem{
		{ID: "oit_1", OrderID: "ord_1", ProductID: "p1", Quantity: 2, UnitPriceCents: 1500, SubtotalCents: 3000},
	}

	svc, err := NewReturnService(ReturnServiceDeps{
		Returns:       returns,
		Orders:        orders,
		Payments:      payments,
		Scheduler:     scheduler,
		Events:        publisher,
		ApprovalDelay: 3 * time.Minute,
		RefundDelay:   5 * time.Second,
		Clock:         fixedClock(time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)),
		IDGenerator:   sequentialIDs("ret"),
	})
	if err != nil {
		t.Fatalf("NewReturnService: %v", err)
	}
	return &returnFixture{
		svc:       svc,
		returns:   returns,
		orders:    orders,
		payments:  payments,
		scheduler: scheduler,
		publisher: publisher,
	}
}

func TestRequestReturnCreatesPendingWithLineRefund(t *testing.T) {
	f := newReturnFixture(t)

	request, err := f.svc.RequestReturn(context.Background(), RequestReturnCommand{
		OrderID:   "ord_1",
		ProductID: "p1",
		Reason:    "damaged",
	})
	if err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}
	if request.Status != domain.ReturnStatusPending {
		t.Fatalf("expected PENDING, got %s", request.Status)
	}
	if !strings.HasPrefix(request.ID, "ret_") {
		t.Fatalf("expected ret_ prefix, got %s", request.ID)
	}
	if request.RefundCents != 3000 {
		t.Fatalf("expected refund fixed to line subtotal 3000, got %d", request.RefundCents)
	}
	if f.scheduler.pending() != 1 {
		t.Fatalf("expected approval timer armed, got %d tasks", f.scheduler.pending())
	}
}

func TestRequestReturnRejectsUnknownOrderItem(t *testing.T) {
	f := newReturnFixture(t)

	if _, err := f.svc.RequestReturn(context.Background(), RequestReturnCommand{
		OrderID:   "ord_1",
		ProductID: "p9",
	}); !errors.Is(err, ErrReturnItemNotFound) {
		t.Fatalf("expected ErrReturnItemNotFound, got %v", err)
	}
	if _, err := f.svc.RequestReturn(context.Background(), RequestReturnCommand{
		ProductID: "p1",
	}); !errors.Is(err, ErrReturnInvalidInput) {
		t.Fatalf("expected ErrReturnInvalidInput, got %v", err)
	}
}

func TestReturnProgressesThroughApprovalAndRefund(t *testing.T) {
	f := newReturnFixture(t)
	ctx := context.Background()

	request, err := f.svc.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}

	// Approval timer fires, arming the refund timer in turn.
	if !f.scheduler.fireNext(ctx) {
		t.Fatal("expected approval task")
	}
	if got := f.returns.get(request.ID).Status; got != domain.ReturnStatusApproved {
		t.Fatalf("expected APPROVED after approval timer, got %s", got)
	}
	if f.scheduler.pending() != 1 {
		t.Fatalf("expected refund timer armed, got %d tasks", f.scheduler.pending())
	}

	if !f.scheduler.fireNext(ctx) {
		t.Fatal("expected refund task")
	}
	if got := f.returns.get(request.ID).Status; got != domain.ReturnStatusRefunded {
		t.Fatalf("expected REFUNDED after refund timer, got %s", got)
	}
	if len(f.payments.refunded) != 1 || f.payments.refunded[0] != "ord_1" {
		t.Fatalf("expected payment flipped to refunded for ord_1, got %v", f.payments.refunded)
	}
	events := f.publisher.published()
	if len(events) != 1 || events[0].Type != "return.refunded" {
		t.Fatalf("expected return.refunded event, got %#v", events)
	}
}

func TestReturnRefundCompletesDespitePaymentFailure(t *testing.T) {
	f := newReturnFixture(t)
	ctx := context.Background()
	f.payments.err = errors.New("ledger down")

	request, err := f.svc.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}
	f.scheduler.fireNext(ctx)
	f.scheduler.fireNext(ctx)

	if got := f.returns.get(request.ID).Status; got != domain.ReturnStatusRefunded {
		t.Fatalf("expected REFUNDED despite ledger failure, got %s", got)
	}
}

func TestDeclineWinsOverApprovalTimer(t *testing.T) {
	f := newReturnFixture(t)
	ctx := context.Background()

	request, err := f.svc.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}
	declined, err := f.svc.Decline(ctx, request.ID)
	if err != nil {
		t.Fatalf("Decline: %v", err)
	}
	if declined.Status != domain.ReturnStatusDeclined {
		t.Fatalf("expected DECLINED, got %s", declined.Status)
	}

	// The approval timer still fires but must not move a declined request.
	f.scheduler.fireNext(ctx)
	if got := f.returns.get(request.ID).Status; got != domain.ReturnStatusDeclined {
		t.Fatalf("expected DECLINED to survive the timer, got %s", got)
	}
	if f.scheduler.pending() != 0 {
		t.Fatal("expected no refund timer for a declined request")
	}
}

func TestCancelReturnOnlyFromPending(t *testing.T) {
	f := newReturnFixture(t)
	ctx := context.Background()

	request, err := f.svc.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}
	f.scheduler.fireNext(ctx) // PENDING -> APPROVED

	if _, err := f.svc.CancelReturn(ctx, request.ID); !errors.Is(err, ErrReturnInvalidTransition) {
		t.Fatalf("expected invalid transition for approved request, got %v", err)
	}
}

func TestGetLatestReturnStatusPicksNewestRequest(t *testing.T) {
	f := newReturnFixture(t)
	ctx := context.Background()

	first, err := f.svc.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("RequestReturn: %v", err)
	}
	if _, err := f.svc.Decline(ctx, first.ID); err != nil {
		t.Fatalf("Decline: %v", err)
	}
	second, err := f.svc.RequestReturn(ctx, RequestReturnCommand{OrderID: "ord_1", ProductID: "p1"})
	if err != nil {
		t.Fatalf("RequestReturn second: %v", err)
	}

	latest, err := f.svc.GetLatestReturnStatus(ctx, "ord_1", "p1")
	if err != nil {
		t.Fatalf("GetLatestReturnStatus: %v", err)
	}
	if latest.ID != second.ID {
		t.Fatalf("expected latest request %s, got %s", second.ID, latest.ID)
	}

	if _, err := f.svc.GetLatestReturnStatus(ctx, "ord_1", "p9"); !errors.Is(err, ErrReturnNotFound) {
		t.Fatalf("expected ErrReturnNotFound, got %v", err)
	}
}
