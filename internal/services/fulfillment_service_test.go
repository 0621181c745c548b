package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/storelane/fulfillment/internal/domain"
)

type stubCustomerRepository struct {
	customers map[string]domain.Customer
}

func (r *stubCustomerRepository) FindByPrincipal(_ context.Context, principalID string) (domain.Customer, error) {
	customer, ok := r.customers[principalID]
	if !ok {
		return domain.Customer{}, notFoundError("customer not found")
	}
	return customer, nil
}

type stubPaymentRepository struct {
	mu        sync.Mutex
	payments  map[string]domain.Payment
	insertErr error
}

func newStubPaymentRepository() *stubPaymentRepository {
	return &stubPaymentRepository{payments: make(map[string]domain.Payment)}
}

func (r *stubPaymentRepository) Insert(_ context.Context, payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.payments[payment.ID] = payment
	return nil
}

func (r *stubPaymentRepository) FindByOrder(_ context.Context, orderID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, payment := range r.payments {
		if payment.OrderID == orderID {
			return payment, nil
		}
	}
	return domain.Payment{}, notFoundError("payment not found")
}

func (r *stubPaymentRepository) UpdateStatus(_ context.Context, paymentID string, status domain.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	payment, ok := r.payments[paymentID]
	if !ok {
		return notFoundError("payment not found")
	}
	payment.Status = status
	r.payments[paymentID] = payment
	return nil
}

// fulfillmentFixture wires real services over in-memory stores so PlaceOrder
// is exercised end to end.
type fulfillmentFixture struct {
	svc       FulfillmentService
	products  *stubProductRepository
	orders    *stubOrderRepository
	payments  *stubPaymentRepository
	shipments *stubShipmentRepository
	scheduler *fakeScheduler
	publisher *capturingPublisher
}

func newFulfillmentFixture(t *testing.T) *fulfillmentFixture {
	t.Helper()
	clock := fixedClock(time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC))

	products := newStubProductRepository(
		domain.Product{ID: "p1", Name: "Case", PriceCents: 1500, Stock: 5},
		domain.Product{ID: "p2", Name: "Cable", PriceCents: 1500, Stock: 3},
	)
	customers := &stubCustomerRepository{customers: map[string]domain.Customer{
		"principal-1": {ID: "cus_1", PrincipalID: "principal-1"},
	}}
	orders := newStubOrderRepository()
	payments := newStubPaymentRepository()
	shipments := newStubShipmentRepository()
	scheduler := &fakeScheduler{}
	publisher := &capturingPublisher{}

	inventorySvc, err := NewInventoryService(InventoryServiceDeps{Products: products, Clock: clock})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}
	customerSvc, err := NewCustomerService(CustomerServiceDeps{Customers: customers})
	if err != nil {
		t.Fatalf("NewCustomerService: %v", err)
	}
	orderSvc, err := NewOrderService(OrderServiceDeps{Orders: orders, Clock: clock, IDGenerator: sequentialIDs("o")})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	paymentSvc, err := NewPaymentService(PaymentServiceDeps{Payments: payments, Clock: clock, IDGenerator: sequentialIDs("p")})
	if err != nil {
		t.Fatalf("NewPaymentService: %v", err)
	}
	shipmentSvc, err := NewShipmentService(ShipmentServiceDeps{
		Shipments:    shipments,
		Scheduler:    scheduler,
		Events:       publisher,
		Clock:        clock,
		IDGenerator:  sequentialIDs("s"),
		TrackingCode: func() string { return "SL-TRACK00001" },
	})
	if err != nil {
		t.Fatalf("NewShipmentService: %v", err)
	}

	svc, err := NewFulfillmentService(FulfillmentServiceDeps{
		Customers: customerSvc,
		Inventory: inventorySvc,
		Orders:    orderSvc,
		Payments:  paymentSvc,
		Shipments: shipmentSvc,
		Events:    publisher,
		Currency:  "USD",
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("NewFulfillmentService: %v", err)
	}
	return &fulfillmentFixture{
		svc:       svc,
		products:  products,
		orders:    orders,
		payments:  payments,
		shipments: shipments,
		scheduler: scheduler,
		publisher: publisher,
	}
}

func TestPlaceOrderFulfillsCart(t *testing.T) {
	f := newFulfillmentFixture(t)
	ctx := context.Background()

	result, err := f.svc.PlaceOrder(ctx, PlaceOrderCommand{
		PrincipalID: "principal-1",
		Lines: []CartLine{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.Outcome != OutcomeFulfilled {
		t.Fatalf("expected fulfilled outcome, got %s", result.Outcome)
	}
	if result.TotalCents != 4500 {
		t.Fatalf("expected total 4500, got %d", result.TotalCents)
	}
	if result.CurrencyCode != "USD" {
		t.Fatalf("unexpected currency %s", result.CurrencyCode)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %#v", result.Warnings)
	}
	if result.OrderID == "" || result.PaymentID == "" || result.ShipmentID == "" {
		t.Fatalf("expected all ids populated, got %#v", result)
	}
	if result.TrackingCode != "SL-TRACK00001" {
		t.Fatalf("unexpected tracking code %s", result.TrackingCode)
	}

	if got := f.products.stock("p1"); got != 3 {
		t.Fatalf("expected p1 stock 3, got %d", got)
	}
	if got := f.products.stock("p2"); got != 2 {
		t.Fatalf("expected p2 stock 2, got %d", got)
	}

	order, err := f.orders.FindByID(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 order items, got %d", len(order.Items))
	}

	payment, err := f.payments.FindByOrder(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("payment not persisted: %v", err)
	}
	if payment.Status != domain.PaymentStatusCompleted || payment.AmountCents != 4500 {
		t.Fatalf("unexpected payment %#v", payment)
	}

	shipment := f.shipments.get(result.ShipmentID)
	if shipment.Status != domain.ShipmentStatusPending {
		t.Fatalf("expected shipment PENDING, got %s", shipment.Status)
	}
	if f.scheduler.pending() != 1 {
		t.Fatalf("expected delivery timer armed, got %d tasks", f.scheduler.pending())
	}

	events := f.publisher.published()
	if len(events) != 1 || events[0].Type != "order.placed" {
		t.Fatalf("expected order.placed event, got %#v", events)
	}
	if events[0].OrderID != result.OrderID {
		t.Fatalf("event carries wrong order id %s", events[0].OrderID)
	}
}

func TestPlaceOrderTotalSurvivesLaterPriceChange(t *testing.T) {
	f := newFulfillmentFixture(t)
	ctx := context.Background()

	result, err := f.svc.PlaceOrder(ctx, PlaceOrderCommand{
		PrincipalID: "principal-1",
		Lines: []CartLine{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.TotalCents != 4500 {
		t.Fatalf("expected total 4500, got %d", result.TotalCents)
	}

	// The catalog moves on; the stored order must not.
	f.products.setPrice("p1", 99999)
	f.products.setPrice("p2", 1)

	order, err := f.orders.FindByID(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
	if order.TotalCents != 4500 {
		t.Fatalf("expected stored total 4500 after price change, got %d", order.TotalCents)
	}
	var subtotalSum int64
	for _, item := range order.Items {
		subtotalSum += item.SubtotalCents
		if item.ProductID == "p1" && item.UnitPriceCents != 1500 {
			t.Fatalf("expected p1 unit price pinned at 1500, got %d", item.UnitPriceCents)
		}
	}
	if subtotalSum != 4500 {
		t.Fatalf("expected subtotals to sum to 4500 after price change, got %d", subtotalSum)
	}
}

func TestPlaceOrderRejectsUnavailableStockWithoutWrites(t *testing.T) {
	f := newFulfillmentFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		PrincipalID: "principal-1",
		Lines: []CartLine{
			{ProductID: "p1", Quantity: 99},
			{ProductID: "missing", Quantity: 1},
		},
	})
	var unavailable *StockUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected StockUnavailableError, got %v", err)
	}
	if len(unavailable.Lines) != 2 {
		t.Fatalf("expected both failing lines reported, got %#v", unavailable.Lines)
	}

	if len(f.orders.orders) != 0 {
		t.Fatal("expected no order writes on stock failure")
	}
	if len(f.payments.payments) != 0 {
		t.Fatal("expected no payment writes on stock failure")
	}
	if got := f.products.stock("p1"); got != 5 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestPlaceOrderUnknownPrincipalFailsCleanly(t *testing.T) {
	f := newFulfillmentFixture(t)

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		PrincipalID: "principal-unknown",
		Lines:       []CartLine{{ProductID: "p1", Quantity: 1}},
	})
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
	if len(f.orders.orders) != 0 {
		t.Fatal("expected no order writes for unknown principal")
	}
}

func TestPlaceOrderPaymentFailureLeavesOrderStanding(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.payments.insertErr = unavailableError("ledger down")

	result, err := f.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		PrincipalID: "principal-1",
		Lines:       []CartLine{{ProductID: "p1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("expected degraded result, got error %v", err)
	}
	if result.Outcome != OutcomePaymentFailed {
		t.Fatalf("expected payment_failed outcome, got %s", result.Outcome)
	}
	if result.OrderID == "" {
		t.Fatal("expected the committed order id in the result")
	}
	if result.PaymentID != "" || result.ShipmentID != "" {
		t.Fatalf("expected no payment or shipment ids, got %#v", result)
	}

	// Nothing after payment may run.
	if got := f.products.stock("p1"); got != 5 {
		t.Fatalf("expected stock untouched after payment failure, got %d", got)
	}
	if len(f.shipments.shipments) != 0 {
		t.Fatal("expected no shipment after payment failure")
	}
}

func TestPlaceOrderShipmentFailureKeepsOrderAndPayment(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.shipments.insertErr = unavailableError("store down")
	f.products.adjustErrs["p2"] = unavailableError("transaction aborted")

	result, err := f.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		PrincipalID: "principal-1",
		Lines: []CartLine{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("expected degraded result, got error %v", err)
	}
	if result.Outcome != OutcomeShipmentFailed {
		t.Fatalf("expected shipment_failed outcome, got %s", result.Outcome)
	}
	if result.PaymentID == "" {
		t.Fatal("expected payment to have been recorded")
	}
	if result.ShipmentID != "" || result.TrackingCode != "" {
		t.Fatalf("expected no shipment ids, got %#v", result)
	}

	// Stock adjustment ran before the shipment step: p1 applied, p2 warned.
	if got := f.products.stock("p1"); got != 3 {
		t.Fatalf("expected p1 stock 3, got %d", got)
	}
	var stockWarnings, shipmentWarnings int
	for _, warning := range result.Warnings {
		switch warning.Step {
		case stepStockAdjust:
			stockWarnings++
			if warning.ProductID != "p2" {
				t.Fatalf("unexpected stock warning %#v", warning)
			}
		case stepShipment:
			shipmentWarnings++
		}
	}
	if stockWarnings != 1 || shipmentWarnings != 1 {
		t.Fatalf("expected one stock and one shipment warning, got %#v", result.Warnings)
	}
}

func TestPlaceOrderPublishFailureIsAWarning(t *testing.T) {
	f := newFulfillmentFixture(t)
	f.publisher.err = errors.New("broker down")

	result, err := f.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		PrincipalID: "principal-1",
		Lines:       []CartLine{{ProductID: "p1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("expected degraded result, got error %v", err)
	}
	if result.Outcome != OutcomeFulfilled {
		t.Fatalf("expected fulfilled outcome, got %s", result.Outcome)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Step != stepPublish {
		t.Fatalf("expected a publish warning, got %#v", result.Warnings)
	}
}

func TestPlaceOrderValidatesInput(t *testing.T) {
	f := newFulfillmentFixture(t)

	if _, err := f.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		Lines: []CartLine{{ProductID: "p1", Quantity: 1}},
	}); !errors.Is(err, ErrFulfillmentInvalidInput) {
		t.Fatalf("expected invalid input for missing principal, got %v", err)
	}
	if _, err := f.svc.PlaceOrder(context.Background(), PlaceOrderCommand{
		PrincipalID: "principal-1",
	}); !errors.Is(err, ErrFulfillmentInvalidInput) {
		t.Fatalf("expected invalid input for empty cart, got %v", err)
	}
}
