package services

import (
	"context"
	"time"

	domain "github.com/storelane/fulfillment/internal/domain"
)

// CartLine is one (product, quantity) pairing within a cart.
type CartLine struct {
	ProductID string
	Quantity  int
}

// StockSnapshot captures a product's stock and unit price as observed by the
// availability check. The unit price feeds the order's price snapshot; the
// stock value feeds the adjuster's warning messages.
type StockSnapshot struct {
	ProductID      string
	Quantity       int
	UnitPriceCents int64
	Stock          int
}

// Scheduler runs a task once after a delay. The production implementation is
// an in-process timer; tests substitute a manual fake so delayed transitions
// can be asserted without waiting.
type Scheduler interface {
	ScheduleAfter(d time.Duration, task func(ctx context.Context))
}

// FulfillmentEvent captures metadata for emitted fulfillment domain events.
type FulfillmentEvent struct {
	Type       string         `json:"type"`
	OrderID    string         `json:"orderId"`
	OccurredAt time.Time      `json:"occurredAt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// FulfillmentEventPublisher publishes fulfillment events for downstream
// consumers. Publishing is always best-effort.
type FulfillmentEventPublisher interface {
	PublishFulfillmentEvent(ctx context.Context, event FulfillmentEvent) (string, error)
}

// InventoryService validates cart lines against stock and applies stock
// decrements after payment.
type InventoryService interface {
	CheckAvailability(ctx context.Context, lines []CartLine) ([]StockSnapshot, error)
	AdjustStockForOrder(ctx context.Context, orderID string, snapshots []StockSnapshot) StockAdjustmentReport
}

// StockAdjustmentReport aggregates per-item adjustment outcomes. Failures are
// independent: one failed item never blocks its siblings, and the overall
// order placement stays successful regardless.
type StockAdjustmentReport struct {
	Applied []domain.StockAdjustment
	Failed  []StockAdjustmentFailure
}

// StockAdjustmentFailure names one item whose decrement did not apply.
type StockAdjustmentFailure struct {
	ProductID string
	Message   string
}

// CustomerService resolves authenticated principals to customers.
type CustomerService interface {
	ResolveByPrincipal(ctx context.Context, principalID string) (domain.Customer, error)
}

// CreateOrderCommand carries the validated inputs of the order writer.
type CreateOrderCommand struct {
	CustomerID   string
	CurrencyCode string
	Lines        []CartLine
	Snapshots    []StockSnapshot
}

// OrderService writes and reads orders.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
}

// PaymentService records and reads payment ledger entries.
type PaymentService interface {
	RecordPayment(ctx context.Context, orderID string, amountCents int64) (domain.Payment, error)
	GetByOrder(ctx context.Context, orderID string) (domain.Payment, error)
	MarkRefunded(ctx context.Context, orderID string) error
}

// ShipmentService owns the shipment status state machine.
type ShipmentService interface {
	CreateShipment(ctx context.Context, orderID string) (domain.Shipment, error)

	// ScheduleDelivery arms the delayed PENDING -> DELIVERED self-transition.
	// It returns immediately; the transition fires on the scheduler.
	ScheduleDelivery(shipmentID string)

	UpdateStatus(ctx context.Context, shipmentID string, target domain.ShipmentStatus) (domain.Shipment, error)
	GetByOrder(ctx context.Context, orderID string) (domain.Shipment, error)
}

// RequestReturnCommand carries the inputs of a return request.
type RequestReturnCommand struct {
	OrderID   string
	ProductID string
	Reason    string
}

// ReturnService owns the return request state machine.
type ReturnService interface {
	RequestReturn(ctx context.Context, cmd RequestReturnCommand) (domain.ReturnRequest, error)
	GetLatestReturnStatus(ctx context.Context, orderID, productID string) (domain.ReturnRequest, error)
	Decline(ctx context.Context, returnID string) (domain.ReturnRequest, error)
	CancelReturn(ctx context.Context, returnID string) (domain.ReturnRequest, error)
}

// PlaceOrderCommand is the single entry point input of the orchestrator.
type PlaceOrderCommand struct {
	PrincipalID string
	Lines       []CartLine
}

// PlaceOrderOutcome distinguishes "everything done" from the two partial
// successes where the customer-visible transaction already committed.
type PlaceOrderOutcome string

const (
	// OutcomeFulfilled means order, payment, and shipment all exist.
	OutcomeFulfilled PlaceOrderOutcome = "fulfilled"
	// OutcomePaymentFailed means the order exists but is unpaid.
	OutcomePaymentFailed PlaceOrderOutcome = "payment_failed"
	// OutcomeShipmentFailed means order and payment exist but no shipment.
	OutcomeShipmentFailed PlaceOrderOutcome = "shipment_failed"
)

// FulfillmentWarning records a non-fatal failure in a post-payment step.
type FulfillmentWarning struct {
	Step      string `json:"step"`
	ProductID string `json:"productId,omitempty"`
	Message   string `json:"message"`
}

// PlaceOrderResult reports the definite outcome of the primary transaction
// plus zero or more non-fatal warnings. Callers must distinguish "your order
// failed, nothing happened" (an error from PlaceOrder) from "your order
// succeeded, but some housekeeping failed" (a result with warnings or a
// non-fulfilled outcome).
type PlaceOrderResult struct {
	OrderID      string
	PaymentID    string
	ShipmentID   string
	TrackingCode string
	TotalCents   int64
	CurrencyCode string
	Outcome      PlaceOrderOutcome
	Warnings     []FulfillmentWarning
}

// FulfillmentService coordinates the full cart-to-shipment pipeline.
type FulfillmentService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
}
