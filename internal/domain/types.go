package domain

import (
	"time"
)

// PaymentStatus describes the lifecycle state of a payment ledger entry.
type PaymentStatus string

const (
	// PaymentStatusPending marks a payment that has been announced but not settled.
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusProcessing marks a payment currently being settled.
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	// PaymentStatusCompleted marks a settled payment.
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	// PaymentStatusRefunded marks a payment whose amount was returned to the customer.
	// Refunds are modelled as status changes, never as new payment rows.
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// ShipmentStatus describes delivery progress for a shipment.
type ShipmentStatus string

const (
	// ShipmentStatusPending is the initial state of every shipment.
	ShipmentStatusPending ShipmentStatus = "PENDING"
	// ShipmentStatusInTransit marks a shipment handed to the carrier.
	ShipmentStatusInTransit ShipmentStatus = "IN_TRANSIT"
	// ShipmentStatusDelivered is the terminal state of the automated path.
	ShipmentStatusDelivered ShipmentStatus = "DELIVERED"
	// ShipmentStatusCancelled is reachable only through explicit calls.
	ShipmentStatusCancelled ShipmentStatus = "CANCELLED"
	// ShipmentStatusReturned is reachable only through explicit calls.
	ShipmentStatusReturned ShipmentStatus = "RETURNED"
	// ShipmentStatusException is reachable only through explicit calls.
	ShipmentStatusException ShipmentStatus = "EXCEPTION"
)

// ReturnStatus describes the processing state of a return request.
type ReturnStatus string

const (
	// ReturnStatusPending is the initial state of every return request.
	ReturnStatusPending ReturnStatus = "PENDING"
	// ReturnStatusApproved is reached automatically after the approval delay.
	ReturnStatusApproved ReturnStatus = "APPROVED"
	// ReturnStatusRefunded is reached automatically after the refund delay.
	ReturnStatusRefunded ReturnStatus = "REFUNDED"
	// ReturnStatusDeclined is reachable only through explicit calls.
	ReturnStatusDeclined ReturnStatus = "DECLINED"
	// ReturnStatusCancelled is reachable only through explicit calls.
	ReturnStatusCancelled ReturnStatus = "CANCELLED"
)

// Customer is the internal record an authenticated principal resolves to.
type Customer struct {
	ID          string
	PrincipalID string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// Product is an external catalog entity, referenced but never owned by orders.
// Stock is mutated only through stock adjustments and must never go negative.
type Product struct {
	ID         string
	Name       string
	PriceCents int64
	Stock      int
	UpdatedAt  time.Time
}

// Order is the immutable header of a placed order. The total is computed once
// from the line items at creation time and never recomputed implicitly.
type Order struct {
	ID           string
	CustomerID   string
	CurrencyCode string
	TotalCents   int64
	CreatedAt    time.Time
	Items        []OrderItem
}

// OrderItem is one line of an order, created atomically with its order and
// carrying the unit price captured at order time, independent of later
// product price changes.
type OrderItem struct {
	ID             string
	OrderID        string
	ProductID      string
	Quantity       int
	UnitPriceCents int64
	SubtotalCents  int64
}

// Payment is an append-only ledger entry for an order. One payment per order;
// refunds flip the status instead of adding rows.
type Payment struct {
	ID          string
	OrderID     string
	AmountCents int64
	Status      PaymentStatus
	PaidAt      time.Time
}

// Shipment tracks delivery progress for an order.
type Shipment struct {
	ID           string
	OrderID      string
	TrackingCode string
	Status       ShipmentStatus
	CreatedAt    time.Time
	DeliveredAt  *time.Time
}

// ReturnRequest records a customer's intent to return one order line item.
// Several requests may exist for the same (order, product) pair; the most
// recently requested one is authoritative.
type ReturnRequest struct {
	ID          string
	OrderID     string
	ProductID   string
	Status      ReturnStatus
	Reason      string
	RefundCents int64
	RequestedAt time.Time
	UpdatedAt   time.Time
}

// StockAdjustment is the idempotency ledger for stock decrements: exactly one
// adjustment may exist per (order, product) pair, so replaying a decrement is
// a no-op that returns the original record.
type StockAdjustment struct {
	OrderID       string
	ProductID     string
	Quantity      int
	PreviousStock int
	NewStock      int
	AppliedAt     time.Time
}

// Clamped reports whether the adjustment hit the zero floor instead of
// subtracting the full quantity.
func (a StockAdjustment) Clamped() bool {
	return a.PreviousStock-a.Quantity < 0
}

// LineSubtotalCents computes a line subtotal in minor units. All money in the
// system is fixed-point minor units; floating point never touches amounts.
func LineSubtotalCents(quantity int, unitPriceCents int64) int64 {
	return int64(quantity) * unitPriceCents
}
