package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storelane/fulfillment/internal/domain"
	"github.com/storelane/fulfillment/internal/repositories"
)

const (
	orderIDPrefix     = "ord_"
	orderItemIDPrefix = "oit_"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderCreationFailed indicates the order header write failed; nothing
	// is visible to the customer.
	ErrOrderCreationFailed = errors.New("order: creation failed")
)

// OrderItemsWriteError reports the distinct partial outcome where the order
// header committed but the item writes did not. The store offers no rollback,
// so the header stays visible and the caller must not mistake this for a
// clean failure.
type OrderItemsWriteError struct {
	OrderID string
	Err     error
}

// Error implements the error interface.
func (e *OrderItemsWriteError) Error() string {
	return fmt.Sprintf("order: %s created but items failed: %v", e.OrderID, e.Err)
}

// Unwrap returns the underlying error.
func (e *OrderItemsWriteError) Unwrap() error { return e.Err }

// OrderServiceDeps bundles collaborators required to construct the service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders repositories.OrderRepository
	clock  func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into an OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// CreateOrder computes the total from the price snapshots, writes the order
// header, then writes the line items stamped with the new order's ID. The
// total is fixed at creation: later product price changes never touch it.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	if strings.TrimSpace(cmd.CustomerID) == "" {
		return domain.Order{}, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Snapshots) == 0 {
		return domain.Order{}, fmt.Errorf("%w: at least one line item is required", ErrOrderInvalidInput)
	}
	currency := strings.TrimSpace(cmd.CurrencyCode)
	if currency == "" {
		return domain.Order{}, fmt.Errorf("%w: currency code is required", ErrOrderInvalidInput)
	}

	now := s.clock()
	orderID := orderIDPrefix + s.newID()

	items := make([]domain.OrderItem, 0, len(cmd.Snapshots))
	var total int64
	for _, snapshot := range cmd.Snapshots {
		if snapshot.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: quantity for %s must be positive", ErrOrderInvalidInput, snapshot.ProductID)
		}
		subtotal := domain.LineSubtotalCents(snapshot.Quantity, snapshot.UnitPriceCents)
		items = append(items, domain.OrderItem{
			ID:             orderItemIDPrefix + s.newID(),
			OrderID:        orderID,
			ProductID:      snapshot.ProductID,
			Quantity:       snapshot.Quantity,
			UnitPriceCents: snapshot.UnitPriceCents,
			SubtotalCents:  subtotal,
		})
		total += subtotal
	}

	order := domain.Order{
		ID:           orderID,
		CustomerID:   cmd.CustomerID,
		CurrencyCode: currency,
		TotalCents:   total,
		CreatedAt:    now,
		Items:        items,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("%w: %v", ErrOrderCreationFailed, err)
	}
	if err := s.orders.InsertItems(ctx, items); err != nil {
		s.logger(ctx, "order items write failed after header committed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return domain.Order{}, &OrderItemsWriteError{OrderID: orderID, Err: err}
	}

	s.logger(ctx, "order created", map[string]any{
		"orderId":    orderID,
		"customerId": cmd.CustomerID,
		"totalCents": total,
		"items":      len(items),
	})
	return order, nil
}

// GetOrder fetches an order with its items.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return domain.Order{}, err
	}
	return order, nil
}

// ListByCustomer returns the customer's most recent order headers.
func (s *orderService) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	return s.orders.ListByCustomer(ctx, customerID, limit)
}
