package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/storelane/fulfillment/internal/domain"
)

// RepositoryError wraps low-level persistence failures with the
// categorisation services rely on. The external store is an opaque CRUD
// collaborator: every operation may fail with a generic transport condition,
// and these predicates are how services map that onto their own error kinds.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// IsNotFound reports whether err categorises as a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err categorises as a conflicting write.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// ProductRepository reads catalog products and applies stock adjustments.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)

	// ApplyStockAdjustment decrements the product's stock by quantity,
	// clamping at zero, exactly once per (order, product) pair: replaying an
	// adjustment returns the original ledger record without touching stock.
	ApplyStockAdjustment(ctx context.Context, orderID, productID string, quantity int, now time.Time) (domain.StockAdjustment, error)
}

// CustomerRepository maps authenticated principals to customer records.
type CustomerRepository interface {
	FindByPrincipal(ctx context.Context, principalID string) (domain.Customer, error)
}

// OrderRepository persists order headers and their line items. Header and
// items are separate writes: the store offers no cross-collection
// transactions, so an item-write failure can leave a header without items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	InsertItems(ctx context.Context, items []domain.OrderItem) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindItem(ctx context.Context, orderID, productID string) (domain.OrderItem, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
}

// PaymentRepository persists the append-only payment ledger.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	FindByOrder(ctx context.Context, orderID string) (domain.Payment, error)
	UpdateStatus(ctx context.Context, paymentID string, status domain.PaymentStatus) error
}

// ShipmentRepository persists shipments. UpdateStatus is a compare-and-set:
// it applies the transition only when the stored status still equals from,
// reporting false otherwise, which is what makes delayed self-transitions
// idempotent against racing explicit updates.
type ShipmentRepository interface {
	Insert(ctx context.Context, shipment domain.Shipment) error
	FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error)
	FindByOrder(ctx context.Context, orderID string) (domain.Shipment, error)
	UpdateStatus(ctx context.Context, shipmentID string, from, to domain.ShipmentStatus, deliveredAt *time.Time) (bool, error)
}

// ReturnRepository persists return requests. Multiple requests may exist per
// (order, product); FindLatest returns the most recently requested one.
type ReturnRepository interface {
	Insert(ctx context.Context, request domain.ReturnRequest) error
	FindByID(ctx context.Context, returnID string) (domain.ReturnRequest, error)
	FindLatest(ctx context.Context, orderID, productID string) (domain.ReturnRequest, error)
	UpdateStatus(ctx context.Context, returnID string, from, to domain.ReturnStatus, updatedAt time.Time) (bool, error)
}
