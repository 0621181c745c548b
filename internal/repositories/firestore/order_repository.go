package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/storelane/fulfillment/internal/domain"
	pfirestore "github.com/storelane/fulfillment/internal/platform/firestore"
)

const (
	ordersCollection     = "orders"
	orderItemsCollection = "orderItems"
)

type orderDocument struct {
	ID           string    `firestore:"id"`
	CustomerID   string    `firestore:"customerId"`
	CurrencyCode string    `firestore:"currencyCode"`
	TotalCents   int64     `firestore:"totalCents"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		ID:           order.ID,
		CustomerID:   order.CustomerID,
		CurrencyCode: order.CurrencyCode,
		TotalCents:   order.TotalCents,
		CreatedAt:    order.CreatedAt.UTC(),
	}
}

func (d orderDocument) toDomain() domain.Order {
	return domain.Order{
		ID:           d.ID,
		CustomerID:   d.CustomerID,
		CurrencyCode: d.CurrencyCode,
		TotalCents:   d.TotalCents,
		CreatedAt:    d.CreatedAt,
	}
}

type orderItemDocument struct {
	ID             string `firestore:"id"`
	OrderID        string `firestore:"orderId"`
	ProductID      string `firestore:"productId"`
	Quantity       int    `firestore:"quantity"`
	UnitPriceCents int64  `firestore:"unitPriceCents"`
	SubtotalCents  int64  `firestore:"subtotalCents"`
}

func newOrderItemDocument(item domain.OrderItem) orderItemDocument {
	return orderItemDocument(item)
}

func (d orderItemDocument) toDomain() domain.OrderItem {
	return domain.OrderItem(d)
}

// OrderRepository persists order headers and line items in separate
// collections. There is no cross-collection transaction: callers must treat
// a failed item write after a committed header as a distinct outcome.
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
	items  *pfirestore.Collection[orderItemDocument]
}

// NewOrderRepository constructs a Firestore-backed OrderRepository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		items:  pfirestore.NewCollection[orderItemDocument](provider, orderItemsCollection),
	}, nil
}

// Insert writes the immutable order header.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.orders.Create(ctx, order.ID, newOrderDocument(order))
}

// InsertItems writes the order's line items.
func (r *OrderRepository) InsertItems(ctx context.Context, items []domain.OrderItem) error {
	for _, item := range items {
		if err := r.items.Create(ctx, item.ID, newOrderItemDocument(item)); err != nil {
			return err
		}
	}
	return nil
}

// FindByID fetches the order header together with its line items.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order := doc.toDomain()

	itemDocs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID)
	})
	if err != nil {
		return domain.Order{}, err
	}
	for _, itemDoc := range itemDocs {
		order.Items = append(order.Items, itemDoc.toDomain())
	}
	return order, nil
}

// FindItem fetches the line item of an order that references the product.
func (r *OrderRepository) FindItem(ctx context.Context, orderID, productID string) (domain.OrderItem, error) {
	docs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).Where("productId", "==", productID).Limit(1)
	})
	if err != nil {
		return domain.OrderItem{}, err
	}
	if len(docs) == 0 {
		return domain.OrderItem{}, pfirestore.NewNotFound("firestore: query orderItems",
			fmt.Errorf("no item for order %s product %s", orderID, productID))
	}
	return docs[0].toDomain(), nil
}

// ListByCustomer returns the customer's most recent order headers. Items are
// not hydrated; callers wanting the full order use FindByID.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", customerID).
			OrderBy("createdAt", firestore.Desc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.toDomain())
	}
	return orders, nil
}
