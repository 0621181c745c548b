package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/storelane/fulfillment/internal/domain"
	pfirestore "github.com/storelane/fulfillment/internal/platform/firestore"
)

const (
	productsCollection         = "products"
	stockAdjustmentsCollection = "stockAdjustments"
)

type productDocument struct {
	ID         string    `firestore:"id"`
	Name       string    `firestore:"name"`
	PriceCents int64     `firestore:"priceCents"`
	Stock      int       `firestore:"stock"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain() domain.Product {
	return domain.Product{
		ID:         d.ID,
		Name:       d.Name,
		PriceCents: d.PriceCents,
		Stock:      d.Stock,
		UpdatedAt:  d.UpdatedAt,
	}
}

type adjustmentDocument struct {
	OrderID       string    `firestore:"orderId"`
	ProductID     string    `firestore:"productId"`
	Quantity      int       `firestore:"quantity"`
	PreviousStock int       `firestore:"previousStock"`
	NewStock      int       `firestore:"newStock"`
	AppliedAt     time.Time `firestore:"appliedAt"`
}

func (d adjustmentDocument) toDomain() domain.StockAdjustment {
	return domain.StockAdjustment{
		OrderID:       d.OrderID,
		ProductID:     d.ProductID,
		Quantity:      d.Quantity,
		PreviousStock: d.PreviousStock,
		NewStock:      d.NewStock,
		AppliedAt:     d.AppliedAt,
	}
}

// ProductRepository reads catalog products and applies idempotent stock
// adjustments against Firestore.
type ProductRepository struct {
	provider    *pfirestore.Provider
	products    *pfirestore.Collection[productDocument]
	adjustments *pfirestore.Collection[adjustmentDocument]
}

// NewProductRepository constructs a Firestore-backed ProductRepository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider:    provider,
		products:    pfirestore.NewCollection[productDocument](provider, productsCollection),
		adjustments: pfirestore.NewCollection[adjustmentDocument](provider, stockAdjustmentsCollection),
	}, nil
}

// FindByID fetches a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	doc.ID = productID
	return doc.toDomain(), nil
}

// ApplyStockAdjustment decrements stock by quantity inside a transaction,
// clamping at zero. The adjustment ledger document is created in the same
// transaction under a deterministic (order, product) key, so a replay finds
// the ledger entry and returns it without a second decrement.
func (r *ProductRepository) ApplyStockAdjustment(ctx context.Context, orderID, productID string, quantity int, now time.Time) (domain.StockAdjustment, error) {
	if orderID == "" || productID == "" {
		return domain.StockAdjustment{}, errors.New("stock adjustment: order and product ids are required")
	}
	if quantity <= 0 {
		return domain.StockAdjustment{}, fmt.Errorf("stock adjustment: quantity must be positive, got %d", quantity)
	}

	adjustmentID := orderID + "_" + productID

	var result domain.StockAdjustment
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		adjRef, err := r.adjustments.Doc(ctx, adjustmentID)
		if err != nil {
			return err
		}
		productRef, err := r.products.Doc(ctx, productID)
		if err != nil {
			return err
		}

		if snap, err := tx.Get(adjRef); err == nil {
			var existing adjustmentDocument
			if err := snap.DataTo(&existing); err != nil {
				return fmt.Errorf("decode stock adjustment %s: %w", adjustmentID, err)
			}
			result = existing.toDomain()
			return nil
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		snap, err := tx.Get(productRef)
		if err != nil {
			return pfirestore.WrapError("firestore: get products", err)
		}
		var product productDocument
		if err := snap.DataTo(&product); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}

		newStock := product.Stock - quantity
		if newStock < 0 {
			newStock = 0
		}

		adjustment := adjustmentDocument{
			OrderID:       orderID,
			ProductID:     productID,
			Quantity:      quantity,
			PreviousStock: product.Stock,
			NewStock:      newStock,
			AppliedAt:     now.UTC(),
		}

		if err := tx.Update(productRef, []firestore.Update{
			{Path: "stock", Value: newStock},
			{Path: "updatedAt", Value: now.UTC()},
		}); err != nil {
			return err
		}
		if err := tx.Create(adjRef, adjustment); err != nil {
			return err
		}

		result = adjustment.toDomain()
		return nil
	})
	if err != nil {
		return domain.StockAdjustment{}, err
	}
	return result, nil
}
