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

const returnsCollection = "returnRequests"

type returnDocument struct {
	ID          string    `firestore:"id"`
	OrderID     string    `firestore:"orderId"`
	ProductID   string    `firestore:"productId"`
	Status      string    `firestore:"status"`
	Reason      string    `firestore:"reason"`
	RefundCents int64     `firestore:"refundCents"`
	RequestedAt time.Time `firestore:"requestedAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newReturnDocument(request domain.ReturnRequest) returnDocument {
	return returnDocument{
		ID:          request.ID,
		OrderID:     request.OrderID,
		ProductID:   request.ProductID,
		Status:      string(request.Status),
		Reason:      request.Reason,
		RefundCents: request.RefundCents,
		RequestedAt: request.RequestedAt.UTC(),
		UpdatedAt:   request.UpdatedAt.UTC(),
	}
}

func (d returnDocument) toDomain() domain.ReturnRequest {
	return domain.ReturnRequest{
		ID:          d.ID,
		OrderID:     d.OrderID,
		ProductID:   d.ProductID,
		Status:      domain.ReturnStatus(d.Status),
		Reason:      d.Reason,
		RefundCents: d.RefundCents,
		RequestedAt: d.RequestedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// ReturnRepository persists return requests. Requests are never deleted or
// deduplicated here; the newest request per (order, product) wins.
type ReturnRepository struct {
	provider *pfirestore.Provider
	returns  *pfirestore.Collection[returnDocument]
}

// NewReturnRepository constructs a Firestore-backed ReturnRepository.
func NewReturnRepository(provider *pfirestore.Provider) (*ReturnRepository, error) {
	if provider == nil {
		return nil, errors.New("return repository requires firestore provider")
	}
	return &ReturnRepository{
		provider: provider,
		returns:  pfirestore.NewCollection[returnDocument](provider, returnsCollection),
	}, nil
}

// Insert writes a new return request.
func (r *ReturnRepository) Insert(ctx context.Context, request domain.ReturnRequest) error {
	return r.returns.Create(ctx, request.ID, newReturnDocument(request))
}

// FindByID fetches a return request.
func (r *ReturnRepository) FindByID(ctx context.Context, returnID string) (domain.ReturnRequest, error) {
	doc, err := r.returns.Get(ctx, returnID)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	return doc.toDomain(), nil
}

// FindLatest returns the most recently requested return for the pair.
func (r *ReturnRepository) FindLatest(ctx context.Context, orderID, productID string) (domain.ReturnRequest, error) {
	docs, err := r.returns.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).
			Where("productId", "==", productID).
			OrderBy("requestedAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	if len(docs) == 0 {
		return domain.ReturnRequest{}, pfirestore.NewNotFound("firestore: query returnRequests",
			fmt.Errorf("no return request for order %s product %s", orderID, productID))
	}
	return docs[0].toDomain(), nil
}

// UpdateStatus applies the transition inside a transaction only when the
// stored status still equals from, reporting whether it applied.
func (r *ReturnRepository) UpdateStatus(ctx context.Context, returnID string, from, to domain.ReturnStatus, updatedAt time.Time) (bool, error) {
	applied := false
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.returns.Doc(ctx, returnID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("firestore: get returnRequests", err)
		}
		var doc returnDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode return request %s: %w", returnID, err)
		}
		if doc.Status != string(from) {
			return nil
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: updatedAt.UTC()},
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
