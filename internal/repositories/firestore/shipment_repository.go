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

const shipmentsCollection = "shipments"

type shipmentDocument struct {
	ID           string     `firestore:"id"`
	OrderID      string     `firestore:"orderId"`
	TrackingCode string     `firestore:"trackingCode"`
	Status       string     `firestore:"status"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	DeliveredAt  *time.Time `firestore:"deliveredAt"`
}

func newShipmentDocument(shipment domain.Shipment) shipmentDocument {
	return shipmentDocument{
		ID:           shipment.ID,
		OrderID:      shipment.OrderID,
		TrackingCode: shipment.TrackingCode,
		Status:       string(shipment.Status),
		CreatedAt:    shipment.CreatedAt.UTC(),
		DeliveredAt:  shipment.DeliveredAt,
	}
}

func (d shipmentDocument) toDomain() domain.Shipment {
	return domain.Shipment{
		ID:           d.ID,
		OrderID:      d.OrderID,
		TrackingCode: d.TrackingCode,
		Status:       domain.ShipmentStatus(d.Status),
		CreatedAt:    d.CreatedAt,
		DeliveredAt:  d.DeliveredAt,
	}
}

// ShipmentRepository persists shipments.
type ShipmentRepository struct {
	provider  *pfirestore.Provider
	shipments *pfirestore.Collection[shipmentDocument]
}

// NewShipmentRepository constructs a Firestore-backed ShipmentRepository.
func NewShipmentRepository(provider *pfirestore.Provider) (*ShipmentRepository, error) {
	if provider == nil {
		return nil, errors.New("shipment repository requires firestore provider")
	}
	return &ShipmentRepository{
		provider:  provider,
		shipments: pfirestore.NewCollection[shipmentDocument](provider, shipmentsCollection),
	}, nil
}

// Insert writes a new shipment.
func (r *ShipmentRepository) Insert(ctx context.Context, shipment domain.Shipment) error {
	return r.shipments.Create(ctx, shipment.ID, newShipmentDocument(shipment))
}

// FindByID fetches a shipment.
func (r *ShipmentRepository) FindByID(ctx context.Context, shipmentID string) (domain.Shipment, error) {
	doc, err := r.shipments.Get(ctx, shipmentID)
	if err != nil {
		return domain.Shipment{}, err
	}
	return doc.toDomain(), nil
}

// FindByOrder returns the shipment created for the order.
func (r *ShipmentRepository) FindByOrder(ctx context.Context, orderID string) (domain.Shipment, error) {
	docs, err := r.shipments.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).Limit(1)
	})
	if err != nil {
		return domain.Shipment{}, err
	}
	if len(docs) == 0 {
		return domain.Shipment{}, pfirestore.NewNotFound("firestore: query shipments",
			fmt.Errorf("no shipment for order %s", orderID))
	}
	return docs[0].toDomain(), nil
}

// UpdateStatus applies the transition inside a transaction only when the
// stored status still equals from, reporting whether it applied.
func (r *ShipmentRepository) UpdateStatus(ctx context.Context, shipmentID string, from, to domain.ShipmentStatus, deliveredAt *time.Time) (bool, error) {
	applied := false
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.shipments.Doc(ctx, shipmentID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("firestore: get shipments", err)
		}
		var doc shipmentDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode shipment %s: %w", shipmentID, err)
		}
		if doc.Status != string(from) {
			return nil
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(to)},
		}
		if deliveredAt != nil {
			stamped := deliveredAt.UTC()
			updates = append(updates, firestore.Update{Path: "deliveredAt", Value: &stamped})
		}
		if err := tx.Update(ref, updates); err != nil {
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
