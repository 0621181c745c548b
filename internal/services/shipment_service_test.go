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

type stubShipmentRepository struct {
	mu        sync.Mutex
	shipments map[string]domain.Shipment
	insertErr error
	updateErr error
}

func newStubShipmentRepository() *stubShipmentRepository {
	return &stubShipmentRepository{shipments: make(map[string]domain.Shipment)}
}

func (r *stubShipmentRepository) Insert(_ context.Context, shipment domain.Shipment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.shipments[shipment.ID] = shipment
	return nil
}

func (r *stubShipmentRepository) FindByID(_ context.Context, shipmentID string) (domain.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shipment, ok := r.shipments[shipmentID]
	if !ok {
		return domain.Shipment{}, notFoundError("shipment not found")
	}
	return shipment, nil
}

func (r *stubShipmentRepository) FindByOrder(_ context.Context, orderID string) (domain.Shipment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, shipment := range r.shipments {
		if shipment.OrderID == orderID {
			return shipment, nil
		}
	}
	return domain.Shipment{}, notFoundError("shipment not found")
}

func (r *stubShipmentRepository) UpdateStatus(_ context.Context, shipmentID string, from, to domain.ShipmentStatus, deliveredAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return false, r.updateErr
	}
	shipment, ok := r.shipments[shipmentID]
	if !ok {
		return false, notFoundError("shipment not found")
	}
	if shipment.Status != from {
		return false, nil
	}
	shipment.Status = to
	if deliveredAt != nil {
		shipment.DeliveredAt = deliveredAt
	}
	r.shipments[shipmentID] = shipment
	return true, nil
}

func (r *stubShipmentRepository) get(shipmentID string) domain.Shipment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shipments[shipmentID]
}

func newTestShipmentService(t *testing.T, repo *stubShipmentRepository, scheduler *fakeScheduler, publisher *capturingPublisher) ShipmentService {
	t.Helper()
	var events FulfillmentEventPublisher
	if publisher != nil {
		events = publisher
	}
	svc, err := NewShipmentService(ShipmentServiceDeps{
		Shipments:     repo,
		Scheduler:     scheduler,
		Events:        events,
		DeliveryDelay: 3 * time.Minute,
		Clock:         fixedClock(time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)),
		IDGenerator:   sequentialIDs("shipment"),
		TrackingCode:  func() string { return "SL-0123456789" },
	})
	if err != nil {
		t.Fatalf("NewShipmentService: %v", err)
	}
	return svc
}

func TestCreateShipmentStartsPendingWithTrackingCode(t *testing.T) {
	repo := newStubShipmentRepository()
	svc := newTestShipmentService(t, repo, &fakeScheduler{}, nil)

	shipment, err := svc.CreateShipment(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("CreateShipment: %v", err)
	}
	if shipment.Status != domain.ShipmentStatusPending {
		t.Fatalf("expected PENDING, got %s", shipment.Status)
	}
	if !strings.HasPrefix(shipment.ID, "shp_") {
		t.Fatalf("expected shp_ prefix, got %s", shipment.ID)
	}
	if shipment.TrackingCode != "SL-0123456789" {
		t.Fatalf("unexpected tracking code %s", shipment.TrackingCode)
	}
}

func TestScheduleDeliveryTransitionsPendingToDelivered(t *testing.T) {
	repo := newStubShipmentRepository()
	scheduler := &fakeScheduler{}
	publisher := &capturingPublisher{}
	svc := newTestShipmentService(t, repo, scheduler, publisher)

	shipment, err := svc.CreateShipment(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("CreateShipment: %v", err)
	}
	svc.ScheduleDelivery(shipment.ID)

	if scheduler.pending() != 1 {
		t.Fatalf("expected 1 scheduled task, got %d", scheduler.pending())
	}
	if !scheduler.fireNext(context.Background()) {
		t.Fatal("expected a task to fire")
	}

	stored := repo.get(shipment.ID)
	if stored.Status != domain.ShipmentStatusDelivered {
		t.Fatalf("expected DELIVERED, got %s", stored.Status)
	}
	if stored.DeliveredAt == nil {
		t.Fatal("expected DeliveredAt to be set")
	}
	events := publisher.published()
	if len(events) != 1 || events[0].Type != "shipment.delivered" {
		t.Fatalf("expected shipment.delivered event, got %#v", events)
	}
}

func TestScheduleDeliverySkipsWhenShipmentLeftPending(t *testing.T) {
	repo := newStubShipmentRepository()
	scheduler := &fakeScheduler{}
	publisher := &capturingPublisher{}
	svc := newTestShipmentService(t, repo, scheduler, publisher)

	shipment, err := svc.CreateShipment(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("CreateShipment: %v", err)
	}
	svc.ScheduleDelivery(shipment.ID)

	if _, err := svc.UpdateStatus(context.Background(), shipment.ID, domain.ShipmentStatusCancelled); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	scheduler.fireNext(context.Background())

	stored := repo.get(shipment.ID)
	if stored.Status != domain.ShipmentStatusCancelled {
		t.Fatalf("expected CANCELLED to survive the timer, got %s", stored.Status)
	}
	if len(publisher.published()) != 0 {
		t.Fatal("expected no delivered event for a cancelled shipment")
	}
}

func TestScheduleDeliveryDropsWriteFailure(t *testing.T) {
	repo := newStubShipmentRepository()
	scheduler := &fakeScheduler{}
	svc := newTestShipmentService(t, repo, scheduler, nil)

	shipment, err := svc.CreateShipment(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("CreateShipment: %v", err)
	}
	svc.ScheduleDelivery(shipment.ID)

	repo.mu.Lock()
	repo.updateErr = unavailableError("store down")
	repo.mu.Unlock()
	scheduler.fireNext(context.Background())

	stored := repo.get(shipment.ID)
	if stored.Status != domain.ShipmentStatusPending {
		t.Fatalf("expected shipment to stay PENDING after write failure, got %s", stored.Status)
	}
	if scheduler.pending() != 0 {
		t.Fatal("expected no retry to be scheduled")
	}
}

func TestUpdateStatusRejectsInvalidTransition(t *testing.T) {
	repo := newStubShipmentRepository()
	svc := newTestShipmentService(t, repo, &fakeScheduler{}, nil)

	shipment, err := svc.CreateShipment(context.Background(), "ord_1")
	if err != nil {
		t.Fatalf("CreateShipment: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), shipment.ID, domain.ShipmentStatusReturned); !errors.Is(err, ErrShipmentInvalidTransition) {
		t.Fatalf("expected invalid transition PENDING -> RETURNED, got %v", err)
	}

	if _, err := svc.UpdateStatus(context.Background(), shipment.ID, domain.ShipmentStatusInTransit); err != nil {
		t.Fatalf("PENDING -> IN_TRANSIT: %v", err)
	}
	updated, err := svc.UpdateStatus(context.Background(), shipment.ID, domain.ShipmentStatusDelivered)
	if err != nil {
		t.Fatalf("IN_TRANSIT -> DELIVERED: %v", err)
	}
	if updated.DeliveredAt == nil {
		t.Fatal("expected DeliveredAt on explicit delivery")
	}
	if _, err := svc.UpdateStatus(context.Background(), shipment.ID, domain.ShipmentStatusCancelled); !errors.Is(err, ErrShipmentInvalidTransition) {
		t.Fatalf("expected invalid transition DELIVERED -> CANCELLED, got %v", err)
	}
}

func TestUpdateStatusMapsNotFound(t *testing.T) {
	svc := newTestShipmentService(t, newStubShipmentRepository(), &fakeScheduler{}, nil)

	if _, err := svc.UpdateStatus(context.Background(), "shp_missing", domain.ShipmentStatusInTransit); !errors.Is(err, ErrShipmentNotFound) {
		t.Fatalf("expected ErrShipmentNotFound, got %v", err)
	}
}
