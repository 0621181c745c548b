package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/storelane/fulfillment/internal/domain"
	"github.com/storelane/fulfillment/internal/platform/tracking"
	"github.com/storelane/fulfillment/internal/repositories"
)

const (
	shipmentIDPrefix       = "shp_"
	defaultDeliveryDelay   = 3 * time.Minute
	shipmentEventDelivered = "shipment.delivered"
)

var (
	// ErrShipmentInvalidInput signals the caller provided invalid data.
	ErrShipmentInvalidInput = errors.New("shipment: invalid input")
	// ErrShipmentNotFound indicates the shipment could not be located.
	ErrShipmentNotFound = errors.New("shipment: not found")
	// ErrShipmentInvalidTransition indicates an illegal status transition.
	ErrShipmentInvalidTransition = errors.New("shipment: invalid status transition")
	// ErrShipmentConflict indicates the shipment changed under the caller.
	ErrShipmentConflict = errors.New("shipment: conflict")
)

// shipmentStateTransitions lists the transitions explicit callers may
// request. PENDING -> DELIVERED belongs to the automated timer alone;
// CANCELLED, RETURNED, and EXCEPTION are reachable solely through here.
var shipmentStateTransitions = map[domain.ShipmentStatus][]domain.ShipmentStatus{
	domain.ShipmentStatusPending:   {domain.ShipmentStatusInTransit, domain.ShipmentStatusCancelled},
	domain.ShipmentStatusInTransit: {domain.ShipmentStatusDelivered, domain.ShipmentStatusException, domain.ShipmentStatusReturned},
	domain.ShipmentStatusDelivered: {domain.ShipmentStatusReturned},
	domain.ShipmentStatusException: {domain.ShipmentStatusInTransit, domain.ShipmentStatusReturned, domain.ShipmentStatusCancelled},
}

// ShipmentServiceDeps bundles collaborators required to construct the service.
type ShipmentServiceDeps struct {
	Shipments     repositories.ShipmentRepository
	Scheduler     Scheduler
	Events        FulfillmentEventPublisher
	DeliveryDelay time.Duration
	Clock         func() time.Time
	IDGenerator   func() string
	TrackingCode  func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type shipmentService struct {
	shipments     repositories.ShipmentRepository
	scheduler     Scheduler
	events        FulfillmentEventPublisher
	deliveryDelay time.Duration
	clock         func() time.Time
	newID         func() string
	newTracking   func() string
	logger        func(context.Context, string, map[string]any)
}

// NewShipmentService wires dependencies into a ShipmentService implementation.
func NewShipmentService(deps ShipmentServiceDeps) (ShipmentService, error) {
	if deps.Shipments == nil {
		return nil, errors.New("shipment service: shipment repository is required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("shipment service: scheduler is required")
	}

	delay := deps.DeliveryDelay
	if delay <= 0 {
		delay = defaultDeliveryDelay
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
	trackingGen := deps.TrackingCode
	if trackingGen == nil {
		trackingGen = tracking.NewCode
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &shipmentService{
		shipments:     deps.Shipments,
		scheduler:     deps.Scheduler,
		events:        deps.Events,
		deliveryDelay: delay,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:       idGen,
		newTracking: trackingGen,
		logger:      logger,
	}, nil
}

// CreateShipment writes a PENDING shipment with a generated tracking code.
func (s *shipmentService) CreateShipment(ctx context.Context, orderID string) (domain.Shipment, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Shipment{}, fmt.Errorf("%w: order id is required", ErrShipmentInvalidInput)
	}

	shipment := domain.Shipment{
		ID:           shipmentIDPrefix + s.newID(),
		OrderID:      orderID,
		TrackingCode: s.newTracking(),
		Status:       domain.ShipmentStatusPending,
		CreatedAt:    s.clock(),
	}
	if err := s.shipments.Insert(ctx, shipment); err != nil {
		return domain.Shipment{}, err
	}

	s.logger(ctx, "shipment created", map[string]any{
		"shipmentId":   shipment.ID,
		"orderId":      orderID,
		"trackingCode": shipment.TrackingCode,
	})
	return shipment, nil
}

// ScheduleDelivery arms the delayed self-transition that simulates carrier
// delivery. After the delay the shipment moves PENDING -> DELIVERED exactly
// once; if the shipment left PENDING in the meantime (cancelled, already
// delivered) the timer finds the compare-and-set unsatisfied and does
// nothing. A write failure is logged and dropped: the shipment stays PENDING
// until a future manual update.
func (s *shipmentService) ScheduleDelivery(shipmentID string) {
	s.scheduler.ScheduleAfter(s.deliveryDelay, func(ctx context.Context) {
		now := s.clock()
		applied, err := s.shipments.UpdateStatus(ctx, shipmentID,
			domain.ShipmentStatusPending, domain.ShipmentStatusDelivered, &now)
		if err != nil {
			s.logger(ctx, "delayed delivery transition failed", map[string]any{
				"shipmentId": shipmentID,
				"error":      err.Error(),
			})
			return
		}
		if !applied {
			s.logger(ctx, "delayed delivery transition skipped, shipment no longer pending", map[string]any{
				"shipmentId": shipmentID,
			})
			return
		}
		s.logger(ctx, "shipment delivered", map[string]any{
			"shipmentId": shipmentID,
		})
		s.publishEvent(ctx, shipmentEventDelivered, shipmentID)
	})
}

// UpdateStatus applies an explicit status transition.
func (s *shipmentService) UpdateStatus(ctx context.Context, shipmentID string, target domain.ShipmentStatus) (domain.Shipment, error) {
	shipmentID = strings.TrimSpace(shipmentID)
	if shipmentID == "" {
		return domain.Shipment{}, fmt.Errorf("%w: shipment id is required", ErrShipmentInvalidInput)
	}

	shipment, err := s.shipments.FindByID(ctx, shipmentID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Shipment{}, fmt.Errorf("%w: %s", ErrShipmentNotFound, shipmentID)
		}
		return domain.Shipment{}, err
	}

	if !slices.Contains(shipmentStateTransitions[shipment.Status], target) {
		return domain.Shipment{}, fmt.Errorf("%w: %s -> %s", ErrShipmentInvalidTransition, shipment.Status, target)
	}

	var deliveredAt *time.Time
	if target == domain.ShipmentStatusDelivered {
		now := s.clock()
		deliveredAt = &now
	}

	applied, err := s.shipments.UpdateStatus(ctx, shipmentID, shipment.Status, target, deliveredAt)
	if err != nil {
		return domain.Shipment{}, err
	}
	if !applied {
		return domain.Shipment{}, fmt.Errorf("%w: shipment %s changed concurrently", ErrShipmentConflict, shipmentID)
	}

	shipment.Status = target
	shipment.DeliveredAt = deliveredAt
	s.logger(ctx, "shipment status updated", map[string]any{
		"shipmentId": shipmentID,
		"status":     string(target),
	})
	return shipment, nil
}

// GetByOrder returns the shipment created for the order.
func (s *shipmentService) GetByOrder(ctx context.Context, orderID string) (domain.Shipment, error) {
	shipment, err := s.shipments.FindByOrder(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Shipment{}, fmt.Errorf("%w: order %s", ErrShipmentNotFound, orderID)
		}
		return domain.Shipment{}, err
	}
	return shipment, nil
}

func (s *shipmentService) publishEvent(ctx context.Context, eventType, shipmentID string) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishFulfillmentEvent(ctx, FulfillmentEvent{
		Type:       eventType,
		OccurredAt: s.clock(),
		Metadata:   map[string]any{"shipmentId": shipmentID},
	}); err != nil {
		s.logger(ctx, "fulfillment event publish failed", map[string]any{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}
