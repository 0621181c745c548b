package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultStepTimeout = 10 * time.Second
	orderPlacedEvent   = "order.placed"

	stepStockAdjust = "stock_adjustment"
	stepShipment    = "shipment"
	stepPublish     = "event_publish"
)

var (
	// ErrFulfillmentInvalidInput signals the caller provided invalid data.
	ErrFulfillmentInvalidInput = errors.New("fulfillment: invalid input")

	fulfillmentTracer = otel.Tracer("github.com/storelane/fulfillment/internal/services")
)

// FulfillmentServiceDeps bundles collaborators required to construct the service.
type FulfillmentServiceDeps struct {
	Customers   CustomerService
	Inventory   InventoryService
	Orders      OrderService
	Payments    PaymentService
	Shipments   ShipmentService
	Events      FulfillmentEventPublisher
	Currency    string
	StepTimeout time.Duration
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type fulfillmentService struct {
	customers   CustomerService
	inventory   InventoryService
	orders      OrderService
	payments    PaymentService
	shipments   ShipmentService
	events      FulfillmentEventPublisher
	currency    string
	stepTimeout time.Duration
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// NewFulfillmentService wires dependencies into a FulfillmentService implementation.
func NewFulfillmentService(deps FulfillmentServiceDeps) (FulfillmentService, error) {
	if deps.Customers == nil {
		return nil, errors.New("fulfillment service: customer service is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("fulfillment service: inventory service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("fulfillment service: order service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("fulfillment service: payment service is required")
	}
	if deps.Shipments == nil {
		return nil, errors.New("fulfillment service: shipment service is required")
	}

	currency := deps.Currency
	if currency == "" {
		currency = "USD"
	}
	stepTimeout := deps.StepTimeout
	if stepTimeout <= 0 {
		stepTimeout = defaultStepTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &fulfillmentService{
		customers:   deps.Customers,
		inventory:   deps.Inventory,
		orders:      deps.Orders,
		payments:    deps.Payments,
		shipments:   deps.Shipments,
		events:      deps.Events,
		currency:    currency,
		stepTimeout: stepTimeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// PlaceOrder runs the cart-to-shipment pipeline:
//
//	check stock -> resolve customer -> write order -> record payment ->
//	adjust stock -> create shipment -> arm delivery timer -> publish event
//
// Every step before payment honors the caller's deadline and fails the whole
// call cleanly. Once payment is recorded, money has moved: the remaining
// steps run on a context detached from the caller's cancellation, and their
// failures degrade the result (a non-fulfilled outcome or warnings) instead
// of producing an error. Callers must treat an error as "nothing happened"
// and a result as "the order stands", whatever the outcome field says.
func (s *fulfillmentService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	if cmd.PrincipalID == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: principal id is required", ErrFulfillmentInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return PlaceOrderResult{}, fmt.Errorf("%w: at least one cart line is required", ErrFulfillmentInvalidInput)
	}

	ctx, span := fulfillmentTracer.Start(ctx, "fulfillment.PlaceOrder",
		trace.WithAttributes(attribute.Int("cart.lines", len(cmd.Lines))))
	defer span.End()

	// Step 1: validate stock, capturing price and stock snapshots.
	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	snapshots, err := s.inventory.CheckAvailability(stepCtx, cmd.Lines)
	cancel()
	if err != nil {
		return PlaceOrderResult{}, s.fail(ctx, span, "stock check failed", err)
	}

	// Step 2: principal -> customer.
	stepCtx, cancel = context.WithTimeout(ctx, s.stepTimeout)
	customer, err := s.customers.ResolveByPrincipal(stepCtx, cmd.PrincipalID)
	cancel()
	if err != nil {
		return PlaceOrderResult{}, s.fail(ctx, span, "customer resolution failed", err)
	}

	// Step 3: write the order header and items.
	stepCtx, cancel = context.WithTimeout(ctx, s.stepTimeout)
	order, err := s.orders.CreateOrder(stepCtx, CreateOrderCommand{
		CustomerID:   customer.ID,
		CurrencyCode: s.currency,
		Lines:        cmd.Lines,
		Snapshots:    snapshots,
	})
	cancel()
	if err != nil {
		return PlaceOrderResult{}, s.fail(ctx, span, "order creation failed", err)
	}
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.Int64("order.total_cents", order.TotalCents),
	)

	result := PlaceOrderResult{
		OrderID:      order.ID,
		TotalCents:   order.TotalCents,
		CurrencyCode: order.CurrencyCode,
		Outcome:      OutcomeFulfilled,
	}

	// Step 4: record payment. The order already exists; a ledger failure
	// leaves it standing unpaid, which the caller learns through the outcome
	// rather than an error.
	stepCtx, cancel = context.WithTimeout(ctx, s.stepTimeout)
	payment, err := s.payments.RecordPayment(stepCtx, order.ID, order.TotalCents)
	cancel()
	if err != nil {
		s.logger(ctx, "payment failed after order creation", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		span.SetStatus(codes.Error, "payment failed")
		result.Outcome = OutcomePaymentFailed
		result.Warnings = append(result.Warnings, FulfillmentWarning{
			Step:    "payment",
			Message: err.Error(),
		})
		return result, nil
	}
	result.PaymentID = payment.ID

	// Money has moved. Nothing below may be cancelled by the caller hanging
	// up, and nothing below may fail the call.
	tail := context.WithoutCancel(ctx)

	// Step 5: decrement stock per item, collecting warnings.
	report := s.inventory.AdjustStockForOrder(tail, order.ID, snapshots)
	for _, failure := range report.Failed {
		result.Warnings = append(result.Warnings, FulfillmentWarning{
			Step:      stepStockAdjust,
			ProductID: failure.ProductID,
			Message:   failure.Message,
		})
	}

	// Step 6: create the shipment and arm its delivery timer.
	stepCtx, cancel = context.WithTimeout(tail, s.stepTimeout)
	shipment, err := s.shipments.CreateShipment(stepCtx, order.ID)
	cancel()
	if err != nil {
		s.logger(tail, "shipment creation failed after payment", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		result.Outcome = OutcomeShipmentFailed
		result.Warnings = append(result.Warnings, FulfillmentWarning{
			Step:    stepShipment,
			Message: err.Error(),
		})
		return result, nil
	}
	result.ShipmentID = shipment.ID
	result.TrackingCode = shipment.TrackingCode
	s.shipments.ScheduleDelivery(shipment.ID)

	// Step 7: announce the placed order. Best-effort.
	s.publishPlaced(tail, &result, order.ID, customer.ID)

	s.logger(ctx, "order fulfilled", map[string]any{
		"orderId":    order.ID,
		"paymentId":  payment.ID,
		"shipmentId": shipment.ID,
		"totalCents": order.TotalCents,
		"warnings":   len(result.Warnings),
	})
	return result, nil
}

func (s *fulfillmentService) fail(ctx context.Context, span trace.Span, event string, err error) error {
	s.logger(ctx, event, map[string]any{"error": err.Error()})
	span.RecordError(err)
	span.SetStatus(codes.Error, event)
	return err
}

func (s *fulfillmentService) publishPlaced(ctx context.Context, result *PlaceOrderResult, orderID, customerID string) {
	if s.events == nil {
		return
	}
	_, err := s.events.PublishFulfillmentEvent(ctx, FulfillmentEvent{
		Type:       orderPlacedEvent,
		OrderID:    orderID,
		OccurredAt: s.clock(),
		Metadata: map[string]any{
			"customerId": customerID,
			"totalCents": result.TotalCents,
		},
	})
	if err != nil {
		s.logger(ctx, "order placed event publish failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		result.Warnings = append(result.Warnings, FulfillmentWarning{
			Step:    stepPublish,
			Message: err.Error(),
		})
	}
}
