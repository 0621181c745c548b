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
	returnIDPrefix              = "ret_"
	defaultReturnApprovalDelay  = 3 * time.Minute
	defaultReturnRefundDelay    = 5 * time.Second
	returnEventRefunded         = "return.refunded"
	returnDuplicatePendingEvent = "duplicate return requested while one is pending"
)

var (
	// ErrReturnInvalidInput signals the caller provided invalid data.
	ErrReturnInvalidInput = errors.New("return: invalid input")
	// ErrReturnNotFound indicates no return request could be located.
	ErrReturnNotFound = errors.New("return: not found")
	// ErrReturnInvalidTransition indicates the request already left PENDING.
	ErrReturnInvalidTransition = errors.New("return: invalid status transition")
	// ErrReturnItemNotFound indicates the order has no line for the product,
	// so there is nothing to return.
	ErrReturnItemNotFound = errors.New("return: order item not found")
)

// ReturnServiceDeps bundles collaborators required to construct the service.
type ReturnServiceDeps struct {
	Returns       repositories.ReturnRepository
	Orders        repositories.OrderRepository
	Payments      PaymentService
	Scheduler     Scheduler
	Events        FulfillmentEventPublisher
	ApprovalDelay time.Duration
	RefundDelay   time.Duration
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type returnService struct {
	returns       repositories.ReturnRepository
	orders        repositories.OrderRepository
	payments      PaymentService
	scheduler     Scheduler
	events        FulfillmentEventPublisher
	approvalDelay time.Duration
	refundDelay   time.Duration
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
}

// NewReturnService wires dependencies into a ReturnService implementation.
func NewReturnService(deps ReturnServiceDeps) (ReturnService, error) {
	if deps.Returns == nil {
		return nil, errors.New("return service: return repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("return service: order repository is required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("return service: scheduler is required")
	}

	approvalDelay := deps.ApprovalDelay
	if approvalDelay <= 0 {
		approvalDelay = defaultReturnApprovalDelay
	}
	refundDelay := deps.RefundDelay
	if refundDelay <= 0 {
		refundDelay = defaultReturnRefundDelay
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

	return &returnService{
		returns:       deps.Returns,
		orders:        deps.Orders,
		payments:      deps.Payments,
		scheduler:     deps.Scheduler,
		events:        deps.Events,
		approvalDelay: approvalDelay,
		refundDelay:   refundDelay,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// RequestReturn files a PENDING return for one order line and arms the
// automated approval. The refund amount is fixed to the line subtotal captured
// at order time. Duplicate requests for the same line are accepted; the newest
// one is authoritative, and an existing PENDING sibling is only logged.
func (s *returnService) RequestReturn(ctx context.Context, cmd RequestReturnCommand) (domain.ReturnRequest, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	productID := strings.TrimSpace(cmd.ProductID)
	if orderID == "" {
		return domain.ReturnRequest{}, fmt.Errorf("%w: order id is required", ErrReturnInvalidInput)
	}
	if productID == "" {
		return domain.ReturnRequest{}, fmt.Errorf("%w: product id is required", ErrReturnInvalidInput)
	}

	item, err := s.orders.FindItem(ctx, orderID, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.ReturnRequest{}, fmt.Errorf("%w: order %s has no item %s", ErrReturnItemNotFound, orderID, productID)
		}
		return domain.ReturnRequest{}, err
	}

	if prev, err := s.returns.FindLatest(ctx, orderID, productID); err == nil && prev.Status == domain.ReturnStatusPending {
		s.logger(ctx, returnDuplicatePendingEvent, map[string]any{
			"orderId":          orderID,
			"productId":        productID,
			"existingReturnId": prev.ID,
		})
	}

	now := s.clock()
	request := domain.ReturnRequest{
		ID:          returnIDPrefix + s.newID(),
		OrderID:     orderID,
		ProductID:   productID,
		Status:      domain.ReturnStatusPending,
		Reason:      strings.TrimSpace(cmd.Reason),
		RefundCents: item.SubtotalCents,
		RequestedAt: now,
		UpdatedAt:   now,
	}
	if err := s.returns.Insert(ctx, request); err != nil {
		return domain.ReturnRequest{}, err
	}

	s.logger(ctx, "return requested", map[string]any{
		"returnId":    request.ID,
		"orderId":     orderID,
		"productId":   productID,
		"refundCents": request.RefundCents,
	})
	s.scheduleApproval(request.ID, orderID)
	return request, nil
}

// scheduleApproval arms the PENDING -> APPROVED transition. The transition is
// a compare-and-set: a request declined or cancelled in the meantime stays
// put. On success the refund timer is armed in turn.
func (s *returnService) scheduleApproval(returnID, orderID string) {
	s.scheduler.ScheduleAfter(s.approvalDelay, func(ctx context.Context) {
		applied, err := s.returns.UpdateStatus(ctx, returnID,
			domain.ReturnStatusPending, domain.ReturnStatusApproved, s.clock())
		if err != nil {
			s.logger(ctx, "return approval transition failed", map[string]any{
				"returnId": returnID,
				"error":    err.Error(),
			})
			return
		}
		if !applied {
			s.logger(ctx, "return approval skipped, request no longer pending", map[string]any{
				"returnId": returnID,
			})
			return
		}
		s.logger(ctx, "return approved", map[string]any{
			"returnId": returnID,
		})
		s.scheduleRefund(returnID, orderID)
	})
}

// scheduleRefund arms the APPROVED -> REFUNDED transition. Flipping the
// payment ledger to REFUNDED is best-effort: a ledger failure is logged but
// the return still completes.
func (s *returnService) scheduleRefund(returnID, orderID string) {
	s.scheduler.ScheduleAfter(s.refundDelay, func(ctx context.Context) {
		applied, err := s.returns.UpdateStatus(ctx, returnID,
			domain.ReturnStatusApproved, domain.ReturnStatusRefunded, s.clock())
		if err != nil {
			s.logger(ctx, "return refund transition failed", map[string]any{
				"returnId": returnID,
				"error":    err.Error(),
			})
			return
		}
		if !applied {
			s.logger(ctx, "return refund skipped, request no longer approved", map[string]any{
				"returnId": returnID,
			})
			return
		}

		if s.payments != nil {
			if err := s.payments.MarkRefunded(ctx, orderID); err != nil {
				s.logger(ctx, "payment refund mark failed", map[string]any{
					"returnId": returnID,
					"orderId":  orderID,
					"error":    err.Error(),
				})
			}
		}

		s.logger(ctx, "return refunded", map[string]any{
			"returnId": returnID,
			"orderId":  orderID,
		})
		s.publishEvent(ctx, returnEventRefunded, returnID, orderID)
	})
}

// GetLatestReturnStatus returns the most recently requested return for the
// (order, product) pair.
func (s *returnService) GetLatestReturnStatus(ctx context.Context, orderID, productID string) (domain.ReturnRequest, error) {
	orderID = strings.TrimSpace(orderID)
	productID = strings.TrimSpace(productID)
	if orderID == "" || productID == "" {
		return domain.ReturnRequest{}, fmt.Errorf("%w: order id and product id are required", ErrReturnInvalidInput)
	}

	request, err := s.returns.FindLatest(ctx, orderID, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.ReturnRequest{}, fmt.Errorf("%w: order %s product %s", ErrReturnNotFound, orderID, productID)
		}
		return domain.ReturnRequest{}, err
	}
	return request, nil
}

// Decline moves a PENDING request to DECLINED before the approval timer wins.
func (s *returnService) Decline(ctx context.Context, returnID string) (domain.ReturnRequest, error) {
	return s.closePending(ctx, returnID, domain.ReturnStatusDeclined, "return declined")
}

// CancelReturn moves a PENDING request to CANCELLED before the approval timer wins.
func (s *returnService) CancelReturn(ctx context.Context, returnID string) (domain.ReturnRequest, error) {
	return s.closePending(ctx, returnID, domain.ReturnStatusCancelled, "return cancelled")
}

// closePending races the approval timer with a compare-and-set out of PENDING.
// Whoever applies first wins; the loser observes applied == false.
func (s *returnService) closePending(ctx context.Context, returnID string, target domain.ReturnStatus, event string) (domain.ReturnRequest, error) {
	returnID = strings.TrimSpace(returnID)
	if returnID == "" {
		return domain.ReturnRequest{}, fmt.Errorf("%w: return id is required", ErrReturnInvalidInput)
	}

	request, err := s.returns.FindByID(ctx, returnID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.ReturnRequest{}, fmt.Errorf("%w: %s", ErrReturnNotFound, returnID)
		}
		return domain.ReturnRequest{}, err
	}
	if request.Status != domain.ReturnStatusPending {
		return domain.ReturnRequest{}, fmt.Errorf("%w: %s is %s", ErrReturnInvalidTransition, returnID, request.Status)
	}

	now := s.clock()
	applied, err := s.returns.UpdateStatus(ctx, returnID, domain.ReturnStatusPending, target, now)
	if err != nil {
		return domain.ReturnRequest{}, err
	}
	if !applied {
		return domain.ReturnRequest{}, fmt.Errorf("%w: %s left PENDING concurrently", ErrReturnInvalidTransition, returnID)
	}

	request.Status = target
	request.UpdatedAt = now
	s.logger(ctx, event, map[string]any{
		"returnId": returnID,
	})
	return request, nil
}

func (s *returnService) publishEvent(ctx context.Context, eventType, returnID, orderID string) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishFulfillmentEvent(ctx, FulfillmentEvent{
		Type:       eventType,
		OrderID:    orderID,
		OccurredAt: s.clock(),
		Metadata:   map[string]any{"returnId": returnID},
	}); err != nil {
		s.logger(ctx, "fulfillment event publish failed", map[string]any{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}
