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

const paymentIDPrefix = "pay_"

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates no payment exists for the order.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentFailed indicates the ledger write failed. The order exists
	// but is unpaid; money and inventory are now inconsistent, so this is
	// surfaced prominently rather than retried silently.
	ErrPaymentFailed = errors.New("payment: record failed")
)

// PaymentServiceDeps bundles collaborators required to construct the service.
type PaymentServiceDeps struct {
	Payments    repositories.PaymentRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	payments repositories.PaymentRepository
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment service: payment repository is required")
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

	return &paymentService{
		payments: deps.Payments,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// RecordPayment appends one COMPLETED ledger entry for the order. Payment is
// a local ledger record, not a gateway charge.
func (s *paymentService) RecordPayment(ctx context.Context, orderID string, amountCents int64) (domain.Payment, error) {
	if strings.TrimSpace(orderID) == "" {
		return domain.Payment{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}
	if amountCents < 0 {
		return domain.Payment{}, fmt.Errorf("%w: amount must not be negative", ErrPaymentInvalidInput)
	}

	payment := domain.Payment{
		ID:          paymentIDPrefix + s.newID(),
		OrderID:     orderID,
		AmountCents: amountCents,
		Status:      domain.PaymentStatusCompleted,
		PaidAt:      s.clock(),
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return domain.Payment{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
	}

	s.logger(ctx, "payment recorded", map[string]any{
		"paymentId":   payment.ID,
		"orderId":     orderID,
		"amountCents": amountCents,
	})
	return payment, nil
}

// GetByOrder returns the payment for the order.
func (s *paymentService) GetByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	payment, err := s.payments.FindByOrder(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Payment{}, fmt.Errorf("%w: order %s", ErrPaymentNotFound, orderID)
		}
		return domain.Payment{}, err
	}
	return payment, nil
}

// MarkRefunded flips the order's payment to REFUNDED. Refunds never create
// new ledger rows.
func (s *paymentService) MarkRefunded(ctx context.Context, orderID string) error {
	payment, err := s.GetByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if payment.Status == domain.PaymentStatusRefunded {
		return nil
	}
	if err := s.payments.UpdateStatus(ctx, payment.ID, domain.PaymentStatusRefunded); err != nil {
		return err
	}
	s.logger(ctx, "payment refunded", map[string]any{
		"paymentId": payment.ID,
		"orderId":   orderID,
	})
	return nil
}
