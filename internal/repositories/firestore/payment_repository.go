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

const paymentsCollection = "payments"

type paymentDocument struct {
	ID          string    `firestore:"id"`
	OrderID     string    `firestore:"orderId"`
	AmountCents int64     `firestore:"amountCents"`
	Status      string    `firestore:"status"`
	PaidAt      time.Time `firestore:"paidAt"`
}

func newPaymentDocument(payment domain.Payment) paymentDocument {
	return paymentDocument{
		ID:          payment.ID,
		OrderID:     payment.OrderID,
		AmountCents: payment.AmountCents,
		Status:      string(payment.Status),
		PaidAt:      payment.PaidAt.UTC(),
	}
}

func (d paymentDocument) toDomain() domain.Payment {
	return domain.Payment{
		ID:          d.ID,
		OrderID:     d.OrderID,
		AmountCents: d.AmountCents,
		Status:      domain.PaymentStatus(d.Status),
		PaidAt:      d.PaidAt,
	}
}

// PaymentRepository persists the payment ledger.
type PaymentRepository struct {
	payments *pfirestore.Collection[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed PaymentRepository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{
		payments: pfirestore.NewCollection[paymentDocument](provider, paymentsCollection),
	}, nil
}

// Insert appends one ledger entry.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	return r.payments.Create(ctx, payment.ID, newPaymentDocument(payment))
}

// FindByOrder returns the payment recorded for the order.
func (r *PaymentRepository) FindByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	docs, err := r.payments.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", orderID).Limit(1)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	if len(docs) == 0 {
		return domain.Payment{}, pfirestore.NewNotFound("firestore: query payments",
			fmt.Errorf("no payment for order %s", orderID))
	}
	return docs[0].toDomain(), nil
}

// UpdateStatus flips the payment status; the ledger row itself is immutable
// apart from this field.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, paymentID string, status domain.PaymentStatus) error {
	doc, err := r.payments.Doc(ctx, paymentID)
	if err != nil {
		return err
	}
	if _, err := doc.Update(ctx, []firestore.Update{
		{Path: "status", Value: string(status)},
	}); err != nil {
		return pfirestore.WrapError("firestore: update payments", err)
	}
	return nil
}
