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

const customersCollection = "customers"

type customerDocument struct {
	ID          string    `firestore:"id"`
	PrincipalID string    `firestore:"principalId"`
	Email       string    `firestore:"email"`
	DisplayName string    `firestore:"displayName"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func (d customerDocument) toDomain() domain.Customer {
	return domain.Customer{
		ID:          d.ID,
		PrincipalID: d.PrincipalID,
		Email:       d.Email,
		DisplayName: d.DisplayName,
		CreatedAt:   d.CreatedAt,
	}
}

// CustomerRepository resolves authenticated principals to customer records.
type CustomerRepository struct {
	customers *pfirestore.Collection[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed CustomerRepository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		customers: pfirestore.NewCollection[customerDocument](provider, customersCollection),
	}, nil
}

// FindByPrincipal looks up the customer owning the given principal identifier.
func (r *CustomerRepository) FindByPrincipal(ctx context.Context, principalID string) (domain.Customer, error) {
	docs, err := r.customers.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("principalId", "==", principalID).Limit(1)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	if len(docs) == 0 {
		return domain.Customer{}, pfirestore.NewNotFound("firestore: query customers",
			fmt.Errorf("no customer for principal %s", principalID))
	}
	return docs[0].toDomain(), nil
}
