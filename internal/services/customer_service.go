package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/storelane/fulfillment/internal/domain"
	"github.com/storelane/fulfillment/internal/repositories"
)

var (
	// ErrCustomerInvalidInput signals a blank principal identifier.
	ErrCustomerInvalidInput = errors.New("customer: invalid input")
	// ErrCustomerNotFound indicates no customer record owns the principal.
	// An order cannot exist without an owning customer, so the orchestrator
	// treats this as terminal.
	ErrCustomerNotFound = errors.New("customer: not found")
)

// CustomerServiceDeps bundles collaborators required to construct the service.
type CustomerServiceDeps struct {
	Customers repositories.CustomerRepository
}

type customerService struct {
	customers repositories.CustomerRepository
}

// NewCustomerService wires dependencies into a CustomerService implementation.
func NewCustomerService(deps CustomerServiceDeps) (CustomerService, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
	}
	return &customerService{customers: deps.Customers}, nil
}

// ResolveByPrincipal maps an authenticated principal to the internal customer.
func (s *customerService) ResolveByPrincipal(ctx context.Context, principalID string) (domain.Customer, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return domain.Customer{}, fmt.Errorf("%w: principal id is required", ErrCustomerInvalidInput)
	}

	customer, err := s.customers.FindByPrincipal(ctx, principalID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.Customer{}, fmt.Errorf("%w: principal %s", ErrCustomerNotFound, principalID)
		}
		return domain.Customer{}, err
	}
	return customer, nil
}
