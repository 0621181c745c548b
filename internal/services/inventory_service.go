package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/storelane/fulfillment/internal/domain"
	"github.com/storelane/fulfillment/internal/repositories"
)

const defaultStockWorkers = 4

var (
	// ErrInventoryInvalidInput signals the caller provided invalid cart lines.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
)

// StockFailureReason classifies why a cart line failed the availability check.
type StockFailureReason string

const (
	// StockFailureNotFound means the product does not exist.
	StockFailureNotFound StockFailureReason = "not_found"
	// StockFailureInsufficient means requested quantity exceeds stock.
	StockFailureInsufficient StockFailureReason = "insufficient_stock"
	// StockFailureUnavailable means the product could not be read at all.
	StockFailureUnavailable StockFailureReason = "unavailable"
)

// StockLineFailure describes one failing cart line.
type StockLineFailure struct {
	ProductID string             `json:"productId"`
	Reason    StockFailureReason `json:"reason"`
	Requested int                `json:"requested"`
	Available int                `json:"available"`
}

// StockUnavailableError enumerates every cart line that failed validation so
// callers can show all problems at once rather than one at a time.
type StockUnavailableError struct {
	Lines []StockLineFailure
}

// Error implements the error interface.
func (e *StockUnavailableError) Error() string {
	parts := make([]string, 0, len(e.Lines))
	for _, line := range e.Lines {
		switch line.Reason {
		case StockFailureInsufficient:
			parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", line.ProductID, line.Requested, line.Available))
		default:
			parts = append(parts, fmt.Sprintf("%s: %s", line.ProductID, line.Reason))
		}
	}
	return "inventory: stock unavailable: " + strings.Join(parts, "; ")
}

// InventoryServiceDeps bundles collaborators required to construct the service.
type InventoryServiceDeps struct {
	Products repositories.ProductRepository
	Workers  int
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	products repositories.ProductRepository
	workers  int
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into an InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory service: product repository is required")
	}

	workers := deps.Workers
	if workers <= 0 {
		workers = defaultStockWorkers
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		products: deps.Products,
		workers:  workers,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CheckAvailability fetches every product concurrently and validates the
// requested quantities. It is read-only: no writes happen regardless of the
// outcome, and a fetch failure marks that line unavailable instead of
// aborting the whole check.
func (s *inventoryService) CheckAvailability(ctx context.Context, lines []CartLine) ([]StockSnapshot, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: at least one cart line is required", ErrInventoryInvalidInput)
	}
	for _, line := range lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return nil, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrInventoryInvalidInput, line.ProductID)
		}
	}

	snapshots := make([]StockSnapshot, len(lines))
	failures := make([]*StockLineFailure, len(lines))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for i, line := range lines {
		i, line := i, line
		group.Go(func() error {
			product, err := s.products.FindByID(groupCtx, line.ProductID)
			if err != nil {
				reason := StockFailureUnavailable
				if repositories.IsNotFound(err) {
					reason = StockFailureNotFound
				}
				failures[i] = &StockLineFailure{
					ProductID: line.ProductID,
					Reason:    reason,
					Requested: line.Quantity,
				}
				return nil
			}
			if product.Stock < line.Quantity {
				failures[i] = &StockLineFailure{
					ProductID: line.ProductID,
					Reason:    StockFailureInsufficient,
					Requested: line.Quantity,
					Available: product.Stock,
				}
				return nil
			}
			snapshots[i] = StockSnapshot{
				ProductID:      line.ProductID,
				Quantity:       line.Quantity,
				UnitPriceCents: product.PriceCents,
				Stock:          product.Stock,
			}
			return nil
		})
	}
	// Workers never return errors; the group is purely a bounded join.
	_ = group.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var failed []StockLineFailure
	for _, failure := range failures {
		if failure != nil {
			failed = append(failed, *failure)
		}
	}
	if len(failed) > 0 {
		return nil, &StockUnavailableError{Lines: failed}
	}
	return snapshots, nil
}

// AdjustStockForOrder decrements stock for every line item independently and
// concurrently. Items target disjoint products, so concurrent writers never
// contend on a row. Failures are collected, never propagated: stock
// bookkeeping can be repaired out-of-band while the paid order stands.
func (s *inventoryService) AdjustStockForOrder(ctx context.Context, orderID string, snapshots []StockSnapshot) StockAdjustmentReport {
	report := StockAdjustmentReport{}
	if len(snapshots) == 0 {
		return report
	}

	type outcomeSlot struct {
		failure    *StockAdjustmentFailure
		adjustment *domain.StockAdjustment
	}

	now := s.clock()
	applied := make([]*outcomeSlot, len(snapshots))

	group := &errgroup.Group{}
	group.SetLimit(s.workers)
	for i, snapshot := range snapshots {
		i, snapshot := i, snapshot
		group.Go(func() error {
			adjustment, err := s.products.ApplyStockAdjustment(ctx, orderID, snapshot.ProductID, snapshot.Quantity, now)
			if err != nil {
				applied[i] = &outcomeSlot{failure: &StockAdjustmentFailure{
					ProductID: snapshot.ProductID,
					Message:   err.Error(),
				}}
				return nil
			}
			applied[i] = &outcomeSlot{adjustment: &adjustment}
			return nil
		})
	}
	_ = group.Wait()

	for i, slot := range applied {
		if slot == nil {
			continue
		}
		if slot.failure != nil {
			s.logger(ctx, "stock adjustment failed", map[string]any{
				"orderId":   orderID,
				"productId": snapshots[i].ProductID,
				"error":     slot.failure.Message,
			})
			report.Failed = append(report.Failed, *slot.failure)
			continue
		}
		if slot.adjustment.Clamped() {
			s.logger(ctx, "stock adjustment clamped at zero", map[string]any{
				"orderId":       orderID,
				"productId":     slot.adjustment.ProductID,
				"previousStock": slot.adjustment.PreviousStock,
				"requested":     slot.adjustment.Quantity,
			})
		}
		report.Applied = append(report.Applied, *slot.adjustment)
	}

	sort.Slice(report.Failed, func(a, b int) bool {
		return report.Failed[a].ProductID < report.Failed[b].ProductID
	})
	return report
}
