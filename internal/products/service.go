// Package products manages the product catalog.
package products

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/safar/stockorder/internal/database"
	"github.com/safar/stockorder/internal/models"
	"github.com/safar/stockorder/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNotFound = database.ErrProductNotFound
	ErrConflict = errors.New("product was modified concurrently")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Input carries the client-settable product fields. A positive Version on
// update must match the stored revision.
type Input struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Version     int
}

func (in Input) Validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return &ValidationError{Field: "name", Message: "must not be empty"}
	case in.Price.IsNegative():
		return &ValidationError{Field: "price", Message: "must not be negative"}
	case !in.Price.Equal(in.Price.Round(2)):
		return &ValidationError{Field: "price", Message: "must have at most two decimal places"}
	case in.Stock < 0:
		return &ValidationError{Field: "stock", Message: "must not be negative"}
	}
	return nil
}

type Service struct {
	catalog     store.Catalog
	coordinator store.Coordinator
	logger      *zap.Logger
}

func NewService(catalog store.Catalog, coordinator store.Coordinator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{catalog: catalog, coordinator: coordinator, logger: logger}
}

func (s *Service) List(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	if page > math.MaxInt32/pageSize {
		return nil, &ValidationError{Field: "page", Message: "out of range"}
	}
	return s.catalog.List(ctx, page, pageSize)
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Product, error) {
	return s.catalog.GetByID(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (*models.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
	}
	if err := s.catalog.Create(ctx, product); err != nil {
		return nil, err
	}

	s.logger.Info("product created", zap.Int64("product_id", product.ID), zap.Int("stock", product.Stock))
	return product, nil
}

// Update replaces the mutable fields of product id under a row lock.
func (s *Service) Update(ctx context.Context, id int64, in Input) (_ *models.Product, err error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	uow, err := s.coordinator.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// Also runs when a store call panics.
		if rbErr := uow.Rollback(); rbErr != nil && err != nil {
			err = fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
	}()

	product, err := uow.Products().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Version > 0 && in.Version != product.Version {
		return nil, fmt.Errorf("product %d at version %d, client has %d: %w",
			id, product.Version, in.Version, ErrConflict)
	}

	product.Name = in.Name
	product.Description = in.Description
	product.Price = in.Price
	product.Stock = in.Stock

	if err = uow.Products().Update(ctx, product); err != nil {
		if errors.Is(err, database.ErrOptimisticLockFailed) {
			return nil, fmt.Errorf("update product %d: %w", id, ErrConflict)
		}
		return nil, err
	}
	if err = uow.Commit(); err != nil {
		return nil, err
	}
	committed = true

	s.logger.Info("product updated", zap.Int64("product_id", id), zap.Int("version", product.Version))
	return product, nil
}

// Delete removes a product. Orders that reference it are kept.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.catalog.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("product deleted", zap.Int64("product_id", id))
	return nil
}
