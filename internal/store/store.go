// Package store holds the persistence ports used by the order and catalog
// workflows together with their PostgreSQL implementation.
package store

import (
	"context"
	"database/sql"

	"github.com/safar/stockorder/internal/models"
)

// ProductStore is the product surface available inside a unit of work.
// GetByID returns database.ErrProductNotFound when the product is absent.
type ProductStore interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	Update(ctx context.Context, product *models.Product) error
}

// OrderStore is the append-only order surface available inside a unit of work.
type OrderStore interface {
	Add(ctx context.Context, order *models.Order) error
	GetAll(ctx context.Context) ([]models.Order, error)
}

// UnitOfWork groups store operations that commit or roll back together.
// Rollback after Commit, or a second Rollback, is a no-op.
type UnitOfWork interface {
	Products() ProductStore
	Orders() OrderStore
	Commit() error
	Rollback() error
}

type Coordinator interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Catalog serves product management outside the order workflow.
type Catalog interface {
	List(ctx context.Context, page, pageSize int) (*OffsetPage, error)
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id int64) error
}

// OrderQueries serves read-only order lookups.
type OrderQueries interface {
	GetAll(ctx context.Context) ([]models.Order, error)
	GetByID(ctx context.Context, id int64) (*models.Order, error)
	ListPage(ctx context.Context, cursor string, limit int) (*CursorPage, error)
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
