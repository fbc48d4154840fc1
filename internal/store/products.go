package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/stockorder/internal/database"
	"github.com/safar/stockorder/internal/models"
)

const productColumns = `id, name, description, price, stock, created_at, updated_at, version`

type ProductRepo struct {
	q Querier
	// forUpdate row-locks every product read until the surrounding
	// transaction ends.
	forUpdate bool
}

func NewProductRepo(q Querier) *ProductRepo {
	return &ProductRepo{q: q}
}

func scanProduct(row interface{ Scan(...any) error }, product *models.Product) error {
	return row.Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Stock,
		&product.CreatedAt,
		&product.UpdatedAt,
		&product.Version,
	)
}

func (r *ProductRepo) Create(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, description, price, stock, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	err := scanProduct(r.q.QueryRowContext(ctx, query,
		product.Name, product.Description, product.Price, product.Stock), product)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}

	return nil
}

func (r *ProductRepo) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	product := &models.Product{}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if r.forUpdate {
		query += ` FOR UPDATE`
	}

	err := scanProduct(r.q.QueryRowContext(ctx, query, id), product)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "55P03" {
			return nil, fmt.Errorf("lock product %d: %w", id, database.ErrLockTimeout)
		}
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}

	return product, nil
}

// Update writes every mutable field, guarded by the revision marker. On
// success product carries the new version and timestamp.
func (r *ProductRepo) Update(ctx context.Context, product *models.Product) error {
	err := r.q.QueryRowContext(ctx,
		`UPDATE products
		 SET name = $1, description = $2, price = $3, stock = $4,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $5 AND version = $6
		 RETURNING version, updated_at`,
		product.Name, product.Description, product.Price, product.Stock,
		product.ID, product.Version).Scan(&product.Version, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrOptimisticLockFailed
		}
		return fmt.Errorf("update product %d: %w", product.ID, err)
	}

	return nil
}

func (r *ProductRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return database.ErrProductNotFound
	}

	return nil
}

func (r *ProductRepo) List(ctx context.Context, page, pageSize int) (*OffsetPage, error) {
	if page < 1 || pageSize < 1 || (page-1)*pageSize < 0 {
		return nil, fmt.Errorf("list products: invalid page %d of size %d", page, pageSize)
	}

	var total int64
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	offset := (page - 1) * pageSize
	query := `
		SELECT ` + productColumns + `
		FROM products
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := r.q.QueryContext(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		var product models.Product
		if err := scanProduct(rows, &product); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return NewOffsetPage(products, total, page, pageSize), nil
}
