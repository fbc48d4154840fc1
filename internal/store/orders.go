package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/stockorder/internal/database"
	"github.com/safar/stockorder/internal/models"
)

const orderColumns = `id, product_id, quantity, total, ordered_at`

type OrderRepo struct {
	q Querier
}

func NewOrderRepo(q Querier) *OrderRepo {
	return &OrderRepo{q: q}
}

func scanOrder(row interface{ Scan(...any) error }, order *models.Order) error {
	err := row.Scan(
		&order.ID,
		&order.ProductID,
		&order.Quantity,
		&order.Total,
		&order.Date,
	)
	if err != nil {
		return err
	}
	order.Date = order.Date.UTC()
	return nil
}

// Add inserts order and sets its ID. Date and Total are stored as given.
func (r *OrderRepo) Add(ctx context.Context, order *models.Order) error {
	err := r.q.QueryRowContext(ctx,
		`INSERT INTO orders (product_id, quantity, total, ordered_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		order.ProductID, order.Quantity, order.Total, order.Date).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	return nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := scanOrder(r.q.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id), order)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}

	return order, nil
}

func (r *OrderRepo) GetAll(ctx context.Context) ([]models.Order, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func (r *OrderRepo) ListPage(ctx context.Context, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE (ordered_at, id) < ($1, $2)
		ORDER BY ordered_at DESC, id DESC
		LIMIT $3`

	rows, err := r.q.QueryContext(ctx, query, cursorData.Date, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders, err := collectOrders(rows)
	if err != nil {
		return nil, err
	}

	return NewCursorPage(orders, limit), nil
}

// NewCursorPage trims a newest-first slice fetched with limit+1 rows into a
// page and derives the next cursor.
func NewCursorPage(orders []models.Order, limit int) *CursorPage {
	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			Date: lastOrder.Date,
			ID:   lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}
}

func collectOrders(rows *sql.Rows) ([]models.Order, error) {
	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}
