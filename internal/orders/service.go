// Package orders places orders against the product catalog and answers
// queries about placed orders.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/safar/stockorder/internal/database"
	"github.com/safar/stockorder/internal/events"
	"github.com/safar/stockorder/internal/models"
	"github.com/safar/stockorder/internal/store"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/safar/stockorder/internal/orders"

type CreateOrderRequest struct {
	ProductID int64
	Quantity  int
}

func (r CreateOrderRequest) Validate() error {
	switch {
	case r.ProductID <= 0:
		return &Error{Kind: KindInvalid, Op: "create order", Err: errors.New("product id must be positive")}
	case r.Quantity <= 0:
		return &Error{Kind: KindInvalid, Op: "create order", Err: errors.New("quantity must be positive")}
	}
	return nil
}

type Service struct {
	coordinator store.Coordinator
	queries     store.OrderQueries
	publisher   events.Publisher
	logger      *zap.Logger
	tracer      trace.Tracer
	maxRetries  int
	now         func() time.Time
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMaxRetries sets how many times a unit of work that failed transiently
// (lock timeout, deadlock, serialization or revision conflict) is retried.
func WithMaxRetries(n int) Option {
	return func(s *Service) { s.maxRetries = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(coordinator store.Coordinator, queries store.OrderQueries, opts ...Option) *Service {
	s := &Service{
		coordinator: coordinator,
		queries:     queries,
		publisher:   events.NopPublisher{},
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
		maxRetries:  3,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder places an order for req.Quantity units of a product. Stock is
// checked and decremented, and the order recorded, in one unit of work: on
// any error nothing has changed.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (*models.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder", trace.WithAttributes(
		attribute.Int64("product.id", req.ProductID),
		attribute.Int("order.quantity", req.Quantity),
	))
	defer span.End()

	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, KindInvalid.String())
		return nil, err
	}

	var (
		order    *models.Order
		attempts int
	)
	err := database.Retry(ctx, s.maxRetries, func(attempt int) error {
		attempts = attempt + 1
		var err error
		order, err = s.createOrder(ctx, req)
		if err != nil && database.IsRetryable(err) && attempt < s.maxRetries {
			s.logger.Warn("order creation conflicted, retrying",
				zap.Int64("product_id", req.ProductID),
				zap.Int("attempt", attempts),
				zap.String("class", database.ClassifyError(err).String()),
				zap.Error(err),
			)
		}
		return err
	})
	span.SetAttributes(attribute.Int("order.attempts", attempts))

	if err != nil {
		err = classify("create order", err)
		kind := KindOf(err)
		span.SetAttributes(attribute.String("order.error_kind", kind.String()))
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())

		fields := []zap.Field{
			zap.Int64("product_id", req.ProductID),
			zap.Int("quantity", req.Quantity),
			zap.Stringer("kind", kind),
			zap.Error(err),
		}
		if kind == KindPersistence {
			s.logger.Error("order creation failed", fields...)
		} else {
			s.logger.Info("order rejected", fields...)
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("product_id", order.ProductID),
		zap.Int("quantity", order.Quantity),
		zap.Stringer("total", order.Total),
	)

	if err := s.publisher.PublishOrderCreated(ctx, *order); err != nil {
		s.logger.Error("publish order created", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	return order, nil
}

// createOrder runs one attempt. The deferred rollback covers every return
// after Begin that is not a successful commit.
func (s *Service) createOrder(ctx context.Context, req CreateOrderRequest) (_ *models.Order, err error) {
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

	product, err := uow.Products().GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	if product.Stock < req.Quantity {
		return nil, fmt.Errorf("product %d has %d, requested %d: %w",
			product.ID, product.Stock, req.Quantity, database.ErrInsufficientStock)
	}

	order := &models.Order{
		ProductID: product.ID,
		Quantity:  req.Quantity,
		Total:     product.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		Date:      s.now().UTC().Truncate(time.Microsecond),
	}

	product.Stock -= req.Quantity

	if err = uow.Orders().Add(ctx, order); err != nil {
		return nil, err
	}
	if err = uow.Products().Update(ctx, product); err != nil {
		return nil, err
	}

	if err = uow.Commit(); err != nil {
		return nil, err
	}
	committed = true

	return order, nil
}

// ListOrders returns every placed order in ascending id order.
func (s *Service) ListOrders(ctx context.Context) ([]models.Order, error) {
	orders, err := s.queries.GetAll(ctx)
	if err != nil {
		return nil, classify("list orders", err)
	}
	return orders, nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, err := s.queries.GetByID(ctx, id)
	if err != nil {
		return nil, classify("get order", err)
	}
	return order, nil
}

// ListOrdersPage returns up to limit orders, newest first, after cursor.
func (s *Service) ListOrdersPage(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	if limit < 1 {
		return nil, &Error{Kind: KindInvalid, Op: "list orders", Err: errors.New("limit must be positive")}
	}

	page, err := s.queries.ListPage(ctx, cursor, limit)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			return nil, &Error{Kind: KindInvalid, Op: "list orders", Err: err}
		}
		return nil, classify("list orders", err)
	}
	return page, nil
}
