// Package memory is an in-process implementation of the store ports. Units of
// work are serialized: at most one is open at a time, so every unit of work
// observes the effects of all previously committed ones.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/safar/stockorder/internal/database"
	"github.com/safar/stockorder/internal/models"
	"github.com/safar/stockorder/internal/store"
)

var (
	ErrTxDone        = errors.New("memory: unit of work already committed or rolled back")
	ErrNegativeStock = errors.New("memory: product stock must not be negative")
)

type Store struct {
	// sem admits one writer at a time: a unit of work or a single write.
	sem chan struct{}

	mu            sync.RWMutex
	products      map[int64]models.Product
	orders        []models.Order
	nextProductID int64
	nextOrderID   int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		sem:      make(chan struct{}, 1),
		products: make(map[int64]models.Product),
		now:      time.Now,
	}
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() { <-s.sem }

func (s *Store) Begin(ctx context.Context) (store.UnitOfWork, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	return &unitOfWork{
		store:    s,
		ctx:      ctx,
		products: make(map[int64]models.Product),
	}, nil
}

func (s *Store) Products() *Catalog { return &Catalog{store: s} }

func (s *Store) Orders() *Orders { return &Orders{store: s} }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) product(id int64) (models.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return p, ok
}

func (s *Store) allOrders() []models.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

type unitOfWork struct {
	store *Store
	ctx   context.Context

	mu       sync.Mutex
	done     bool
	products map[int64]models.Product
	orders   []models.Order
}

func (u *unitOfWork) Products() store.ProductStore { return (*txProducts)(u) }
func (u *unitOfWork) Orders() store.OrderStore     { return (*txOrders)(u) }

func (u *unitOfWork) Commit() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return ErrTxDone
	}
	u.done = true
	defer u.store.release()

	if err := u.ctx.Err(); err != nil {
		return err
	}

	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range u.products {
		s.products[id] = p
	}
	s.orders = append(s.orders, u.orders...)
	return nil
}

func (u *unitOfWork) Rollback() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return nil
	}
	u.done = true
	u.products = nil
	u.orders = nil
	u.store.release()
	return nil
}

func (u *unitOfWork) check(ctx context.Context) error {
	if u.done {
		return ErrTxDone
	}
	return ctx.Err()
}

type txProducts unitOfWork

func (t *txProducts) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	u := (*unitOfWork)(t)
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.check(ctx); err != nil {
		return nil, err
	}

	if p, ok := u.products[id]; ok {
		return &p, nil
	}
	p, ok := u.store.product(id)
	if !ok {
		return nil, database.ErrProductNotFound
	}
	return &p, nil
}

func (t *txProducts) Update(ctx context.Context, product *models.Product) error {
	u := (*unitOfWork)(t)
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.check(ctx); err != nil {
		return err
	}

	current, ok := u.products[product.ID]
	if !ok {
		current, ok = u.store.product(product.ID)
	}
	if !ok || current.Version != product.Version {
		return database.ErrOptimisticLockFailed
	}
	if product.Stock < 0 {
		return ErrNegativeStock
	}

	product.Version++
	product.UpdatedAt = u.store.now().UTC()
	u.products[product.ID] = *product
	return nil
}

type txOrders unitOfWork

func (t *txOrders) Add(ctx context.Context, order *models.Order) error {
	u := (*unitOfWork)(t)
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.check(ctx); err != nil {
		return err
	}

	u.store.mu.Lock()
	u.store.nextOrderID++
	order.ID = u.store.nextOrderID
	u.store.mu.Unlock()

	u.orders = append(u.orders, *order)
	return nil
}

func (t *txOrders) GetAll(ctx context.Context) ([]models.Order, error) {
	u := (*unitOfWork)(t)
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.check(ctx); err != nil {
		return nil, err
	}

	return append(u.store.allOrders(), u.orders...), nil
}

// Catalog serves product reads and single writes outside a unit of work.
type Catalog struct {
	store *Store
}

func (c *Catalog) Create(ctx context.Context, product *models.Product) error {
	s := c.store
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	s.nextProductID++
	product.ID = s.nextProductID
	product.CreatedAt = now
	product.UpdatedAt = now
	product.Version = 1
	s.products[product.ID] = *product
	return nil
}

func (c *Catalog) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := c.store.product(id)
	if !ok {
		return nil, database.ErrProductNotFound
	}
	return &p, nil
}

func (c *Catalog) Delete(ctx context.Context, id int64) error {
	s := c.store
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return database.ErrProductNotFound
	}
	delete(s.products, id)
	return nil
}

func (c *Catalog) List(ctx context.Context, page, pageSize int) (*store.OffsetPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := c.store
	s.mu.RLock()
	all := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		all = append(all, p)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	items := []models.Product{}
	if offset := (page - 1) * pageSize; offset >= 0 && offset < len(all) {
		end := offset + pageSize
		if end > len(all) {
			end = len(all)
		}
		items = all[offset:end]
	}

	return store.NewOffsetPage(items, int64(len(all)), page, pageSize), nil
}

// Orders serves committed orders outside a unit of work.
type Orders struct {
	store *Store
}

func (o *Orders) GetAll(ctx context.Context) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return o.store.allOrders(), nil
}

func (o *Orders) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, order := range o.store.allOrders() {
		if order.ID == id {
			return &order, nil
		}
	}
	return nil, database.ErrOrderNotFound
}

func (o *Orders) ListPage(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	position, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	all := o.store.allOrders()
	sort.Slice(all, func(i, j int) bool {
		if all[i].Date.Equal(all[j].Date) {
			return all[i].ID > all[j].ID
		}
		return all[i].Date.After(all[j].Date)
	})

	page := make([]models.Order, 0, limit+1)
	for _, order := range all {
		if !position.Before(order.Date, order.ID) {
			continue
		}
		page = append(page, order)
		if len(page) == limit+1 {
			break
		}
	}

	return store.NewCursorPage(page, limit), nil
}
