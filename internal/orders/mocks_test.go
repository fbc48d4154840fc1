package orders

import (
	"context"

	"github.com/safar/stockorder/internal/models"
	"github.com/safar/stockorder/internal/store"
	"github.com/stretchr/testify/mock"
)

type mockCoordinator struct{ mock.Mock }

func (m *mockCoordinator) Begin(ctx context.Context) (store.UnitOfWork, error) {
	args := m.Called(ctx)
	uow, _ := args.Get(0).(store.UnitOfWork)
	return uow, args.Error(1)
}

type mockUnitOfWork struct {
	mock.Mock
	products *mockProductStore
	orders   *mockOrderStore
}

func newMockUnitOfWork() *mockUnitOfWork {
	return &mockUnitOfWork{products: &mockProductStore{}, orders: &mockOrderStore{}}
}

func (m *mockUnitOfWork) Products() store.ProductStore { return m.products }
func (m *mockUnitOfWork) Orders() store.OrderStore     { return m.orders }
func (m *mockUnitOfWork) Commit() error                { return m.Called().Error(0) }
func (m *mockUnitOfWork) Rollback() error              { return m.Called().Error(0) }

type mockProductStore struct{ mock.Mock }

func (m *mockProductStore) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Product)
	return p, args.Error(1)
}

func (m *mockProductStore) Update(ctx context.Context, product *models.Product) error {
	return m.Called(ctx, product).Error(0)
}

type mockOrderStore struct{ mock.Mock }

func (m *mockOrderStore) Add(ctx context.Context, order *models.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *mockOrderStore) GetAll(ctx context.Context) ([]models.Order, error) {
	args := m.Called(ctx)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Error(1)
}

type mockOrderQueries struct{ mock.Mock }

func (m *mockOrderQueries) GetAll(ctx context.Context) ([]models.Order, error) {
	args := m.Called(ctx)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Error(1)
}

func (m *mockOrderQueries) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	args := m.Called(ctx, id)
	order, _ := args.Get(0).(*models.Order)
	return order, args.Error(1)
}

func (m *mockOrderQueries) ListPage(ctx context.Context, cursor string, limit int) (*store.CursorPage, error) {
	args := m.Called(ctx, cursor, limit)
	page, _ := args.Get(0).(*store.CursorPage)
	return page, args.Error(1)
}

type recordingPublisher struct {
	published []models.Order
	err       error
}

func (p *recordingPublisher) PublishOrderCreated(_ context.Context, order models.Order) error {
	p.published = append(p.published, order)
	return p.err
}
