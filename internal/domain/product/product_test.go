package product

import (
	"context"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepository struct {
	products  map[int64]Product
	nextID    int64
	createErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{products: make(map[int64]Product), nextID: 1}
}

func (r *fakeRepository) CreateProduct(_ context.Context, p *Product) error {
	if r.createErr != nil {
		return r.createErr
	}
	if p.ID == 0 {
		p.ID = r.nextID
		r.nextID++
	}
	if _, exists := r.products[p.ID]; exists {
		return ErrDuplicateProduct
	}
	r.products[p.ID] = *p
	return nil
}

func (r *fakeRepository) ListProducts(_ context.Context) ([]Product, error) {
	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepository) GetProduct(_ context.Context, id int64) (*Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return &p, nil
}

func (r *fakeRepository) DeleteProducts(_ context.Context) error {
	r.products = make(map[int64]Product)
	return nil
}

func newTestProductService() (*Service, *fakeRepository) {
	repo := newFakeRepository()
	return NewService(repo), repo
}

func intPtr(v int) *int { return &v }

// ============================================
// Create Product Tests
// ============================================

func TestService_Create_ValidProduct(t *testing.T) {
	service, repo := newTestProductService()
	ctx := context.Background()

	p, err := service.Create(ctx, Product{
		Name:    "  Brown eggs ",
		InStock: true,
		Price:   decimal.RequireFromString("28.10"),
		Weight:  intPtr(400),
		Image:   "0.jpg",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)
	assert.Equal(t, "Brown eggs", p.Name)
	assert.Len(t, repo.products, 1)
}

func TestService_Create_ExplicitID(t *testing.T) {
	service, _ := newTestProductService()
	ctx := context.Background()

	p, err := service.Create(ctx, Product{ID: 42, Name: "Sweet fresh strawberry", Price: decimal.RequireFromString("29.45")})

	require.NoError(t, err)
	assert.Equal(t, int64(42), p.ID)

	_, err = service.Create(ctx, Product{ID: 42, Name: "Duplicate", Price: decimal.RequireFromString("1.00")})
	assert.ErrorIs(t, err, ErrDuplicateProduct)
}

func TestService_Create_EmptyName(t *testing.T) {
	service, repo := newTestProductService()

	p, err := service.Create(context.Background(), Product{Name: "   ", Price: decimal.RequireFromString("1.00")})

	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Nil(t, p)
	assert.Empty(t, repo.products)
}

func TestService_Create_InvalidPrice(t *testing.T) {
	service, _ := newTestProductService()
	ctx := context.Background()

	for _, price := range []string{"0", "-1.00", "1000.00", "9.999"} {
		_, err := service.Create(ctx, Product{Name: "Item", Price: decimal.RequireFromString(price)})
		assert.ErrorIs(t, err, ErrInvalidPrice, "price %s", price)
	}
}

func TestService_Create_InvalidWeight(t *testing.T) {
	service, _ := newTestProductService()

	_, err := service.Create(context.Background(), Product{Name: "Item", Price: decimal.RequireFromString("1.00"), Weight: intPtr(0)})

	assert.ErrorIs(t, err, ErrInvalidWeight)
}

// ============================================
// Read / Drop Tests
// ============================================

func TestService_Get_NotFound(t *testing.T) {
	service, _ := newTestProductService()

	p, err := service.Get(context.Background(), 7)

	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Nil(t, p)
}

func TestService_DropAll(t *testing.T) {
	service, _ := newTestProductService()
	ctx := context.Background()

	_, err := service.Create(ctx, Product{Name: "Item", Price: decimal.RequireFromString("1.00")})
	require.NoError(t, err)

	require.NoError(t, service.DropAll(ctx))

	products, err := service.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestProduct_ShippingWeight(t *testing.T) {
	assert.Equal(t, 0, (&Product{}).ShippingWeight())
	assert.Equal(t, 250, (&Product{Weight: intPtr(250)}).ShippingWeight())
}
