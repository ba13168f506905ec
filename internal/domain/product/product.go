package product

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrDuplicateProduct = errors.New("product already exists")
	ErrOutOfStock       = errors.New("product is out of stock")
	ErrProductInUse     = errors.New("product is referenced by an order")
	ErrInvalidPrice     = errors.New("price must be positive with at most 2 decimals and below 1000")
	ErrInvalidName      = errors.New("name is required")
	ErrInvalidWeight    = errors.New("weight must be positive")
	ErrInvalidID        = errors.New("id must be positive")
)

// maxPrice is the first value that no longer fits five digits with two decimals.
var maxPrice = decimal.NewFromInt(1000)

type Product struct {
	ID          int64
	Name        string
	InStock     bool
	Description *string
	Price       decimal.Decimal
	Weight      *int
	Image       string
}

// Validate checks the invariants the catalog enforces on every write.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrInvalidName
	}
	if !p.Price.IsPositive() || p.Price.GreaterThanOrEqual(maxPrice) || !p.Price.Equal(p.Price.Round(2)) {
		return ErrInvalidPrice
	}
	if p.Weight != nil && *p.Weight <= 0 {
		return ErrInvalidWeight
	}
	if p.ID < 0 {
		return ErrInvalidID
	}
	return nil
}

// ShippingWeight returns the weight used for shipping; a missing weight counts as zero.
func (p *Product) ShippingWeight() int {
	if p.Weight == nil {
		return 0
	}
	return *p.Weight
}

// Repository persists products. Get reports ErrProductNotFound for an unknown id
// and Create reports ErrDuplicateProduct when an explicit id is taken.
// DeleteProducts reports ErrProductInUse while orders still reference a product.
type Repository interface {
	CreateProduct(ctx context.Context, p *Product) error
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (*Product, error)
	DeleteProducts(ctx context.Context) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create adds a product to the catalog. A zero ID lets the store assign one;
// a non-zero ID is inserted as given.
func (s *Service) Create(ctx context.Context, p Product) (*Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateProduct(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// DropAll removes every product from the catalog.
func (s *Service) DropAll(ctx context.Context) error {
	return s.repo.DeleteProducts(ctx)
}
