package adapter

import (
	"context"

	"storefront/internal/model"
	"storefront/internal/woocommerce"
)

// Mock implements Store for testing.
// Each method can be configured via function fields.
type Mock struct {
	ListProductsFunc       func(ctx context.Context, q woocommerce.ProductQuery) ([]woocommerce.Product, error)
	GetProductFunc         func(ctx context.Context, id string) (*woocommerce.Product, error)
	GetVariationFunc       func(ctx context.Context, id string) (*woocommerce.Variation, error)
	SearchProductsFunc     func(ctx context.Context, query string) ([]woocommerce.Product, error)
	GetCustomerFunc        func(ctx context.Context, id int) (*woocommerce.Customer, error)
	UpdateCustomerMetaFunc func(ctx context.Context, id int, key string, value any) error
}

// ListProducts calls the configured ListProductsFunc or returns an empty page.
func (m *Mock) ListProducts(ctx context.Context, q woocommerce.ProductQuery) ([]woocommerce.Product, error) {
	if m.ListProductsFunc != nil {
		return m.ListProductsFunc(ctx, q)
	}
	return nil, nil
}

// GetProduct calls the configured GetProductFunc or returns not found.
func (m *Mock) GetProduct(ctx context.Context, id string) (*woocommerce.Product, error) {
	if m.GetProductFunc != nil {
		return m.GetProductFunc(ctx, id)
	}
	return nil, model.NewNotFoundError("product")
}

// GetVariation calls the configured GetVariationFunc or returns not found.
func (m *Mock) GetVariation(ctx context.Context, id string) (*woocommerce.Variation, error) {
	if m.GetVariationFunc != nil {
		return m.GetVariationFunc(ctx, id)
	}
	return nil, model.NewNotFoundError("variation")
}

// SearchProducts calls the configured SearchProductsFunc or returns no results.
func (m *Mock) SearchProducts(ctx context.Context, query string) ([]woocommerce.Product, error) {
	if m.SearchProductsFunc != nil {
		return m.SearchProductsFunc(ctx, query)
	}
	return nil, nil
}

// GetCustomer calls the configured GetCustomerFunc or returns not found.
func (m *Mock) GetCustomer(ctx context.Context, id int) (*woocommerce.Customer, error) {
	if m.GetCustomerFunc != nil {
		return m.GetCustomerFunc(ctx, id)
	}
	return nil, model.NewNotFoundError("customer")
}

// UpdateCustomerMeta calls the configured UpdateCustomerMetaFunc or returns an error.
func (m *Mock) UpdateCustomerMeta(ctx context.Context, id int, key string, value any) error {
	if m.UpdateCustomerMetaFunc != nil {
		return m.UpdateCustomerMetaFunc(ctx, id, key, value)
	}
	return model.NewInternalError(nil)
}

// Verify Mock implements Store interface at compile time.
var _ Store = (*Mock)(nil)
