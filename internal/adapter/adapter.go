// Package adapter defines the ports the storefront core uses to reach the
// remote store. The WooCommerce client implements them; tests use Mock.
package adapter

import (
	"context"

	"storefront/internal/woocommerce"
)

// Catalog reads product records.
type Catalog interface {
	// ListProducts returns one page of products. An empty slice, not an
	// error, signals that there are no more results.
	ListProducts(ctx context.Context, q woocommerce.ProductQuery) ([]woocommerce.Product, error)

	// GetProduct returns one product by id.
	GetProduct(ctx context.Context, id string) (*woocommerce.Product, error)

	// GetVariation returns one variation detail by its own id.
	GetVariation(ctx context.Context, id string) (*woocommerce.Variation, error)

	// SearchProducts runs a free-text product search.
	SearchProducts(ctx context.Context, query string) ([]woocommerce.Product, error)
}

// Customers reads and writes the customer record that carries the
// wishlist and cart.
type Customers interface {
	GetCustomer(ctx context.Context, id int) (*woocommerce.Customer, error)

	// UpdateCustomerMeta replaces one meta field. value is the complete
	// replacement; there is no merge.
	UpdateCustomerMeta(ctx context.Context, id int, key string, value any) error
}

// Store is the full remote surface.
type Store interface {
	Catalog
	Customers
}

// Verify the WooCommerce client implements Store at compile time.
var _ Store = (*woocommerce.Client)(nil)
