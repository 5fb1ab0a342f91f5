// Package woocommerce is the client for the WooCommerce REST API (v3) the
// storefront reads its catalog and customer records from.
// All WooCommerce-specific wire types and HTTP logic live here.
package woocommerce

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"
)

// FlexString holds a JSON scalar that WooCommerce may send either as a
// string or as a number ("price": "80" vs "price": 80). null decodes to "".
type FlexString string

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	// Numbers and booleans keep their literal text.
	*f = FlexString(data)
	return nil
}

// String returns the raw text.
func (f FlexString) String() string { return string(f) }

// === WooCommerce API Response Types ===

// Product is a catalog record from GET /products.
// Supplied entirely by the remote API and treated as immutable.
type Product struct {
	ID            FlexString   `json:"id"`
	Name          string       `json:"name"`
	Type          string       `json:"type"` // "simple", "variable", ...
	Status        string       `json:"status"`
	Price         FlexString   `json:"price"`
	RegularPrice  FlexString   `json:"regular_price"`
	SalePrice     FlexString   `json:"sale_price"`
	PriceHTML     string       `json:"price_html,omitempty"` // rendered range for variable products
	AverageRating FlexString   `json:"average_rating"`
	RatingCount   int          `json:"rating_count"`
	Images        []Image      `json:"images,omitempty"`
	Categories    []Category   `json:"categories,omitempty"`
	Variations    []FlexString `json:"variations,omitempty"` // variation ids
	Attributes    []Attribute  `json:"attributes,omitempty"`
}

// IsVariable reports whether the product is priced through variations.
func (p *Product) IsVariable() bool {
	return p.Type == "variable"
}

// Variation is a variation detail record. The storefront fetches these
// through the product detail endpoint, which serves variations by id.
type Variation struct {
	ID           FlexString           `json:"id"`
	Price        FlexString           `json:"price"`
	RegularPrice FlexString           `json:"regular_price"`
	SalePrice    FlexString           `json:"sale_price"`
	Attributes   []VariationAttribute `json:"attributes"`
}

// VariationAttribute is a chosen option of a variation, e.g. Size=Large.
type VariationAttribute struct {
	Name   string `json:"name"`
	Option string `json:"option"`
}

// Image is a product image.
type Image struct {
	ID  int    `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// Category is a product category reference.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Attribute is a product-level attribute with its selectable options.
type Attribute struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Slug    string   `json:"slug,omitempty"`
	Options []string `json:"options,omitempty"`
}

// Customer is a customer record from GET /customers/{id}.
// Wishlist and cart live in MetaData under the "wishlist" and "cart" keys.
type Customer struct {
	ID        int        `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	MetaData  []MetaData `json:"meta_data"`
}

// Meta returns the raw value stored under key, or nil.
func (c *Customer) Meta(key string) json.RawMessage {
	if c == nil {
		return nil
	}
	for _, m := range c.MetaData {
		if m.Key == key {
			return m.Value
		}
	}
	return nil
}

// MetaData is one key/value pair of a customer's meta_data list.
type MetaData struct {
	ID    int             `json:"id,omitempty"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// CartMetaItem is the stored shape of one cart entry. Older app builds wrote
// numeric ids, hence FlexString.
type CartMetaItem struct {
	ID       FlexString `json:"id"`
	Quantity int        `json:"quantity"`
}

// ErrorResponse represents a WooCommerce API error.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// === WooCommerce API Request Types ===

// MetaUpdate is the PUT /customers/{id} body replacing meta fields.
// WooCommerce does not merge values: each entry replaces the whole field.
type MetaUpdate struct {
	MetaData []MetaEntry `json:"meta_data"`
}

// MetaEntry is one replacement meta field.
type MetaEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ProductQuery holds GET /products filters. Zero fields are omitted.
type ProductQuery struct {
	PerPage int
	Page    int
	Status  string
	Order   string
	OrderBy string
	Search  string
}

// RecommendationQuery is the listing the "people also viewed" grid pages
// through: newest published products first.
func RecommendationQuery(page, perPage int) ProductQuery {
	return ProductQuery{
		PerPage: perPage,
		Page:    page,
		Status:  "publish",
		Order:   "desc",
		OrderBy: "date",
	}
}

// values encodes the query without credentials.
func (q ProductQuery) values() url.Values {
	v := url.Values{}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if q.OrderBy != "" {
		v.Set("orderby", q.OrderBy)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	return v
}
