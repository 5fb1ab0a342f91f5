package model

// DefaultPlaceholderImage is the bundled asset shown when a product has no
// usable image.
const DefaultPlaceholderImage = "image11"

// ImageRef points either at a remote image or at a bundled placeholder asset.
// Exactly one of URL and Asset is set.
type ImageRef struct {
	URL   string `json:"url,omitempty"`
	Asset string `json:"asset,omitempty"`
}

// DisplayCard is the view-ready form of one catalog product.
// It is derived on every fetch and never persisted.
type DisplayCard struct {
	// ID is the base product id; wishlist membership is keyed on it.
	ID string `json:"id"`
	// EffectiveID is the id used for cart operations: the product id for
	// simple products, a chosen variation id for variable ones.
	EffectiveID   string   `json:"effective_id"`
	Title         string   `json:"title"`
	Image         ImageRef `json:"image"`
	Price         float64  `json:"price"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	Discount      *int     `json:"discount,omitempty"`
	Rating        float64  `json:"rating"`
}

// DecoratedCard is a DisplayCard plus the per-user state a view overlays on it.
type DecoratedCard struct {
	DisplayCard
	InWishlist      bool `json:"in_wishlist"`
	InCart          bool `json:"in_cart"`
	WishlistLoading bool `json:"wishlist_loading,omitempty"`
	CartLoading     bool `json:"cart_loading,omitempty"`
}

// CartEntry is one line of the cart stored on the customer record.
type CartEntry struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// CommerceState is the session-scoped copy of a customer's wishlist and cart.
// The remote customer record is authoritative; this copy is refetched after
// every mutation.
type CommerceState struct {
	UserID   int         `json:"user_id,omitempty"`
	Wishlist []string    `json:"wishlist"`
	Cart     []CartEntry `json:"cart"`
}

// HasWishlist reports whether productID is wishlisted.
func (s CommerceState) HasWishlist(productID string) bool {
	for _, id := range s.Wishlist {
		if id == productID {
			return true
		}
	}
	return false
}

// HasCart reports whether effectiveID has a cart entry.
func (s CommerceState) HasCart(effectiveID string) bool {
	for _, e := range s.Cart {
		if e.ID == effectiveID {
			return true
		}
	}
	return false
}

// Float64 returns a pointer to v. Used for optional card fields.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
