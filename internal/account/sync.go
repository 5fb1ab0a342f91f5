// Package account keeps a signed-in customer's wishlist and cart in step
// with the customer record on the store.
//
// The remote record is authoritative. Synchronizer always refetches it;
// Mutators read-modify-write it and then refetch. Nothing here is
// transactional: a concurrent write from another device between the read
// and the write is overwritten.
package account

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"storefront/internal/adapter"
	"storefront/internal/model"
	"storefront/internal/session"
	"storefront/internal/woocommerce"
)

// Meta keys on the customer record.
const (
	WishlistKey = "wishlist"
	CartKey     = "cart"
)

// Synchronizer holds the last fetched CommerceState for decoration.
type Synchronizer struct {
	customers adapter.Customers
	sessions  session.Provider
	logger    *slog.Logger

	mu    sync.RWMutex
	state model.CommerceState
}

// NewSynchronizer creates a Synchronizer for the session sessions returns.
func NewSynchronizer(customers adapter.Customers, sessions session.Provider, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		customers: customers,
		sessions:  sessions,
		logger:    logger,
	}
}

// Sync refetches the customer record. Without a session the state is
// cleared. On fetch failure the previous snapshot is kept and the error
// returned. Call it on mount and whenever the view regains focus.
func (s *Synchronizer) Sync(ctx context.Context) (model.CommerceState, error) {
	sess, err := s.sessions.Current(ctx)
	if err != nil {
		s.logger.Warn("session lookup failed", "error", err)
		sess = nil
	}

	if sess == nil {
		s.store(model.CommerceState{})
		return model.CommerceState{}, nil
	}

	cust, err := s.customers.GetCustomer(ctx, sess.UserID)
	if err != nil {
		s.logger.Error("fetching customer failed",
			"user_id", sess.UserID,
			"error", err,
		)
		return s.Snapshot(), err
	}

	state := StateFromCustomer(cust, s.logger)
	state.UserID = sess.UserID
	s.store(state)
	return state, nil
}

// Snapshot returns the last synced state.
func (s *Synchronizer) Snapshot() model.CommerceState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// InWishlist reports whether productID was wishlisted at the last sync.
func (s *Synchronizer) InWishlist(productID string) bool {
	return s.Snapshot().HasWishlist(productID)
}

// InCart reports whether effectiveID was in the cart at the last sync.
func (s *Synchronizer) InCart(effectiveID string) bool {
	return s.Snapshot().HasCart(effectiveID)
}

// Decorate overlays membership from the last snapshot. Wishlist is matched
// on ID, cart on EffectiveID.
func (s *Synchronizer) Decorate(cards []model.DisplayCard) []model.DecoratedCard {
	state := s.Snapshot()
	out := make([]model.DecoratedCard, len(cards))
	for i, c := range cards {
		out[i] = model.DecoratedCard{
			DisplayCard: c,
			InWishlist:  state.HasWishlist(c.ID),
			InCart:      state.HasCart(c.EffectiveID),
		}
	}
	return out
}

func (s *Synchronizer) store(state model.CommerceState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// StateFromCustomer extracts wishlist and cart from the customer's meta
// data. Missing or malformed values read as empty.
func StateFromCustomer(c *woocommerce.Customer, logger *slog.Logger) model.CommerceState {
	state := model.CommerceState{
		Wishlist: readWishlist(c, logger),
		Cart:     []model.CartEntry{},
	}
	if c != nil {
		state.UserID = c.ID
	}

	for _, raw := range readCart(c, logger) {
		var item woocommerce.CartMetaItem
		if err := json.Unmarshal(raw, &item); err != nil || item.ID == "" {
			continue
		}
		state.Cart = append(state.Cart, model.CartEntry{ID: item.ID.String(), Quantity: item.Quantity})
	}
	return state
}

// readWishlist returns the stored product ids as strings.
func readWishlist(c *woocommerce.Customer, logger *slog.Logger) []string {
	ids := []string{}
	raw := c.Meta(WishlistKey)
	if len(raw) == 0 {
		return ids
	}

	var stored []woocommerce.FlexString
	if err := json.Unmarshal(raw, &stored); err != nil {
		logger.Debug("ignoring malformed wishlist meta", "error", err)
		return ids
	}
	for _, id := range stored {
		if id != "" {
			ids = append(ids, id.String())
		}
	}
	return ids
}

// readCart returns the stored cart entries verbatim so a rewrite keeps
// fields this package does not know about.
func readCart(c *woocommerce.Customer, logger *slog.Logger) []json.RawMessage {
	raw := c.Meta(CartKey)
	if len(raw) == 0 {
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		logger.Debug("ignoring malformed cart meta", "error", err)
		return nil
	}
	return entries
}
