package account

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"storefront/internal/adapter"
	"storefront/internal/model"
	"storefront/internal/notice"
	"storefront/internal/session"
	"storefront/internal/woocommerce"
)

// DefaultLoginPath is where signed-out users are sent.
const DefaultLoginPath = "/Login/LoginRegisterPage"

// Confirmation messages shown on the notice board.
const (
	MsgWishlistAdded   = "Item added to wishlist"
	MsgWishlistRemoved = "Item removed from wishlist"
	MsgCartAdded       = "Item added to cart"
	MsgWishlistFailed  = "Failed to update wishlist"
	MsgCartFailed      = "Failed to update cart"
)

// Outcome is what a mutation did.
type Outcome string

const (
	Added         Outcome = "added"
	Removed       Outcome = "removed"
	Unchanged     Outcome = "unchanged"
	LoginRequired Outcome = "login_required"
	Busy          Outcome = "busy"
	Failed        Outcome = "failed"
)

// Result reports a mutation's outcome and the message shown for it.
type Result struct {
	Outcome  Outcome `json:"outcome"`
	Message  string  `json:"message,omitempty"`
	LoginURL string  `json:"login_url,omitempty"`
}

// MutatorsConfig configures Mutators.
type MutatorsConfig struct {
	LoginURL string
}

// Mutators toggles wishlist entries and adds cart entries for one view.
// The loading maps are owned by this value; a second call for an id that
// is already in flight returns Busy without touching the store.
type Mutators struct {
	customers adapter.Customers
	sync      *Synchronizer
	board     *notice.Board
	logger    *slog.Logger
	loginURL  string

	mu              sync.Mutex
	loadingWishlist map[string]bool
	loadingCart     map[string]bool
}

// NewMutators creates Mutators that refresh through sync and confirm on
// board. board may be nil.
func NewMutators(customers adapter.Customers, sync *Synchronizer, board *notice.Board, logger *slog.Logger, cfg MutatorsConfig) *Mutators {
	loginURL := cfg.LoginURL
	if loginURL == "" {
		loginURL = DefaultLoginPath
	}
	return &Mutators{
		customers:       customers,
		sync:            sync,
		board:           board,
		logger:          logger,
		loginURL:        loginURL,
		loadingWishlist: make(map[string]bool),
		loadingCart:     make(map[string]bool),
	}
}

// Synchronizer returns the Synchronizer the Mutators refresh through.
func (m *Mutators) Synchronizer() *Synchronizer { return m.sync }

// ToggleWishlist removes productID from the wishlist if present and
// appends it otherwise, writes the full list back, then resyncs.
func (m *Mutators) ToggleWishlist(ctx context.Context, productID string) (Result, error) {
	sess := m.current(ctx)
	if sess == nil {
		return m.loginRequired(), nil
	}
	if !m.begin(m.loadingWishlist, productID) {
		return Result{Outcome: Busy}, nil
	}
	defer m.end(m.loadingWishlist, productID)

	cust, err := m.customers.GetCustomer(ctx, sess.UserID)
	if err != nil {
		return m.fail("toggling wishlist", MsgWishlistFailed, productID, err)
	}

	wishlist := readWishlist(cust, m.logger)
	next, removed := toggle(wishlist, productID)

	if err := m.customers.UpdateCustomerMeta(ctx, sess.UserID, WishlistKey, next); err != nil {
		return m.fail("toggling wishlist", MsgWishlistFailed, productID, err)
	}
	if _, err := m.sync.Sync(ctx); err != nil {
		return m.fail("toggling wishlist", MsgWishlistFailed, productID, err)
	}

	if removed {
		return m.confirm(Removed, MsgWishlistRemoved), nil
	}
	return m.confirm(Added, MsgWishlistAdded), nil
}

// AddToCart appends {effectiveID, 1} unless an entry with that id already
// exists, in which case nothing is written and no message is shown.
func (m *Mutators) AddToCart(ctx context.Context, effectiveID string) (Result, error) {
	sess := m.current(ctx)
	if sess == nil {
		return m.loginRequired(), nil
	}
	if !m.begin(m.loadingCart, effectiveID) {
		return Result{Outcome: Busy}, nil
	}
	defer m.end(m.loadingCart, effectiveID)

	cust, err := m.customers.GetCustomer(ctx, sess.UserID)
	if err != nil {
		return m.fail("adding to cart", MsgCartFailed, effectiveID, err)
	}

	cart := readCart(cust, m.logger)
	for _, raw := range cart {
		var item woocommerce.CartMetaItem
		if json.Unmarshal(raw, &item) == nil && item.ID.String() == effectiveID {
			return Result{Outcome: Unchanged}, nil
		}
	}

	entry, err := json.Marshal(model.CartEntry{ID: effectiveID, Quantity: 1})
	if err != nil {
		return m.fail("adding to cart", MsgCartFailed, effectiveID, err)
	}
	cart = append(cart, entry)

	if err := m.customers.UpdateCustomerMeta(ctx, sess.UserID, CartKey, cart); err != nil {
		return m.fail("adding to cart", MsgCartFailed, effectiveID, err)
	}
	if _, err := m.sync.Sync(ctx); err != nil {
		return m.fail("adding to cart", MsgCartFailed, effectiveID, err)
	}

	return m.confirm(Added, MsgCartAdded), nil
}

// WishlistLoading reports whether a wishlist toggle for productID is in flight.
func (m *Mutators) WishlistLoading(productID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadingWishlist[productID]
}

// CartLoading reports whether a cart add for effectiveID is in flight.
func (m *Mutators) CartLoading(effectiveID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadingCart[effectiveID]
}

// InFlight reports whether any wishlist toggle or cart add is running.
func (m *Mutators) InFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loadingWishlist) > 0 || len(m.loadingCart) > 0
}

// Decorate overlays membership and in-flight flags on cards.
func (m *Mutators) Decorate(cards []model.DisplayCard) []model.DecoratedCard {
	out := m.sync.Decorate(cards)

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range out {
		out[i].WishlistLoading = m.loadingWishlist[out[i].ID]
		out[i].CartLoading = m.loadingCart[out[i].EffectiveID]
	}
	return out
}

func (m *Mutators) current(ctx context.Context) *session.Session {
	sess, err := m.sync.sessions.Current(ctx)
	if err != nil {
		m.logger.Warn("session lookup failed", "error", err)
		return nil
	}
	return sess
}

func (m *Mutators) loginRequired() Result {
	return Result{Outcome: LoginRequired, LoginURL: m.loginURL}
}

// begin marks id in flight. It returns false if it already was.
func (m *Mutators) begin(loading map[string]bool, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loading[id] {
		return false
	}
	loading[id] = true
	return true
}

func (m *Mutators) end(loading map[string]bool, id string) {
	m.mu.Lock()
	delete(loading, id)
	m.mu.Unlock()
}

func (m *Mutators) confirm(outcome Outcome, msg string) Result {
	if m.board != nil {
		m.board.Show(msg)
	}
	return Result{Outcome: outcome, Message: msg}
}

// fail logs err and shows msg. Writes that already reached the store are
// not rolled back.
func (m *Mutators) fail(action, msg, id string, err error) (Result, error) {
	m.logger.Error(action+" failed", "id", id, "error", err)
	if m.board != nil {
		m.board.Show(msg)
	}
	return Result{Outcome: Failed, Message: msg}, err
}

// toggle removes id from list if present, otherwise appends it.
func toggle(list []string, id string) ([]string, bool) {
	out := make([]string, 0, len(list)+1)
	removed := false
	for _, v := range list {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	if !removed {
		out = append(out, id)
	}
	return out, removed
}
