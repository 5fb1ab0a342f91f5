package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"storefront/internal/account"
	"storefront/internal/adapter"
	"storefront/internal/model"
	"storefront/internal/notice"
	"storefront/internal/session"
)

// DefaultMaxAccounts limits how many users' state is kept (LRU eviction).
const DefaultMaxAccounts = 1000

// StateResponse is the caller's commerce state plus any pending notice.
type StateResponse struct {
	State  model.CommerceState `json:"state"`
	Notice string              `json:"notice,omitempty"`
}

// MutationResponse reports a wishlist or cart action.
type MutationResponse struct {
	account.Result
	State model.CommerceState `json:"state"`
}

// accountEntry is one user's view state.
type accountEntry struct {
	mutators *account.Mutators
	board    *notice.Board
}

// accountRegistry keeps Mutators per user so in-flight guards and the
// notice board survive across requests.
type accountRegistry struct {
	customers adapter.Customers
	cfg       Config
	logger    *slog.Logger
	max       int

	cacheMu    sync.Mutex
	entries    map[int]*accountEntry
	accessList []int // LRU tracking: most recent at end
}

func newAccountRegistry(customers adapter.Customers, cfg Config, logger *slog.Logger) *accountRegistry {
	max := cfg.MaxAccounts
	if max <= 0 {
		max = DefaultMaxAccounts
	}
	return &accountRegistry{
		customers:  customers,
		cfg:        cfg,
		logger:     logger,
		max:        max,
		entries:    make(map[int]*accountEntry),
		accessList: make([]int, 0, max),
	}
}

func (r *accountRegistry) get(userID int) *account.Mutators {
	return r.entry(userID).mutators
}

func (r *accountRegistry) entry(userID int) *accountEntry {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if e, ok := r.entries[userID]; ok {
		r.recordAccessLocked(userID)
		return e
	}

	if len(r.entries) >= r.max {
		r.evictOldestLocked()
	}

	logger := r.logger.With(slog.Int("user_id", userID))
	board := notice.NewBoard(r.cfg.NoticeDuration, nil)
	syncer := account.NewSynchronizer(r.customers, session.ContextProvider{}, logger)
	e := &accountEntry{
		mutators: account.NewMutators(r.customers, syncer, board, logger, account.MutatorsConfig{LoginURL: r.cfg.LoginURL}),
		board:    board,
	}
	r.entries[userID] = e
	r.recordAccessLocked(userID)
	return e
}

func (r *accountRegistry) len() int {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	return len(r.entries)
}

func (r *accountRegistry) recordAccessLocked(userID int) {
	for i, id := range r.accessList {
		if id == userID {
			r.accessList = append(r.accessList[:i], r.accessList[i+1:]...)
			break
		}
	}
	r.accessList = append(r.accessList, userID)
}

// evictOldestLocked drops the least recently used entry with no mutation in
// flight. When every entry is busy the registry grows past max instead.
func (r *accountRegistry) evictOldestLocked() {
	for i, id := range r.accessList {
		if r.entries[id].mutators.InFlight() {
			continue
		}
		r.accessList = append(r.accessList[:i], r.accessList[i+1:]...)
		delete(r.entries, id)
		return
	}
	r.logger.Warn("account registry over capacity, all entries busy",
		slog.Int("entries", len(r.entries)))
}

// GET /v1/me/state
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	userID := session.UserIDOrZero(session.FromContext(r.Context()))
	if userID == 0 {
		h.writeError(w, model.NewLoginRequiredError(h.loginURL()))
		return
	}

	e := h.accounts.entry(userID)
	state, err := e.mutators.Synchronizer().Sync(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, StateResponse{State: state, Notice: e.board.Current()})
}

// POST /v1/me/wishlist/{id}/toggle
func (h *Handler) handleToggleWishlist(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*account.Mutators).ToggleWishlist)
}

// POST /v1/me/cart/{id}
// id is the card's effective id: a variation id for variable products.
func (h *Handler) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, (*account.Mutators).AddToCart)
}

// mutate runs one wishlist or cart action for the caller.
// Busy maps to 409 and Failed to 502; both still carry the result body.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, run func(*account.Mutators, context.Context, string) (account.Result, error)) {
	id := r.PathValue("id")
	userID := session.UserIDOrZero(session.FromContext(r.Context()))
	if userID == 0 {
		h.writeJSON(w, http.StatusUnauthorized, MutationResponse{
			Result: account.Result{Outcome: account.LoginRequired, LoginURL: h.loginURL()},
		})
		return
	}

	m := h.accounts.get(userID)
	result, err := run(m, r.Context(), id)

	status := http.StatusOK
	switch result.Outcome {
	case account.Busy:
		status = http.StatusConflict
	case account.Failed:
		status = http.StatusBadGateway
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
			status = apiErr.StatusCode
		}
	}
	h.writeJSON(w, status, MutationResponse{Result: result, State: m.Synchronizer().Snapshot()})
}

func (h *Handler) loginURL() string {
	if h.cfg.LoginURL != "" {
		return h.cfg.LoginURL
	}
	return account.DefaultLoginPath
}
