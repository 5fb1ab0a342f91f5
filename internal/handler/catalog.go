package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/model"
	"storefront/internal/search"
	"storefront/internal/session"
)

// PageResponse is one page of the recommendation grid.
type PageResponse struct {
	Page    int                   `json:"page"`
	Items   []model.DecoratedCard `json:"items"`
	HasMore bool                  `json:"has_more"`
}

// SearchResponse is the header search dropdown.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
	Message string          `json:"message,omitempty"`
}

// GET /v1/recommendations?page=N
func (h *Handler) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	n := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			h.writeError(w, model.NewValidationError("page", "must be a positive integer"))
			return
		}
		n = v
	}

	resp, err := h.recommendations(r.Context(), n)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) recommendations(ctx context.Context, n int) (*PageResponse, error) {
	page, err := h.pager.FetchPage(ctx, n)
	if err != nil {
		return nil, err
	}
	return &PageResponse{
		Page:    page.Number,
		Items:   h.decorate(ctx, page.Cards),
		HasMore: page.HasMore,
	}, nil
}

// GET /v1/search?q=...
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	resp, err := h.search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// search treats a blank query as cleared input.
func (h *Handler) search(ctx context.Context, q string) (*SearchResponse, error) {
	q = strings.TrimSpace(q)
	resp := &SearchResponse{Query: q, Results: []search.Result{}}
	if q == "" {
		return resp, nil
	}

	results, err := search.Search(ctx, h.store, q)
	if err != nil {
		// Search failures only clear the dropdown.
		h.logger.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		return resp, nil
	}
	if len(results) == 0 {
		resp.Message = search.NoResultsMessage
		return resp, nil
	}
	resp.Results = results
	return resp, nil
}

// GET /v1/products/{id}/card
func (h *Handler) handleProductCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.productCard(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

func (h *Handler) productCard(ctx context.Context, id string) (*model.DecoratedCard, error) {
	if strings.TrimSpace(id) == "" {
		return nil, model.NewValidationError("id", "required")
	}
	p, err := h.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	cards := h.decorate(ctx, []model.DisplayCard{h.mapper.Map(ctx, *p)})
	return &cards[0], nil
}

// decorate overlays the caller's wishlist and cart membership. Signed-out
// callers get bare cards. The customer record is refetched on every call so
// changes made from another device show up.
func (h *Handler) decorate(ctx context.Context, cards []model.DisplayCard) []model.DecoratedCard {
	userID := session.UserIDOrZero(session.FromContext(ctx))
	if userID == 0 {
		out := make([]model.DecoratedCard, len(cards))
		for i, c := range cards {
			out[i] = model.DecoratedCard{DisplayCard: c}
		}
		return out
	}

	m := h.accounts.get(userID)
	if _, err := m.Synchronizer().Sync(ctx); err != nil {
		h.logger.Warn("decorating with last known commerce state",
			slog.Int("user_id", userID),
			slog.String("error", err.Error()))
	}
	return m.Decorate(cards)
}
