// Package handler provides the HTTP handlers for the storefront API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"storefront/internal/adapter"
	"storefront/internal/catalog"
	"storefront/internal/feed"
	"storefront/internal/model"
	"storefront/internal/push"
)

// Config holds handler settings that are not dependencies.
type Config struct {
	// LoginURL is returned to signed-out callers of wishlist and cart routes.
	LoginURL string
	// NoticeDuration is how long a confirmation stays on a user's board.
	NoticeDuration time.Duration
	// MaxAccounts caps the per-user state kept in memory (0 = default).
	MaxAccounts int
	// PushEndpoint receives device token registrations.
	PushEndpoint string
	// PushProjectID is forwarded to Expo token requests.
	PushProjectID string
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store    adapter.Store
	mapper   *catalog.Mapper
	pager    *feed.Pager
	accounts *accountRegistry
	tokens   push.Store
	cfg      Config
	logger   *slog.Logger
}

// New creates a Handler. tokens keeps the last push token per installation;
// nil uses an in-memory store.
func New(store adapter.Store, mapper *catalog.Mapper, pager *feed.Pager, tokens push.Store, cfg Config, logger *slog.Logger) *Handler {
	if tokens == nil {
		tokens = push.NewMemoryStore()
	}
	return &Handler{
		store:    store,
		mapper:   mapper,
		pager:    pager,
		accounts: newAccountRegistry(store, cfg, logger),
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Catalog
	mux.HandleFunc("GET /v1/recommendations", h.handleRecommendations)
	mux.HandleFunc("GET /v1/search", h.handleSearch)
	mux.HandleFunc("GET /v1/products/{id}/card", h.handleProductCard)

	// Per-user commerce state
	mux.HandleFunc("GET /v1/me/state", h.handleState)
	mux.HandleFunc("POST /v1/me/wishlist/{id}/toggle", h.handleToggleWishlist)
	mux.HandleFunc("POST /v1/me/cart/{id}", h.handleAddToCart)

	// Devices
	mux.HandleFunc("POST /v1/devices/push-token", h.handlePushToken)

	// MCP transport
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth returns 200 OK for liveness probes.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewInternalError(err)
		h.logger.Error("internal error", slog.String("error", err.Error()))
	}

	h.writeJSON(w, apiErr.StatusCode, errorResponse{
		Error: errorBody{
			Code:    apiErr.Code,
			Message: apiErr.Message,
		},
	})
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 64KB.
const MaxRequestBodySize = 64 << 10

// decodeJSON reads JSON from request body into v.
// An empty body leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
