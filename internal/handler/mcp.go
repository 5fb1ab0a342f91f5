// MCP transport for the storefront catalog using the official MCP Go SDK.
// Exposes the read-only catalog operations as MCP tools.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront/internal/model"
)

// === MCP Tool Input Types ===

// SearchProductsInput is the input schema for search_products.
type SearchProductsInput struct {
	Query string `json:"query" jsonschema:"free-text product search"`
}

// ListRecommendationsInput is the input schema for list_recommendations.
type ListRecommendationsInput struct {
	Page int `json:"page,omitempty" jsonschema:"1-based page number, defaults to 1"`
}

// GetProductCardInput is the input schema for get_product_card.
type GetProductCardInput struct {
	ID string `json:"id" jsonschema:"product ID"`
}

// NewMCPServer creates an MCP server with catalog tools registered.
// The tools mirror the REST catalog routes; per-user state is not exposed.
func (h *Handler) NewMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "storefront",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront catalog. Search products, page through recommendations, " +
				"and fetch the display card of a single product with its resolved price and discount.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_products",
		Description: "Search the catalog by name. Returns id, name, image and price for each match.",
	}, h.mcpSearchProducts)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_recommendations",
		Description: "List one page of newest published products as display cards.",
	}, h.mcpListRecommendations)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_product_card",
		Description: "Get one product's display card, resolving variation prices for variable products.",
	}, h.mcpGetProductCard)

	return server
}

// NewMCPHandler returns an HTTP handler for the MCP endpoint.
// Mount this at /mcp on your mux.
func (h *Handler) NewMCPHandler() http.Handler {
	server := h.NewMCPServer()
	return mcp.NewStreamableHTTPHandler(
		func(r *http.Request) *mcp.Server { return server },
		nil,
	)
}

// === Tool Handlers ===

func (h *Handler) mcpSearchProducts(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input SearchProductsInput,
) (*mcp.CallToolResult, *SearchResponse, error) {
	resp, err := h.search(ctx, input.Query)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, resp, nil
}

func (h *Handler) mcpListRecommendations(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ListRecommendationsInput,
) (*mcp.CallToolResult, *PageResponse, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	resp, err := h.recommendations(ctx, page)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, resp, nil
}

func (h *Handler) mcpGetProductCard(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetProductCardInput,
) (*mcp.CallToolResult, *model.DecoratedCard, error) {
	card, err := h.productCard(ctx, input.ID)
	if err != nil {
		return nil, nil, h.mcpError(err)
	}
	return nil, card, nil
}

// mcpError converts adapter errors to MCP-friendly errors.
func (h *Handler) mcpError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	// Don't leak internal error details
	h.logger.Error("mcp internal error", "error", err.Error())
	return fmt.Errorf("internal error")
}
