package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"storefront/internal/model"
	"storefront/internal/transport"
)

// =============================================================================
// AUTHENTICATION
// =============================================================================
//
// The REST API v3 accepts consumer key/secret as query parameters over HTTPS.
// The mobile app this backs used to embed them in request URLs; here they
// are injected through Config and appended by newRequest, so rotating
// credentials is a config change.
//
// Every catalog page fans out into one variation fetch per variant (see
// internal/catalog), so a single grid page can issue dozens of requests at
// once. The client meters them through a token bucket to stay under the
// store's CDN rate limits.
// =============================================================================

// restAPIPath is the base path for WooCommerce REST API v3 endpoints.
const restAPIPath = "/wp-json/wc/v3"

// userAgent identifies this client to upstream servers.
// Required: WooCommerce CDN/WAF rate-limits requests without User-Agent.
const userAgent = "Storefront/1.0"

// Config holds WooCommerce client configuration.
type Config struct {
	StoreURL  string
	APIKey    string
	APISecret string

	// RequestsPerSecond caps outbound calls. 0 disables limiting.
	RequestsPerSecond float64
	Burst             int

	Timeout time.Duration // Default: 30s

	// PlainTLS skips the Chrome-fingerprint transport. Used by tests and
	// stores that are not behind a fingerprinting CDN.
	PlainTLS bool

	// HTTPClient overrides the constructed client entirely.
	HTTPClient *http.Client
}

// Client talks to a WooCommerce store's REST API.
type Client struct {
	httpClient *http.Client
	storeURL   string
	apiKey     string
	apiSecret  string
	limiter    *rate.Limiter
}

// New creates a WooCommerce client with the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.StoreURL == "" {
		return nil, fmt.Errorf("store URL is required")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("API credentials are required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: timeout,
			Transport: transport.New(transport.Options{
				Timeout:     timeout,
				Fingerprint: !cfg.PlainTLS,
				UserAgent:   userAgent,
			}),
		}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		httpClient: httpClient,
		storeURL:   strings.TrimSuffix(cfg.StoreURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		limiter:    limiter,
	}, nil
}

// ListProducts returns one page of products matching q.
// The response may be a bare array or wrapped as {"data": [...]}; anything
// else decodes to an empty page.
func (c *Client) ListProducts(ctx context.Context, q ProductQuery) ([]Product, error) {
	body, err := c.get(ctx, "/products", q.values(), "products")
	if err != nil {
		return nil, err
	}

	var products []Product
	if err := decodeList(body, &products); err != nil {
		return nil, fmt.Errorf("parsing products response: %w", err)
	}
	return products, nil
}

// SearchProducts runs a full-text product search.
func (c *Client) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	return c.ListProducts(ctx, ProductQuery{Search: query})
}

// GetProduct fetches one product by id.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	body, err := c.get(ctx, "/products/"+url.PathEscape(id), nil, "product")
	if err != nil {
		return nil, err
	}

	var p Product
	if err := decodeRecord(body, &p); err != nil {
		return nil, fmt.Errorf("parsing product response: %w", err)
	}
	if p.ID == "" {
		return nil, model.NewNotFoundError("product")
	}
	return &p, nil
}

// GetVariation fetches one variation detail by its own id.
func (c *Client) GetVariation(ctx context.Context, id string) (*Variation, error) {
	body, err := c.get(ctx, "/products/"+url.PathEscape(id), nil, "variation")
	if err != nil {
		return nil, err
	}

	var v Variation
	if err := decodeRecord(body, &v); err != nil {
		return nil, fmt.Errorf("parsing variation response: %w", err)
	}
	if v.ID == "" {
		return nil, model.NewNotFoundError("variation")
	}
	return &v, nil
}

// GetCustomer fetches the customer record that carries wishlist and cart.
func (c *Client) GetCustomer(ctx context.Context, id int) (*Customer, error) {
	body, err := c.get(ctx, "/customers/"+strconv.Itoa(id), nil, "customer")
	if err != nil {
		return nil, err
	}

	var cust Customer
	if err := decodeRecord(body, &cust); err != nil {
		return nil, fmt.Errorf("parsing customer response: %w", err)
	}
	return &cust, nil
}

// UpdateCustomerMeta replaces one meta field on the customer record.
// value must be the complete replacement; WooCommerce does not merge.
func (c *Client) UpdateCustomerMeta(ctx context.Context, id int, key string, value any) error {
	update := MetaUpdate{MetaData: []MetaEntry{{Key: key, Value: value}}}

	req, err := c.newRequest(ctx, http.MethodPut, "/customers/"+strconv.Itoa(id), nil, update)
	if err != nil {
		return fmt.Errorf("creating customer update request: %w", err)
	}

	if _, err := c.do(req, "customer"); err != nil {
		return err
	}
	return nil
}

// get issues a GET and returns the raw success body.
func (c *Client) get(ctx context.Context, path string, query url.Values, resource string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", resource, err)
	}
	return c.do(req, resource)
}

// newRequest builds an authenticated REST API request.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("consumer_key", c.apiKey)
	query.Set("consumer_secret", c.apiSecret)

	fullURL := c.storeURL + restAPIPath + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do waits for the rate limiter, executes req and maps error statuses.
func (c *Client) do(req *http.Request, resource string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("WooCommerce", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", resource, err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body, resource)
	}
	return body, nil
}

// parseErrorResponse converts a WooCommerce error to APIError.
func parseErrorResponse(statusCode int, body []byte, resource string) error {
	var wcErr ErrorResponse
	json.Unmarshal(body, &wcErr) // Best effort parse

	switch statusCode {
	case 404:
		return model.NewNotFoundError(resource)
	case 401, 403:
		return model.NewUnauthorizedError("WooCommerce authentication failed")
	case 400:
		msg := wcErr.Message
		if msg == "" {
			msg = "invalid request"
		}
		return model.NewValidationError(resource, msg)
	case 429:
		return model.NewRateLimitError("WooCommerce")
	default:
		return model.NewUpstreamError("WooCommerce",
			fmt.Errorf("status %d: %s - %s", statusCode, wcErr.Code, wcErr.Message))
	}
}

// decodeList decodes an array response, unwrapping {"data": [...]}.
func decodeList(body []byte, v interface{}) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return err
		}
		data := bytes.TrimSpace(env.Data)
		if len(data) == 0 || data[0] != '[' {
			return nil
		}
		trimmed = data
	}
	return json.Unmarshal(trimmed, v)
}

// decodeRecord decodes a single-record response, unwrapping {"data": {...}}.
func decodeRecord(body []byte, v interface{}) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil {
		if data := bytes.TrimSpace(env.Data); len(data) > 0 && data[0] == '{' {
			body = data
		}
	}
	return json.Unmarshal(body, v)
}
