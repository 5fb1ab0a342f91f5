package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"storefront/internal/account"
	"storefront/internal/adapter"
	"storefront/internal/catalog"
	"storefront/internal/clientinfo"
	"storefront/internal/feed"
	"storefront/internal/model"
	"storefront/internal/push"
	"storefront/internal/search"
	"storefront/internal/session"
	"storefront/internal/woocommerce"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// customerMeta backs GetCustomer/UpdateCustomerMeta on a Mock.
type customerMeta struct {
	mu        sync.Mutex
	meta      map[string]json.RawMessage
	updateErr error
}

func (c *customerMeta) wire(m *adapter.Mock) {
	m.GetCustomerFunc = func(ctx context.Context, id int) (*woocommerce.Customer, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		cust := &woocommerce.Customer{ID: id}
		for k, v := range c.meta {
			cust.MetaData = append(cust.MetaData, woocommerce.MetaData{Key: k, Value: v})
		}
		return cust, nil
	}
	m.UpdateCustomerMetaFunc = func(ctx context.Context, id int, key string, value any) error {
		if c.updateErr != nil {
			return c.updateErr
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.meta[key] = raw
		c.mu.Unlock()
		return nil
	}
}

func simpleProducts(n int) []woocommerce.Product {
	products := make([]woocommerce.Product, n)
	for i := range products {
		id := strconv.Itoa(i + 1)
		products[i] = woocommerce.Product{
			ID:           woocommerce.FlexString(id),
			Name:         "Product " + id,
			Type:         "simple",
			RegularPrice: "100",
			SalePrice:    "80",
		}
	}
	return products
}

// testHandler wires a Handler over mock with a fresh customer record.
func testHandler(mock *adapter.Mock, cfg Config) (*Handler, *http.ServeMux, *customerMeta) {
	logger := testLogger()
	meta := &customerMeta{meta: map[string]json.RawMessage{}}
	if mock.GetCustomerFunc == nil {
		meta.wire(mock)
	}
	mapper := catalog.NewMapper(catalog.NewResolver(mock, logger), catalog.MapperConfig{})
	h := New(mock, mapper, feed.NewPager(mock, mapper, 0), push.NewMemoryStore(), cfg, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux, meta
}

// signedIn attaches a session for userID, as the auth middleware would.
func signedIn(r *http.Request, userID int) *http.Request {
	return r.WithContext(session.WithSession(r.Context(), &session.Session{UserID: userID}))
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decoding error body %s: %v", body, err)
	}
	return resp.Error.Code
}

func TestHandleHealth(t *testing.T) {
	_, mux, _ := testHandler(&adapter.Mock{}, Config{})

	for _, path := range []string{"/health", "/healthz"} {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest("GET", path, nil))

		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"ok"`) {
			t.Errorf("%s body = %s", path, w.Body.String())
		}
	}
}

func TestHandleRecommendations(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		returned    int
		wantStatus  int
		wantPage    int
		wantItems   int
		wantHasMore bool
	}{
		{"default first page", "", 12, http.StatusOK, 1, 12, true},
		{"second page partial", "?page=2", 5, http.StatusOK, 2, 5, false},
		{"empty page", "?page=3", 0, http.StatusOK, 3, 0, false},
		{"invalid page", "?page=abc", 0, http.StatusBadRequest, 0, 0, false},
		{"zero page", "?page=0", 0, http.StatusBadRequest, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery woocommerce.ProductQuery
			mock := &adapter.Mock{
				ListProductsFunc: func(ctx context.Context, q woocommerce.ProductQuery) ([]woocommerce.Product, error) {
					gotQuery = q
					return simpleProducts(tt.returned), nil
				},
			}
			_, mux, _ := testHandler(mock, Config{})

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/v1/recommendations"+tt.query, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if code := errorCode(t, w.Body.Bytes()); code != "VALIDATION_ERROR" {
					t.Errorf("code = %s, want VALIDATION_ERROR", code)
				}
				return
			}

			var resp PageResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Page != tt.wantPage || len(resp.Items) != tt.wantItems || resp.HasMore != tt.wantHasMore {
				t.Errorf("page=%d items=%d has_more=%v", resp.Page, len(resp.Items), resp.HasMore)
			}
			if gotQuery.Page != tt.wantPage || gotQuery.PerPage != feed.DefaultPageSize || gotQuery.OrderBy != "date" {
				t.Errorf("upstream query = %+v", gotQuery)
			}
			if tt.wantItems > 0 {
				first := resp.Items[0]
				if first.Price != 80 || first.Discount == nil || *first.Discount != 20 {
					t.Errorf("first card = %+v", first.DisplayCard)
				}
			}
		})
	}
}

func TestHandleRecommendationsDecoratesSignedIn(t *testing.T) {
	mock := &adapter.Mock{
		ListProductsFunc: func(ctx context.Context, q woocommerce.ProductQuery) ([]woocommerce.Product, error) {
			return simpleProducts(3), nil
		},
	}
	_, mux, meta := testHandler(mock, Config{})
	meta.meta[account.WishlistKey] = json.RawMessage(`["2"]`)
	meta.meta[account.CartKey] = json.RawMessage(`[{"id":"3","quantity":1}]`)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, signedIn(httptest.NewRequest("GET", "/v1/recommendations", nil), 7))

	var resp PageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("items = %d", len(resp.Items))
	}
	if resp.Items[0].InWishlist || !resp.Items[1].InWishlist {
		t.Errorf("wishlist flags = %v %v", resp.Items[0].InWishlist, resp.Items[1].InWishlist)
	}
	if !resp.Items[2].InCart || resp.Items[1].InCart {
		t.Errorf("cart flags = %v %v", resp.Items[1].InCart, resp.Items[2].InCart)
	}
}

func TestDecorationRefetchesCustomer(t *testing.T) {
	mock := &adapter.Mock{
		ListProductsFunc: func(ctx context.Context, q woocommerce.ProductQuery) ([]woocommerce.Product, error) {
			return simpleProducts(2), nil
		},
		GetProductFunc: func(ctx context.Context, id string) (*woocommerce.Product, error) {
			return &simpleProducts(1)[0], nil
		},
	}
	_, mux, meta := testHandler(mock, Config{})

	firstItem := func() model.DecoratedCard {
		t.Helper()
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, signedIn(httptest.NewRequest("GET", "/v1/recommendations", nil), 7))
		var resp PageResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || len(resp.Items) == 0 {
			t.Fatalf("decode %s: %v", w.Body.String(), err)
		}
		return resp.Items[0]
	}

	if firstItem().InWishlist {
		t.Fatal("product 1 wishlisted before any change")
	}

	// Another device adds product 1 and a cart line.
	meta.mu.Lock()
	meta.meta[account.WishlistKey] = json.RawMessage(`["1"]`)
	meta.meta[account.CartKey] = json.RawMessage(`[{"id":"1","quantity":1}]`)
	meta.mu.Unlock()

	if item := firstItem(); !item.InWishlist || !item.InCart {
		t.Errorf("recommendations flags = wishlist %v cart %v, want both true", item.InWishlist, item.InCart)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, signedIn(httptest.NewRequest("GET", "/v1/products/1/card", nil), 7))
	var card model.DecoratedCard
	if err := json.Unmarshal(w.Body.Bytes(), &card); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !card.InWishlist {
		t.Error("product card not decorated from the current record")
	}
}

func TestHandleRecommendationsUpstreamError(t *testing.T) {
	mock := &adapter.Mock{
		ListProductsFunc: func(ctx context.Context, q woocommerce.ProductQuery) ([]woocommerce.Product, error) {
			return nil, model.NewUpstreamError("WooCommerce", errors.New("down"))
		},
	}
	_, mux, _ := testHandler(mock, Config{})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/v1/recommendations", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", w.Code)
	}
	if code := errorCode(t, w.Body.Bytes()); code != "UPSTREAM_ERROR" {
		t.Errorf("code = %s", code)
	}
}

func TestHandleSearch(t *testing.T) {
	tests := []struct {
		name        string
		q           string
		products    []woocommerce.Product
		wantCalls   int32
		wantResults int
		wantMessage string
	}{
		{"blank clears", "%20%20", nil, 0, 0, ""},
		{"no matches", "lamp", nil, 1, 0, search.NoResultsMessage},
		{
			name: "matches",
			q:    "shirt",
			products: []woocommerce.Product{
				{ID: "5", Name: "Shirt", Price: "499", Images: []woocommerce.Image{{Src: "http://cdn.example.com/s.jpg"}}},
			},
			wantCalls:   1,
			wantResults: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			mock := &adapter.Mock{
				SearchProductsFunc: func(ctx context.Context, query string) ([]woocommerce.Product, error) {
					calls.Add(1)
					return tt.products, nil
				},
			}
			_, mux, _ := testHandler(mock, Config{})

			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest("GET", "/v1/search?q="+tt.q, nil))

			if w.Code != http.StatusOK {
				t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
			}
			var resp SearchResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("upstream calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
			if len(resp.Results) != tt.wantResults || resp.Message != tt.wantMessage {
				t.Errorf("results=%d message=%q", len(resp.Results), resp.Message)
			}
			if tt.wantResults > 0 && resp.Results[0].Image != "https://cdn.example.com/s.jpg" {
				t.Errorf("image = %q", resp.Results[0].Image)
			}
		})
	}
}

func TestHandleSearchUpstreamErrorIsSilent(t *testing.T) {
	mock := &adapter.Mock{
		SearchProductsFunc: func(ctx context.Context, query string) ([]woocommerce.Product, error) {
			return nil, model.NewUpstreamError("WooCommerce", errors.New("down"))
		},
	}
	_, mux, _ := testHandler(mock, Config{})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/v1/search?q=lamp", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200\nBody: %s", w.Code, w.Body.String())
	}
	var resp SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Results == nil || len(resp.Results) != 0 || resp.Message != "" {
		t.Errorf("resp = %+v, want empty results and no message", resp)
	}
}

func TestHandleProductCard(t *testing.T) {
	mock := &adapter.Mock{
		GetProductFunc: func(ctx context.Context, id string) (*woocommerce.Product, error) {
			if id != "9" {
				return nil, model.NewNotFoundError("product")
			}
			return &woocommerce.Product{ID: "9", Name: "Lamp", Type: "simple", RegularPrice: "200", SalePrice: "150"}, nil
		},
	}
	_, mux, _ := testHandler(mock, Config{})

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/v1/products/9/card", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	var card model.DecoratedCard
	json.Unmarshal(w.Body.Bytes(), &card)
	if card.Title != "Lamp" || card.Price != 150 || card.Discount == nil || *card.Discount != 25 {
		t.Errorf("card = %+v", card.DisplayCard)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/v1/products/404/card", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing product status = %d, want 404", w.Code)
	}
}

func TestHandleState(t *testing.T) {
	_, mux, meta := testHandler(&adapter.Mock{}, Config{LoginURL: "/login"})
	meta.meta[account.WishlistKey] = json.RawMessage(`[10, "11"]`)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest("GET", "/v1/me/state", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("signed out status = %d, want 401", w.Code)
	}
	if code := errorCode(t, w.Body.Bytes()); code != "LOGIN_REQUIRED" {
		t.Errorf("code = %s", code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, signedIn(httptest.NewRequest("GET", "/v1/me/state", nil), 3))
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	var resp StateResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.State.UserID != 3 || len(resp.State.Wishlist) != 2 || resp.State.Wishlist[0] != "10" {
		t.Errorf("state = %+v", resp.State)
	}
}

func postMutation(mux *http.ServeMux, path string, userID int) (*httptest.ResponseRecorder, MutationResponse) {
	req := httptest.NewRequest("POST", path, nil)
	if userID > 0 {
		req = signedIn(req, userID)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var resp MutationResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestHandleToggleWishlist(t *testing.T) {
	_, mux, _ := testHandler(&adapter.Mock{}, Config{})

	w, resp := postMutation(mux, "/v1/me/wishlist/42/toggle", 1)
	if w.Code != http.StatusOK || resp.Outcome != account.Added || resp.Message != account.MsgWishlistAdded {
		t.Fatalf("first toggle = %d %+v", w.Code, resp.Result)
	}
	if !resp.State.HasWishlist("42") {
		t.Errorf("state after add = %+v", resp.State)
	}

	w, resp = postMutation(mux, "/v1/me/wishlist/42/toggle", 1)
	if w.Code != http.StatusOK || resp.Outcome != account.Removed {
		t.Fatalf("second toggle = %d %+v", w.Code, resp.Result)
	}
	if resp.State.HasWishlist("42") {
		t.Errorf("state after remove = %+v", resp.State)
	}
}

func TestHandleAddToCart(t *testing.T) {
	_, mux, meta := testHandler(&adapter.Mock{}, Config{})

	w, resp := postMutation(mux, "/v1/me/cart/21", 1)
	if w.Code != http.StatusOK || resp.Outcome != account.Added || resp.Message != account.MsgCartAdded {
		t.Fatalf("first add = %d %+v", w.Code, resp.Result)
	}

	w, resp = postMutation(mux, "/v1/me/cart/21", 1)
	if w.Code != http.StatusOK || resp.Outcome != account.Unchanged || resp.Message != "" {
		t.Fatalf("second add = %d %+v", w.Code, resp.Result)
	}

	var cart []model.CartEntry
	json.Unmarshal(meta.meta[account.CartKey], &cart)
	if len(cart) != 1 || cart[0].ID != "21" || cart[0].Quantity != 1 {
		t.Errorf("stored cart = %+v", cart)
	}
}

func TestMutationsRequireLogin(t *testing.T) {
	_, mux, _ := testHandler(&adapter.Mock{}, Config{LoginURL: "/Login/LoginRegisterPage"})

	for _, path := range []string{"/v1/me/wishlist/1/toggle", "/v1/me/cart/1"} {
		w, resp := postMutation(mux, path, 0)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, w.Code)
		}
		if resp.Outcome != account.LoginRequired || resp.LoginURL != "/Login/LoginRegisterPage" {
			t.Errorf("%s result = %+v", path, resp.Result)
		}
	}
}

func TestMutationFailure(t *testing.T) {
	_, mux, meta := testHandler(&adapter.Mock{}, Config{})
	meta.updateErr = model.NewUpstreamError("WooCommerce", errors.New("down"))

	w, resp := postMutation(mux, "/v1/me/wishlist/5/toggle", 1)
	if w.Code != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", w.Code)
	}
	if resp.Outcome != account.Failed || resp.Message != account.MsgWishlistFailed {
		t.Errorf("result = %+v", resp.Result)
	}
}

func TestAccountRegistryEviction(t *testing.T) {
	h, _, _ := testHandler(&adapter.Mock{}, Config{MaxAccounts: 2})

	first := h.accounts.get(1)
	h.accounts.get(2)
	if h.accounts.get(1) != first {
		t.Fatal("expected cached Mutators for user 1")
	}
	h.accounts.get(3) // evicts 2, the least recently used

	if n := h.accounts.len(); n != 2 {
		t.Errorf("entries = %d, want 2", n)
	}
	if h.accounts.get(1) != first {
		t.Error("user 1 was evicted")
	}
}

func TestAccountRegistryKeepsBusyEntries(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	mock := &adapter.Mock{
		GetCustomerFunc: func(ctx context.Context, id int) (*woocommerce.Customer, error) {
			if id == 1 {
				select {
				case entered <- struct{}{}:
				default:
				}
				<-release
			}
			return &woocommerce.Customer{ID: id}, nil
		},
		UpdateCustomerMetaFunc: func(ctx context.Context, id int, key string, value any) error {
			return nil
		},
	}
	h, mux, _ := testHandler(mock, Config{MaxAccounts: 1})

	done := make(chan int, 1)
	go func() {
		w, _ := postMutation(mux, "/v1/me/wishlist/5/toggle", 1)
		done <- w.Code
	}()
	<-entered

	h.accounts.get(2) // registry is full, but user 1 has a toggle running

	w, resp := postMutation(mux, "/v1/me/wishlist/5/toggle", 1)
	if w.Code != http.StatusConflict || resp.Outcome != account.Busy {
		t.Errorf("second toggle = %d %+v, want 409 busy", w.Code, resp.Result)
	}

	close(release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first toggle status = %d, want 200", code)
	}
}

func TestHandlePushToken(t *testing.T) {
	var posts atomic.Int32
	var last push.Registration
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		json.NewDecoder(r.Body).Decode(&last)
	}))
	defer backend.Close()

	_, mux, _ := testHandler(&adapter.Mock{}, Config{PushEndpoint: backend.URL})

	send := func(body string, userID int) (int, PushTokenResponse) {
		req := httptest.NewRequest("POST", "/v1/devices/push-token", strings.NewReader(body))
		req = req.WithContext(clientinfo.WithInfo(req.Context(), clientinfo.Info{
			Platform: clientinfo.PlatformAndroid,
			Install:  "install-1",
		}))
		if userID > 0 {
			req = signedIn(req, userID)
		}
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		var resp PushTokenResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		return w.Code, resp
	}

	if code, resp := send(`{"device_token":"fcm-1"}`, 8); code != http.StatusOK || resp.Outcome != push.Registered {
		t.Fatalf("first = %d %s", code, resp.Outcome)
	}
	if last.DeviceToken != "fcm-1" || last.DeviceType != "android" || last.UserID != 8 {
		t.Errorf("registration = %+v", last)
	}
	if _, resp := send(`{"device_token":"fcm-1"}`, 8); resp.Outcome != push.Unchanged {
		t.Errorf("repeat = %s, want unchanged", resp.Outcome)
	}
	if _, resp := send(`{"device_token":""}`, 0); resp.Outcome != push.NoToken {
		t.Errorf("empty token = %s, want no_token", resp.Outcome)
	}
	if _, resp := send(`{"device_token":"fcm-2","permission":"denied"}`, 0); resp.Outcome != push.PermissionDenied {
		t.Errorf("denied = %s, want permission_denied", resp.Outcome)
	}
	if code, _ := send(`{not json`, 0); code != http.StatusBadRequest {
		t.Errorf("invalid JSON status = %d, want 400", code)
	}
	if posts.Load() != 1 {
		t.Errorf("backend posts = %d, want 1", posts.Load())
	}
}
