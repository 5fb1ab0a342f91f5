// Package feed pages through the "people also viewed" recommendation list.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"storefront/internal/adapter"
	"storefront/internal/catalog"
	"storefront/internal/model"
	"storefront/internal/woocommerce"
)

// DefaultPageSize is the number of products requested per page.
const DefaultPageSize = 12

// Page is one fetched and mapped page.
type Page struct {
	Number int                 `json:"page"`
	Cards  []model.DisplayCard `json:"items"`
	// HasMore is true when the page came back full.
	HasMore bool `json:"has_more"`
}

// Pager fetches single pages without keeping any state.
type Pager struct {
	src      adapter.Catalog
	mapper   *catalog.Mapper
	pageSize int
}

// NewPager creates a Pager. pageSize <= 0 uses DefaultPageSize.
func NewPager(src adapter.Catalog, mapper *catalog.Mapper, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Pager{src: src, mapper: mapper, pageSize: pageSize}
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() int { return p.pageSize }

// FetchPage requests page n (1-based) of newest published products and
// maps it in order.
func (p *Pager) FetchPage(ctx context.Context, n int) (Page, error) {
	if n < 1 {
		n = 1
	}
	products, err := p.src.ListProducts(ctx, woocommerce.RecommendationQuery(n, p.pageSize))
	if err != nil {
		return Page{Number: n}, err
	}

	cards := p.mapper.MapAll(ctx, products)
	return Page{
		Number:  n,
		Cards:   cards,
		HasMore: len(cards) == p.pageSize,
	}, nil
}

// State is the controller's lifecycle state.
type State string

const (
	Idle        State = "idle"
	Loading     State = "loading"
	Ready       State = "ready"
	LoadingMore State = "loading_more"
	Exhausted   State = "exhausted"
)

// View is a point-in-time copy of the feed for rendering.
type View struct {
	Items   []model.DisplayCard `json:"items"`
	Page    int                 `json:"page"`
	HasMore bool                `json:"has_more"`
	State   State               `json:"state"`
}

// Feed accumulates pages for one view. Exhaustion is sticky until Reload.
type Feed struct {
	pager  *Pager
	logger *slog.Logger

	mu      sync.Mutex
	items   []model.DisplayCard
	page    int
	hasMore bool
	state   State
	gen     uint64
}

// New creates an idle Feed.
func New(pager *Pager, logger *slog.Logger) *Feed {
	return &Feed{pager: pager, logger: logger, state: Idle, hasMore: true}
}

// Load fetches page 1 and replaces the list. On failure the list is
// cleared and the feed is exhausted.
func (f *Feed) Load(ctx context.Context) error {
	f.mu.Lock()
	f.gen++
	gen := f.gen
	f.state = Loading
	f.mu.Unlock()

	page, err := f.pager.FetchPage(ctx, 1)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		return nil
	}

	if err != nil {
		f.logger.Error("failed to load products", "error", err)
		f.items = nil
		f.page = 1
		f.hasMore = false
		f.state = Exhausted
		return err
	}

	f.items = page.Cards
	f.page = 1
	f.hasMore = page.HasMore
	f.state = f.settled()
	return nil
}

// Reload restarts from page 1.
func (f *Feed) Reload(ctx context.Context) error {
	return f.Load(ctx)
}

// LoadMore fetches the next page and appends it. It returns false without
// fetching when a load is already in flight or the feed is exhausted. An
// empty page exhausts the feed; a failure exhausts it but keeps the items.
func (f *Feed) LoadMore(ctx context.Context) (bool, error) {
	f.mu.Lock()
	if f.state == Loading || f.state == LoadingMore || !f.hasMore {
		f.mu.Unlock()
		return false, nil
	}
	next := f.page + 1
	gen := f.gen
	f.state = LoadingMore
	f.mu.Unlock()

	page, err := f.pager.FetchPage(ctx, next)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		// A reload replaced the list while this page was in flight.
		return true, nil
	}

	switch {
	case err != nil:
		f.logger.Error("failed to load more products", "page", next, "error", err)
		f.hasMore = false
	case len(page.Cards) == 0:
		f.hasMore = false
	default:
		f.items = append(f.items, page.Cards...)
		f.page = next
		f.hasMore = page.HasMore
	}
	f.state = f.settled()
	return true, err
}

// Snapshot returns a copy of the current list and paging state.
func (f *Feed) Snapshot() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]model.DisplayCard, len(f.items))
	copy(items, f.items)
	return View{Items: items, Page: f.page, HasMore: f.hasMore, State: f.state}
}

func (f *Feed) settled() State {
	if f.hasMore {
		return Ready
	}
	return Exhausted
}
