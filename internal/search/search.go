// Package search implements the header's live product search: debounced
// input, a results dropdown and result selection.
package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storefront/internal/adapter"
	"storefront/internal/catalog"
	"storefront/internal/timer"
)

// DefaultDebounce is the quiet period after the last keystroke before a
// query is sent.
const DefaultDebounce = 300 * time.Millisecond

// NoResultsMessage is shown in the dropdown when a query matched nothing.
const NoResultsMessage = "No results found"

// Result is one dropdown row.
type Result struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
	// Price is the store's raw price string, shown as-is.
	Price string `json:"price"`
}

// Search runs one query and converts the matches to dropdown rows.
func Search(ctx context.Context, src adapter.Catalog, query string) ([]Result, error) {
	products, err := src.SearchProducts(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(products))
	for _, p := range products {
		r := Result{ID: p.ID.String(), Name: p.Name, Price: p.Price.String()}
		if len(p.Images) > 0 {
			r.Image = catalog.NormalizeImageURL(p.Images[0].Src)
		}
		results = append(results, r)
	}
	return results, nil
}

// View is what the header renders.
type View struct {
	Input    string   `json:"input"`
	Results  []Result `json:"results"`
	Dropdown bool     `json:"dropdown"`
	Loading  bool     `json:"loading"`
	// Message is NoResultsMessage when the dropdown is open with no rows.
	Message string `json:"message,omitempty"`
}

// Config configures a Controller.
type Config struct {
	Debounce  time.Duration
	Scheduler timer.Scheduler // nil uses the runtime clock
}

// Controller turns keystrokes into searches. Each keystroke restarts the
// debounce window and supersedes every earlier query: a response that
// arrives after a newer keystroke is discarded.
type Controller struct {
	ctx      context.Context
	src      adapter.Catalog
	logger   *slog.Logger
	debounce *timer.Debouncer

	mu       sync.Mutex
	input    string
	results  []Result
	dropdown bool
	loading  bool
	gen      uint64
	onChange func(View)
}

// New creates a Controller. Scheduled queries run with ctx.
func New(ctx context.Context, src adapter.Catalog, cfg Config, logger *slog.Logger) *Controller {
	d := cfg.Debounce
	if d <= 0 {
		d = DefaultDebounce
	}
	return &Controller{
		ctx:      ctx,
		src:      src,
		logger:   logger,
		debounce: timer.NewDebouncer(d, cfg.Scheduler),
	}
}

// OnChange registers fn to receive the view after every state change.
func (c *Controller) OnChange(fn func(View)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Input records the current text. Blank text clears the results and hides
// the dropdown at once; anything else schedules a query after the
// debounce delay.
func (c *Controller) Input(text string) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.input = text
	c.loading = false

	if strings.TrimSpace(text) == "" {
		c.results = nil
		c.dropdown = false
		c.mu.Unlock()
		c.debounce.Cancel()
		c.changed()
		return
	}
	c.mu.Unlock()

	c.debounce.Trigger(func() { c.run(text, gen) })
	c.changed()
}

// Select closes the dropdown, clears the input and returns the chosen row.
func (c *Controller) Select(id string) (Result, bool) {
	c.mu.Lock()
	var chosen Result
	found := false
	for _, r := range c.results {
		if r.ID == id {
			chosen, found = r, true
			break
		}
	}
	c.gen++
	c.input = ""
	c.dropdown = false
	c.loading = false
	c.mu.Unlock()

	c.debounce.Cancel()
	c.changed()
	return chosen, found
}

// View returns the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Close drops any pending query.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	c.mu.Unlock()
	c.debounce.Cancel()
}

func (c *Controller) run(query string, gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.loading = true
	c.mu.Unlock()
	c.changed()

	results, err := Search(c.ctx, c.src, query)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("discarding stale search response", "query", query)
		return
	}
	c.loading = false
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("search failed", "query", query, "error", err)
		c.changed()
		return
	}
	c.results = results
	c.dropdown = true
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) viewLocked() View {
	v := View{
		Input:    c.input,
		Results:  append([]Result(nil), c.results...),
		Dropdown: c.dropdown,
		Loading:  c.loading,
	}
	if v.Dropdown && !v.Loading && len(v.Results) == 0 {
		v.Message = NoResultsMessage
	}
	return v
}

func (c *Controller) changed() {
	c.mu.Lock()
	fn := c.onChange
	v := c.viewLocked()
	c.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}
