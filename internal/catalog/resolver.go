// Package catalog turns remote product records into display cards.
package catalog

import (
	"context"
	"log/slog"

	"storefront/internal/adapter"
	"storefront/internal/model"
)

// Option is the resolved pricing of one variation, keyed by the option
// string of its first attribute (e.g. "Large").
type Option struct {
	Key         string
	VariationID string
	Sale        float64
	Regular     float64
	Discount    *int
}

// Resolution is the outcome of resolving a variable product's variations.
// Options keeps first-insertion order; a repeated key updates the values
// in place without moving.
type Resolution struct {
	Options []Option
}

// OK reports whether at least one variation resolved.
func (r Resolution) OK() bool { return len(r.Options) > 0 }

// MinSale is the lowest sale price across all options.
func (r Resolution) MinSale() float64 {
	if len(r.Options) == 0 {
		return 0
	}
	lowest := r.Options[0].Sale
	for _, o := range r.Options[1:] {
		if o.Sale < lowest {
			lowest = o.Sale
		}
	}
	return lowest
}

// First is the option inserted first. Its variation becomes the card's
// effective id and its prices drive the discount badge, even when a later
// option is cheaper.
func (r Resolution) First() (Option, bool) {
	if len(r.Options) == 0 {
		return Option{}, false
	}
	return r.Options[0], true
}

func (r *Resolution) put(o Option) {
	for i := range r.Options {
		if r.Options[i].Key == o.Key {
			r.Options[i] = o
			return
		}
	}
	r.Options = append(r.Options, o)
}

// Resolver fetches variation details one at a time.
type Resolver struct {
	catalog adapter.Catalog
	logger  *slog.Logger
}

// NewResolver creates a Resolver reading from c.
func NewResolver(c adapter.Catalog, logger *slog.Logger) *Resolver {
	return &Resolver{catalog: c, logger: logger}
}

// Resolve fetches each variation in ids sequentially. Failed fetches and
// variations without an attribute option are skipped; resolution never
// fails as a whole. A cancelled ctx stops the loop and returns what was
// resolved so far.
func (r *Resolver) Resolve(ctx context.Context, productID string, ids []string) Resolution {
	var res Resolution

	for _, id := range ids {
		if ctx.Err() != nil {
			r.logger.Debug("variation resolution cancelled",
				"product_id", productID,
				"resolved", len(res.Options),
			)
			break
		}

		v, err := r.catalog.GetVariation(ctx, id)
		if err != nil {
			r.logger.Warn("fetching variation failed",
				"product_id", productID,
				"variation_id", id,
				"error", err,
			)
			continue
		}
		if v == nil || len(v.Attributes) == 0 || v.Attributes[0].Option == "" {
			continue
		}

		sale := model.ToNumber(firstNonEmpty(v.SalePrice.String(), v.Price.String()), 0)
		regular := model.ToNumber(firstNonEmpty(v.RegularPrice.String(), v.Price.String()), 0)

		opt := Option{
			Key:         v.Attributes[0].Option,
			VariationID: v.ID.String(),
			Sale:        sale,
			Regular:     regular,
		}
		if pct, ok := model.PercentDiscount(regular, sale); ok {
			opt.Discount = model.Int(pct)
		}
		res.put(opt)
	}

	return res
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
