package catalog

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"storefront/internal/model"
	"storefront/internal/woocommerce"
)

// MapperConfig configures a Mapper.
type MapperConfig struct {
	// CurrencyMarkers prefix amounts inside price_html. Default: rupee.
	CurrencyMarkers []string
	// PlaceholderImage is the asset used when a product has no image.
	PlaceholderImage string
	// Concurrency caps MapAll's parallel mappings. 0 means unlimited.
	Concurrency int
}

// Mapper converts remote products into DisplayCards.
type Mapper struct {
	resolver    *Resolver
	prices      *model.PriceRangeParser
	placeholder string
	concurrency int
}

// NewMapper creates a Mapper that resolves variable products through resolver.
func NewMapper(resolver *Resolver, cfg MapperConfig) *Mapper {
	placeholder := cfg.PlaceholderImage
	if placeholder == "" {
		placeholder = model.DefaultPlaceholderImage
	}
	return &Mapper{
		resolver:    resolver,
		prices:      model.NewPriceRangeParser(cfg.CurrencyMarkers...),
		placeholder: placeholder,
		concurrency: cfg.Concurrency,
	}
}

// Map builds the card for one product. It never fails: missing or malformed
// fields fall back to safe defaults and failed variations are skipped.
func (m *Mapper) Map(ctx context.Context, p woocommerce.Product) model.DisplayCard {
	sale := model.ToNumber(firstNonEmpty(p.SalePrice.String(), p.Price.String()), 0)
	regular := model.ToNumber(firstNonEmpty(p.RegularPrice.String(), p.Price.String()), 0)
	effectiveID := p.ID.String()
	var discount *int

	if p.IsVariable() {
		if r := m.prices.Parse(p.PriceHTML); r.OK {
			sale, regular = r.Min, r.Max
		}

		if len(p.Variations) > 0 && m.resolver != nil {
			ids := make([]string, len(p.Variations))
			for i, v := range p.Variations {
				ids[i] = v.String()
			}

			res := m.resolver.Resolve(ctx, p.ID.String(), ids)
			if res.OK() {
				sale = res.MinSale()
			}
			if first, ok := res.First(); ok {
				effectiveID = first.VariationID
				discount = first.Discount
			}
		}
	} else if pct, ok := model.PercentDiscount(regular, sale); ok {
		discount = model.Int(pct)
	}

	card := model.DisplayCard{
		ID:          p.ID.String(),
		EffectiveID: effectiveID,
		Title:       p.Name,
		Image:       m.image(p),
		Price:       sale,
		Discount:    discount,
		Rating:      model.ToNumber(p.AverageRating.String(), 0),
	}
	if card.Title == "" {
		card.Title = "Unnamed"
	}
	if regular > sale {
		card.OriginalPrice = model.Float64(regular)
	}
	return card
}

// MapAll maps products concurrently and returns cards in input order.
func (m *Mapper) MapAll(ctx context.Context, products []woocommerce.Product) []model.DisplayCard {
	cards := make([]model.DisplayCard, len(products))

	g, gctx := errgroup.WithContext(ctx)
	if m.concurrency > 0 {
		g.SetLimit(m.concurrency)
	}
	for i := range products {
		g.Go(func() error {
			cards[i] = m.Map(gctx, products[i])
			return nil
		})
	}
	g.Wait() // Map never returns an error

	return cards
}

func (m *Mapper) image(p woocommerce.Product) model.ImageRef {
	if len(p.Images) > 0 {
		if src := NormalizeImageURL(p.Images[0].Src); src != "" {
			return model.ImageRef{URL: src}
		}
	}
	return model.ImageRef{Asset: m.placeholder}
}

// NormalizeImageURL trims src and upgrades plain http to https.
func NormalizeImageURL(src string) string {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "http://") {
		return "https://" + strings.TrimPrefix(src, "http://")
	}
	return src
}
