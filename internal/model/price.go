package model

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// RupeeEntity is the numeric HTML entity WooCommerce renders for ₹ inside
// price_html. It is the default currency marker.
const RupeeEntity = "&#8377;"

// DefaultCurrencyMarkers are used when no markers are configured.
var DefaultCurrencyMarkers = []string{RupeeEntity, "₹"}

// numericPrefix matches the longest leading decimal literal, the same
// prefix a JavaScript parseFloat would consume.
var numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// ToNumber coerces a raw API price or rating field to float64.
// Leading whitespace is skipped and the longest numeric prefix is parsed, so
// "12.50 incl. tax" yields 12.5. Anything unparseable or non-finite yields
// fallback.
func ToNumber(raw string, fallback float64) float64 {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)
	m := numericPrefix.FindString(s)
	if m == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return f
}

// PercentDiscount returns round((regular-sale)/regular*100) when
// regular > sale > 0 and the result is a positive finite integer.
func PercentDiscount(regular, sale float64) (int, bool) {
	if !(regular > 0 && sale > 0 && regular > sale) {
		return 0, false
	}
	pct := math.Round((regular - sale) / regular * 100)
	if math.IsNaN(pct) || math.IsInf(pct, 0) || pct <= 0 {
		return 0, false
	}
	return int(pct), true
}

// PriceRange is the min/max pair extracted from a rendered price_html.
// OK is false when no currency-marked amount was found.
type PriceRange struct {
	Min float64
	Max float64
	OK  bool
}

// PriceRangeParser extracts currency-marked amounts from price_html.
// The zero value uses DefaultCurrencyMarkers.
type PriceRangeParser struct {
	pattern *regexp.Regexp
}

// NewPriceRangeParser builds a parser for the given currency markers, e.g.
// "&#8377;" or "₹". Empty markers are ignored.
func NewPriceRangeParser(markers ...string) *PriceRangeParser {
	quoted := make([]string, 0, len(markers))
	for _, m := range markers {
		if m == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(m))
	}
	if len(quoted) == 0 {
		return NewPriceRangeParser(DefaultCurrencyMarkers...)
	}
	return &PriceRangeParser{
		pattern: regexp.MustCompile(`(?:` + strings.Join(quoted, "|") + `)([\d,]+\.?\d*)`),
	}
}

// Parse returns the smallest and largest amounts found in html.
// Two or more amounts give {min, max}; exactly one gives {v, v}.
func (p *PriceRangeParser) Parse(html string) PriceRange {
	if p == nil || p.pattern == nil {
		p = NewPriceRangeParser()
	}
	if html == "" {
		return PriceRange{}
	}

	var prices []float64
	for _, m := range p.pattern.FindAllStringSubmatch(html, -1) {
		f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || math.IsNaN(f) {
			continue
		}
		prices = append(prices, f)
	}

	if len(prices) == 0 {
		return PriceRange{}
	}

	r := PriceRange{Min: prices[0], Max: prices[0], OK: true}
	for _, v := range prices[1:] {
		r.Min = math.Min(r.Min, v)
		r.Max = math.Max(r.Max, v)
	}
	return r
}
