package adapter

import (
	"regexp"
	"strconv"
	"strings"
)

// Guaraní amounts appear as "Gs. 46.166", "₲. 59.400 *", or a bare
// "230.000"; dots are thousands separators and there are no decimal
// places in practice.
var (
	amountRe  = regexp.MustCompile(`[\d][\d.,]*`)
	percentRe = regexp.MustCompile(`-?(\d+(?:[.,]\d+)?)\s*%`)
)

// parseGuarani extracts the first monetary amount from text. The
// second return is false when no amount is present.
func parseGuarani(text string) (float64, bool) {
	match := amountRe.FindString(text)
	if match == "" {
		return 0, false
	}
	normalized := strings.NewReplacer(".", "", ",", "").Replace(match)
	value, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// parseGuaraniAll extracts every monetary amount from text in order.
func parseGuaraniAll(text string) []float64 {
	var out []float64
	for _, match := range amountRe.FindAllString(text, -1) {
		normalized := strings.NewReplacer(".", "", ",", "").Replace(match)
		value, err := strconv.ParseFloat(normalized, 64)
		if err != nil {
			continue
		}
		out = append(out, value)
	}
	return out
}

// parsePercent extracts a percentage like "-18% de descuento" or "30%
// en Web/Sucursal".
func parsePercent(text string) (float64, bool) {
	match := percentRe.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// normalizePricing fills the derived discount fields. When both prices
// are present the amount is their difference and a missing percentage
// is recomputed; a page that only shows the struck-through price
// carries no real discount, so the regular price becomes current.
func normalizePricing(current, original *float64, percent *float64) (cur float64, orig, pct, amount *float64) {
	switch {
	case current != nil && original != nil:
		diff := *original - *current
		amount = &diff
		if percent == nil {
			p := roundTo(diff / *original * 100, 2)
			percent = &p
		}
		return *current, original, percent, amount
	case current == nil && original != nil:
		return *original, nil, nil, nil
	case current != nil:
		return *current, nil, percent, nil
	default:
		return 0, nil, nil, nil
	}
}

func roundTo(v float64, places int) float64 {
	shift := 1.0
	for i := 0; i < places; i++ {
		shift *= 10
	}
	return float64(int64(v*shift+0.5)) / shift
}

func floatPtr(v float64) *float64 { return &v }

// strip collapses whitespace the way a browser renders it.
func strip(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
