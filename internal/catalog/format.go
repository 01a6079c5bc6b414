package catalog

import (
	"fmt"
	"strings"

	"github.com/spherical-ai/spherical/libs/answer-engine/internal/storage"
)

// FormatAnswer renders a catalog result as a customer-facing reply. It returns an
// empty string for MatchNone.
func FormatAnswer(res *Result) string {
	if res == nil || len(res.Products) == 0 {
		return ""
	}

	if res.Kind == MatchSingle {
		p := res.Products[0]
		var b strings.Builder
		fmt.Fprintf(&b, "%s (SKU %s) is priced at %s", p.Name, p.SKU, formatPrice(p))
		if p.InStock {
			b.WriteString(" and is in stock.")
		} else {
			b.WriteString(" and is currently out of stock.")
		}
		if p.Description != "" {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(p.Description))
		}
		return b.String()
	}

	var b strings.Builder
	b.WriteString("We have a few matching products:\n")
	for i, p := range res.Products {
		fmt.Fprintf(&b, "%d. %s (SKU %s) - %s\n", i+1, p.Name, p.SKU, formatPrice(p))
	}
	b.WriteString("Which one would you like to know more about?")
	return b.String()
}

func formatPrice(p storage.Product) string {
	price := fmt.Sprintf("%.2f", p.Price)
	if p.Currency != "" {
		price += " " + p.Currency
	}
	if p.Unit != "" {
		price += " per " + p.Unit
	}
	return price
}
