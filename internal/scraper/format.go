package scraper

import (
	"fmt"
	"strconv"
	"strings"
)

const maxListed = 50

// FormatListings renders dataset items as a numbered plain-text list,
// capped at 50 entries. Portals disagree on field names, so a few aliases
// are tried.
func FormatListings(items []map[string]any) string {
	if len(items) == 0 {
		return "No listings found."
	}
	if len(items) > maxListed {
		items = items[:maxListed]
	}
	var b strings.Builder
	for i, it := range items {
		title := pick(it, "Untitled", "title", "titre")
		price := pick(it, "Price not given", "price", "prix")
		place := pick(it, "Location not given", "location", "lieu")
		link := pick(it, "", "url", "link")

		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		fmt.Fprintf(&b, "   Price: %s | Location: %s\n", price, place)
		if link != "" {
			b.WriteString("   " + link + "\n")
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func pick(it map[string]any, def string, keys ...string) string {
	for _, k := range keys {
		v, ok := it[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case string:
			return x
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		default:
			return fmt.Sprint(x)
		}
	}
	return def
}
