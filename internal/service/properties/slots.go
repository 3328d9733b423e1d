package properties

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	SlotLocation = "location"
	SlotMaxPrice = "max_price"
	SlotBedrooms = "bedrooms"
)

var (
	locationPattern = regexp.MustCompile(`(?i)\b(?:in|near|around)\s+([a-z]+(?:\s+[a-z]+){0,2})`)
	bedroomsPattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:bed(?:room)?s?|br)\b`)

	// Tried in order; a budget qualifier wins over a bare dollar amount.
	pricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:under|below|up to|less than|max(?:imum)?(?: of)?|budget(?: of| is)?|around)\s*\$?\s*([\d,]+(?:\.\d+)?)\s*(k)?\b`),
		regexp.MustCompile(`(?i)\$\s*([\d,]+(?:\.\d+)?)\s*(k)?\b`),
	}
)

// locationStopwords cut the captured phrase so "in downtown under 2000"
// keeps only "downtown".
var locationStopwords = map[string]bool{
	"under": true, "below": true, "around": true, "near": true, "up": true,
	"with": true, "for": true, "that": true, "max": true, "budget": true,
	"and": true, "or": true, "please": true,
}

// extractSlots pulls property-search details out of the query. Only slots
// actually mentioned appear in the result, so stored values survive
// follow-up turns untouched.
func extractSlots(query string) map[string]string {
	updates := make(map[string]string)

	if m := locationPattern.FindStringSubmatch(query); m != nil {
		if loc := trimLocation(m[1]); loc != "" {
			updates[SlotLocation] = loc
		}
	}
	for _, p := range pricePatterns {
		if m := p.FindStringSubmatch(query); m != nil {
			updates[SlotMaxPrice] = normalizePrice(m[1], m[2] != "")
			break
		}
	}
	if m := bedroomsPattern.FindStringSubmatch(query); m != nil {
		updates[SlotBedrooms] = m[1]
	}
	return updates
}

func trimLocation(raw string) string {
	var kept []string
	for _, w := range strings.Fields(strings.ToLower(raw)) {
		if locationStopwords[w] {
			break
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// normalizePrice strips separators and expands a "k" suffix, e.g. "2,000"
// and "2k" both become "2000".
func normalizePrice(raw string, thousands bool) string {
	raw = strings.ReplaceAll(raw, ",", "")
	if thousands {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return strconv.Itoa(int(f * 1000))
		}
		return raw + "000"
	}
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

// mergedView overlays the turn's updates on the stored slots without
// mutating either map.
func mergedView(stored, updates map[string]string) map[string]string {
	view := make(map[string]string, len(stored)+len(updates))
	for k, v := range stored {
		view[k] = v
	}
	for k, v := range updates {
		view[k] = v
	}
	return view
}
