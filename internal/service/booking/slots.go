package booking

import (
	"regexp"
	"strings"
)

// Slot names accumulated by the booking handler.
const (
	SlotPartySize  = "party_size"
	SlotGuestCount = "guest_count"
	SlotDate       = "date"
	SlotTime       = "time"
	SlotCuisine    = "cuisine"
	SlotRestaurant = "restaurant"
)

var (
	partySizePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:table\s+for|party\s+of|for)\s+(\d{1,2})\b`),
		regexp.MustCompile(`(?i)\b(\d{1,2})\s+(?:people|persons|guests|diners)\b`),
		regexp.MustCompile(`(?i)\b(?:make\s+it|change\s+(?:it\s+)?to)\s+(\d{1,2})\b`),
	}
	timePattern = regexp.MustCompile(`(?i)\b(\d{1,2}(?::\d{2})?\s*(?:am|pm))\b|\b(\d{1,2}:\d{2})\b`)
	datePattern = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday|\d{4}-\d{2}-\d{2})\b`)
)

var cuisineKeywords = []string{
	"italian", "japanese", "mexican", "french", "vegetarian", "barbecue",
	"sushi", "pizza", "steak",
}

// cuisineAliases folds dish keywords into their catalog cuisine.
var cuisineAliases = map[string]string{
	"sushi": "japanese",
	"pizza": "italian",
	"steak": "barbecue",
}

// extractSlots pulls booking details out of the query deterministically.
// Only slots actually mentioned appear in the result, so values stated on
// earlier turns survive until the user overrides them.
func extractSlots(query string) map[string]string {
	updates := make(map[string]string)
	lowered := strings.ToLower(query)

	for _, p := range partySizePatterns {
		if m := p.FindStringSubmatch(query); m != nil {
			updates[SlotPartySize] = m[1]
			updates[SlotGuestCount] = m[1]
			break
		}
	}

	if m := timePattern.FindStringSubmatch(query); m != nil {
		value := m[1]
		if value == "" {
			value = m[2]
		}
		updates[SlotTime] = strings.ToLower(strings.Join(strings.Fields(value), " "))
	}

	if m := datePattern.FindStringSubmatch(lowered); m != nil {
		updates[SlotDate] = m[1]
	}

	for _, keyword := range cuisineKeywords {
		if strings.Contains(lowered, keyword) {
			cuisine := keyword
			if alias, ok := cuisineAliases[keyword]; ok {
				cuisine = alias
			}
			updates[SlotCuisine] = cuisine
			break
		}
	}

	return updates
}

// mergedView overlays updates onto the session's accumulated slots.
func mergedView(accumulated, updates map[string]string) map[string]string {
	view := make(map[string]string, len(accumulated)+len(updates))
	for k, v := range accumulated {
		view[k] = v
	}
	for k, v := range updates {
		view[k] = v
	}
	return view
}
