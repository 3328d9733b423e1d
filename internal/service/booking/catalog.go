package booking

import "strings"

// Venue describes a bookable restaurant.
type Venue struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Cuisine    string  `json:"cuisine"`
	Location   string  `json:"location"`
	Rating     float64 `json:"rating"`
	PriceRange string  `json:"priceRange"`
}

// Catalog is the fixed venue list consulted during booking turns.
type Catalog struct {
	items []Venue
}

// NewCatalog returns a Catalog preloaded with the supplied venues.
func NewCatalog(items []Venue) *Catalog {
	return &Catalog{items: append([]Venue(nil), items...)}
}

// List returns all venues.
func (c *Catalog) List() []Venue {
	return append([]Venue(nil), c.items...)
}

// Search filters venues by cuisine and location. Empty criteria match
// everything; non-empty criteria match case-insensitively.
func (c *Catalog) Search(cuisine, location string) []Venue {
	cuisine = strings.ToLower(strings.TrimSpace(cuisine))
	location = strings.ToLower(strings.TrimSpace(location))

	var out []Venue
	for _, v := range c.items {
		if cuisine != "" && !strings.Contains(strings.ToLower(v.Cuisine), cuisine) {
			continue
		}
		if location != "" && !strings.Contains(strings.ToLower(v.Location), location) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Match reports the first venue whose name appears in the query, ignoring
// case.
func (c *Catalog) Match(query string) (Venue, bool) {
	q := strings.ToLower(query)
	for _, v := range c.items {
		if strings.Contains(q, strings.ToLower(v.Name)) {
			return v, true
		}
	}
	return Venue{}, false
}

// Seed provides the default venue list.
func Seed() []Venue {
	return []Venue{
		{
			ID:         "bella-notte",
			Name:       "Bella Notte",
			Cuisine:    "Italian",
			Location:   "Downtown",
			Rating:     4.6,
			PriceRange: "$$$",
		},
		{
			ID:         "sakura-garden",
			Name:       "Sakura Garden",
			Cuisine:    "Japanese",
			Location:   "Midtown",
			Rating:     4.8,
			PriceRange: "$$$$",
		},
		{
			ID:         "el-fuego",
			Name:       "El Fuego",
			Cuisine:    "Mexican",
			Location:   "Riverside",
			Rating:     4.3,
			PriceRange: "$$",
		},
		{
			ID:         "the-braised-door",
			Name:       "The Braised Door",
			Cuisine:    "French",
			Location:   "Old Town",
			Rating:     4.7,
			PriceRange: "$$$$",
		},
		{
			ID:         "green-harvest",
			Name:       "Green Harvest",
			Cuisine:    "Vegetarian",
			Location:   "Downtown",
			Rating:     4.4,
			PriceRange: "$$",
		},
		{
			ID:         "smoke-and-oak",
			Name:       "Smoke & Oak",
			Cuisine:    "Barbecue",
			Location:   "Harbor District",
			Rating:     4.5,
			PriceRange: "$$$",
		},
	}
}
