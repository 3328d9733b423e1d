package education

import (
	"regexp"
	"strings"
)

const (
	SlotGradeLevel = "grade_level"
	SlotLocation   = "location"
)

var (
	// Tried in order; "grade 5", "5th grade", and "kindergarten" all count.
	gradePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bgrade\s+(\d{1,2})\b`),
		regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?[\s-]*grade\b`),
	}
	kindergartenPattern = regexp.MustCompile(`(?i)\bkindergarten\b`)
	locationPattern     = regexp.MustCompile(`(?i)\b(?:in|near|around)\s+([a-z]+(?:\s+[a-z]+){0,2})`)
)

var locationStopwords = map[string]bool{
	"for": true, "with": true, "that": true, "and": true, "or": true,
	"near": true, "around": true, "please": true, "grade": true,
}

// extractSlots pulls school-search details out of the query. Only slots
// actually mentioned appear in the result.
func extractSlots(query string) map[string]string {
	updates := make(map[string]string)

	if kindergartenPattern.MatchString(query) {
		updates[SlotGradeLevel] = "kindergarten"
	} else {
		for _, p := range gradePatterns {
			if m := p.FindStringSubmatch(query); m != nil {
				updates[SlotGradeLevel] = m[1]
				break
			}
		}
	}
	if m := locationPattern.FindStringSubmatch(query); m != nil {
		if loc := trimLocation(m[1]); loc != "" {
			updates[SlotLocation] = loc
		}
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
