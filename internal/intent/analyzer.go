package intent

import (
	"strconv"
	"strings"
)

// Analyse turns a Request into a deterministic query Plan. It never fails
// and never calls out; malformed input simply produces empty keywords and
// no filters.
func Analyse(req Request, maxLimit, defaultLimit int) Plan {
	cleaned := normalize(req.Text)
	tokens := strings.Fields(cleaned)

	limit := extractLimit(tokens, req.Limit, maxLimit, defaultLimit)
	offset := 0
	if req.Offset != nil && *req.Offset > 0 {
		offset = *req.Offset
	}

	filters := extractMetadataFilters(cleaned)
	if rf, ok := extractResultFilter(cleaned); ok {
		filters = append(filters, rf)
	}

	keywords := extractKeywords(tokens)
	rating := extractRating(tokens)

	filters = dedupeFilters(filters)

	return Plan{
		CleanedText: cleaned,
		Keywords:    keywords,
		Filters:     filters,
		Rating:      rating,
		Limit:       limit,
		Offset:      offset,
	}
}

// normalize lowercases text, maps every rune other than ASCII letters,
// ASCII digits and apostrophes to spaces (non-ASCII letters included), and
// drops ASCII apostrophes entirely.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'':
			// drop apostrophes rather than replacing with a space, so
			// "King's" becomes "kings" not "king s".
			continue
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return collapseSpaces(b.String())
}

func collapseSpaces(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func extractLimit(tokens []string, reqLimit *int, maxLimit, defaultLimit int) int {
	for i, tok := range tokens {
		v, ok := smallInt(tok)
		if !ok || v > 50 {
			continue
		}
		if hasWithin(tokens, i, -2, limitQualifiers) || hasWithin(tokens, i, 2, limitFollowers) {
			return clamp(v, 1, maxLimit)
		}
	}
	if reqLimit != nil {
		return clamp(*reqLimit, 1, maxLimit)
	}
	return clamp(defaultLimit, 1, maxLimit)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// smallInt parses a token as an Arabic or spelled-out integer.
func smallInt(tok string) (int, bool) {
	if v, err := strconv.Atoi(tok); err == nil {
		return v, true
	}
	if v, ok := spelledNumbers[tok]; ok {
		return v, true
	}
	return 0, false
}

func extractMetadataFilters(cleaned string) []Filter {
	var filters []Filter

	for _, phrase := range openingPhrases {
		if strings.Contains(cleaned, phrase) {
			entry := openingCatalogue[phrase]
			filters = append(filters, Filter{Field: FieldOpening, Value: entry.Slug})
			filters = append(filters, Filter{Field: FieldECORange, Value: entry.ECO})
			break
		}
	}

	for _, phrase := range phasePhrases {
		if strings.Contains(cleaned, phrase) {
			filters = append(filters, Filter{Field: FieldPhase, Value: phaseCatalogue[phrase]})
			break
		}
	}

	seenThemes := make(map[string]bool)
	for _, phrase := range themePhrases {
		value := themeCatalogue[phrase]
		if strings.Contains(cleaned, phrase) && !seenThemes[value] {
			filters = append(filters, Filter{Field: FieldTheme, Value: value})
			seenThemes[value] = true
		}
	}

	return filters
}

func extractResultFilter(cleaned string) (Filter, bool) {
	for _, phrase := range resultKeys {
		if strings.Contains(cleaned, phrase) {
			return Filter{Field: FieldResult, Value: resultPhrases[phrase]}, true
		}
	}
	return Filter{}, false
}

func extractKeywords(tokens []string) []string {
	seen := make(map[string]bool)
	var keywords []string
	for _, tok := range tokens {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}
	return keywords
}

// ratingColor tracks which side a candidate rating value applies to during
// the single-pass rating parse.
type ratingColor int

const (
	colorNone ratingColor = iota
	colorWhite
	colorBlack
)

func extractRating(tokens []string) Rating {
	var rating Rating
	color := colorNone

	for i, tok := range tokens {
		switch tok {
		case "white":
			color = colorWhite
			continue
		case "black":
			color = colorBlack
			continue
		}

		v, ok := smallInt(tok)
		if !ok {
			continue
		}

		if hasWithin(tokens, i, -4, ratingLowerBound) {
			applyMin(&rating, color, v)
			continue
		}
		if hasWithin(tokens, i, 3, ratingDeltaFollowers) {
			applyDelta(&rating, v)
			continue
		}
		if hasWithin(tokens, i, 3, ratingContextWords) || hasWithin(tokens, i, -3, ratingContextWords) {
			applyMin(&rating, color, v)
			continue
		}
		// Fallback: a number mentioned while a color is in context (e.g.
		// "White is 2500") is treated as that color's rating even without
		// an explicit qualifier like "at least".
		if color != colorNone {
			applyMin(&rating, color, v)
		}
	}

	return rating
}

// hasWithin looks for any token matching set within span tokens of index i.
// A negative span looks backward, a positive span looks forward.
func hasWithin(tokens []string, i, span int, set map[string]bool) bool {
	if span < 0 {
		start := i + span
		if start < 0 {
			start = 0
		}
		for j := start; j < i; j++ {
			if set[tokens[j]] {
				return true
			}
		}
		return false
	}
	end := i + span
	if end >= len(tokens) {
		end = len(tokens) - 1
	}
	for j := i + 1; j <= end; j++ {
		if set[tokens[j]] {
			return true
		}
	}
	return false
}

func applyMin(rating *Rating, color ratingColor, v int) {
	switch color {
	case colorWhite:
		rating.WhiteMin = maxIntPtr(rating.WhiteMin, v)
	case colorBlack:
		rating.BlackMin = maxIntPtr(rating.BlackMin, v)
	}
}

func applyDelta(rating *Rating, v int) {
	if rating.MaxRatingDelta == nil || v > *rating.MaxRatingDelta {
		vv := v
		rating.MaxRatingDelta = &vv
	}
}

func maxIntPtr(cur *int, v int) *int {
	if cur == nil || v > *cur {
		vv := v
		return &vv
	}
	return cur
}

func dedupeFilters(filters []Filter) []Filter {
	seen := make(map[Filter]bool)
	var out []Filter
	for _, f := range filters {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
