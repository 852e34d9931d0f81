// Package intent turns free-text questions into structured query plans.
package intent

// Request is the raw user input before analysis. Limit and Offset are
// pointers because both are optional on the wire; nil means "not supplied"
// (falls back to the configured default), as opposed to an explicit 0.
type Request struct {
	Text   string
	Limit  *int
	Offset *int
}

// Filter is a single metadata predicate extracted from a question.
type Filter struct {
	Field FilterField
	Value string
}

// FilterField names the metadata dimension a Filter constrains.
type FilterField string

const (
	FieldOpening  FilterField = "opening"
	FieldECORange FilterField = "eco_range"
	FieldPhase    FilterField = "phase"
	FieldTheme    FilterField = "theme"
	FieldResult   FilterField = "result"
)

// Rating holds the rating-related constraints parsed from a question.
type Rating struct {
	WhiteMin       *int
	BlackMin       *int
	MaxRatingDelta *int
}

// Plan is the immutable, deterministic result of analysing a Request.
type Plan struct {
	CleanedText string
	Keywords    []string
	Filters     []Filter
	Rating      Rating
	Limit       int
	Offset      int
}

// Equal reports whether two plans are structurally identical. Used by the
// determinism property (analysing the same text twice yields equal plans)
// and by tests.
func (p Plan) Equal(other Plan) bool {
	if p.CleanedText != other.CleanedText ||
		p.Limit != other.Limit ||
		p.Offset != other.Offset {
		return false
	}
	if !intPtrEqual(p.Rating.WhiteMin, other.Rating.WhiteMin) ||
		!intPtrEqual(p.Rating.BlackMin, other.Rating.BlackMin) ||
		!intPtrEqual(p.Rating.MaxRatingDelta, other.Rating.MaxRatingDelta) {
		return false
	}
	if len(p.Keywords) != len(other.Keywords) {
		return false
	}
	for i := range p.Keywords {
		if p.Keywords[i] != other.Keywords[i] {
			return false
		}
	}
	if len(p.Filters) != len(other.Filters) {
		return false
	}
	for i := range p.Filters {
		if p.Filters[i] != other.Filters[i] {
			return false
		}
	}
	return true
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// HasFilter reports whether the plan carries a filter of the given field.
func (p Plan) HasFilter(field FilterField) bool {
	for _, f := range p.Filters {
		if f.Field == field {
			return true
		}
	}
	return false
}

// HasThemeFilter reports whether any theme filter is present, used by the
// agent evaluator's reasoning-effort heuristic.
func (p Plan) HasThemeFilter() bool {
	return p.HasFilter(FieldTheme)
}
