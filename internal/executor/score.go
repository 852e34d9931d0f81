package executor

import (
	"math"
	"strings"

	"github.com/hendrikreh/chessmate/internal/intent"
	"github.com/hendrikreh/chessmate/internal/repository"
)

// Tokenize splits fields into a deduplicated set of lowercased alphanumeric
// tokens at least 3 characters long, buffered so each summary is tokenized
// in a single pass over its fields.
func Tokenize(fields ...string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range fields {
		var b strings.Builder
		flush := func() {
			if b.Len() >= 3 {
				tokens[strings.ToLower(b.String())] = struct{}{}
			}
			b.Reset()
		}
		for _, r := range field {
			switch {
			case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
				b.WriteRune(r)
			default:
				flush()
			}
		}
		flush()
	}
	return tokens
}

// mergeKeywords folds extra keywords (already lowercased, from a merged
// vector hit) into a token set produced by Tokenize.
func mergeKeywords(tokens map[string]struct{}, keywords []string) map[string]struct{} {
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if len(k) >= 3 {
			tokens[k] = struct{}{}
		}
	}
	return tokens
}

// RatingPredicate reports whether summary satisfies plan's rating bounds. A
// plan with no bounds set always satisfies; a bound referencing a rating the
// summary lacks fails closed rather than being silently ignored.
func RatingPredicate(rating intent.Rating, summary repository.GameSummary) bool {
	if rating.WhiteMin != nil {
		if summary.WhiteRating == nil || *summary.WhiteRating < *rating.WhiteMin {
			return false
		}
	}
	if rating.BlackMin != nil {
		if summary.BlackRating == nil || *summary.BlackRating < *rating.BlackMin {
			return false
		}
	}
	if rating.MaxRatingDelta != nil {
		if summary.WhiteRating == nil || summary.BlackRating == nil {
			return false
		}
		delta := *summary.WhiteRating - *summary.BlackRating
		if delta < 0 {
			delta = -delta
		}
		if delta > *rating.MaxRatingDelta {
			return false
		}
	}
	return true
}

// MatchedFilters counts, of plan's filters, how many are directly verifiable
// against summary's relational fields (opening, eco_range, result). Phase and
// theme filters can only be confirmed against vector-hit metadata, which this
// function has no access to, so they count toward total but never toward
// matched when no vector hit is available.
func MatchedFilters(plan intent.Plan, summary repository.GameSummary) (matched, total int) {
	total = len(plan.Filters)
	for _, f := range plan.Filters {
		switch f.Field {
		case intent.FieldOpening:
			if f.Value == summary.OpeningSlug {
				matched++
			}
		case intent.FieldECORange:
			if ecoInRange(summary.ECOCode, f.Value) {
				matched++
			}
		case intent.FieldResult:
			if f.Value == summary.Result {
				matched++
			}
		}
	}
	return matched, total
}

// ecoInRange reports whether code falls within a range value formatted
// "A00-E99" (inclusive), or equals it exactly when rangeValue carries no
// hyphen.
func ecoInRange(code, rangeValue string) bool {
	if code == "" {
		return false
	}
	lo, hi, ok := strings.Cut(rangeValue, "-")
	if !ok {
		return code == rangeValue
	}
	return code >= lo && code <= hi
}

// clamp01 maps v into [0, 1]. NaN and infinities map to 0 so a degenerate
// similarity score never propagates into the ranking.
func clamp01(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// VectorScore computes the per-candidate vector_score. hitScore/hasHit
// describe whether a merged vector hit exists for this candidate.
func VectorScore(hasHit bool, hitScore float64, ratingOK bool, matchedFilters, totalFilters int) float64 {
	if !ratingOK {
		return 0
	}
	if hasHit {
		return clamp01(hitScore)
	}
	if totalFilters == 0 {
		return 0.6
	}
	return 0.4 + 0.6*float64(matchedFilters)/float64(totalFilters)
}

// KeywordScore computes |planKeywords ∩ summaryTokens| / max(1, |planKeywords|).
func KeywordScore(planKeywords []string, summaryTokens map[string]struct{}) float64 {
	if len(planKeywords) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range planKeywords {
		if _, ok := summaryTokens[strings.ToLower(kw)]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(planKeywords))
}

// BaseTotal combines vector and keyword scores under fixed fusion weights.
func BaseTotal(vectorScore, keywordScore float64) float64 {
	return 0.75*vectorScore + 0.25*keywordScore
}

// TotalScore folds an optional agent score into baseTotal, clamped to 1.
func TotalScore(baseTotal float64, agentScore *float64) float64 {
	if agentScore == nil {
		return clamp01(baseTotal)
	}
	return clamp01(0.6*baseTotal + 0.4*(*agentScore))
}
