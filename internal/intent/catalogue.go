package intent

import "sort"

// openingEntry maps a matched phrase to the opening slug and ECO range it
// implies. Phrases are checked as substrings of the cleaned text.
type openingEntry struct {
	Slug string
	ECO  string
}

// openingCatalogue is a closed set of recognized opening names. Phrases are
// lowercase, space-normalized the same way cleaned_text is.
var openingCatalogue = map[string]openingEntry{
	"kings indian":         {Slug: "kings_indian_defense", ECO: "E60-E99"},
	"king s indian":        {Slug: "kings_indian_defense", ECO: "E60-E99"},
	"french defense":       {Slug: "french_defense", ECO: "C00-C19"},
	"french defence":       {Slug: "french_defense", ECO: "C00-C19"},
	"sicilian defense":     {Slug: "sicilian_defense", ECO: "B20-B99"},
	"sicilian defence":     {Slug: "sicilian_defense", ECO: "B20-B99"},
	"queens gambit":        {Slug: "queens_gambit", ECO: "D06-D69"},
	"queen s gambit":       {Slug: "queens_gambit", ECO: "D06-D69"},
	"ruy lopez":            {Slug: "ruy_lopez", ECO: "C60-C99"},
	"italian game":         {Slug: "italian_game", ECO: "C50-C59"},
	"caro kann":            {Slug: "caro_kann_defense", ECO: "B10-B19"},
	"english opening":      {Slug: "english_opening", ECO: "A10-A39"},
	"nimzo indian":         {Slug: "nimzo_indian_defense", ECO: "E20-E59"},
	"grunfeld":             {Slug: "grunfeld_defense", ECO: "D70-D99"},
	"dutch defense":        {Slug: "dutch_defense", ECO: "A80-A99"},
	"scandinavian defense": {Slug: "scandinavian_defense", ECO: "B01"},
}

// phaseCatalogue maps a matched phrase to the phase filter value.
var phaseCatalogue = map[string]string{
	"middlegame":  "middlegame",
	"middle game": "middlegame",
	"endgame":     "endgame",
	"end game":    "endgame",
	"endgames":    "endgame",
}

// themeCatalogue maps a matched phrase to the theme filter value.
var themeCatalogue = map[string]string{
	"queenside majority":       "queenside_majority",
	"sacrifice":                "sacrifice",
	"sacrifices":               "sacrifice",
	"tactics":                  "tactics",
	"tactical":                 "tactics",
	"king attack":              "king_attack",
	"kingside attack":          "king_attack",
	"attack on the king":       "king_attack",
	"zugzwang":                 "zugzwang",
	"passed pawn":              "passed_pawn",
	"opposite colored bishops": "opposite_bishops",
}

// resultPhrases maps result phrases to the PGN result slug.
var resultPhrases = map[string]string{
	"white win":     "1-0",
	"white wins":    "1-0",
	"white victory": "1-0",
	"black win":     "0-1",
	"black wins":    "0-1",
	"black victory": "0-1",
	"draw":          "1/2-1/2",
	"draws":         "1/2-1/2",
	"drawn":         "1/2-1/2",
}

// limitQualifiers precede a small integer that should be adopted as the
// result limit (e.g. "top 10", "show 5").
var limitQualifiers = map[string]bool{
	"top": true, "first": true, "show": true, "list": true,
	"give": true, "find": true, "return": true,
}

// limitFollowers follow a small integer that should be adopted as the
// result limit (e.g. "10 games").
var limitFollowers = map[string]bool{
	"games": true, "game": true,
}

// stopwords are excluded from keyword extraction.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "in": true, "on": true,
	"at": true, "to": true, "for": true, "and": true, "or": true, "is": true,
	"are": true, "where": true, "that": true, "with": true, "end": true,
	"find": true, "show": true, "list": true, "give": true, "return": true,
	"me": true, "some": true, "please": true, "top": true, "first": true,
}

// ratingLowerBound precede a rating value meaning "at least this much".
var ratingLowerBound = map[string]bool{
	"least": true, "minimum": true, "min": true, "over": true, "above": true,
}

// ratingDeltaFollowers follow a rating value meaning "rating delta".
var ratingDeltaFollowers = map[string]bool{
	"lower": true, "less": true, "higher": true, "greater": true,
	"more": true, "fewer": true,
}

// ratingContextWords mark a numeric token as rating-relevant even without an
// explicit qualifier.
var ratingContextWords = map[string]bool{
	"points": true, "elo": true, "rating": true, "rated": true,
}

// Phrase tables are plain maps; matching iterates the sorted phrase lists
// below so that filter order is stable across calls.
var (
	openingPhrases = sortedKeys(openingCatalogue)
	phasePhrases   = sortedKeys(phaseCatalogue)
	themePhrases   = sortedKeys(themeCatalogue)
	resultKeys     = sortedKeys(resultPhrases)
)

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// spelledNumbers maps spelled-out integers to their numeric value.
var spelledNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"hundred": 100,
}
