// Package match scores candidate skills against a free-text query.
// Scores are always in [0,1]; an exact or substring name match gets a
// bonus so it outranks any distributed partial overlap.
package match

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

const (
	weightName        = 1.0
	weightDescription = 0.7
	weightKeywords    = 0.5

	nameBonus = 0.15
)

// english stopwords are filtered only from ASCII-dominant queries;
// filtering them out of transliterated or non-Latin text would delete
// meaningful tokens.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "can": {}, "do": {}, "for": {}, "from": {}, "get": {},
	"have": {}, "help": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {},
	"me": {}, "my": {}, "need": {}, "of": {}, "on": {}, "or": {}, "our": {},
	"please": {}, "set": {}, "that": {}, "the": {}, "this": {}, "to": {},
	"up": {}, "want": {}, "with": {}, "you": {}, "your": {},
}

// Candidate is the matchable metadata of one skill.
type Candidate struct {
	Name        string
	Description string
	Keywords    []string
}

// Score ranks a candidate for a query. The returned reason names the
// fields and tokens that matched; it is empty when the score is zero.
func Score(query string, c Candidate) (float64, string) {
	qTokens := QueryTokens(query, 0)
	if len(qTokens) == 0 {
		return 0, ""
	}
	qSet := toSet(qTokens)

	nameTokens := singularize(tokenize(c.Name))
	descTokens := singularize(tokenize(c.Description))
	var kwTokens []string
	for _, k := range c.Keywords {
		kwTokens = append(kwTokens, singularize(tokenize(k))...)
	}

	nameHits := overlap(qSet, nameTokens)
	descHits := overlap(qSet, descTokens)
	kwHits := overlap(qSet, kwTokens)

	n := float64(len(qSet))
	score := (weightName*float64(len(nameHits))/n +
		weightDescription*float64(len(descHits))/n +
		weightKeywords*float64(len(kwHits))/n) /
		(weightName + weightDescription + weightKeywords)

	var reasons []string
	if len(nameHits) > 0 {
		reasons = append(reasons, "name matched: "+strings.Join(nameHits, ", "))
	}
	if len(descHits) > 0 {
		reasons = append(reasons, "description matched: "+strings.Join(descHits, ", "))
	}
	if len(kwHits) > 0 {
		reasons = append(reasons, "keywords matched: "+strings.Join(kwHits, ", "))
	}

	if bonusApplies(qTokens, QueryTokens(c.Name, 0)) {
		score += nameBonus
		reasons = append(reasons, fmt.Sprintf("name bonus +%.2f", nameBonus))
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score, strings.Join(reasons, "; ")
}

// QueryTokens tokenizes, stopword-filters, and singular-folds a query.
// max > 0 keeps only the longest max tokens (order preserved among kept
// tokens), which is how the code-search query picks its distinctive terms.
func QueryTokens(query string, max int) []string {
	toks := tokenize(query)
	if asciiDominant(query) {
		kept := toks[:0]
		for _, tk := range toks {
			if _, stop := stopwords[tk]; stop {
				continue
			}
			kept = append(kept, tk)
		}
		toks = kept
	}
	toks = dedup(singularize(toks))

	if max <= 0 || len(toks) <= max {
		return toks
	}

	type ranked struct {
		tok string
		pos int
	}
	rs := make([]ranked, len(toks))
	for i, tk := range toks {
		rs[i] = ranked{tok: tk, pos: i}
	}
	sort.SliceStable(rs, func(i, j int) bool { return len(rs[i].tok) > len(rs[j].tok) })
	rs = rs[:max]
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].pos < rs[j].pos })

	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.tok
	}
	return out
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// singularize folds trivial English plurals so "invoices" meets
// "invoice". One trailing s only; -ss words are left alone.
func singularize(toks []string) []string {
	out := make([]string, len(toks))
	for i, tk := range toks {
		if len(tk) >= 4 && strings.HasSuffix(tk, "s") && !strings.HasSuffix(tk, "ss") {
			tk = tk[:len(tk)-1]
		}
		out[i] = tk
	}
	return out
}

// asciiDominant reports whether more than half of the letters are ASCII.
func asciiDominant(s string) bool {
	letters, ascii := 0, 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if r < 128 {
			ascii++
		}
	}
	if letters == 0 {
		return true
	}
	return ascii*2 > letters
}

// overlap returns the query tokens found in the field, in sorted order.
func overlap(qSet map[string]struct{}, fieldTokens []string) []string {
	fSet := toSet(fieldTokens)
	var hits []string
	for tk := range qSet {
		if _, ok := fSet[tk]; ok {
			hits = append(hits, tk)
		}
	}
	sort.Strings(hits)
	return hits
}

// bonusApplies checks the full query token sequence against the name
// run through the same normalization, exact or as a substring. Both
// sides drop stopwords so "pdf to text" still matches "pdf-to-text".
func bonusApplies(qTokens, nameTokens []string) bool {
	if len(qTokens) == 0 || len(nameTokens) == 0 {
		return false
	}
	q := strings.Join(qTokens, "-")
	n := strings.Join(nameTokens, "-")
	return q == n || strings.Contains(n, q)
}

func toSet(toks []string) map[string]struct{} {
	s := make(map[string]struct{}, len(toks))
	for _, tk := range toks {
		s[tk] = struct{}{}
	}
	return s
}

func dedup(toks []string) []string {
	seen := make(map[string]struct{}, len(toks))
	out := toks[:0]
	for _, tk := range toks {
		if _, ok := seen[tk]; ok {
			continue
		}
		seen[tk] = struct{}{}
		out = append(out, tk)
	}
	return out
}
