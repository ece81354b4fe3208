package util

import (
	"strings"
	"unicode"
)

// NormalizeName is the light form stored as ingredients.name: lowercase,
// trimmed, internal whitespace collapsed. Display casing lives in
// display_name; this column only has to be stable and unique.
func NormalizeName(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	return strings.Join(strings.Fields(s), " ")
}

// ComparisonKey is the aggressive ephemeral form used only for duplicate
// comparison, never stored. Apostrophes of every glyph are dropped, hyphens,
// underscores and whitespace are treated as one separator class and removed,
// and sentence punctuation is stripped, so "green-onion", "green_onion" and
// "green onion" collapse to the same key.
func ComparisonKey(input string) string {
	s := strings.ToLower(input)

	var out strings.Builder
	out.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\'', '‘', '’', '`':
			continue
		case '-', '_':
			continue
		case '.', ',', '!', '?', ';', ':', '(', ')':
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

// Singularize reduces common English plural suffixes. It exists for the
// informational plural flag in the duplicates report; plural and singular
// forms are not merged automatically.
func Singularize(key string) string {
	switch {
	case len(key) > 4 && strings.HasSuffix(key, "ies"):
		return key[:len(key)-3] + "y"
	case len(key) > 4 && strings.HasSuffix(key, "oes"):
		return key[:len(key)-2]
	case len(key) > 3 && strings.HasSuffix(key, "s") &&
		!strings.HasSuffix(key, "ss") && !strings.HasSuffix(key, "sses"):
		return key[:len(key)-1]
	}
	return key
}

// Slugify derives the URL-safe slug from a display name. Generated once at
// ingredient creation.
func Slugify(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	var out strings.Builder
	out.Grow(len(s))
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				out.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(out.String(), "-")
}

// DiceCoefficient is a bigram similarity in [0,1].
func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}

func StringPtr(v string) *string { return &v }
