package match

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"larder/internal"
	"larder/internal/util"
)

// Matcher decides whether two ingredient name strings denote the same
// ingredient. Automatic resolution uses exact comparison-key equality and the
// fixed alias table only; fuzzy similarity is a review signal for the
// duplicates report and never merges anything on its own.
type Matcher struct {
	aliases map[string]string
}

func NewMatcher() *Matcher {
	return &Matcher{aliases: defaultAliases()}
}

// Canonical implements storage.AliasResolver: given a comparison key, it
// returns the canonical name that key is a known alias of.
func (m *Matcher) Canonical(key string) (string, bool) {
	canonical, ok := m.aliases[key]
	return canonical, ok
}

// canonicalKey resolves a name through the alias table to the comparison key
// of its canonical form, or to its own key if it is not a known alias.
func (m *Matcher) canonicalKey(name string) string {
	key := util.ComparisonKey(name)
	if canonical, ok := m.aliases[key]; ok {
		return util.ComparisonKey(canonical)
	}
	return key
}

// AreVariants reports whether two names resolve to the same ingredient:
// identical comparison keys, or alias-table membership under one canonical.
func (m *Matcher) AreVariants(a, b string) bool {
	ka := util.ComparisonKey(a)
	kb := util.ComparisonKey(b)
	if ka == "" || kb == "" {
		return false
	}
	if ka == kb {
		return true
	}
	return m.canonicalKey(a) == m.canonicalKey(b)
}

// Similarity scores two names in [0,1] over their comparison keys, blending
// Levenshtein ratio with the Dice coefficient.
func (m *Matcher) Similarity(a, b string) float64 {
	ka := util.ComparisonKey(a)
	kb := util.ComparisonKey(b)
	if ka == "" || kb == "" {
		return 0
	}
	if ka == kb {
		return 1
	}

	maxLen := len([]rune(ka))
	if lb := len([]rune(kb)); lb > maxLen {
		maxLen = lb
	}
	dist := levenshtein.ComputeDistance(ka, kb)
	lev := 1 - float64(dist)/float64(maxLen)
	if lev < 0 {
		lev = 0
	}

	return 0.6*lev + 0.4*util.DiceCoefficient(ka, kb)
}

// Classify pairs two existing ingredient rows for the duplicates report.
// The returned flag explains why they were paired; fuzzyThreshold gates the
// weakest signal. ok is false when the pair is not worth reporting.
func (m *Matcher) Classify(a, b internal.IngredientRow, fuzzyThreshold float64) (internal.DuplicateFlag, float64, bool) {
	ka := util.ComparisonKey(a.Name)
	kb := util.ComparisonKey(b.Name)

	switch {
	case ka != "" && ka == kb:
		return internal.FlagExactKey, 1, true
	case m.canonicalKey(a.Name) == m.canonicalKey(b.Name):
		return internal.FlagAlias, 1, true
	case util.Singularize(ka) == util.Singularize(kb):
		return internal.FlagPlural, m.Similarity(a.Name, b.Name), true
	case strings.EqualFold(a.DisplayName, b.DisplayName) && a.DisplayName != b.DisplayName:
		return internal.FlagCaseOnly, 1, true
	}

	if sim := m.Similarity(a.Name, b.Name); sim >= fuzzyThreshold {
		return internal.FlagFuzzy, sim, true
	}
	return "", 0, false
}
