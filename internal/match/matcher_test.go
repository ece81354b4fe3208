package match

import (
	"testing"

	"larder/internal"
)

func TestAreVariants(t *testing.T) {
	m := NewMatcher()

	cases := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "separator variants", a: "green-onion", b: "green onion", want: true},
		{name: "underscore variant", a: "green_onion", b: "green onion", want: true},
		{name: "apostrophe variants", a: "Angel's Hair Pasta", b: "Angel’s Hair Pasta", want: true},
		{name: "alias to canonical", a: "scallion", b: "green onion", want: true},
		{name: "two aliases of one canonical", a: "scallion", b: "spring onion", want: true},
		{name: "plural is not automatic", a: "onion", b: "onions", want: false},
		{name: "near match is not automatic", a: "chicken", b: "chicken broth", want: false},
		{name: "unrelated", a: "garlic", b: "butter", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := m.AreVariants(tc.a, tc.b); got != tc.want {
				t.Fatalf("AreVariants(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestSimilarityRange(t *testing.T) {
	m := NewMatcher()

	if got := m.Similarity("garlic", "garlic"); got != 1 {
		t.Fatalf("identical names: %v", got)
	}
	if got := m.Similarity("", "garlic"); got != 0 {
		t.Fatalf("empty name: %v", got)
	}

	near := m.Similarity("green onion", "green onions")
	far := m.Similarity("green onion", "butter")
	if near <= far {
		t.Fatalf("expected near > far, got %v <= %v", near, far)
	}
	if near < 0.85 {
		t.Fatalf("plural variant should score high, got %v", near)
	}
	if far > 0.5 {
		t.Fatalf("unrelated names should score low, got %v", far)
	}
}

func TestClassify(t *testing.T) {
	m := NewMatcher()

	row := func(id int, name, display string) internal.IngredientRow {
		return internal.IngredientRow{ID: id, Name: name, DisplayName: display}
	}

	flag, sim, ok := m.Classify(row(1, "green-onion", "Green-Onion"), row(2, "green onion", "Green Onion"), 0.85)
	if !ok || flag != internal.FlagExactKey || sim != 1 {
		t.Fatalf("exact key pair: flag=%s sim=%v ok=%v", flag, sim, ok)
	}

	flag, _, ok = m.Classify(row(1, "scallion", "Scallion"), row(2, "green onion", "Green Onion"), 0.85)
	if !ok || flag != internal.FlagAlias {
		t.Fatalf("alias pair: flag=%s ok=%v", flag, ok)
	}

	flag, _, ok = m.Classify(row(1, "onion", "Onion"), row(2, "onions", "Onions"), 0.85)
	if !ok || flag != internal.FlagPlural {
		t.Fatalf("plural pair: flag=%s ok=%v", flag, ok)
	}

	_, _, ok = m.Classify(row(1, "garlic", "Garlic"), row(2, "butter", "Butter"), 0.85)
	if ok {
		t.Fatal("unrelated pair should not be reported")
	}
}
