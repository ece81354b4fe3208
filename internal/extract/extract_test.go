package extract

import (
	"errors"
	"strings"
	"testing"
)

func TestFlattenIngredientsStrings(t *testing.T) {
	lines, err := FlattenIngredients(`["3 cloves garlic, minced", "1 cup flour", ""]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("len=%d", len(lines))
	}
	if lines[0] != "3 cloves garlic, minced" || lines[1] != "1 cup flour" {
		t.Fatalf("lines=%v", lines)
	}
}

func TestFlattenIngredientsItemQuantityPairs(t *testing.T) {
	lines, err := FlattenIngredients(`[{"item": "flour", "quantity": "2 cups"}, {"item": "salt", "quantity": ""}]`)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("len=%d", len(lines))
	}
	if lines[0] != "2 cups flour" {
		t.Fatalf("line[0]=%q", lines[0])
	}
	if lines[1] != "salt" {
		t.Fatalf("line[1]=%q", lines[1])
	}
}

func TestFlattenIngredientsInvalid(t *testing.T) {
	cases := []string{
		`not json`,
		`{"item": "flour"}`,
		`[42]`,
		`[{"quantity": "2 cups"}]`,
	}
	for _, raw := range cases {
		if _, err := FlattenIngredients(raw); !errors.Is(err, ErrInvalidIngredients) {
			t.Fatalf("%q: expected ErrInvalidIngredients, got %v", raw, err)
		}
	}
}

func TestParseResponseValid(t *testing.T) {
	content := `[{"name": "garlic", "display_name": "Garlic", "amount": "3", "unit": "clove", "preparation": "minced", "category": "vegetables"}]`
	out, err := parseResponse(content, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("len=%d", len(out))
	}
	got := out[0]
	if got.Name != "garlic" || got.DisplayName != "Garlic" || string(got.Category) != "vegetables" {
		t.Fatalf("got %+v", got)
	}
	if got.Amount == nil || *got.Amount != "3" || got.Unit == nil || *got.Unit != "clove" || got.Preparation == nil || *got.Preparation != "minced" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseResponseCodeFence(t *testing.T) {
	content := "```json\n[{\"name\": \"salt\", \"display_name\": \"Salt\", \"category\": \"spices\"}]\n```"
	out, err := parseResponse(content, 1)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Name != "salt" {
		t.Fatalf("got %+v", out[0])
	}
	if out[0].Amount != nil {
		t.Fatalf("missing amount should be nil, got %v", *out[0].Amount)
	}
}

func TestParseResponseMalformed(t *testing.T) {
	cases := []struct {
		name    string
		content string
		lines   int
	}{
		{name: "not json", content: `here you go: garlic`, lines: 1},
		{name: "object not array", content: `{"name": "garlic"}`, lines: 1},
		{name: "length mismatch", content: `[{"name": "garlic", "display_name": "Garlic", "category": "vegetables"}]`, lines: 2},
		{name: "empty name", content: `[{"name": "", "display_name": "Garlic", "category": "vegetables"}]`, lines: 1},
		{name: "missing display_name", content: `[{"name": "garlic", "category": "vegetables"}]`, lines: 1},
		{name: "unknown category", content: `[{"name": "garlic", "display_name": "Garlic", "category": "allium"}]`, lines: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseResponse(tc.content, tc.lines); !errors.Is(err, ErrMalformedResponse) {
				t.Fatalf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestBuildPromptNumbersLines(t *testing.T) {
	prompt := buildPrompt("Garlic Bread", []string{"3 cloves garlic", "1 baguette"})
	if !strings.Contains(prompt, "Garlic Bread") {
		t.Fatal("recipe name missing")
	}
	if !strings.Contains(prompt, "1. 3 cloves garlic") || !strings.Contains(prompt, "2. 1 baguette") {
		t.Fatalf("lines not numbered:\n%s", prompt)
	}
	if !strings.Contains(prompt, "vegetables") || !strings.Contains(prompt, "other") {
		t.Fatal("category enum missing")
	}
}
