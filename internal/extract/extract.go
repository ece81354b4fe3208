package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"larder/internal"
	"larder/internal/util"
)

var (
	// ErrInvalidIngredients marks source data no retry can fix: the recipe's
	// ingredients column is not a JSON array of a recognized shape.
	ErrInvalidIngredients = errors.New("ingredients field is not a parseable array")

	// ErrMalformedResponse marks a model reply that failed strict validation.
	// Retryable: the model may produce a valid reply on another sample.
	ErrMalformedResponse = errors.New("malformed extraction response")
)

// FlattenIngredients turns the recipe's stored ingredients JSON into plain
// text lines for the extractor. Two shapes are accepted: an array of strings,
// and an array of {item, quantity} pairs (TheMealDB imports) flattened to
// "{quantity} {item}".
func FlattenIngredients(raw string) ([]string, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return nil, ErrInvalidIngredients
	}

	lines := make([]string, 0, len(elements))
	for _, el := range elements {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				lines = append(lines, s)
			}
			continue
		}

		var pair struct {
			Item     string `json:"item"`
			Quantity string `json:"quantity"`
		}
		if err := json.Unmarshal(el, &pair); err != nil || strings.TrimSpace(pair.Item) == "" {
			return nil, ErrInvalidIngredients
		}
		line := strings.TrimSpace(strings.TrimSpace(pair.Quantity) + " " + strings.TrimSpace(pair.Item))
		lines = append(lines, line)
	}

	return lines, nil
}

const promptTemplate = `You are extracting structured ingredient data for a recipe database.

Recipe: %s
Ingredient lines:
%s

For EVERY line above, produce one JSON object with these fields:
- "name": base ingredient name, lowercase, singular ("garlic", not "3 cloves garlic"). Preserve specific modifiers that name a distinct ingredient ("parmesan cheese", "red onion").
- "display_name": the name capitalized for display ("Garlic").
- "amount": numeric quantity as a string, or null if the line has none.
- "unit": measurement unit, singular ("clove", "cup"), or null.
- "preparation": preparation notes ("minced", "finely chopped"), or null.
- "category": exactly one of %s.

Reply with ONLY a JSON array, no prose, no code fences. The array must have
exactly one element per input line, in the same order.`

func buildPrompt(recipeName string, lines []string) string {
	numbered := make([]string, len(lines))
	for i, line := range lines {
		numbered[i] = fmt.Sprintf("%d. %s", i+1, line)
	}
	cats := make([]string, len(internal.Categories))
	for i, c := range internal.Categories {
		cats[i] = string(c)
	}
	return fmt.Sprintf(promptTemplate, recipeName, strings.Join(numbered, "\n"), strings.Join(cats, ", "))
}

// parseResponse validates the model reply at the boundary: it must be a JSON
// array with exactly one element per input line, and every element must carry
// a non-empty name, display_name, and a category from the closed enum.
// Anything else is ErrMalformedResponse.
func parseResponse(content string, lineCount int) ([]internal.ExtractedIngredient, error) {
	content = stripCodeFence(content)

	var raw []struct {
		Name        string  `json:"name"`
		DisplayName string  `json:"display_name"`
		Amount      *string `json:"amount"`
		Unit        *string `json:"unit"`
		Preparation *string `json:"preparation"`
		Category    string  `json:"category"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(raw) != lineCount {
		return nil, fmt.Errorf("%w: got %d elements for %d lines", ErrMalformedResponse, len(raw), lineCount)
	}

	out := make([]internal.ExtractedIngredient, 0, len(raw))
	for i, r := range raw {
		name := util.NormalizeName(r.Name)
		display := strings.TrimSpace(r.DisplayName)
		category := strings.ToLower(strings.TrimSpace(r.Category))
		if name == "" || display == "" {
			return nil, fmt.Errorf("%w: element %d missing name or display_name", ErrMalformedResponse, i)
		}
		if !internal.ValidCategory(category) {
			return nil, fmt.Errorf("%w: element %d has unknown category %q", ErrMalformedResponse, i, r.Category)
		}
		out = append(out, internal.ExtractedIngredient{
			Name:        name,
			DisplayName: display,
			Amount:      cleanOptional(r.Amount),
			Unit:        cleanOptional(r.Unit),
			Preparation: cleanOptional(r.Preparation),
			Category:    internal.Category(category),
		})
	}
	return out, nil
}

func cleanOptional(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
