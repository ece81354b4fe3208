package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var ErrNoRecipe = errors.New("no recipe markup found in document")

// ParsedRecipe is what a saved recipe page yields before it is stored.
type ParsedRecipe struct {
	Name            string
	SourceURL       string
	IngredientLines []string
}

// ParseRecipeHTML extracts a recipe from saved page HTML. Schema.org JSON-LD
// is the primary source (what the upstream sites publish and what the old
// scraper-based ingests consumed); a DOM selector pass is the fallback for
// pages without structured data.
func ParseRecipeHTML(r io.Reader) (ParsedRecipe, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return ParsedRecipe{}, err
	}

	parsed := ParsedRecipe{SourceURL: canonicalURL(doc)}

	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		recipe, ok := recipeFromJSONLD(s.Text())
		if !ok {
			return true
		}
		parsed.Name = recipe.Name
		parsed.IngredientLines = recipe.IngredientLines
		return false
	})

	if len(parsed.IngredientLines) == 0 {
		parsed.IngredientLines = ingredientsFromDOM(doc)
	}
	if parsed.Name == "" {
		parsed.Name = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if parsed.Name == "" {
		parsed.Name = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if parsed.Name == "" || len(parsed.IngredientLines) == 0 {
		return ParsedRecipe{}, ErrNoRecipe
	}
	return parsed, nil
}

func canonicalURL(doc *goquery.Document) string {
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	if content, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok {
		return strings.TrimSpace(content)
	}
	return ""
}

func recipeFromJSONLD(blob string) (ParsedRecipe, bool) {
	var root any
	if err := json.Unmarshal([]byte(blob), &root); err != nil {
		return ParsedRecipe{}, false
	}
	node, ok := findRecipeNode(root)
	if !ok {
		return ParsedRecipe{}, false
	}

	name, _ := node["name"].(string)
	lines := toStringSlice(node["recipeIngredient"])
	if strings.TrimSpace(name) == "" || len(lines) == 0 {
		return ParsedRecipe{}, false
	}
	return ParsedRecipe{Name: strings.TrimSpace(name), IngredientLines: lines}, true
}

// findRecipeNode walks a JSON-LD document: a bare object, a top-level array,
// or an @graph list, looking for @type Recipe (possibly inside a type array).
func findRecipeNode(root any) (map[string]any, bool) {
	switch v := root.(type) {
	case map[string]any:
		if isRecipeType(v["@type"]) {
			return v, true
		}
		if graph, ok := v["@graph"].([]any); ok {
			return findRecipeNode(graph)
		}
	case []any:
		for _, el := range v {
			if node, ok := findRecipeNode(el); ok {
				return node, true
			}
		}
	}
	return nil, false
}

func isRecipeType(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "Recipe"
	case []any:
		for _, el := range v {
			if s, ok := el.(string); ok && s == "Recipe" {
				return true
			}
		}
	}
	return false
}

func toStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

var ingredientSelectors = []string{
	`[itemprop="recipeIngredient"]`,
	`ul.ingredients li`,
	`.recipe-ingredients li`,
	`li.ingredient`,
}

func ingredientsFromDOM(doc *goquery.Document) []string {
	for _, selector := range ingredientSelectors {
		var lines []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.Join(strings.Fields(s.Text()), " ")
			if text != "" {
				lines = append(lines, text)
			}
		})
		if len(lines) > 0 {
			return lines
		}
	}
	return nil
}

// EncodeIngredientLines renders parsed lines as the recipes.ingredients JSON
// column value.
func EncodeIngredientLines(lines []string) (string, error) {
	blob, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("encode ingredient lines: %w", err)
	}
	return string(blob), nil
}
