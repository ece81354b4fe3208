package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"larder/internal/storage"
)

const jsonLDPage = `<!DOCTYPE html>
<html>
<head>
<link rel="canonical" href="https://example.com/recipes/garlic-bread"/>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Recipe",
  "name": "Garlic Bread",
  "recipeIngredient": ["1 loaf bread", "3 cloves garlic, minced", "2 tbsp butter"]
}
</script>
</head>
<body><h1>Unrelated Heading</h1></body>
</html>`

const graphPage = `<!DOCTYPE html>
<html>
<head>
<meta property="og:url" content="https://example.com/recipes/stir-fry"/>
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@graph": [
    {"@type": "WebPage", "name": "Some Page"},
    {"@type": ["Recipe", "Thing"], "name": "Stir Fry", "recipeIngredient": ["2 scallions", "1 tbsp soy sauce"]}
  ]
}
</script>
</head>
<body></body>
</html>`

const domPage = `<!DOCTYPE html>
<html>
<head><title>Pancakes | Example Cooking</title></head>
<body>
<h1>Pancakes</h1>
<ul class="ingredients">
  <li>2 cups flour</li>
  <li>
    1 cup   milk
  </li>
  <li></li>
</ul>
</body>
</html>`

const noRecipePage = `<!DOCTYPE html>
<html><head><title>About Us</title></head><body><p>Nothing to cook here.</p></body></html>`

func TestParseRecipeHTMLJSONLD(t *testing.T) {
	parsed, err := ParseRecipeHTML(strings.NewReader(jsonLDPage))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Name != "Garlic Bread" {
		t.Fatalf("name=%q", parsed.Name)
	}
	if parsed.SourceURL != "https://example.com/recipes/garlic-bread" {
		t.Fatalf("sourceUrl=%q", parsed.SourceURL)
	}
	if len(parsed.IngredientLines) != 3 || parsed.IngredientLines[1] != "3 cloves garlic, minced" {
		t.Fatalf("lines=%v", parsed.IngredientLines)
	}
}

func TestParseRecipeHTMLGraph(t *testing.T) {
	parsed, err := ParseRecipeHTML(strings.NewReader(graphPage))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Name != "Stir Fry" {
		t.Fatalf("name=%q", parsed.Name)
	}
	if parsed.SourceURL != "https://example.com/recipes/stir-fry" {
		t.Fatalf("sourceUrl=%q", parsed.SourceURL)
	}
	if len(parsed.IngredientLines) != 2 {
		t.Fatalf("lines=%v", parsed.IngredientLines)
	}
}

func TestParseRecipeHTMLDOMFallback(t *testing.T) {
	parsed, err := ParseRecipeHTML(strings.NewReader(domPage))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Name != "Pancakes" {
		t.Fatalf("name=%q", parsed.Name)
	}
	want := []string{"2 cups flour", "1 cup milk"}
	if len(parsed.IngredientLines) != len(want) {
		t.Fatalf("lines=%v", parsed.IngredientLines)
	}
	for i := range want {
		if parsed.IngredientLines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, parsed.IngredientLines[i], want[i])
		}
	}
}

func TestParseRecipeHTMLNoRecipe(t *testing.T) {
	_, err := ParseRecipeHTML(strings.NewReader(noRecipePage))
	if !errors.Is(err, ErrNoRecipe) {
		t.Fatalf("err=%v, want ErrNoRecipe", err)
	}
}

func TestImportDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"garlic-bread.html": jsonLDPage,
		"about.html":        noRecipePage,
		"notes.txt":         "not html, ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	db, err := storage.Open(filepath.Join(t.TempDir(), "larder.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	im := NewImporter(db)
	result, err := im.ImportDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Fatalf("result=%+v", result)
	}

	// Re-import updates in place instead of duplicating.
	if _, err := im.ImportDir(dir); err != nil {
		t.Fatal(err)
	}
	n, err := db.CountRecipes()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("recipes=%d, want 1", n)
	}
}
