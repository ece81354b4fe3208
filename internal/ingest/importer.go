package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"larder/internal/storage"
	"larder/internal/util"
)

type Importer struct {
	db *storage.DB
}

func NewImporter(db *storage.DB) *Importer {
	return &Importer{db: db}
}

type ImportResult struct {
	Imported int
	Skipped  int
}

// ImportFile loads one saved recipe page into the recipes table. Re-importing
// the same page updates the existing row (keyed on the page's canonical URL).
func (im *Importer) ImportFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	parsed, err := ParseRecipeHTML(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	ingredientsJSON, err := EncodeIngredientLines(parsed.IngredientLines)
	if err != nil {
		return 0, err
	}

	var sourceURL *string
	if parsed.SourceURL != "" {
		sourceURL = util.StringPtr(parsed.SourceURL)
	}
	return im.db.UpsertRecipe(parsed.Name, sourceURL, ingredientsJSON)
}

// ImportDir imports every .html/.htm file in a directory, counting pages
// without usable recipe markup as skipped rather than failing the batch.
func (im *Importer) ImportDir(dir string) (ImportResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".html" && ext != ".htm" {
			continue
		}

		id, err := im.ImportFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			if errors.Is(err, ErrNoRecipe) {
				result.Skipped++
				fmt.Printf("import skipped file=%s reason=no_recipe_markup\n", entry.Name())
				continue
			}
			return result, err
		}
		result.Imported++
		fmt.Printf("import ok file=%s recipeId=%d\n", entry.Name(), id)
	}
	return result, nil
}
