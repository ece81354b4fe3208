package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"larder/internal"
	"larder/internal/util"
)

var ErrEmptyName = errors.New("ingredient name is empty after normalization")

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS recipes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  sourceUrl TEXT UNIQUE,
  ingredients TEXT NOT NULL DEFAULT '[]',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ingredients (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  nameKey TEXT NOT NULL UNIQUE,
  displayName TEXT NOT NULL,
  category TEXT NOT NULL,
  isCommon INTEGER NOT NULL DEFAULT 0,
  usageCount INTEGER NOT NULL DEFAULT 0,
  aliases TEXT NOT NULL DEFAULT '[]',
  slug TEXT NOT NULL UNIQUE,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_ingredients_category ON ingredients(category);

CREATE TABLE IF NOT EXISTS recipe_ingredients (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  recipeId INTEGER NOT NULL,
  ingredientId INTEGER,
  amount TEXT,
  unit TEXT,
  preparation TEXT,
  position INTEGER NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(recipeId, ingredientId, position),
  FOREIGN KEY(recipeId) REFERENCES recipes(id)
);
CREATE INDEX IF NOT EXISTS idx_recipe_ingredients_ingredient ON recipe_ingredients(ingredientId);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  pipeline TEXT NOT NULL,
  statsJson TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// AliasResolver maps a comparison key to the canonical ingredient name it is
// a known alias of. The fixed alias table in the match package implements it.
type AliasResolver interface {
	Canonical(key string) (string, bool)
}

// FindOrCreateIngredient resolves an extracted ingredient to an existing
// canonical row or inserts a new one. Resolution matches on exact name,
// comparison-key equality, stored aliases, and the fixed alias table, in that
// order; matched variant spellings are recorded as stored aliases. Returns
// the ingredient id and whether a row was created. The unique constraints on
// name and nameKey backstop the lookup-then-insert race: a conflicting insert
// falls back to a re-lookup.
func (d *DB) FindOrCreateIngredient(ex internal.ExtractedIngredient, aliases AliasResolver, commonThreshold int) (int, bool, error) {
	name := util.NormalizeName(ex.Name)
	key := util.ComparisonKey(name)
	if name == "" || key == "" {
		return 0, false, ErrEmptyName
	}

	row, err := d.ResolveIngredient(name, aliases)
	if err != nil {
		return 0, false, err
	}
	if row != nil {
		if err := d.addAlias(row.ID, name); err != nil {
			return 0, false, err
		}
		return row.ID, false, d.incrementUsage(row.ID, commonThreshold)
	}

	display := ex.DisplayName
	if display == "" {
		display = name
	}
	baseSlug := util.Slugify(display)
	if baseSlug == "" {
		baseSlug = util.Slugify(name)
	}

	// A conflict the re-lookup can explain means a concurrent insert of the
	// same ingredient. One it cannot explain is a slug collision between
	// distinct ingredients; uniquify the slug and retry.
	slug := baseSlug
	for attempt := 1; ; attempt++ {
		result, err := d.conn.Exec(`
INSERT INTO ingredients (name, nameKey, displayName, category, usageCount, aliases, slug)
VALUES (?, ?, ?, ?, 1, '[]', ?)
ON CONFLICT DO NOTHING
`, name, key, display, string(ex.Category), slug)
		if err != nil {
			return 0, false, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, false, err
		}
		if affected > 0 {
			id64, err := result.LastInsertId()
			if err != nil {
				return 0, false, err
			}
			return int(id64), true, nil
		}

		existing, err := d.ResolveIngredient(name, nil)
		if err != nil {
			return 0, false, err
		}
		if existing != nil {
			return existing.ID, false, d.incrementUsage(existing.ID, commonThreshold)
		}
		if attempt >= 10 {
			return 0, false, fmt.Errorf("no free slug for ingredient %q after %d attempts", name, attempt)
		}
		slug = fmt.Sprintf("%s-%d", baseSlug, attempt+1)
	}
}

// ResolveIngredient is the read side of find-or-create: it maps a name to its
// existing canonical row without writing anything. Returns nil when no row
// matches. The dry-run pipeline uses it so previews resolve against the live
// table the way a real run would.
func (d *DB) ResolveIngredient(rawName string, aliases AliasResolver) (*internal.IngredientRow, error) {
	name := util.NormalizeName(rawName)
	key := util.ComparisonKey(name)
	if name == "" {
		return nil, nil
	}

	row, err := d.scanIngredient(d.conn.QueryRow(ingredientSelect+`
WHERE name = ? OR nameKey = ? ORDER BY id LIMIT 1`, name, key))
	if err != nil || row != nil {
		return row, err
	}

	row, err = d.scanIngredient(d.conn.QueryRow(ingredientSelect+`
WHERE EXISTS (SELECT 1 FROM json_each(ingredients.aliases) WHERE json_each.value = ?)
LIMIT 1`, name))
	if err != nil || row != nil {
		return row, err
	}

	if aliases != nil {
		if canonical, ok := aliases.Canonical(key); ok {
			return d.scanIngredient(d.conn.QueryRow(ingredientSelect+`
WHERE name = ? OR nameKey = ? ORDER BY id LIMIT 1`, canonical, util.ComparisonKey(canonical)))
		}
	}
	return nil, nil
}

func (d *DB) incrementUsage(id, commonThreshold int) error {
	_, err := d.conn.Exec(`
UPDATE ingredients
SET usageCount = usageCount + 1,
    isCommon = CASE WHEN usageCount + 1 >= ? THEN 1 ELSE isCommon END,
    updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, commonThreshold, id)
	return err
}

func (d *DB) addAlias(id int, alias string) error {
	row, err := d.GetIngredientByID(id)
	if err != nil {
		return err
	}
	if row == nil || row.HasAlias(alias) || row.Name == alias {
		return nil
	}
	merged := append(row.Aliases, alias)
	blob, _ := json.Marshal(merged)
	_, err = d.conn.Exec(`UPDATE ingredients SET aliases = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, string(blob), id)
	return err
}

func (d *DB) GetIngredientByName(name string) (*internal.IngredientRow, error) {
	return d.scanIngredient(d.conn.QueryRow(ingredientSelect+` WHERE name = ?`, name))
}

func (d *DB) GetIngredientByID(id int) (*internal.IngredientRow, error) {
	return d.scanIngredient(d.conn.QueryRow(ingredientSelect+` WHERE id = ?`, id))
}

const ingredientSelect = `
SELECT id, name, displayName, category, isCommon, usageCount, aliases, slug, createdAt, updatedAt
FROM ingredients`

func (d *DB) scanIngredient(row *sql.Row) (*internal.IngredientRow, error) {
	var out internal.IngredientRow
	var aliasJSON string
	var isCommon int
	err := row.Scan(&out.ID, &out.Name, &out.DisplayName, &out.Category, &isCommon, &out.UsageCount, &aliasJSON, &out.Slug, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.IsCommon = isCommon != 0
	_ = json.Unmarshal([]byte(aliasJSON), &out.Aliases)
	return &out, nil
}

func (d *DB) ListIngredients() ([]internal.IngredientRow, error) {
	rows, err := d.conn.Query(ingredientSelect + ` ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.IngredientRow
	for rows.Next() {
		var row internal.IngredientRow
		var aliasJSON string
		var isCommon int
		if err := rows.Scan(&row.ID, &row.Name, &row.DisplayName, &row.Category, &isCommon, &row.UsageCount, &aliasJSON, &row.Slug, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		row.IsCommon = isCommon != 0
		_ = json.Unmarshal([]byte(aliasJSON), &row.Aliases)
		out = append(out, row)
	}
	return out, rows.Err()
}

// UpsertRecipeIngredient writes one per-recipe usage row. Re-running
// extraction over the same recipe refreshes amount/unit/preparation instead
// of duplicating rows.
func (d *DB) UpsertRecipeIngredient(recipeID, ingredientID, position int, ex internal.ExtractedIngredient) error {
	_, err := d.conn.Exec(`
INSERT INTO recipe_ingredients (recipeId, ingredientId, amount, unit, preparation, position)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(recipeId, ingredientId, position) DO UPDATE SET
  amount=excluded.amount,
  unit=excluded.unit,
  preparation=excluded.preparation
`, recipeID, ingredientID, ex.Amount, ex.Unit, ex.Preparation, position)
	return err
}

func (d *DB) ListRecipeIngredients(recipeID int) ([]internal.RecipeIngredientRow, error) {
	rows, err := d.conn.Query(`
SELECT id, recipeId, ingredientId, amount, unit, preparation, position, createdAt
FROM recipe_ingredients WHERE recipeId = ? ORDER BY position ASC
`, recipeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RecipeIngredientRow
	for rows.Next() {
		var row internal.RecipeIngredientRow
		var ingredientID sql.NullInt64
		if err := rows.Scan(&row.ID, &row.RecipeID, &ingredientID, &row.Amount, &row.Unit, &row.Preparation, &row.Position, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.IngredientID = int(ingredientID.Int64)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpsertRecipe(name string, sourceURL *string, ingredientsJSON string) (int, error) {
	if sourceURL != nil {
		_, err := d.conn.Exec(`
INSERT INTO recipes (name, sourceUrl, ingredients) VALUES (?, ?, ?)
ON CONFLICT(sourceUrl) DO UPDATE SET name=excluded.name, ingredients=excluded.ingredients
`, name, sourceURL, ingredientsJSON)
		if err != nil {
			return 0, err
		}
		var id int
		if err := d.conn.QueryRow(`SELECT id FROM recipes WHERE sourceUrl = ?`, sourceURL).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	result, err := d.conn.Exec(`INSERT INTO recipes (name, ingredients) VALUES (?, ?)`, name, ingredientsJSON)
	if err != nil {
		return 0, err
	}
	id64, err := result.LastInsertId()
	return int(id64), err
}

func (d *DB) GetRecipeByID(id int) (*internal.RecipeRow, error) {
	var row internal.RecipeRow
	err := d.conn.QueryRow(`
SELECT id, name, sourceUrl, ingredients, createdAt FROM recipes WHERE id = ?
`, id).Scan(&row.ID, &row.Name, &row.SourceURL, &row.Ingredients, &row.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListRecipesAfter pages recipes in stable id order so that resuming from a
// checkpoint is "everything with id greater than lastProcessedId".
func (d *DB) ListRecipesAfter(afterID, limit int) ([]internal.RecipeRow, error) {
	rows, err := d.conn.Query(`
SELECT id, name, sourceUrl, ingredients, createdAt
FROM recipes WHERE id > ? ORDER BY id ASC LIMIT ?
`, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RecipeRow
	for rows.Next() {
		var row internal.RecipeRow
		if err := rows.Scan(&row.ID, &row.Name, &row.SourceURL, &row.Ingredients, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) CountRecipes() (int, error) {
	var n int
	err := d.conn.QueryRow(`SELECT COUNT(*) FROM recipes`).Scan(&n)
	return n, err
}

func (d *DB) InsertRun(traceID, pipeline string, stats internal.RunStats, timings map[string]float64) error {
	statsJSON, _ := json.Marshal(stats)
	timingsJSON, _ := json.Marshal(timings)
	_, err := d.conn.Exec(`
INSERT INTO runs (traceId, pipeline, statsJson, timingsJson) VALUES (?, ?, ?, ?)
`, traceID, pipeline, string(statsJSON), string(timingsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
