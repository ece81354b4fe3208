package storage

import (
	"encoding/json"
	"fmt"

	"larder/internal"
)

// Consolidate merges the source ingredient into the target inside a single
// transaction: usage rows that would collide with an existing
// (recipeId, targetId, position) row are dropped, the rest are repointed, the
// target absorbs the source's name, aliases and usage count, and the source
// row is deleted. Any failure rolls the whole merge back.
func (d *DB) Consolidate(sourceID, targetID int) (internal.ConsolidateResult, error) {
	if sourceID == targetID {
		return internal.ConsolidateResult{}, fmt.Errorf("source and target are the same ingredient: %d", sourceID)
	}

	source, err := d.GetIngredientByID(sourceID)
	if err != nil {
		return internal.ConsolidateResult{}, err
	}
	if source == nil {
		return internal.ConsolidateResult{}, fmt.Errorf("source ingredient %d not found", sourceID)
	}
	target, err := d.GetIngredientByID(targetID)
	if err != nil {
		return internal.ConsolidateResult{}, err
	}
	if target == nil {
		return internal.ConsolidateResult{}, fmt.Errorf("target ingredient %d not found", targetID)
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return internal.ConsolidateResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Drop source rows whose position already holds the target for the same
	// recipe; repointing them would violate the unique constraint.
	dropped, err := tx.Exec(`
DELETE FROM recipe_ingredients
WHERE ingredientId = ?
  AND EXISTS (
    SELECT 1 FROM recipe_ingredients t
    WHERE t.recipeId = recipe_ingredients.recipeId
      AND t.position = recipe_ingredients.position
      AND t.ingredientId = ?
  )
`, sourceID, targetID)
	if err != nil {
		return internal.ConsolidateResult{}, err
	}
	droppedCount, _ := dropped.RowsAffected()

	repointed, err := tx.Exec(`
UPDATE recipe_ingredients SET ingredientId = ? WHERE ingredientId = ?
`, targetID, sourceID)
	if err != nil {
		return internal.ConsolidateResult{}, err
	}
	repointedCount, _ := repointed.RowsAffected()

	aliases := target.Aliases
	appendAlias := func(a string) {
		if a == "" || a == target.Name {
			return
		}
		for _, existing := range aliases {
			if existing == a {
				return
			}
		}
		aliases = append(aliases, a)
	}
	appendAlias(source.Name)
	for _, a := range source.Aliases {
		appendAlias(a)
	}
	aliasJSON, _ := json.Marshal(aliases)

	if _, err := tx.Exec(`
UPDATE ingredients
SET aliases = ?, usageCount = usageCount + ?, updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, string(aliasJSON), source.UsageCount, targetID); err != nil {
		return internal.ConsolidateResult{}, err
	}

	if _, err := tx.Exec(`DELETE FROM ingredients WHERE id = ?`, sourceID); err != nil {
		return internal.ConsolidateResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return internal.ConsolidateResult{}, err
	}

	return internal.ConsolidateResult{
		SourceID:  sourceID,
		TargetID:  targetID,
		Repointed: int(repointedCount),
		Dropped:   int(droppedCount),
	}, nil
}
