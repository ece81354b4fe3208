package storage

import "larder/internal"

// Verify is the read-only audit pass run after consolidation. It reports and
// never repairs. The duplicate-tuple check restates the unique constraint on
// purpose: a non-zero count means the constraint was bypassed or dropped.
func (d *DB) Verify() (internal.VerifyReport, error) {
	var report internal.VerifyReport

	err := d.conn.QueryRow(`
SELECT COUNT(*) FROM (
  SELECT recipeId, ingredientId, position, COUNT(*) AS n
  FROM recipe_ingredients
  GROUP BY recipeId, ingredientId, position
  HAVING n > 1
)`).Scan(&report.DuplicateUsageTuples)
	if err != nil {
		return report, err
	}

	err = d.conn.QueryRow(`
SELECT COUNT(*)
FROM recipe_ingredients ri
LEFT JOIN ingredients i ON i.id = ri.ingredientId
WHERE ri.ingredientId IS NOT NULL AND i.id IS NULL
`).Scan(&report.OrphanedUsages)
	if err != nil {
		return report, err
	}

	err = d.conn.QueryRow(`
SELECT COUNT(*) FROM recipe_ingredients WHERE ingredientId IS NULL
`).Scan(&report.NullIngredientRefs)
	if err != nil {
		return report, err
	}

	// Same ingredient at multiple positions in one recipe is expected
	// ("salt" twice); counted for the report only.
	err = d.conn.QueryRow(`
SELECT COUNT(*) FROM (
  SELECT recipeId, ingredientId, COUNT(DISTINCT position) AS n
  FROM recipe_ingredients
  WHERE ingredientId IS NOT NULL
  GROUP BY recipeId, ingredientId
  HAVING n > 1
)`).Scan(&report.MultiPosition)
	if err != nil {
		return report, err
	}

	return report, nil
}
