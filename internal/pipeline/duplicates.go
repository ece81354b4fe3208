package pipeline

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"larder/internal"
	"larder/internal/match"
)

var flagOrder = map[internal.DuplicateFlag]int{
	internal.FlagExactKey: 0,
	internal.FlagAlias:    1,
	internal.FlagPlural:   2,
	internal.FlagCaseOnly: 3,
	internal.FlagFuzzy:    4,
}

// FindDuplicates pairs every ingredient against every other and keeps the
// pairs the matcher considers review-worthy, strongest signal first. Output
// is for human review; nothing here merges anything.
func FindDuplicates(rows []internal.IngredientRow, m *match.Matcher, fuzzyThreshold float64) []internal.DuplicatePair {
	var out []internal.DuplicatePair
	for i := 0; i < len(rows); i++ {
		for j := i + 1; j < len(rows); j++ {
			flag, sim, ok := m.Classify(rows[i], rows[j], fuzzyThreshold)
			if !ok {
				continue
			}
			out = append(out, internal.DuplicatePair{
				AID: rows[i].ID, AName: rows[i].Name, AUsage: rows[i].UsageCount,
				BID: rows[j].ID, BName: rows[j].Name, BUsage: rows[j].UsageCount,
				Flag: flag, Similarity: sim,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if flagOrder[out[i].Flag] != flagOrder[out[j].Flag] {
			return flagOrder[out[i].Flag] < flagOrder[out[j].Flag]
		}
		return out[i].Similarity > out[j].Similarity
	})
	return out
}

// ExportDuplicatesXLSX writes the review workbook. Usage counts are included
// so the reviewer can pick the consolidation target (the higher-usage row).
func ExportDuplicatesXLSX(pairs []internal.DuplicatePair, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"flag", "similarity",
		"a_id", "a_name", "a_usage_count",
		"b_id", "b_name", "b_usage_count",
		"suggested_target_id",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, pair := range pairs {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		target := pair.AID
		if pair.BUsage > pair.AUsage {
			target = pair.BID
		}

		set(1, string(pair.Flag))
		set(2, pair.Similarity)
		set(3, pair.AID)
		set(4, pair.AName)
		set(5, pair.AUsage)
		set(6, pair.BID)
		set(7, pair.BName)
		set(8, pair.BUsage)
		set(9, target)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
