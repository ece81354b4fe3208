package internal

import "strings"

// Category is the closed set an extracted ingredient must fall into.
type Category string

const (
	CategoryVegetables Category = "vegetables"
	CategoryFruits     Category = "fruits"
	CategoryProteins   Category = "proteins"
	CategoryDairy      Category = "dairy"
	CategoryGrains     Category = "grains"
	CategorySpices     Category = "spices"
	CategoryHerbs      Category = "herbs"
	CategoryCondiments Category = "condiments"
	CategoryOils       Category = "oils"
	CategorySweeteners Category = "sweeteners"
	CategoryNuts       Category = "nuts"
	CategoryOther      Category = "other"
)

var Categories = []Category{
	CategoryVegetables, CategoryFruits, CategoryProteins, CategoryDairy,
	CategoryGrains, CategorySpices, CategoryHerbs, CategoryCondiments,
	CategoryOils, CategorySweeteners, CategoryNuts, CategoryOther,
}

func ValidCategory(v string) bool {
	for _, c := range Categories {
		if string(c) == strings.TrimSpace(strings.ToLower(v)) {
			return true
		}
	}
	return false
}

// ExtractedIngredient is one validated element of the model's response,
// aligned by index with the input ingredient line it was extracted from.
type ExtractedIngredient struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Amount      *string  `json:"amount"`
	Unit        *string  `json:"unit"`
	Preparation *string  `json:"preparation"`
	Category    Category `json:"category"`
}

type RecipeRow struct {
	ID          int
	Name        string
	SourceURL   *string
	Ingredients string // JSON: array of strings or of {item, quantity} pairs
	CreatedAt   string
}

type IngredientRow struct {
	ID          int
	Name        string
	DisplayName string
	Category    Category
	IsCommon    bool
	UsageCount  int
	Aliases     []string
	Slug        string
	CreatedAt   string
	UpdatedAt   string
}

func (i IngredientRow) HasAlias(normalized string) bool {
	for _, a := range i.Aliases {
		if a == normalized {
			return true
		}
	}
	return false
}

type RecipeIngredientRow struct {
	ID           int
	RecipeID     int
	IngredientID int
	Amount       *string
	Unit         *string
	Preparation  *string
	Position     int
	CreatedAt    string
}

// RunStats is the running tally printed during a pipeline run and
// persisted with the checkpoint.
type RunStats struct {
	Processed          int `json:"processed"`
	Succeeded          int `json:"succeeded"`
	Failed             int `json:"failed"`
	Skipped            int `json:"skipped"`
	IngredientsCreated int `json:"ingredientsCreated"`
	IngredientsMatched int `json:"ingredientsMatched"`
	UsagesWritten      int `json:"usagesWritten"`
}

// Checkpoint is durable batch progress, kept outside the primary store.
type Checkpoint struct {
	Pipeline        string   `json:"pipeline"`
	LastProcessedID int      `json:"lastProcessedId"`
	Stats           RunStats `json:"stats"`
	Timestamp       string   `json:"timestamp"`
}

// RecipeError is one failed or skipped recipe in the error log.
type RecipeError struct {
	RecipeID   int    `json:"recipeId"`
	RecipeName string `json:"recipeName"`
	Reason     string `json:"reason"`
	Error      string `json:"error"`
}

// DuplicateFlag classifies why two ingredient names were paired in the
// duplicates report. Only exact-key and alias matches ever drive automatic
// resolution; the rest are review signals.
type DuplicateFlag string

const (
	FlagExactKey DuplicateFlag = "exact_key"
	FlagAlias    DuplicateFlag = "alias"
	FlagPlural   DuplicateFlag = "plural"
	FlagCaseOnly DuplicateFlag = "case_only"
	FlagFuzzy    DuplicateFlag = "fuzzy"
)

type DuplicatePair struct {
	AID        int
	AName      string
	AUsage     int
	BID        int
	BName      string
	BUsage     int
	Flag       DuplicateFlag
	Similarity float64
}

// VerifyReport is the output of the read-only audit pass. MultiPosition is
// informational; the other three counts must be zero for the pass to succeed.
type VerifyReport struct {
	DuplicateUsageTuples int
	OrphanedUsages       int
	NullIngredientRefs   int
	MultiPosition        int
}

func (r VerifyReport) OK() bool {
	return r.DuplicateUsageTuples == 0 && r.OrphanedUsages == 0 && r.NullIngredientRefs == 0
}

// ConsolidateResult summarizes a completed merge.
type ConsolidateResult struct {
	SourceID  int
	TargetID  int
	Repointed int
	Dropped   int
}
