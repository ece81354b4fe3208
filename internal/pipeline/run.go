package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"larder/internal"
	"larder/internal/extract"
	"larder/internal/match"
	"larder/internal/storage"
	"larder/internal/util"
)

// Extractor is the structured-extraction backend seen by the runner.
type Extractor interface {
	Extract(ctx context.Context, recipeName string, lines []string) ([]internal.ExtractedIngredient, error)
}

// Repo is the persistence surface the runner drives. *storage.DB implements
// it; the dry-run wrapper replaces the write side with no-ops.
type Repo interface {
	ListRecipesAfter(afterID, limit int) ([]internal.RecipeRow, error)
	GetRecipeByID(id int) (*internal.RecipeRow, error)
	ResolveIngredient(name string, aliases storage.AliasResolver) (*internal.IngredientRow, error)
	FindOrCreateIngredient(ex internal.ExtractedIngredient, aliases storage.AliasResolver, commonThreshold int) (int, bool, error)
	UpsertRecipeIngredient(recipeID, ingredientID, position int, ex internal.ExtractedIngredient) error
	InsertRun(traceID, pipeline string, stats internal.RunStats, timings map[string]float64) error
	SetMetadata(key, value string) error
}

type Options struct {
	Pipeline        string
	BatchSize       int
	DelayMs         int
	CheckpointEvery int
	Limit           int // 0 = all recipes
	RecipeID        int // >0 = process a single recipe
	Resume          bool
	DryRun          bool
}

type Runner struct {
	repo            Repo
	extractor       Extractor
	checkpoints     CheckpointStore
	matcher         *match.Matcher
	commonThreshold int
}

func NewRunner(repo Repo, extractor Extractor, checkpoints CheckpointStore, matcher *match.Matcher, commonThreshold int) *Runner {
	return &Runner{
		repo:            repo,
		extractor:       extractor,
		checkpoints:     checkpoints,
		matcher:         matcher,
		commonThreshold: commonThreshold,
	}
}

// Run drives the full extraction pipeline: recipes in stable id order, fixed
// batches, an inter-batch delay for rate-limit courtesy, a checkpoint every
// CheckpointEvery recipes, per-recipe error capture. Per-recipe failures
// never abort the run; only a fatal repo/setup error does. On clean
// zero-failure completion the checkpoint is cleared; otherwise it is
// retained alongside the error log.
func (r *Runner) Run(ctx context.Context, opts Options) (internal.RunStats, []internal.RecipeError, error) {
	start := time.Now()
	repo := r.repo
	if opts.DryRun {
		repo = newDryRunRepo(r.repo)
	}

	var stats internal.RunStats
	afterID := 0
	if opts.Resume {
		cp, err := r.checkpoints.Load()
		if err != nil {
			return stats, nil, fmt.Errorf("load checkpoint: %w", err)
		}
		if cp != nil {
			afterID = cp.LastProcessedID
			stats = cp.Stats
			fmt.Printf("resuming pipeline=%s lastProcessedId=%d\n", opts.Pipeline, afterID)
		}
	}

	var recipeErrors []internal.RecipeError
	checkpointID := afterID
	failedSeen := false
	sinceCheckpoint := 0
	remaining := opts.Limit

	processOne := func(recipe internal.RecipeRow) {
		recipeStats, recipeErr := r.processRecipe(ctx, repo, recipe)
		stats.Processed++
		stats.IngredientsCreated += recipeStats.IngredientsCreated
		stats.IngredientsMatched += recipeStats.IngredientsMatched
		stats.UsagesWritten += recipeStats.UsagesWritten

		switch {
		case recipeErr == nil:
			stats.Succeeded++
		case recipeErr.Reason == reasonInvalidInput || recipeErr.Reason == reasonNoLines:
			stats.Skipped++
			recipeErrors = append(recipeErrors, *recipeErr)
		default:
			stats.Failed++
			failedSeen = true
			recipeErrors = append(recipeErrors, *recipeErr)
		}

		// The checkpoint never advances past the first failed recipe, so a
		// rerun with --resume picks it back up.
		if !failedSeen {
			checkpointID = recipe.ID
		}

		fmt.Printf("recipe id=%d name=%q ok=%d skip=%d fail=%d\n",
			recipe.ID, recipe.Name, stats.Succeeded, stats.Skipped, stats.Failed)
	}

	if opts.RecipeID > 0 {
		recipe, err := repo.GetRecipeByID(opts.RecipeID)
		if err != nil {
			return stats, recipeErrors, err
		}
		if recipe == nil {
			return stats, recipeErrors, fmt.Errorf("recipe %d not found", opts.RecipeID)
		}
		processOne(*recipe)
	} else {
		for {
			if err := ctx.Err(); err != nil {
				_ = r.saveCheckpoint(opts.Pipeline, checkpointID, stats)
				return stats, recipeErrors, err
			}

			batchSize := opts.BatchSize
			if opts.Limit > 0 && remaining < batchSize {
				batchSize = remaining
			}
			if batchSize <= 0 {
				break
			}

			batch, err := repo.ListRecipesAfter(afterID, batchSize)
			if err != nil {
				return stats, recipeErrors, fmt.Errorf("list recipes: %w", err)
			}
			if len(batch) == 0 {
				break
			}

			for _, recipe := range batch {
				processOne(recipe)
				afterID = recipe.ID
				sinceCheckpoint++
				if opts.CheckpointEvery > 0 && sinceCheckpoint >= opts.CheckpointEvery {
					if err := r.saveCheckpoint(opts.Pipeline, checkpointID, stats); err != nil {
						return stats, recipeErrors, err
					}
					sinceCheckpoint = 0
				}
			}

			if opts.Limit > 0 {
				remaining -= len(batch)
				if remaining <= 0 {
					break
				}
			}

			if opts.DelayMs > 0 {
				select {
				case <-ctx.Done():
					_ = r.saveCheckpoint(opts.Pipeline, checkpointID, stats)
					return stats, recipeErrors, ctx.Err()
				case <-time.After(time.Duration(opts.DelayMs) * time.Millisecond):
				}
			}
		}
	}

	// Single-recipe retries leave the batch checkpoint alone: neither a
	// failure (which would rewind lastProcessedId to zero) nor a success
	// (which would clear a resume point covering other recipes) may touch it.
	// For batch runs, cleanliness is judged per run: a resumed run that
	// reprocesses its previously failed recipes successfully still clears the
	// checkpoint even though the carried-over stats remember the old failures.
	if opts.RecipeID == 0 {
		if !failedSeen {
			if err := r.checkpoints.Clear(); err != nil {
				return stats, recipeErrors, err
			}
		} else if err := r.saveCheckpoint(opts.Pipeline, checkpointID, stats); err != nil {
			return stats, recipeErrors, err
		}
	}

	traceID := uuid.NewString()
	timings := map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())}
	if err := repo.InsertRun(traceID, opts.Pipeline, stats, timings); err != nil {
		return stats, recipeErrors, err
	}
	if err := repo.SetMetadata("last_run:"+opts.Pipeline, traceID); err != nil {
		return stats, recipeErrors, err
	}

	return stats, recipeErrors, nil
}

const (
	reasonInvalidInput = "invalid_ingredients"
	reasonNoLines      = "no_ingredient_lines"
	reasonMalformed    = "malformed_response"
	reasonExtraction   = "extraction_failed"
	reasonRepository   = "repository_error"
)

type recipeStats struct {
	IngredientsCreated int
	IngredientsMatched int
	UsagesWritten      int
}

func (r *Runner) processRecipe(ctx context.Context, repo Repo, recipe internal.RecipeRow) (recipeStats, *internal.RecipeError) {
	var out recipeStats

	lines, err := extract.FlattenIngredients(recipe.Ingredients)
	if err != nil {
		// Malformed source data; no retry can fix it, so the recipe is
		// skipped rather than failed.
		return out, &internal.RecipeError{RecipeID: recipe.ID, RecipeName: recipe.Name, Reason: reasonInvalidInput, Error: err.Error()}
	}
	if len(lines) == 0 {
		return out, &internal.RecipeError{RecipeID: recipe.ID, RecipeName: recipe.Name, Reason: reasonNoLines, Error: "recipe has no ingredient lines"}
	}

	extracted, err := r.extractor.Extract(ctx, recipe.Name, lines)
	if err != nil {
		reason := reasonExtraction
		if errors.Is(err, extract.ErrMalformedResponse) {
			reason = reasonMalformed
		}
		return out, &internal.RecipeError{RecipeID: recipe.ID, RecipeName: recipe.Name, Reason: reason, Error: err.Error()}
	}

	// Line order is the position field; no recipe-level transaction wraps
	// these writes, so a mid-recipe failure leaves earlier lines in place
	// and the idempotent upsert heals them on the next run.
	for i, ex := range extracted {
		id, created, err := repo.FindOrCreateIngredient(ex, r.matcher, r.commonThreshold)
		if err != nil {
			if errors.Is(err, storage.ErrEmptyName) {
				continue
			}
			return out, &internal.RecipeError{RecipeID: recipe.ID, RecipeName: recipe.Name, Reason: reasonRepository, Error: err.Error()}
		}
		if created {
			out.IngredientsCreated++
		} else {
			out.IngredientsMatched++
		}

		if err := repo.UpsertRecipeIngredient(recipe.ID, id, i, ex); err != nil {
			return out, &internal.RecipeError{RecipeID: recipe.ID, RecipeName: recipe.Name, Reason: reasonRepository, Error: err.Error()}
		}
		out.UsagesWritten++
	}

	return out, nil
}

func (r *Runner) saveCheckpoint(pipeline string, lastProcessedID int, stats internal.RunStats) error {
	return r.checkpoints.Save(internal.Checkpoint{
		Pipeline:        pipeline,
		LastProcessedID: lastProcessedID,
		Stats:           stats,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
	})
}

// dryRunRepo previews a run: reads pass through, writes are no-ops returning
// synthetic negative ids. Lookups go through the live table's read path, so
// a name that a real run would match to an existing ingredient is reported
// as matched, not created.
type dryRunRepo struct {
	inner  Repo
	nextID int
	byKey  map[string]int
}

func newDryRunRepo(inner Repo) *dryRunRepo {
	return &dryRunRepo{inner: inner, nextID: -1, byKey: map[string]int{}}
}

func (d *dryRunRepo) ListRecipesAfter(afterID, limit int) ([]internal.RecipeRow, error) {
	return d.inner.ListRecipesAfter(afterID, limit)
}

func (d *dryRunRepo) GetRecipeByID(id int) (*internal.RecipeRow, error) {
	return d.inner.GetRecipeByID(id)
}

func (d *dryRunRepo) ResolveIngredient(name string, aliases storage.AliasResolver) (*internal.IngredientRow, error) {
	return d.inner.ResolveIngredient(name, aliases)
}

func (d *dryRunRepo) FindOrCreateIngredient(ex internal.ExtractedIngredient, aliases storage.AliasResolver, _ int) (int, bool, error) {
	name := util.NormalizeName(ex.Name)
	key := util.ComparisonKey(name)
	if name == "" || key == "" {
		return 0, false, storage.ErrEmptyName
	}

	row, err := d.inner.ResolveIngredient(name, aliases)
	if err != nil {
		return 0, false, err
	}
	if row != nil {
		return row.ID, false, nil
	}

	// Names only this preview has seen resolve within the session, matching
	// what the live table would hold after the earlier creates.
	if id, ok := d.byKey[key]; ok {
		return id, false, nil
	}
	if aliases != nil {
		if canonical, ok := aliases.Canonical(key); ok {
			if id, ok := d.byKey[util.ComparisonKey(canonical)]; ok {
				return id, false, nil
			}
		}
	}

	id := d.nextID
	d.nextID--
	d.byKey[key] = id
	fmt.Printf("dry-run: would create ingredient %q category=%s\n", name, ex.Category)
	return id, true, nil
}

func (d *dryRunRepo) UpsertRecipeIngredient(recipeID, ingredientID, position int, ex internal.ExtractedIngredient) error {
	fmt.Printf("dry-run: would link recipe=%d ingredient=%d position=%d\n", recipeID, ingredientID, position)
	return nil
}

func (d *dryRunRepo) InsertRun(string, string, internal.RunStats, map[string]float64) error {
	return nil
}

func (d *dryRunRepo) SetMetadata(string, string) error {
	return nil
}
