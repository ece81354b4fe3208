package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"larder/internal"
	"larder/internal/config"
	"larder/internal/extract"
	"larder/internal/ingest"
	"larder/internal/match"
	"larder/internal/pipeline"
	"larder/internal/storage"
)

const extractionPipeline = "ingredient-extraction"

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "extract:run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 0, "max recipes to process (0 = all)")
		batch := fs.Int("batch", cfg.BatchSize, "recipes per batch")
		delayMs := fs.Int("delay-ms", cfg.BatchDelayMs, "delay between batches")
		checkpointEvery := fs.Int("checkpoint-every", cfg.CheckpointEvery, "recipes per checkpoint write")
		resume := fs.Bool("resume", false, "resume from the last checkpoint")
		execute := fs.Bool("execute", false, "write results (default is dry-run)")
		recipeID := fs.Int("recipe-id", 0, "process a single recipe by id")
		_ = fs.Parse(os.Args[2:])

		// Dry-run still performs real extractions, it only skips the writes.
		must(cfg.Require("LLM_API_KEY", cfg.LLMAPIKey))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		checkpoints := pipeline.NewFileCheckpointStore(cfg.CheckpointDir, extractionPipeline)
		runner := pipeline.NewRunner(db, extract.NewClient(cfg), checkpoints, match.NewMatcher(), cfg.CommonUsageThreshold)

		stats, recipeErrors, err := runner.Run(ctx, pipeline.Options{
			Pipeline:        extractionPipeline,
			BatchSize:       *batch,
			DelayMs:         *delayMs,
			CheckpointEvery: *checkpointEvery,
			Limit:           *limit,
			RecipeID:        *recipeID,
			Resume:          *resume,
			DryRun:          !*execute,
		})

		logPath, logErr := pipeline.WriteErrorLog(cfg.ErrorLogDir, extractionPipeline, recipeErrors)
		must(logErr)

		mode := "dry-run"
		if *execute {
			mode = "execute"
		}
		fmt.Printf("extract:run done mode=%s processed=%d ok=%d skip=%d fail=%d created=%d matched=%d usages=%d\n",
			mode, stats.Processed, stats.Succeeded, stats.Skipped, stats.Failed,
			stats.IngredientsCreated, stats.IngredientsMatched, stats.UsagesWritten)
		for _, re := range recipeErrors {
			fmt.Printf("  recipe id=%d name=%q reason=%s error=%s\n", re.RecipeID, re.RecipeName, re.Reason, re.Error)
		}
		if logPath != "" {
			fmt.Printf("error log: %s\n", logPath)
		}
		must(err)
		if stats.Failed > 0 {
			os.Exit(1)
		}
	case "ingredients:duplicates":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		threshold := fs.Float64("threshold", cfg.FuzzyReportThreshold, "fuzzy similarity report threshold")
		out := fs.String("out", "", "optional xlsx review workbook path")
		_ = fs.Parse(os.Args[2:])

		rows, err := db.ListIngredients()
		must(err)
		pairs := pipeline.FindDuplicates(rows, match.NewMatcher(), *threshold)

		for _, pair := range pairs {
			fmt.Printf("%-9s sim=%.2f  [%d] %-28s (used %d)  ~  [%d] %-28s (used %d)\n",
				pair.Flag, pair.Similarity, pair.AID, pair.AName, pair.AUsage, pair.BID, pair.BName, pair.BUsage)
		}
		fmt.Printf("duplicates report: %d ingredients, %d candidate pairs\n", len(rows), len(pairs))

		if *out != "" {
			outPath := *out
			if !filepath.IsAbs(outPath) {
				outPath = filepath.Join(cfg.OutputDir, outPath)
			}
			must(pipeline.ExportDuplicatesXLSX(pairs, outPath))
			fmt.Printf("exported %d pairs to %s\n", len(pairs), outPath)
		}
	case "ingredients:consolidate":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		source := fs.Int("source", 0, "ingredient id to merge away")
		target := fs.Int("target", 0, "ingredient id to keep")
		execute := fs.Bool("execute", false, "perform the merge (default prints the plan)")
		_ = fs.Parse(os.Args[2:])
		if *source == 0 || *target == 0 {
			must(fmt.Errorf("--source and --target are required"))
		}

		sourceRow, err := db.GetIngredientByID(*source)
		must(err)
		targetRow, err := db.GetIngredientByID(*target)
		must(err)
		if sourceRow == nil || targetRow == nil {
			must(fmt.Errorf("source or target ingredient not found"))
		}
		fmt.Printf("consolidate %q (id=%d, used %d) -> %q (id=%d, used %d)\n",
			sourceRow.Name, sourceRow.ID, sourceRow.UsageCount,
			targetRow.Name, targetRow.ID, targetRow.UsageCount)

		if !*execute {
			fmt.Println("dry-run: pass --execute to perform the merge")
			return
		}

		result, err := db.Consolidate(*source, *target)
		must(err)
		fmt.Printf("consolidated repointed=%d dropped=%d\n", result.Repointed, result.Dropped)

		report, err := db.Verify()
		must(err)
		printVerifyReport(report)
		if !report.OK() {
			os.Exit(1)
		}
	case "ingredients:verify":
		report, err := db.Verify()
		must(err)
		printVerifyReport(report)
		lastRun, err := db.GetMetadata("last_run:" + extractionPipeline)
		must(err)
		if lastRun != nil {
			fmt.Printf("last completed extraction run: %s\n", *lastRun)
		}
		if !report.OK() {
			os.Exit(1)
		}
	case "recipes:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "single recipe html file")
		dir := fs.String("dir", "", "directory of recipe html files")
		_ = fs.Parse(os.Args[2:])
		if *file == "" && *dir == "" {
			must(fmt.Errorf("--file or --dir is required"))
		}

		importer := ingest.NewImporter(db)
		if *file != "" {
			id, err := importer.ImportFile(*file)
			must(err)
			fmt.Printf("imported recipe id=%d from %s\n", id, *file)
			return
		}
		result, err := importer.ImportDir(*dir)
		must(err)
		fmt.Printf("recipes:import done imported=%d skipped=%d\n", result.Imported, result.Skipped)
	default:
		usage()
		os.Exit(1)
	}
}

func printVerifyReport(report internal.VerifyReport) {
	status := "OK"
	if !report.OK() {
		status = "FAIL"
	}
	fmt.Printf("verify %s duplicateTuples=%d orphans=%d nullRefs=%d multiPosition=%d\n",
		status, report.DuplicateUsageTuples, report.OrphanedUsages, report.NullIngredientRefs, report.MultiPosition)
}

func usage() {
	fmt.Println("usage: larder <command>")
	fmt.Println("commands:")
	fmt.Println("  extract:run [--limit=0] [--batch=10] [--delay-ms=1000] [--checkpoint-every=50] [--resume] [--execute] [--recipe-id=0]")
	fmt.Println("  ingredients:duplicates [--threshold=0.85] [--out=review.xlsx]")
	fmt.Println("  ingredients:consolidate --source=ID --target=ID [--execute]")
	fmt.Println("  ingredients:verify")
	fmt.Println("  recipes:import --file=page.html | --dir=./pages")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
