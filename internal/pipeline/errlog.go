package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"larder/internal"
)

// WriteErrorLog appends one JSON object per failed or skipped recipe to a
// per-run file and returns its path. Retained alongside the checkpoint so
// a failed subset can be retried with --recipe-id.
func WriteErrorLog(dir, pipeline string, errs []internal.RecipeError) (string, error) {
	if len(errs) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("%s_%s.jsonl", pipeline, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, e := range errs {
		if err := enc.Encode(e); err != nil {
			return "", err
		}
	}
	return path, nil
}
