package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath        string
	CheckpointDir string
	ErrorLogDir   string
	OutputDir     string

	LLMBaseURL      string
	LLMAPIKey       string
	LLMModels       []string
	LLMTimeoutMs    int
	LLMRateLimitRPS int
	LLMMaxAttempts  int

	BatchSize       int
	BatchDelayMs    int
	CheckpointEvery int

	CommonUsageThreshold int
	FuzzyReportThreshold float64
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:        getEnv("DB_PATH", filepath.Join(cwd, "data", "larder.db")),
		CheckpointDir: getEnv("CHECKPOINT_DIR", filepath.Join(cwd, "data", "checkpoints")),
		ErrorLogDir:   getEnv("ERROR_LOG_DIR", filepath.Join(cwd, "data", "errors")),
		OutputDir:     getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LLMBaseURL:      getEnv("LLM_API_BASE_URL", "https://openrouter.ai/api/v1"),
		LLMAPIKey:       getEnv("LLM_API_KEY", ""),
		LLMModels:       getEnvList("LLM_MODELS", "anthropic/claude-3.5-haiku"),
		LLMTimeoutMs:    getEnvInt("LLM_TIMEOUT_MS", 60000),
		LLMRateLimitRPS: getEnvInt("LLM_RATE_LIMIT_RPS", 2),
		LLMMaxAttempts:  getEnvInt("LLM_MAX_ATTEMPTS", 3),

		BatchSize:       getEnvInt("BATCH_SIZE", 10),
		BatchDelayMs:    getEnvInt("BATCH_DELAY_MS", 1000),
		CheckpointEvery: getEnvInt("CHECKPOINT_EVERY", 50),

		CommonUsageThreshold: getEnvInt("COMMON_USAGE_THRESHOLD", 50),
		FuzzyReportThreshold: getEnvFloat("FUZZY_REPORT_THRESHOLD", 0.85),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
