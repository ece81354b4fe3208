package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"larder/internal"
	"larder/internal/config"
)

// Backend is one model endpoint in the prioritized fallback list. Backends
// are tried in order; each gets its own attempt budget.
type Backend struct {
	BaseURL string
	APIKey  string
	Model   string
}

type Client struct {
	http        *resty.Client
	backends    []Backend
	limiter     *RateLimiter
	maxAttempts int
}

func NewClient(cfg config.Config) *Client {
	backends := make([]Backend, 0, len(cfg.LLMModels))
	for _, model := range cfg.LLMModels {
		backends = append(backends, Backend{BaseURL: cfg.LLMBaseURL, APIKey: cfg.LLMAPIKey, Model: model})
	}

	client := resty.New().
		SetTimeout(time.Duration(cfg.LLMTimeoutMs) * time.Millisecond).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:        client,
		backends:    backends,
		limiter:     NewRateLimiter(cfg.LLMRateLimitRPS),
		maxAttempts: cfg.LLMMaxAttempts,
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract turns a recipe's ingredient lines into validated structured
// records, one per line. Transient transport failures, retryable statuses
// and malformed replies are retried with increasing backoff up to the
// per-backend attempt budget before falling through to the next backend.
func (c *Client) Extract(ctx context.Context, recipeName string, lines []string) ([]internal.ExtractedIngredient, error) {
	if len(c.backends) == 0 {
		return nil, errors.New("no extraction backends configured")
	}
	prompt := buildPrompt(recipeName, lines)

	var lastErr error
	for _, backend := range c.backends {
		extracted, err := c.extractWithBackend(ctx, backend, prompt, len(lines))
		if err == nil {
			return extracted, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("extraction failed on all backends: %w", lastErr)
}

func (c *Client) extractWithBackend(ctx context.Context, backend Backend, prompt string, lineCount int) ([]internal.ExtractedIngredient, error) {
	body := map[string]any{
		"model": backend.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.1,
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(500*(1<<(attempt-2))+rand.Intn(250)) * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		c.limiter.WaitTurn()

		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(backend.APIKey).
			SetBody(body).
			Post(backend.BaseURL + "/chat/completions")
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode() != http.StatusOK {
			lastErr = fmt.Errorf("model %s status %d: %s", backend.Model, resp.StatusCode(), truncate(resp.String(), 200))
			if !isRetryableStatus(resp.StatusCode()) {
				return nil, lastErr
			}
			continue
		}

		var chat chatResponse
		if err := json.Unmarshal(resp.Body(), &chat); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			continue
		}
		if len(chat.Choices) == 0 {
			lastErr = fmt.Errorf("%w: no choices", ErrMalformedResponse)
			continue
		}

		extracted, err := parseResponse(chat.Choices[0].Message.Content, lineCount)
		if err != nil {
			// Malformed content retries like a transient failure; the next
			// sample may validate.
			lastErr = err
			continue
		}
		return extracted, nil
	}

	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
