// Package ocr implements the vision-LLM OCR client: base64-encode
// a page image, POST it with a prompt to an Ollama-compatible /api/chat
// endpoint, and retry transient failures with exponential backoff. The
// request/retry structure is ported from pdf-extractor's OpenRouter client
// (pdf-extractor's internal/llm/client.go and retry.go); the wire shape
// matches Ollama's /api/chat contract, resolved against
// original_source/app/pipeline/ocr.py.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/vppe/internal/domain"
	"github.com/spherical/vppe/internal/observability"
)

// Client posts images to an Ollama-compatible vision chat endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	maxRetries int
	log        *observability.Logger
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Logger     *observability.Logger
}

const (
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// New creates an OCR Client. It implements domain.OCRClient.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.DefaultLogger()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		log:        logger.WithComponent("ocr"),
	}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponseMessage struct {
	Content string `json:"content"`
}

type chatResponse struct {
	Message chatResponseMessage `json:"message"`
	Error   string              `json:"error,omitempty"`
}

// OCR sends one page image plus prompt to the vision model and returns
// the trimmed extracted text. It implements domain.OCRClient.
func (c *Client) OCR(ctx context.Context, imageBytes []byte, prompt string) (string, error) {
	b64 := base64.StdEncoding.EncodeToString(imageBytes)
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt, Images: []string{b64}},
		},
		Stream: false,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", domain.NewPageOCRError("failed to marshal OCR request", err)
	}

	url := c.baseURL + "/api/chat"

	text, err := c.retryWithBackoff(ctx, func(attempt int) (string, bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return "", false, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Network errors are retryable.
			return "", true, err
		}
		defer resp.Body.Close()

		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return "", true, readErr
		}

		if resp.StatusCode != http.StatusOK {
			retryable := shouldRetryStatus(resp.StatusCode)
			return "", retryable, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(respBody))
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			// Malformed JSON is non-retryable.
			return "", false, fmt.Errorf("malformed JSON response: %w", err)
		}
		if parsed.Error != "" {
			return "", true, fmt.Errorf("ollama returned error: %s", parsed.Error)
		}

		text := strings.TrimSpace(parsed.Message.Content)
		if text == "" {
			// Empty text is treated as a transient failure: the upstream
			// model occasionally returns blank on overload.
			return "", true, fmt.Errorf("empty OCR response")
		}
		return text, false, nil
	})
	if err != nil {
		return "", domain.NewPageOCRError("OCR failed", err)
	}
	return text, nil
}

// retryWithBackoff calls attemptFn up to c.maxRetries times (at least
// once). attemptFn
// returns (text, retryable, err); a nil err ends the loop successfully.
// Backoff for attempt k (1-indexed) is base*2^(k-1) capped at
// defaultMaxBackoff, matching pdf-extractor's internal/llm/retry.go
// calculateBackoff exactly.
func (c *Client) retryWithBackoff(ctx context.Context, attemptFn func(attempt int) (string, bool, error)) (string, error) {
	var lastErr error

	maxAttempts := c.maxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		text, retryable, err := attemptFn(attempt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !retryable {
			return "", err
		}
		if attempt == maxAttempts {
			break
		}

		wait := backoffFor(attempt, defaultInitialBackoff, defaultMaxBackoff)
		c.log.Warn().Int("attempt", attempt).Dur("wait", wait).Err(err).Msg("OCR attempt failed, retrying")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}

	return "", fmt.Errorf("OCR failed after %d attempts: %w", maxAttempts, lastErr)
}

// backoffFor computes base*2^(k-1) capped at max, for 1-indexed attempt k.
func backoffFor(attempt int, base, max time.Duration) time.Duration {
	backoff := base
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > max {
			return max
		}
	}
	if backoff > max {
		return max
	}
	return backoff
}

// shouldRetryStatus treats 5xx and 408/429 as retryable; any other 4xx
// is non-retryable.
func shouldRetryStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	if status >= 500 {
		return true
	}
	return false
}
