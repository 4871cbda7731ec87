/**
 * Gemini Client - JSON-only model gateway
 *
 * Sends extraction and standardization prompts to the Gemini
 * generateContent endpoint and returns the JSON the model produced.
 * Transport errors and unusable responses are retried with linearly
 * increasing delay; exhausting the attempts yields MODEL_UNAVAILABLE,
 * which callers treat as "nothing extracted".
 */

package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tidwall/gjson"

	apperrors "github.com/adverant/nexus/supplylist-worker/internal/errors"
	"github.com/adverant/nexus/supplylist-worker/internal/logging"
)

// PayloadSeparator delimits the instructions from the analysed text
const PayloadSeparator = "\n\n--- TEXT TO ANALYZE ---\n\n"

// GeminiConfig configures the gateway
type GeminiConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	BaseDelay    time.Duration
	Timeout      time.Duration
}

// GeminiClient invokes Gemini models over HTTPS
type GeminiClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	maxRetries   int
	baseDelay    time.Duration
	httpClient   *http.Client
	logger       *logging.Logger
}

// InvokeRequest is one model call
type InvokeRequest struct {
	Instructions string
	Payload      string
	// Model, MaxRetries and BaseDelay fall back to the client defaults when zero.
	Model      string
	MaxRetries int
	BaseDelay  time.Duration
	// Validate rejects JSON that lacks the expected shape; a rejection is retried.
	Validate func(json.RawMessage) error
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"responseMimeType"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

// NewGeminiClient creates a new gateway client
func NewGeminiClient(cfg *GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}

	return &GeminiClient{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		defaultModel: cfg.DefaultModel,
		maxRetries:   maxRetries,
		baseDelay:    cfg.BaseDelay,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.NewLogger("ModelGateway"),
	}, nil
}

// Invoke sends instructions plus payload and returns the model's JSON answer.
// Only MODEL_UNAVAILABLE is returned as an error.
func (c *GeminiClient) Invoke(ctx context.Context, req *InvokeRequest) (json.RawMessage, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}
	maxRetries := req.MaxRetries
	if maxRetries < 1 {
		maxRetries = c.maxRetries
	}
	baseDelay := req.BaseDelay
	if baseDelay <= 0 {
		baseDelay = c.baseDelay
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{Text: req.Instructions + PayloadSeparator + req.Payload}},
		}},
		GenerationConfig: geminiGenerationConfig{ResponseMimeType: "application/json"},
	})
	if err != nil {
		return nil, apperrors.NewModelUnavailableError(model, 0, err)
	}

	attempts := 0
	result, err := retry.DoWithData(
		func() (json.RawMessage, error) {
			attempts++
			return c.attempt(ctx, model, body, req.Validate)
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxRetries)),
		retry.DelayType(linearBackoff(baseDelay)),
		retry.LastErrorOnly(true),
		retry.RetryIf(apperrors.IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			// n is zero-based and OnRetry also fires after the last attempt
			if int(n)+1 >= maxRetries {
				return
			}
			c.logger.Warn("Model call failed, retrying",
				"model", model,
				"attempt", n+1,
				"maxAttempts", maxRetries,
				"error", err)
		}),
	)
	if err != nil {
		c.logger.Error("Model unavailable", "model", model, "attempts", attempts, "error", err)
		return nil, apperrors.NewModelUnavailableError(model, attempts, err)
	}

	return result, nil
}

func (c *GeminiClient) attempt(ctx context.Context, model string, body []byte, validate func(json.RawMessage) error) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(apperrors.NewTransportError("generateContent", 0, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewTransportError("generateContent", 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewTransportError("generateContent", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := apperrors.NewTransportError("generateContent", resp.StatusCode,
			fmt.Errorf("Gemini API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500)))
		if !retryableStatus(resp.StatusCode) {
			return nil, retry.Unrecoverable(statusErr)
		}
		return nil, statusErr
	}

	text := gjson.GetBytes(respBody, "candidates.0.content.parts.0.text")
	if !text.Exists() {
		reason := gjson.GetBytes(respBody, "promptFeedback.blockReason").String()
		if reason == "" {
			reason = gjson.GetBytes(respBody, "candidates.0.finishReason").String()
		}
		return nil, apperrors.NewMalformedResponseError("no candidate text", fmt.Errorf("finish/block reason: %q", reason))
	}

	parsed, ok := ExtractJSON(text.String())
	if !ok {
		return nil, apperrors.NewMalformedResponseError("no JSON boundaries in response", fmt.Errorf("%s", truncate(text.String(), 200)))
	}

	if validate != nil {
		if err := validate(parsed); err != nil {
			return nil, apperrors.NewMalformedResponseError("unexpected JSON shape", err)
		}
	}

	c.logger.Debug("Model call succeeded", "model", model, "duration", time.Since(startTime).Round(time.Millisecond))
	return parsed, nil
}

// linearBackoff waits baseDelay * n before retry n (n starts at 1).
func linearBackoff(baseDelay time.Duration) retry.DelayTypeFunc {
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		return baseDelay * time.Duration(n)
	}
}

// retryableStatus reports whether an HTTP status is worth another attempt.
// Other 4xx errors (bad key, bad model name) will not heal by waiting.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
