// Package generate implements the documentation content pipeline: it asks
// the Gemini API for a site structure for a topic, then for each page's
// content, and writes the resulting markdown tree. This is a linear batch
// pipeline; the only subtlety is the retry and strict-JSON handling around
// the model call.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/xiyo/replica-builder/internal/logger"
)

const (
	geminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	requestTimeout = 60 * time.Second
	retryDelay     = 2 * time.Second
)

// GeminiClient calls the Gemini generateContent API in JSON response mode
type GeminiClient struct {
	apiKey     string
	model      string
	maxRetries int
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewGeminiClient creates a new Gemini API client
func NewGeminiClient(apiKey, model string, maxRetries int) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &GeminiClient{
		apiKey:     apiKey,
		model:      model,
		maxRetries: maxRetries,
		baseURL:    geminiBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        logger.WithField("component", "gemini"),
	}, nil
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

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateJSON sends a prompt and decodes the model's JSON reply into out.
// The model occasionally wraps a single object in an array; that wrapping is
// stripped. Failed calls are retried up to the configured budget.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, out interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			c.log.WithField("attempt", attempt).Debug("Retrying generation call")
		}

		if lastErr = c.generateOnce(ctx, prompt, out); lastErr == nil {
			return nil
		}
		c.log.WithError(lastErr).Warn("Generation call failed")
	}
	return fmt.Errorf("generation failed after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *GeminiClient) generateOnce(ctx context.Context, prompt string, out interface{}) error {
	reqBody := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{ResponseMimeType: "application/json"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Gemini API error: status %d", resp.StatusCode)
	}

	var data geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(data.Candidates) == 0 || len(data.Candidates[0].Content.Parts) == 0 {
		return fmt.Errorf("invalid API response structure")
	}

	text := []byte(data.Candidates[0].Content.Parts[0].Text)

	// The model sometimes answers [{...}] where {...} was asked for.
	var raw json.RawMessage = text
	var arr []json.RawMessage
	if err := json.Unmarshal(text, &arr); err == nil && len(arr) > 0 {
		raw = arr[0]
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}
