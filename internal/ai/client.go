// Package ai wraps the chat-completions API behind the two calls the editor
// needs: continuation suggestions and summaries. Model output is forced into
// JSON and validated; anything malformed is a Generation error.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"inkdraft/pkg/apperr"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o"

	completionPrompt = "You are a helpful writing assistant. Generate a natural continuation for the given text. Respond with JSON containing the suggested text and a confidence score between 0-1, as {\"text\": ..., \"confidence\": ...}."
	summaryPrompt    = "Summarize the given text and extract key points. Respond with JSON containing a concise summary and array of key points, as {\"summary\": ..., \"key_points\": [...]}."
)

// Completion is a suggested continuation of the document text.
type Completion struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Summary condenses the document into a short abstract plus key points.
type Summary struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

type Options struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:     opts.APIKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Complete generates a continuation for contextText.
func (c *Client) Complete(ctx context.Context, contextText string) (Completion, error) {
	raw, err := c.chat(ctx, completionPrompt, contextText)
	if err != nil {
		return Completion{}, err
	}
	var result Completion
	if err := json.Unmarshal(raw, &result); err != nil {
		return Completion{}, apperr.Wrap(apperr.Generation, "malformed completion output", err)
	}
	if result.Text == "" || result.Confidence < 0 || result.Confidence > 1 {
		return Completion{}, apperr.New(apperr.Generation, "completion output failed validation")
	}
	return result, nil
}

// Summarize produces a summary plus key points for text.
func (c *Client) Summarize(ctx context.Context, text string) (Summary, error) {
	raw, err := c.chat(ctx, summaryPrompt, text)
	if err != nil {
		return Summary{}, err
	}
	var result Summary
	if err := json.Unmarshal(raw, &result); err != nil {
		return Summary{}, apperr.Wrap(apperr.Generation, "malformed summary output", err)
	}
	if result.Summary == "" {
		return Summary{}, apperr.New(apperr.Generation, "summary output failed validation")
	}
	if result.KeyPoints == nil {
		result.KeyPoints = []string{}
	}
	return result, nil
}

func (c *Client) chat(ctx context.Context, system, user string) (json.RawMessage, error) {
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": map[string]string{"type": "json_object"},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Generation, "encode chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Wrap(apperr.Generation, "build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Generation, "chat request failed", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, apperr.Newf(apperr.Generation, "model API returned status %d: %s",
			res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, apperr.Wrap(apperr.Generation, "decode chat response", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, apperr.New(apperr.Generation, "model returned no choices")
	}
	return json.RawMessage(resp.Choices[0].Message.Content), nil
}
