package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultModel   = "gpt-5"
	defaultTimeout = 15 * time.Second
	// Error responses past this size are clipped before being quoted.
	maxQuotedBody = 512
)

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAITranslator speaks the chat completions protocol, which every
// OpenAI compatible gateway exposes.
type OpenAITranslator struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	translator := &OpenAITranslator{
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
	if translator.model == "" {
		translator.model = defaultModel
	}
	if cfg.Timeout <= 0 {
		translator.client.Timeout = defaultTimeout
	}
	return translator, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	messages, err := promptMessages(req)
	if err != nil {
		return Result{}, err
	}
	body, err := json.Marshal(chatRequest{Model: t.model, Messages: messages, Temperature: t.temperature})
	if err != nil {
		return Result{}, fmt.Errorf("encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("call chat completions: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("read chat completions response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return Result{}, fmt.Errorf("chat completions returned status %d: %s", resp.StatusCode, clipBody(raw))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode chat completions response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("chat completions returned no choices")
	}

	sql := extractSQL(parsed.Choices[0].Message.Content)
	if sql == "" {
		return Result{}, fmt.Errorf("model returned no SQL")
	}
	return Result{SQL: sql, Provider: "openai-compatible", Model: t.model}, nil
}

func promptMessages(req Request) ([]chatMessage, error) {
	schema, err := json.Marshal(req.Tables)
	if err != nil {
		return nil, fmt.Errorf("encode schema context: %w", err)
	}

	var user strings.Builder
	user.WriteString("Workspace tables (JSON):\n")
	user.Write(schema)
	user.WriteString("\n\nRequest:\n")
	user.WriteString(strings.TrimSpace(req.NaturalLanguage))
	user.WriteString("\n\nRules:\n")
	user.WriteString("- Query only the listed tables.\n")
	user.WriteString("- Name columns explicitly instead of SELECT *.\n")
	user.WriteString("- Unless the request sets its own limit, end with LIMIT 200.\n")
	user.WriteString("- Respond with exactly one SQL statement and nothing else.")

	return []chatMessage{
		{Role: "system", Content: "You write DuckDB SQL for an analytical workbench. " +
			"DuckDB follows PostgreSQL syntax with extensions. " +
			"Respond with the SQL statement only, no markdown and no commentary."},
		{Role: "user", Content: user.String()},
	}, nil
}

// extractSQL unwraps a fenced code block when the model ignores the
// plain-text instruction.
func extractSQL(content string) string {
	sql := strings.TrimSpace(content)
	if rest, found := strings.CutPrefix(sql, "```sql"); found {
		sql = rest
	} else if rest, found := strings.CutPrefix(sql, "```"); found {
		sql = rest
	}
	sql = strings.TrimSuffix(strings.TrimSpace(sql), "```")
	return strings.TrimSpace(sql)
}

func clipBody(raw []byte) string {
	if len(raw) > maxQuotedBody {
		return string(raw[:maxQuotedBody]) + "..."
	}
	return string(raw)
}
