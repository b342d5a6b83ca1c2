package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"erpquery/internal/config"
	"erpquery/internal/logger"
	"erpquery/internal/utils"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint
type OpenAIClient struct {
	config     *config.OpenAIConfig
	httpClient *http.Client
	extraBody  map[string]any
	log        *zap.Logger
}

// NewOpenAIClient creates a new OpenAI-compatible client
func NewOpenAIClient(cfg *config.OpenAIConfig, log *zap.Logger) *OpenAIClient {
	log = logger.OrNop(log)

	var extraBody map[string]any
	if cfg.ChatExtraBody != "" {
		if err := json.Unmarshal([]byte(cfg.ChatExtraBody), &extraBody); err != nil {
			log.Warn("ignoring OPENAI_CHAT_EXTRA_BODY", zap.Error(err))
			extraBody = nil
		}
	}

	return &OpenAIClient{
		config:    cfg,
		extraBody: extraBody,
		log:       log,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
}

// IsEnabled reports whether an API key is configured
func (c *OpenAIClient) IsEnabled() bool {
	return c != nil && c.config.Enabled
}

// ChatCompletionRequest is the body of POST /chat/completions
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	TopP           float64         `json:"top_p,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
	ExtraBody      map[string]any  `json:"extra_body,omitempty"`
}

// ChatMessage is one system, user or assistant turn
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat asks the model for json_object or text output
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatCompletionResponse is the subset of the completion reply the interpreter reads
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Content returns the message text of the first choice
func (r *ChatCompletionResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// ChatCompletion sends one non-streaming completion request and decodes the reply
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("OpenAI API is not enabled (missing API key)")
	}

	// Apply defaults from config
	if req.Model == "" {
		req.Model = c.config.ChatModel
	}
	if req.Temperature == 0 && c.config.ChatTemperature > 0 {
		req.Temperature = c.config.ChatTemperature
	}
	if req.TopP == 0 && c.config.ChatTopP > 0 {
		req.TopP = c.config.ChatTopP
	}
	if req.MaxTokens == 0 && c.config.ChatMaxTokens > 0 {
		req.MaxTokens = c.config.ChatMaxTokens
	}
	if req.ExtraBody == nil {
		req.ExtraBody = c.extraBody
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.config.APIBase)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, utils.Truncate(string(body), 300))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	c.log.Debug("chat completion",
		zap.String("model", result.Model),
		zap.Int("total_tokens", result.Usage.TotalTokens),
		zap.Duration("took", time.Since(start)),
	)
	return &result, nil
}

