package llm

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

// Provider represents the LLM provider type
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderGemini   Provider = "gemini"
	ProviderClaude   Provider = "claude"
	ProviderDeepSeek Provider = "deepseek"
)

// DefaultModel returns the default model for each provider
func DefaultModel(provider Provider) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderGemini:
		return "gemini-1.5-flash"
	case ProviderClaude:
		return "claude-sonnet-4-20250514"
	case ProviderDeepSeek:
		return "deepseek-chat"
	default:
		return ""
	}
}

// ParseSelector splits a "provider:modelId" selector. The model part is
// optional; "openai" alone resolves to the provider's default model.
func ParseSelector(selector string) (Provider, string, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return "", "", fmt.Errorf("empty model selector")
	}

	providerPart := selector
	model := ""
	if idx := strings.Index(selector, ":"); idx != -1 {
		providerPart = selector[:idx]
		model = strings.TrimSpace(selector[idx+1:])
	}

	provider := Provider(strings.ToLower(strings.TrimSpace(providerPart)))
	switch provider {
	case ProviderOpenAI, ProviderGemini, ProviderClaude, ProviderDeepSeek:
	default:
		return "", "", fmt.Errorf("unsupported provider: %s", providerPart)
	}

	if model == "" {
		model = DefaultModel(provider)
	}

	return provider, model, nil
}

// ClientConfig holds LLM client configuration
type ClientConfig struct {
	Provider    Provider      `json:"provider"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Provider:    ProviderOpenAI,
		Model:       DefaultModel(ProviderOpenAI),
		MaxTokens:   1024,
		Temperature: 0.3,
		Timeout:     60 * time.Second,
	}
}

// ImageInput carries a chart image for multimodal requests. URL is used by
// providers that accept remote images, Data (base64) by those that require
// inline bytes. DeepSeek has no vision endpoint and receives text only.
type ImageInput struct {
	URL      string
	Data     string
	MIMEType string
}

// Client is the LLM API client
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new LLM client
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Model == "" {
		config.Model = DefaultModel(config.Provider)
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Message represents a chat message with plain text content
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// openAIContentPart is one element of a multimodal chat message
type openAIContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

// OpenAIRequest represents an OpenAI chat completions request
type OpenAIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// OpenAIResponse represents an OpenAI chat completions response
type OpenAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// ClaudeRequest represents a Claude messages request
type ClaudeRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	Temperature float64     `json:"temperature,omitempty"`
	System      string      `json:"system,omitempty"`
	Messages    []claudeMsg `json:"messages"`
}

type claudeMsg struct {
	Role    string        `json:"role"`
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Type   string        `json:"type"`
	Text   string        `json:"text,omitempty"`
	Source *claudeSource `json:"source,omitempty"`
}

type claudeSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ClaudeResponse represents a Claude messages response
type ClaudeResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GeminiRequest represents a Gemini generateContent request
type GeminiRequest struct {
	Contents          []GeminiContent `json:"contents"`
	SystemInstruction *GeminiContent  `json:"system_instruction,omitempty"`
	GenerationConfig  *struct {
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		Temperature     float64 `json:"temperature,omitempty"`
	} `json:"generationConfig,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text       string `json:"text,omitempty"`
	InlineData *struct {
		MIMEType string `json:"mime_type"`
		Data     string `json:"data"`
	} `json:"inline_data,omitempty"`
}

// GeminiResponse represents a Gemini generateContent response
type GeminiResponse struct {
	Candidates []struct {
		Content      GeminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Complete sends a completion request to the configured provider
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, image *ImageInput) (string, error) {
	switch c.config.Provider {
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, systemPrompt, userPrompt, image)
	case ProviderGemini:
		return c.completeGemini(ctx, systemPrompt, userPrompt, image)
	case ProviderClaude:
		return c.completeClaude(ctx, systemPrompt, userPrompt, image)
	case ProviderDeepSeek:
		return c.completeDeepSeek(ctx, systemPrompt, userPrompt)
	default:
		return "", fmt.Errorf("unsupported provider: %s", c.config.Provider)
	}
}

// completeOpenAI sends a chat completions request with an image_url part
func (c *Client) completeOpenAI(ctx context.Context, systemPrompt, userPrompt string, image *ImageInput) (string, error) {
	userContent := []openAIContentPart{
		{Type: "text", Text: userPrompt},
	}
	if image != nil {
		url := image.URL
		if url == "" && image.Data != "" {
			url = fmt.Sprintf("data:%s;base64,%s", image.MIMEType, image.Data)
		}
		if url != "" {
			part := openAIContentPart{Type: "image_url"}
			part.ImageURL = &struct {
				URL string `json:"url"`
			}{URL: url}
			userContent = append(userContent, part)
		}
	}

	req := OpenAIRequest{
		Model: c.config.Model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	respBody, err := c.post(ctx, "https://api.openai.com/v1/chat/completions", req, map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	})
	if err != nil {
		return "", err
	}

	var openAIResp OpenAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if openAIResp.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", openAIResp.Error.Type, openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}

	return openAIResp.Choices[0].Message.Content, nil
}

// completeGemini sends a generateContent request with inline image data
func (c *Client) completeGemini(ctx context.Context, systemPrompt, userPrompt string, image *ImageInput) (string, error) {
	parts := []GeminiPart{
		{Text: userPrompt},
	}
	if image != nil && image.Data != "" {
		part := GeminiPart{}
		part.InlineData = &struct {
			MIMEType string `json:"mime_type"`
			Data     string `json:"data"`
		}{MIMEType: image.MIMEType, Data: image.Data}
		parts = append(parts, part)
	}

	req := GeminiRequest{
		Contents: []GeminiContent{
			{Role: "user", Parts: parts},
		},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &GeminiContent{
			Parts: []GeminiPart{{Text: systemPrompt}},
		}
	}
	req.GenerationConfig = &struct {
		MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
		Temperature     float64 `json:"temperature,omitempty"`
	}{MaxOutputTokens: c.config.MaxTokens, Temperature: c.config.Temperature}

	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s",
		c.config.Model, c.config.APIKey)

	respBody, err := c.post(ctx, url, req, nil)
	if err != nil {
		return "", err
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if geminiResp.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", geminiResp.Error.Status, geminiResp.Error.Message)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// completeClaude sends a messages request with an image source block
func (c *Client) completeClaude(ctx context.Context, systemPrompt, userPrompt string, image *ImageInput) (string, error) {
	var content []claudeBlock
	if image != nil {
		source := &claudeSource{}
		if image.Data != "" {
			source.Type = "base64"
			source.MediaType = image.MIMEType
			source.Data = image.Data
		} else if image.URL != "" {
			source.Type = "url"
			source.URL = image.URL
		}
		if source.Type != "" {
			content = append(content, claudeBlock{Type: "image", Source: source})
		}
	}
	content = append(content, claudeBlock{Type: "text", Text: userPrompt})

	req := ClaudeRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		System:      systemPrompt,
		Messages: []claudeMsg{
			{Role: "user", Content: content},
		},
	}

	respBody, err := c.post(ctx, "https://api.anthropic.com/v1/messages", req, map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var claudeResp ClaudeResponse
	if err := json.Unmarshal(respBody, &claudeResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if claudeResp.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", claudeResp.Error.Type, claudeResp.Error.Message)
	}
	if len(claudeResp.Content) == 0 {
		return "", fmt.Errorf("empty response from Claude")
	}

	return claudeResp.Content[0].Text, nil
}

// completeDeepSeek sends a text-only request (OpenAI-compatible API)
func (c *Client) completeDeepSeek(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := OpenAIRequest{
		Model: c.config.Model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	respBody, err := c.post(ctx, "https://api.deepseek.com/v1/chat/completions", req, map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	})
	if err != nil {
		return "", err
	}

	var openAIResp OpenAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if openAIResp.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", openAIResp.Error.Type, openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from DeepSeek")
	}

	return openAIResp.Choices[0].Message.Content, nil
}

// post marshals a request body, sends it, and returns the raw response body
func (c *Client) post(ctx context.Context, url string, payload interface{}, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return respBody, nil
}

// GetProvider returns the configured provider
func (c *Client) GetProvider() Provider {
	return c.config.Provider
}

// IsConfigured checks if the client is properly configured
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}
