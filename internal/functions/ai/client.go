package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotConfigured indicates the AI client is not configured
	ErrNotConfigured = errors.New("AI client not configured")
	// ErrAPICallFailed indicates the AI API call failed
	ErrAPICallFailed = errors.New("AI API call failed")
	// ErrInvalidResponse indicates an invalid response from the AI API
	ErrInvalidResponse = errors.New("invalid AI API response")
	// ErrEmptyReply indicates the model returned an empty completion
	ErrEmptyReply = errors.New("AI returned an empty reply")
)

// Provider represents an AI provider
type Provider string

const (
	// ProviderOpenAI represents OpenAI API
	ProviderOpenAI Provider = "openai"
	// ProviderClaude represents Anthropic Claude API
	ProviderClaude Provider = "claude"
	// ProviderOllama represents a local Ollama server (OpenAI-compatible API)
	ProviderOllama Provider = "ollama"
	// ProviderCustom represents a custom OpenAI-compatible endpoint
	ProviderCustom Provider = "custom"
)

// Client generates conversational email replies via a chat completion API
type Client struct {
	provider   Provider
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	configured bool
}

// NewClient creates a new AI Client instance
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Configure configures the AI client with provider settings
func (c *Client) Configure(provider, apiKey, model string) {
	c.ConfigureWithBaseURL(provider, apiKey, model, "")
}

// ConfigureWithBaseURL configures the AI client with provider settings and custom base URL
func (c *Client) ConfigureWithBaseURL(provider, apiKey, model, baseURL string) {
	c.provider = Provider(strings.ToLower(provider))
	c.apiKey = apiKey
	c.model = model

	if baseURL != "" {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	} else {
		switch c.provider {
		case ProviderOpenAI:
			c.baseURL = "https://api.openai.com/v1"
			if c.model == "" {
				c.model = "gpt-4o-mini"
			}
		case ProviderClaude:
			c.baseURL = "https://api.anthropic.com/v1"
			if c.model == "" {
				c.model = "claude-3-haiku-20240307"
			}
		case ProviderOllama:
			c.baseURL = "http://localhost:11434/v1"
			if c.model == "" {
				c.model = "llama3"
			}
		default:
			c.provider = ProviderOpenAI
			c.baseURL = "https://api.openai.com/v1"
		}
	}

	// Ollama runs locally without an API key
	c.configured = apiKey != "" || c.provider == ProviderOllama
}

// SetBaseURL sets a custom base URL for the API
func (c *Client) SetBaseURL(url string) {
	c.baseURL = strings.TrimSuffix(url, "/")
}

// IsConfigured returns whether the client is configured
func (c *Client) IsConfigured() bool {
	return c.configured
}

// ChatMessage represents a message in a chat conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// ChatResponse represents a chat completion response
type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// sendChatRequest sends a chat completion request to the AI API
func (c *Client) sendChatRequest(messages []ChatMessage) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	request := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   1000,
		Temperature: 0.7,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}

	req.Header.Set("Content-Type", "application/json")

	// Set authorization header based on provider
	switch c.provider {
	case ProviderClaude:
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	case ProviderOllama:
		// No auth required
	default:
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAPICallFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrAPICallFailed, resp.StatusCode, string(respBody))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrAPICallFailed, chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", ErrInvalidResponse
	}

	return chatResp.Choices[0].Message.Content, nil
}

// GenerateReply produces the assistant's next turn for a conversation.
// history must be ordered oldest first and already include the latest
// user message.
func (c *Client) GenerateReply(systemPrompt string, history []ChatMessage) (string, error) {
	messages := make([]ChatMessage, 0, len(history)+1)
	if systemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, history...)

	response, err := c.sendChatRequest(messages)
	if err != nil {
		return "", err
	}

	response = strings.TrimSpace(response)
	if response == "" {
		return "", ErrEmptyReply
	}
	return response, nil
}
