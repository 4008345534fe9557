package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	GroqBaseURL       = "https://api.groq.com/openai/v1"
	PerplexityBaseURL = "https://api.perplexity.ai"

	DefaultGroqModel       = "llama3-70b-8192"
	DefaultPerplexityModel = "sonar"
)

// OpenAICompatible talks to any chat-completions API that follows the OpenAI
// wire format.
type OpenAICompatible struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAICompatible returns a client for the API rooted at baseURL.
func NewOpenAICompatible(apiKey, baseURL, model string) *OpenAICompatible {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAICompatible{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
}

// NewGroq returns a Groq client. An empty model selects DefaultGroqModel.
func NewGroq(apiKey, model string) *OpenAICompatible {
	if model == "" {
		model = DefaultGroqModel
	}
	return NewOpenAICompatible(apiKey, GroqBaseURL, model)
}

// NewPerplexity returns a Perplexity client. An empty model selects
// DefaultPerplexityModel.
func NewPerplexity(apiKey, model string) *OpenAICompatible {
	if model == "" {
		model = DefaultPerplexityModel
	}
	return NewOpenAICompatible(apiKey, PerplexityBaseURL, model)
}

// Complete implements Client.
func (c *OpenAICompatible) Complete(ctx context.Context, system string, messages []Message) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}
