package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"dahdouh-ai/internal/config"
)

// CompletionClient is the subset of openai.Client the text provider needs.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// TextProvider talks to any OpenAI-compatible chat completions endpoint (Groq by default).
type TextProvider struct {
	client CompletionClient
	model  string
}

func NewTextProvider(cfg config.TextConfig) *TextProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	return NewTextProviderWithClient(openai.NewClientWithConfig(clientCfg), cfg.Model)
}

func NewTextProviderWithClient(client CompletionClient, model string) *TextProvider {
	return &TextProvider{client: client, model: model}
}

func (p *TextProvider) Name() string { return "text:" + p.model }

func (p *TextProvider) Supports(m Modality) bool {
	_, ok := m.(Text)
	return ok
}

func (p *TextProvider) Generate(ctx context.Context, m Modality) (string, error) {
	turn, ok := m.(Text)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoProvider, m.Kind())
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(turn.History)+2)
	if turn.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: turn.SystemPrompt})
	}
	for _, item := range turn.History {
		if strings.TrimSpace(item.Content) == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: item.Role, Content: item.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: turn.Prompt})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrUnparseable)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty message content", ErrUnparseable)
	}
	return content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: status %d: %s", ErrUpstreamPayload, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: status %d: %v", ErrUpstreamStatus, reqErr.HTTPStatusCode, reqErr.Err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrUpstreamTransport, err)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamTransport, err)
}
