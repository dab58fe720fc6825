package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Role of a transcript entry.
type Role string

const (
	RoleContact Role = "contact"
	RoleAgent   Role = "agent"
)

// Turn is one transcript entry.
type Turn struct {
	Role    Role
	Content string
}

// Request is everything the model sees for one turn.
type Request struct {
	Prompt      string
	Transcript  []Turn
	Temperature float32
	MaxTokens   int
}

// Processor produces the next raw AI reply for a transcript.
type Processor interface {
	Process(ctx context.Context, req Request) (string, error)
}

// ErrEmptyReply is returned when the model produced no text.
var ErrEmptyReply = errors.New("empty model reply")

// OpenAIProcessor runs turns against an OpenAI-compatible chat API.
type OpenAIProcessor struct {
	client *openai.Client
	model  string
}

// NewOpenAIProcessor creates an OpenAIProcessor. baseURL may point at any
// OpenAI-compatible endpoint; empty means api.openai.com.
func NewOpenAIProcessor(apiKey, baseURL, model string) *OpenAIProcessor {
	if model == "" {
		model = openai.GPT4oMini
	}
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProcessor{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// Process implements Processor.
func (p *OpenAIProcessor) Process(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Transcript)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.Prompt})
	for _, t := range req.Transcript {
		role := openai.ChatMessageRoleUser
		if t.Role == RoleAgent {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
