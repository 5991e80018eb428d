package format

import (
	"context"
	"fmt"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
)

// anyLLMCompleter serves the Claude and Local providers through any-llm-go.
type anyLLMCompleter struct {
	backend anyllmlib.Provider
	model   string
}

func newClaudeCompleter(p Claude, baseURL string) (*anyLLMCompleter, error) {
	opts := []anyllmlib.Option{anyllmlib.WithAPIKey(p.APIKey)}
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}
	backend, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create claude backend: %w", err)
	}
	return &anyLLMCompleter{backend: backend, model: p.Model}, nil
}

func newLocalCompleter(p Local) (*anyLLMCompleter, error) {
	var opts []anyllmlib.Option
	if p.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(p.BaseURL))
	}
	backend, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create local backend: %w", err)
	}
	return &anyLLMCompleter{backend: backend, model: p.Model}, nil
}

func (c *anyLLMCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	temp := temperature
	mt := maxTokens
	params := anyllmlib.CompletionParams{
		Model: c.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleSystem, Content: system},
			{Role: anyllmlib.RoleUser, Content: user},
		},
		Temperature: &temp,
		MaxTokens:   &mt,
	}

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.ContentString(), nil
}
