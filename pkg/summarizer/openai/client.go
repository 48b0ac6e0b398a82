// Package openai adapts the OpenAI chat completions API to the
// summarizer.Provider contract, grounded on the teacher's
// pkg/llm/openai/client.go (same go-openai chat.completion call shape).
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Client is an OpenAI-backed summarizer.Provider.
type Client struct {
	client *openai.Client
	model  string
}

// Config configures the OpenAI summarizer client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new OpenAI-backed summarizer.
func NewClient(cfg *Config) (*Client, error) {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{client: openai.NewClientWithConfig(conf), model: model}, nil
}

// Summarize sends the cluster's contents and topic to the chat
// completions API and returns the generated summary text.
func (c *Client) Summarize(ctx context.Context, instruction string, contents []string, topic string) (string, error) {
	var body strings.Builder
	fmt.Fprintf(&body, "Topic: %s\n\nMemories:\n", topic)
	for i, content := range contents {
		fmt.Fprintf(&body, "%d. %s\n", i+1, content)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instruction},
			{Role: openai.ChatMessageRoleUser, Content: body.String()},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("summarization failed: no choices returned from OpenAI API")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Close is a no-op; the go-openai client holds no resources to release.
func (c *Client) Close() error {
	return nil
}
