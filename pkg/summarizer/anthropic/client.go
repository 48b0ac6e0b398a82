// Package anthropic adapts the Anthropic Messages API to the
// summarizer.Provider contract, grounded on intelligencedev-manifold's
// internal/llm/anthropic/client.go (anthropic-sdk-go client construction,
// option.WithAPIKey/WithBaseURL, MessageNewParams shape), offering a
// second concrete summariser so the consolidation engine is not bound to
// a single provider.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = int64(1024)

// Client is an Anthropic-backed summarizer.Provider.
type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
}

// Config configures the Anthropic summarizer client.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new Anthropic-backed summarizer.
func NewClient(cfg *Config) (*Client, error) {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}

	return &Client{
		sdk:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
	}, nil
}

// Summarize sends the cluster's contents and topic to the Messages API and
// returns the generated summary text.
func (c *Client) Summarize(ctx context.Context, instruction string, contents []string, topic string) (string, error) {
	var body strings.Builder
	fmt.Fprintf(&body, "Topic: %s\n\nMemories:\n", topic)
	for i, content := range contents {
		fmt.Fprintf(&body, "%d. %s\n", i+1, content)
	}

	msg, err := c.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: instruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(body.String())),
		},
	})
	if err != nil {
		return "", err
	}
	if len(msg.Content) == 0 {
		return "", errors.New("summarization failed: no content blocks returned from Anthropic API")
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Text != "" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("summarization failed: empty text content")
	}
	return strings.TrimSpace(out.String()), nil
}

// Close is a no-op; the anthropic-sdk-go client holds no resources to
// release.
func (c *Client) Close() error {
	return nil
}
