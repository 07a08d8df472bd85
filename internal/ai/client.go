package ai

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ModelHaiku is the cost-efficient model used for summaries. Summarizing a
// diff or a commit log is a simple task; no deep-reasoning model is needed.
const ModelHaiku = "claude-3-5-haiku-20241022"

// GetModel returns the summary model, checking SENTINEL_MODEL env var first
func GetModel() string {
	if model := os.Getenv("SENTINEL_MODEL"); model != "" {
		return model
	}
	return ModelHaiku
}

// Client is a thin wrapper around the Anthropic API used by agents that
// produce natural-language summaries. It is an injected collaborator:
// agents receive it as an interface and must work without it.
type Client struct {
	client *anthropic.Client
	model  string
}

// NewClient creates an AI client, reading the API key from the environment
// when the argument is empty. Returns an error when no key is available;
// callers treat that as degraded mode, not failure.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  GetModel(),
	}, nil
}

// Summarize asks the model for a short summary of content. The subject
// names what the content is ("uncommitted changes", "recent commits").
func (c *Client) Summarize(ctx context.Context, subject, content string) (string, error) {
	if content == "" {
		return "", nil
	}

	prompt := fmt.Sprintf(
		"Summarize the following %s in at most three sentences for an engineering status dashboard. Be concrete.\n\n%s",
		subject, truncateForPrompt(content))

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 512,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// truncateForPrompt caps prompt content so a giant diff cannot blow the
// context window.
func truncateForPrompt(s string) string {
	const maxBytes = 30000
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes] + "\n\n[truncated]"
}
