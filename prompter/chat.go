package prompter

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// chatPrompter drives any OpenAI-compatible chat completion endpoint.
// Both providers share it and differ only in client config and model.
type chatPrompter struct {
	client *openai.Client
	model  string
	name   string
}

func NewOpenAI(apiKey string) Prompter {
	return &chatPrompter{
		client: openai.NewClient(apiKey),
		model:  "gpt-4o-mini",
		name:   "openai",
	}
}

// NewGroq points the same client at Groq's OpenAI-compatible endpoint.
func NewGroq(apiKey string) Prompter {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = "https://api.groq.com/openai/v1"
	return &chatPrompter{
		client: openai.NewClientWithConfig(config),
		model:  "llama-3.3-70b-versatile",
		name:   "groq",
	}
}

func (p *chatPrompter) Name() string { return p.name }

func (p *chatPrompter) Synthesize(ctx context.Context, spokenText string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: fmt.Sprintf(userPromptTemplate, spokenText)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.name)
	}

	prompt := strings.TrimSpace(resp.Choices[0].Message.Content)
	if prompt == "" {
		return "", fmt.Errorf("%s returned an empty prompt", p.name)
	}
	return prompt, nil
}
