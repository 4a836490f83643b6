package decision

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/xkilldash9x/crowdsim-cli/internal/config"
)

// openaiProvider calls the OpenAI chat completions API.
type openaiProvider struct {
	client *openai.Client
	cfg    config.LLMConfig
}

func newOpenAIProvider(cfg config.LLMConfig) (*openaiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required (set SNSSIM_LLM_API_KEY or OPENAI_API_KEY)")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &openaiProvider{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}, nil
}

func (p *openaiProvider) name() string { return "openai" }

func (p *openaiProvider) caps() capabilities {
	return capabilities{supportsTemperature: true, supportsJSONFormat: true}
}

func (p *openaiProvider) generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: p.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(p.cfg.Temperature),
		MaxTokens:   p.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
