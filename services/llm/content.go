package llm

import (
	"context"

	"github.com/trezcool/gamifica/core/content"
)

var (
	_ content.Model = (*GeminiClient)(nil)
	_ content.Model = (*MockClient)(nil)
)

func (c *GeminiClient) Complete(ctx context.Context, system, prompt string, jsonOutput bool) (string, error) {
	resp, err := c.Generate(ctx, Request{System: system, Prompt: prompt, JSON: jsonOutput})
	return resp.Text, err
}

func (m *MockClient) Complete(ctx context.Context, system, prompt string, jsonOutput bool) (string, error) {
	resp, err := m.Generate(ctx, Request{System: system, Prompt: prompt, JSON: jsonOutput})
	return resp.Text, err
}
