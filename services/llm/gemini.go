package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/trezcool/gamifica/core"
)

var defaultModels = []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-flash-latest"}

const (
	defaultMaxAttempts   = 3
	defaultRateLimitWait = 5 * time.Second
)

// callFunc performs one call against one model.
type callFunc func(ctx context.Context, model string, req Request) (string, error)

// GeminiClient tries the configured models in order. Each model gets at most maxAttempts calls;
// a rate limited model is abandoned after waiting rateLimitWait.
type GeminiClient struct {
	call          callFunc
	models        []string
	maxAttempts   int
	rateLimitWait time.Duration
	logger        core.Logger
}

var _ Client = (*GeminiClient)(nil)

func NewGeminiClient(ctx context.Context, conf *core.Config, logger core.Logger) (*GeminiClient, error) {
	if conf.LLM.GeminiAPIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  conf.LLM.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating Gemini client")
	}
	return newGeminiClient(geminiCall(client), conf.LLM, logger), nil
}

func newGeminiClient(call callFunc, conf core.LLMConfig, logger core.Logger) *GeminiClient {
	c := &GeminiClient{
		call:          call,
		models:        conf.Models,
		maxAttempts:   conf.MaxAttempts,
		rateLimitWait: conf.RateLimitWait,
		logger:        logger,
	}
	if len(c.models) == 0 {
		c.models = defaultModels
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.rateLimitWait <= 0 {
		c.rateLimitWait = defaultRateLimitWait
	}
	return c
}

func geminiCall(client *genai.Client) callFunc {
	return func(ctx context.Context, model string, req Request) (string, error) {
		config := &genai.GenerateContentConfig{}
		if req.Temperature > 0 {
			temp := req.Temperature
			config.Temperature = &temp
		}
		if req.System != "" {
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
		}
		if req.JSON {
			config.ResponseMIMEType = "application/json"
		}

		result, err := client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), config)
		if err != nil {
			return "", err
		}
		return result.Text(), nil
	}
}

func (c *GeminiClient) Generate(ctx context.Context, req Request) (Response, error) {
	var lastErr error

	for _, model := range c.models {
	attempts:
		for attempt := 1; attempt <= c.maxAttempts; attempt++ {
			start := time.Now()
			text, err := c.call(ctx, model, req)
			if err == nil && strings.TrimSpace(text) == "" {
				err = ErrEmptyResponse
			}
			if err == nil {
				c.logger.Debug(fmt.Sprintf("llm: %s answered in %s", model, time.Since(start)))
				return Response{Text: text, Model: model}, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Response{}, ctxErr
			}

			lastErr = AttemptError{Model: model, Attempt: attempt, Err: err, Elapsed: time.Since(start)}
			c.logger.Warn(fmt.Sprintf("llm: %v", lastErr))

			if isRateLimit(err) {
				lastErr = &RateLimitError{Model: model, Err: err}
				// wait for the quota to refill, then try the next model
				select {
				case <-ctx.Done():
					return Response{}, ctx.Err()
				case <-time.After(c.rateLimitWait):
				}
				break attempts
			}
		}
	}
	return Response{}, errors.Wrapf(ErrExhausted, "last error: %v", lastErr)
}
