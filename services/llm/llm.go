// Package llm talks to the Gemini API with model fallback and bounded retries.
package llm

import (
	"context"
)

// Client generates text from a prompt.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

type Request struct {
	System string
	Prompt string
	// JSON asks the model for an application/json response.
	JSON        bool
	Temperature float32
}

type Response struct {
	Text  string
	Model string // the model that served the request
}
