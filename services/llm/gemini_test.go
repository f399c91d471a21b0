package llm

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gamifica/core"
	logsvc "github.com/trezcool/gamifica/services/logger"
)

type step struct {
	text string
	err  error
}

// scriptedCall replays steps in order and records which model served each call.
type scriptedCall struct {
	steps  []step
	models []string
}

func (s *scriptedCall) call(_ context.Context, model string, _ Request) (string, error) {
	s.models = append(s.models, model)
	if len(s.steps) == 0 {
		return "", errors.New("no more steps")
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	return st.text, st.err
}

func testClient(sc *scriptedCall, maxAttempts int) *GeminiClient {
	return newGeminiClient(sc.call, core.LLMConfig{
		Models:        []string{"m1", "m2"},
		MaxAttempts:   maxAttempts,
		RateLimitWait: time.Millisecond,
	}, logsvc.NewNopLogger())
}

func TestGeminiClient_Generate(t *testing.T) {
	boom := errors.New("boom")
	quota := errors.New("Error 429, Message: quota exceeded, Status: RESOURCE_EXHAUSTED")

	tests := []struct {
		name       string
		steps      []step
		maxAttempt int
		wantText   string
		wantModel  string
		wantCalls  []string
		wantErr    bool
	}{
		{
			name:      "first model answers",
			steps:     []step{{text: "<h1>ok</h1>"}},
			wantText:  "<h1>ok</h1>",
			wantModel: "m1",
			wantCalls: []string{"m1"},
		},
		{
			name:      "retries the same model on failure",
			steps:     []step{{err: boom}, {text: "ok"}},
			wantText:  "ok",
			wantModel: "m1",
			wantCalls: []string{"m1", "m1"},
		},
		{
			name:      "empty output counts as a failure",
			steps:     []step{{text: "  \n"}, {text: "ok"}},
			wantText:  "ok",
			wantModel: "m1",
			wantCalls: []string{"m1", "m1"},
		},
		{
			name:      "rate limit moves to the next model",
			steps:     []step{{err: quota}, {text: "ok"}},
			wantText:  "ok",
			wantModel: "m2",
			wantCalls: []string{"m1", "m2"},
		},
		{
			name:       "attempts are bounded per model",
			steps:      []step{{err: boom}, {err: boom}, {text: "ok"}},
			maxAttempt: 2,
			wantText:   "ok",
			wantModel:  "m2",
			wantCalls:  []string{"m1", "m1", "m2"},
		},
		{
			name:       "every model fails",
			steps:      []step{{err: boom}, {err: boom}, {err: boom}, {err: boom}},
			maxAttempt: 2,
			wantCalls:  []string{"m1", "m1", "m2", "m2"},
			wantErr:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &scriptedCall{steps: tt.steps}
			maxAttempts := tt.maxAttempt
			if maxAttempts == 0 {
				maxAttempts = 3
			}

			resp, err := testClient(sc, maxAttempts).Generate(context.Background(), Request{Prompt: "topic"})
			assert.Equal(t, tt.wantCalls, sc.models)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, ErrExhausted, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Text)
			assert.Equal(t, tt.wantModel, resp.Model)
		})
	}
}

func TestGeminiClient_GenerateCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sc := &scriptedCall{steps: []step{{err: context.Canceled}}}
	_, err := testClient(sc, 3).Generate(ctx, Request{})
	assert.Equal(t, context.Canceled, err)
	assert.Len(t, sc.models, 1)
}

func TestNewGeminiClient_requiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), &core.Config{}, logsvc.NewNopLogger())
	assert.Error(t, err)
}

func TestMockClient(t *testing.T) {
	m := NewMockClient(MockResponse{Text: "a"}, MockResponse{Err: ErrEmptyResponse})

	resp, err := m.Generate(context.Background(), Request{Prompt: "1"})
	require.NoError(t, err)
	assert.Equal(t, "a", resp.Text)

	_, err = m.Generate(context.Background(), Request{Prompt: "2"})
	assert.Equal(t, ErrEmptyResponse, err)

	_, err = m.Generate(context.Background(), Request{Prompt: "3"})
	assert.Equal(t, ErrExhausted, err)
	assert.Equal(t, 3, m.CallCount())
}
