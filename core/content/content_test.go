package content_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/content"
	"github.com/trezcool/gamifica/core/course"
	logsvc "github.com/trezcool/gamifica/services/logger"
	"github.com/trezcool/gamifica/tests"
)

var errModelDown = errors.New("model down")

// fakeModel replays outputs in order and records the prompts it got.
type fakeModel struct {
	outputs []string
	err     error
	calls   []bool // jsonOutput of each call
}

func (m *fakeModel) Complete(_ context.Context, _, _ string, jsonOutput bool) (string, error) {
	m.calls = append(m.calls, jsonOutput)
	if m.err != nil {
		return "", m.err
	}
	if len(m.outputs) == 0 {
		return "", nil
	}
	out := m.outputs[0]
	m.outputs = m.outputs[1:]
	return out, nil
}

const validQuiz = "```json\n" + `[
	{"statement": "What does := do?", "xp": 15, "alternatives": [
		{"text": "declares and assigns", "correct": true},
		{"text": "compares", "correct": false},
		{"text": "imports", "correct": false},
		{"text": "returns", "correct": false}
	]},
	{"statement": "Zero value of int?", "alternatives": [
		{"text": "nil", "correct": false},
		{"text": "0", "correct": true},
		{"text": "1", "correct": false},
		{"text": "undefined", "correct": false}
	]}
]` + "\n```"

func newGenerator(t *testing.T, model content.Model) content.Generator {
	gen, err := content.NewGenerator(model, logsvc.NewNopLogger())
	require.NoError(t, err)
	return gen
}

func TestSanitizeLesson(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"empty", "", ""},
		{"blank", " \n ", ""},
		{"clean", "<h1>Go</h1><p>Hi</p>", "<h1>Go</h1><p>Hi</p>"},
		{"fenced", "```html\n<h1>Go</h1>\n<p>Hi</p>\n```", "<h1>Go</h1>\n<p>Hi</p>"},
		{"chatter before heading", "Sure! Here is your lesson:\n\n<h1>Go</h1>", "<h1>Go</h1>"},
		{"no heading", "<p>just text</p>", "<p>just text</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, content.SanitizeLesson(tt.in))
		})
	}
}

func TestGenerator_GenerateLesson(t *testing.T) {
	ctx := context.Background()

	model := &fakeModel{outputs: []string{"```html\n<h1>Loops</h1><p>for</p>\n```"}}
	html, err := newGenerator(t, model).GenerateLesson(ctx, " Loops ")
	require.NoError(t, err)
	assert.Equal(t, "<h1>Loops</h1><p>for</p>", html)
	assert.Equal(t, []bool{false}, model.calls)

	_, err = newGenerator(t, &fakeModel{}).GenerateLesson(ctx, "  ")
	var vErr *core.ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, err = newGenerator(t, &fakeModel{err: errModelDown}).GenerateLesson(ctx, "Loops")
	assert.Equal(t, content.ErrGenerationFailed, errors.Cause(err))
	assert.Contains(t, err.Error(), "model down")

	_, err = newGenerator(t, &fakeModel{outputs: []string{"```\n```"}}).GenerateLesson(ctx, "Loops")
	assert.Equal(t, content.ErrEmptyContent, errors.Cause(err))
}

func TestGenerator_GenerateQuiz(t *testing.T) {
	ctx := context.Background()

	model := &fakeModel{outputs: []string{validQuiz}}
	questions, err := newGenerator(t, model).GenerateQuiz(ctx, "<h1>Go</h1>")
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, model.calls)
	require.Len(t, questions, 2)
	assert.Equal(t, "What does := do?", questions[0].Statement)
	assert.Equal(t, 15, questions[0].XP)
	assert.Equal(t, 10, questions[1].XP)
	require.Len(t, questions[1].Alternatives, 4)
	assert.True(t, questions[1].Alternatives[1].IsCorrect)

	_, err = newGenerator(t, &fakeModel{}).GenerateQuiz(ctx, " ")
	assert.Equal(t, content.ErrNoChapterContent, errors.Cause(err))

	invalid := []struct {
		name, out string
	}{
		{"empty", ""},
		{"not json", "here are your questions"},
		{"not an array", `{"statement": "Q?"}`},
		{"no questions", `[]`},
		{"three alternatives", `[{"statement": "Q?", "alternatives": [
			{"text": "a", "correct": true}, {"text": "b", "correct": false}, {"text": "c", "correct": false}]}]`},
		{"two correct", `[{"statement": "Q?", "alternatives": [
			{"text": "a", "correct": true}, {"text": "b", "correct": true},
			{"text": "c", "correct": false}, {"text": "d", "correct": false}]}]`},
		{"none correct", `[{"statement": "Q?", "alternatives": [
			{"text": "a", "correct": false}, {"text": "b", "correct": false},
			{"text": "c", "correct": false}, {"text": "d", "correct": false}]}]`},
		{"missing statement", `[{"alternatives": [
			{"text": "a", "correct": true}, {"text": "b", "correct": false},
			{"text": "c", "correct": false}, {"text": "d", "correct": false}]}]`},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newGenerator(t, &fakeModel{outputs: []string{tt.out}}).GenerateQuiz(ctx, "<h1>Go</h1>")
			assert.Equal(t, content.ErrGenerationFailed, errors.Cause(err))
		})
	}
}

func TestService_FillChapter(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	trail, filled := s.Trail(t, "Go", []int{10})
	blank, err := s.Courses.AddChapter(ctx, course.NewChapter{TrailID: trail.ID, Title: "Pointers", XPValue: 10})
	require.NoError(t, err)

	model := &fakeModel{outputs: []string{"<h1>Pointers</h1><p>&x</p>"}}
	svc := content.NewService(newGenerator(t, model), s.Courses)

	// chapters with content are kept unless overwrite is set
	ch, err := svc.FillChapter(ctx, filled[0].ID, false)
	require.NoError(t, err)
	assert.Equal(t, filled[0].Content, ch.Content)
	assert.Empty(t, model.calls)

	ch, err = svc.FillChapter(ctx, blank.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Pointers</h1><p>&x</p>", ch.Content)

	got, err := s.Courses.GetChapter(ctx, blank.ID)
	require.NoError(t, err)
	assert.Equal(t, ch.Content, got.Content)

	// a failed generation leaves the chapter untouched
	svc = content.NewService(newGenerator(t, &fakeModel{err: errModelDown}), s.Courses)
	_, err = svc.FillChapter(ctx, blank.ID, true)
	assert.Equal(t, content.ErrGenerationFailed, errors.Cause(err))
	got, err = s.Courses.GetChapter(ctx, blank.ID)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Pointers</h1><p>&x</p>", got.Content)

	_, err = svc.FillChapter(ctx, "unknown", false)
	assert.Equal(t, course.ErrChapterNotFound, errors.Cause(err))
}

func TestService_FillQuiz(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStack(t)
	_, chapters := s.Trail(t, "Go", []int{10})

	svc := content.NewService(newGenerator(t, &fakeModel{outputs: []string{validQuiz, "nope"}}), s.Courses)
	questions, err := svc.FillQuiz(ctx, chapters[0].ID)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	for _, q := range questions {
		assert.NotEmpty(t, q.ID)
		_, ok := q.Correct()
		assert.True(t, ok)
	}

	// invalid output stores nothing
	_, err = svc.FillQuiz(ctx, chapters[0].ID)
	assert.Equal(t, content.ErrGenerationFailed, errors.Cause(err))
	stored, err := s.Courses.Questions(ctx, chapters[0].ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}
