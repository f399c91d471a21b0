// Package content drafts lesson HTML and quiz questions with a text generation model.
package content

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/course"
)

var (
	// errors
	ErrGenerationFailed = errors.New("content generation failed")
	ErrEmptyContent     = errors.New("generated content is empty")
	ErrNoChapterContent = errors.New("chapter has no content to base a quiz on")
)

const (
	defaultQuestionXP = 10
	quizSize          = 3
	quizSchemaURL     = "schema://generated-quiz.json"
)

var (
	fencesRe    = regexp.MustCompile("```(?:html|json)?")
	beforeH1Re  = regexp.MustCompile(`(?is)^.*?<h1`)
	quizSchemaS = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["statement", "alternatives"],
		"properties": {
			"statement": {"type": "string", "minLength": 1},
			"xp": {"type": "integer", "minimum": 0},
			"alternatives": {
				"type": "array",
				"minItems": 4,
				"maxItems": 4,
				"items": {
					"type": "object",
					"required": ["text", "correct"],
					"properties": {
						"text": {"type": "string", "minLength": 1},
						"correct": {"type": "boolean"}
					}
				},
				"contains": {"properties": {"correct": {"const": true}}},
				"minContains": 1,
				"maxContains": 1
			}
		}
	}
}`
)

type (
	// Model is the text generation backend. jsonOutput asks for a JSON document instead of prose.
	Model interface {
		Complete(ctx context.Context, system, prompt string, jsonOutput bool) (string, error)
	}

	Generator interface {
		// GenerateLesson returns a sanitised HTML fragment starting at its <h1>.
		GenerateLesson(ctx context.Context, topic string) (string, error)
		// GenerateQuiz returns schema-checked multiple choice questions about chapterContent.
		GenerateQuiz(ctx context.Context, chapterContent string) ([]course.NewQuestion, error)
	}

	generator struct {
		model  Model
		schema *jsonschema.Schema
		logger core.Logger
	}

	generatedQuestion struct {
		Statement    string `json:"statement"`
		XP           *int   `json:"xp"`
		Alternatives []struct {
			Text    string `json:"text"`
			Correct bool   `json:"correct"`
		} `json:"alternatives"`
	}
)

var _ Generator = (*generator)(nil)

func NewGenerator(model Model, logger core.Logger) (Generator, error) {
	schema, err := compileQuizSchema()
	if err != nil {
		return nil, err
	}
	return &generator{model: model, schema: schema, logger: logger}, nil
}

func compileQuizSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(quizSchemaS))
	if err != nil {
		return nil, errors.Wrap(err, "parsing quiz schema")
	}
	c := jsonschema.NewCompiler()
	if err = c.AddResource(quizSchemaURL, doc); err != nil {
		return nil, errors.Wrap(err, "adding quiz schema")
	}
	schema, err := c.Compile(quizSchemaURL)
	if err != nil {
		return nil, errors.Wrap(err, "compiling quiz schema")
	}
	return schema, nil
}

func (g *generator) GenerateLesson(ctx context.Context, topic string) (string, error) {
	topic = core.CleanString(topic)
	if topic == "" {
		return "", core.NewValidationError(errors.New("a topic is required"))
	}

	out, err := g.model.Complete(ctx, lessonSystem, lessonPrompt(topic), false)
	if err != nil {
		return "", errors.Wrapf(ErrGenerationFailed, "generating lesson %q: %v", topic, err)
	}
	html := SanitizeLesson(out)
	if html == "" {
		return "", ErrEmptyContent
	}
	g.logger.Info(fmt.Sprintf("lesson generated for %q (%d bytes)", topic, len(html)))
	return html, nil
}

func (g *generator) GenerateQuiz(ctx context.Context, chapterContent string) ([]course.NewQuestion, error) {
	if strings.TrimSpace(chapterContent) == "" {
		return nil, ErrNoChapterContent
	}

	out, err := g.model.Complete(ctx, quizSystem, quizPrompt(chapterContent), true)
	if err != nil {
		return nil, errors.Wrapf(ErrGenerationFailed, "generating quiz: %v", err)
	}
	questions, err := g.parseQuiz(out)
	if err != nil {
		return nil, errors.Wrapf(ErrGenerationFailed, "parsing quiz: %v", err)
	}
	g.logger.Info(fmt.Sprintf("quiz generated (%d questions)", len(questions)))
	return questions, nil
}

// SanitizeLesson drops markdown fences and anything before the first <h1>.
func SanitizeLesson(raw string) string {
	s := fencesRe.ReplaceAllString(raw, "")
	s = beforeH1Re.ReplaceAllString(s, "<h1")
	return strings.TrimSpace(s)
}

func stripFences(raw string) string {
	return strings.TrimSpace(fencesRe.ReplaceAllString(raw, ""))
}

func (g *generator) parseQuiz(raw string) ([]course.NewQuestion, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, ErrEmptyContent
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "invalid JSON")
	}
	if err = g.schema.Validate(doc); err != nil {
		return nil, errors.Wrap(err, "schema validation failed")
	}

	var generated []generatedQuestion
	if err = json.Unmarshal([]byte(body), &generated); err != nil {
		return nil, errors.Wrap(err, "decoding quiz")
	}

	questions := make([]course.NewQuestion, 0, len(generated))
	for _, gq := range generated {
		q := course.NewQuestion{Statement: strings.TrimSpace(gq.Statement), XP: defaultQuestionXP}
		if gq.XP != nil {
			q.XP = *gq.XP
		}
		for _, alt := range gq.Alternatives {
			q.Alternatives = append(q.Alternatives, course.NewAlternative{
				Text:      strings.TrimSpace(alt.Text),
				IsCorrect: alt.Correct,
			})
		}
		questions = append(questions, q)
	}
	return questions, nil
}
