package content

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core/course"
)

// Service stores generated material on the catalogue's chapters.
// A failed generation writes nothing: the chapter keeps its current content and quiz.
type Service interface {
	// FillChapter generates the chapter's lesson from its title. Chapters that already have content
	// are left alone unless overwrite is set.
	FillChapter(ctx context.Context, chapterID string, overwrite bool) (course.Chapter, error)
	// FillQuiz generates questions from the chapter's content and appends them to its quiz.
	FillQuiz(ctx context.Context, chapterID string) ([]course.Question, error)
}

type service struct {
	gen     Generator
	courses course.Service
}

var _ Service = (*service)(nil)

func NewService(gen Generator, courses course.Service) Service {
	return &service{gen: gen, courses: courses}
}

func (svc *service) FillChapter(ctx context.Context, chapterID string, overwrite bool) (course.Chapter, error) {
	ch, err := svc.courses.GetChapter(ctx, chapterID)
	if err != nil {
		return course.Chapter{}, errors.Wrap(err, "finding chapter")
	}
	if strings.TrimSpace(ch.Content) != "" && !overwrite {
		return ch, nil
	}

	html, err := svc.gen.GenerateLesson(ctx, ch.Title)
	if err != nil {
		return course.Chapter{}, errors.Wrapf(err, "generating content for %q", ch.Title)
	}
	ch, err = svc.courses.UpdateChapterContent(ctx, ch.ID, html)
	return ch, errors.Wrap(err, "saving chapter content")
}

func (svc *service) FillQuiz(ctx context.Context, chapterID string) ([]course.Question, error) {
	ch, err := svc.courses.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, errors.Wrap(err, "finding chapter")
	}

	nqs, err := svc.gen.GenerateQuiz(ctx, ch.Content)
	if err != nil {
		return nil, errors.Wrapf(err, "generating quiz for %q", ch.Title)
	}
	questions, err := svc.courses.AddQuestions(ctx, ch.ID, nqs)
	return questions, errors.Wrap(err, "saving quiz")
}
