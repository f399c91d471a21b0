package course

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core"
)

var (
	// errors
	ErrTrailNotFound   = errors.New("trail not found")
	ErrChapterNotFound = errors.New("chapter not found")
	ErrOrderTaken      = errors.New("a chapter already holds this position in the trail")
	ErrNoQuestions     = errors.New("this chapter has no quiz yet")
)

const defaultCacheSize = 512

type (
	// Repository persists the catalogue. Every method takes an optional core.DBExecutor to join a transaction.
	Repository interface {
		CreateTrail(ctx context.Context, trail Trail, exec ...core.DBExecutor) (Trail, error)
		ListTrails(ctx context.Context, exec ...core.DBExecutor) ([]Trail, error)
		GetTrail(ctx context.Context, id string, exec ...core.DBExecutor) (Trail, error)
		CountChapters(ctx context.Context, trailID string, exec ...core.DBExecutor) (int, error)
		// CreateChapter returns ErrOrderTaken when (trail, order) is not unique.
		CreateChapter(ctx context.Context, ch Chapter, exec ...core.DBExecutor) (Chapter, error)
		GetChapter(ctx context.Context, id string, exec ...core.DBExecutor) (Chapter, error)
		GetChapterByOrder(ctx context.Context, trailID string, order int, exec ...core.DBExecutor) (Chapter, error)
		// ListChapters returns a trail's chapters by order, or every chapter when trailID is empty.
		ListChapters(ctx context.Context, trailID string, exec ...core.DBExecutor) ([]Chapter, error)
		UpdateChapterContent(ctx context.Context, id, content string, at time.Time, exec ...core.DBExecutor) (Chapter, error)
		CreateQuestions(ctx context.Context, questions []Question, exec ...core.DBExecutor) ([]Question, error)
		ListQuestions(ctx context.Context, chapterID string, exec ...core.DBExecutor) ([]Question, error)
	}

	Service interface {
		ListTrails(ctx context.Context) ([]Trail, error)
		GetTrail(ctx context.Context, id string) (Trail, error)
		GetChapter(ctx context.Context, id string) (Chapter, error)
		GetChapterByOrder(ctx context.Context, trailID string, order int) (Chapter, error)
		ListChapters(ctx context.Context, trailID string) ([]Chapter, error)
		CreateTrail(ctx context.Context, nt NewTrail) (Trail, error)
		AddChapter(ctx context.Context, nc NewChapter) (Chapter, error)
		UpdateChapterContent(ctx context.Context, id, content string) (Chapter, error)
		AddQuestions(ctx context.Context, chapterID string, nqs []NewQuestion) ([]Question, error)
		Questions(ctx context.Context, chapterID string) ([]Question, error)
		Grade(ctx context.Context, chapterID string, answers Answers) (QuizResult, error)
	}

	service struct {
		repo     Repository
		tx       core.Transactor
		validate *validator.Validate
		cache    *lru.Cache // trail/order key -> Chapter without content
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, tx core.Transactor, validate *validator.Validate, conf *core.Config) (Service, error) {
	size := defaultCacheSize
	if conf != nil && conf.Cache.ChapterCacheSize > 0 {
		size = conf.Cache.ChapterCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating chapter cache")
	}
	return &service{repo: repo, tx: tx, validate: validate, cache: cache}, nil
}

func orderKey(trailID string, order int) string {
	return fmt.Sprintf("%s/%d", trailID, order)
}

// cacheChapter keeps the chapter's position data only. Content is rewritten by other processes
// (the admin CLI) and is always read from the repository.
func (svc *service) cacheChapter(ch Chapter) {
	ch.Content = ""
	svc.cache.Add(orderKey(ch.TrailID, ch.Order), ch)
}

func (svc *service) evictChapter(ch Chapter) {
	svc.cache.Remove(orderKey(ch.TrailID, ch.Order))
}

func (svc *service) ListTrails(ctx context.Context) ([]Trail, error) {
	trails, err := svc.repo.ListTrails(ctx)
	if err != nil {
		return nil, err
	}
	chapters, err := svc.repo.ListChapters(ctx, "")
	if err != nil {
		return nil, err
	}
	byTrail := make(map[string][]Chapter, len(trails))
	for _, ch := range chapters {
		ch.Content = "" // listed without body
		byTrail[ch.TrailID] = append(byTrail[ch.TrailID], ch)
	}
	for i := range trails {
		trails[i].Chapters = byTrail[trails[i].ID]
	}
	return trails, nil
}

// GetTrail returns the trail along with its chapters, in order.
func (svc *service) GetTrail(ctx context.Context, id string) (Trail, error) {
	trail, err := svc.repo.GetTrail(ctx, id)
	if err != nil {
		return Trail{}, err
	}
	if trail.Chapters, err = svc.repo.ListChapters(ctx, trail.ID); err != nil {
		return Trail{}, err
	}
	return trail, nil
}

func (svc *service) GetChapter(ctx context.Context, id string) (Chapter, error) {
	ch, err := svc.repo.GetChapter(ctx, id)
	if err != nil {
		return Chapter{}, err
	}
	svc.cacheChapter(ch)
	return ch, nil
}

// GetChapterByOrder returns the chapter at a trail position, without its content.
func (svc *service) GetChapterByOrder(ctx context.Context, trailID string, order int) (Chapter, error) {
	if v, ok := svc.cache.Get(orderKey(trailID, order)); ok {
		return v.(Chapter), nil
	}
	ch, err := svc.repo.GetChapterByOrder(ctx, trailID, order)
	if err != nil {
		return Chapter{}, err
	}
	svc.cacheChapter(ch)
	ch.Content = ""
	return ch, nil
}

func (svc *service) ListChapters(ctx context.Context, trailID string) ([]Chapter, error) {
	return svc.repo.ListChapters(ctx, trailID)
}

func (svc *service) CreateTrail(ctx context.Context, nt NewTrail) (Trail, error) {
	nt.Clean()
	if err := svc.validate.Struct(nt); err != nil {
		return Trail{}, err
	}
	return svc.repo.CreateTrail(ctx, Trail{
		Title:       nt.Title,
		Description: nt.Description,
		CreatedAt:   time.Now().UTC(),
	})
}

// AddChapter appends a chapter at the end of its trail.
// Orders stay unique and contiguous: the new chapter always gets count+1.
func (svc *service) AddChapter(ctx context.Context, nc NewChapter) (Chapter, error) {
	nc.Clean()
	if err := svc.validate.Struct(nc); err != nil {
		return Chapter{}, err
	}

	var ch Chapter
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.repo.GetTrail(ctx, nc.TrailID, exec); err != nil {
			return err
		}
		count, err := svc.repo.CountChapters(ctx, nc.TrailID, exec)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		ch, err = svc.repo.CreateChapter(ctx, Chapter{
			TrailID:   nc.TrailID,
			Title:     nc.Title,
			Slug:      nc.Slug,
			Order:     count + 1,
			XPValue:   nc.XPValue,
			IsPremium: nc.IsPremium,
			Content:   nc.Content,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		return err
	})
	if err != nil {
		return Chapter{}, err
	}
	return ch, nil
}

func (svc *service) UpdateChapterContent(ctx context.Context, id, content string) (Chapter, error) {
	ch, err := svc.repo.UpdateChapterContent(ctx, id, content, time.Now().UTC())
	if err != nil {
		return Chapter{}, err
	}
	svc.evictChapter(ch)
	return ch, nil
}

// AddQuestions appends questions to a chapter's quiz. Each question needs exactly one correct alternative.
func (svc *service) AddQuestions(ctx context.Context, chapterID string, nqs []NewQuestion) ([]Question, error) {
	if _, err := svc.GetChapter(ctx, chapterID); err != nil {
		return nil, err
	}

	questions := make([]Question, 0, len(nqs))
	for i, nq := range nqs {
		nq.Statement = core.CleanString(nq.Statement)
		if err := svc.validate.Struct(nq); err != nil {
			return nil, err
		}
		q := Question{ChapterID: chapterID, Statement: nq.Statement, XP: nq.XP}
		var nCorrect int
		for _, na := range nq.Alternatives {
			if na.IsCorrect {
				nCorrect++
			}
			q.Alternatives = append(q.Alternatives, Alternative{Text: core.CleanString(na.Text), IsCorrect: na.IsCorrect})
		}
		if nCorrect != 1 {
			fld := fmt.Sprintf("questions[%d].alternatives", i)
			return nil, core.NewValidationError(
				errors.New("invalid alternatives"),
				core.FieldError{Field: fld, Error: "exactly one alternative must be correct"},
			)
		}
		questions = append(questions, q)
	}

	var created []Question
	err := svc.tx.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		created, err = svc.repo.CreateQuestions(ctx, questions, exec)
		return err
	})
	return created, err
}

func (svc *service) Questions(ctx context.Context, chapterID string) ([]Question, error) {
	if _, err := svc.GetChapter(ctx, chapterID); err != nil {
		return nil, err
	}
	return svc.repo.ListQuestions(ctx, chapterID)
}

// Grade scores answers against the chapter's quiz. Unanswered questions count as wrong.
func (svc *service) Grade(ctx context.Context, chapterID string, answers Answers) (QuizResult, error) {
	questions, err := svc.Questions(ctx, chapterID)
	if err != nil {
		return QuizResult{}, err
	}
	if len(questions) == 0 {
		return QuizResult{}, ErrNoQuestions
	}

	res := QuizResult{Total: len(questions), Details: make([]AnswerDetail, 0, len(questions))}
	for _, q := range questions {
		detail := AnswerDetail{QuestionID: q.ID, Statement: q.Statement, ChosenID: answers[q.ID]}
		if correct, ok := q.Correct(); ok {
			detail.CorrectID = correct.ID
			detail.CorrectText = correct.Text
			detail.IsCorrect = detail.ChosenID != "" && detail.ChosenID == correct.ID
		}
		if detail.IsCorrect {
			res.Correct++
		}
		res.Details = append(res.Details, detail)
	}
	res.Percent = ScorePercent(res.Correct, res.Total)
	return res, nil
}
