package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateTrail(ctx context.Context, trail course.Trail, exec ...core.DBExecutor) (course.Trail, error) {
	defer repo.db.lock(exec)()

	trail.ID = uuid.New().String()
	trail.Chapters = nil
	repo.db.trails[trail.ID] = trail
	return trail, nil
}

func (repo *courseRepository) ListTrails(ctx context.Context, exec ...core.DBExecutor) ([]course.Trail, error) {
	defer repo.db.rlock(exec)()

	trails := make([]course.Trail, 0, len(repo.db.trails))
	for _, t := range repo.db.trails {
		trails = append(trails, t)
	}
	sort.Slice(trails, func(i, j int) bool {
		if !trails[i].CreatedAt.Equal(trails[j].CreatedAt) {
			return trails[i].CreatedAt.Before(trails[j].CreatedAt)
		}
		return trails[i].Title < trails[j].Title
	})
	return trails, nil
}

func (repo *courseRepository) GetTrail(ctx context.Context, id string, exec ...core.DBExecutor) (course.Trail, error) {
	defer repo.db.rlock(exec)()

	if t, ok := repo.db.trails[id]; ok {
		return t, nil
	}
	return course.Trail{}, course.ErrTrailNotFound
}

func (repo *courseRepository) CountChapters(ctx context.Context, trailID string, exec ...core.DBExecutor) (int, error) {
	defer repo.db.rlock(exec)()

	var n int
	for _, ch := range repo.db.chapters {
		if ch.TrailID == trailID {
			n++
		}
	}
	return n, nil
}

func (repo *courseRepository) CreateChapter(ctx context.Context, ch course.Chapter, exec ...core.DBExecutor) (course.Chapter, error) {
	defer repo.db.lock(exec)()

	if _, ok := repo.db.trails[ch.TrailID]; !ok {
		return course.Chapter{}, course.ErrTrailNotFound
	}
	for _, other := range repo.db.chapters {
		if other.TrailID == ch.TrailID && other.Order == ch.Order {
			return course.Chapter{}, course.ErrOrderTaken
		}
	}
	ch.ID = uuid.New().String()
	repo.db.chapters[ch.ID] = ch
	return ch, nil
}

func (repo *courseRepository) GetChapter(ctx context.Context, id string, exec ...core.DBExecutor) (course.Chapter, error) {
	defer repo.db.rlock(exec)()

	if ch, ok := repo.db.chapters[id]; ok {
		return ch, nil
	}
	return course.Chapter{}, course.ErrChapterNotFound
}

func (repo *courseRepository) GetChapterByOrder(ctx context.Context, trailID string, order int, exec ...core.DBExecutor) (course.Chapter, error) {
	defer repo.db.rlock(exec)()

	for _, ch := range repo.db.chapters {
		if ch.TrailID == trailID && ch.Order == order {
			return ch, nil
		}
	}
	return course.Chapter{}, course.ErrChapterNotFound
}

func (repo *courseRepository) ListChapters(ctx context.Context, trailID string, exec ...core.DBExecutor) ([]course.Chapter, error) {
	defer repo.db.rlock(exec)()

	chapters := make([]course.Chapter, 0)
	for _, ch := range repo.db.chapters {
		if trailID == "" || ch.TrailID == trailID {
			chapters = append(chapters, ch)
		}
	}
	sort.Slice(chapters, func(i, j int) bool {
		if chapters[i].TrailID != chapters[j].TrailID {
			return chapters[i].TrailID < chapters[j].TrailID
		}
		return chapters[i].Order < chapters[j].Order
	})
	return chapters, nil
}

func (repo *courseRepository) UpdateChapterContent(ctx context.Context, id, content string, at time.Time, exec ...core.DBExecutor) (course.Chapter, error) {
	defer repo.db.lock(exec)()

	ch, ok := repo.db.chapters[id]
	if !ok {
		return course.Chapter{}, course.ErrChapterNotFound
	}
	ch.Content = content
	ch.UpdatedAt = at
	repo.db.chapters[id] = ch
	return ch, nil
}

func (repo *courseRepository) CreateQuestions(ctx context.Context, questions []course.Question, exec ...core.DBExecutor) ([]course.Question, error) {
	defer repo.db.lock(exec)()

	created := make([]course.Question, 0, len(questions))
	for _, q := range questions {
		if _, ok := repo.db.chapters[q.ChapterID]; !ok {
			return nil, course.ErrChapterNotFound
		}
		q.ID = uuid.New().String()
		alts := make([]course.Alternative, 0, len(q.Alternatives))
		for _, alt := range q.Alternatives {
			alt.ID = uuid.New().String()
			alt.QuestionID = q.ID
			alts = append(alts, alt)
		}
		q.Alternatives = alts
		repo.db.questions[q.ID] = q
		repo.db.seq++
		repo.db.questionSeq[q.ID] = repo.db.seq
		created = append(created, q)
	}
	return created, nil
}

func (repo *courseRepository) ListQuestions(ctx context.Context, chapterID string, exec ...core.DBExecutor) ([]course.Question, error) {
	defer repo.db.rlock(exec)()

	questions := make([]course.Question, 0)
	for _, q := range repo.db.questions {
		if q.ChapterID == chapterID {
			questions = append(questions, q)
		}
	}
	sort.Slice(questions, func(i, j int) bool {
		return repo.db.questionSeq[questions[i].ID] < repo.db.questionSeq[questions[j].ID]
	})
	return questions, nil
}
