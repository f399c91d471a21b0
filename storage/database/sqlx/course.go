package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/course"
)

var chapterColumns = []string{
	"id", "trail_id", "title", "slug", "position", "xp_value", "is_premium", "content", "created_at", "updated_at",
}

type (
	trailRow struct {
		ID          string    `db:"id"`
		Title       string    `db:"title"`
		Description string    `db:"description"`
		CreatedAt   time.Time `db:"created_at"`
	}

	chapterRow struct {
		ID        string    `db:"id"`
		TrailID   string    `db:"trail_id"`
		Title     string    `db:"title"`
		Slug      string    `db:"slug"`
		Order     int       `db:"position"`
		XPValue   int       `db:"xp_value"`
		IsPremium bool      `db:"is_premium"`
		Content   string    `db:"content"`
		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	questionRow struct {
		ID        string `db:"id"`
		ChapterID string `db:"chapter_id"`
		Statement string `db:"statement"`
		XP        int    `db:"xp"`
	}

	alternativeRow struct {
		ID         string `db:"id"`
		QuestionID string `db:"question_id"`
		Text       string `db:"text"`
		IsCorrect  bool   `db:"is_correct"`
	}
)

func (r trailRow) trail() course.Trail {
	return course.Trail{ID: r.ID, Title: r.Title, Description: r.Description, CreatedAt: r.CreatedAt.UTC()}
}

func (r chapterRow) chapter() course.Chapter {
	return course.Chapter{
		ID:        r.ID,
		TrailID:   r.TrailID,
		Title:     r.Title,
		Slug:      r.Slug,
		Order:     r.Order,
		XPValue:   r.XPValue,
		IsPremium: r.IsPremium,
		Content:   r.Content,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type courseRepository struct {
	repository
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(exec core.DBExecutor) course.Repository {
	return &courseRepository{repository{exec: exec}}
}

func (repo courseRepository) CreateTrail(ctx context.Context, trail course.Trail, exec ...core.DBExecutor) (course.Trail, error) {
	trail.ID = uuid.New().String()
	query, args, err := psql.Insert("trails").
		Columns("id", "title", "description", "created_at").
		Values(trail.ID, trail.Title, trail.Description, trail.CreatedAt.UTC()).
		Suffix("RETURNING id, title, description, created_at").
		ToSql()
	if err != nil {
		return course.Trail{}, err
	}
	var row trailRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return course.Trail{}, dbErr(err, "inserting trail", nil)
	}
	return row.trail(), nil
}

func (repo courseRepository) ListTrails(ctx context.Context, exec ...core.DBExecutor) ([]course.Trail, error) {
	query, args, err := psql.Select("id", "title", "description", "created_at").
		From("trails").
		OrderBy("created_at ASC", "title ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []trailRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, dbErr(err, "listing trails", nil)
	}
	trails := make([]course.Trail, 0, len(rows))
	for _, r := range rows {
		trails = append(trails, r.trail())
	}
	return trails, nil
}

func (repo courseRepository) GetTrail(ctx context.Context, id string, exec ...core.DBExecutor) (course.Trail, error) {
	if !validID(id) {
		return course.Trail{}, course.ErrTrailNotFound
	}
	query, args, err := psql.Select("id", "title", "description", "created_at").
		From("trails").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return course.Trail{}, err
	}
	var row trailRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return course.Trail{}, dbErr(err, "finding trail", course.ErrTrailNotFound)
	}
	return row.trail(), nil
}

func (repo courseRepository) CountChapters(ctx context.Context, trailID string, exec ...core.DBExecutor) (int, error) {
	if !validID(trailID) {
		return 0, nil
	}
	query, args, err := psql.Select("COUNT(*)").
		From("chapters").
		Where(sq.Eq{"trail_id": trailID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &n, query, args...); err != nil {
		return 0, dbErr(err, "counting chapters", nil)
	}
	return n, nil
}

func (repo courseRepository) CreateChapter(ctx context.Context, ch course.Chapter, exec ...core.DBExecutor) (course.Chapter, error) {
	if !validID(ch.TrailID) {
		return course.Chapter{}, course.ErrTrailNotFound
	}
	ch.ID = uuid.New().String()
	query, args, err := psql.Insert("chapters").
		Columns(chapterColumns...).
		Values(
			ch.ID, ch.TrailID, ch.Title, ch.Slug, ch.Order, ch.XPValue, ch.IsPremium, ch.Content,
			ch.CreatedAt.UTC(), ch.UpdatedAt.UTC(),
		).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return course.Chapter{}, err
	}
	var row chapterRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return course.Chapter{}, course.ErrOrderTaken
		case pgForeignKeyViolation:
			return course.Chapter{}, course.ErrTrailNotFound
		}
		return course.Chapter{}, dbErr(err, "inserting chapter", nil)
	}
	return row.chapter(), nil
}

func (repo courseRepository) getChapter(ctx context.Context, where sq.Eq, exec []core.DBExecutor) (course.Chapter, error) {
	query, args, err := psql.Select(chapterColumns...).From("chapters").Where(where).ToSql()
	if err != nil {
		return course.Chapter{}, err
	}
	var row chapterRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return course.Chapter{}, dbErr(err, "finding chapter", course.ErrChapterNotFound)
	}
	return row.chapter(), nil
}

func (repo courseRepository) GetChapter(ctx context.Context, id string, exec ...core.DBExecutor) (course.Chapter, error) {
	if !validID(id) {
		return course.Chapter{}, course.ErrChapterNotFound
	}
	return repo.getChapter(ctx, sq.Eq{"id": id}, exec)
}

func (repo courseRepository) GetChapterByOrder(ctx context.Context, trailID string, order int, exec ...core.DBExecutor) (course.Chapter, error) {
	if !validID(trailID) {
		return course.Chapter{}, course.ErrChapterNotFound
	}
	return repo.getChapter(ctx, sq.Eq{"trail_id": trailID, "position": order}, exec)
}

func (repo courseRepository) ListChapters(ctx context.Context, trailID string, exec ...core.DBExecutor) ([]course.Chapter, error) {
	qb := psql.Select(chapterColumns...).From("chapters").OrderBy("trail_id ASC", "position ASC")
	if trailID != "" {
		if !validID(trailID) {
			return []course.Chapter{}, nil
		}
		qb = qb.Where(sq.Eq{"trail_id": trailID})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []chapterRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, dbErr(err, "listing chapters", nil)
	}
	chapters := make([]course.Chapter, 0, len(rows))
	for _, r := range rows {
		chapters = append(chapters, r.chapter())
	}
	return chapters, nil
}

func (repo courseRepository) UpdateChapterContent(ctx context.Context, id, content string, at time.Time, exec ...core.DBExecutor) (course.Chapter, error) {
	if !validID(id) {
		return course.Chapter{}, course.ErrChapterNotFound
	}
	query, args, err := psql.Update("chapters").
		SetMap(map[string]interface{}{"content": content, "updated_at": at.UTC()}).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return course.Chapter{}, err
	}
	var row chapterRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return course.Chapter{}, dbErr(err, "updating chapter content", course.ErrChapterNotFound)
	}
	return row.chapter(), nil
}

// CreateQuestions inserts the questions and their alternatives in input order.
// Callers run it in a transaction so that a quiz is never stored half-way.
func (repo courseRepository) CreateQuestions(ctx context.Context, questions []course.Question, exec ...core.DBExecutor) ([]course.Question, error) {
	db := repo.getExec(exec)
	created := make([]course.Question, 0, len(questions))

	for _, q := range questions {
		if !validID(q.ChapterID) {
			return nil, course.ErrChapterNotFound
		}
		q.ID = uuid.New().String()
		query, args, err := psql.Insert("questions").
			Columns("id", "chapter_id", "statement", "xp").
			Values(q.ID, q.ChapterID, q.Statement, q.XP).
			ToSql()
		if err != nil {
			return nil, err
		}
		if _, err = db.ExecContext(ctx, query, args...); err != nil {
			if pgCode(err) == pgForeignKeyViolation {
				return nil, course.ErrChapterNotFound
			}
			return nil, dbErr(err, "inserting question", nil)
		}

		if len(q.Alternatives) > 0 {
			qb := psql.Insert("alternatives").Columns("id", "question_id", "text", "is_correct")
			alts := make([]course.Alternative, 0, len(q.Alternatives))
			for _, alt := range q.Alternatives {
				alt.ID = uuid.New().String()
				alt.QuestionID = q.ID
				qb = qb.Values(alt.ID, alt.QuestionID, alt.Text, alt.IsCorrect)
				alts = append(alts, alt)
			}
			if query, args, err = qb.ToSql(); err != nil {
				return nil, err
			}
			if _, err = db.ExecContext(ctx, query, args...); err != nil {
				return nil, dbErr(err, "inserting alternatives", nil)
			}
			q.Alternatives = alts
		}
		created = append(created, q)
	}
	return created, nil
}

func (repo courseRepository) ListQuestions(ctx context.Context, chapterID string, exec ...core.DBExecutor) ([]course.Question, error) {
	if !validID(chapterID) {
		return []course.Question{}, nil
	}
	db := repo.getExec(exec)

	query, args, err := psql.Select("id", "chapter_id", "statement", "xp").
		From("questions").
		Where(sq.Eq{"chapter_id": chapterID}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var qRows []questionRow
	if err = sqlx.SelectContext(ctx, db, &qRows, query, args...); err != nil {
		return nil, dbErr(err, "listing questions", nil)
	}
	if len(qRows) == 0 {
		return []course.Question{}, nil
	}

	ids := make([]string, 0, len(qRows))
	for _, r := range qRows {
		ids = append(ids, r.ID)
	}
	query, args, err = psql.Select("id", "question_id", "text", "is_correct").
		From("alternatives").
		Where(sq.Eq{"question_id": ids}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var aRows []alternativeRow
	if err = sqlx.SelectContext(ctx, db, &aRows, query, args...); err != nil {
		return nil, dbErr(err, "listing alternatives", nil)
	}
	alts := make(map[string][]course.Alternative, len(qRows))
	for _, a := range aRows {
		alts[a.QuestionID] = append(alts[a.QuestionID], course.Alternative{
			ID:         a.ID,
			QuestionID: a.QuestionID,
			Text:       a.Text,
			IsCorrect:  a.IsCorrect,
		})
	}

	questions := make([]course.Question, 0, len(qRows))
	for _, r := range qRows {
		questions = append(questions, course.Question{
			ID:           r.ID,
			ChapterID:    r.ChapterID,
			Statement:    r.Statement,
			XP:           r.XP,
			Alternatives: alts[r.ID],
		})
	}
	return questions, nil
}
