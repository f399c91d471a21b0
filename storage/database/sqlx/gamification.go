package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
)

// creditQuery appends a ledger entry and moves the user's cached XP in one statement.
// A duplicate reading/quiz entry inserts nothing, so no row comes back.
const creditQuery = `
WITH entry AS (
	INSERT INTO point_transactions (id, user_id, chapter_id, kind, quantity, description, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (user_id, chapter_id, kind) WHERE kind IN ('reading', 'quiz') DO NOTHING
	RETURNING user_id, quantity
)
UPDATE users SET xp = users.xp + entry.quantity
FROM entry
WHERE users.id = entry.user_id
RETURNING users.xp`

type (
	entryRow struct {
		ID          string      `db:"id"`
		UserID      string      `db:"user_id"`
		ChapterID   null.String `db:"chapter_id"`
		Kind        string      `db:"kind"`
		Quantity    int         `db:"quantity"`
		Description string      `db:"description"`
		CreatedAt   time.Time   `db:"created_at"`
	}

	balanceRow struct {
		UserID     string `db:"user_id"`
		Username   string `db:"username"`
		CachedXP   int    `db:"cached_xp"`
		LedgerXP   int    `db:"ledger_xp"`
		EntryCount int    `db:"entry_count"`
	}

	leaderRow struct {
		UserID   string `db:"id"`
		Name     string `db:"name"`
		Username string `db:"username"`
		XP       int    `db:"xp"`
	}

	progressRow struct {
		ID          string    `db:"id"`
		UserID      string    `db:"user_id"`
		ChapterID   string    `db:"chapter_id"`
		StartedAt   time.Time `db:"started_at"`
		CompletedAt null.Time `db:"completed_at"`
	}

	medalRow struct {
		ID          string    `db:"id"`
		Name        string    `db:"name"`
		Description string    `db:"description"`
		MinPoints   int       `db:"min_points"`
		GrantedAt   null.Time `db:"granted_at"`
	}
)

func (r entryRow) entry() gamification.PointTransaction {
	return gamification.PointTransaction{
		ID:          r.ID,
		UserID:      r.UserID,
		ChapterID:   r.ChapterID.String,
		Kind:        gamification.Kind(r.Kind),
		Quantity:    r.Quantity,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func (r progressRow) record() gamification.ProgressRecord {
	rec := gamification.ProgressRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		ChapterID: r.ChapterID,
		StartedAt: r.StartedAt.UTC(),
	}
	if r.CompletedAt.Valid {
		completedAt := r.CompletedAt.Time.UTC()
		rec.CompletedAt = &completedAt
	}
	return rec
}

func (r medalRow) medal() gamification.Medal {
	return gamification.Medal{ID: r.ID, Name: r.Name, Description: r.Description, MinPoints: r.MinPoints}
}

// fkErr maps a foreign key violation to the not found error of the referenced table.
func fkErr(err error) error {
	switch pgConstraint(err) {
	case "point_transactions_user_id_fkey", "progress_records_user_id_fkey", "user_medals_user_id_fkey":
		return user.ErrNotFound
	case "point_transactions_chapter_id_fkey", "progress_records_chapter_id_fkey":
		return course.ErrChapterNotFound
	case "user_medals_medal_id_fkey":
		return gamification.ErrMedalNotFound
	}
	return nil
}

type ledgerRepository struct {
	repository
}

var _ gamification.LedgerRepository = (*ledgerRepository)(nil)

func NewLedgerRepository(exec core.DBExecutor) gamification.LedgerRepository {
	return &ledgerRepository{repository{exec: exec}}
}

func (repo ledgerRepository) LockUser(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error) {
	return repo.selectXP(ctx, userID, "FOR UPDATE", exec)
}

func (repo ledgerRepository) CachedXP(ctx context.Context, userID string, exec ...core.DBExecutor) (int, error) {
	return repo.selectXP(ctx, userID, "", exec)
}

func (repo ledgerRepository) selectXP(ctx context.Context, userID, suffix string, exec []core.DBExecutor) (int, error) {
	if !validID(userID) {
		return 0, user.ErrNotFound
	}
	builder := psql.Select("xp").
		From("users").
		Where(sq.Eq{"id": userID})
	if suffix != "" {
		builder = builder.Suffix(suffix)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	var xp int
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &xp, query, args...); err != nil {
		return 0, dbErr(err, "reading user XP", user.ErrNotFound)
	}
	return xp, nil
}

func (repo ledgerRepository) Credit(ctx context.Context, entry gamification.PointTransaction, exec ...core.DBExecutor) (int, error) {
	if !validID(entry.UserID) {
		return 0, user.ErrNotFound
	}
	chapterID := null.NewString(entry.ChapterID, entry.ChapterID != "")
	if chapterID.Valid && !validID(chapterID.String) {
		return 0, course.ErrChapterNotFound
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var xp int
	err := sqlx.GetContext(ctx, repo.getExec(exec), &xp, creditQuery,
		uuid.New().String(), entry.UserID, chapterID, string(entry.Kind), entry.Quantity, entry.Description,
		entry.CreatedAt.UTC(),
	)
	switch {
	case err == sql.ErrNoRows:
		return 0, gamification.ErrAlreadyAwarded
	case err != nil:
		if pgCode(err) == pgForeignKeyViolation {
			if fk := fkErr(err); fk != nil {
				return 0, fk
			}
		}
		return 0, dbErr(err, "crediting points", nil)
	}
	return xp, nil
}

func (repo ledgerRepository) HasEntry(ctx context.Context, userID, chapterID string, kind gamification.Kind, exec ...core.DBExecutor) (bool, error) {
	if !validID(userID) || !validID(chapterID) {
		return false, nil
	}
	query, args, err := psql.Select("COUNT(*) > 0").
		From("point_transactions").
		Where(sq.Eq{"user_id": userID, "chapter_id": chapterID, "kind": string(kind)}).
		ToSql()
	if err != nil {
		return false, err
	}
	var found bool
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &found, query, args...); err != nil {
		return false, dbErr(err, "looking up ledger entry", nil)
	}
	return found, nil
}

func (repo ledgerRepository) ListEntries(ctx context.Context, userID string, exec ...core.DBExecutor) ([]gamification.PointTransaction, error) {
	if !validID(userID) {
		return []gamification.PointTransaction{}, nil
	}
	query, args, err := psql.Select("id", "user_id", "chapter_id", "kind", "quantity", "description", "created_at").
		From("point_transactions").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("seq DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []entryRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, dbErr(err, "listing ledger entries", nil)
	}
	entries := make([]gamification.PointTransaction, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}

func (repo ledgerRepository) Balances(ctx context.Context, userID string, exec ...core.DBExecutor) ([]gamification.Balance, error) {
	qb := psql.Select(
		"u.id AS user_id",
		"u.username",
		"u.xp AS cached_xp",
		"COALESCE(SUM(p.quantity), 0) AS ledger_xp",
		"COUNT(p.id) AS entry_count",
	).
		From("users u").
		LeftJoin("point_transactions p ON p.user_id = u.id").
		GroupBy("u.id").
		OrderBy("u.username ASC")
	if userID != "" {
		if !validID(userID) {
			return []gamification.Balance{}, nil
		}
		qb = qb.Where(sq.Eq{"u.id": userID})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []balanceRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, dbErr(err, "computing balances", nil)
	}
	balances := make([]gamification.Balance, 0, len(rows))
	for _, r := range rows {
		balances = append(balances, gamification.Balance(r))
	}
	return balances, nil
}

func (repo ledgerRepository) Leaderboard(ctx context.Context, limit int, exec ...core.DBExecutor) ([]gamification.LeaderboardEntry, error) {
	qb := psql.Select("id", "name", "username", "xp").
		From("users").
		Where(sq.Eq{"is_active": true}).
		OrderBy("xp DESC", "username ASC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []leaderRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, dbErr(err, "building leaderboard", nil)
	}
	entries := make([]gamification.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, gamification.LeaderboardEntry{
			UserID:   r.UserID,
			Name:     r.Name,
			Username: r.Username,
			XP:       r.XP,
		})
	}
	return entries, nil
}

var progressColumns = []string{"id", "user_id", "chapter_id", "started_at", "completed_at"}

type progressRepository struct {
	repository
}

var _ gamification.ProgressRepository = (*progressRepository)(nil)

func NewProgressRepository(exec core.DBExecutor) gamification.ProgressRepository {
	return &progressRepository{repository{exec: exec}}
}

func (repo progressRepository) GetRecord(ctx context.Context, userID, chapterID string, exec ...core.DBExecutor) (gamification.ProgressRecord, error) {
	if !validID(userID) || !validID(chapterID) {
		return gamification.ProgressRecord{}, gamification.ErrNoProgress
	}
	query, args, err := psql.Select(progressColumns...).
		From("progress_records").
		Where(sq.Eq{"user_id": userID, "chapter_id": chapterID}).
		ToSql()
	if err != nil {
		return gamification.ProgressRecord{}, err
	}
	var row progressRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return gamification.ProgressRecord{}, dbErr(err, "finding progress record", gamification.ErrNoProgress)
	}
	return row.record(), nil
}

func (repo progressRepository) EnsureRecord(ctx context.Context, userID, chapterID string, at time.Time, exec ...core.DBExecutor) (gamification.ProgressRecord, error) {
	if !validID(userID) {
		return gamification.ProgressRecord{}, user.ErrNotFound
	}
	if !validID(chapterID) {
		return gamification.ProgressRecord{}, course.ErrChapterNotFound
	}
	query, args, err := psql.Insert("progress_records").
		Columns("id", "user_id", "chapter_id", "started_at").
		Values(uuid.New().String(), userID, chapterID, at.UTC()).
		Suffix("ON CONFLICT (user_id, chapter_id) DO NOTHING").
		ToSql()
	if err != nil {
		return gamification.ProgressRecord{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			if fk := fkErr(err); fk != nil {
				return gamification.ProgressRecord{}, fk
			}
		}
		return gamification.ProgressRecord{}, dbErr(err, "starting chapter", nil)
	}
	return repo.GetRecord(ctx, userID, chapterID, exec...)
}

func (repo progressRepository) MarkCompleted(ctx context.Context, userID, chapterID string, at time.Time, exec ...core.DBExecutor) (gamification.ProgressRecord, error) {
	if !validID(userID) || !validID(chapterID) {
		return gamification.ProgressRecord{}, gamification.ErrNoProgress
	}
	// the first completion date is kept
	query, args, err := psql.Update("progress_records").
		Set("completed_at", sq.Expr("COALESCE(completed_at, ?)", at.UTC())).
		Where(sq.Eq{"user_id": userID, "chapter_id": chapterID}).
		Suffix("RETURNING id, user_id, chapter_id, started_at, completed_at").
		ToSql()
	if err != nil {
		return gamification.ProgressRecord{}, err
	}
	var row progressRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return gamification.ProgressRecord{}, dbErr(err, "completing chapter", gamification.ErrNoProgress)
	}
	return row.record(), nil
}

func (repo progressRepository) ListRecords(ctx context.Context, userID string, exec ...core.DBExecutor) ([]gamification.ProgressRecord, error) {
	if !validID(userID) {
		return []gamification.ProgressRecord{}, nil
	}
	query, args, err := psql.Select(progressColumns...).
		From("progress_records").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("started_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []progressRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, dbErr(err, "listing progress records", nil)
	}
	records := make([]gamification.ProgressRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}

type medalRepository struct {
	repository
}

var _ gamification.MedalRepository = (*medalRepository)(nil)

func NewMedalRepository(exec core.DBExecutor) gamification.MedalRepository {
	return &medalRepository{repository{exec: exec}}
}

func (repo medalRepository) CreateMedal(ctx context.Context, medal gamification.Medal, exec ...core.DBExecutor) (gamification.Medal, error) {
	medal.ID = uuid.New().String()
	query, args, err := psql.Insert("medals").
		Columns("id", "name", "description", "min_points").
		Values(medal.ID, medal.Name, medal.Description, medal.MinPoints).
		ToSql()
	if err != nil {
		return gamification.Medal{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		return gamification.Medal{}, dbErr(err, "inserting medal", nil)
	}
	return medal, nil
}

func (repo medalRepository) selectMedals(ctx context.Context, qb sq.SelectBuilder, exec []core.DBExecutor) ([]medalRow, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []medalRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, dbErr(err, "listing medals", nil)
	}
	return rows, nil
}

func (repo medalRepository) ListMedals(ctx context.Context, exec ...core.DBExecutor) ([]gamification.Medal, error) {
	rows, err := repo.selectMedals(ctx, psql.Select("m.id", "m.name", "m.description", "m.min_points").
		From("medals m").
		OrderBy("m.min_points ASC", "m.name ASC"), exec)
	if err != nil {
		return nil, err
	}
	medals := make([]gamification.Medal, 0, len(rows))
	for _, r := range rows {
		medals = append(medals, r.medal())
	}
	return medals, nil
}

func (repo medalRepository) PendingMedals(ctx context.Context, userID string, xp int, exec ...core.DBExecutor) ([]gamification.Medal, error) {
	if !validID(userID) {
		return []gamification.Medal{}, nil
	}
	rows, err := repo.selectMedals(ctx, psql.Select("m.id", "m.name", "m.description", "m.min_points").
		From("medals m").
		Where(sq.LtOrEq{"m.min_points": xp}).
		Where("NOT EXISTS (SELECT 1 FROM user_medals um WHERE um.medal_id = m.id AND um.user_id = ?)", userID).
		OrderBy("m.min_points ASC", "m.name ASC"), exec)
	if err != nil {
		return nil, err
	}
	medals := make([]gamification.Medal, 0, len(rows))
	for _, r := range rows {
		medals = append(medals, r.medal())
	}
	return medals, nil
}

func (repo medalRepository) GrantMedal(ctx context.Context, userID, medalID string, at time.Time, exec ...core.DBExecutor) (bool, error) {
	if !validID(medalID) {
		return false, gamification.ErrMedalNotFound
	}
	if !validID(userID) {
		return false, user.ErrNotFound
	}
	query, args, err := psql.Insert("user_medals").
		Columns("user_id", "medal_id", "granted_at").
		Values(userID, medalID, at.UTC()).
		Suffix("ON CONFLICT (user_id, medal_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		if pgCode(err) == pgForeignKeyViolation {
			if fk := fkErr(err); fk != nil {
				return false, fk
			}
		}
		return false, dbErr(err, "granting medal", nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr(err, "granting medal", nil)
	}
	return n > 0, nil
}

func (repo medalRepository) ListUserMedals(ctx context.Context, userID string, exec ...core.DBExecutor) ([]gamification.EarnedMedal, error) {
	if !validID(userID) {
		return []gamification.EarnedMedal{}, nil
	}
	rows, err := repo.selectMedals(ctx, psql.Select("m.id", "m.name", "m.description", "m.min_points", "um.granted_at").
		From("user_medals um").
		Join("medals m ON m.id = um.medal_id").
		Where(sq.Eq{"um.user_id": userID}).
		OrderBy("um.granted_at DESC", "m.min_points DESC"), exec)
	if err != nil {
		return nil, err
	}
	earned := make([]gamification.EarnedMedal, 0, len(rows))
	for _, r := range rows {
		earned = append(earned, gamification.EarnedMedal{Medal: r.medal(), GrantedAt: r.GrantedAt.Time.UTC()})
	}
	return earned, nil
}
