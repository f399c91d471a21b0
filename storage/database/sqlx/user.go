package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/user"
)

var (
	userColumns = []string{
		"id", "name", "username", "email", "ru", "xp", "is_plus", "is_active", "roles", "password_hash",
		"created_at", "updated_at", "last_login",
	}
	userReturning = "RETURNING " + strings.Join(userColumns, ", ")
)

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	RU           string         `db:"ru"`
	XP           int            `db:"xp"`
	IsPlus       bool           `db:"is_plus"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username,
		Email:        r.Email,
		RU:           r.RU,
		XP:           r.XP,
		IsPlus:       r.IsPlus,
		IsActive:     r.IsActive,
		Roles:        r.Roles,
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    r.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	repository
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) user.Repository {
	return &userRepository{repository{exec: exec}}
}

func (repo userRepository) CheckUniqueness(ctx context.Context, username, email, ru string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	qb := psql.Select("username", "email", "ru").
		From("users").
		Where(sq.Or{sq.Eq{"username": username}, sq.Eq{"email": email}, sq.Eq{"ru": ru}}).
		Limit(1)
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		qb = qb.Where(sq.NotEq{"id": ids})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return err
	}

	var row userRow
	err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return dbErr(err, "checking user uniqueness", nil)
	}
	return uniquenessErr(row, username, email, ru)
}

func uniquenessErr(row userRow, username, email, ru string) error {
	switch {
	case username != "" && row.Username == username:
		return user.ErrUsernameExists
	case email != "" && row.Email == email:
		return user.ErrEmailExists
	case ru != "" && row.RU == ru:
		return user.ErrRUExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	if usr.PasswordHash == nil {
		usr.PasswordHash = []byte{} // no usable password
	}
	if usr.Roles == nil {
		usr.Roles = []string{}
	}
	query, args, err := psql.Insert("users").
		Columns(userColumns...).
		Values(
			usr.ID, usr.Name, usr.Username, usr.Email, usr.RU, 0, usr.IsPlus, usr.IsActive,
			pq.StringArray(usr.Roles), usr.PasswordHash, usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
			null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
		).
		Suffix(userReturning).
		ToSql()
	if err != nil {
		return user.User{}, err
	}

	var row userRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		if pgCode(err) == pgUniqueViolation {
			switch pgConstraint(err) {
			case "users_username_key":
				return user.User{}, user.ErrUsernameExists
			case "users_email_key":
				return user.User{}, user.ErrEmailExists
			case "users_ru_key":
				return user.User{}, user.ErrRUExists
			}
		}
		return user.User{}, dbErr(err, "inserting user", nil)
	}
	return row.user(), nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	qb := psql.Select(userColumns...).From("users").Limit(1)

	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		qb = qb.Where(sq.Eq{"username": filter.Username})
	case filter.Email != "":
		qb = qb.Where(sq.Eq{"email": filter.Email})
	case filter.RU != "":
		qb = qb.Where(sq.Eq{"ru": filter.RU})
	case len(filter.UsernameOrEmail) > 0:
		uname := filter.UsernameOrEmail[0]
		email := uname
		if len(filter.UsernameOrEmail) > 1 && filter.UsernameOrEmail[1] != "" {
			email = filter.UsernameOrEmail[1]
		}
		qb = qb.Where(sq.Or{sq.Eq{"username": uname}, sq.Eq{"email": email}})
	default:
		return user.User{}, user.ErrNotFound
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return user.User{}, err
	}
	var row userRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return user.User{}, dbErr(err, "finding user", user.ErrNotFound)
	}
	return row.user(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	qb := psql.Select(userColumns...).From("users")

	if filter != nil {
		// users with Name, Username, Email or RU matching the search keyword
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			qb = qb.Where(sq.Or{
				sq.ILike{"name": val}, sq.ILike{"username": val}, sq.ILike{"email": val}, sq.ILike{"ru": val},
			})
		}
		// users with any role that starts with any of the provided roles
		if len(filter.Roles) > 0 {
			roleConds := make(sq.Or, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roleConds = append(roleConds, sq.Expr("EXISTS (SELECT 1 FROM UNNEST(roles) user_role WHERE user_role ILIKE ?)", role+"%"))
			}
			qb = qb.Where(roleConds)
		}
		if filter.IsActive != nil {
			qb = qb.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if filter.IsPlus != nil {
			qb = qb.Where(sq.Eq{"is_plus": *filter.IsPlus})
		}
		if !filter.CreatedFrom.IsZero() {
			qb = qb.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
		}
		if !filter.CreatedTo.IsZero() {
			qb = qb.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
		}
	}

	for _, ord := range ordering {
		if user.OrderFields[ord.Field] {
			qb = qb.OrderBy(ord.String())
		}
	}
	qb = qb.OrderBy("id ASC")

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []userRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, dbErr(err, "querying users", nil)
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo userRepository) update(ctx context.Context, id string, set map[string]interface{}, exec []core.DBExecutor) (user.User, error) {
	if !validID(id) {
		return user.User{}, user.ErrNotFound
	}
	query, args, err := psql.Update("users").
		SetMap(set).
		Where(sq.Eq{"id": id}).
		Suffix(userReturning).
		ToSql()
	if err != nil {
		return user.User{}, err
	}
	var row userRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return user.User{}, dbErr(err, "updating user", user.ErrNotFound)
	}
	return row.user(), nil
}

func (repo userRepository) SetLastLogin(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (user.User, error) {
	return repo.update(ctx, id, map[string]interface{}{"last_login": at.UTC()}, exec)
}

func (repo userRepository) SetPasswordHash(ctx context.Context, id string, hash []byte, exec ...core.DBExecutor) (user.User, error) {
	return repo.update(ctx, id, map[string]interface{}{
		"password_hash": hash,
		"updated_at":    time.Now().UTC(),
	}, exec)
}

func (repo userRepository) SetPremium(ctx context.Context, id string, isPlus bool, exec ...core.DBExecutor) (user.User, error) {
	return repo.update(ctx, id, map[string]interface{}{
		"is_plus":    isPlus,
		"updated_at": time.Now().UTC(),
	}, exec)
}
