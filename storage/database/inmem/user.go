package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email, ru string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	defer repo.db.rlock(exec)()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range repo.db.users {
		if excluded[usr.ID] {
			continue
		}
		switch {
		case username != "" && usr.Username == username:
			return user.ErrUsernameExists
		case email != "" && usr.Email == email:
			return user.ErrEmailExists
		case ru != "" && usr.RU == ru:
			return user.ErrRUExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.lock(exec)()

	usr.ID = uuid.New().String()
	usr.XP = 0
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	defer repo.db.rlock(exec)()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}

	var uname, email string
	if len(filter.UsernameOrEmail) > 0 {
		uname = filter.UsernameOrEmail[0]
		email = uname
		if len(filter.UsernameOrEmail) > 1 && filter.UsernameOrEmail[1] != "" {
			email = filter.UsernameOrEmail[1]
		}
	}

	for _, usr := range repo.db.users {
		switch {
		case filter.Username != "" && usr.Username == filter.Username,
			filter.Email != "" && usr.Email == filter.Email,
			filter.RU != "" && usr.RU == filter.RU,
			uname != "" && (usr.Username == uname || usr.Email == email):
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	defer repo.db.rlock(exec)()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if filter == nil || matchUser(usr, filter) {
			users = append(users, usr)
		}
	}

	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareUsers(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter.Search != "" {
		s := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(usr.Name), s) &&
			!strings.Contains(usr.Username, s) &&
			!strings.Contains(usr.Email, s) &&
			!strings.Contains(usr.RU, s) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		var hasRole bool
		for _, role := range filter.Roles {
			if usr.RoleStartsWith(role) {
				hasRole = true
				break
			}
		}
		if !hasRole {
			return false
		}
	}
	if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
		return false
	}
	if filter.IsPlus != nil && usr.IsPlus != *filter.IsPlus {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func compareUsers(a, b user.User, field string) int {
	switch field {
	case "name":
		return strings.Compare(a.Name, b.Name)
	case "username":
		return strings.Compare(a.Username, b.Username)
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "ru":
		return strings.Compare(a.RU, b.RU)
	case "xp":
		return a.XP - b.XP
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	}
	return 0
}

func (repo *userRepository) update(id string, exec []core.DBExecutor, fn func(usr *user.User)) (user.User, error) {
	defer repo.db.lock(exec)()

	usr, ok := repo.db.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	fn(&usr)
	repo.db.users[id] = usr
	return usr, nil
}

func (repo *userRepository) SetLastLogin(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (user.User, error) {
	return repo.update(id, exec, func(usr *user.User) {
		usr.LastLogin = at
	})
}

func (repo *userRepository) SetPremium(ctx context.Context, id string, isPlus bool, exec ...core.DBExecutor) (user.User, error) {
	return repo.update(id, exec, func(usr *user.User) {
		usr.IsPlus = isPlus
		usr.UpdatedAt = time.Now().UTC()
	})
}

func (repo *userRepository) SetPasswordHash(ctx context.Context, id string, hash []byte, exec ...core.DBExecutor) (user.User, error) {
	return repo.update(id, exec, func(usr *user.User) {
		usr.PasswordHash = hash
		usr.UpdatedAt = time.Now().UTC()
	})
}
