package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrRUExists       = errors.New("a user with this RU already exists")
	ErrEmptyPassword  = errors.New("password cannot be empty")
)

type (
	// Repository persists users. Every method takes an optional core.DBExecutor to join a transaction.
	// None of them writes User.XP: the point ledger owns it.
	Repository interface {
		// CheckUniqueness returns one of ErrUsernameExists, ErrEmailExists or ErrRUExists on conflict.
		CheckUniqueness(ctx context.Context, username, email, ru string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Username, User.Email or User.RU.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		SetLastLogin(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (User, error)
		SetPremium(ctx context.Context, id string, isPlus bool, exec ...core.DBExecutor) (User, error)
		SetPasswordHash(ctx context.Context, id string, hash []byte, exec ...core.DBExecutor) (User, error)
	}

	Service interface {
		Register(ctx context.Context, nu NewUser) (User, error)
		Create(ctx context.Context, nu NewUser, roles ...string) (User, error)
		CheckUniqueness(ctx context.Context, uname, email, ru string, exclUsers ...User) error
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		GetByRU(ctx context.Context, ru string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		ActivatePremium(ctx context.Context, id string) (User, error)
		// ResetPassword sets the password of the user found by username or email. No policy is applied.
		ResetPassword(ctx context.Context, uname, pwd string) (User, error)
	}

	service struct {
		repo     Repository
		validate *validator.Validate
		mailSvc  core.EmailService
		conf     *core.Config
	}
)

var _ Service = (*service)(nil)

// NewService expects validate to have gone through core.InitValidators and RegisterValidators.
func NewService(repo Repository, validate *validator.Validate, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:     repo,
		validate: validate,
		mailSvc:  mailSvc,
		conf:     conf,
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, uname, email, ru string, exclUsers ...User) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, email, ru, exclUsers); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		case ErrRUExists:
			field = "ru"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Register signs up a new student and sends them a welcome email.
func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	usr, err := svc.Create(ctx, nu, RoleStudent)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeMail(usr)
	return usr, nil
}

// Create validates nu and stores the user with the given roles.
func (svc *service) Create(ctx context.Context, nu NewUser, roles ...string) (User, error) {
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, err
	}
	if err := svc.CheckUniqueness(ctx, nu.Username, nu.Email, nu.RU); err != nil {
		return User{}, err
	}

	if len(roles) == 0 {
		roles = []string{RoleStudent}
	}
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		RU:        nu.RU,
		IsActive:  true,
		Roles:     roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: []string{uname, uname}})
}

func (svc *service) GetByRU(ctx context.Context, ru string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{RU: core.CleanString(ru)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	if filter != nil {
		filter.Clean()
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "username", Ascending: true}}
	}
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	return svc.repo.SetLastLogin(ctx, usr.ID, time.Now().UTC())
}

// ActivatePremium flips the premium flag on. Activating an already premium account is a no-op.
func (svc *service) ActivatePremium(ctx context.Context, id string) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if usr.IsPlus {
		return usr, nil
	}
	return svc.repo.SetPremium(ctx, id, true)
}

func (svc *service) ResetPassword(ctx context.Context, uname, pwd string) (User, error) {
	if pwd == "" {
		return User{}, core.NewValidationError(ErrEmptyPassword, core.FieldError{Field: "password", Error: ErrEmptyPassword.Error()})
	}
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return User{}, err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.SetPasswordHash(ctx, usr.ID, usr.PasswordHash)
}

func (svc *service) sendWelcomeMail(usr User) {
	if svc.mailSvc == nil {
		return
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Welcome aboard!",
		TemplateName: "welcome",
		TemplateData: map[string]interface{}{"Name": usr.Name, "RU": usr.RU},
	}
	if svc.conf != nil {
		msg.SetFrontendBaseURL(svc.conf.FrontendBaseURL)
	}
	svc.mailSvc.SendMessages(msg)
}
