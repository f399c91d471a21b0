// Package testutil holds the helpers shared by the packages' tests.
package testutil

import (
	"context"
	"net/mail"
	"os"
	"strconv"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
	emailsvc "github.com/trezcool/gamifica/services/email"
	logsvc "github.com/trezcool/gamifica/services/logger"
	"github.com/trezcool/gamifica/storage/database"
	inmemdb "github.com/trezcool/gamifica/storage/database/inmem"
)

const testDatabaseURLEnv = "TEST_DATABASE_URL"

// Conf returns the configuration tests run with.
func Conf() *core.Config {
	bands, _ := core.ParseRankBands("Novice:0,Apprentice:100,Explorer:250,Specialist:500,Master:1000")
	return &core.Config{
		AppName:          "Gamifica",
		Build:            "test",
		Env:              "TEST",
		TestMode:         true,
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "Gamifica", Address: "noreply@localhost"},
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Reward:    core.RewardConfig{ReadingSharePercent: 30, PassPercent: 70},
		Rank:      core.RankConfig{Bands: bands},
		Dashboard: core.DashboardConfig{LeaderboardSize: 5},
		Cache:     core.CacheConfig{ChapterCacheSize: 64},
	}
}

// NewValidator returns a validator with every custom tag and translation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, ru, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		RU:        ru,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// PrepareDB opens the database named by TEST_DATABASE_URL, migrates it and empties every table.
// The test is skipped when the variable is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	rawURL := os.Getenv(testDatabaseURLEnv)
	if rawURL == "" {
		t.Skipf("%s not set", testDatabaseURLEnv)
	}
	ctx := context.Background()

	db, err := database.OpenURL(ctx, rawURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db.DB, "up"))
	_, err = db.ExecContext(ctx, `TRUNCATE user_medals, medals, point_transactions, progress_records,
		alternatives, questions, chapters, trails, users CASCADE`)
	require.NoError(t, err)
	return db
}

// Stack is the full service graph on the in-memory store.
type Stack struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	Validate   *validator.Validate
	Translator ut.Translator
	Logger     core.Logger
	Mail       *emailsvc.ConsoleServiceMock

	UserRepo     user.Repository
	CourseRepo   course.Repository
	LedgerRepo   gamification.LedgerRepository
	ProgressRepo gamification.ProgressRepository
	MedalRepo    gamification.MedalRepository

	Users    user.Service
	Courses  course.Service
	Gamified gamification.Service
}

type StackOption func(*Stack)

// WithMedalRepository swaps the medal repository, eg. for one that fails on purpose.
func WithMedalRepository(wrap func(gamification.MedalRepository) gamification.MedalRepository) StackOption {
	return func(s *Stack) { s.MedalRepo = wrap(s.MedalRepo) }
}

// WithLedgerRepository swaps the ledger repository.
func WithLedgerRepository(wrap func(gamification.LedgerRepository) gamification.LedgerRepository) StackOption {
	return func(s *Stack) { s.LedgerRepo = wrap(s.LedgerRepo) }
}

func NewStack(t *testing.T, opts ...StackOption) *Stack {
	s := &Stack{Conf: Conf(), DB: inmemdb.Open(), Logger: logsvc.NewNopLogger()}
	s.Validate, s.Translator = NewValidator()
	core.ParseEmailTemplates(s.Logger, true /* strict */)
	s.Mail = emailsvc.NewConsoleServiceMock(s.Conf, s.Logger)

	s.UserRepo = inmemdb.NewUserRepository(s.DB)
	s.CourseRepo = inmemdb.NewCourseRepository(s.DB)
	s.LedgerRepo = inmemdb.NewLedgerRepository(s.DB)
	s.ProgressRepo = inmemdb.NewProgressRepository(s.DB)
	s.MedalRepo = inmemdb.NewMedalRepository(s.DB)
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.Users = user.NewService(s.UserRepo, s.Validate, s.Mail, s.Conf)
	s.Courses, err = course.NewService(s.CourseRepo, s.DB, s.Validate, s.Conf)
	require.NoError(t, err)
	s.Gamified, err = gamification.NewService(
		s.Users, s.Courses, s.LedgerRepo, s.ProgressRepo, s.MedalRepo, s.DB, s.Mail, s.Logger, s.Conf,
	)
	require.NoError(t, err)
	return s
}

// Student creates an active student.
func (s *Stack) Student(t *testing.T, uname string) user.User {
	return CreateUser(t, s.UserRepo, "Student "+uname, uname, uname+"@test.cd", ru(uname), "", []string{user.RoleStudent}, true)
}

// Admin creates an active admin.
func (s *Stack) Admin(t *testing.T, uname string) user.User {
	return CreateUser(t, s.UserRepo, "Admin "+uname, uname, uname+"@test.cd", ru(uname), "", []string{user.RoleAdmin}, true)
}

// ru derives a stable academic ID from a username.
func ru(uname string) string {
	sum := 10000
	for i, r := range uname {
		sum += (i + 1) * int(r)
	}
	return "2024" + strconv.Itoa(sum)
}

// Trail creates a trail whose chapters are worth the given XP values, in order.
// Chapters listed in premium are premium (1-based orders).
func (s *Stack) Trail(t *testing.T, title string, xpValues []int, premium ...int) (course.Trail, []course.Chapter) {
	ctx := context.Background()
	trail, err := s.Courses.CreateTrail(ctx, course.NewTrail{Title: title})
	require.NoError(t, err)

	isPremium := make(map[int]bool, len(premium))
	for _, order := range premium {
		isPremium[order] = true
	}
	chapters := make([]course.Chapter, 0, len(xpValues))
	for i, xp := range xpValues {
		ch, err := s.Courses.AddChapter(ctx, course.NewChapter{
			TrailID:   trail.ID,
			Title:     title + " chapter " + strconv.Itoa(i+1),
			XPValue:   xp,
			IsPremium: isPremium[i+1],
			Content:   "<h1>" + title + "</h1>",
		})
		require.NoError(t, err)
		chapters = append(chapters, ch)
	}
	return trail, chapters
}

// Quiz gives the chapter n questions whose first alternative is the correct one.
func (s *Stack) Quiz(t *testing.T, chapterID string, n int) []course.Question {
	nqs := make([]course.NewQuestion, 0, n)
	for i := 0; i < n; i++ {
		nqs = append(nqs, course.NewQuestion{
			Statement: "Question " + strconv.Itoa(i+1) + "?",
			XP:        10,
			Alternatives: []course.NewAlternative{
				{Text: "right", IsCorrect: true},
				{Text: "wrong"},
				{Text: "also wrong"},
				{Text: "still wrong"},
			},
		})
	}
	questions, err := s.Courses.AddQuestions(context.Background(), chapterID, nqs)
	require.NoError(t, err)
	return questions
}

// Answers answers the first `correct` questions right and the others wrong.
func Answers(questions []course.Question, correct int) course.Answers {
	answers := make(course.Answers, len(questions))
	for i, q := range questions {
		for _, alt := range q.Alternatives {
			if alt.IsCorrect == (i < correct) {
				answers[q.ID] = alt.ID
				break
			}
		}
	}
	return answers
}

// Medals creates medals from name/threshold pairs.
func (s *Stack) Medals(t *testing.T, thresholds map[string]int) {
	for name, minPoints := range thresholds {
		_, err := s.Gamified.CreateMedal(context.Background(), gamification.Medal{Name: name, MinPoints: minPoints})
		require.NoError(t, err)
	}
}
