package dig_container

import (
	"context"
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/gamifica/apps/api/echo"
	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
	emailsvc "github.com/trezcool/gamifica/services/email"
	logsvc "github.com/trezcool/gamifica/services/logger"
	"github.com/trezcool/gamifica/storage/database"
	sqlxrepos "github.com/trezcool/gamifica/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	UserSvc    user.Service
	CourseSvc  course.Service
	GameSvc    gamification.Service
}

func namedLogger(name string) func(conf *core.Config) (core.Logger, error) {
	return func(conf *core.Config) (core.Logger, error) {
		logger, err := logsvc.NewRollbarLogger(name, conf)
		if err != nil {
			return nil, err
		}
		logger.Enable(!(conf.Debug || conf.TestMode))
		return logger, nil
	}
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func(ctx context.Context) (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db.DB, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp(context.Background())
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newExecutor(db *sqlx.DB) core.DBExecutor {
	return db
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	return validate, translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		UserSvc:    p.UserSvc,
		CourseSvc:  p.CourseSvc,
		GameSvc:    p.GameSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(namedLogger("api")))
	must(c.Provide(namedLogger("db"), dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newExecutor))
	must(c.Provide(database.NewTransactor, dig.As(new(core.Transactor))))
	must(c.Provide(newValidator))
	must(c.Provide(emailsvc.New))
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewCourseRepository))
	must(c.Provide(sqlxrepos.NewLedgerRepository))
	must(c.Provide(sqlxrepos.NewProgressRepository))
	must(c.Provide(sqlxrepos.NewMedalRepository))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(gamification.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
