package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/gamifica/core"
	"github.com/trezcool/gamifica/core/content"
	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
	emailsvc "github.com/trezcool/gamifica/services/email"
	"github.com/trezcool/gamifica/services/llm"
	logsvc "github.com/trezcool/gamifica/services/logger"
	"github.com/trezcool/gamifica/storage/database"
	sqlxrepos "github.com/trezcool/gamifica/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger, err := logsvc.NewRollbarLogger("admin", conf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setting up logger: %v\n", err)
		os.Exit(1)
	}
	logger.Enable(!(conf.Debug || conf.TestMode))
	defer logger.Sync()

	ctx := context.Background()

	// set up DB
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	// set up services
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.RegisterValidators(validate, translator)
	core.ParseEmailTemplates(logger)

	tx := database.NewTransactor(db)
	mailSvc := emailsvc.New(conf, logger)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), validate, mailSvc, conf)
	courseSvc, err := course.NewService(sqlxrepos.NewCourseRepository(db), tx, validate, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up course service: %v", err), err)
	}
	gameSvc, err := gamification.NewService(
		usrSvc,
		courseSvc,
		sqlxrepos.NewLedgerRepository(db),
		sqlxrepos.NewProgressRepository(db),
		sqlxrepos.NewMedalRepository(db),
		tx,
		mailSvc,
		logger,
		conf,
	)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up gamification service: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:        db.DB,
		out:       os.Stdout,
		usrSvc:    usrSvc,
		courseSvc: courseSvc,
		gameSvc:   gameSvc,
		contentSvc: func(ctx context.Context) (content.Service, error) {
			client, err := llm.NewGeminiClient(ctx, conf, logger)
			if err != nil {
				return nil, err
			}
			gen, err := content.NewGenerator(client, logger)
			if err != nil {
				return nil, err
			}
			return content.NewService(gen, courseSvc), nil
		},
	}
	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		logger.Sync()
		os.Exit(1)
	}
}
