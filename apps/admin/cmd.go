package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/gamifica/core/content"
	"github.com/trezcool/gamifica/core/course"
	"github.com/trezcool/gamifica/core/gamification"
	"github.com/trezcool/gamifica/core/user"
	"github.com/trezcool/gamifica/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	out       io.Writer
	usrSvc    user.Service
	courseSvc course.Service
	gameSvc   gamification.Service
	// contentSvc is built on demand: only the generate commands need model credentials.
	contentSvc func(ctx context.Context) (content.Service, error)
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose command (up, down, status, redo, reset, version...)")
	fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME -email EMAIL -ru RU [-admin] - create a user; the password is prompted")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  seed [-file PATH] - load trails, chapters and medals; existing ones are skipped")
	fmt.Fprintln(cli.out, "  generate-content -chapter ID [-overwrite] - generate a chapter's lesson")
	fmt.Fprintln(cli.out, "  generate-quiz -chapter ID - generate questions from a chapter's lesson")
	fmt.Fprintln(cli.out, "  check-ledger [-user ID] - compare cached XP with the ledger; fails on drift")
	fmt.Fprintln(cli.out, "  adjust-xp -user ID -quantity N -reason TEXT - credit or debit XP manually")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserRU := addUserCmd.String("ru", "", "The user's academic registration number.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant the admin role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	seedCmd := flag.NewFlagSet("seed", flag.ContinueOnError)
	seedFile := seedCmd.String("file", "", "A catalogue JSON file. Defaults to the embedded catalogue.")

	genContentCmd := flag.NewFlagSet("generate-content", flag.ContinueOnError)
	genContentChapter := genContentCmd.String("chapter", "", "The chapter's ID.")
	genContentOverwrite := genContentCmd.Bool("overwrite", false, "Replace existing content.")

	genQuizCmd := flag.NewFlagSet("generate-quiz", flag.ContinueOnError)
	genQuizChapter := genQuizCmd.String("chapter", "", "The chapter's ID.")

	checkLedgerCmd := flag.NewFlagSet("check-ledger", flag.ContinueOnError)
	checkLedgerUser := checkLedgerCmd.String("user", "", "Only check this user's ID.")

	adjustCmd := flag.NewFlagSet("adjust-xp", flag.ContinueOnError)
	adjustUser := adjustCmd.String("user", "", "The user's ID.")
	adjustQty := adjustCmd.Int("quantity", 0, "XP to credit; negative to debit.")
	adjustReason := adjustCmd.String("reason", "", "Why the adjustment is made.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, seedCmd, genContentCmd, genQuizCmd, checkLedgerCmd, adjustCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2], args[3:]...)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" || *addUserRU == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		nu := user.NewUser{
			Name:            *addUserName,
			Username:        *addUserUname,
			Email:           *addUserEmail,
			RU:              *addUserRU,
			Password:        pwd,
			PasswordConfirm: pwd,
		}
		if nu.Name == "" {
			nu.Name = *addUserUname
		}
		return cli.addUser(ctx, nu, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(ctx, *resetPasswordUname, pwd)

	case "seed":
		if err := seedCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.seed(ctx, *seedFile)

	case "generate-content":
		if err := genContentCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *genContentChapter == "" {
			genContentCmd.Usage()
			return errHelp
		}
		return cli.generateContent(ctx, *genContentChapter, *genContentOverwrite)

	case "generate-quiz":
		if err := genQuizCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *genQuizChapter == "" {
			genQuizCmd.Usage()
			return errHelp
		}
		return cli.generateQuiz(ctx, *genQuizChapter)

	case "check-ledger":
		if err := checkLedgerCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.checkLedger(ctx, *checkLedgerUser)

	case "adjust-xp":
		if err := adjustCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *adjustUser == "" || *adjustQty == 0 || *adjustReason == "" {
			adjustCmd.Usage()
			return errHelp
		}
		return cli.adjustXP(ctx, *adjustUser, *adjustQty, *adjustReason)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pwd), nil
}
