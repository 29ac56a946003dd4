package main

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/etda/school/apps/bootstrap"
	"github.com/etda/school/core"
	"github.com/etda/school/core/user"
	emailsvc "github.com/etda/school/services/email"
	logsvc "github.com/etda/school/services/logger"
	"github.com/etda/school/storage/database"
	sqlxrepos "github.com/etda/school/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// the app role & database must exist before anything else
	if len(os.Args) > 1 && os.Args[1] == "createdb" {
		errAndDie(database.CreateIfNotExist(conf))
		return
	}

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer func() { _ = db.Close() }()

	usrRepo := sqlxrepos.NewUserRepository(db)
	validate, translator := bootstrap.NewValidator()

	// start CLI
	cli := commandLine{
		db:       db.DB,
		usrRepo:  usrRepo,
		usrSvc:   user.NewService(usrRepo, emailsvc.NewConsoleService(conf, logger), conf),
		validate: validate,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			printErr(err, translator)
		}
		_ = db.Close()
		os.Exit(1)
	}
}

// printErr prints field errors one per line.
func printErr(err error, translator ut.Translator) {
	switch vErr := errors.Cause(err).(type) {
	case validator.ValidationErrors:
		fmt.Println("\nerror:")
		for _, fErr := range vErr {
			fmt.Printf("  %s: %s\n", fErr.Field(), fErr.Translate(translator))
		}
	case *core.ValidationError:
		if len(vErr.Fields) == 0 {
			fmt.Printf("\nerror: %s\n", err)
			return
		}
		fmt.Println("\nerror:")
		for _, f := range vErr.Fields {
			fmt.Printf("  %s: %s\n", f.Field, f.Error)
		}
	default:
		fmt.Printf("\nerror: %s\n", err)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
