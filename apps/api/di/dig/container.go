package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/etda/school/apps/api/echo"
	"github.com/etda/school/apps/bootstrap"
	"github.com/etda/school/core"
	"github.com/etda/school/core/attendance"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/class"
	"github.com/etda/school/core/grade"
	"github.com/etda/school/core/report"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/subject"
	"github.com/etda/school/core/teacher"
	"github.com/etda/school/core/user"
	emailsvc "github.com/etda/school/services/email"
	exportsvc "github.com/etda/school/services/export"
	logsvc "github.com/etda/school/services/logger"
	"github.com/etda/school/storage/cache"
	"github.com/etda/school/storage/database"
	sqlxrepos "github.com/etda/school/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type reportParams struct {
	dig.In

	Deps   report.Deps
	Cache  core.Cache
	Conf   *core.Config
	Logger core.Logger
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, *sql.DB, core.DBExecutor) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db.DB, db
}

// newCache uses redis when an address is configured and falls back to process memory.
func newCache(conf *core.Config, logger core.Logger) core.Cache {
	if conf.Redis.Addr == "" {
		return cache.NewMemoryCache()
	}
	rc, err := cache.NewRedisCache(context.Background(), conf)
	if err != nil {
		logger.Error(fmt.Sprintf("redis unavailable, using memory cache: %v", err), err)
		return cache.NewMemoryCache()
	}
	return rc
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newReportDeps(
	stdSvc student.Service,
	tchSvc teacher.Service,
	subSvc subject.Service,
	classSvc class.Service,
	bimSvc bimester.Service,
	gradeSvc grade.Service,
	attSvc attendance.Service,
) report.Deps {
	return report.Deps{
		Students:   stdSvc,
		Teachers:   tchSvc,
		Subjects:   subSvc,
		Classes:    classSvc,
		Bimesters:  bimSvc,
		Grades:     gradeSvc,
		Attendance: attSvc,
	}
}

func newReportService(p reportParams) report.Service {
	return report.NewService(p.Deps, p.Cache, p.Conf, p.Logger)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(database.NewTransactor, dig.As(new(core.Transactor))))
	must(c.Provide(newCache))
	must(c.Provide(newEmailService))
	must(c.Provide(bootstrap.NewValidator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewSubjectRepository, dig.As(new(subject.Repository))))
	must(c.Provide(sqlxrepos.NewClassRepository, dig.As(new(class.Repository))))
	must(c.Provide(sqlxrepos.NewBimesterRepository, dig.As(new(bimester.Repository))))
	must(c.Provide(sqlxrepos.NewStudentRepository, dig.As(new(student.Repository))))
	must(c.Provide(sqlxrepos.NewTeacherRepository, dig.As(new(teacher.Repository))))
	must(c.Provide(sqlxrepos.NewGradeRepository, dig.As(new(grade.Repository))))
	must(c.Provide(sqlxrepos.NewAttendanceRepository, dig.As(new(attendance.Repository))))

	// services
	must(c.Provide(grade.NewPolicy))
	must(c.Provide(user.NewService))
	must(c.Provide(subject.NewService))
	must(c.Provide(class.NewService))
	must(c.Provide(bimester.NewService))
	must(c.Provide(student.NewService))
	must(c.Provide(teacher.NewService))
	must(c.Provide(grade.NewService))
	must(c.Provide(attendance.NewService))
	must(c.Provide(newReportDeps))
	must(c.Provide(newReportService))
	must(c.Provide(exportsvc.NewDefaultRegistry, dig.As(new(echoapi.ExporterRegistry))))

	must(c.Provide(echoapi.NewServer))

	if os.Getenv("DIG_VISUALIZE") != "" {
		_ = dig.Visualize(c, os.Stdout)
	}

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
