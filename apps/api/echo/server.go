package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"go.uber.org/dig"

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
)

type (
	// ExporterRegistry resolves the exporter of a file format.
	ExporterRegistry interface {
		Get(format string) (report.Exporter, error)
	}

	// Deps are the dependencies of the API. dig fills them in when the server is built from the container.
	Deps struct {
		dig.In

		Conf       *core.Config
		Logger     core.Logger
		Cache      core.Cache
		Validate   *validator.Validate
		Translator ut.Translator
		MailSvc    core.EmailService
		Exporters  ExporterRegistry

		UserSvc       user.Service
		StudentSvc    student.Service
		TeacherSvc    teacher.Service
		SubjectSvc    subject.Service
		ClassSvc      class.Service
		BimesterSvc   bimester.Service
		GradeSvc      grade.Service
		AttendanceSvc attendance.Service
		ReportSvc     report.Service
	}

	Server struct {
		*http.Server
		app      *echo.Echo
		deps     Deps
		auth     *authenticator
		shutdown chan os.Signal
		errors   chan error
	}
)

func NewServer(deps Deps) *Server {
	conf := deps.Conf
	s := &Server{
		Server: &http.Server{
			Addr:         conf.Server.Addr,
			ReadTimeout:  conf.Server.ReadTimeout,
			WriteTimeout: conf.Server.WriteTimeout,
		},
		app:      echo.New(),
		deps:     deps,
		auth:     newAuthenticator(conf, deps.Cache, deps.UserSvc),
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	s.Handler = s.app
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", s.home)

	g := s.app.Group("/api")
	jwt := s.auth.middleware()

	registerAuthAPI(g, jwt, s.auth, s.deps)
	registerSecretaryAPI(g.Group("/secretary", jwt, s.auth.portalMiddleware(user.RoleSecretary)), s.auth, s.deps)
	registerTeacherAPI(g.Group("/teacher", jwt, s.auth.portalMiddleware(user.RoleTeacher)), s.auth, s.deps)
	registerStudentAPI(g.Group("/student", jwt, s.auth.portalMiddleware(user.RoleStudent)), s.auth, s.deps)
}

// Start listens until the server is shut down. Listening errors are sent to Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.deps.Logger.Info("API listening on " + s.Addr)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error            { return s.errors }
func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.Server.Shutdown(ctx)
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the "+s.deps.Conf.AppName+" API!")
}
