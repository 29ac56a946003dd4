package echoapi

import (
	"bytes"
	"net/http"
	"net/mail"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/etda/school/core"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/class"
	"github.com/etda/school/core/report"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/subject"
	"github.com/etda/school/core/teacher"
	"github.com/etda/school/core/user"
)

type secretaryApi struct {
	auth      *authenticator
	logger    core.Logger
	validate  *validator.Validate
	mailSvc   core.EmailService
	exporters ExporterRegistry

	usrSvc user.Service
	stdSvc student.Service
	tchSvc teacher.Service
	subSvc subject.Service
	clsSvc class.Service
	bimSvc bimester.Service
	repSvc report.Service
}

func registerSecretaryAPI(g *echo.Group, auth *authenticator, deps Deps) {
	api := secretaryApi{
		auth:      auth,
		logger:    deps.Logger,
		validate:  deps.Validate,
		mailSvc:   deps.MailSvc,
		exporters: deps.Exporters,
		usrSvc:    deps.UserSvc,
		stdSvc:    deps.StudentSvc,
		tchSvc:    deps.TeacherSvc,
		subSvc:    deps.SubjectSvc,
		clsSvc:    deps.ClassSvc,
		bimSvc:    deps.BimesterSvc,
		repSvc:    deps.ReportSvc,
	}

	g.Use(api.invalidateDashboard)
	g.GET("/dashboard", api.dashboard)

	g.GET("/users", api.queryUsers)
	g.PUT("/users/:id", api.updateUser)

	g.GET("/students", api.queryStudents)
	g.POST("/students", api.createStudent)
	g.GET("/students/:id", api.retrieveStudent)
	g.PUT("/students/:id", api.updateStudent)
	g.DELETE("/students/:id", api.destroyStudent)
	g.GET("/students/:id/report", api.studentReport)

	g.GET("/teachers", api.queryTeachers)
	g.POST("/teachers", api.createTeacher)
	g.GET("/teachers/:id", api.retrieveTeacher)
	g.PUT("/teachers/:id", api.updateTeacher)
	g.DELETE("/teachers/:id", api.destroyTeacher)

	g.GET("/subjects", api.querySubjects)
	g.POST("/subjects", api.createSubject)
	g.GET("/subjects/:id", api.retrieveSubject)
	g.PUT("/subjects/:id", api.updateSubject)
	g.DELETE("/subjects/:id", api.destroySubject)

	g.GET("/classes", api.queryClasses)
	g.POST("/classes", api.createClass)
	g.GET("/classes/:id", api.retrieveClass)
	g.PUT("/classes/:id", api.updateClass)
	g.DELETE("/classes/:id", api.destroyClass)

	g.GET("/bimesters", api.queryBimesters)
	g.POST("/bimesters", api.createBimester)
	g.GET("/bimesters/:id", api.retrieveBimester)
	g.PUT("/bimesters/:id", api.updateBimester)
	g.DELETE("/bimesters/:id", api.destroyBimester)

	g.GET("/reports/summary", api.reportSummary)
	g.GET("/reports/:kind", api.reportTable)
	g.GET("/reports/:kind/export", api.exportReport)
	g.POST("/reports/:kind/email", api.emailReport)
}

// invalidateDashboard drops the cached dashboard after every successful write.
func (api *secretaryApi) invalidateDashboard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if err := next(ctx); err != nil {
			return err
		}
		if ctx.Request().Method == http.MethodGet || ctx.Response().Status >= http.StatusBadRequest {
			return nil
		}
		if err := api.repSvc.InvalidateDashboard(ctx.Request().Context()); err != nil {
			api.logger.Warn("dashboard invalidation failed", "err", err)
		}
		return nil
	}
}

func (api *secretaryApi) dashboard(ctx echo.Context) error {
	dash, err := api.repSvc.SecretaryDashboard(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

// Users

type UpdateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive *bool  `json:"is_active"`
}

func (api *secretaryApi) queryUsers(ctx echo.Context) error {
	isActive, err := queryBool(ctx, "is_active")
	if err != nil {
		return err
	}
	filter := &user.QueryFilter{
		Search:   ctx.QueryParam("search"),
		Roles:    ctx.QueryParams()["role"],
		IsActive: isActive,
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.usrSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *secretaryApi) updateUser(ctx echo.Context) error {
	c := ctx.Request().Context()
	usr, err := api.usrSvc.GetByID(c, ctx.Param("id"))
	if err != nil {
		return err
	}

	var data UpdateUserRequest
	if err = bind(ctx, &data); err != nil {
		return err
	}

	// secretaries cannot lock themselves out
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	if usr.ID == ctxUsr.ID && data.IsActive != nil && !*data.IsActive {
		return errHttpForbidden
	}

	uu := user.UpdateUser{Name: data.Name, Email: data.Email, IsActive: data.IsActive}
	if err = uu.Validate(usr, api.validate); err != nil {
		return err
	}
	usr, err = api.usrSvc.Update(c, usr, uu)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

// Students

func (api *secretaryApi) queryStudents(ctx echo.Context) error {
	filter := &student.QueryFilter{
		ClassID: core.CleanString(ctx.QueryParam("class_id")),
		Search:  core.CleanString(ctx.QueryParam("search")),
	}
	students, err := api.stdSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *secretaryApi) createStudent(ctx echo.Context) error {
	var data student.NewStudent
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	std, err := api.stdSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *secretaryApi) retrieveStudent(ctx echo.Context) error {
	std, err := api.stdSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *secretaryApi) updateStudent(ctx echo.Context) error {
	var data student.UpdateStudent
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	std, err := api.stdSvc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *secretaryApi) destroyStudent(ctx echo.Context) error {
	if err := api.stdSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *secretaryApi) studentReport(ctx echo.Context) error {
	rep, err := api.repSvc.StudentReport(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "building student report")
	}
	return ctx.JSON(http.StatusOK, rep)
}

// Teachers

func (api *secretaryApi) queryTeachers(ctx echo.Context) error {
	teachers, err := api.tchSvc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	if teachers == nil {
		teachers = []teacher.Teacher{}
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *secretaryApi) createTeacher(ctx echo.Context) error {
	var data teacher.NewTeacher
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	tch, err := api.tchSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating teacher")
	}
	return ctx.JSON(http.StatusCreated, tch)
}

func (api *secretaryApi) retrieveTeacher(ctx echo.Context) error {
	tch, err := api.tchSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tch)
}

func (api *secretaryApi) updateTeacher(ctx echo.Context) error {
	var data teacher.UpdateTeacher
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	tch, err := api.tchSvc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating teacher")
	}
	return ctx.JSON(http.StatusOK, tch)
}

func (api *secretaryApi) destroyTeacher(ctx echo.Context) error {
	if err := api.tchSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Subjects

func (api *secretaryApi) querySubjects(ctx echo.Context) error {
	subjects, err := api.subSvc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []subject.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *secretaryApi) createSubject(ctx echo.Context) error {
	var data subject.NewSubject
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sub, err := api.subSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *secretaryApi) retrieveSubject(ctx echo.Context) error {
	sub, err := api.subSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *secretaryApi) updateSubject(ctx echo.Context) error {
	var data subject.NewSubject
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	sub, err := api.subSvc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating subject")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *secretaryApi) destroySubject(ctx echo.Context) error {
	if err := api.subSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Classes

func (api *secretaryApi) queryClasses(ctx echo.Context) error {
	classes, err := api.clsSvc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *secretaryApi) createClass(ctx echo.Context) error {
	var data class.NewClass
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cls, err := api.clsSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *secretaryApi) retrieveClass(ctx echo.Context) error {
	cls, err := api.clsSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *secretaryApi) updateClass(ctx echo.Context) error {
	var data class.NewClass
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	cls, err := api.clsSvc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating class")
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *secretaryApi) destroyClass(ctx echo.Context) error {
	if err := api.clsSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Bimesters

func (api *secretaryApi) queryBimesters(ctx echo.Context) error {
	filter := &bimester.QueryFilter{Status: core.CleanString(ctx.QueryParam("status"), true /* lower */)}
	if subID := core.CleanString(ctx.QueryParam("subject_id")); subID != "" {
		filter.SubjectIDs = []string{subID}
	}
	bims, err := api.bimSvc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying bimesters")
	}
	if bims == nil {
		bims = []bimester.Bimester{}
	}
	return ctx.JSON(http.StatusOK, bims)
}

func (api *secretaryApi) createBimester(ctx echo.Context) error {
	var data bimester.NewBimester
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	bim, err := api.bimSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating bimester")
	}
	return ctx.JSON(http.StatusCreated, bim)
}

func (api *secretaryApi) retrieveBimester(ctx echo.Context) error {
	bim, err := api.bimSvc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, bim)
}

func (api *secretaryApi) updateBimester(ctx echo.Context) error {
	var data bimester.NewBimester
	if err := bind(ctx, &data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	bim, err := api.bimSvc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating bimester")
	}
	return ctx.JSON(http.StatusOK, bim)
}

func (api *secretaryApi) destroyBimester(ctx echo.Context) error {
	if err := api.bimSvc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting bimester")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Reports

type EmailReportRequest struct {
	Format string `json:"format" validate:"required"`
	To     string `json:"to" validate:"omitempty,email"`
}

func (api *secretaryApi) reportSummary(ctx echo.Context) error {
	sum, err := api.repSvc.Summary(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "building summary")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *secretaryApi) reportTable(ctx echo.Context) error {
	t, err := api.repSvc.Table(ctx.Request().Context(), ctx.Param("kind"))
	if err != nil {
		return errors.Wrap(err, "building report")
	}
	return ctx.JSON(http.StatusOK, t)
}

// export renders the report of kind in format.
func (api *secretaryApi) export(ctx echo.Context, kind, format string) (*bytes.Buffer, report.Table, report.Exporter, error) {
	if !report.IsValidKind(kind) {
		return nil, report.Table{}, nil, report.ErrUnknownKind
	}
	exp, err := api.exporters.Get(format)
	if err != nil {
		return nil, report.Table{}, nil, core.NewValidationError(err, core.FieldError{Field: "format", Error: err.Error()})
	}
	t, err := api.repSvc.Table(ctx.Request().Context(), kind)
	if err != nil {
		return nil, report.Table{}, nil, errors.Wrap(err, "building report")
	}
	var buf bytes.Buffer
	if err = exp.Export(&buf, t); err != nil {
		return nil, report.Table{}, nil, errors.Wrap(err, "exporting report")
	}
	return &buf, t, exp, nil
}

func (api *secretaryApi) exportReport(ctx echo.Context) error {
	kind := ctx.Param("kind")
	buf, t, exp, err := api.export(ctx, kind, ctx.QueryParam("format"))
	if err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+exportFilename(kind, t, exp)+`"`)
	return ctx.Blob(http.StatusOK, exp.ContentType(), buf.Bytes())
}

// emailReport mails the exported report to the secretary, or to the given address.
func (api *secretaryApi) emailReport(ctx echo.Context) error {
	var data EmailReportRequest
	if err := bind(ctx, &data); err != nil {
		return err
	}
	data.To = core.CleanString(data.To, true /* lower */)
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	kind := ctx.Param("kind")
	buf, t, exp, err := api.export(ctx, kind, data.Format)
	if err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	to := mail.Address{Name: ctxUsr.Name, Address: ctxUsr.Email}
	if data.To != "" {
		to = mail.Address{Address: data.To}
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      t.Title,
		TemplateName: "report",
		TemplateData: map[string]string{
			"Name":        ctxUsr.Name,
			"Title":       t.Title,
			"GeneratedAt": t.GeneratedAt.Format("2006-01-02 15:04 MST"),
		},
	}
	if err = msg.Attach(buf, exportFilename(kind, t, exp), exp.ContentType()); err != nil {
		return errors.Wrap(err, "attaching report")
	}
	api.mailSvc.SendMessages(msg)
	return ctx.JSON(http.StatusAccepted, SuccessResponse{Success: "The report will be sent to " + to.Address + "."})
}

func exportFilename(kind string, t report.Table, exp report.Exporter) string {
	return kind + "-" + t.GeneratedAt.Format("20060102") + "." + exp.Format()
}
