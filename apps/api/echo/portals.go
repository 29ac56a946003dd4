package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/etda/school/core"
	"github.com/etda/school/core/attendance"
	"github.com/etda/school/core/grade"
	"github.com/etda/school/core/report"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/subject"
	"github.com/etda/school/core/teacher"
)

type teacherApi struct {
	auth     *authenticator
	validate *validator.Validate
	tchSvc   teacher.Service
	grdSvc   grade.Service
	attSvc   attendance.Service
	repSvc   report.Service
}

func registerTeacherAPI(g *echo.Group, auth *authenticator, deps Deps) {
	api := teacherApi{
		auth:     auth,
		validate: deps.Validate,
		tchSvc:   deps.TeacherSvc,
		grdSvc:   deps.GradeSvc,
		attSvc:   deps.AttendanceSvc,
		repSvc:   deps.ReportSvc,
	}

	g.GET("/dashboard", api.dashboard)
	g.GET("/grades", api.gradeSheet)
	g.PUT("/grades", api.saveGradeSheet)
	g.GET("/attendance", api.attendanceSheet)
	g.PUT("/attendance", api.saveAttendanceSheet)
	g.GET("/attendance/history", api.attendanceHistory)
}

func (api *teacherApi) dashboard(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	dash, err := api.repSvc.TeacherDashboard(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *teacherApi) gradeSheet(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	params, err := requireQuery(ctx, "subject_id", "bimester_id")
	if err != nil {
		return err
	}
	sheet, err := api.grdSvc.Sheet(ctx.Request().Context(), usr.ID, params[0], params[1])
	if err != nil {
		return errors.Wrap(err, "building grade sheet")
	}
	return ctx.JSON(http.StatusOK, sheet)
}

func (api *teacherApi) saveGradeSheet(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var data grade.SaveSheetRequest
	if err = bind(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	grades, err := api.grdSvc.SaveSheet(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "saving grade sheet")
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *teacherApi) attendanceSheet(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	params, err := requireQuery(ctx, "subject_id", "bimester_id")
	if err != nil {
		return err
	}
	date, err := queryDate(ctx, "date")
	if err != nil {
		return err
	}
	sheet, err := api.attSvc.Sheet(ctx.Request().Context(), usr.ID, params[0], params[1], date)
	if err != nil {
		return errors.Wrap(err, "building attendance sheet")
	}
	return ctx.JSON(http.StatusOK, sheet)
}

func (api *teacherApi) saveAttendanceSheet(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	var data attendance.SaveSheetRequest
	if err = bind(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	records, err := api.attSvc.SaveSheet(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "saving attendance sheet")
	}
	return ctx.JSON(http.StatusOK, records)
}

// attendanceHistory lists the records of a student in a subject the teacher teaches.
// bimester_id is an optional filter.
func (api *teacherApi) attendanceHistory(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	params, err := requireQuery(ctx, "student_id", "subject_id")
	if err != nil {
		return err
	}
	if _, err = api.tchSvc.AssertTeaches(ctx.Request().Context(), usr.ID, params[1]); err != nil {
		return err
	}
	bimesterID := core.CleanString(ctx.QueryParam("bimester_id"))
	records, err := api.attSvc.History(ctx.Request().Context(), params[0], params[1], bimesterID)
	if err != nil {
		return errors.Wrap(err, "querying attendance history")
	}
	if records == nil {
		records = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}

type studentApi struct {
	auth   *authenticator
	stdSvc student.Service
	subSvc subject.Service
	attSvc attendance.Service
	repSvc report.Service
}

func registerStudentAPI(g *echo.Group, auth *authenticator, deps Deps) {
	api := studentApi{
		auth:   auth,
		stdSvc: deps.StudentSvc,
		subSvc: deps.SubjectSvc,
		attSvc: deps.AttendanceSvc,
		repSvc: deps.ReportSvc,
	}

	g.GET("/dashboard", api.dashboard)
	g.GET("/grades", api.grades)
	g.GET("/final-status", api.finalStatus)
	g.GET("/absences", api.absences)
	g.GET("/attendance", api.attendance)
	g.GET("/subjects", api.subjects)
}

// contextStudent returns the student record of the logged in user.
func (api *studentApi) contextStudent(ctx echo.Context) (student.Student, error) {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return student.Student{}, err
	}
	std, err := api.stdSvc.GetByUserID(ctx.Request().Context(), usr.ID)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "finding student")
	}
	return std, nil
}

func (api *studentApi) dashboard(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	dash, err := api.repSvc.StudentDashboard(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "building dashboard")
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *studentApi) grades(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	bySubject, err := api.repSvc.GradesBySubject(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "grouping grades")
	}
	if bySubject == nil {
		bySubject = []report.SubjectGrades{}
	}
	return ctx.JSON(http.StatusOK, bySubject)
}

func (api *studentApi) finalStatus(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	status, err := api.repSvc.FinalStatus(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "building final status")
	}
	return ctx.JSON(http.StatusOK, status)
}

func (api *studentApi) absences(ctx echo.Context) error {
	std, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	sum, err := api.attSvc.AbsenceSummary(ctx.Request().Context(), std.ID)
	if err != nil {
		return errors.Wrap(err, "summarizing absences")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *studentApi) attendance(ctx echo.Context) error {
	std, err := api.contextStudent(ctx)
	if err != nil {
		return err
	}
	records, err := api.attSvc.History(
		ctx.Request().Context(),
		std.ID,
		core.CleanString(ctx.QueryParam("subject_id")),
		core.CleanString(ctx.QueryParam("bimester_id")),
	)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	if records == nil {
		records = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *studentApi) subjects(ctx echo.Context) error {
	subjects, err := api.subSvc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	if subjects == nil {
		subjects = []subject.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}
