package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

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
	"github.com/etda/school/storage/cache"
	inmemdb "github.com/etda/school/storage/database/inmem"
	testutil "github.com/etda/school/tests"
)

type fixture struct {
	db       *inmemdb.DB
	deps     report.Deps
	conf     *core.Config
	zoe, ana student.Student
	tchUsr   string
}

func setup(t *testing.T) fixture {
	conf := testutil.NewConfig()
	db := inmemdb.Open()
	tx := inmemdb.NewTransactor(db)
	usrRepo := inmemdb.NewUserRepository(db)
	subRepo := inmemdb.NewSubjectRepository(db)
	bimRepo := inmemdb.NewBimesterRepository(db)
	stdRepo := inmemdb.NewStudentRepository(db)
	tchRepo := inmemdb.NewTeacherRepository(db)
	classRepo := inmemdb.NewClassRepository(db)
	gradeRepo := inmemdb.NewGradeRepository(db)
	attRepo := inmemdb.NewAttendanceRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf, false))
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	subSvc := subject.NewService(subRepo)
	bimSvc := bimester.NewService(bimRepo, subSvc)
	tchSvc := teacher.NewService(tx, tchRepo, subSvc, usrSvc, mailSvc)
	f := fixture{
		db:   db,
		conf: conf,
		deps: report.Deps{
			Students:   student.NewService(tx, stdRepo, classRepo, usrSvc, mailSvc),
			Teachers:   tchSvc,
			Subjects:   subSvc,
			Classes:    class.NewService(classRepo),
			Bimesters:  bimSvc,
			Grades:     grade.NewService(tx, gradeRepo, stdRepo, bimSvc, tchSvc, grade.DefaultPolicy),
			Attendance: attendance.NewService(tx, attRepo, stdRepo, bimSvc, tchSvc),
		},
	}

	cls := testutil.CreateClass(t, classRepo, "9A", 2024)
	testutil.CreateClass(t, classRepo, "9B", 2024)
	math := testutil.CreateSubject(t, subRepo, "Math", 80)
	art := testutil.CreateSubject(t, subRepo, "Art", 40)
	start, end := core.NewDate(2024, time.February, 1), core.NewDate(2024, time.April, 15)
	mathB1 := testutil.CreateBimester(t, bimRepo, math.ID, "1st Bimester", start, end, bimester.StatusActive)
	mathB2 := testutil.CreateBimester(t, bimRepo, math.ID, "2nd Bimester", core.Date{Time: start.AddDate(0, 3, 0)}, core.Date{Time: end.AddDate(0, 3, 0)}, bimester.StatusClosed)
	artB1 := testutil.CreateBimester(t, bimRepo, art.ID, "1st Bimester", start, end, bimester.StatusClosed)

	f.zoe = testutil.CreateStudent(t, usrRepo, stdRepo, "Zoe Lima", "zoe@etda.test", "52998224725", cls.ID)
	f.ana = testutil.CreateStudent(t, usrRepo, stdRepo, "Ana Souza", "ana@etda.test", "11144477735", "")
	f.tchUsr = testutil.CreateTeacher(t, usrRepo, tchRepo, "Maria Teacher", "maria@etda.test", math.ID).UserID

	testutil.CreateGrade(t, gradeRepo, f.zoe.ID, math.ID, mathB1.ID, 7, 8, 1) // 7.5 approved
	testutil.CreateGrade(t, gradeRepo, f.zoe.ID, math.ID, mathB2.ID, 4, 4, 2) // 4.0 recovery
	testutil.CreateGrade(t, gradeRepo, f.zoe.ID, art.ID, artB1.ID, 2, 2, 3)   // 2.0 failed
	testutil.CreateGrade(t, gradeRepo, f.ana.ID, math.ID, mathB1.ID, 6, 6, 0) // 6.0 approved
	return f
}

func (f fixture) service() report.Service {
	return report.NewService(f.deps, cache.NewMemoryCache(), f.conf, testutil.NewLogger(f.conf, false))
}

func TestService_Summary(t *testing.T) {
	f := setup(t)
	sum, err := f.service().Summary(context.Background())
	if assert.NoError(t, err) {
		assert.Equal(t, report.Summary{
			TotalStudents: 2,
			SubjectsCount: 2,
			ApprovalRate:  "50.0",
			AverageGrade:  "4.9",
		}, sum)
	}

	empty := fixture{conf: f.conf, deps: setupEmpty(t)}
	sum, err = empty.service().Summary(context.Background())
	if assert.NoError(t, err) {
		assert.Equal(t, report.Summary{ApprovalRate: "-", AverageGrade: "-"}, sum)
	}
}

func setupEmpty(t *testing.T) report.Deps {
	conf := testutil.NewConfig()
	db := inmemdb.Open()
	tx := inmemdb.NewTransactor(db)
	stdRepo := inmemdb.NewStudentRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf, false))
	usrSvc := user.NewService(inmemdb.NewUserRepository(db), mailSvc, conf)
	subSvc := subject.NewService(inmemdb.NewSubjectRepository(db))
	bimSvc := bimester.NewService(inmemdb.NewBimesterRepository(db), subSvc)
	tchSvc := teacher.NewService(tx, inmemdb.NewTeacherRepository(db), subSvc, usrSvc, mailSvc)
	return report.Deps{
		Students:  student.NewService(tx, stdRepo, inmemdb.NewClassRepository(db), usrSvc, mailSvc),
		Subjects:  subSvc,
		Bimesters: bimSvc,
		Grades:    grade.NewService(tx, inmemdb.NewGradeRepository(db), stdRepo, bimSvc, tchSvc, grade.DefaultPolicy),
	}
}

func TestService_FinalStatus(t *testing.T) {
	f := setup(t)
	svc := f.service()
	ctx := context.Background()

	fs, err := svc.FinalStatus(ctx, f.zoe.UserID)
	if !assert.NoError(t, err) {
		return
	}
	if assert.NotNil(t, fs.FinalAverage) {
		assert.Equal(t, 4.5, *fs.FinalAverage)
	}
	assert.Equal(t, grade.StatusRecovery, fs.FinalStatus)
	assert.Equal(t, 6, fs.TotalAbsences)
	if assert.Len(t, fs.Subjects, 2) {
		assert.Equal(t, "Art", fs.Subjects[0].SubjectName)
		assert.Equal(t, 2.0, fs.Subjects[0].Average)
		assert.Equal(t, grade.StatusFailed, fs.Subjects[0].Status)
		assert.Equal(t, "Math", fs.Subjects[1].SubjectName)
		assert.Equal(t, 5.75, fs.Subjects[1].Average)
		assert.Equal(t, grade.StatusApproved, fs.Subjects[1].Status)
		assert.Equal(t, 3, fs.Subjects[1].Absences)
	}

	// a student without grades has no final status
	usrRepo := inmemdb.NewUserRepository(f.db)
	newcomer := testutil.CreateStudent(t, usrRepo, inmemdb.NewStudentRepository(f.db), "Caio Reis", "caio@etda.test", "39053344705", "")
	fs, err = svc.FinalStatus(ctx, newcomer.UserID)
	if assert.NoError(t, err) {
		assert.Nil(t, fs.FinalAverage)
		assert.Empty(t, fs.FinalStatus)
		assert.Equal(t, []report.SubjectStatus{}, fs.Subjects)
	}

	_, err = svc.FinalStatus(ctx, f.tchUsr)
	assert.Equal(t, student.ErrNotFound, err)
}

func TestService_StudentViews(t *testing.T) {
	f := setup(t)
	svc := f.service()
	ctx := context.Background()

	dash, err := svc.StudentDashboard(ctx, f.zoe.UserID)
	if assert.NoError(t, err) {
		assert.Equal(t, "9A", dash.Student.ClassName)
		assert.Len(t, dash.Grades, 3)
		assert.Equal(t, 6, dash.TotalAbsences)
		if assert.NotNil(t, dash.AverageGrade) {
			assert.Equal(t, 4.5, *dash.AverageGrade)
		}
	}

	groups, err := svc.GradesBySubject(ctx, f.zoe.UserID)
	if assert.NoError(t, err) && assert.Len(t, groups, 2) {
		assert.Equal(t, "Art", groups[0].SubjectName)
		assert.Len(t, groups[0].Grades, 1)
		assert.Equal(t, "Math", groups[1].SubjectName)
		if assert.Len(t, groups[1].Grades, 2) {
			assert.Equal(t, "2nd Bimester", groups[1].Grades[0].BimesterName)
		}
	}

	rpt, err := svc.StudentReport(ctx, f.ana.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, "Ana Souza", rpt.Student.Name)
		assert.Len(t, rpt.Grades, 1)
		assert.Equal(t, 0, rpt.Absences.Total)
	}
	_, err = svc.StudentReport(ctx, f.tchUsr)
	assert.Equal(t, student.ErrNotFound, err)
}

func TestService_TeacherDashboard(t *testing.T) {
	f := setup(t)
	dash, err := f.service().TeacherDashboard(context.Background(), f.tchUsr)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, "Maria Teacher", dash.Teacher.Name)
	assert.Len(t, dash.Bimesters, 2)
	assert.Equal(t, 1, dash.ActiveBimesters)

	_, err = f.service().TeacherDashboard(context.Background(), f.zoe.UserID)
	assert.Equal(t, teacher.ErrNotFound, err)
}

func TestService_SecretaryDashboard(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	addStudent := func(name, email, cpf string) {
		testutil.CreateStudent(t, inmemdb.NewUserRepository(f.db), inmemdb.NewStudentRepository(f.db), name, email, cpf, "")
	}

	t.Run("uncached", func(t *testing.T) {
		f.conf.Cache.DashboardTTL = 0
		svc := f.service()
		dash, err := svc.SecretaryDashboard(ctx)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, 2, dash.StudentsCount)
		assert.Equal(t, 1, dash.TeachersCount)
		assert.Equal(t, 2, dash.SubjectsCount)
		assert.Equal(t, []report.ClassCount{
			{ID: dash.Classes[0].ID, Name: "9A", AcademicYear: 2024, StudentCount: 1},
			{ID: dash.Classes[1].ID, Name: "9B", AcademicYear: 2024, StudentCount: 0},
		}, dash.Classes)
		if assert.Len(t, dash.ActiveBimesters, 1) {
			assert.Equal(t, "Math", dash.ActiveBimesters[0].SubjectName)
		}

		addStudent("Caio Reis", "caio@etda.test", "39053344705")
		dash, err = svc.SecretaryDashboard(ctx)
		if assert.NoError(t, err) {
			assert.Equal(t, 3, dash.StudentsCount)
		}
	})

	t.Run("cached", func(t *testing.T) {
		f.conf.Cache.DashboardTTL = time.Minute
		svc := f.service()
		dash, err := svc.SecretaryDashboard(ctx)
		if !assert.NoError(t, err) {
			return
		}
		assert.Equal(t, 3, dash.StudentsCount)

		addStudent("Davi Melo", "davi@etda.test", "15350946056")
		dash, err = svc.SecretaryDashboard(ctx)
		if assert.NoError(t, err) {
			assert.Equal(t, 3, dash.StudentsCount)
		}

		assert.NoError(t, svc.InvalidateDashboard(ctx))
		dash, err = svc.SecretaryDashboard(ctx)
		if assert.NoError(t, err) {
			assert.Equal(t, 4, dash.StudentsCount)
		}
	})
}

func TestService_Table(t *testing.T) {
	f := setup(t)
	svc := f.service()
	ctx := context.Background()

	_, err := svc.Table(ctx, "teachers")
	assert.Equal(t, report.ErrUnknownKind, err)

	tests := []struct {
		kind      string
		wantTitle string
		wantRows  [][]string
	}{
		{
			kind:      report.KindApproval,
			wantTitle: "Approval by subject",
			wantRows: [][]string{
				{"Art", "0", "0", "1", "0.0"},
				{"Math", "2", "1", "0", "66.7"},
			},
		},
		{
			kind:      report.KindSubjects,
			wantTitle: "Subjects",
			wantRows:  [][]string{{"Art", "40"}, {"Math", "80"}},
		},
		{
			kind:      report.KindStudents,
			wantTitle: "Students",
			wantRows: [][]string{
				{"Ana Souza", "ana@etda.test", "11144477735", "2008-05-14", ""},
				{"Zoe Lima", "zoe@etda.test", "52998224725", "2008-05-14", "9A"},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.kind, func(t *testing.T) {
			table, err := svc.Table(ctx, tc.kind)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, tc.wantTitle, table.Title)
			assert.Equal(t, tc.wantRows, table.Rows)
			assert.False(t, table.GeneratedAt.IsZero())
			for _, row := range table.Rows {
				assert.Len(t, row, len(table.Headers))
			}
		})
	}

	table, err := svc.Table(ctx, report.KindGrades)
	if assert.NoError(t, err) && assert.Len(t, table.Rows, 4) {
		assert.Equal(t, []string{"Ana Souza", "Math", "1st Bimester", "6.0", "6.0", "0", "6.0", "approved"}, table.Rows[0])
	}
}
