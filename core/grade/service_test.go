package grade_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/etda/school/core"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/grade"
	"github.com/etda/school/core/subject"
	"github.com/etda/school/core/teacher"
	"github.com/etda/school/core/user"
	emailsvc "github.com/etda/school/services/email"
	inmemdb "github.com/etda/school/storage/database/inmem"
	testutil "github.com/etda/school/tests"
)

type fixture struct {
	svc     grade.Service
	db      *inmemdb.DB
	tchUsr  string
	other   string
	sub     subject.Subject
	active  bimester.Bimester
	closed  bimester.Bimester
	foreign bimester.Bimester
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

	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf, false))
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	subSvc := subject.NewService(subRepo)
	bimSvc := bimester.NewService(bimRepo, subSvc)
	tchSvc := teacher.NewService(tx, tchRepo, subSvc, usrSvc, mailSvc)

	math := testutil.CreateSubject(t, subRepo, "Math", 80)
	art := testutil.CreateSubject(t, subRepo, "Art", 40)
	start, end := core.NewDate(2024, time.February, 1), core.NewDate(2024, time.April, 15)

	f := fixture{
		svc:     grade.NewService(tx, inmemdb.NewGradeRepository(db), stdRepo, bimSvc, tchSvc, grade.DefaultPolicy),
		db:      db,
		sub:     math,
		active:  testutil.CreateBimester(t, bimRepo, math.ID, "1st Bimester", start, end, bimester.StatusActive),
		closed:  testutil.CreateBimester(t, bimRepo, math.ID, "2nd Bimester", start, end, bimester.StatusClosed),
		foreign: testutil.CreateBimester(t, bimRepo, art.ID, "1st Bimester", start, end, bimester.StatusActive),
	}
	f.tchUsr = testutil.CreateTeacher(t, usrRepo, tchRepo, "Maria Teacher", "maria@etda.test", math.ID).UserID
	f.other = testutil.CreateTeacher(t, usrRepo, tchRepo, "Paulo Teacher", "paulo@etda.test", art.ID).UserID
	return f
}

func fieldError(t *testing.T, err error, field string) string {
	t.Helper()
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("got %T (%v); want *core.ValidationError", err, err)
	}
	for _, f := range vErr.Fields {
		if f.Field == field {
			return f.Error
		}
	}
	t.Fatalf("no error on field %q: %+v", field, vErr.Fields)
	return ""
}

func TestService_SaveSheet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	usrRepo := inmemdb.NewUserRepository(f.db)
	stdRepo := inmemdb.NewStudentRepository(f.db)
	zoe := testutil.CreateStudent(t, usrRepo, stdRepo, "Zoe Lima", "zoe@etda.test", "52998224725", "")
	ana := testutil.CreateStudent(t, usrRepo, stdRepo, "ana Souza", "ana@etda.test", "11144477735", "")

	req := func(bimID string, entries ...grade.SheetEntry) grade.SaveSheetRequest {
		return grade.SaveSheetRequest{SubjectID: f.sub.ID, BimesterID: bimID, Entries: entries}
	}

	t.Run("not assigned teacher", func(t *testing.T) {
		_, err := f.svc.SaveSheet(ctx, f.other, req(f.active.ID, grade.SheetEntry{StudentID: zoe.ID}))
		assert.Equal(t, core.ErrPermissionDenied, err)
	})
	t.Run("closed bimester", func(t *testing.T) {
		_, err := f.svc.SaveSheet(ctx, f.tchUsr, req(f.closed.ID, grade.SheetEntry{StudentID: zoe.ID}))
		assert.Equal(t, "bimester is closed", fieldError(t, err, "bimester_id"))
	})
	t.Run("bimester of another subject", func(t *testing.T) {
		_, err := f.svc.SaveSheet(ctx, f.tchUsr, req(f.foreign.ID, grade.SheetEntry{StudentID: zoe.ID}))
		assert.Equal(t, "bimester does not belong to this subject", fieldError(t, err, "bimester_id"))
	})
	t.Run("unknown student rolls back", func(t *testing.T) {
		unknown := "7c9e6679-7425-40de-944b-e07fc1f90ae7"
		_, err := f.svc.SaveSheet(ctx, f.tchUsr, req(f.active.ID,
			grade.SheetEntry{StudentID: zoe.ID, Grade1: 8, Grade2: 9},
			grade.SheetEntry{StudentID: unknown},
		))
		assert.Equal(t, "unknown student "+unknown, fieldError(t, err, "student_id"))

		grades, err := f.svc.ForStudent(ctx, zoe.ID)
		if assert.NoError(t, err) {
			assert.Empty(t, grades)
		}
	})
	t.Run("saves and recomputes", func(t *testing.T) {
		grades, err := f.svc.SaveSheet(ctx, f.tchUsr, req(f.active.ID,
			grade.SheetEntry{StudentID: zoe.ID, Grade1: 4.5, Grade2: 5.5, Absences: 2},
			grade.SheetEntry{StudentID: ana.ID, Grade1: 2, Grade2: 3.5},
		))
		if !assert.NoError(t, err) || !assert.Len(t, grades, 2) {
			return
		}
		byStudent := map[string]grade.Grade{}
		for _, g := range grades {
			byStudent[g.StudentID] = g
		}
		assert.Equal(t, 5.0, byStudent[zoe.ID].Average)
		assert.Equal(t, grade.StatusApproved, byStudent[zoe.ID].Status)
		assert.Equal(t, 2, byStudent[zoe.ID].Absences)
		assert.Equal(t, 2.75, byStudent[ana.ID].Average)
		assert.Equal(t, grade.StatusFailed, byStudent[ana.ID].Status)
	})
	t.Run("updates in place", func(t *testing.T) {
		_, err := f.svc.SaveSheet(ctx, f.tchUsr, req(f.active.ID, grade.SheetEntry{StudentID: ana.ID, Grade1: 4, Grade2: 4.5}))
		if !assert.NoError(t, err) {
			return
		}
		grades, err := f.svc.ForStudent(ctx, ana.ID)
		if assert.NoError(t, err) && assert.Len(t, grades, 1) {
			assert.Equal(t, 4.25, grades[0].Average)
			assert.Equal(t, grade.StatusRecovery, grades[0].Status)
			assert.Equal(t, "Math", grades[0].SubjectName)
		}
	})
}

func TestService_Sheet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	usrRepo := inmemdb.NewUserRepository(f.db)
	stdRepo := inmemdb.NewStudentRepository(f.db)
	zoe := testutil.CreateStudent(t, usrRepo, stdRepo, "Zoe Lima", "zoe@etda.test", "52998224725", "")
	ana := testutil.CreateStudent(t, usrRepo, stdRepo, "ana Souza", "ana@etda.test", "11144477735", "")
	testutil.CreateGrade(t, inmemdb.NewGradeRepository(f.db), zoe.ID, f.sub.ID, f.active.ID, 7, 8, 1)

	_, err := f.svc.Sheet(ctx, f.other, f.sub.ID, f.active.ID)
	assert.Equal(t, core.ErrPermissionDenied, err)

	// closed bimesters stay readable
	_, err = f.svc.Sheet(ctx, f.tchUsr, f.sub.ID, f.closed.ID)
	assert.NoError(t, err)

	sheet, err := f.svc.Sheet(ctx, f.tchUsr, f.sub.ID, f.active.ID)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, f.active.ID, sheet.Bimester.ID)
	assert.Equal(t, []grade.SheetRow{
		{StudentID: ana.ID, StudentName: "ana Souza", Average: 0, Status: grade.StatusFailed},
		{StudentID: zoe.ID, StudentName: "Zoe Lima", Grade1: 7, Grade2: 8, Absences: 1, Average: 7.5, Status: grade.StatusApproved, Saved: true},
	}, sheet.Rows)
}
