package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/etda/school/core"
	"github.com/etda/school/core/attendance"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/subject"
	"github.com/etda/school/core/teacher"
	"github.com/etda/school/core/user"
	emailsvc "github.com/etda/school/services/email"
	inmemdb "github.com/etda/school/storage/database/inmem"
	testutil "github.com/etda/school/tests"
)

var (
	bimStart = core.NewDate(2024, time.February, 1)
	bimEnd   = core.NewDate(2024, time.April, 15)
	classDay = core.NewDate(2024, time.March, 4)
)

type fixture struct {
	svc      attendance.Service
	repo     attendance.Repository
	tchUsr   string
	sub      subject.Subject
	active   bimester.Bimester
	closed   bimester.Bimester
	students []student.Student // ordered by name
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
	repo := inmemdb.NewAttendanceRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf, false))
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	subSvc := subject.NewService(subRepo)
	bimSvc := bimester.NewService(bimRepo, subSvc)
	tchSvc := teacher.NewService(tx, tchRepo, subSvc, usrSvc, mailSvc)

	sub := testutil.CreateSubject(t, subRepo, "History", 60)
	f := fixture{
		svc:    attendance.NewService(tx, repo, stdRepo, bimSvc, tchSvc),
		repo:   repo,
		sub:    sub,
		active: testutil.CreateBimester(t, bimRepo, sub.ID, "1st Bimester", bimStart, bimEnd, bimester.StatusActive),
		closed: testutil.CreateBimester(t, bimRepo, sub.ID, "2nd Bimester", bimStart, bimEnd, bimester.StatusClosed),
		students: []student.Student{
			testutil.CreateStudent(t, usrRepo, stdRepo, "Bruno Alves", "bruno@etda.test", "52998224725", ""),
			testutil.CreateStudent(t, usrRepo, stdRepo, "Carla Dias", "carla@etda.test", "11144477735", ""),
		},
	}
	f.tchUsr = testutil.CreateTeacher(t, usrRepo, tchRepo, "Maria Teacher", "maria@etda.test", sub.ID).UserID
	return f
}

func TestService_SaveSheet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	bruno, carla := f.students[0], f.students[1]

	tests := []struct {
		name    string
		userID  string
		req     attendance.SaveSheetRequest
		wantErr string // field error on the date or bimester_id field, or "permission"
	}{
		{
			name:    "not a teacher",
			userID:  bruno.UserID,
			req:     attendance.SaveSheetRequest{SubjectID: f.sub.ID, BimesterID: f.active.ID, Date: classDay},
			wantErr: "permission",
		},
		{
			name:    "closed bimester",
			userID:  f.tchUsr,
			req:     attendance.SaveSheetRequest{SubjectID: f.sub.ID, BimesterID: f.closed.ID, Date: classDay},
			wantErr: "bimester is closed",
		},
		{
			name:    "date out of bimester",
			userID:  f.tchUsr,
			req:     attendance.SaveSheetRequest{SubjectID: f.sub.ID, BimesterID: f.active.ID, Date: core.NewDate(2024, time.May, 2)},
			wantErr: "date must be within the bimester",
		},
		{
			name:    "missing date",
			userID:  f.tchUsr,
			req:     attendance.SaveSheetRequest{SubjectID: f.sub.ID, BimesterID: f.active.ID},
			wantErr: "this field is required",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SaveSheet(ctx, tc.userID, tc.req)
			if tc.wantErr == "permission" {
				assert.Equal(t, core.ErrPermissionDenied, err)
				return
			}
			vErr, ok := err.(*core.ValidationError)
			if assert.True(t, ok, "got %T (%v)", err, err) && assert.Len(t, vErr.Fields, 1) {
				assert.Equal(t, tc.wantErr, vErr.Fields[0].Error)
			}
		})
	}

	t.Run("unknown student", func(t *testing.T) {
		_, err := f.svc.SaveSheet(ctx, f.tchUsr, attendance.SaveSheetRequest{
			SubjectID:  f.sub.ID,
			BimesterID: f.active.ID,
			Date:       classDay,
			Entries:    []attendance.SheetEntry{{StudentID: f.sub.ID, Present: true}},
		})
		vErr, ok := err.(*core.ValidationError)
		if assert.True(t, ok, "got %T (%v)", err, err) {
			assert.Equal(t, "student_id", vErr.Fields[0].Field)
		}
	})

	t.Run("missing students are absent", func(t *testing.T) {
		records, err := f.svc.SaveSheet(ctx, f.tchUsr, attendance.SaveSheetRequest{
			SubjectID:  f.sub.ID,
			BimesterID: f.active.ID,
			Date:       classDay,
			Entries:    []attendance.SheetEntry{{StudentID: carla.ID, Present: true}},
		})
		if !assert.NoError(t, err) || !assert.Len(t, records, 2) {
			return
		}
		assert.Equal(t, bruno.ID, records[0].StudentID)
		assert.False(t, records[0].Present)
		assert.Equal(t, carla.ID, records[1].StudentID)
		assert.True(t, records[1].Present)
	})

	t.Run("saving again updates the day", func(t *testing.T) {
		_, err := f.svc.SaveSheet(ctx, f.tchUsr, attendance.SaveSheetRequest{
			SubjectID:  f.sub.ID,
			BimesterID: f.active.ID,
			Date:       classDay,
			Entries: []attendance.SheetEntry{
				{StudentID: bruno.ID, Present: true},
				{StudentID: carla.ID, Present: true},
			},
		})
		if !assert.NoError(t, err) {
			return
		}
		records, err := f.svc.History(ctx, bruno.ID, "", "")
		if assert.NoError(t, err) && assert.Len(t, records, 1) {
			assert.True(t, records[0].Present)
			assert.Equal(t, "History", records[0].SubjectName)
		}
	})
}

func TestService_Sheet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	bruno, carla := f.students[0], f.students[1]
	testutil.CreateRecord(t, f.repo, carla.ID, f.sub.ID, f.active.ID, classDay, false)

	sheet, err := f.svc.Sheet(ctx, f.tchUsr, f.sub.ID, f.active.ID, classDay)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, classDay, sheet.Date)
	assert.Equal(t, []attendance.SheetRow{
		{StudentID: bruno.ID, StudentName: "Bruno Alves", Present: true},
		{StudentID: carla.ID, StudentName: "Carla Dias", Present: false, Saved: true},
	}, sheet.Rows)

	// closed bimesters can be read
	_, err = f.svc.Sheet(ctx, f.tchUsr, f.sub.ID, f.closed.ID, classDay)
	assert.NoError(t, err)
}

func TestService_AbsenceSummary(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	bruno := f.students[0]

	summary, err := f.svc.AbsenceSummary(ctx, bruno.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, attendance.AbsenceSummary{BySubject: []attendance.AbsenceCount{}}, summary)
	}

	for day := 4; day <= 7; day++ {
		testutil.CreateRecord(t, f.repo, bruno.ID, f.sub.ID, f.active.ID, core.NewDate(2024, time.March, day), day%2 == 0)
	}
	testutil.CreateRecord(t, f.repo, bruno.ID, f.sub.ID, f.closed.ID, classDay, false)

	summary, err = f.svc.AbsenceSummary(ctx, bruno.ID)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, []attendance.AbsenceCount{
		{SubjectID: f.sub.ID, SubjectName: "History", BimesterID: f.active.ID, BimesterName: "1st Bimester", Count: 2},
		{SubjectID: f.sub.ID, SubjectName: "History", BimesterID: f.closed.ID, BimesterName: "2nd Bimester", Count: 1},
	}, summary.BySubject)

	records, err := f.svc.History(ctx, bruno.ID, f.sub.ID, f.active.ID)
	if assert.NoError(t, err) && assert.Len(t, records, 4) {
		assert.Equal(t, core.NewDate(2024, time.March, 7), records[0].Date)
	}
}
