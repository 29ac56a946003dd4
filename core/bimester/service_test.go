package bimester_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/etda/school/core"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/subject"
	inmemdb "github.com/etda/school/storage/database/inmem"
	testutil "github.com/etda/school/tests"
)

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.Open()
	subRepo := inmemdb.NewSubjectRepository(db)
	bimRepo := inmemdb.NewBimesterRepository(db)
	usrRepo := inmemdb.NewUserRepository(db)
	stdRepo := inmemdb.NewStudentRepository(db)
	svc := bimester.NewService(bimRepo, subject.NewService(subRepo))

	math := testutil.CreateSubject(t, subRepo, "Math", 80)
	art := testutil.CreateSubject(t, subRepo, "Art", 40)
	start, end := core.NewDate(2024, time.February, 1), core.NewDate(2024, time.April, 15)
	graded := testutil.CreateBimester(t, bimRepo, math.ID, "1st Bimester", start, end, bimester.StatusActive)
	attended := testutil.CreateBimester(t, bimRepo, math.ID, "2nd Bimester", start, end, bimester.StatusActive)
	empty := testutil.CreateBimester(t, bimRepo, math.ID, "3rd Bimester", start, end, bimester.StatusActive)

	zoe := testutil.CreateStudent(t, usrRepo, stdRepo, "Zoe Lima", "zoe@etda.test", "52998224725", "")
	testutil.CreateGrade(t, inmemdb.NewGradeRepository(db), zoe.ID, math.ID, graded.ID, 7, 8, 0)
	testutil.CreateRecord(t, inmemdb.NewAttendanceRepository(db), zoe.ID, math.ID, attended.ID, start, false)

	moveTo := func(bim bimester.Bimester, subjectID string) bimester.NewBimester {
		return bimester.NewBimester{
			Name:      bim.Name,
			SubjectID: subjectID,
			StartDate: bim.StartDate,
			EndDate:   bim.EndDate,
			Status:    bimester.StatusClosed,
		}
	}

	for _, bim := range []bimester.Bimester{graded, attended} {
		t.Run("subject locked: "+bim.Name, func(t *testing.T) {
			_, err := svc.Update(ctx, bim.ID, moveTo(bim, art.ID))
			vErr, ok := err.(*core.ValidationError)
			if assert.True(t, ok, "got %T (%v)", err, err) && assert.Len(t, vErr.Fields, 1) {
				assert.Equal(t, core.FieldError{Field: "subject_id", Error: bimester.ErrSubjectLocked.Error()}, vErr.Fields[0])
			}

			// other fields stay editable
			updated, err := svc.Update(ctx, bim.ID, moveTo(bim, math.ID))
			if assert.NoError(t, err) {
				assert.Equal(t, bimester.StatusClosed, updated.Status)
			}
		})
	}

	t.Run("subject change without records", func(t *testing.T) {
		updated, err := svc.Update(ctx, empty.ID, moveTo(empty, art.ID))
		if assert.NoError(t, err) {
			assert.Equal(t, art.ID, updated.SubjectID)
			assert.Equal(t, "Art", updated.SubjectName)
		}
	})
}
