package student_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/etda/school/core"
	"github.com/etda/school/core/class"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/user"
	emailsvc "github.com/etda/school/services/email"
	inmemdb "github.com/etda/school/storage/database/inmem"
	testutil "github.com/etda/school/tests"
)

func setup(t *testing.T) (student.Service, user.Service, class.Class, *emailsvc.ConsoleServiceMock) {
	conf := testutil.NewConfig()
	db := inmemdb.Open()
	classRepo := inmemdb.NewClassRepository(db)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf, false))
	usrSvc := user.NewService(inmemdb.NewUserRepository(db), mailSvc, conf)
	svc := student.NewService(inmemdb.NewTransactor(db), inmemdb.NewStudentRepository(db), classRepo, usrSvc, mailSvc)
	return svc, usrSvc, testutil.CreateClass(t, classRepo, "9A", 2024), mailSvc
}

func fieldErrors(err error) map[string]string {
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		return nil
	}
	m := make(map[string]string, len(vErr.Fields))
	for _, f := range vErr.Fields {
		m[f.Field] = f.Error
	}
	return m
}

func TestService_Create(t *testing.T) {
	svc, usrSvc, cls, mailSvc := setup(t)
	ctx := context.Background()

	ns := student.NewStudent{
		Name:      "Lucas Pereira",
		Email:     "lucas@etda.test",
		Password:  "S3cr3t!pwd",
		CPF:       "52998224725",
		BirthDate: core.NewDate(2009, time.July, 3),
		ClassID:   cls.ID,
	}
	std, err := svc.Create(ctx, ns)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, "Lucas Pereira", std.Name)
	assert.Equal(t, "9A", std.ClassName)
	assert.Equal(t, ns.BirthDate, std.BirthDate)

	usr, err := usrSvc.GetByID(ctx, std.UserID)
	if assert.NoError(t, err) {
		assert.Equal(t, user.RoleStudent, usr.Role)
		assert.True(t, usr.IsActive)
		assert.NoError(t, usr.CheckPassword("S3cr3t!pwd"))
	}

	sent := mailSvc.SentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, "welcome", sent[0].TemplateName)
		assert.Equal(t, "lucas@etda.test", sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "Lucas Pereira")
	}

	tests := []struct {
		name      string
		mutate    func(ns *student.NewStudent)
		wantField string
	}{
		{"duplicate email", func(ns *student.NewStudent) { ns.CPF = "11144477735" }, "email"},
		{"duplicate cpf", func(ns *student.NewStudent) { ns.Email = "other@etda.test" }, "cpf"},
		{"unknown class", func(ns *student.NewStudent) {
			ns.Email, ns.CPF, ns.ClassID = "other@etda.test", "11144477735", "7c9e6679-7425-40de-944b-e07fc1f90ae7"
		}, "class_id"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := ns
			tc.mutate(&req)
			_, err := svc.Create(ctx, req)
			assert.Contains(t, fieldErrors(err), tc.wantField)
		})
	}

	students, err := svc.Query(ctx, nil)
	if assert.NoError(t, err) {
		assert.Len(t, students, 1)
	}
}

func TestService_Update(t *testing.T) {
	svc, usrSvc, cls, _ := setup(t)
	ctx := context.Background()

	std, err := svc.Create(ctx, student.NewStudent{
		Name:      "Lucas Pereira",
		Email:     "lucas@etda.test",
		Password:  "S3cr3t!pwd",
		CPF:       "52998224725",
		BirthDate: core.NewDate(2009, time.July, 3),
	})
	if !assert.NoError(t, err) {
		return
	}
	assert.Empty(t, std.ClassID)

	std, err = svc.Update(ctx, std.ID, student.UpdateStudent{Name: "Lucas P. Pereira", ClassID: &cls.ID})
	if assert.NoError(t, err) {
		assert.Equal(t, "Lucas P. Pereira", std.Name)
		assert.Equal(t, "lucas@etda.test", std.Email)
		assert.Equal(t, cls.ID, std.ClassID)
	}

	noClass := ""
	std, err = svc.Update(ctx, std.ID, student.UpdateStudent{ClassID: &noClass})
	if assert.NoError(t, err) {
		assert.Empty(t, std.ClassID)
		assert.Equal(t, "Lucas P. Pereira", std.Name)
	}

	_, err = svc.Update(ctx, "7c9e6679-7425-40de-944b-e07fc1f90ae7", student.UpdateStudent{Name: "Nobody"})
	assert.Equal(t, student.ErrNotFound, err)

	// removing the student removes the account
	if assert.NoError(t, svc.Delete(ctx, std.ID)) {
		_, err = usrSvc.GetByID(ctx, std.UserID)
		assert.Equal(t, user.ErrNotFound, err)
		_, err = svc.GetByID(ctx, std.ID)
		assert.Equal(t, student.ErrNotFound, err)
	}
}
