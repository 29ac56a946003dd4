package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/etda/school/core"
	"github.com/etda/school/core/user"
	emailsvc "github.com/etda/school/services/email"
	inmemdb "github.com/etda/school/storage/database/inmem"
	testutil "github.com/etda/school/tests"
)

func TestService_Register(t *testing.T) {
	conf := testutil.NewConfig()
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf, false))
	svc := user.NewService(inmemdb.NewUserRepository(inmemdb.Open()), mailSvc, conf)
	ctx := context.Background()
	nu := user.NewUser{Name: "Rita Secretary", Email: "rita@etda.test", Password: "S3cr3t!pwd", Role: user.RoleSecretary}

	_, err := svc.Register(ctx, nu, "wrong key")
	if vErr, ok := err.(*core.ValidationError); assert.True(t, ok, "got %T (%v)", err, err) {
		assert.Equal(t, "registration_key", vErr.Fields[0].Field)
	}

	usr, err := svc.Register(ctx, nu, conf.RegistrationKey)
	if assert.NoError(t, err) {
		assert.Equal(t, user.RoleSecretary, usr.Role)
		assert.True(t, usr.IsActive)
	}

	_, err = svc.Register(ctx, nu, conf.RegistrationKey)
	if vErr, ok := err.(*core.ValidationError); assert.True(t, ok, "got %T (%v)", err, err) {
		assert.Equal(t, "email", vErr.Fields[0].Field)
	}

	conf.RegistrationKey = ""
	_, err = svc.Register(ctx, nu, "")
	assert.Equal(t, user.ErrRegistrationDisabled, err)
}

func TestService_PasswordReset(t *testing.T) {
	conf := testutil.NewConfig()
	repo := inmemdb.NewUserRepository(inmemdb.Open())
	mailSvc := emailsvc.NewConsoleServiceMock(conf, testutil.NewLogger(conf, false))
	svc := user.NewService(repo, mailSvc, conf)
	ctx := context.Background()

	usr := testutil.CreateUser(t, repo, "Rita Secretary", "rita@etda.test", "S3cr3t!pwd", user.RoleSecretary, true)
	testutil.CreateUser(t, repo, "Old Secretary", "old@etda.test", "S3cr3t!pwd", user.RoleSecretary, false)

	assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "nobody@etda.test"))
	assert.Equal(t, user.ErrNotFound, svc.RequestPasswordReset(ctx, "old@etda.test"))
	assert.Empty(t, mailSvc.SentMessages())

	if !assert.NoError(t, svc.RequestPasswordReset(ctx, " RITA@etda.test ")) {
		return
	}
	sent := mailSvc.SentMessages()
	if !assert.Len(t, sent, 1) {
		return
	}
	assert.Equal(t, "password_reset", sent[0].TemplateName)
	data := sent[0].TemplateData.(map[string]string)
	assert.Contains(t, sent[0].TextContent, "/password-reset/"+data["UID"]+"/"+data["Token"])

	tests := []struct {
		name      string
		data      user.ResetUserPassword
		wantField string
	}{
		{"bad uid", user.ResetUserPassword{UID: "!!", Token: data["Token"], Password: "N3w!pwd-rita"}, "uid"},
		{"unknown uid", user.ResetUserPassword{UID: user.EncodeUID(user.User{ID: "7c9e6679-7425-40de-944b-e07fc1f90ae7"}), Token: data["Token"], Password: "N3w!pwd-rita"}, "uid"},
		{"bad token", user.ResetUserPassword{UID: data["UID"], Token: "abc-def", Password: "N3w!pwd-rita"}, "token"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.ResetPassword(ctx, tc.data)
			if vErr, ok := err.(*core.ValidationError); assert.True(t, ok, "got %T (%v)", err, err) {
				assert.Equal(t, tc.wantField, vErr.Fields[0].Field)
			}
		})
	}

	err := svc.ResetPassword(ctx, user.ResetUserPassword{UID: data["UID"], Token: data["Token"], Password: "N3w!pwd-rita"})
	if !assert.NoError(t, err) {
		return
	}
	usr, err = svc.GetByID(ctx, usr.ID)
	if assert.NoError(t, err) {
		assert.NoError(t, usr.CheckPassword("N3w!pwd-rita"))
	}

	// the token is bound to the previous password
	err = svc.ResetPassword(ctx, user.ResetUserPassword{UID: data["UID"], Token: data["Token"], Password: "An0ther!pwd"})
	assert.Error(t, err)
}
