package user

import (
	"testing"
	"time"

	"github.com/etda/school/core"
)

func TestMakeVerifyToken(t *testing.T) {
	gen := NewTokenGenerator(&core.Config{
		SecretKey:                 "secret",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
	})

	now := time.Now()
	usr := User{
		ID:        "0b5f7f3e-8d7c-4c1e-9a4b-2f4f3c9d1e21",
		Name:      "T",
		Email:     "t@test.test",
		Role:      RoleStudent,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	_ = usr.SetPassword("pwd")

	validToken, err := gen.MakeToken(usr)
	if err != nil {
		t.Fatalf("MakeToken(): %v", err)
	}

	// generate an expired token
	dayLate := gen.timeout + (24 * time.Hour)
	NowFunc = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken, err := gen.MakeToken(usr)
	if err != nil {
		t.Fatalf("MakeToken(): %v", err)
	}
	NowFunc = time.Now // reset

	// a new login invalidates previous tokens
	loggedInAgain := usr
	loggedInAgain.LastLogin = now.Add(time.Minute)

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "token of a previous login", usr: loggedInAgain, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := gen.VerifyToken(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("VerifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "0b5f7f3e-8d7c-4c1e-9a4b-2f4f3c9d1e21"}
	id, err := DecodeUID(EncodeUID(usr))
	if err != nil {
		t.Fatalf("DecodeUID(): %v", err)
	}
	if id != usr.ID {
		t.Errorf("DecodeUID() = %s, want %s", id, usr.ID)
	}
	if _, err := DecodeUID("not base64!"); err == nil {
		t.Error("DecodeUID() expected an error")
	}
}

func TestDashboardPath(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		{role: RoleSecretary, want: "/secretary"},
		{role: RoleTeacher, want: "/teacher"},
		{role: RoleStudent, want: "/student"},
		{role: "admin", want: "/login"},
		{role: "", want: "/login"},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := DashboardPath(tt.role); got != tt.want {
				t.Errorf("DashboardPath(%q) = %s, want %s", tt.role, got, tt.want)
			}
		})
	}
}
