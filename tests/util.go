// Package testutil provides the configuration and fixtures shared by the tests.
package testutil

import (
	"context"
	"io"
	"log"
	"net/mail"
	"os"
	"testing"
	"time"

	"github.com/etda/school/core"
	"github.com/etda/school/core/attendance"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/class"
	"github.com/etda/school/core/grade"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/subject"
	"github.com/etda/school/core/teacher"
	"github.com/etda/school/core/user"
	logsvc "github.com/etda/school/services/logger"
)

// NewConfig returns the configuration used by tests. It does not read the environment.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:                   "ETDA",
		Build:                     "test",
		Env:                       "TEST",
		TestMode:                  true,
		SecretKey:                 "secret",
		RegistrationKey:           "let-me-in",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "ETDA", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Grading: core.GradingConfig{ApprovedMin: 5, RecoveryMin: 3},
	}
}

// NewLogger returns a logger with reporting disabled. Output is discarded unless verbose is set.
func NewLogger(conf *core.Config, verbose bool) core.Logger {
	var w io.Writer = io.Discard
	if verbose {
		w = os.Stderr
	}
	return logsvc.NewRollbarLogger(log.New(w, "", log.LstdFlags), conf)
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func CreateSubject(t *testing.T, repo subject.Repository, name string, workload int) subject.Subject {
	t.Helper()
	sub, err := repo.CreateSubject(context.Background(), subject.Subject{
		Name:      name,
		Workload:  workload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSubject(): %v", err)
	}
	return sub
}

func CreateClass(t *testing.T, repo class.Repository, name string, year int) class.Class {
	t.Helper()
	cls, err := repo.CreateClass(context.Background(), class.Class{
		Name:         name,
		AcademicYear: year,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateClass(): %v", err)
	}
	return cls
}

func CreateBimester(
	t *testing.T,
	repo bimester.Repository,
	subjectID, name string,
	start, end core.Date,
	status string,
) bimester.Bimester {
	t.Helper()
	bim, err := repo.CreateBimester(context.Background(), bimester.Bimester{
		Name:      name,
		SubjectID: subjectID,
		StartDate: start,
		EndDate:   end,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateBimester(): %v", err)
	}
	return bim
}

// CreateStudent creates the student user account along with its student record.
func CreateStudent(
	t *testing.T,
	usrRepo user.Repository,
	repo student.Repository,
	name, email, cpf, classID string,
	createdAt ...time.Time,
) student.Student {
	t.Helper()
	usr := CreateUser(t, usrRepo, name, email, "S3cr3t!pwd", user.RoleStudent, true, createdAt...)
	std, err := repo.CreateStudent(context.Background(), student.Student{
		UserID:    usr.ID,
		CPF:       cpf,
		BirthDate: core.NewDate(2008, time.May, 14),
		ClassID:   classID,
		CreatedAt: usr.CreatedAt,
	})
	if err != nil {
		t.Fatalf("CreateStudent(): %v", err)
	}
	return std
}

// CreateTeacher creates the teacher user account, its teacher record and subject assignments.
func CreateTeacher(
	t *testing.T,
	usrRepo user.Repository,
	repo teacher.Repository,
	name, email string,
	subjectIDs ...string,
) teacher.Teacher {
	t.Helper()
	ctx := context.Background()
	usr := CreateUser(t, usrRepo, name, email, "S3cr3t!pwd", user.RoleTeacher, true)
	tch, err := repo.CreateTeacher(ctx, teacher.Teacher{UserID: usr.ID, CreatedAt: usr.CreatedAt})
	if err != nil {
		t.Fatalf("CreateTeacher(): %v", err)
	}
	if err = repo.SetTeacherSubjects(ctx, tch.ID, subjectIDs); err != nil {
		t.Fatalf("CreateTeacher(): %v", err)
	}
	tch, err = repo.GetTeacher(ctx, teacher.GetFilter{ID: tch.ID})
	if err != nil {
		t.Fatalf("CreateTeacher(): %v", err)
	}
	return tch
}

// CreateGrade stores a grade with its average and status computed by the default policy.
func CreateGrade(
	t *testing.T,
	repo grade.Repository,
	studentID, subjectID, bimesterID string,
	g1, g2 float64,
	absences int,
) grade.Grade {
	t.Helper()
	avg, status := grade.DefaultPolicy.Evaluate(g1, g2)
	now := time.Now().UTC()
	g, err := repo.UpsertGrade(context.Background(), grade.Grade{
		StudentID:  studentID,
		SubjectID:  subjectID,
		BimesterID: bimesterID,
		Grade1:     g1,
		Grade2:     g2,
		Absences:   absences,
		Average:    avg,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("CreateGrade(): %v", err)
	}
	return g
}

func CreateRecord(
	t *testing.T,
	repo attendance.Repository,
	studentID, subjectID, bimesterID string,
	date core.Date,
	present bool,
) attendance.Record {
	t.Helper()
	rec, err := repo.UpsertRecord(context.Background(), attendance.Record{
		StudentID:  studentID,
		SubjectID:  subjectID,
		BimesterID: bimesterID,
		Date:       date,
		Present:    present,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateRecord(): %v", err)
	}
	return rec
}
