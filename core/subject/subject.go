package subject

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/etda/school/core"
)

var ErrNotFound = core.NewNotFoundError("subject")

type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Workload  int       `json:"workload"` // hours
	CreatedAt time.Time `json:"created_at"`
}

// NewSubject is the payload used to create or replace a Subject.
type NewSubject struct {
	Name     string `json:"name" validate:"required,notblank"`
	Workload int    `json:"workload" validate:"required,gt=0"`
}

func (ns *NewSubject) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

type (
	Repository interface {
		CreateSubject(ctx context.Context, sub Subject, exec ...core.DBExecutor) (Subject, error)
		// QuerySubjects lists subjects ordered by name, restricted to ids when provided.
		QuerySubjects(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]Subject, error)
		GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (Subject, error)
		UpdateSubject(ctx context.Context, sub Subject, exec ...core.DBExecutor) (Subject, error)
		DeleteSubject(ctx context.Context, id string, exec ...core.DBExecutor) error
		CountSubjects(ctx context.Context, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		Create(ctx context.Context, ns NewSubject) (Subject, error)
		Query(ctx context.Context, ids ...string) ([]Subject, error)
		GetByID(ctx context.Context, id string) (Subject, error)
		Update(ctx context.Context, id string, ns NewSubject) (Subject, error)
		Delete(ctx context.Context, id string) error
		// CheckExist returns a validation error on field when any of ids is unknown.
		CheckExist(ctx context.Context, field string, ids ...string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, ns NewSubject) (Subject, error) {
	return svc.repo.CreateSubject(ctx, Subject{
		Name:      ns.Name,
		Workload:  ns.Workload,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) Query(ctx context.Context, ids ...string) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, ids)
}

func (svc *service) GetByID(ctx context.Context, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, id)
}

func (svc *service) Update(ctx context.Context, id string, ns NewSubject) (Subject, error) {
	sub, err := svc.repo.GetSubject(ctx, id)
	if err != nil {
		return Subject{}, err
	}
	sub.Name = ns.Name
	sub.Workload = ns.Workload
	return svc.repo.UpdateSubject(ctx, sub)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteSubject(ctx, id)
}

func (svc *service) CheckExist(ctx context.Context, field string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := svc.repo.QuerySubjects(ctx, ids)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(found))
	for _, sub := range found {
		known[sub.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return core.NewValidationError(ErrNotFound, core.FieldError{Field: field, Error: "unknown subject " + id})
		}
	}
	return nil
}
