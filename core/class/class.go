package class

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/etda/school/core"
)

var ErrNotFound = core.NewNotFoundError("class")

type Class struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	AcademicYear int       `json:"academic_year"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewClass is the payload used to create or replace a Class.
type NewClass struct {
	Name         string `json:"name" validate:"required,notblank"`
	AcademicYear int    `json:"academic_year" validate:"required,gte=1900,lte=2100"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	return validate.Struct(nc)
}

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
		// QueryClasses lists classes ordered by name.
		QueryClasses(ctx context.Context, exec ...core.DBExecutor) ([]Class, error)
		GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (Class, error)
		UpdateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
		DeleteClass(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, nc NewClass) (Class, error)
		Query(ctx context.Context) ([]Class, error)
		GetByID(ctx context.Context, id string) (Class, error)
		Update(ctx context.Context, id string, nc NewClass) (Class, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, nc NewClass) (Class, error) {
	return svc.repo.CreateClass(ctx, Class{
		Name:         nc.Name,
		AcademicYear: nc.AcademicYear,
		CreatedAt:    time.Now().UTC(),
	})
}

func (svc *service) Query(ctx context.Context) ([]Class, error) {
	return svc.repo.QueryClasses(ctx)
}

func (svc *service) GetByID(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *service) Update(ctx context.Context, id string, nc NewClass) (Class, error) {
	cls, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	cls.Name = nc.Name
	cls.AcademicYear = nc.AcademicYear
	return svc.repo.UpdateClass(ctx, cls)
}

// Delete removes the class; its students are kept without a class.
func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteClass(ctx, id)
}
