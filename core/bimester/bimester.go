package bimester

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/etda/school/core"
	"github.com/etda/school/core/subject"
)

const (
	StatusActive = "active"
	StatusClosed = "closed"
)

var (
	ErrNotFound = core.NewNotFoundError("bimester")

	ErrSubjectLocked = errors.New("the subject of a bimester with grades or attendance cannot change")

	endDateTag  = "enddate"
	endDateText = "end_date cannot be before start_date"
)

// Bimester is a grading period of one subject. Grades and attendance can only be
// recorded while it is active.
type Bimester struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	StartDate   core.Date `json:"start_date"`
	EndDate     core.Date `json:"end_date"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (b Bimester) IsActive() bool { return b.Status == StatusActive }

// Contains reports whether d falls within the bimester dates.
func (b Bimester) Contains(d core.Date) bool {
	return !d.Before(b.StartDate) && !d.After(b.EndDate)
}

// NewBimester is the payload used to create or replace a Bimester.
type NewBimester struct {
	Name      string    `json:"name" validate:"required,notblank"`
	SubjectID string    `json:"subject_id" validate:"required,uuid"`
	StartDate core.Date `json:"start_date"`
	EndDate   core.Date `json:"end_date"`
	Status    string    `json:"status" validate:"omitempty,oneof=active closed"`
}

func (nb *NewBimester) Validate(validate *validator.Validate) error {
	nb.Name = core.CleanString(nb.Name)
	nb.Status = core.CleanString(nb.Status, true /* lower */)
	if nb.Status == "" {
		nb.Status = StatusActive
	}
	return validate.Struct(nb)
}

// InitValidators registers the bimester validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(bimesterStructValidation, NewBimester{})
	core.RegisterCustomTranslation(validate, translator, endDateTag, endDateText)
}

func bimesterStructValidation(sl validator.StructLevel) {
	nb, ok := sl.Current().Interface().(NewBimester)
	if !ok {
		return
	}
	if nb.StartDate.IsZero() {
		sl.ReportError(nb.StartDate, "start_date", "StartDate", "required", "")
	}
	if nb.EndDate.IsZero() {
		sl.ReportError(nb.EndDate, "end_date", "EndDate", "required", "")
	}
	if !nb.StartDate.IsZero() && !nb.EndDate.IsZero() && nb.EndDate.Before(nb.StartDate) {
		sl.ReportError(nb.EndDate, "end_date", "EndDate", endDateTag, "")
	}
}

type QueryFilter struct {
	SubjectIDs []string
	Status     string
}

type (
	Repository interface {
		CreateBimester(ctx context.Context, bim Bimester, exec ...core.DBExecutor) (Bimester, error)
		// QueryBimesters lists bimesters ordered by start date.
		QueryBimesters(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Bimester, error)
		GetBimester(ctx context.Context, id string, exec ...core.DBExecutor) (Bimester, error)
		UpdateBimester(ctx context.Context, bim Bimester, exec ...core.DBExecutor) (Bimester, error)
		DeleteBimester(ctx context.Context, id string, exec ...core.DBExecutor) error
		// HasRecords reports whether grades or attendance were recorded in the bimester.
		HasRecords(ctx context.Context, id string, exec ...core.DBExecutor) (bool, error)
	}

	Service interface {
		Create(ctx context.Context, nb NewBimester) (Bimester, error)
		Query(ctx context.Context, filter *QueryFilter) ([]Bimester, error)
		GetByID(ctx context.Context, id string) (Bimester, error)
		Update(ctx context.Context, id string, nb NewBimester) (Bimester, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		repo   Repository
		subSvc subject.Service
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, subSvc subject.Service) Service {
	return &service{repo: repo, subSvc: subSvc}
}

func (svc *service) Create(ctx context.Context, nb NewBimester) (Bimester, error) {
	if err := svc.subSvc.CheckExist(ctx, "subject_id", nb.SubjectID); err != nil {
		return Bimester{}, err
	}
	return svc.repo.CreateBimester(ctx, Bimester{
		Name:      nb.Name,
		SubjectID: nb.SubjectID,
		StartDate: nb.StartDate,
		EndDate:   nb.EndDate,
		Status:    nb.Status,
		CreatedAt: time.Now().UTC(),
	})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]Bimester, error) {
	return svc.repo.QueryBimesters(ctx, filter)
}

func (svc *service) GetByID(ctx context.Context, id string) (Bimester, error) {
	return svc.repo.GetBimester(ctx, id)
}

func (svc *service) Update(ctx context.Context, id string, nb NewBimester) (Bimester, error) {
	bim, err := svc.repo.GetBimester(ctx, id)
	if err != nil {
		return Bimester{}, err
	}
	if nb.SubjectID != bim.SubjectID {
		if err := svc.subSvc.CheckExist(ctx, "subject_id", nb.SubjectID); err != nil {
			return Bimester{}, err
		}
		used, err := svc.repo.HasRecords(ctx, bim.ID)
		if err != nil {
			return Bimester{}, errors.Wrap(err, "checking bimester records")
		}
		if used {
			return Bimester{}, core.NewValidationError(ErrSubjectLocked, core.FieldError{Field: "subject_id", Error: ErrSubjectLocked.Error()})
		}
	}
	bim.Name = nb.Name
	bim.SubjectID = nb.SubjectID
	bim.StartDate = nb.StartDate
	bim.EndDate = nb.EndDate
	bim.Status = nb.Status
	return svc.repo.UpdateBimester(ctx, bim)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteBimester(ctx, id)
}
