package grade

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/etda/school/core"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/teacher"
)

var ErrNotFound = core.NewNotFoundError("grade")

var (
	scoreTag  = "score"
	scoreText = "{0} must have at most 2 decimal places"
)

// Grade is the result of a student in a subject for one bimester.
type Grade struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	SubjectID    string    `json:"subject_id"`
	SubjectName  string    `json:"subject_name"`
	BimesterID   string    `json:"bimester_id"`
	BimesterName string    `json:"bimester_name"`
	Grade1       float64   `json:"grade1"`
	Grade2       float64   `json:"grade2"`
	Absences     int       `json:"absences"`
	Average      float64   `json:"average"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SheetEntry struct {
	StudentID string  `json:"student_id" validate:"required,uuid"`
	Grade1    float64 `json:"grade1" validate:"gte=0,lte=10,score"`
	Grade2    float64 `json:"grade2" validate:"gte=0,lte=10,score"`
	Absences  int     `json:"absences" validate:"gte=0"`
}

type SaveSheetRequest struct {
	SubjectID  string       `json:"subject_id" validate:"required,uuid"`
	BimesterID string       `json:"bimester_id" validate:"required,uuid"`
	Entries    []SheetEntry `json:"entries" validate:"required,min=1,dive"`
}

func (req *SaveSheetRequest) Validate(validate *validator.Validate) error {
	req.SubjectID = core.CleanString(req.SubjectID)
	req.BimesterID = core.CleanString(req.BimesterID)
	for i := range req.Entries {
		req.Entries[i].StudentID = core.CleanString(req.Entries[i].StudentID)
	}
	return validate.Struct(req)
}

// InitValidators registers the grade validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(scoreTag, scoreValidation)
	core.RegisterCustomTranslation(validate, translator, scoreTag, scoreText)
}

// scoreValidation accepts grades with at most two decimal places, the precision of the grades columns.
func scoreValidation(fl validator.FieldLevel) bool {
	cents := fl.Field().Float() * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}

// SheetRow is one line of the grade entry sheet. Saved is false when the student has no grade yet.
type SheetRow struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	Grade1      float64 `json:"grade1"`
	Grade2      float64 `json:"grade2"`
	Absences    int     `json:"absences"`
	Average     float64 `json:"average"`
	Status      Status  `json:"status"`
	Saved       bool    `json:"saved"`
}

type Sheet struct {
	Bimester bimester.Bimester `json:"bimester"`
	Rows     []SheetRow        `json:"rows"`
}

type QueryFilter struct {
	StudentIDs  []string
	SubjectIDs  []string
	BimesterIDs []string
}

type (
	Repository interface {
		// QueryGrades lists grades, most recently created first.
		QueryGrades(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Grade, error)
		// UpsertGrade inserts g or updates the grade of the same student, subject and bimester.
		UpsertGrade(ctx context.Context, g Grade, exec ...core.DBExecutor) (Grade, error)
	}

	Service interface {
		Sheet(ctx context.Context, teacherUserID, subjectID, bimesterID string) (Sheet, error)
		SaveSheet(ctx context.Context, teacherUserID string, req SaveSheetRequest) ([]Grade, error)
		ForStudent(ctx context.Context, studentID string) ([]Grade, error)
		Query(ctx context.Context, filter *QueryFilter) ([]Grade, error)
		Policy() Policy
	}

	service struct {
		tx      core.Transactor
		repo    Repository
		stdRepo student.Repository
		bimSvc  bimester.Service
		tchSvc  teacher.Service
		policy  Policy
	}
)

var _ Service = (*service)(nil)

func NewService(
	tx core.Transactor,
	repo Repository,
	stdRepo student.Repository,
	bimSvc bimester.Service,
	tchSvc teacher.Service,
	policy Policy,
) Service {
	return &service{
		tx:      tx,
		repo:    repo,
		stdRepo: stdRepo,
		bimSvc:  bimSvc,
		tchSvc:  tchSvc,
		policy:  policy,
	}
}

func (svc *service) Policy() Policy {
	return svc.policy
}

// CheckBimester ensures bimesterID belongs to subjectID. When writable is set the bimester must also be active.
func CheckBimester(ctx context.Context, bimSvc bimester.Service, subjectID, bimesterID string, writable bool) (bimester.Bimester, error) {
	bim, err := bimSvc.GetByID(ctx, bimesterID)
	if err != nil {
		if core.IsNotFound(err) {
			return bimester.Bimester{}, core.NewValidationError(err, core.FieldError{Field: "bimester_id", Error: "unknown bimester"})
		}
		return bimester.Bimester{}, errors.Wrap(err, "finding bimester")
	}
	if bim.SubjectID != subjectID {
		return bimester.Bimester{}, core.NewValidationError(
			errors.New("bimester subject mismatch"),
			core.FieldError{Field: "bimester_id", Error: "bimester does not belong to this subject"},
		)
	}
	if writable && !bim.IsActive() {
		return bimester.Bimester{}, core.NewValidationError(
			errors.New("bimester closed"),
			core.FieldError{Field: "bimester_id", Error: "bimester is closed"},
		)
	}
	return bim, nil
}

// SortStudents orders students by name.
func SortStudents(students []student.Student) {
	sort.SliceStable(students, func(i, j int) bool {
		return strings.ToLower(students[i].Name) < strings.ToLower(students[j].Name)
	})
}

func (svc *service) Sheet(ctx context.Context, teacherUserID, subjectID, bimesterID string) (Sheet, error) {
	if _, err := svc.tchSvc.AssertTeaches(ctx, teacherUserID, subjectID); err != nil {
		return Sheet{}, err
	}
	bim, err := CheckBimester(ctx, svc.bimSvc, subjectID, bimesterID, false)
	if err != nil {
		return Sheet{}, err
	}

	students, err := svc.stdRepo.QueryStudents(ctx, nil)
	if err != nil {
		return Sheet{}, errors.Wrap(err, "querying students")
	}
	SortStudents(students)

	grades, err := svc.repo.QueryGrades(ctx, &QueryFilter{
		SubjectIDs:  []string{subjectID},
		BimesterIDs: []string{bimesterID},
	})
	if err != nil {
		return Sheet{}, errors.Wrap(err, "querying grades")
	}
	byStudent := make(map[string]Grade, len(grades))
	for _, g := range grades {
		byStudent[g.StudentID] = g
	}

	rows := make([]SheetRow, 0, len(students))
	for _, std := range students {
		row := SheetRow{StudentID: std.ID, StudentName: std.Name}
		if g, ok := byStudent[std.ID]; ok {
			row.Grade1, row.Grade2, row.Absences, row.Saved = g.Grade1, g.Grade2, g.Absences, true
		}
		row.Average, row.Status = svc.policy.Evaluate(row.Grade1, row.Grade2)
		rows = append(rows, row)
	}
	return Sheet{Bimester: bim, Rows: rows}, nil
}

// SaveSheet stores every entry of req in one transaction. Averages and statuses are always computed here.
func (svc *service) SaveSheet(ctx context.Context, teacherUserID string, req SaveSheetRequest) ([]Grade, error) {
	if _, err := svc.tchSvc.AssertTeaches(ctx, teacherUserID, req.SubjectID); err != nil {
		return nil, err
	}
	if _, err := CheckBimester(ctx, svc.bimSvc, req.SubjectID, req.BimesterID, true); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		for _, e := range req.Entries {
			if _, err := svc.stdRepo.GetStudent(ctx, student.GetFilter{ID: e.StudentID}, exec); err != nil {
				if core.IsNotFound(err) {
					return core.NewValidationError(err, core.FieldError{Field: "student_id", Error: "unknown student " + e.StudentID})
				}
				return errors.Wrap(err, "finding student")
			}

			avg, status := svc.policy.Evaluate(e.Grade1, e.Grade2)
			_, err := svc.repo.UpsertGrade(ctx, Grade{
				StudentID:  e.StudentID,
				SubjectID:  req.SubjectID,
				BimesterID: req.BimesterID,
				Grade1:     e.Grade1,
				Grade2:     e.Grade2,
				Absences:   e.Absences,
				Average:    avg,
				Status:     status,
				CreatedAt:  now,
				UpdatedAt:  now,
			}, exec)
			if err != nil {
				return errors.Wrap(err, "saving grade")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return svc.repo.QueryGrades(ctx, &QueryFilter{
		SubjectIDs:  []string{req.SubjectID},
		BimesterIDs: []string{req.BimesterID},
	})
}

func (svc *service) ForStudent(ctx context.Context, studentID string) ([]Grade, error) {
	return svc.repo.QueryGrades(ctx, &QueryFilter{StudentIDs: []string{studentID}})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]Grade, error) {
	return svc.repo.QueryGrades(ctx, filter)
}
