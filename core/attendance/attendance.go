package attendance

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/etda/school/core"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/grade"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/teacher"
)

// Record is the presence of a student in one class day of a subject.
type Record struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	SubjectID    string    `json:"subject_id"`
	SubjectName  string    `json:"subject_name"`
	BimesterID   string    `json:"bimester_id"`
	BimesterName string    `json:"bimester_name"`
	Date         core.Date `json:"date"`
	Present      bool      `json:"present"`
	CreatedAt    time.Time `json:"created_at"`
}

type SheetRow struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Present     bool   `json:"present"`
	Saved       bool   `json:"saved"`
}

type Sheet struct {
	Bimester bimester.Bimester `json:"bimester"`
	Date     core.Date         `json:"date"`
	Rows     []SheetRow        `json:"rows"`
}

type SheetEntry struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Present   bool   `json:"present"`
}

// SaveSheetRequest is the attendance call of one day. Students missing from Entries are saved absent.
type SaveSheetRequest struct {
	SubjectID  string       `json:"subject_id" validate:"required,uuid"`
	BimesterID string       `json:"bimester_id" validate:"required,uuid"`
	Date       core.Date    `json:"date"`
	Entries    []SheetEntry `json:"entries" validate:"dive"`
}

func (req *SaveSheetRequest) Validate(validate *validator.Validate) error {
	req.SubjectID = core.CleanString(req.SubjectID)
	req.BimesterID = core.CleanString(req.BimesterID)
	for i := range req.Entries {
		req.Entries[i].StudentID = core.CleanString(req.Entries[i].StudentID)
	}
	return validate.Struct(req)
}

// InitValidators registers the attendance validators.
func InitValidators(validate *validator.Validate, _ ut.Translator) {
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(SaveSheetRequest)
		if req.Date.IsZero() {
			sl.ReportError(req.Date, "date", "Date", "required", "")
		}
	}, SaveSheetRequest{})
}

type QueryFilter struct {
	StudentIDs  []string
	SubjectIDs  []string
	BimesterIDs []string
	Date        core.Date
	Present     *bool
}

// AbsenceCount is the number of absences of a student in a subject during one bimester.
type AbsenceCount struct {
	SubjectID    string `json:"subject_id" db:"subject_id"`
	SubjectName  string `json:"subject_name" db:"subject_name"`
	BimesterID   string `json:"bimester_id" db:"bimester_id"`
	BimesterName string `json:"bimester_name" db:"bimester_name"`
	Count        int    `json:"count" db:"count"`
}

type AbsenceSummary struct {
	Total     int            `json:"total"`
	BySubject []AbsenceCount `json:"by_subject"`
}

type (
	Repository interface {
		// QueryRecords lists records, most recent date first.
		QueryRecords(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Record, error)
		// UpsertRecord inserts rec or updates the record of the same student, subject, bimester and date.
		UpsertRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
		// CountAbsences groups the absences of a student by subject and bimester,
		// ordered by subject name then bimester name.
		CountAbsences(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]AbsenceCount, error)
	}

	Service interface {
		Sheet(ctx context.Context, teacherUserID, subjectID, bimesterID string, date core.Date) (Sheet, error)
		SaveSheet(ctx context.Context, teacherUserID string, req SaveSheetRequest) ([]Record, error)
		// History lists the records of a student. subjectID and bimesterID are optional filters.
		History(ctx context.Context, studentID, subjectID, bimesterID string) ([]Record, error)
		AbsenceSummary(ctx context.Context, studentID string) (AbsenceSummary, error)
	}

	service struct {
		tx      core.Transactor
		repo    Repository
		stdRepo student.Repository
		bimSvc  bimester.Service
		tchSvc  teacher.Service
	}
)

var _ Service = (*service)(nil)

func NewService(
	tx core.Transactor,
	repo Repository,
	stdRepo student.Repository,
	bimSvc bimester.Service,
	tchSvc teacher.Service,
) Service {
	return &service{
		tx:      tx,
		repo:    repo,
		stdRepo: stdRepo,
		bimSvc:  bimSvc,
		tchSvc:  tchSvc,
	}
}

func checkDate(bim bimester.Bimester, date core.Date) error {
	if date.IsZero() {
		return core.NewValidationError(errors.New("missing date"), core.FieldError{Field: "date", Error: "this field is required"})
	}
	if !bim.Contains(date) {
		return core.NewValidationError(
			errors.New("date out of bimester"),
			core.FieldError{Field: "date", Error: "date must be within the bimester"},
		)
	}
	return nil
}

func (svc *service) Sheet(ctx context.Context, teacherUserID, subjectID, bimesterID string, date core.Date) (Sheet, error) {
	if _, err := svc.tchSvc.AssertTeaches(ctx, teacherUserID, subjectID); err != nil {
		return Sheet{}, err
	}
	bim, err := grade.CheckBimester(ctx, svc.bimSvc, subjectID, bimesterID, false)
	if err != nil {
		return Sheet{}, err
	}
	if err := checkDate(bim, date); err != nil {
		return Sheet{}, err
	}

	students, err := svc.stdRepo.QueryStudents(ctx, nil)
	if err != nil {
		return Sheet{}, errors.Wrap(err, "querying students")
	}
	grade.SortStudents(students)

	records, err := svc.repo.QueryRecords(ctx, &QueryFilter{
		SubjectIDs:  []string{subjectID},
		BimesterIDs: []string{bimesterID},
		Date:        date,
	})
	if err != nil {
		return Sheet{}, errors.Wrap(err, "querying attendance")
	}
	byStudent := make(map[string]Record, len(records))
	for _, rec := range records {
		byStudent[rec.StudentID] = rec
	}

	rows := make([]SheetRow, 0, len(students))
	for _, std := range students {
		row := SheetRow{StudentID: std.ID, StudentName: std.Name, Present: true}
		if rec, ok := byStudent[std.ID]; ok {
			row.Present, row.Saved = rec.Present, true
		}
		rows = append(rows, row)
	}
	return Sheet{Bimester: bim, Date: date, Rows: rows}, nil
}

func (svc *service) SaveSheet(ctx context.Context, teacherUserID string, req SaveSheetRequest) ([]Record, error) {
	if _, err := svc.tchSvc.AssertTeaches(ctx, teacherUserID, req.SubjectID); err != nil {
		return nil, err
	}
	bim, err := grade.CheckBimester(ctx, svc.bimSvc, req.SubjectID, req.BimesterID, true)
	if err != nil {
		return nil, err
	}
	if err := checkDate(bim, req.Date); err != nil {
		return nil, err
	}

	students, err := svc.stdRepo.QueryStudents(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	known := make(map[string]bool, len(students))
	for _, std := range students {
		known[std.ID] = true
	}
	present := make(map[string]bool, len(req.Entries))
	for _, e := range req.Entries {
		if !known[e.StudentID] {
			return nil, core.NewValidationError(
				student.ErrNotFound,
				core.FieldError{Field: "student_id", Error: "unknown student " + e.StudentID},
			)
		}
		present[e.StudentID] = e.Present
	}

	now := time.Now().UTC()
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		for _, std := range students {
			_, err := svc.repo.UpsertRecord(ctx, Record{
				StudentID:  std.ID,
				SubjectID:  req.SubjectID,
				BimesterID: req.BimesterID,
				Date:       req.Date,
				Present:    present[std.ID],
				CreatedAt:  now,
			}, exec)
			if err != nil {
				return errors.Wrap(err, "saving attendance")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return svc.repo.QueryRecords(ctx, &QueryFilter{
		SubjectIDs:  []string{req.SubjectID},
		BimesterIDs: []string{req.BimesterID},
		Date:        req.Date,
	})
}

func (svc *service) History(ctx context.Context, studentID, subjectID, bimesterID string) ([]Record, error) {
	filter := &QueryFilter{StudentIDs: []string{studentID}}
	if subjectID != "" {
		filter.SubjectIDs = []string{subjectID}
	}
	if bimesterID != "" {
		filter.BimesterIDs = []string{bimesterID}
	}
	return svc.repo.QueryRecords(ctx, filter)
}

func (svc *service) AbsenceSummary(ctx context.Context, studentID string) (AbsenceSummary, error) {
	counts, err := svc.repo.CountAbsences(ctx, studentID)
	if err != nil {
		return AbsenceSummary{}, errors.Wrap(err, "counting absences")
	}
	if counts == nil {
		counts = []AbsenceCount{}
	}
	summary := AbsenceSummary{BySubject: counts}
	for _, c := range counts {
		summary.Total += c.Count
	}
	return summary, nil
}
