package report

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/etda/school/core"
	"github.com/etda/school/core/grade"
)

const (
	KindStudents = "students"
	KindGrades   = "grades"
	KindApproval = "approval"
	KindSubjects = "subjects"
)

var (
	Kinds = []string{KindStudents, KindGrades, KindApproval, KindSubjects}

	ErrUnknownKind   = core.NewNotFoundError("report")
	ErrUnknownFormat = errors.New("unknown export format")
)

// Table is a report laid out as rows of cells, independent of the output format.
type Table struct {
	Title       string     `json:"title"`
	Headers     []string   `json:"headers"`
	Rows        [][]string `json:"rows"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Exporter writes a Table in a file format.
type Exporter interface {
	Format() string
	ContentType() string
	Export(w io.Writer, t Table) error
}

func IsValidKind(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (svc *service) Table(ctx context.Context, kind string) (Table, error) {
	var (
		t   Table
		err error
	)
	switch kind {
	case KindStudents:
		t, err = svc.studentsTable(ctx)
	case KindGrades:
		t, err = svc.gradesTable(ctx)
	case KindApproval:
		t, err = svc.approvalTable(ctx)
	case KindSubjects:
		t, err = svc.subjectsTable(ctx)
	default:
		return Table{}, ErrUnknownKind
	}
	if err != nil {
		return Table{}, err
	}
	t.GeneratedAt = time.Now().UTC()
	return t, nil
}

func (svc *service) studentsTable(ctx context.Context) (Table, error) {
	students, err := svc.Students.Query(ctx, nil)
	if err != nil {
		return Table{}, errors.Wrap(err, "querying students")
	}
	t := Table{
		Title:   "Students",
		Headers: []string{"Name", "Email", "CPF", "Birth date", "Class"},
		Rows:    make([][]string, 0, len(students)),
	}
	for _, std := range students {
		t.Rows = append(t.Rows, []string{std.Name, std.Email, std.CPF, std.BirthDate.String(), std.ClassName})
	}
	return t, nil
}

func (svc *service) gradesTable(ctx context.Context) (Table, error) {
	grades, err := svc.Grades.Query(ctx, nil)
	if err != nil {
		return Table{}, errors.Wrap(err, "querying grades")
	}
	t := Table{
		Title:   "Grades",
		Headers: []string{"Student", "Subject", "Bimester", "Grade 1", "Grade 2", "Absences", "Average", "Status"},
		Rows:    make([][]string, 0, len(grades)),
	}
	for _, g := range grades {
		t.Rows = append(t.Rows, []string{
			g.StudentName,
			g.SubjectName,
			g.BimesterName,
			FormatDecimal(g.Grade1),
			FormatDecimal(g.Grade2),
			strconv.Itoa(g.Absences),
			FormatDecimal(g.Average),
			string(g.Status),
		})
	}
	return t, nil
}

func (svc *service) approvalTable(ctx context.Context) (Table, error) {
	subjects, err := svc.Subjects.Query(ctx)
	if err != nil {
		return Table{}, errors.Wrap(err, "querying subjects")
	}
	grades, err := svc.Grades.Query(ctx, nil)
	if err != nil {
		return Table{}, errors.Wrap(err, "querying grades")
	}

	counts := make(map[string]map[grade.Status]int, len(subjects))
	for _, g := range grades {
		if counts[g.SubjectID] == nil {
			counts[g.SubjectID] = make(map[grade.Status]int, len(grade.AllStatuses))
		}
		counts[g.SubjectID][g.Status]++
	}

	t := Table{
		Title:   "Approval by subject",
		Headers: []string{"Subject", "Approved", "Recovery", "Failed", "Approval rate (%)"},
		Rows:    make([][]string, 0, len(subjects)),
	}
	for _, sub := range subjects {
		c := counts[sub.ID]
		total := c[grade.StatusApproved] + c[grade.StatusRecovery] + c[grade.StatusFailed]
		rate := noValue
		if total > 0 {
			rate = FormatDecimal(float64(c[grade.StatusApproved]) / float64(total) * 100)
		}
		t.Rows = append(t.Rows, []string{
			sub.Name,
			strconv.Itoa(c[grade.StatusApproved]),
			strconv.Itoa(c[grade.StatusRecovery]),
			strconv.Itoa(c[grade.StatusFailed]),
			rate,
		})
	}
	return t, nil
}

func (svc *service) subjectsTable(ctx context.Context) (Table, error) {
	subjects, err := svc.Subjects.Query(ctx)
	if err != nil {
		return Table{}, errors.Wrap(err, "querying subjects")
	}
	t := Table{
		Title:   "Subjects",
		Headers: []string{"Name", "Workload (h)"},
		Rows:    make([][]string, 0, len(subjects)),
	}
	for _, sub := range subjects {
		t.Rows = append(t.Rows, []string{sub.Name, strconv.Itoa(sub.Workload)})
	}
	return t, nil
}
