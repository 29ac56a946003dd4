package report

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/etda/school/core"
	"github.com/etda/school/core/attendance"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/class"
	"github.com/etda/school/core/grade"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/subject"
	"github.com/etda/school/core/teacher"
)

const (
	secretaryDashboardKey = "report:dashboard:secretary"
	noValue               = "-"
)

type (
	ClassCount struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		AcademicYear int    `json:"academic_year"`
		StudentCount int    `json:"student_count"`
	}

	SecretaryDashboard struct {
		StudentsCount   int                 `json:"students_count"`
		TeachersCount   int                 `json:"teachers_count"`
		SubjectsCount   int                 `json:"subjects_count"`
		Classes         []ClassCount        `json:"classes"`
		ActiveBimesters []bimester.Bimester `json:"active_bimesters"`
	}

	// Summary holds the school wide indicators. ApprovalRate and AverageGrade are "-" when no grade exists.
	Summary struct {
		TotalStudents int    `json:"total_students"`
		SubjectsCount int    `json:"subjects_count"`
		ApprovalRate  string `json:"approval_rate"`
		AverageGrade  string `json:"average_grade"`
	}

	StudentReport struct {
		Student  student.Student           `json:"student"`
		Grades   []grade.Grade             `json:"grades"`
		Absences attendance.AbsenceSummary `json:"absences"`
	}

	TeacherDashboard struct {
		Teacher         teacher.Teacher     `json:"teacher"`
		Bimesters       []bimester.Bimester `json:"bimesters"`
		ActiveBimesters int                 `json:"active_bimesters"`
	}

	StudentDashboard struct {
		Student       student.Student `json:"student"`
		Grades        []grade.Grade   `json:"grades"`
		TotalAbsences int             `json:"total_absences"`
		AverageGrade  *float64        `json:"average_grade"`
	}

	SubjectGrades struct {
		SubjectID   string        `json:"subject_id"`
		SubjectName string        `json:"subject_name"`
		Grades      []grade.Grade `json:"grades"`
	}

	SubjectStatus struct {
		SubjectID   string       `json:"subject_id"`
		SubjectName string       `json:"subject_name"`
		Average     float64      `json:"average"`
		Status      grade.Status `json:"status"`
		Absences    int          `json:"absences"`
	}

	// FinalStatus is the year outcome of a student. FinalAverage is nil when the student has no grade.
	FinalStatus struct {
		FinalAverage  *float64        `json:"final_average"`
		FinalStatus   grade.Status    `json:"final_status,omitempty"`
		TotalAbsences int             `json:"total_absences"`
		Subjects      []SubjectStatus `json:"subjects"`
	}
)

type (
	Service interface {
		SecretaryDashboard(ctx context.Context) (SecretaryDashboard, error)
		// InvalidateDashboard drops the cached secretary dashboard so the next read sees recent writes.
		InvalidateDashboard(ctx context.Context) error
		Summary(ctx context.Context) (Summary, error)
		StudentReport(ctx context.Context, studentID string) (StudentReport, error)
		TeacherDashboard(ctx context.Context, teacherUserID string) (TeacherDashboard, error)
		StudentDashboard(ctx context.Context, studentUserID string) (StudentDashboard, error)
		GradesBySubject(ctx context.Context, studentUserID string) ([]SubjectGrades, error)
		FinalStatus(ctx context.Context, studentUserID string) (FinalStatus, error)
		// Table builds the tabular report of kind, ready to be exported.
		Table(ctx context.Context, kind string) (Table, error)
	}

	Deps struct {
		Students   student.Service
		Teachers   teacher.Service
		Subjects   subject.Service
		Classes    class.Service
		Bimesters  bimester.Service
		Grades     grade.Service
		Attendance attendance.Service
	}

	service struct {
		Deps
		cache  core.Cache
		ttl    time.Duration
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(deps Deps, cache core.Cache, conf *core.Config, logger core.Logger) Service {
	return &service{
		Deps:   deps,
		cache:  cache,
		ttl:    conf.Cache.DashboardTTL,
		logger: logger,
	}
}

// FormatDecimal formats x with one decimal place.
func FormatDecimal(x float64) string {
	return strconv.FormatFloat(grade.Round1(x), 'f', 1, 64)
}

func (svc *service) InvalidateDashboard(ctx context.Context) error {
	if svc.ttl <= 0 {
		return nil
	}
	return errors.Wrap(svc.cache.Delete(ctx, secretaryDashboardKey), "invalidating dashboard cache")
}

func (svc *service) SecretaryDashboard(ctx context.Context) (SecretaryDashboard, error) {
	if svc.ttl > 0 {
		if data, err := svc.cache.Get(ctx, secretaryDashboardKey); err == nil {
			var dash SecretaryDashboard
			if err := json.Unmarshal(data, &dash); err == nil {
				return dash, nil
			}
		} else if err != core.ErrCacheMiss {
			svc.logger.Warn("reading dashboard cache", "err", err)
		}
	}

	dash, err := svc.buildSecretaryDashboard(ctx)
	if err != nil {
		return SecretaryDashboard{}, err
	}

	if svc.ttl > 0 {
		data, err := json.Marshal(dash)
		if err == nil {
			err = svc.cache.Set(ctx, secretaryDashboardKey, data, svc.ttl)
		}
		if err != nil {
			svc.logger.Warn("writing dashboard cache", "err", err)
		}
	}
	return dash, nil
}

func (svc *service) buildSecretaryDashboard(ctx context.Context) (SecretaryDashboard, error) {
	students, err := svc.Students.Query(ctx, nil)
	if err != nil {
		return SecretaryDashboard{}, errors.Wrap(err, "querying students")
	}
	teachers, err := svc.Teachers.Query(ctx)
	if err != nil {
		return SecretaryDashboard{}, errors.Wrap(err, "querying teachers")
	}
	subjects, err := svc.Subjects.Query(ctx)
	if err != nil {
		return SecretaryDashboard{}, errors.Wrap(err, "querying subjects")
	}
	classes, err := svc.Classes.Query(ctx)
	if err != nil {
		return SecretaryDashboard{}, errors.Wrap(err, "querying classes")
	}
	active, err := svc.Bimesters.Query(ctx, &bimester.QueryFilter{Status: bimester.StatusActive})
	if err != nil {
		return SecretaryDashboard{}, errors.Wrap(err, "querying bimesters")
	}

	perClass := make(map[string]int)
	for _, std := range students {
		if std.ClassID != "" {
			perClass[std.ClassID]++
		}
	}
	counts := make([]ClassCount, 0, len(classes))
	for _, cls := range classes {
		counts = append(counts, ClassCount{
			ID:           cls.ID,
			Name:         cls.Name,
			AcademicYear: cls.AcademicYear,
			StudentCount: perClass[cls.ID],
		})
	}
	if active == nil {
		active = []bimester.Bimester{}
	}

	return SecretaryDashboard{
		StudentsCount:   len(students),
		TeachersCount:   len(teachers),
		SubjectsCount:   len(subjects),
		Classes:         counts,
		ActiveBimesters: active,
	}, nil
}

func (svc *service) Summary(ctx context.Context) (Summary, error) {
	students, err := svc.Students.Query(ctx, nil)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying students")
	}
	subjects, err := svc.Subjects.Query(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying subjects")
	}
	grades, err := svc.Grades.Query(ctx, nil)
	if err != nil {
		return Summary{}, errors.Wrap(err, "querying grades")
	}

	sum := Summary{
		TotalStudents: len(students),
		SubjectsCount: len(subjects),
		ApprovalRate:  noValue,
		AverageGrade:  noValue,
	}
	if len(grades) > 0 {
		var approved int
		var total float64
		for _, g := range grades {
			if g.Status == grade.StatusApproved {
				approved++
			}
			total += g.Average
		}
		n := float64(len(grades))
		sum.ApprovalRate = FormatDecimal(float64(approved) / n * 100)
		sum.AverageGrade = FormatDecimal(total / n)
	}
	return sum, nil
}

func (svc *service) StudentReport(ctx context.Context, studentID string) (StudentReport, error) {
	std, err := svc.Students.GetByID(ctx, studentID)
	if err != nil {
		return StudentReport{}, err
	}
	grades, err := svc.Grades.ForStudent(ctx, std.ID)
	if err != nil {
		return StudentReport{}, errors.Wrap(err, "querying grades")
	}
	absences, err := svc.Attendance.AbsenceSummary(ctx, std.ID)
	if err != nil {
		return StudentReport{}, err
	}
	return StudentReport{Student: std, Grades: nonNil(grades), Absences: absences}, nil
}

func (svc *service) TeacherDashboard(ctx context.Context, teacherUserID string) (TeacherDashboard, error) {
	tch, err := svc.Teachers.GetByUserID(ctx, teacherUserID)
	if err != nil {
		return TeacherDashboard{}, err
	}

	bims := []bimester.Bimester{}
	if ids := tch.SubjectIDs(); len(ids) > 0 {
		bims, err = svc.Bimesters.Query(ctx, &bimester.QueryFilter{SubjectIDs: ids})
		if err != nil {
			return TeacherDashboard{}, errors.Wrap(err, "querying bimesters")
		}
	}

	dash := TeacherDashboard{Teacher: tch, Bimesters: bims}
	for _, bim := range bims {
		if bim.IsActive() {
			dash.ActiveBimesters++
		}
	}
	return dash, nil
}

func (svc *service) studentGrades(ctx context.Context, studentUserID string) (student.Student, []grade.Grade, error) {
	std, err := svc.Students.GetByUserID(ctx, studentUserID)
	if err != nil {
		return student.Student{}, nil, err
	}
	grades, err := svc.Grades.ForStudent(ctx, std.ID)
	if err != nil {
		return student.Student{}, nil, errors.Wrap(err, "querying grades")
	}
	return std, nonNil(grades), nil
}

func (svc *service) StudentDashboard(ctx context.Context, studentUserID string) (StudentDashboard, error) {
	std, grades, err := svc.studentGrades(ctx, studentUserID)
	if err != nil {
		return StudentDashboard{}, err
	}

	dash := StudentDashboard{Student: std, Grades: grades}
	avgs := make([]float64, 0, len(grades))
	for _, g := range grades {
		dash.TotalAbsences += g.Absences
		avgs = append(avgs, g.Average)
	}
	if avg, ok := grade.Mean(avgs...); ok {
		dash.AverageGrade = &avg
	}
	return dash, nil
}

// GradesBySubject groups the grades of a student by subject, in the order subjects first appear.
func (svc *service) GradesBySubject(ctx context.Context, studentUserID string) ([]SubjectGrades, error) {
	_, grades, err := svc.studentGrades(ctx, studentUserID)
	if err != nil {
		return nil, err
	}

	groups := []SubjectGrades{}
	index := make(map[string]int)
	for _, g := range grades {
		i, ok := index[g.SubjectID]
		if !ok {
			i = len(groups)
			index[g.SubjectID] = i
			groups = append(groups, SubjectGrades{SubjectID: g.SubjectID, SubjectName: g.SubjectName})
		}
		groups[i].Grades = append(groups[i].Grades, g)
	}
	return groups, nil
}

// FinalStatus classifies the student year with the same policy as the bimester grades.
func (svc *service) FinalStatus(ctx context.Context, studentUserID string) (FinalStatus, error) {
	_, grades, err := svc.studentGrades(ctx, studentUserID)
	if err != nil {
		return FinalStatus{}, err
	}
	policy := svc.Grades.Policy()

	type acc struct {
		name     string
		avgs     []float64
		absences int
	}
	bySubject := make(map[string]*acc)
	all := make([]float64, 0, len(grades))
	fs := FinalStatus{Subjects: []SubjectStatus{}}
	for _, g := range grades {
		a, ok := bySubject[g.SubjectID]
		if !ok {
			a = &acc{name: g.SubjectName}
			bySubject[g.SubjectID] = a
		}
		a.avgs = append(a.avgs, g.Average)
		a.absences += g.Absences
		all = append(all, g.Average)
		fs.TotalAbsences += g.Absences
	}

	for id, a := range bySubject {
		avg, _ := grade.Mean(a.avgs...)
		fs.Subjects = append(fs.Subjects, SubjectStatus{
			SubjectID:   id,
			SubjectName: a.name,
			Average:     avg,
			Status:      policy.Classify(avg),
			Absences:    a.absences,
		})
	}
	sort.Slice(fs.Subjects, func(i, j int) bool {
		if fs.Subjects[i].SubjectName == fs.Subjects[j].SubjectName {
			return fs.Subjects[i].SubjectID < fs.Subjects[j].SubjectID
		}
		return fs.Subjects[i].SubjectName < fs.Subjects[j].SubjectName
	})

	if avg, ok := grade.Mean(all...); ok {
		fs.FinalAverage = &avg
		fs.FinalStatus = policy.Classify(avg)
	}
	return fs, nil
}

func nonNil(grades []grade.Grade) []grade.Grade {
	if grades == nil {
		return []grade.Grade{}
	}
	return grades
}
