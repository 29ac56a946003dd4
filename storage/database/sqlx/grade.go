package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/etda/school/core"
	"github.com/etda/school/core/grade"
)

type gradeRow struct {
	ID           string    `db:"id"`
	StudentID    string    `db:"student_id"`
	StudentName  string    `db:"student_name"`
	SubjectID    string    `db:"subject_id"`
	SubjectName  string    `db:"subject_name"`
	BimesterID   string    `db:"bimester_id"`
	BimesterName string    `db:"bimester_name"`
	Grade1       float64   `db:"grade1"`
	Grade2       float64   `db:"grade2"`
	Absences     int       `db:"absences"`
	Average      float64   `db:"average"`
	Status       string    `db:"status"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row gradeRow) grade() grade.Grade {
	return grade.Grade{
		ID:           row.ID,
		StudentID:    row.StudentID,
		StudentName:  row.StudentName,
		SubjectID:    row.SubjectID,
		SubjectName:  row.SubjectName,
		BimesterID:   row.BimesterID,
		BimesterName: row.BimesterName,
		Grade1:       row.Grade1,
		Grade2:       row.Grade2,
		Absences:     row.Absences,
		Average:      row.Average,
		Status:       grade.Status(row.Status),
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
}

type gradeRepository struct {
	repo
}

var _ grade.Repository = (*gradeRepository)(nil)

func NewGradeRepository(exec core.DBExecutor) *gradeRepository {
	return &gradeRepository{repo{exec: exec, errNotFound: grade.ErrNotFound}}
}

func (r gradeRepository) QueryGrades(ctx context.Context, filter *grade.QueryFilter, exec ...core.DBExecutor) ([]grade.Grade, error) {
	q := psql.Select(
		"g.id", "g.student_id", "u.name AS student_name",
		"g.subject_id", "s.name AS subject_name",
		"g.bimester_id", "b.name AS bimester_name",
		"g.grade1", "g.grade2", "g.absences", "g.average", "g.status", "g.created_at", "g.updated_at",
	).
		From("grades g").
		Join("students st ON st.id = g.student_id").
		Join("users u ON u.id = st.user_id").
		Join("subjects s ON s.id = g.subject_id").
		Join("bimesters b ON b.id = g.bimester_id").
		OrderBy("g.created_at DESC", "g.id")

	if filter != nil {
		if filter.StudentIDs != nil {
			q = q.Where(sq.Eq{"g.student_id": validIDs(filter.StudentIDs)})
		}
		if filter.SubjectIDs != nil {
			q = q.Where(sq.Eq{"g.subject_id": validIDs(filter.SubjectIDs)})
		}
		if filter.BimesterIDs != nil {
			q = q.Where(sq.Eq{"g.bimester_id": validIDs(filter.BimesterIDs)})
		}
	}

	var rows []gradeRow
	if err := r.selectAll(ctx, &rows, q, exec, "querying grades"); err != nil {
		return nil, err
	}
	grades := make([]grade.Grade, 0, len(rows))
	for _, row := range rows {
		grades = append(grades, row.grade())
	}
	return grades, nil
}

func (r gradeRepository) UpsertGrade(ctx context.Context, g grade.Grade, exec ...core.DBExecutor) (grade.Grade, error) {
	q := psql.Insert("grades").
		Columns(
			"id", "student_id", "subject_id", "bimester_id",
			"grade1", "grade2", "absences", "average", "status", "created_at", "updated_at",
		).
		Values(
			uuid.New().String(), g.StudentID, g.SubjectID, g.BimesterID,
			g.Grade1, g.Grade2, g.Absences, g.Average, string(g.Status), g.CreatedAt.UTC(), g.UpdatedAt.UTC(),
		).
		Suffix(`ON CONFLICT (student_id, subject_id, bimester_id) DO UPDATE SET
			grade1 = EXCLUDED.grade1,
			grade2 = EXCLUDED.grade2,
			absences = EXCLUDED.absences,
			average = EXCLUDED.average,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at`)

	query, args, err := q.ToSql()
	if err != nil {
		return grade.Grade{}, err
	}
	if err = r.getExec(exec).QueryRowContext(ctx, query, args...).Scan(&g.ID, &g.CreatedAt); err != nil {
		return grade.Grade{}, r.trapNoRowsErr(err, "upserting grade")
	}
	g.CreatedAt = g.CreatedAt.UTC()
	return g, nil
}
