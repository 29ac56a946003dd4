package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/etda/school/core"
	"github.com/etda/school/core/subject"
	"github.com/etda/school/core/teacher"
)

type teacherRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
}

type teacherSubjectRow struct {
	TeacherID string `db:"teacher_id"`
	subjectRow
}

type teacherRepository struct {
	repo
}

var _ teacher.Repository = (*teacherRepository)(nil)

func NewTeacherRepository(exec core.DBExecutor) *teacherRepository {
	return &teacherRepository{repo{exec: exec, errNotFound: teacher.ErrNotFound}}
}

func (r teacherRepository) CreateTeacher(ctx context.Context, tch teacher.Teacher, exec ...core.DBExecutor) (teacher.Teacher, error) {
	tch.ID = uuid.New().String()
	q := psql.Insert("teachers").
		Columns("id", "user_id", "created_at").
		Values(tch.ID, tch.UserID, tch.CreatedAt.UTC())
	if _, err := r.run(ctx, q, exec, "inserting teacher"); err != nil {
		return teacher.Teacher{}, err
	}
	return tch, nil
}

func (r teacherRepository) query(ctx context.Context, where sq.Sqlizer, exec []core.DBExecutor) ([]teacher.Teacher, error) {
	q := psql.Select("t.id", "t.user_id", "u.name", "u.email", "t.created_at").
		From("teachers t").
		Join("users u ON u.id = t.user_id").
		OrderBy("u.name", "t.id")
	if where != nil {
		q = q.Where(where)
	}

	var rows []teacherRow
	if err := r.selectAll(ctx, &rows, q, exec, "querying teachers"); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []teacher.Teacher{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	subQ := psql.Select("ts.teacher_id", "s.id", "s.name", "s.workload", "s.created_at").
		From("teacher_subjects ts").
		Join("subjects s ON s.id = ts.subject_id").
		Where(sq.Eq{"ts.teacher_id": ids}).
		OrderBy("s.name", "s.id")
	var subRows []teacherSubjectRow
	if err := r.selectAll(ctx, &subRows, subQ, exec, "querying teacher subjects"); err != nil {
		return nil, err
	}
	subjects := make(map[string][]subject.Subject, len(rows))
	for _, row := range subRows {
		subjects[row.TeacherID] = append(subjects[row.TeacherID], row.subject())
	}

	teachers := make([]teacher.Teacher, 0, len(rows))
	for _, row := range rows {
		subs := subjects[row.ID]
		if subs == nil {
			subs = []subject.Subject{}
		}
		teachers = append(teachers, teacher.Teacher{
			ID:        row.ID,
			UserID:    row.UserID,
			Name:      row.Name,
			Email:     row.Email,
			Subjects:  subs,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return teachers, nil
}

func (r teacherRepository) QueryTeachers(ctx context.Context, exec ...core.DBExecutor) ([]teacher.Teacher, error) {
	return r.query(ctx, nil, exec)
}

func (r teacherRepository) GetTeacher(ctx context.Context, filter teacher.GetFilter, exec ...core.DBExecutor) (teacher.Teacher, error) {
	var where sq.Sqlizer
	switch {
	case filter.ID != "" && isUUID(filter.ID):
		where = sq.Eq{"t.id": filter.ID}
	case filter.UserID != "" && isUUID(filter.UserID):
		where = sq.Eq{"t.user_id": filter.UserID}
	default:
		return teacher.Teacher{}, teacher.ErrNotFound
	}

	teachers, err := r.query(ctx, where, exec)
	if err != nil {
		return teacher.Teacher{}, err
	}
	if len(teachers) == 0 {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	return teachers[0], nil
}

func (r teacherRepository) SetTeacherSubjects(ctx context.Context, teacherID string, subjectIDs []string, exec ...core.DBExecutor) error {
	del := psql.Delete("teacher_subjects").Where(sq.Eq{"teacher_id": teacherID})
	if _, err := r.run(ctx, del, exec, "clearing teacher subjects"); err != nil {
		return err
	}
	if len(subjectIDs) == 0 {
		return nil
	}

	ins := psql.Insert("teacher_subjects").Columns("teacher_id", "subject_id")
	for _, id := range subjectIDs {
		ins = ins.Values(teacherID, id)
	}
	_, err := r.run(ctx, ins.Suffix("ON CONFLICT DO NOTHING"), exec, "inserting teacher subjects")
	return err
}

func (r teacherRepository) DeleteTeacher(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return teacher.ErrNotFound
	}
	return r.affectOne(ctx, psql.Delete("teachers").Where(sq.Eq{"id": id}), exec, "deleting teacher")
}
