package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/etda/school/core"
	"github.com/etda/school/core/class"
)

type classRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	AcademicYear int       `db:"academic_year"`
	CreatedAt    time.Time `db:"created_at"`
}

func (row classRow) class() class.Class {
	return class.Class{ID: row.ID, Name: row.Name, AcademicYear: row.AcademicYear, CreatedAt: row.CreatedAt.UTC()}
}

type classRepository struct {
	repo
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(exec core.DBExecutor) *classRepository {
	return &classRepository{repo{exec: exec, errNotFound: class.ErrNotFound}}
}

func (r classRepository) CreateClass(ctx context.Context, cls class.Class, exec ...core.DBExecutor) (class.Class, error) {
	cls.ID = uuid.New().String()
	q := psql.Insert("classes").
		Columns("id", "name", "academic_year", "created_at").
		Values(cls.ID, cls.Name, cls.AcademicYear, cls.CreatedAt.UTC())
	if _, err := r.run(ctx, q, exec, "inserting class"); err != nil {
		return class.Class{}, err
	}
	return cls, nil
}

func (r classRepository) query(ctx context.Context, where sq.Sqlizer, exec []core.DBExecutor) ([]class.Class, error) {
	q := psql.Select("id", "name", "academic_year", "created_at").From("classes").OrderBy("name", "id")
	if where != nil {
		q = q.Where(where)
	}
	var rows []classRow
	if err := r.selectAll(ctx, &rows, q, exec, "querying classes"); err != nil {
		return nil, err
	}
	classes := make([]class.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.class())
	}
	return classes, nil
}

func (r classRepository) QueryClasses(ctx context.Context, exec ...core.DBExecutor) ([]class.Class, error) {
	return r.query(ctx, nil, exec)
}

func (r classRepository) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (class.Class, error) {
	if !isUUID(id) {
		return class.Class{}, class.ErrNotFound
	}
	classes, err := r.query(ctx, sq.Eq{"id": id}, exec)
	if err != nil {
		return class.Class{}, err
	}
	if len(classes) == 0 {
		return class.Class{}, class.ErrNotFound
	}
	return classes[0], nil
}

func (r classRepository) UpdateClass(ctx context.Context, cls class.Class, exec ...core.DBExecutor) (class.Class, error) {
	q := psql.Update("classes").
		Set("name", cls.Name).
		Set("academic_year", cls.AcademicYear).
		Where(sq.Eq{"id": cls.ID})
	if err := r.affectOne(ctx, q, exec, "updating class"); err != nil {
		return class.Class{}, err
	}
	return cls, nil
}

func (r classRepository) DeleteClass(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return class.ErrNotFound
	}
	return r.affectOne(ctx, psql.Delete("classes").Where(sq.Eq{"id": id}), exec, "deleting class")
}
