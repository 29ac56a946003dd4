package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/etda/school/core"
	"github.com/etda/school/core/subject"
)

type subjectRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Workload  int       `db:"workload"`
	CreatedAt time.Time `db:"created_at"`
}

func (row subjectRow) subject() subject.Subject {
	return subject.Subject{ID: row.ID, Name: row.Name, Workload: row.Workload, CreatedAt: row.CreatedAt.UTC()}
}

type subjectRepository struct {
	repo
}

var _ subject.Repository = (*subjectRepository)(nil)

func NewSubjectRepository(exec core.DBExecutor) *subjectRepository {
	return &subjectRepository{repo{exec: exec, errNotFound: subject.ErrNotFound}}
}

func (r subjectRepository) CreateSubject(ctx context.Context, sub subject.Subject, exec ...core.DBExecutor) (subject.Subject, error) {
	sub.ID = uuid.New().String()
	q := psql.Insert("subjects").
		Columns("id", "name", "workload", "created_at").
		Values(sub.ID, sub.Name, sub.Workload, sub.CreatedAt.UTC())
	if _, err := r.run(ctx, q, exec, "inserting subject"); err != nil {
		return subject.Subject{}, err
	}
	return sub, nil
}

func (r subjectRepository) QuerySubjects(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]subject.Subject, error) {
	q := psql.Select("id", "name", "workload", "created_at").From("subjects").OrderBy("name", "id")
	if ids != nil {
		q = q.Where(sq.Eq{"id": validIDs(ids)})
	}

	var rows []subjectRow
	if err := r.selectAll(ctx, &rows, q, exec, "querying subjects"); err != nil {
		return nil, err
	}
	subjects := make([]subject.Subject, 0, len(rows))
	for _, row := range rows {
		subjects = append(subjects, row.subject())
	}
	return subjects, nil
}

func (r subjectRepository) GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (subject.Subject, error) {
	if !isUUID(id) {
		return subject.Subject{}, subject.ErrNotFound
	}
	subjects, err := r.QuerySubjects(ctx, []string{id}, exec...)
	if err != nil {
		return subject.Subject{}, err
	}
	if len(subjects) == 0 {
		return subject.Subject{}, subject.ErrNotFound
	}
	return subjects[0], nil
}

func (r subjectRepository) UpdateSubject(ctx context.Context, sub subject.Subject, exec ...core.DBExecutor) (subject.Subject, error) {
	q := psql.Update("subjects").
		Set("name", sub.Name).
		Set("workload", sub.Workload).
		Where(sq.Eq{"id": sub.ID})
	if err := r.affectOne(ctx, q, exec, "updating subject"); err != nil {
		return subject.Subject{}, err
	}
	return sub, nil
}

func (r subjectRepository) DeleteSubject(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return subject.ErrNotFound
	}
	return r.affectOne(ctx, psql.Delete("subjects").Where(sq.Eq{"id": id}), exec, "deleting subject")
}

func (r subjectRepository) CountSubjects(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	return r.count(ctx, psql.Select("COUNT(*)").From("subjects"), exec, "counting subjects")
}
