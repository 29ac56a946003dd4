package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/etda/school/core"
	"github.com/etda/school/core/student"
)

type studentRow struct {
	ID        string      `db:"id"`
	UserID    string      `db:"user_id"`
	Name      string      `db:"name"`
	Email     string      `db:"email"`
	CPF       string      `db:"cpf"`
	BirthDate core.Date   `db:"birth_date"`
	ClassID   null.String `db:"class_id"`
	ClassName null.String `db:"class_name"`
	CreatedAt time.Time   `db:"created_at"`
}

func (row studentRow) student() student.Student {
	return student.Student{
		ID:        row.ID,
		UserID:    row.UserID,
		Name:      row.Name,
		Email:     row.Email,
		CPF:       row.CPF,
		BirthDate: row.BirthDate,
		ClassID:   row.ClassID.String,
		ClassName: row.ClassName.String,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

type studentRepository struct {
	repo
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(exec core.DBExecutor) *studentRepository {
	return &studentRepository{repo{exec: exec, errNotFound: student.ErrNotFound}}
}

func (r studentRepository) CheckCPFUniqueness(ctx context.Context, cpf string, excludedIDs []string, exec ...core.DBExecutor) error {
	where := sq.And{sq.Eq{"cpf": cpf}}
	if ids := validIDs(excludedIDs); len(ids) > 0 {
		where = append(where, sq.NotEq{"id": ids})
	}
	n, err := r.count(ctx, psql.Select("COUNT(*)").From("students").Where(where), exec, "checking cpf uniqueness")
	if err != nil {
		return err
	}
	if n > 0 {
		return student.ErrCPFExists
	}
	return nil
}

func (r studentRepository) CreateStudent(ctx context.Context, std student.Student, exec ...core.DBExecutor) (student.Student, error) {
	std.ID = uuid.New().String()
	q := psql.Insert("students").
		Columns("id", "user_id", "cpf", "birth_date", "class_id", "created_at").
		Values(std.ID, std.UserID, std.CPF, std.BirthDate, null.NewString(std.ClassID, std.ClassID != ""), std.CreatedAt.UTC())
	if _, err := r.run(ctx, q, exec, "inserting student"); err != nil {
		return student.Student{}, err
	}
	return std, nil
}

func (r studentRepository) query(ctx context.Context, where sq.And, limit uint64, exec []core.DBExecutor) ([]student.Student, error) {
	q := psql.Select(
		"st.id", "st.user_id", "u.name", "u.email", "st.cpf", "st.birth_date",
		"st.class_id", "c.name AS class_name", "st.created_at",
	).
		From("students st").
		Join("users u ON u.id = st.user_id").
		LeftJoin("classes c ON c.id = st.class_id").
		OrderBy("st.created_at DESC", "st.id")
	if len(where) > 0 {
		q = q.Where(where)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []studentRow
	if err := r.selectAll(ctx, &rows, q, exec, "querying students"); err != nil {
		return nil, err
	}
	students := make([]student.Student, 0, len(rows))
	for _, row := range rows {
		students = append(students, row.student())
	}
	return students, nil
}

func (r studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, exec ...core.DBExecutor) ([]student.Student, error) {
	var where sq.And
	if filter != nil {
		if filter.ClassID != "" {
			where = append(where, sq.Eq{"st.class_id": validIDs([]string{filter.ClassID})})
		}
		if filter.Search != "" {
			val := ilike(filter.Search)
			where = append(where, sq.Or{sq.ILike{"u.name": val}, sq.ILike{"u.email": val}, sq.ILike{"st.cpf": val}})
		}
	}
	return r.query(ctx, where, 0, exec)
}

func (r studentRepository) GetStudent(ctx context.Context, filter student.GetFilter, exec ...core.DBExecutor) (student.Student, error) {
	var where sq.And
	switch {
	case filter.ID != "" && isUUID(filter.ID):
		where = sq.And{sq.Eq{"st.id": filter.ID}}
	case filter.UserID != "" && isUUID(filter.UserID):
		where = sq.And{sq.Eq{"st.user_id": filter.UserID}}
	default:
		return student.Student{}, student.ErrNotFound
	}

	students, err := r.query(ctx, where, 1, exec)
	if err != nil {
		return student.Student{}, err
	}
	if len(students) == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return students[0], nil
}

func (r studentRepository) UpdateStudent(ctx context.Context, std student.Student, exec ...core.DBExecutor) (student.Student, error) {
	q := psql.Update("students").SetMap(map[string]interface{}{
		"cpf":        std.CPF,
		"birth_date": std.BirthDate,
		"class_id":   null.NewString(std.ClassID, std.ClassID != ""),
	}).Where(sq.Eq{"id": std.ID})
	if err := r.affectOne(ctx, q, exec, "updating student"); err != nil {
		return student.Student{}, err
	}
	return std, nil
}
