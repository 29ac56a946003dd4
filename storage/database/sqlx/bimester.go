package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/etda/school/core"
	"github.com/etda/school/core/bimester"
)

type bimesterRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	SubjectID   string    `db:"subject_id"`
	SubjectName string    `db:"subject_name"`
	StartDate   core.Date `db:"start_date"`
	EndDate     core.Date `db:"end_date"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
}

func (row bimesterRow) bimester() bimester.Bimester {
	return bimester.Bimester{
		ID:          row.ID,
		Name:        row.Name,
		SubjectID:   row.SubjectID,
		SubjectName: row.SubjectName,
		StartDate:   row.StartDate,
		EndDate:     row.EndDate,
		Status:      row.Status,
		CreatedAt:   row.CreatedAt.UTC(),
	}
}

type bimesterRepository struct {
	repo
}

var _ bimester.Repository = (*bimesterRepository)(nil)

func NewBimesterRepository(exec core.DBExecutor) *bimesterRepository {
	return &bimesterRepository{repo{exec: exec, errNotFound: bimester.ErrNotFound}}
}

func (r bimesterRepository) CreateBimester(ctx context.Context, bim bimester.Bimester, exec ...core.DBExecutor) (bimester.Bimester, error) {
	bim.ID = uuid.New().String()
	q := psql.Insert("bimesters").
		Columns("id", "name", "subject_id", "start_date", "end_date", "status", "created_at").
		Values(bim.ID, bim.Name, bim.SubjectID, bim.StartDate, bim.EndDate, bim.Status, bim.CreatedAt.UTC())
	if _, err := r.run(ctx, q, exec, "inserting bimester"); err != nil {
		return bimester.Bimester{}, err
	}
	return r.GetBimester(ctx, bim.ID, exec...)
}

func (r bimesterRepository) query(ctx context.Context, where sq.And, exec []core.DBExecutor) ([]bimester.Bimester, error) {
	q := psql.Select(
		"b.id", "b.name", "b.subject_id", "s.name AS subject_name",
		"b.start_date", "b.end_date", "b.status", "b.created_at",
	).
		From("bimesters b").
		Join("subjects s ON s.id = b.subject_id").
		OrderBy("b.start_date", "b.name")
	if len(where) > 0 {
		q = q.Where(where)
	}

	var rows []bimesterRow
	if err := r.selectAll(ctx, &rows, q, exec, "querying bimesters"); err != nil {
		return nil, err
	}
	bims := make([]bimester.Bimester, 0, len(rows))
	for _, row := range rows {
		bims = append(bims, row.bimester())
	}
	return bims, nil
}

func (r bimesterRepository) QueryBimesters(ctx context.Context, filter *bimester.QueryFilter, exec ...core.DBExecutor) ([]bimester.Bimester, error) {
	var where sq.And
	if filter != nil {
		if filter.SubjectIDs != nil {
			where = append(where, sq.Eq{"b.subject_id": validIDs(filter.SubjectIDs)})
		}
		if filter.Status != "" {
			where = append(where, sq.Eq{"b.status": filter.Status})
		}
	}
	return r.query(ctx, where, exec)
}

func (r bimesterRepository) GetBimester(ctx context.Context, id string, exec ...core.DBExecutor) (bimester.Bimester, error) {
	if !isUUID(id) {
		return bimester.Bimester{}, bimester.ErrNotFound
	}
	bims, err := r.query(ctx, sq.And{sq.Eq{"b.id": id}}, exec)
	if err != nil {
		return bimester.Bimester{}, err
	}
	if len(bims) == 0 {
		return bimester.Bimester{}, bimester.ErrNotFound
	}
	return bims[0], nil
}

func (r bimesterRepository) UpdateBimester(ctx context.Context, bim bimester.Bimester, exec ...core.DBExecutor) (bimester.Bimester, error) {
	q := psql.Update("bimesters").SetMap(map[string]interface{}{
		"name":       bim.Name,
		"subject_id": bim.SubjectID,
		"start_date": bim.StartDate,
		"end_date":   bim.EndDate,
		"status":     bim.Status,
	}).Where(sq.Eq{"id": bim.ID})
	if err := r.affectOne(ctx, q, exec, "updating bimester"); err != nil {
		return bimester.Bimester{}, err
	}
	return r.GetBimester(ctx, bim.ID, exec...)
}

func (r bimesterRepository) DeleteBimester(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !isUUID(id) {
		return bimester.ErrNotFound
	}
	return r.affectOne(ctx, psql.Delete("bimesters").Where(sq.Eq{"id": id}), exec, "deleting bimester")
}

func (r bimesterRepository) HasRecords(ctx context.Context, id string, exec ...core.DBExecutor) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	q := psql.Select().Column(sq.Expr(
		"(SELECT COUNT(*) FROM grades WHERE bimester_id = ?) + (SELECT COUNT(*) FROM attendance WHERE bimester_id = ?)", id, id,
	))
	n, err := r.count(ctx, q, exec, "counting bimester records")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
