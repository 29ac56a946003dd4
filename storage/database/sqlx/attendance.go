package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/etda/school/core"
	"github.com/etda/school/core/attendance"
)

var errAttendanceNotFound = core.NewNotFoundError("attendance record")

type attendanceRow struct {
	ID           string    `db:"id"`
	StudentID    string    `db:"student_id"`
	StudentName  string    `db:"student_name"`
	SubjectID    string    `db:"subject_id"`
	SubjectName  string    `db:"subject_name"`
	BimesterID   string    `db:"bimester_id"`
	BimesterName string    `db:"bimester_name"`
	Date         core.Date `db:"date"`
	Present      bool      `db:"present"`
	CreatedAt    time.Time `db:"created_at"`
}

func (row attendanceRow) record() attendance.Record {
	return attendance.Record{
		ID:           row.ID,
		StudentID:    row.StudentID,
		StudentName:  row.StudentName,
		SubjectID:    row.SubjectID,
		SubjectName:  row.SubjectName,
		BimesterID:   row.BimesterID,
		BimesterName: row.BimesterName,
		Date:         row.Date,
		Present:      row.Present,
		CreatedAt:    row.CreatedAt.UTC(),
	}
}

type attendanceRepository struct {
	repo
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(exec core.DBExecutor) *attendanceRepository {
	return &attendanceRepository{repo{exec: exec, errNotFound: errAttendanceNotFound}}
}

func (r attendanceRepository) QueryRecords(ctx context.Context, filter *attendance.QueryFilter, exec ...core.DBExecutor) ([]attendance.Record, error) {
	q := psql.Select(
		"a.id", "a.student_id", "u.name AS student_name",
		"a.subject_id", "s.name AS subject_name",
		"a.bimester_id", "b.name AS bimester_name",
		"a.date", "a.present", "a.created_at",
	).
		From("attendance a").
		Join("students st ON st.id = a.student_id").
		Join("users u ON u.id = st.user_id").
		Join("subjects s ON s.id = a.subject_id").
		Join("bimesters b ON b.id = a.bimester_id").
		OrderBy("a.date DESC", "u.name")

	if filter != nil {
		if filter.StudentIDs != nil {
			q = q.Where(sq.Eq{"a.student_id": validIDs(filter.StudentIDs)})
		}
		if filter.SubjectIDs != nil {
			q = q.Where(sq.Eq{"a.subject_id": validIDs(filter.SubjectIDs)})
		}
		if filter.BimesterIDs != nil {
			q = q.Where(sq.Eq{"a.bimester_id": validIDs(filter.BimesterIDs)})
		}
		if !filter.Date.IsZero() {
			q = q.Where(sq.Eq{"a.date": filter.Date})
		}
		if filter.Present != nil {
			q = q.Where(sq.Eq{"a.present": *filter.Present})
		}
	}

	var rows []attendanceRow
	if err := r.selectAll(ctx, &rows, q, exec, "querying attendance"); err != nil {
		return nil, err
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, nil
}

func (r attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	q := psql.Insert("attendance").
		Columns("id", "student_id", "subject_id", "bimester_id", "date", "present", "created_at").
		Values(uuid.New().String(), rec.StudentID, rec.SubjectID, rec.BimesterID, rec.Date, rec.Present, rec.CreatedAt.UTC()).
		Suffix(`ON CONFLICT (student_id, subject_id, bimester_id, date) DO UPDATE SET present = EXCLUDED.present
		RETURNING id, created_at`)

	query, args, err := q.ToSql()
	if err != nil {
		return attendance.Record{}, err
	}
	if err = r.getExec(exec).QueryRowContext(ctx, query, args...).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return attendance.Record{}, r.trapNoRowsErr(err, "upserting attendance")
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func (r attendanceRepository) CountAbsences(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]attendance.AbsenceCount, error) {
	if !isUUID(studentID) {
		return []attendance.AbsenceCount{}, nil
	}
	q := psql.Select(
		"a.subject_id", "s.name AS subject_name", "a.bimester_id", "b.name AS bimester_name", "COUNT(*) AS count",
	).
		From("attendance a").
		Join("subjects s ON s.id = a.subject_id").
		Join("bimesters b ON b.id = a.bimester_id").
		Where(sq.Eq{"a.student_id": studentID, "a.present": false}).
		GroupBy("a.subject_id", "s.name", "a.bimester_id", "b.name").
		OrderBy("s.name", "b.name")

	var counts []attendance.AbsenceCount
	if err := r.selectAll(ctx, &counts, q, exec, "counting absences"); err != nil {
		return nil, err
	}
	return counts, nil
}
