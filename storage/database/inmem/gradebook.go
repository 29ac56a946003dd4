package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/etda/school/core"
	"github.com/etda/school/core/attendance"
	"github.com/etda/school/core/grade"
	"github.com/etda/school/core/student"
)

type gradeRepository struct {
	db *DB
}

var _ grade.Repository = (*gradeRepository)(nil)

func NewGradeRepository(db *DB) *gradeRepository {
	return &gradeRepository{db: db}
}

func (repo *gradeRepository) QueryGrades(_ context.Context, filter *grade.QueryFilter, _ ...core.DBExecutor) ([]grade.Grade, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var students, subjects, bimesters map[string]bool
	if filter != nil {
		if filter.StudentIDs != nil {
			students = inSet(filter.StudentIDs)
		}
		if filter.SubjectIDs != nil {
			subjects = inSet(filter.SubjectIDs)
		}
		if filter.BimesterIDs != nil {
			bimesters = inSet(filter.BimesterIDs)
		}
	}

	rows := make([]row[grade.Grade], 0, len(repo.db.grades))
	for _, r := range repo.db.grades {
		g := r.val
		if (students != nil && !students[g.StudentID]) ||
			(subjects != nil && !subjects[g.SubjectID]) ||
			(bimesters != nil && !bimesters[g.BimesterID]) {
			continue
		}
		rows = append(rows, row[grade.Grade]{val: repo.db.fillGrade(g), seq: r.seq})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].val.CreatedAt, rows[j].val.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return rows[i].seq > rows[j].seq
	})

	grades := make([]grade.Grade, 0, len(rows))
	for _, r := range rows {
		grades = append(grades, r.val)
	}
	return grades, nil
}

func (repo *gradeRepository) UpsertGrade(_ context.Context, g grade.Grade, _ ...core.DBExecutor) (grade.Grade, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.students[g.StudentID]; !ok {
		return grade.Grade{}, student.ErrNotFound
	}
	for id, r := range repo.db.grades {
		cur := r.val
		if cur.StudentID == g.StudentID && cur.SubjectID == g.SubjectID && cur.BimesterID == g.BimesterID {
			g.ID, g.CreatedAt = id, cur.CreatedAt
			repo.db.grades[id] = row[grade.Grade]{val: g, seq: r.seq}
			return repo.db.fillGrade(g), nil
		}
	}
	g.ID = uuid.New().String()
	repo.db.grades[g.ID] = row[grade.Grade]{val: g, seq: repo.db.next()}
	return repo.db.fillGrade(g), nil
}

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter *attendance.QueryFilter, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var students, subjects, bimesters map[string]bool
	if filter != nil {
		if filter.StudentIDs != nil {
			students = inSet(filter.StudentIDs)
		}
		if filter.SubjectIDs != nil {
			subjects = inSet(filter.SubjectIDs)
		}
		if filter.BimesterIDs != nil {
			bimesters = inSet(filter.BimesterIDs)
		}
	}

	records := make([]attendance.Record, 0, len(repo.db.attendance))
	for _, r := range repo.db.attendance {
		rec := r.val
		if (students != nil && !students[rec.StudentID]) ||
			(subjects != nil && !subjects[rec.SubjectID]) ||
			(bimesters != nil && !bimesters[rec.BimesterID]) {
			continue
		}
		if filter != nil && !filter.Date.IsZero() && !rec.Date.Equal(filter.Date) {
			continue
		}
		if filter != nil && filter.Present != nil && rec.Present != *filter.Present {
			continue
		}
		records = append(records, repo.db.fillRecord(rec))
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.After(records[j].Date)
		}
		if records[i].StudentName != records[j].StudentName {
			return records[i].StudentName < records[j].StudentName
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

func (repo *attendanceRepository) UpsertRecord(_ context.Context, rec attendance.Record, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.students[rec.StudentID]; !ok {
		return attendance.Record{}, student.ErrNotFound
	}
	for id, r := range repo.db.attendance {
		cur := r.val
		if cur.StudentID == rec.StudentID && cur.SubjectID == rec.SubjectID &&
			cur.BimesterID == rec.BimesterID && cur.Date.Equal(rec.Date) {
			cur.Present = rec.Present
			repo.db.attendance[id] = row[attendance.Record]{val: cur, seq: r.seq}
			return repo.db.fillRecord(cur), nil
		}
	}
	rec.ID = uuid.New().String()
	repo.db.attendance[rec.ID] = row[attendance.Record]{val: rec, seq: repo.db.next()}
	return repo.db.fillRecord(rec), nil
}

func (repo *attendanceRepository) CountAbsences(_ context.Context, studentID string, _ ...core.DBExecutor) ([]attendance.AbsenceCount, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	byKey := make(map[string]*attendance.AbsenceCount)
	for _, r := range repo.db.attendance {
		rec := r.val
		if rec.StudentID != studentID || rec.Present {
			continue
		}
		key := rec.SubjectID + ":" + rec.BimesterID
		c, ok := byKey[key]
		if !ok {
			rec = repo.db.fillRecord(rec)
			c = &attendance.AbsenceCount{
				SubjectID:    rec.SubjectID,
				SubjectName:  rec.SubjectName,
				BimesterID:   rec.BimesterID,
				BimesterName: rec.BimesterName,
			}
			byKey[key] = c
		}
		c.Count++
	}

	counts := make([]attendance.AbsenceCount, 0, len(byKey))
	for _, c := range byKey {
		counts = append(counts, *c)
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].SubjectName != counts[j].SubjectName {
			return counts[i].SubjectName < counts[j].SubjectName
		}
		return counts[i].BimesterName < counts[j].BimesterName
	})
	return counts, nil
}
