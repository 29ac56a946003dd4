package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/etda/school/core"
	"github.com/etda/school/core/attendance"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/class"
	"github.com/etda/school/core/grade"
	"github.com/etda/school/core/subject"
)

type subjectRepository struct {
	db *DB
}

var _ subject.Repository = (*subjectRepository)(nil)

func NewSubjectRepository(db *DB) *subjectRepository {
	return &subjectRepository{db: db}
}

func (repo *subjectRepository) CreateSubject(_ context.Context, sub subject.Subject, _ ...core.DBExecutor) (subject.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub.ID = uuid.New().String()
	repo.db.subjects[sub.ID] = row[subject.Subject]{val: sub, seq: repo.db.next()}
	return sub, nil
}

func (repo *subjectRepository) QuerySubjects(_ context.Context, ids []string, _ ...core.DBExecutor) ([]subject.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	want := inSet(ids)
	subjects := make([]subject.Subject, 0, len(repo.db.subjects))
	for _, r := range repo.db.subjects {
		if ids != nil && !want[r.val.ID] {
			continue
		}
		subjects = append(subjects, r.val)
	}
	sortSubjects(subjects)
	return subjects, nil
}

func (repo *subjectRepository) GetSubject(_ context.Context, id string, _ ...core.DBExecutor) (subject.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.subjects[id]; ok {
		return r.val, nil
	}
	return subject.Subject{}, subject.ErrNotFound
}

func (repo *subjectRepository) UpdateSubject(_ context.Context, sub subject.Subject, _ ...core.DBExecutor) (subject.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.subjects[sub.ID]
	if !ok {
		return subject.Subject{}, subject.ErrNotFound
	}
	r.val.Name, r.val.Workload = sub.Name, sub.Workload
	repo.db.subjects[sub.ID] = r
	return r.val, nil
}

func (repo *subjectRepository) DeleteSubject(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.subjects[id]; !ok {
		return subject.ErrNotFound
	}
	delete(repo.db.subjects, id)
	for _, subs := range repo.db.teacherSubjects {
		delete(subs, id)
	}
	repo.db.deleteBimesters(func(bim bimester.Bimester) bool { return bim.SubjectID == id })
	repo.db.deleteGrades(func(g grade.Grade) bool { return g.SubjectID == id })
	repo.db.deleteAttendance(func(rec attendance.Record) bool { return rec.SubjectID == id })
	return nil
}

func (repo *subjectRepository) CountSubjects(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.db.subjects), nil
}

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(db *DB) *classRepository {
	return &classRepository{db: db}
}

func (repo *classRepository) CreateClass(_ context.Context, cls class.Class, _ ...core.DBExecutor) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cls.ID = uuid.New().String()
	repo.db.classes[cls.ID] = row[class.Class]{val: cls, seq: repo.db.next()}
	return cls, nil
}

func (repo *classRepository) QueryClasses(_ context.Context, _ ...core.DBExecutor) ([]class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	classes := make([]class.Class, 0, len(repo.db.classes))
	for _, r := range repo.db.classes {
		classes = append(classes, r.val)
	}
	sort.Slice(classes, func(i, j int) bool {
		if classes[i].Name == classes[j].Name {
			return classes[i].ID < classes[j].ID
		}
		return classes[i].Name < classes[j].Name
	})
	return classes, nil
}

func (repo *classRepository) GetClass(_ context.Context, id string, _ ...core.DBExecutor) (class.Class, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.classes[id]; ok {
		return r.val, nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) UpdateClass(_ context.Context, cls class.Class, _ ...core.DBExecutor) (class.Class, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.classes[cls.ID]
	if !ok {
		return class.Class{}, class.ErrNotFound
	}
	r.val.Name, r.val.AcademicYear = cls.Name, cls.AcademicYear
	repo.db.classes[cls.ID] = r
	return r.val, nil
}

// DeleteClass removes the class and detaches its students.
func (repo *classRepository) DeleteClass(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.classes[id]; !ok {
		return class.ErrNotFound
	}
	delete(repo.db.classes, id)
	for sid, r := range repo.db.students {
		if r.val.ClassID == id {
			r.val.ClassID = ""
			repo.db.students[sid] = r
		}
	}
	return nil
}

type bimesterRepository struct {
	db *DB
}

var _ bimester.Repository = (*bimesterRepository)(nil)

func NewBimesterRepository(db *DB) *bimesterRepository {
	return &bimesterRepository{db: db}
}

func (repo *bimesterRepository) CreateBimester(_ context.Context, bim bimester.Bimester, _ ...core.DBExecutor) (bimester.Bimester, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.subjects[bim.SubjectID]; !ok {
		return bimester.Bimester{}, subject.ErrNotFound
	}
	bim.ID = uuid.New().String()
	repo.db.bimesters[bim.ID] = row[bimester.Bimester]{val: bim, seq: repo.db.next()}
	return repo.db.fillBimester(bim), nil
}

func (repo *bimesterRepository) QueryBimesters(_ context.Context, filter *bimester.QueryFilter, _ ...core.DBExecutor) ([]bimester.Bimester, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var subjects map[string]bool
	if filter != nil && filter.SubjectIDs != nil {
		subjects = inSet(filter.SubjectIDs)
	}
	rows := make([]row[bimester.Bimester], 0, len(repo.db.bimesters))
	for _, r := range repo.db.bimesters {
		if subjects != nil && !subjects[r.val.SubjectID] {
			continue
		}
		if filter != nil && filter.Status != "" && r.val.Status != filter.Status {
			continue
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].val, rows[j].val
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return rows[i].seq < rows[j].seq
	})

	bims := make([]bimester.Bimester, 0, len(rows))
	for _, r := range rows {
		bims = append(bims, repo.db.fillBimester(r.val))
	}
	return bims, nil
}

func (repo *bimesterRepository) GetBimester(_ context.Context, id string, _ ...core.DBExecutor) (bimester.Bimester, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.bimesters[id]; ok {
		return repo.db.fillBimester(r.val), nil
	}
	return bimester.Bimester{}, bimester.ErrNotFound
}

func (repo *bimesterRepository) UpdateBimester(_ context.Context, bim bimester.Bimester, _ ...core.DBExecutor) (bimester.Bimester, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.bimesters[bim.ID]
	if !ok {
		return bimester.Bimester{}, bimester.ErrNotFound
	}
	bim.CreatedAt = r.val.CreatedAt
	repo.db.bimesters[bim.ID] = row[bimester.Bimester]{val: bim, seq: r.seq}
	return repo.db.fillBimester(bim), nil
}

func (repo *bimesterRepository) HasRecords(_ context.Context, id string, _ ...core.DBExecutor) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range repo.db.grades {
		if r.val.BimesterID == id {
			return true, nil
		}
	}
	for _, r := range repo.db.attendance {
		if r.val.BimesterID == id {
			return true, nil
		}
	}
	return false, nil
}

func (repo *bimesterRepository) DeleteBimester(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.bimesters[id]; !ok {
		return bimester.ErrNotFound
	}
	repo.db.deleteBimesters(func(bim bimester.Bimester) bool { return bim.ID == id })
	return nil
}
