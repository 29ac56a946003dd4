package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/etda/school/core"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/teacher"
	"github.com/etda/school/core/user"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CheckCPFUniqueness(_ context.Context, cpf string, excludedIDs []string, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := inSet(excludedIDs)
	for _, r := range repo.db.students {
		if r.val.CPF == cpf && !excluded[r.val.ID] {
			return student.ErrCPFExists
		}
	}
	return nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, std student.Student, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[std.UserID]; !ok {
		return student.Student{}, user.ErrNotFound
	}
	for _, r := range repo.db.students {
		if r.val.CPF == std.CPF {
			return student.Student{}, student.ErrCPFExists
		}
	}
	std.ID = uuid.New().String()
	repo.db.students[std.ID] = row[student.Student]{val: std, seq: repo.db.next()}
	return repo.db.fillStudent(std), nil
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter *student.QueryFilter, _ ...core.DBExecutor) ([]student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var search string
	if filter != nil {
		search = strings.ToLower(filter.Search)
	}
	rows := make([]row[student.Student], 0, len(repo.db.students))
	for _, r := range repo.db.students {
		std := repo.db.fillStudent(r.val)
		if filter != nil && filter.ClassID != "" && std.ClassID != filter.ClassID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(std.Name), search) &&
			!strings.Contains(strings.ToLower(std.Email), search) &&
			!strings.Contains(std.CPF, search) {
			continue
		}
		rows = append(rows, row[student.Student]{val: std, seq: r.seq})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].val.CreatedAt, rows[j].val.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return rows[i].seq > rows[j].seq
	})

	students := make([]student.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.val)
	}
	return students, nil
}

func (repo *studentRepository) GetStudent(_ context.Context, filter student.GetFilter, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range repo.db.students {
		if (filter.ID != "" && r.val.ID == filter.ID) || (filter.ID == "" && filter.UserID != "" && r.val.UserID == filter.UserID) {
			return repo.db.fillStudent(r.val), nil
		}
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) UpdateStudent(_ context.Context, std student.Student, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.students[std.ID]
	if !ok {
		return student.Student{}, student.ErrNotFound
	}
	r.val.CPF, r.val.BirthDate, r.val.ClassID = std.CPF, std.BirthDate, std.ClassID
	repo.db.students[std.ID] = r
	return repo.db.fillStudent(r.val), nil
}

type teacherRepository struct {
	db *DB
}

var _ teacher.Repository = (*teacherRepository)(nil)

func NewTeacherRepository(db *DB) *teacherRepository {
	return &teacherRepository{db: db}
}

func (repo *teacherRepository) CreateTeacher(_ context.Context, tch teacher.Teacher, _ ...core.DBExecutor) (teacher.Teacher, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.users[tch.UserID]; !ok {
		return teacher.Teacher{}, user.ErrNotFound
	}
	tch.ID = uuid.New().String()
	tch.Subjects = nil
	repo.db.teachers[tch.ID] = row[teacher.Teacher]{val: tch, seq: repo.db.next()}
	return repo.db.fillTeacher(tch), nil
}

func (repo *teacherRepository) QueryTeachers(_ context.Context, _ ...core.DBExecutor) ([]teacher.Teacher, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	teachers := make([]teacher.Teacher, 0, len(repo.db.teachers))
	for _, r := range repo.db.teachers {
		teachers = append(teachers, repo.db.fillTeacher(r.val))
	}
	sort.Slice(teachers, func(i, j int) bool {
		if teachers[i].Name == teachers[j].Name {
			return teachers[i].ID < teachers[j].ID
		}
		return teachers[i].Name < teachers[j].Name
	})
	return teachers, nil
}

func (repo *teacherRepository) GetTeacher(_ context.Context, filter teacher.GetFilter, _ ...core.DBExecutor) (teacher.Teacher, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, r := range repo.db.teachers {
		if (filter.ID != "" && r.val.ID == filter.ID) || (filter.ID == "" && filter.UserID != "" && r.val.UserID == filter.UserID) {
			return repo.db.fillTeacher(r.val), nil
		}
	}
	return teacher.Teacher{}, teacher.ErrNotFound
}

func (repo *teacherRepository) SetTeacherSubjects(_ context.Context, teacherID string, subjectIDs []string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.teachers[teacherID]; !ok {
		return teacher.ErrNotFound
	}
	subs := make(map[string]bool, len(subjectIDs))
	for _, id := range subjectIDs {
		if _, ok := repo.db.subjects[id]; ok {
			subs[id] = true
		}
	}
	repo.db.teacherSubjects[teacherID] = subs
	return nil
}

func (repo *teacherRepository) DeleteTeacher(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.teachers[id]; !ok {
		return teacher.ErrNotFound
	}
	repo.db.deleteTeachers(func(tch teacher.Teacher) bool { return tch.ID == id })
	return nil
}
