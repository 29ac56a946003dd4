package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/etda/school/core"
	"github.com/etda/school/core/attendance"
	"github.com/etda/school/core/bimester"
	"github.com/etda/school/core/class"
	"github.com/etda/school/core/grade"
	"github.com/etda/school/core/student"
	"github.com/etda/school/core/subject"
	"github.com/etda/school/core/teacher"
	"github.com/etda/school/core/user"
)

type (
	// DB keeps every table in memory. Rows keep their insertion sequence to break ordering ties.
	DB struct {
		sync.RWMutex
		txMu sync.Mutex

		seq             int
		users           map[string]row[user.User]
		subjects        map[string]row[subject.Subject]
		classes         map[string]row[class.Class]
		bimesters       map[string]row[bimester.Bimester]
		students        map[string]row[student.Student]
		teachers        map[string]row[teacher.Teacher]
		teacherSubjects map[string]map[string]bool // {teacherID: {subjectID}}
		grades          map[string]row[grade.Grade]
		attendance      map[string]row[attendance.Record]
	}

	row[T any] struct {
		val T
		seq int
	}
)

func Open() *DB {
	return &DB{
		users:           make(map[string]row[user.User]),
		subjects:        make(map[string]row[subject.Subject]),
		classes:         make(map[string]row[class.Class]),
		bimesters:       make(map[string]row[bimester.Bimester]),
		students:        make(map[string]row[student.Student]),
		teachers:        make(map[string]row[teacher.Teacher]),
		teacherSubjects: make(map[string]map[string]bool),
		grades:          make(map[string]row[grade.Grade]),
		attendance:      make(map[string]row[attendance.Record]),
	}
}

func (db *DB) next() int {
	db.seq++
	return db.seq
}

func copyTable[T any](src map[string]row[T]) map[string]row[T] {
	dst := make(map[string]row[T], len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (db *DB) snapshot() *DB {
	db.RLock()
	defer db.RUnlock()

	ts := make(map[string]map[string]bool, len(db.teacherSubjects))
	for tid, subs := range db.teacherSubjects {
		cp := make(map[string]bool, len(subs))
		for sid := range subs {
			cp[sid] = true
		}
		ts[tid] = cp
	}
	return &DB{
		seq:             db.seq,
		users:           copyTable(db.users),
		subjects:        copyTable(db.subjects),
		classes:         copyTable(db.classes),
		bimesters:       copyTable(db.bimesters),
		students:        copyTable(db.students),
		teachers:        copyTable(db.teachers),
		teacherSubjects: ts,
		grades:          copyTable(db.grades),
		attendance:      copyTable(db.attendance),
	}
}

func (db *DB) restore(snap *DB) {
	db.Lock()
	defer db.Unlock()

	db.seq = snap.seq
	db.users = snap.users
	db.subjects = snap.subjects
	db.classes = snap.classes
	db.bimesters = snap.bimesters
	db.students = snap.students
	db.teachers = snap.teachers
	db.teacherSubjects = snap.teacherSubjects
	db.grades = snap.grades
	db.attendance = snap.attendance
}

// Transactor serializes transactions and restores the tables when one fails.
type Transactor struct {
	db *DB
}

var _ core.Transactor = (*Transactor)(nil)

func NewTransactor(db *DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	t.db.txMu.Lock()
	defer t.db.txMu.Unlock()

	snap := t.db.snapshot()
	defer func() {
		if p := recover(); p != nil {
			t.db.restore(snap)
			panic(p)
		}
	}()

	if err = fn(nil); err != nil {
		t.db.restore(snap)
	}
	return err
}

// deleteStudents removes students and what depends on them. The caller holds the write lock.
func (db *DB) deleteStudents(match func(std student.Student) bool) {
	for id, r := range db.students {
		if match(r.val) {
			delete(db.students, id)
			db.deleteGrades(func(g grade.Grade) bool { return g.StudentID == id })
			db.deleteAttendance(func(rec attendance.Record) bool { return rec.StudentID == id })
		}
	}
}

func (db *DB) deleteTeachers(match func(tch teacher.Teacher) bool) {
	for id, r := range db.teachers {
		if match(r.val) {
			delete(db.teachers, id)
			delete(db.teacherSubjects, id)
		}
	}
}

func (db *DB) deleteBimesters(match func(bim bimester.Bimester) bool) {
	for id, r := range db.bimesters {
		if match(r.val) {
			delete(db.bimesters, id)
			db.deleteGrades(func(g grade.Grade) bool { return g.BimesterID == id })
			db.deleteAttendance(func(rec attendance.Record) bool { return rec.BimesterID == id })
		}
	}
}

func (db *DB) deleteGrades(match func(g grade.Grade) bool) {
	for id, r := range db.grades {
		if match(r.val) {
			delete(db.grades, id)
		}
	}
}

func (db *DB) deleteAttendance(match func(rec attendance.Record) bool) {
	for id, r := range db.attendance {
		if match(r.val) {
			delete(db.attendance, id)
		}
	}
}

// The fill helpers resolve the names joined from other tables. The caller holds the read lock.

func (db *DB) fillStudent(std student.Student) student.Student {
	if u, ok := db.users[std.UserID]; ok {
		std.Name, std.Email = u.val.Name, u.val.Email
	}
	std.ClassName = ""
	if c, ok := db.classes[std.ClassID]; ok {
		std.ClassName = c.val.Name
	}
	return std
}

func (db *DB) fillTeacher(tch teacher.Teacher) teacher.Teacher {
	if u, ok := db.users[tch.UserID]; ok {
		tch.Name, tch.Email = u.val.Name, u.val.Email
	}
	tch.Subjects = make([]subject.Subject, 0, len(db.teacherSubjects[tch.ID]))
	for sid := range db.teacherSubjects[tch.ID] {
		if s, ok := db.subjects[sid]; ok {
			tch.Subjects = append(tch.Subjects, s.val)
		}
	}
	sortSubjects(tch.Subjects)
	return tch
}

func (db *DB) fillBimester(bim bimester.Bimester) bimester.Bimester {
	if s, ok := db.subjects[bim.SubjectID]; ok {
		bim.SubjectName = s.val.Name
	}
	return bim
}

func (db *DB) studentName(studentID string) string {
	if std, ok := db.students[studentID]; ok {
		if u, ok := db.users[std.val.UserID]; ok {
			return u.val.Name
		}
	}
	return ""
}

func (db *DB) fillGrade(g grade.Grade) grade.Grade {
	g.StudentName = db.studentName(g.StudentID)
	if s, ok := db.subjects[g.SubjectID]; ok {
		g.SubjectName = s.val.Name
	}
	if b, ok := db.bimesters[g.BimesterID]; ok {
		g.BimesterName = b.val.Name
	}
	return g
}

func (db *DB) fillRecord(rec attendance.Record) attendance.Record {
	rec.StudentName = db.studentName(rec.StudentID)
	if s, ok := db.subjects[rec.SubjectID]; ok {
		rec.SubjectName = s.val.Name
	}
	if b, ok := db.bimesters[rec.BimesterID]; ok {
		rec.BimesterName = b.val.Name
	}
	return rec
}

func sortSubjects(subjects []subject.Subject) {
	sort.Slice(subjects, func(i, j int) bool {
		if subjects[i].Name == subjects[j].Name {
			return subjects[i].ID < subjects[j].ID
		}
		return subjects[i].Name < subjects[j].Name
	})
}

func inSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
