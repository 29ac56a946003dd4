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

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) query() []row[user.User] {
	users := make([]row[user.User], 0, len(repo.db.users))
	for _, u := range repo.db.users {
		users = append(users, u)
	}
	return users
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedIDs []string, _ ...core.DBExecutor) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	excluded := make(map[string]bool, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = true
	}
	for _, u := range repo.db.users {
		if strings.EqualFold(u.val.Email, email) && !excluded[u.val.ID] {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, u := range repo.db.users {
		if strings.EqualFold(u.val.Email, usr.Email) {
			return user.User{}, user.ErrEmailExists
		}
	}
	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = row[user.User]{val: usr, seq: repo.db.next()}
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rows := repo.query()
	if filter != nil && !filter.IsEmpty() {
		search := strings.ToLower(filter.Search)
		roles := make(map[string]bool, len(filter.Roles))
		for _, r := range filter.Roles {
			roles[r] = true
		}

		filtered := rows[:0]
		for _, r := range rows {
			usr := r.val
			if search != "" &&
				!strings.Contains(strings.ToLower(usr.Name), search) &&
				!strings.Contains(strings.ToLower(usr.Email), search) {
				continue
			}
			if len(roles) > 0 && !roles[usr.Role] {
				continue
			}
			if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
				continue
			}
			filtered = append(filtered, r)
		}
		rows = filtered
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareUsers(rows[i].val, rows[j].val, ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return rows[i].seq > rows[j].seq
	})

	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.val)
	}
	return users, nil
}

func compareUsers(a, b user.User, field string) int {
	switch field {
	case "name":
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case "email":
		return strings.Compare(a.Email, b.Email)
	case "role":
		return strings.Compare(a.Role, b.Role)
	case "created_at":
		return a.CreatedAt.Compare(b.CreatedAt)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "last_login":
		return a.LastLogin.Compare(b.LastLogin)
	}
	return 0
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter, _ ...core.DBExecutor) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != "" {
		if u, ok := repo.db.users[filter.ID]; ok {
			return u.val, nil
		}
		return user.User{}, user.ErrNotFound
	}
	if filter.Email != "" {
		for _, u := range repo.db.users {
			if strings.EqualFold(u.val.Email, filter.Email) {
				return u.val, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	usr.CreatedAt = orig.val.CreatedAt
	repo.db.users[usr.ID] = row[user.User]{val: usr, seq: orig.seq}
	return usr, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.users[id]; !ok {
			continue
		}
		delete(repo.db.users, id)
		cnt++

		userID := id
		repo.db.deleteStudents(func(std student.Student) bool { return std.UserID == userID })
		repo.db.deleteTeachers(func(tch teacher.Teacher) bool { return tch.UserID == userID })
	}
	return cnt, nil
}
