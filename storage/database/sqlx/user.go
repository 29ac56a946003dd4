package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/etda/school/core"
	"github.com/etda/school/core/user"
)

var userColumns = []string{
	"id", "name", "email", "role", "avatar_url", "is_active", "password_hash", "created_at", "updated_at", "last_login",
}

var userOrderings = map[string]bool{
	"name": true, "email": true, "role": true, "created_at": true, "updated_at": true, "last_login": true,
}

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Email        string      `db:"email"`
	Role         string      `db:"role"`
	AvatarURL    null.String `db:"avatar_url"`
	IsActive     bool        `db:"is_active"`
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func (row userRow) user() user.User {
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		Role:         row.Role,
		AvatarURL:    row.AvatarURL.String,
		IsActive:     row.IsActive,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	repo
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{repo{exec: exec, errNotFound: user.ErrNotFound}}
}

func (r userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs []string, exec ...core.DBExecutor) error {
	where := sq.And{sq.Expr("LOWER(email) = LOWER(?)", email)}
	if ids := validIDs(excludedIDs); len(ids) > 0 {
		where = append(where, sq.NotEq{"id": ids})
	}
	n, err := r.count(ctx, psql.Select("COUNT(*)").From("users").Where(where), exec, "checking email uniqueness")
	if err != nil {
		return err
	}
	if n > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (r userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	q := psql.Insert("users").Columns(userColumns...).Values(
		usr.ID,
		usr.Name,
		usr.Email,
		usr.Role,
		null.NewString(usr.AvatarURL, usr.AvatarURL != ""),
		usr.IsActive,
		usr.PasswordHash,
		usr.CreatedAt.UTC(),
		usr.UpdatedAt.UTC(),
		null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	)
	if _, err := r.run(ctx, q, exec, "inserting user"); err != nil {
		return user.User{}, err
	}
	return usr, nil
}

func (r userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	q := psql.Select(userColumns...).From("users")

	if filter != nil {
		// users with Name or Email matching the search keyword
		if filter.Search != "" {
			val := ilike(filter.Search)
			q = q.Where(sq.Or{sq.ILike{"name": val}, sq.ILike{"email": val}})
		}
		if len(filter.Roles) > 0 {
			q = q.Where(sq.Eq{"role": filter.Roles})
		}
		if filter.IsActive != nil {
			q = q.Where(sq.Eq{"is_active": *filter.IsActive})
		}
	}

	orderBy := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		if userOrderings[ord.Field] {
			orderBy = append(orderBy, ord.String())
		}
	}
	if len(orderBy) == 0 {
		orderBy = append(orderBy, "created_at DESC")
	}
	q = q.OrderBy(orderBy...)

	var rows []userRow
	if err := r.selectAll(ctx, &rows, q, exec, "querying users"); err != nil {
		return nil, err
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.user())
	}
	return users, nil
}

func (r userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	q := psql.Select(userColumns...).From("users").Limit(1)
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return user.User{}, user.ErrNotFound
		}
		q = q.Where(sq.Eq{"id": filter.ID})
	case filter.Email != "":
		q = q.Where(sq.Expr("LOWER(email) = LOWER(?)", filter.Email))
	default:
		return user.User{}, user.ErrNotFound
	}

	var rows []userRow
	if err := r.selectAll(ctx, &rows, q, exec, "finding user"); err != nil {
		return user.User{}, err
	}
	if len(rows) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return rows[0].user(), nil
}

func (r userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	q := psql.Update("users").SetMap(map[string]interface{}{
		"name":          usr.Name,
		"email":         usr.Email,
		"role":          usr.Role,
		"avatar_url":    null.NewString(usr.AvatarURL, usr.AvatarURL != ""),
		"is_active":     usr.IsActive,
		"password_hash": usr.PasswordHash,
		"updated_at":    usr.UpdatedAt.UTC(),
		"last_login":    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}).Where(sq.Eq{"id": usr.ID})

	res, err := r.run(ctx, q, exec, "updating user")
	if err != nil {
		return user.User{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	} else if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func (r userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	ids = validIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.run(ctx, psql.Delete("users").Where(sq.Eq{"id": ids}), exec, "deleting users")
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(n), nil
}
