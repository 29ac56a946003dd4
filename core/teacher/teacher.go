package teacher

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/etda/school/core"
	"github.com/etda/school/core/subject"
	"github.com/etda/school/core/user"
)

var ErrNotFound = core.NewNotFoundError("teacher")

type Teacher struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Name      string            `json:"name"`
	Email     string            `json:"email"`
	Subjects  []subject.Subject `json:"subjects"`
	CreatedAt time.Time         `json:"created_at"`
}

func (t Teacher) SubjectIDs() []string {
	ids := make([]string, 0, len(t.Subjects))
	for _, sub := range t.Subjects {
		ids = append(ids, sub.ID)
	}
	return ids
}

func (t Teacher) Teaches(subjectID string) bool {
	for _, sub := range t.Subjects {
		if sub.ID == subjectID {
			return true
		}
	}
	return false
}

type NewTeacher struct {
	Name       string   `json:"name" validate:"required,notblank"`
	Email      string   `json:"email" validate:"required,email"`
	Password   string   `json:"password" validate:"required"`
	SubjectIDs []string `json:"subject_ids" validate:"required,min=1,dive,uuid"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.Name = core.CleanString(nt.Name)
	nt.Email = core.CleanString(nt.Email, true /* lower */)
	nt.SubjectIDs = dedupe(nt.SubjectIDs)
	return validate.Struct(nt)
}

// UpdateTeacher defines what may be changed on a Teacher. A nil SubjectIDs keeps the current subjects.
type UpdateTeacher struct {
	Name       string   `json:"name"`
	Email      string   `json:"email" validate:"omitempty,email"`
	SubjectIDs []string `json:"subject_ids" validate:"omitempty,min=1,dive,uuid"`
}

func (upd *UpdateTeacher) Validate(validate *validator.Validate) error {
	upd.Name = core.CleanString(upd.Name)
	upd.Email = core.CleanString(upd.Email, true /* lower */)
	if upd.SubjectIDs != nil {
		upd.SubjectIDs = dedupe(upd.SubjectIDs)
	}
	return validate.Struct(upd)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = core.CleanString(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// InitValidators registers the teacher validators.
func InitValidators(validate *validator.Validate, _ ut.Translator) {
	validate.RegisterStructValidation(teacherStructValidation, NewTeacher{})
}

func teacherStructValidation(sl validator.StructLevel) {
	if nt, ok := sl.Current().Interface().(NewTeacher); ok {
		user.ValidatePassword(nt.Password, nt.Name, nt.Email, sl)
	}
}

type GetFilter struct {
	ID     string
	UserID string
}

type (
	Repository interface {
		CreateTeacher(ctx context.Context, tch Teacher, exec ...core.DBExecutor) (Teacher, error)
		// QueryTeachers lists teachers ordered by name, with their subjects.
		QueryTeachers(ctx context.Context, exec ...core.DBExecutor) ([]Teacher, error)
		GetTeacher(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Teacher, error)
		// SetTeacherSubjects replaces the subjects of a teacher.
		SetTeacherSubjects(ctx context.Context, teacherID string, subjectIDs []string, exec ...core.DBExecutor) error
		DeleteTeacher(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	Service interface {
		Create(ctx context.Context, nt NewTeacher) (Teacher, error)
		Query(ctx context.Context) ([]Teacher, error)
		GetByID(ctx context.Context, id string) (Teacher, error)
		GetByUserID(ctx context.Context, userID string) (Teacher, error)
		Update(ctx context.Context, id string, upd UpdateTeacher) (Teacher, error)
		Delete(ctx context.Context, id string) error
		// AssertTeaches returns the teacher behind userID, or core.ErrPermissionDenied
		// when they are not assigned to the subject.
		AssertTeaches(ctx context.Context, userID, subjectID string) (Teacher, error)
	}

	service struct {
		tx      core.Transactor
		repo    Repository
		subSvc  subject.Service
		usrSvc  user.Service
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(
	tx core.Transactor,
	repo Repository,
	subSvc subject.Service,
	usrSvc user.Service,
	mailSvc core.EmailService,
) Service {
	return &service{
		tx:      tx,
		repo:    repo,
		subSvc:  subSvc,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
	}
}

// Create opens the user account, the teacher record and its subject assignments in one transaction.
func (svc *service) Create(ctx context.Context, nt NewTeacher) (Teacher, error) {
	if err := svc.usrSvc.CheckEmailUniqueness(ctx, nt.Email); err != nil {
		return Teacher{}, err
	}
	if err := svc.subSvc.CheckExist(ctx, "subject_ids", nt.SubjectIDs...); err != nil {
		return Teacher{}, err
	}

	var tch Teacher
	var usr user.User
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		usr, err = svc.usrSvc.Create(ctx, user.NewUser{
			Name:     nt.Name,
			Email:    nt.Email,
			Password: nt.Password,
			Role:     user.RoleTeacher,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}

		tch, err = svc.repo.CreateTeacher(ctx, Teacher{UserID: usr.ID, CreatedAt: time.Now().UTC()}, exec)
		if err != nil {
			return errors.Wrap(err, "creating teacher")
		}
		return errors.Wrap(svc.repo.SetTeacherSubjects(ctx, tch.ID, nt.SubjectIDs, exec), "setting teacher subjects")
	})
	if err != nil {
		return Teacher{}, err
	}

	user.SendWelcomeMail(svc.mailSvc, usr)
	return svc.GetByID(ctx, tch.ID)
}

func (svc *service) Query(ctx context.Context) ([]Teacher, error) {
	return svc.repo.QueryTeachers(ctx)
}

func (svc *service) GetByID(ctx context.Context, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUserID(ctx context.Context, userID string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, GetFilter{UserID: userID})
}

func (svc *service) Update(ctx context.Context, id string, upd UpdateTeacher) (Teacher, error) {
	tch, err := svc.GetByID(ctx, id)
	if err != nil {
		return Teacher{}, err
	}
	usr, err := svc.usrSvc.GetByID(ctx, tch.UserID)
	if err != nil {
		return Teacher{}, errors.Wrap(err, "finding teacher user")
	}
	if upd.SubjectIDs != nil {
		if err := svc.subSvc.CheckExist(ctx, "subject_ids", upd.SubjectIDs...); err != nil {
			return Teacher{}, err
		}
	}

	uu := user.UpdateUser{Name: upd.Name, Email: upd.Email}
	uu.Clean(usr)

	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.usrSvc.Update(ctx, usr, uu, exec); err != nil {
			return errors.Wrap(err, "updating user")
		}
		if upd.SubjectIDs == nil {
			return nil
		}
		return errors.Wrap(svc.repo.SetTeacherSubjects(ctx, tch.ID, upd.SubjectIDs, exec), "setting teacher subjects")
	})
	if err != nil {
		return Teacher{}, err
	}
	return svc.GetByID(ctx, id)
}

// Delete removes the teacher record, then its user account.
func (svc *service) Delete(ctx context.Context, id string) error {
	tch, err := svc.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.DeleteTeacher(ctx, tch.ID, exec); err != nil {
			return errors.Wrap(err, "deleting teacher")
		}
		return errors.Wrap(svc.usrSvc.Delete(ctx, []string{tch.UserID}, exec), "deleting user")
	})
}

func (svc *service) AssertTeaches(ctx context.Context, userID, subjectID string) (Teacher, error) {
	tch, err := svc.GetByUserID(ctx, userID)
	if err != nil {
		if core.IsNotFound(err) {
			return Teacher{}, core.ErrPermissionDenied
		}
		return Teacher{}, errors.Wrap(err, "finding teacher")
	}
	if !tch.Teaches(subjectID) {
		return Teacher{}, core.ErrPermissionDenied
	}
	return tch, nil
}
