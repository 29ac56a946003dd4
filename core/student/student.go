package student

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/etda/school/core"
	"github.com/etda/school/core/class"
	"github.com/etda/school/core/user"
)

var (
	ErrNotFound  = core.NewNotFoundError("student")
	ErrCPFExists = errors.New("a student with this CPF already exists")
)

// Student is the academic record of a user with the student role.
// Name and Email live on the user account.
type Student struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CPF       string    `json:"cpf"`
	BirthDate core.Date `json:"birth_date"`
	ClassID   string    `json:"class_id,omitempty"`
	ClassName string    `json:"class_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type NewStudent struct {
	Name      string    `json:"name" validate:"required,notblank"`
	Email     string    `json:"email" validate:"required,email"`
	Password  string    `json:"password" validate:"required"`
	CPF       string    `json:"cpf" validate:"required,cpf"`
	BirthDate core.Date `json:"birth_date"`
	ClassID   string    `json:"class_id" validate:"omitempty,uuid"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Email = core.CleanString(ns.Email, true /* lower */)
	ns.CPF = core.NormalizeCPF(ns.CPF)
	ns.ClassID = core.CleanString(ns.ClassID)
	return validate.Struct(ns)
}

// UpdateStudent defines what may be changed on a Student. Empty fields are left untouched;
// an empty ClassID pointer value removes the student from their class.
type UpdateStudent struct {
	Name      string    `json:"name"`
	Email     string    `json:"email" validate:"omitempty,email"`
	CPF       string    `json:"cpf" validate:"omitempty,cpf"`
	BirthDate core.Date `json:"birth_date"`
	ClassID   *string   `json:"class_id" validate:"omitempty"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	us.Email = core.CleanString(us.Email, true /* lower */)
	us.CPF = core.NormalizeCPF(us.CPF)
	if us.ClassID != nil {
		id := core.CleanString(*us.ClassID)
		us.ClassID = &id
		if id != "" {
			if err := validate.Var(id, "uuid"); err != nil {
				return core.NewValidationError(err, core.FieldError{Field: "class_id", Error: "class_id must be a valid UUID"})
			}
		}
	}
	return validate.Struct(us)
}

// InitValidators registers the student validators.
func InitValidators(validate *validator.Validate, _ ut.Translator) {
	validate.RegisterStructValidation(studentStructValidation, NewStudent{})
}

func studentStructValidation(sl validator.StructLevel) {
	ns, ok := sl.Current().Interface().(NewStudent)
	if !ok {
		return
	}
	if ns.BirthDate.IsZero() {
		sl.ReportError(ns.BirthDate, "birth_date", "BirthDate", "required", "")
	}
	user.ValidatePassword(ns.Password, ns.Name, ns.Email, sl)
}

type GetFilter struct {
	ID     string
	UserID string
}

type QueryFilter struct {
	ClassID string
	Search  string
}

type (
	Repository interface {
		CheckCPFUniqueness(ctx context.Context, cpf string, excludedIDs []string, exec ...core.DBExecutor) error
		CreateStudent(ctx context.Context, std Student, exec ...core.DBExecutor) (Student, error)
		// QueryStudents lists students, most recently created first.
		QueryStudents(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Student, error)
		GetStudent(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Student, error)
		UpdateStudent(ctx context.Context, std Student, exec ...core.DBExecutor) (Student, error)
	}

	Service interface {
		Create(ctx context.Context, ns NewStudent) (Student, error)
		Query(ctx context.Context, filter *QueryFilter) ([]Student, error)
		GetByID(ctx context.Context, id string) (Student, error)
		GetByUserID(ctx context.Context, userID string) (Student, error)
		Update(ctx context.Context, id string, us UpdateStudent) (Student, error)
		Delete(ctx context.Context, id string) error
	}

	service struct {
		tx        core.Transactor
		repo      Repository
		classRepo class.Repository
		usrSvc    user.Service
		mailSvc   core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(
	tx core.Transactor,
	repo Repository,
	classRepo class.Repository,
	usrSvc user.Service,
	mailSvc core.EmailService,
) Service {
	return &service{
		tx:        tx,
		repo:      repo,
		classRepo: classRepo,
		usrSvc:    usrSvc,
		mailSvc:   mailSvc,
	}
}

func (svc *service) checkCPFUniqueness(ctx context.Context, cpf string, excludedIDs ...string) error {
	if err := svc.repo.CheckCPFUniqueness(ctx, cpf, excludedIDs); err != nil {
		if err == ErrCPFExists {
			return core.NewValidationError(err, core.FieldError{Field: "cpf", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) checkClass(ctx context.Context, classID string) error {
	if classID == "" {
		return nil
	}
	if _, err := svc.classRepo.GetClass(ctx, classID); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(err, core.FieldError{Field: "class_id", Error: "unknown class"})
		}
		return errors.Wrap(err, "finding class")
	}
	return nil
}

// Create opens the user account and the student record in one transaction.
func (svc *service) Create(ctx context.Context, ns NewStudent) (Student, error) {
	if err := svc.usrSvc.CheckEmailUniqueness(ctx, ns.Email); err != nil {
		return Student{}, err
	}
	if err := svc.checkCPFUniqueness(ctx, ns.CPF); err != nil {
		return Student{}, err
	}
	if err := svc.checkClass(ctx, ns.ClassID); err != nil {
		return Student{}, err
	}

	var std Student
	var usr user.User
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		usr, err = svc.usrSvc.Create(ctx, user.NewUser{
			Name:     ns.Name,
			Email:    ns.Email,
			Password: ns.Password,
			Role:     user.RoleStudent,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating user")
		}

		std, err = svc.repo.CreateStudent(ctx, Student{
			UserID:    usr.ID,
			CPF:       ns.CPF,
			BirthDate: ns.BirthDate,
			ClassID:   ns.ClassID,
			CreatedAt: time.Now().UTC(),
		}, exec)
		return errors.Wrap(err, "creating student")
	})
	if err != nil {
		return Student{}, err
	}

	user.SendWelcomeMail(svc.mailSvc, usr)
	return svc.GetByID(ctx, std.ID)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, filter)
}

func (svc *service) GetByID(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{ID: id})
}

func (svc *service) GetByUserID(ctx context.Context, userID string) (Student, error) {
	return svc.repo.GetStudent(ctx, GetFilter{UserID: userID})
}

func (svc *service) Update(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	std, err := svc.GetByID(ctx, id)
	if err != nil {
		return Student{}, err
	}
	usr, err := svc.usrSvc.GetByID(ctx, std.UserID)
	if err != nil {
		return Student{}, errors.Wrap(err, "finding student user")
	}

	if us.CPF != "" && us.CPF != std.CPF {
		if err := svc.checkCPFUniqueness(ctx, us.CPF, std.ID); err != nil {
			return Student{}, err
		}
		std.CPF = us.CPF
	}
	if !us.BirthDate.IsZero() {
		std.BirthDate = us.BirthDate
	}
	if us.ClassID != nil {
		if err := svc.checkClass(ctx, *us.ClassID); err != nil {
			return Student{}, err
		}
		std.ClassID = *us.ClassID
	}

	uu := user.UpdateUser{Name: us.Name, Email: us.Email}
	uu.Clean(usr)

	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.usrSvc.Update(ctx, usr, uu, exec); err != nil {
			return errors.Wrap(err, "updating user")
		}
		_, err := svc.repo.UpdateStudent(ctx, std, exec)
		return errors.Wrap(err, "updating student")
	})
	if err != nil {
		return Student{}, err
	}
	return svc.GetByID(ctx, id)
}

// Delete removes the student's user account; the student record, grades and attendance go with it.
func (svc *service) Delete(ctx context.Context, id string) error {
	std, err := svc.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return svc.usrSvc.Delete(ctx, []string{std.UserID})
}
