package main

import (
	"context"
	"time"

	"github.com/etda/school/core"
	"github.com/etda/school/core/user"
)

// addUser creates a user, or reactivates an existing one with the given role and password.
func (cli *commandLine) addUser(name, email, role, pwd string) error {
	ctx := context.Background()
	nu := user.NewUser{Name: name, Email: email, Password: pwd, Role: role}
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}

	usr, err := cli.usrSvc.GetByEmail(ctx, nu.Email)
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		_, err = cli.usrSvc.Create(ctx, nu)
		return err
	}

	usr.Name = nu.Name
	usr.Role = nu.Role
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err = usr.SetPassword(nu.Password); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateUser(ctx, usr)
	return err
}
