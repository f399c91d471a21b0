package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/gamifica/core/user"
)

func (cli *commandLine) addUser(ctx context.Context, nu user.NewUser, isAdmin bool) error {
	role := user.RoleStudent
	if isAdmin {
		role = user.RoleAdmin
	}
	usr, err := cli.usrSvc.Create(ctx, nu, role)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	fmt.Fprintf(cli.out, "created %s (%s) with roles %v\n", usr.Username, usr.ID, usr.Roles)
	return nil
}

func (cli *commandLine) resetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := cli.usrSvc.ResetPassword(ctx, uname, pwd)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "password of %s updated\n", usr.Username)
	return nil
}
