package main

import "context"

func (cli *commandLine) migrate(ctx context.Context, command string, args ...string) error {
	return migrateFunc(ctx, cli.db, command, args...)
}
