package main

import (
	"context"
	"database/sql"

	_ "github.com/glebarez/go-sqlite"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/attendance/storage/database"
)

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, up-to, down, down-to, redo, reset, status, version) on the audit database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.migrate(cmd.Context(), args)
		},
	}
}

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, dialect, err := cli.openSQL()
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return gooseRunFunc(ctx, db, dialect, args[0], args[1:]...)
}

// openSQL opens the configured database for migrations and returns its goose dialect.
func (cli *commandLine) openSQL() (*sql.DB, string, error) {
	conf := cli.conf
	switch conf.Database.Engine {
	case database.EnginePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, "", err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, "", err
		}
		return db.DB, "postgres", nil

	case database.EngineSQLite:
		db, err := sql.Open("sqlite", conf.Database.Path)
		if err != nil {
			return nil, "", errors.Wrap(err, "opening database")
		}
		return db, "sqlite3", nil
	}
	return nil, "", errors.Errorf("nothing to migrate: database engine is %q", conf.Database.Engine)
}
