package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/andresuchdata/customer-health/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/customer-health/backend-go/migrations"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations",
		Flags: []cli.Flag{
			newDBURLFlag(),
			&cli.StringFlag{Name: "dir", Usage: "Read migrations from this directory instead of the built-in set"},
		},
		Action: func(c *cli.Context) error {
			var fsys fs.FS = migrations.FS
			if dir := c.String("dir"); dir != "" {
				fsys = os.DirFS(dir)
			}

			db, err := postgres.Open(c.String("db-url"))
			if err != nil {
				return err
			}
			defer db.Close()

			count, err := postgres.Migrate(c.Context, db.DB, fsys)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "applied %d migration(s)\n", count)
			return nil
		},
	}
}
