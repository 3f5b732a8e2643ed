// Command migrate manages the papshop schema.
//
//	migrate up | down | status
//	migrate to 20250301090500
//	migrate new add_supplier_index
//	migrate lint
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/angelmondragon/papshop-backend/pkg/bootstrap"
	"github.com/angelmondragon/papshop-backend/pkg/migrate"
)

const usage = "usage: migrate up|down|status|to <version>|new <name>|lint"

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd, rest := args[0], args[1:]

	// new and lint work on the source tree and need no database.
	switch cmd {
	case "new":
		if len(rest) != 1 {
			return errors.New("usage: migrate new <name>")
		}
		path, err := migrate.Scaffold(migrate.SourceDir, rest[0], time.Now())
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	case "lint":
		if err := migrate.Lint(os.DirFS(migrate.SourceDir)); err != nil {
			return err
		}
		fmt.Println("migrations ok")
		return nil
	}

	proc, err := bootstrap.Open(ctx, "migrate", bootstrap.WithoutDevMigrations())
	if err != nil {
		return err
	}
	defer proc.Close()
	ctx = proc.Logger.WithField(ctx, "cmd", cmd)

	if proc.Config.DB.IsSQLite() {
		if cmd != "up" {
			return errors.New("sqlite databases only support up")
		}
		if err := migrate.ApplySQLiteSchema(ctx, proc.DB.DB()); err != nil {
			return err
		}
		proc.Logger.Info(ctx, "sqlite schema applied")
		return nil
	}

	sqlDB, err := proc.DB.DB().DB()
	if err != nil {
		return err
	}
	migrator, err := migrate.NewMigrator(sqlDB, nil)
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		applied, err := migrator.Up(ctx)
		if err != nil {
			return err
		}
		proc.Logger.Info(proc.Logger.WithField(ctx, "applied", applied), "schema up to date")
	case "down":
		return migrator.Down(ctx)
	case "to":
		if len(rest) != 1 {
			return errors.New("usage: migrate to <YYYYMMDDHHMMSS>")
		}
		return migrator.To(ctx, rest[0])
	case "status":
		steps, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, s := range steps {
			applied := "pending"
			if s.Applied {
				applied = s.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, s.File, applied)
		}
		return w.Flush()
	default:
		return errors.New(usage)
	}
	return nil
}
