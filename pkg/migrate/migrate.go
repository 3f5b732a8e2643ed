// Package migrate owns the papshop schema: goose migrations for Postgres,
// compiled into every binary, and an equivalent SQLite schema for dev and
// tests.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/pressly/goose/v3"
)

// SourceDir is where new migrations are scaffolded, relative to the repo root.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Schema returns the migrations compiled into the binary.
func Schema() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Step is one migration as the database sees it.
type Step struct {
	Version   int64
	File      string
	Applied   bool
	AppliedAt time.Time
}

// Migrator moves a Postgres database through the migration set.
type Migrator struct {
	goose *goose.Provider
}

// NewMigrator uses Schema when migrations is nil.
func NewMigrator(db *sql.DB, migrations fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("sql db required")
	}
	if migrations == nil {
		migrations = Schema()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{goose: provider}, nil
}

// Up applies every pending migration and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	results, err := m.goose.Up(ctx)
	return len(results), err
}

// Down rolls back the newest applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	_, err := m.goose.Down(ctx)
	return err
}

func (m *Migrator) Status(ctx context.Context) ([]Step, error) {
	statuses, err := m.goose.Status(ctx)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(statuses))
	for _, s := range statuses {
		steps = append(steps, Step{
			Version:   s.Source.Version,
			File:      s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return steps, nil
}

// To migrates up or down until the database sits at version, given as the
// YYYYMMDDHHMMSS prefix of a migration file.
func (m *Migrator) To(ctx context.Context, version string) error {
	target, err := strconv.ParseInt(version, 10, 64)
	if err != nil || len(version) != 14 {
		return fmt.Errorf("version %q is not a YYYYMMDDHHMMSS timestamp", version)
	}
	current, err := m.goose.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("current version: %w", err)
	}
	switch {
	case target > current:
		_, err = m.goose.UpTo(ctx, target)
	case target < current:
		_, err = m.goose.DownTo(ctx, target)
	}
	return err
}
