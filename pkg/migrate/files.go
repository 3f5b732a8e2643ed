package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/multierr"
)

var (
	fileName = regexp.MustCompile(`^(\d{14})_([a-z0-9]+(?:_[a-z0-9]+)*)\.sql$`)
	nonWord  = regexp.MustCompile(`[^a-z0-9]+`)
)

const scaffold = `-- %s
-- +goose Up

-- +goose Down
`

// Lint checks every migration in the set and reports all problems at once:
// timestamped names, unique versions and paired goose sections.
func Lint(migrations fs.FS) error {
	names, err := fs.Glob(migrations, "*.sql")
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.New("no migrations found")
	}
	var errs error
	versions := map[string]string{}
	for _, name := range names {
		m := fileName.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: name must look like YYYYMMDDHHMMSS_snake_case.sql", name))
			continue
		}
		if first, taken := versions[m[1]]; taken {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %s already used by %s", name, m[1], first))
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(migrations, name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, lintBody(name, string(body)))
	}
	return errs
}

func lintBody(name, body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	if up < 0 || down < 0 || down < up {
		return fmt.Errorf("%s: needs a goose Up section followed by a Down section", name)
	}
	if strings.Count(body, "-- +goose StatementBegin") != strings.Count(body, "-- +goose StatementEnd") {
		return fmt.Errorf("%s: StatementBegin without matching StatementEnd", name)
	}
	return nil
}

// Scaffold writes an empty migration for name into dir, versioned by now.
func Scaffold(dir, name string, now time.Time) (string, error) {
	slug := strings.Trim(nonWord.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, now.UTC().Format("20060102150405")+"_"+slug+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, scaffold, slug); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}
