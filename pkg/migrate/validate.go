package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

const versionLayout = "20060102150405"

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

	// Constructs that only postgres accepts. The ledger tables are created by
	// the same files on sqlite.
	nonPortableRe = regexp.MustCompile(`(?i)\b(JSONB|TIMESTAMPTZ|BIGSERIAL|SERIAL|gen_random_uuid|CREATE\s+TYPE|ALTER\s+TYPE|CREATE\s+EXTENSION)\b`)

	requiredMarkers = []string{"-- +goose Up", "-- +goose Down"}
)

// ValidateDir checks every migration in dir and reports all problems at once.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS is ValidateDir over the root of fsys.
func ValidateFS(fsys fs.FS) error {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var (
		errs error
		seen = map[string]string{} // version -> filename
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, ok := seen[m[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name))
		}
		seen[m[1]] = name

		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read file %q: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, validateBody(name, string(b)))
	}
	return errs
}

func validateBody(name, body string) error {
	var errs error
	for _, marker := range requiredMarkers {
		if !strings.Contains(body, marker) {
			errs = multierr.Append(errs, fmt.Errorf("migration %q missing %q", name, marker))
		}
	}
	if strings.Count(body, "-- +goose StatementBegin") != strings.Count(body, "-- +goose StatementEnd") {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has unbalanced StatementBegin/StatementEnd", name))
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for _, hit := range nonPortableRe.FindAllString(line, -1) {
			errs = multierr.Append(errs, fmt.Errorf("migration %q uses postgres-only %s", name, strings.ToUpper(hit)))
		}
	}
	return errs
}
