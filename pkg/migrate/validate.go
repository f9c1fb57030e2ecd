package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// Validate checks every .sql file in src and reports all problems at once:
// bad filenames, duplicate versions, missing Up/Down sections, and unbalanced
// StatementBegin/StatementEnd markers.
func Validate(src Source) error {
	fsys, dir := src.FS, src.Dir
	if fsys == nil {
		if dir == "" {
			src = Embedded()
			fsys, dir = src.FS, src.Dir
		} else {
			fsys, dir = os.DirFS(dir), "."
		}
	}

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read migrations %q: %w", src.Dir, err)
	}

	var errs error
	versions := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		m := migrationFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: expected YYYYMMDDHHMMSS_name.sql", name))
			continue
		}
		if prev, dup := versions[m[1]]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%s: version %s already used by %s", name, m[1], prev))
		}
		versions[m[1]] = name

		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, checkSections(name, string(body)))
	}
	return errs
}

func checkSections(name, body string) error {
	var errs error
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(body, marker) {
			errs = multierr.Append(errs, fmt.Errorf("%s: missing %q", name, marker))
		}
	}
	begins := strings.Count(body, "-- +goose StatementBegin")
	ends := strings.Count(body, "-- +goose StatementEnd")
	if begins != ends {
		errs = multierr.Append(errs, fmt.Errorf("%s: %d StatementBegin vs %d StatementEnd", name, begins, ends))
	}
	return errs
}
