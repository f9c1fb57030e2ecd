package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeNameRe = regexp.MustCompile(`[^a-z0-9]+`)

const migrationTemplate = `-- +goose Up
-- +goose StatementBegin
-- %[1]s: up statements
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- %[1]s: down statements
-- +goose StatementEnd
`

// Create writes an empty goose migration named <version>_<name>.sql into dir
// and returns its path. The version is now in UTC.
func Create(dir, name string, now time.Time) (string, error) {
	slug := strings.Trim(unsafeNameRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	switch {
	case dir == "":
		return "", errors.New("migrations dir is required")
	case slug == "":
		return "", fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	file := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", now.UTC().Format("20060102150405"), slug))
	f, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, migrationTemplate, slug); err != nil {
		return "", fmt.Errorf("write %s: %w", file, err)
	}
	return file, nil
}
