package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are written by the create command.
const DefaultDir = "pkg/migrate/migrations"

const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source is a set of goose SQL files. The zero value reads the migrations
// compiled into the binary.
type Source struct {
	FS  fs.FS
	Dir string
}

// Embedded returns the migrations shipped with the binary.
func Embedded() Source {
	return Source{FS: embedded, Dir: embeddedDir}
}

// FromDir reads migrations from disk, used while authoring new files.
func FromDir(dir string) Source {
	return Source{Dir: dir}
}

func (s Source) prepare() (string, error) {
	if s.FS == nil && s.Dir == "" {
		s = Embedded()
	}
	goose.SetBaseFS(s.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	return s.Dir, nil
}

// Run executes a goose command (up, down, status, ...) against Postgres.
// SQLite databases get their schema from the models instead.
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	if db == nil {
		return errors.New("db is required")
	}
	dir, err := src.prepare()
	if err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// To moves the schema up or down until it sits at target, a
// YYYYMMDDHHMMSS version string.
func To(ctx context.Context, db *sql.DB, src Source, target string) error {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != 14 {
		return fmt.Errorf("invalid version %q, expected YYYYMMDDHHMMSS", target)
	}
	dir, err := src.prepare()
	if err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case current < version:
		err = goose.UpToContext(ctx, db, dir, version)
	case current > version:
		err = goose.DownToContext(ctx, db, dir, version)
	}
	if err != nil {
		return fmt.Errorf("migrate %d -> %d: %w", current, version, err)
	}
	return nil
}
