package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	shopinstall "github.com/goliatone/go-shopinstall"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	rootPath = "data/sql/migrations"
)

// DialectForDriver maps a database/sql driver name to its migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "postgres", "pgx", "postgresql":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: no dialect for driver %q", driver)
	}
}

// Source is the migration set for one dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type RegisterFunc func(ctx context.Context, source Source) error

// Sources returns the embedded install_states migrations. Postgres files live
// at the root, sqlite overrides under sqlite/.
func Sources() ([]Source, error) {
	base, err := fs.Sub(shopinstall.GetMigrationsFS(), rootPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootPath, err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: rootPath, FS: base},
		{Dialect: DialectSQLite, Path: rootPath + "/sqlite", FS: sqliteFS},
	}
	for _, source := range sources {
		matches, err := fs.Glob(source.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", source.Path, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s has no *.up.sql files", source.Path)
		}
	}
	return sources, nil
}

// Register hands each source whose dialect is in dialects to registerFn.
// With no dialects every source is registered.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) ([]Source, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}
	sources, err := Sources()
	if err != nil {
		return nil, err
	}

	targets := make([]string, 0, len(dialects))
	for _, dialect := range dialects {
		if trimmed := strings.TrimSpace(strings.ToLower(dialect)); trimmed != "" {
			targets = append(targets, trimmed)
		}
	}

	registered := make([]Source, 0, len(sources))
	for _, source := range sources {
		if len(targets) > 0 && !slices.Contains(targets, source.Dialect) {
			continue
		}
		if err := registerFn(ctx, source); err != nil {
			return registered, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
		registered = append(registered, source)
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("migrations: no migrations for dialects %v", targets)
	}
	return registered, nil
}
