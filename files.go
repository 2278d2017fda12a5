package bank

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/migrate"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// DialectMigrationsFS returns the migrations for the given bun dialect
func DialectMigrationsFS(name dialect.Name) (fs.FS, error) {
	var dir string
	switch name {
	case dialect.SQLite:
		dir = "sqlite"
	case dialect.PG:
		dir = "postgres"
	default:
		return nil, fmt.Errorf("no migrations for dialect %s", name)
	}
	return fs.Sub(migrationsFS, "data/sql/migrations/"+dir)
}

// Migrate applies pending migrations for the database dialect and returns
// the applied group, if any.
func Migrate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	fsys, err := DialectMigrationsFS(db.Dialect().Name())
	if err != nil {
		return nil, err
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(fsys); err != nil {
		return nil, fmt.Errorf("discover migrations: %w", err)
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return group, nil
}
