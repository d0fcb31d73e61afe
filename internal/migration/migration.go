// Package migration applies the versioned schema under sql/. Migrations are
// run by `virtuectl migrate`, never by the web server.
package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// Status is the schema version recorded by the migrator.
type Status struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
	// Applied is false on a database that has never been migrated.
	Applied bool `json:"applied"`
}

// Files lists the embedded migration files in version order.
func Files() ([]string, error) {
	return fs.Glob(embeddedMigrations, migrationsDir+"/*.sql")
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	if db == nil {
		return nil, errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	// Do not call migrator.Close: it would close the shared *sql.DB.
	return migrator, nil
}

// RunMigrations applies every pending up migration.
func RunMigrations(db *sql.DB) error {
	migrator, err := newMigrator(db)
	if err != nil {
		return err
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	return nil
}

// Down rolls back the given number of migrations. steps <= 0 rolls back all
// of them.
func Down(db *sql.DB, steps int) error {
	migrator, err := newMigrator(db)
	if err != nil {
		return err
	}

	var downErr error
	if steps <= 0 {
		downErr = migrator.Down()
	} else {
		downErr = migrator.Steps(-steps)
	}
	if downErr != nil && !errors.Is(downErr, migrate.ErrNoChange) {
		return fmt.Errorf("rollback migrations: %w", downErr)
	}
	return nil
}

// Version reports the current schema version.
func Version(db *sql.DB) (Status, error) {
	migrator, err := newMigrator(db)
	if err != nil {
		return Status{}, err
	}

	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read migration version: %w", err)
	}
	return Status{Version: version, Dirty: dirty, Applied: true}, nil
}
