package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/subtrack/pkg/db"
)

//go:embed migrations
var embeddedMigrations embed.FS

const migrationsDir = "migrations"

// RunMigrations applies every pending migration of the dialect's schema.
// Subscribers, payments, custom commands and reminder jobs are created on
// first start.
func RunMigrations(conn *sql.DB, dbType string) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}

	dir, driver, err := driverFor(conn, dbType)
	if err != nil {
		return err
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir+"/"+dir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, dir, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

func driverFor(conn *sql.DB, dbType string) (string, database.Driver, error) {
	var (
		driver database.Driver
		err    error
		dir    string
	)
	switch dbType {
	case db.TypePostgres:
		dir = "postgres"
		driver, err = postgres.WithInstance(conn, &postgres.Config{})
	case db.TypeMySQL:
		dir = "mysql"
		driver, err = mysql.WithInstance(conn, &mysql.Config{})
	case db.TypeSQLite:
		dir = "sqlite3"
		driver, err = sqlite3.WithInstance(conn, &sqlite3.Config{})
	default:
		return "", nil, fmt.Errorf("unsupported migration database %q", dbType)
	}
	if err != nil {
		return "", nil, fmt.Errorf("create migration driver: %w", err)
	}
	return dir, driver, nil
}
