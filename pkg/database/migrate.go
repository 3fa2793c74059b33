package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
)

// Schema migrations ship inside the binary; deployments never need the
// .sql files on disk.
//
//go:embed migrations
var migrationsFS embed.FS

// Migrate applies any pending schema migrations against the client's pool.
// It reports whether anything changed.
func (c *Client) Migrate(dbName string) (changed bool, err error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return false, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	// golang-migrate speaks database/sql; borrow a stdlib handle from the
	// pool for the duration of the migration. Closing it afterwards hands
	// the connections back without touching the pool itself.
	db := stdlib.OpenDBFromPool(c.pool)
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to release migration connection: %w", cerr)
		}
		if cerr := source.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close migration source: %w", cerr)
		}
	}()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return false, fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return false, fmt.Errorf("failed to assemble migrator: %w", err)
	}

	switch err = m.Up(); {
	case err == nil:
		return true, nil
	case errors.Is(err, migrate.ErrNoChange):
		return false, nil
	default:
		return false, fmt.Errorf("failed to apply migrations: %w", err)
	}
}
